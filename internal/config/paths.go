package config

import (
	"os"
	"path/filepath"
	"strings"
)

func DefaultConfigDir() string {
	if v := os.Getenv("SIMRELAY_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".simrelay")
}

// DefaultConfigPath honours SIMRELAY_CONFIG before the config directory.
func DefaultConfigPath() string {
	if v := os.Getenv("SIMRELAY_CONFIG"); v != "" {
		return v
	}
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

func DefaultDeviceSetPath() string {
	return filepath.Join(DefaultConfigDir(), "devices.yaml")
}

func expandPath(path string) (string, error) {
	switch {
	case strings.HasPrefix(path, "~/"):
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[2:]), nil
	case path == "~":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return home, nil
	case filepath.IsAbs(path):
		return path, nil
	default:
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		return filepath.Join(cwd, path), nil
	}
}
