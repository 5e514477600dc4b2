package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/antonkrylov/simrelay/internal/relay"
)

// Config models the simrelay configuration file.
type Config struct {
	DeviceSet string       `yaml:"deviceSet,omitempty"`
	Relay     RelayConfig  `yaml:"relay"`
	Log       LogConfig    `yaml:"log"`
	Audit     AuditConfig  `yaml:"audit"`
	Health    HealthConfig `yaml:"health"`
}

// RelayConfig holds the socket relay settings. Pointers distinguish an
// absent key from an explicit false.
type RelayConfig struct {
	Port         int    `yaml:"port,omitempty"`
	IPv4         *bool  `yaml:"ipv4,omitempty"`
	IPv6         *bool  `yaml:"ipv6,omitempty"`
	BindPolicy   string `yaml:"bindPolicy,omitempty"`
	MaxLineBytes int    `yaml:"maxLineBytes,omitempty"`
}

type LogConfig struct {
	Level string `yaml:"level,omitempty"`
	JSON  bool   `yaml:"json,omitempty"`
}

// AuditConfig enables the event sinks. Empty values disable a sink.
type AuditConfig struct {
	NATSURL    string `yaml:"natsURL,omitempty"`
	Subject    string `yaml:"subject,omitempty"`
	Transcript string `yaml:"transcript,omitempty"`
}

type HealthConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// Default spells out the values Resolve falls back to when a key is absent.
func Default() *Config {
	ipv4, ipv6 := true, false
	return &Config{
		Relay: RelayConfig{
			IPv4:         &ipv4,
			IPv6:         &ipv6,
			BindPolicy:   string(relay.BindStrict),
			MaxLineBytes: relay.DefaultMaxLineBytes,
		},
		Log:   LogConfig{Level: "info"},
		Audit: AuditConfig{Subject: DefaultSubject},
	}
}

// Load decodes the config file. Missing files return (nil, nil).
func Load(path string) (*Config, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	expanded, err := expandPath(trimmed)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Save writes the config to disk, creating parent directories if needed.
func (c *Config) Save(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config path is required")
	}
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(expanded, data, 0o600); err != nil {
		return err
	}
	return nil
}
