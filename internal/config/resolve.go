package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/antonkrylov/simrelay/internal/relay"
)

const DefaultSubject = "simrelay.events"

// Overrides carries explicit command-line values. Zero values and nil
// pointers mean "not given".
type Overrides struct {
	ConfigPath   string
	DeviceSet    string
	Port         *int
	IPv4         *bool
	IPv6         *bool
	BindPolicy   string
	MaxLineBytes int
	LogLevel     string
	LogJSON      *bool
	NATSURL      string
	Transcript   string
	HealthListen string
}

// Settings is the fully resolved configuration.
type Settings struct {
	ConfigPath   string
	ConfigLoaded bool
	DeviceSet    string
	Socket       relay.SocketConfig
	LogLevel     string
	LogJSON      bool
	Audit        AuditConfig
	HealthListen string
}

// SocketMode reports whether a port was configured.
func (s *Settings) SocketMode() bool { return s.Socket.Port > 0 }

// Resolve mirrors the usual precedence:
// 1) flags
// 2) config file values
// 3) environment (SIMRELAY_DEVICE_SET, SIMRELAY_NATS_URL)
// 4) defaults (~/.simrelay/devices.yaml, IPv4 only, strict binding)
func Resolve(o Overrides) (*Settings, error) {
	s := &Settings{ConfigPath: o.ConfigPath}
	if s.ConfigPath == "" {
		s.ConfigPath = DefaultConfigPath()
	}
	cfg, err := Load(s.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", s.ConfigPath, err)
	}
	s.ConfigLoaded = cfg != nil
	if cfg == nil {
		cfg = &Config{}
	}

	s.DeviceSet = first(o.DeviceSet, cfg.DeviceSet, os.Getenv("SIMRELAY_DEVICE_SET"), DefaultDeviceSetPath())
	if s.DeviceSet, err = expandPath(s.DeviceSet); err != nil {
		return nil, err
	}

	s.Socket = relay.SocketConfig{
		Port:         firstInt(o.Port, cfg.Relay.Port),
		IPv4:         firstBool(true, o.IPv4, cfg.Relay.IPv4),
		IPv6:         firstBool(false, o.IPv6, cfg.Relay.IPv6),
		BindPolicy:   relay.BindPolicy(first(o.BindPolicy, cfg.Relay.BindPolicy)),
		MaxLineBytes: o.MaxLineBytes,
	}
	if s.Socket.MaxLineBytes == 0 {
		s.Socket.MaxLineBytes = cfg.Relay.MaxLineBytes
	}
	if s.Socket.MaxLineBytes <= 0 {
		s.Socket.MaxLineBytes = relay.DefaultMaxLineBytes
	}
	policy, err := relay.ParseBindPolicy(string(s.Socket.BindPolicy))
	if err != nil {
		return nil, err
	}
	s.Socket.BindPolicy = policy
	if s.Socket.Port < 0 || s.Socket.Port > 65535 {
		return nil, fmt.Errorf("%w: %d", relay.ErrInvalidPort, s.Socket.Port)
	}
	if s.SocketMode() {
		if err := s.Socket.Validate(); err != nil {
			return nil, err
		}
	}

	s.LogLevel = first(o.LogLevel, cfg.Log.Level, "info")
	s.LogJSON = firstBool(cfg.Log.JSON, o.LogJSON)

	s.Audit = AuditConfig{
		NATSURL:    first(o.NATSURL, cfg.Audit.NATSURL, os.Getenv("SIMRELAY_NATS_URL")),
		Subject:    first(cfg.Audit.Subject, DefaultSubject),
		Transcript: first(o.Transcript, cfg.Audit.Transcript),
	}
	if s.Audit.Transcript != "" {
		if s.Audit.Transcript, err = expandPath(s.Audit.Transcript); err != nil {
			return nil, err
		}
	}
	s.HealthListen = first(o.HealthListen, cfg.Health.Listen)
	return s, nil
}

func first(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstInt(flag *int, file int) int {
	if flag != nil {
		return *flag
	}
	return file
}

func firstBool(def bool, vals ...*bool) bool {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return def
}
