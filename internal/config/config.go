// Package config provides YAML configuration parsing and validation for the
// demo WebSocket/channel-hub host (cmd/spice-wsd).
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ChannelCap preloads a capability bit on a named channel at startup,
// letting the demo host advertise capabilities without a real negotiation
// partner.
type ChannelCap struct {
	// Channel is the channel type the bit applies to.
	Channel int `yaml:"channel"`
	// Bit is the capability bit index to set.
	Bit int `yaml:"bit"`
	// Common sets the bit in the channel's common capability bitset instead
	// of its channel-specific one.
	Common bool `yaml:"common"`
}

// Config is the root configuration for the demo server.
type Config struct {
	// ListenAddr is the "host:port" address the demo host listens on.
	ListenAddr string `yaml:"listen_addr"`
	// QuiesceTimeout is a timeout for internal/client.Client.WaitAllSent;
	// zero (or unset) selects the 5s default. cmd/spice-wsd parses it but
	// does not call WaitAllSent.
	QuiesceTimeout time.Duration `yaml:"quiesce_timeout"`
	// LogLevel is the minimum zerolog level name ("debug", "info", "warn",
	// "error").
	LogLevel string `yaml:"log_level"`
	// Caps preloads channel capability bits at startup.
	Caps []ChannelCap `yaml:"caps"`
}

var validLogLevels = map[string]struct{}{
	"debug": {}, "info": {}, "warn": {}, "error": {},
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.QuiesceTimeout == 0 {
		cfg.QuiesceTimeout = 5 * time.Second
	}
}

// Validate checks cfg for semantic errors, returning all of them at once.
func Validate(cfg *Config) []error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, _, err := net.SplitHostPort(cfg.ListenAddr); err != nil {
		add("listen_addr %q is not a valid host:port address: %v", cfg.ListenAddr, err)
	}
	if _, ok := validLogLevels[cfg.LogLevel]; !ok {
		add("log_level %q is invalid; must be one of debug, info, warn, error", cfg.LogLevel)
	}
	if cfg.QuiesceTimeout < 0 {
		add("quiesce_timeout must be >= 0 (0 selects the default)")
	}
	for i, c := range cfg.Caps {
		if c.Bit < 0 {
			add("caps[%d].bit must be >= 0", i)
		}
	}
	return errs
}

// Parse decodes YAML bytes, applies defaults, and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	applyDefaults(&cfg)

	if errs := Validate(&cfg); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, errors.New("invalid configuration:\n  - " + strings.Join(msgs, "\n  - "))
	}
	return &cfg, nil
}

// ParseFile reads and parses the YAML config file at path.
func ParseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}
	return Parse(data)
}
