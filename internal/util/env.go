// internal/util/env.go
package util

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

// Config is the startup configuration of the exporter. It is fixed for the
// lifetime of the process.
type Config struct {
	ListenAddress      string
	RefreshInterval    time.Duration
	CommandTimeout     time.Duration
	MissingLabelPolicy string
	PoolApplications   []string
	CephBinary         string
	RBDBinary          string
	LogLevel           string
	LogFile            string
}

// DefaultConfig returns the settings used when neither flags nor environment
// override them
func DefaultConfig() Config {
	return Config{
		ListenAddress:      ":8089",
		RefreshInterval:    30 * time.Second,
		CommandTimeout:     60 * time.Second,
		MissingLabelPolicy: "empty",
		PoolApplications:   []string{"rbd"},
		CephBinary:         "ceph",
		RBDBinary:          "rbd",
		LogLevel:           "info",
	}
}

// Validate rejects settings the exporter cannot run with
func (c Config) Validate() error {
	if len(c.PoolApplications) == 0 {
		return errors.New("no pool applications configured, nothing would be exported")
	}
	if c.RefreshInterval <= 0 {
		return errors.New("refresh interval must be positive")
	}
	if c.CommandTimeout < 0 {
		return errors.New("command timeout must not be negative")
	}
	return nil
}

// EnvConfig holds configuration that can be set via environment variables
type EnvConfig struct {
	ListenAddress      string
	RefreshInterval    time.Duration
	CommandTimeout     time.Duration
	commandTimeoutSet  bool
	MissingLabelPolicy string
	PoolApplications   []string
	CephBinary         string
	RBDBinary          string
	LogLevel           string
	LogFile            string
}

// LoadEnvConfig loads configuration from environment variables
func LoadEnvConfig(logger logr.Logger) *EnvConfig {
	config := &EnvConfig{}

	if addr := os.Getenv("LISTEN_ADDRESS"); addr != "" {
		config.ListenAddress = addr
		logger.Info("Loaded listen address from environment", "address", addr)
	}

	if intervalStr := os.Getenv("REFRESH_INTERVAL"); intervalStr != "" {
		if d, err := time.ParseDuration(intervalStr); err == nil && d > 0 {
			config.RefreshInterval = d
			logger.Info("Loaded refresh interval from environment", "interval", d)
		} else {
			logger.Error(err, "Invalid REFRESH_INTERVAL environment variable, ignoring", "value", intervalStr)
		}
	}

	if timeoutStr := os.Getenv("COMMAND_TIMEOUT"); timeoutStr != "" {
		if d, err := time.ParseDuration(timeoutStr); err == nil && d >= 0 {
			config.CommandTimeout = d
			config.commandTimeoutSet = true
			logger.Info("Loaded command timeout from environment", "timeout", d)
		} else {
			logger.Error(err, "Invalid COMMAND_TIMEOUT environment variable, ignoring", "value", timeoutStr)
		}
	}

	if policy := os.Getenv("MISSING_LABEL_POLICY"); policy != "" {
		config.MissingLabelPolicy = policy
		logger.Info("Loaded missing label policy from environment", "policy", policy)
	}

	if apps := os.Getenv("POOL_APPLICATIONS"); apps != "" {
		config.PoolApplications = ParseCommaList(apps)
		logger.Info("Loaded pool applications from environment", "applications", config.PoolApplications)
	}

	if bin := os.Getenv("CEPH_BINARY"); bin != "" {
		config.CephBinary = bin
		logger.Info("Loaded ceph binary from environment", "binary", bin)
	}

	if bin := os.Getenv("RBD_BINARY"); bin != "" {
		config.RBDBinary = bin
		logger.Info("Loaded rbd binary from environment", "binary", bin)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}

	if file := os.Getenv("LOG_FILE"); file != "" {
		config.LogFile = file
	}

	return config
}

// ParseCommaList splits a comma-separated list, dropping empty items
func ParseCommaList(input string) []string {
	if input == "" {
		return nil
	}

	var items []string
	for _, item := range strings.Split(input, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// MergeInto overlays the environment values on cfg, with environment taking
// precedence
func (e *EnvConfig) MergeInto(cfg Config) Config {
	if e.ListenAddress != "" {
		cfg.ListenAddress = e.ListenAddress
	}

	if e.RefreshInterval > 0 {
		cfg.RefreshInterval = e.RefreshInterval
	}

	if e.commandTimeoutSet {
		cfg.CommandTimeout = e.CommandTimeout
	}

	if e.MissingLabelPolicy != "" {
		cfg.MissingLabelPolicy = e.MissingLabelPolicy
	}

	if len(e.PoolApplications) > 0 {
		cfg.PoolApplications = e.PoolApplications
	}

	if e.CephBinary != "" {
		cfg.CephBinary = e.CephBinary
	}

	if e.RBDBinary != "" {
		cfg.RBDBinary = e.RBDBinary
	}

	if e.LogLevel != "" {
		cfg.LogLevel = e.LogLevel
	}

	if e.LogFile != "" {
		cfg.LogFile = e.LogFile
	}

	return cfg
}
