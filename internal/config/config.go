// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the sysgenid project.
// Copyright 2016-present sysgenid authors.

// Package config binds the daemon's cobra flags through viper, with
// flags taking precedence over environment variables and defaults,
// without requiring a config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the resolved set of daemon settings for one run.
type Config struct {
	Bus         string // "session" or "system"
	CounterFile string
	MetricsAddr string
	LogLevel    string
}

// BindFlags registers the daemon's optional flags on cmd. None are
// required; every setting falls back to a sensible default.
func BindFlags(cmd *cobra.Command) {
	cmd.Flags().String("bus", "session", "bus to connect to: session or system")
	cmd.Flags().String("counter-file", "", "path to the exported counter page (default depends on --bus)")
	cmd.Flags().String("metrics-addr", "", "address to serve Prometheus metrics on, e.g. 127.0.0.1:9090 (disabled if empty)")
	cmd.Flags().String("log-level", "info", "log level: debug, info, warn, error")
}

// Load resolves a Config from cmd's flags, environment variables
// prefixed SYSGENID_, and defaults, in that precedence.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SYSGENID")
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("config: bind flags: %w", err)
	}

	cfg := &Config{
		Bus:         v.GetString("bus"),
		CounterFile: v.GetString("counter-file"),
		MetricsAddr: v.GetString("metrics-addr"),
		LogLevel:    v.GetString("log-level"),
	}

	if cfg.Bus != "session" && cfg.Bus != "system" {
		return nil, fmt.Errorf("config: --bus must be %q or %q, got %q", "session", "system", cfg.Bus)
	}
	if cfg.CounterFile == "" {
		cfg.CounterFile = DefaultCounterFile(cfg.Bus)
	}

	return cfg, nil
}

// DefaultCounterFile returns the default exported-file path for the
// given bus mode: a runtime state directory under /run for the system
// bus, or $XDG_RUNTIME_DIR (falling back to the OS temp dir) for the
// session bus.
func DefaultCounterFile(bus string) string {
	if bus == "system" {
		return "/run/sysgenid/sysgen_counter"
	}

	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "sysgenid", "sysgen_counter")
}
