// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/monstim/internal/metrics"
)

// Loader loads configuration with precedence ENV > file > defaults.
type Loader struct {
	path    string
	version string
}

// NewLoader creates a loader for the given config file path. An empty path
// means file loading is skipped and only ENV + defaults apply.
func NewLoader(path, version string) *Loader {
	return &Loader{path: path, version: version}
}

// Load builds the effective configuration and validates it.
func (l *Loader) Load() (Config, error) {
	cfg := Default()

	if l.path != "" {
		data, err := os.ReadFile(l.path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Missing file is fine; ENV and defaults carry the config.
		case err != nil:
			return Config{}, fmt.Errorf("read config file %q: %w", l.path, err)
		default:
			// Unmarshal over the defaults so absent keys keep their values.
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file %q: %w", l.path, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := Validate(cfg); err != nil {
		metrics.IncConfigValidationError()
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays MONSTIM_* environment variables on top of cfg.
func applyEnv(cfg *Config) {
	cfg.DataDir = ParseString("MONSTIM_DATA_DIR", cfg.DataDir)
	cfg.ReportDir = ParseString("MONSTIM_REPORT_DIR", cfg.ReportDir)
	cfg.ListenAddr = ParseString("MONSTIM_LISTEN", cfg.ListenAddr)
	cfg.MetricsEnabled = ParseBool("MONSTIM_METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.MetricsAddr = ParseString("MONSTIM_METRICS_ADDR", cfg.MetricsAddr)
	cfg.LogLevel = ParseString("MONSTIM_LOG_LEVEL", cfg.LogLevel)

	cfg.DefaultMethod = ParseString("MONSTIM_DEFAULT_METHOD", cfg.DefaultMethod)
	cfg.BinSize = ParseFloat("MONSTIM_BIN_SIZE", cfg.BinSize)
	cfg.HThreshold = ParseFloat("MONSTIM_H_THRESHOLD", cfg.HThreshold)

	cfg.Redis.Enabled = ParseBool("MONSTIM_REDIS_ENABLED", cfg.Redis.Enabled)
	cfg.Redis.Addr = ParseString("MONSTIM_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = ParseString("MONSTIM_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = ParseInt("MONSTIM_REDIS_DB", cfg.Redis.DB)

	cfg.RateLimitRPS = ParseInt("MONSTIM_RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = ParseInt("MONSTIM_RATE_LIMIT_BURST", cfg.RateLimitBurst)
}
