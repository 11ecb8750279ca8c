// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"

	"github.com/ManuGH/monstim/internal/sigproc"
)

// Validate checks the configuration for internal consistency. A config that
// fails validation must never replace a running one.
func Validate(cfg Config) error {
	if cfg.BinSize <= 0 {
		return fmt.Errorf("bin_size must be positive, got %g", cfg.BinSize)
	}
	if cfg.TimeWindow <= 0 {
		return fmt.Errorf("time_window must be positive, got %g", cfg.TimeWindow)
	}
	if _, err := sigproc.ParseMethod(cfg.DefaultMethod); err != nil {
		return fmt.Errorf("default_method: %w", err)
	}
	if len(cfg.DefaultChannelNames) == 0 {
		return fmt.Errorf("default_channel_names must not be empty")
	}

	bf := cfg.ButterFilter
	if bf.Lowcut <= 0 || bf.Highcut <= bf.Lowcut {
		return fmt.Errorf("butter_filter_args: need 0 < lowcut < highcut, got lowcut=%g highcut=%g", bf.Lowcut, bf.Highcut)
	}
	if bf.Order < 1 || bf.Order > 8 {
		return fmt.Errorf("butter_filter_args: order must be in [1,8], got %d", bf.Order)
	}

	mm := cfg.MMax
	if mm.MinWindowSize < 2 {
		return fmt.Errorf("m_max_args: min_window_size must be at least 2, got %d", mm.MinWindowSize)
	}
	if mm.MaxWindowSize < mm.MinWindowSize {
		return fmt.Errorf("m_max_args: max_window_size %d is smaller than min_window_size %d", mm.MaxWindowSize, mm.MinWindowSize)
	}
	if mm.Threshold <= 0 {
		return fmt.Errorf("m_max_args: threshold must be positive, got %g", mm.Threshold)
	}

	if len(cfg.MStart) == 0 || len(cfg.HStart) == 0 {
		return fmt.Errorf("m_start and h_start must list at least one channel")
	}
	if len(cfg.MStart) != len(cfg.HStart) {
		return fmt.Errorf("m_start and h_start must cover the same channels, got %d and %d", len(cfg.MStart), len(cfg.HStart))
	}
	for i, v := range cfg.MStart {
		if v < 0 {
			return fmt.Errorf("m_start[%d] must not be negative, got %g", i, v)
		}
	}
	for i, v := range cfg.HStart {
		if v < 0 {
			return fmt.Errorf("h_start[%d] must not be negative, got %g", i, v)
		}
	}
	if cfg.MDuration <= 0 {
		return fmt.Errorf("m_duration must be positive, got %g", cfg.MDuration)
	}
	if cfg.HDuration <= 0 {
		return fmt.Errorf("h_duration must be positive, got %g", cfg.HDuration)
	}
	if cfg.HThreshold < 0 {
		return fmt.Errorf("h_threshold must not be negative, got %g", cfg.HThreshold)
	}

	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if cfg.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr must be set when redis.enabled is true")
	}
	if cfg.RateLimitRPS < 0 || cfg.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}

	return nil
}
