// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads, validates and hot-reloads the analyzer configuration.
//
// Precedence: environment > config file > built-in defaults.
package config

// ButterFilterArgs holds the bandpass filter parameters applied to raw EMG
// traces before amplitude extraction.
type ButterFilterArgs struct {
	Lowcut  float64 `yaml:"lowcut"`
	Highcut float64 `yaml:"highcut"`
	Order   int     `yaml:"order"`
}

// MMaxArgs tunes the plateau detector used for M-max estimation.
type MMaxArgs struct {
	MaxWindowSize int     `yaml:"max_window_size"`
	MinWindowSize int     `yaml:"min_window_size"`
	Threshold     float64 `yaml:"threshold"`
}

// SubplotAdjustArgs mirrors the figure margin parameters clients use when
// rendering traces. The daemon only validates and serves them.
type SubplotAdjustArgs struct {
	Left   float64 `yaml:"left"`
	Right  float64 `yaml:"right"`
	Top    float64 `yaml:"top"`
	Bottom float64 `yaml:"bottom"`
	WSpace float64 `yaml:"wspace"`
	HSpace float64 `yaml:"hspace"`
}

// PlotStyle groups the presentation parameters from the config file.
type PlotStyle struct {
	LatencyWindowStyle string            `yaml:"latency_window_style"`
	MColor             string            `yaml:"m_color"`
	HColor             string            `yaml:"h_color"`
	TitleFontSize      int               `yaml:"title_font_size"`
	AxisLabelFontSize  int               `yaml:"axis_label_font_size"`
	TickFontSize       int               `yaml:"tick_font_size"`
	SubplotAdjust      SubplotAdjustArgs `yaml:"subplot_adjust_args"`
}

// Redis configures the optional result cache backend.
type Redis struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Config is the full analyzer configuration: the analysis parameter schema
// from config.yml plus daemon runtime settings.
type Config struct {
	// Analysis parameters
	BinSize             float64          `yaml:"bin_size"`
	TimeWindow          float64          `yaml:"time_window"`
	DefaultMethod       string           `yaml:"default_method"`
	DefaultChannelNames []string         `yaml:"default_channel_names"`
	ButterFilter        ButterFilterArgs `yaml:"butter_filter_args"`
	MMax                MMaxArgs         `yaml:"m_max_args"`

	// Reflex latency windows (ms). MStart/HStart are per channel; the
	// durations are scalars expanded per channel at analysis time.
	MStart    []float64 `yaml:"m_start"`
	MDuration float64   `yaml:"m_duration"`
	HStart    []float64 `yaml:"h_start"`
	HDuration float64   `yaml:"h_duration"`

	// H-reflex detection threshold (mV).
	HThreshold float64 `yaml:"h_threshold"`

	// Presentation parameters, passed through to clients.
	Plot PlotStyle `yaml:",inline"`

	// Runtime settings
	DataDir        string `yaml:"data_dir"`
	ReportDir      string `yaml:"report_dir"`
	ListenAddr     string `yaml:"listen_addr"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsAddr    string `yaml:"metrics_addr"`
	LogLevel       string `yaml:"log_level"`
	Redis          Redis  `yaml:"redis"`

	// Rate limiting for the HTTP API.
	RateLimitRPS   int `yaml:"rate_limit_rps"`
	RateLimitBurst int `yaml:"rate_limit_burst"`
}

// ChannelCount returns the number of channels the reflex window lists cover.
func (c Config) ChannelCount() int {
	if len(c.MStart) < len(c.HStart) {
		return len(c.MStart)
	}
	return len(c.HStart)
}

// MDurations expands the scalar M-window duration to one entry per channel.
func (c Config) MDurations() []float64 {
	out := make([]float64, len(c.MStart))
	for i := range out {
		out[i] = c.MDuration
	}
	return out
}

// HDurations expands the scalar H-window duration to one entry per channel.
func (c Config) HDurations() []float64 {
	out := make([]float64, len(c.HStart))
	for i := range out {
		out[i] = c.HDuration
	}
	return out
}
