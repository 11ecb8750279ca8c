// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

// Default returns the built-in configuration. Every value can be overridden
// by the config file and the MONSTIM_* environment variables.
func Default() Config {
	return Config{
		BinSize:             0.01,
		TimeWindow:          10.0,
		DefaultMethod:       "rms",
		DefaultChannelNames: []string{"LG", "TA"},
		ButterFilter: ButterFilterArgs{
			Lowcut:  100,
			Highcut: 3500,
			Order:   4,
		},
		MMax: MMaxArgs{
			MaxWindowSize: 20,
			MinWindowSize: 3,
			Threshold:     0.3,
		},
		MStart:     []float64{2.0, 2.0},
		MDuration:  3.0,
		HStart:     []float64{6.0, 6.0},
		HDuration:  4.0,
		HThreshold: 0.3,
		Plot: PlotStyle{
			LatencyWindowStyle: "--",
			MColor:             "red",
			HColor:             "blue",
			TitleFontSize:      14,
			AxisLabelFontSize:  12,
			TickFontSize:       10,
			SubplotAdjust: SubplotAdjustArgs{
				Left:   0.07,
				Right:  0.97,
				Top:    0.9,
				Bottom: 0.1,
				WSpace: 0.3,
				HSpace: 0.4,
			},
		},
		DataDir:        "data",
		ReportDir:      "reports",
		ListenAddr:     ":8080",
		MetricsEnabled: true,
		MetricsAddr:    ":9090",
		LogLevel:       "info",
		Redis: Redis{
			Enabled: false,
			Addr:    "localhost:6379",
		},
		RateLimitRPS:   50,
		RateLimitBurst: 100,
	}
}
