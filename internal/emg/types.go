// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package emg models EMG recording sessions, datasets and experiments and
// derives reflex analyses (M-max, reflex curves, suspected H-reflexes) from
// them.
package emg

import (
	"fmt"

	"github.com/ManuGH/monstim/internal/config"
	"github.com/ManuGH/monstim/internal/sigproc"
)

// SessionInfo carries the acquisition parameters of one recording session.
// Times are in milliseconds unless noted otherwise.
type SessionInfo struct {
	SessionID        string  `json:"session_id"`
	NumChannels      int     `json:"num_channels"`
	ScanRate         int     `json:"scan_rate"` // Hz
	NumSamples       int     `json:"num_samples"`
	PreStimAcquired  float64 `json:"pre_stim_acquired"`
	PostStimAcquired float64 `json:"post_stim_acquired"`
	StimDelay        float64 `json:"stim_delay"`
	StimDuration     float64 `json:"stim_duration"`
	StimInterval     float64 `json:"stim_interval"` // seconds
	EMGAmpGains      []int   `json:"emg_amp_gains"`
}

// RawRecording is the wire form of a single stimulus sweep.
type RawRecording struct {
	StimulusV   float64     `json:"stimulus_v"`
	ChannelData [][]float64 `json:"channel_data"`
}

// RawSession is the wire form of a session file as produced by the rig
// converter.
type RawSession struct {
	Info       SessionInfo    `json:"session_info"`
	Recordings []RawRecording `json:"recordings"`
}

// Recording is one stimulus sweep with a stable identifier. IDs are assigned
// once, after sorting by stimulus voltage, and survive exclusion.
type Recording struct {
	ID          int         `json:"recording_id"`
	StimulusV   float64     `json:"stimulus_v"`
	ChannelData [][]float64 `json:"channel_data"`
}

func (r Recording) clone() Recording {
	data := make([][]float64, len(r.ChannelData))
	for i, ch := range r.ChannelData {
		data[i] = append([]float64(nil), ch...)
	}
	return Recording{ID: r.ID, StimulusV: r.StimulusV, ChannelData: data}
}

// LatencyWindow marks a per-channel reflex window for analysis and for
// client-side rendering.
type LatencyWindow struct {
	Name       string    `json:"name"`
	Color      string    `json:"color"`
	StartTimes []float64 `json:"start_times"` // ms, one per channel
	Durations  []float64 `json:"durations"`   // ms, one per channel
	LineStyle  string    `json:"linestyle"`
}

// EndTimes derives the window end time for each channel.
func (w LatencyWindow) EndTimes() []float64 {
	out := make([]float64, len(w.StartTimes))
	for i, start := range w.StartTimes {
		out[i] = start + w.Durations[i]
	}
	return out
}

// Window names used for the reflex parameter cascade.
const (
	WindowMWave   = "M-wave"
	WindowHReflex = "H-reflex"
)

// AnalysisParams are the configuration-derived knobs every analysis needs.
type AnalysisParams struct {
	DefaultChannelNames []string
	DefaultMethod       sigproc.Method
	MStart              []float64
	MDuration           []float64
	HStart              []float64
	HDuration           []float64
	HThreshold          float64
	BinSize             float64
	Filter              config.ButterFilterArgs
	MMax                config.MMaxArgs
	MColor              string
	HColor              string
	LatencyWindowStyle  string
}

// ParamsFromConfig maps a validated configuration onto analysis parameters.
// The scalar window durations are expanded per channel.
func ParamsFromConfig(cfg config.Config) (AnalysisParams, error) {
	method, err := sigproc.ParseMethod(cfg.DefaultMethod)
	if err != nil {
		return AnalysisParams{}, fmt.Errorf("analysis params: %w", err)
	}
	return AnalysisParams{
		DefaultChannelNames: append([]string(nil), cfg.DefaultChannelNames...),
		DefaultMethod:       method,
		MStart:              append([]float64(nil), cfg.MStart...),
		MDuration:           cfg.MDurations(),
		HStart:              append([]float64(nil), cfg.HStart...),
		HDuration:           cfg.HDurations(),
		HThreshold:          cfg.HThreshold,
		BinSize:             cfg.BinSize,
		Filter:              cfg.ButterFilter,
		MMax:                cfg.MMax,
		MColor:              cfg.Plot.MColor,
		HColor:              cfg.Plot.HColor,
		LatencyWindowStyle:  cfg.Plot.LatencyWindowStyle,
	}, nil
}

// windowsForChannels clamps the per-channel window lists to the channel count,
// padding missing channels with the last configured value.
func windowsForChannels(values []float64, numChannels int) []float64 {
	out := make([]float64, numChannels)
	for i := 0; i < numChannels; i++ {
		switch {
		case i < len(values):
			out[i] = values[i]
		case len(values) > 0:
			out[i] = values[len(values)-1]
		}
	}
	return out
}
