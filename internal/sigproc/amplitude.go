// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sigproc

import (
	"fmt"
	"math"
)

// Rectify returns the absolute value of each sample.
func Rectify(emg []float64) []float64 {
	out := make([]float64, len(emg))
	for i, v := range emg {
		out[i] = math.Abs(v)
	}
	return out
}

// BaselineCorrect subtracts the mean pre-stimulus amplitude from every sample
// of each channel. stimDelayMs marks the end of the baseline window.
func BaselineCorrect(channels [][]float64, scanRate int, stimDelayMs float64) [][]float64 {
	out := make([][]float64, len(channels))
	for ci, ch := range channels {
		baseline, err := Amplitude(ch, 0, stimDelayMs, scanRate, MethodAverageUnrectified)
		if err != nil || math.IsNaN(baseline) {
			baseline = 0
		}
		adjusted := make([]float64, len(ch))
		for i, v := range ch {
			adjusted[i] = v - baseline
		}
		out[ci] = adjusted
	}
	return out
}

// window converts a [startMs, endMs) interval to sample indices, clamped to
// the trace bounds. Index conversion is int(ms * scanRate / 1000), truncating
// like the reference implementation.
func window(emg []float64, startMs, endMs float64, scanRate int) ([]float64, error) {
	start := int(startMs * float64(scanRate) / 1000)
	end := int(endMs * float64(scanRate) / 1000)
	if start < 0 {
		start = 0
	}
	if end > len(emg) {
		end = len(emg)
	}
	if start >= end {
		return nil, fmt.Errorf("window [%gms, %gms) is empty at scan rate %d over %d samples", startMs, endMs, scanRate, len(emg))
	}
	return emg[start:end], nil
}

// Amplitude computes the EMG amplitude over [startMs, endMs) using the given
// method.
func Amplitude(emg []float64, startMs, endMs float64, scanRate int, method Method) (float64, error) {
	w, err := window(emg, startMs, endMs, scanRate)
	if err != nil {
		return 0, err
	}

	switch method {
	case MethodAverageRectified:
		return Mean(Rectify(w)), nil
	case MethodPeakToTrough:
		return Max(w) - Min(w), nil
	case MethodRMS:
		sum := 0.0
		for _, v := range w {
			sum += v * v
		}
		return math.Sqrt(sum / float64(len(w))), nil
	case MethodAverageUnrectified:
		return Mean(w), nil
	}
	return 0, fmt.Errorf("invalid method %q", method)
}
