// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sigproc

import (
	"errors"

	"github.com/ManuGH/monstim/internal/log"
)

// ErrNoCalculableMMax is returned when no plateau region can be found in a
// reflex curve, even at the minimum window size.
var ErrNoCalculableMMax = errors.New("no calculable M-max, try adjusting the threshold values")

// DetectPlateau finds the plateau region of a reflex curve by sliding a
// window over the smoothed amplitudes and requiring the standard deviation
// inside the window to stay below threshold. The detected run must extend to
// the end of the sweep; any unstable window resets it. When no plateau is
// found the window shrinks by one and detection retries, down to
// minWindowSize. Returns the start and end indices, or ok=false.
func DetectPlateau(y []float64, maxWindowSize, minWindowSize int, threshold float64) (start, end int, ok bool) {
	smoothed := SmoothReflexCurve(y)

	for window := maxWindowSize; window >= minWindowSize; window-- {
		startIdx, endIdx := -1, -1
		for i := 0; i < len(smoothed)-window; i++ {
			if Std(smoothed[i:i+window]) < threshold {
				if startIdx < 0 {
					startIdx = i
				}
				endIdx = i + window
			} else {
				startIdx, endIdx = -1, -1
			}
		}
		if startIdx >= 0 && endIdx >= 0 {
			logger := log.WithComponent("sigproc")
			logger.Debug().
				Str("event", "plateau.detected").
				Int("window_size", window).
				Float64("threshold", threshold).
				Msg("plateau region detected")
			return startIdx, endIdx, true
		}
	}
	return 0, 0, false
}

// MMaxResult holds the estimated maximum M-wave amplitude and the stimulus
// range of the plateau it was derived from.
type MMaxResult struct {
	MMax      float64 `json:"mmax"`
	StimStart float64 `json:"stim_start_v"`
	StimEnd   float64 `json:"stim_end_v"`
}

// AvgMMax estimates the maximum M-wave amplitude from a reflex curve as the
// mean of the plateau region. If the plateau mean undershoots the curve
// maximum, the estimate is corrected by the average excess of the
// above-plateau amplitudes over the sub-maximal plateau amplitudes.
func AvgMMax(stimulusVoltages, mWaveAmplitudes []float64, maxWindowSize, minWindowSize int, threshold float64) (MMaxResult, error) {
	start, end, ok := DetectPlateau(mWaveAmplitudes, maxWindowSize, minWindowSize, threshold)
	if !ok {
		return MMaxResult{}, ErrNoCalculableMMax
	}

	plateau := mWaveAmplitudes[start:end]
	mMax := Mean(plateau)

	if curveMax := Max(mWaveAmplitudes); mMax < curveMax {
		var above []float64
		for _, v := range mWaveAmplitudes {
			if v > mMax {
				above = append(above, v)
			}
		}
		plateauMax := Max(plateau)
		var below []float64
		for _, v := range plateau {
			if v < plateauMax {
				below = append(below, v)
			}
		}
		if len(above) > 0 && len(below) > 0 {
			mMax += Mean(above) - Mean(below)
		}
	}

	return MMaxResult{
		MMax:      mMax,
		StimStart: stimulusVoltages[start],
		StimEnd:   stimulusVoltages[end],
	}, nil
}
