// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sigproc implements the numeric transforms applied to EMG traces:
// bandpass filtering, rectification, windowed amplitude extraction and
// plateau-based M-max estimation.
package sigproc

import "fmt"

// Method selects how a reflex amplitude is computed over a latency window.
type Method string

const (
	MethodAverageRectified   Method = "average_rectified"
	MethodPeakToTrough       Method = "peak_to_trough"
	MethodRMS                Method = "rms"
	MethodAverageUnrectified Method = "average_unrectified"
)

// Methods lists all supported amplitude methods.
func Methods() []Method {
	return []Method{MethodAverageRectified, MethodPeakToTrough, MethodRMS, MethodAverageUnrectified}
}

// ParseMethod validates a method name.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodAverageRectified, MethodPeakToTrough, MethodRMS, MethodAverageUnrectified:
		return Method(s), nil
	}
	return "", fmt.Errorf("invalid method %q: must be one of average_rectified, peak_to_trough, rms, average_unrectified", s)
}
