package sigproc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmplitudeMethods(t *testing.T) {
	// 10 kHz scan rate: 1 ms covers 10 samples.
	const scanRate = 10000
	emg := []float64{1, -1, 2, -2, 3, -3, 4, -4, 5, -5}

	tests := []struct {
		method Method
		want   float64
	}{
		{MethodAverageRectified, 3.0},
		{MethodPeakToTrough, 10.0},
		{MethodAverageUnrectified, 0.0},
		{MethodRMS, math.Sqrt(11.0)},
	}
	for _, tc := range tests {
		t.Run(string(tc.method), func(t *testing.T) {
			got, err := Amplitude(emg, 0, 1, scanRate, tc.method)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-12)
		})
	}
}

func TestAmplitudeWindowing(t *testing.T) {
	const scanRate = 1000 // 1 sample per ms
	emg := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	// [2ms, 5ms) selects samples 2, 3, 4.
	got, err := Amplitude(emg, 2, 5, scanRate, MethodAverageUnrectified)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, got, 1e-12)

	// End past the trace clamps to the trace length.
	got, err = Amplitude(emg, 8, 50, scanRate, MethodAverageUnrectified)
	require.NoError(t, err)
	assert.InDelta(t, 8.5, got, 1e-12)
}

func TestAmplitudeEmptyWindow(t *testing.T) {
	emg := []float64{1, 2, 3}
	_, err := Amplitude(emg, 5, 5, 1000, MethodRMS)
	assert.Error(t, err)

	_, err = Amplitude(emg, 100, 200, 1000, MethodRMS)
	assert.Error(t, err)
}

func TestAmplitudeInvalidMethod(t *testing.T) {
	_, err := Amplitude([]float64{1, 2, 3}, 0, 3, 1000, Method("bogus"))
	assert.Error(t, err)
}

func TestRectify(t *testing.T) {
	got := Rectify([]float64{-1, 0, 2.5, -3})
	assert.Equal(t, []float64{1, 0, 2.5, 3}, got)
}

func TestBaselineCorrect(t *testing.T) {
	const scanRate = 1000
	// Channel with a +2 offset over the first 4 ms of baseline.
	ch := []float64{2, 2, 2, 2, 5, -1, 2, 2}
	out := BaselineCorrect([][]float64{ch}, scanRate, 4)

	require.Len(t, out, 1)
	assert.InDelta(t, 0.0, out[0][0], 1e-12)
	assert.InDelta(t, 3.0, out[0][4], 1e-12)
	assert.InDelta(t, -3.0, out[0][5], 1e-12)

	// Input must be untouched.
	assert.Equal(t, 2.0, ch[0])
}

func TestParseMethod(t *testing.T) {
	for _, m := range Methods() {
		got, err := ParseMethod(string(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMethod("median")
	assert.Error(t, err)
}
