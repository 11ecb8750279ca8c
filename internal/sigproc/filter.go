// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sigproc

import (
	"fmt"
	"math"
	"math/cmplx"
)

// BandpassFilter holds the transfer function coefficients of a designed
// Butterworth bandpass filter.
type BandpassFilter struct {
	B []float64 // numerator
	A []float64 // denominator, A[0] == 1
}

// NewButterBandpass designs a digital Butterworth bandpass filter via the
// analog prototype, lowpass-to-bandpass transform and bilinear transform.
// lowcut and highcut are in Hz, fs is the sampling rate in Hz.
func NewButterBandpass(lowcut, highcut, fs float64, order int) (*BandpassFilter, error) {
	if order < 1 {
		return nil, fmt.Errorf("filter order must be at least 1, got %d", order)
	}
	nyquist := fs / 2
	low := lowcut / nyquist
	high := highcut / nyquist
	if low <= 0 || high >= 1 || low >= high {
		return nil, fmt.Errorf("cutoffs (%g, %g) Hz out of range for sampling rate %g Hz", lowcut, highcut, fs)
	}

	// Pre-warp the band edges for the bilinear transform (internal fs = 2).
	const fs2 = 2.0
	warpedLow := 2 * fs2 * math.Tan(math.Pi*low/fs2)
	warpedHigh := 2 * fs2 * math.Tan(math.Pi*high/fs2)
	bw := warpedHigh - warpedLow
	wo := math.Sqrt(warpedLow * warpedHigh)

	// Analog lowpass prototype: order poles on the unit circle, no zeros.
	poles := make([]complex128, order)
	for k := 0; k < order; k++ {
		theta := math.Pi * float64(2*(k+1)+order-1) / float64(2*order)
		poles[k] = -cmplx.Exp(complex(0, theta))
	}
	gain := 1.0

	// Lowpass-to-bandpass: each pole splits into a conjugate pair, zeros
	// appear at s = 0, gain scales by bw^order.
	bpPoles := make([]complex128, 0, 2*order)
	for _, p := range poles {
		scaled := p * complex(bw/2, 0)
		d := cmplx.Sqrt(scaled*scaled - complex(wo*wo, 0))
		bpPoles = append(bpPoles, scaled+d, scaled-d)
	}
	bpZeros := make([]complex128, order) // zeros at s = 0
	gain *= math.Pow(bw, float64(order))

	// Bilinear transform into the z-domain.
	const fs4 = 2 * fs2
	zZeros := make([]complex128, 0, 2*order)
	numProd := complex(1, 0)
	for _, z := range bpZeros {
		zZeros = append(zZeros, (complex(fs4, 0)+z)/(complex(fs4, 0)-z))
		numProd *= complex(fs4, 0) - z
	}
	zPoles := make([]complex128, 0, 2*order)
	denProd := complex(1, 0)
	for _, p := range bpPoles {
		zPoles = append(zPoles, (complex(fs4, 0)+p)/(complex(fs4, 0)-p))
		denProd *= complex(fs4, 0) - p
	}
	// Degree difference maps to zeros at z = -1.
	for i := 0; i < len(bpPoles)-len(bpZeros); i++ {
		zZeros = append(zZeros, complex(-1, 0))
	}
	gain *= real(numProd / denProd)

	b := polyFromRoots(zZeros)
	for i := range b {
		b[i] *= gain
	}
	a := polyFromRoots(zPoles)

	return &BandpassFilter{B: b, A: a}, nil
}

// Apply runs zero-phase forward-backward filtering over x, matching the
// semantics of scipy's filtfilt with odd-reflection padding and steady-state
// initial conditions. x is not modified.
func (f *BandpassFilter) Apply(x []float64) ([]float64, error) {
	b, a := padCoeffs(f.B, f.A)
	n := len(a)
	edge := 3 * n // scipy filtfilt default padlen, 3*max(len(a), len(b))
	if len(x) <= edge {
		return nil, fmt.Errorf("trace of %d samples is too short for filter edge padding of %d", len(x), edge)
	}

	// Odd reflection about the end points reduces startup transients.
	ext := make([]float64, 0, len(x)+2*edge)
	for i := edge; i >= 1; i-- {
		ext = append(ext, 2*x[0]-x[i])
	}
	ext = append(ext, x...)
	for i := 1; i <= edge; i++ {
		ext = append(ext, 2*x[len(x)-1]-x[len(x)-1-i])
	}

	zi, err := steadyStateZI(b, a)
	if err != nil {
		return nil, err
	}

	forward := lfilter(b, a, ext, scale(zi, ext[0]))
	reverse(forward)
	backward := lfilter(b, a, forward, scale(zi, forward[0]))
	reverse(backward)

	out := make([]float64, len(x))
	copy(out, backward[edge:len(backward)-edge])
	return out, nil
}

// lfilter is a direct form II transposed IIR filter. b and a must have equal
// length with a[0] == 1; z holds the initial delay-line state (len(a)-1).
func lfilter(b, a, x, z []float64) []float64 {
	n := len(a)
	state := make([]float64, n-1)
	copy(state, z)

	y := make([]float64, len(x))
	for i, xv := range x {
		yv := b[0]*xv + state[0]
		for j := 1; j < n-1; j++ {
			state[j-1] = b[j]*xv + state[j] - a[j]*yv
		}
		state[n-2] = b[n-1]*xv - a[n-1]*yv
		y[i] = yv
	}
	return y
}

// steadyStateZI computes the initial filter state that makes the step
// response start at steady state (scipy lfilter_zi).
func steadyStateZI(b, a []float64) ([]float64, error) {
	n := len(a)
	m := n - 1

	// I - companion(a)^T
	sys := make([][]float64, m)
	for i := range sys {
		sys[i] = make([]float64, m)
		sys[i][i] = 1
	}
	for j := 0; j < m; j++ {
		sys[j][0] += a[j+1]
	}
	for i := 0; i < m-1; i++ {
		sys[i][i+1] -= 1
	}

	rhs := make([]float64, m)
	for i := 0; i < m; i++ {
		rhs[i] = b[i+1] - a[i+1]*b[0]
	}

	zi, err := solveLinear(sys, rhs)
	if err != nil {
		return nil, fmt.Errorf("filter initial conditions: %w", err)
	}
	return zi, nil
}

// solveLinear solves the square system a*x = b by Gaussian elimination with
// partial pivoting. a and b are modified.
func solveLinear(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-14 {
			return nil, fmt.Errorf("singular system at column %d", col)
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for row := col + 1; row < n; row++ {
			factor := a[row][col] / a[col][col]
			for k := col; k < n; k++ {
				a[row][k] -= factor * a[col][k]
			}
			b[row] -= factor * b[col]
		}
	}

	x := make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		sum := b[row]
		for k := row + 1; k < n; k++ {
			sum -= a[row][k] * x[k]
		}
		x[row] = sum / a[row][row]
	}
	return x, nil
}

// polyFromRoots expands prod(z - r_i) into real polynomial coefficients,
// highest power first. Complex roots must come in conjugate pairs.
func polyFromRoots(roots []complex128) []float64 {
	coeffs := []complex128{1}
	for _, r := range roots {
		next := make([]complex128, len(coeffs)+1)
		for i, c := range coeffs {
			next[i] += c
			next[i+1] -= c * r
		}
		coeffs = next
	}
	out := make([]float64, len(coeffs))
	for i, c := range coeffs {
		out[i] = real(c)
	}
	return out
}

func padCoeffs(b, a []float64) ([]float64, []float64) {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	bp := make([]float64, n)
	copy(bp, b)
	ap := make([]float64, n)
	copy(ap, a)
	return bp, ap
}

func scale(xs []float64, factor float64) []float64 {
	out := make([]float64, len(xs))
	for i, v := range xs {
		out[i] = v * factor
	}
	return out
}

func reverse(xs []float64) {
	for i, j := 0, len(xs)-1; i < j; i, j = i+1, j-1 {
		xs[i], xs[j] = xs[j], xs[i]
	}
}
