package sigproc

// SmoothReflexCurve applies Savitzky-Golay smoothing to a reflex curve. The
// window spans 25% of the curve length and the polynomial order is capped at
// three. Short curves are returned unsmoothed.
func SmoothReflexCurve(y []float64) []float64 {
	window := len(y) * 25 / 100
	if window%2 == 0 {
		window--
	}
	if window < 3 {
		out := make([]float64, len(y))
		copy(out, y)
		return out
	}
	polyorder := 3
	if window-1 < polyorder {
		polyorder = window - 1
	}
	return savgol(y, window, polyorder)
}

// savgol fits a least-squares polynomial over a sliding window and evaluates
// it at each sample. Near the ends the window is clamped to stay in bounds and
// the fitted polynomial is evaluated off-center, which matches interpolating
// edge handling.
func savgol(y []float64, window, polyorder int) []float64 {
	n := len(y)
	half := window / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		start := i - half
		if start < 0 {
			start = 0
		}
		if start > n-window {
			start = n - window
		}
		out[i] = polyfitEval(y[start:start+window], polyorder, float64(i-start))
	}
	return out
}

// polyfitEval fits a polynomial of the given order to w (sampled at
// x = 0..len(w)-1) via normal equations and evaluates it at pos.
func polyfitEval(w []float64, order int, pos float64) float64 {
	terms := order + 1

	// A^T A and A^T y for the Vandermonde matrix A[i][j] = i^j.
	ata := make([][]float64, terms)
	for r := range ata {
		ata[r] = make([]float64, terms)
	}
	aty := make([]float64, terms)
	for i, v := range w {
		x := float64(i)
		pow := make([]float64, terms)
		pow[0] = 1
		for j := 1; j < terms; j++ {
			pow[j] = pow[j-1] * x
		}
		for r := 0; r < terms; r++ {
			for c := 0; c < terms; c++ {
				ata[r][c] += pow[r] * pow[c]
			}
			aty[r] += pow[r] * v
		}
	}

	coeffs, err := solveLinear(ata, aty)
	if err != nil {
		// Degenerate window, fall back to the raw sample.
		return w[int(pos)]
	}

	val := 0.0
	xp := 1.0
	for _, c := range coeffs {
		val += c * xp
		xp *= pos
	}
	return val
}
