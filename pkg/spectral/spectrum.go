// Package spectral holds the Fourier-domain stages of the defect pipeline:
// windowing, power spectra, Bragg mask construction and Bragg filtering.
//
// Spectra and Bragg masks use the centered convention, zero frequency at
// (rows/2, cols/2), unless a function says otherwise.
package spectral

import (
	"fmt"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/mat"
)

// WindowType names an edge-tapering window
type WindowType string

const (
	WindowNone     WindowType = "none"
	WindowHann     WindowType = "hann"
	WindowHamming  WindowType = "hamming"
	WindowBlackman WindowType = "blackman"
)

// ParseWindow validates a window name, case-insensitively
func ParseWindow(name string) (WindowType, error) {
	w := WindowType(strings.ToLower(strings.TrimSpace(name)))
	switch w {
	case WindowNone, WindowHann, WindowHamming, WindowBlackman:
		return w, nil
	case "":
		return WindowNone, nil
	}
	return "", fmt.Errorf("unknown window type %q", name)
}

func windowFunc(w WindowType) func([]float64) []float64 {
	switch w {
	case WindowHann:
		return window.Hann
	case WindowHamming:
		return window.Hamming
	case WindowBlackman:
		return window.Blackman
	}
	return window.Rectangular
}

// profile returns the 1-D window weights of length n
func profile(w WindowType, n int) []float64 {
	seq := make([]float64, n)
	for i := range seq {
		seq[i] = 1
	}
	if n < 2 {
		return seq
	}
	return windowFunc(w)(seq)
}

// ApplyWindow multiplies img by the separable 2-D window w(r)*w(c)
func ApplyWindow(img *mat.Dense, w WindowType) *mat.Dense {
	rows, cols := img.Dims()
	rw := profile(w, rows)
	cw := profile(w, cols)

	out := mat.NewDense(rows, cols, nil)
	out.Apply(func(r, c int, v float64) float64 {
		return v * rw[r] * cw[c]
	}, img)
	return out
}

// PowerSpectrum returns |FFT2(img)| with the zero frequency moved to the center
func PowerSpectrum(img *mat.Dense) *mat.Dense {
	rows, cols := img.Dims()
	coeffs := FFTShift(FFT2(img), rows, cols)

	mag := make([]float64, len(coeffs))
	for i, c := range coeffs {
		mag[i] = cmplx.Abs(c)
	}
	return mat.NewDense(rows, cols, mag)
}

// Center returns the location of the zero frequency in a centered spectrum
func Center(rows, cols int) (int, int) {
	return rows / 2, cols / 2
}
