package spectral

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"braggscan/internal/models"
)

// ErrImaginaryResidue is returned when a Bragg-filtered image keeps an
// imaginary part larger than the configured tolerance
var ErrImaginaryResidue = errors.New("bragg filter left a significant imaginary residue")

// maskFloor zeroes FFT round-off left in the passbands' stop regions
const maskFloor = 1e-9

// DiskKernel returns a rows x cols kernel holding ones on a disk of the given
// radius around the origin, wrapped so that convolving with it does not shift
// the signal.
func DiskKernel(rows, cols, radius int) *mat.Dense {
	kernel := mat.NewDense(rows, cols, nil)
	r2 := radius * radius
	for dr := -radius; dr <= radius; dr++ {
		for dc := -radius; dc <= radius; dc++ {
			if dr*dr+dc*dc > r2 {
				continue
			}
			kernel.Set(((dr%rows)+rows)%rows, ((dc%cols)+cols)%cols, 1)
		}
	}
	return kernel
}

// Convolve returns the circular convolution of two same-sized images via FFT
func Convolve(a, b *mat.Dense) *mat.Dense {
	rows, cols := a.Dims()
	fa := FFT2(a)
	fb := FFT2(b)
	for i := range fa {
		fa[i] *= fb[i]
	}
	IFFT2(fa, rows, cols)

	out := make([]float64, len(fa))
	for i, v := range fa {
		out[i] = real(v)
	}
	return mat.NewDense(rows, cols, out)
}

// Mirror returns the point reflection of p through the center of a centered
// rows x cols spectrum, i.e. the location of the conjugate frequency.
func Mirror(p models.Point, rows, cols int) models.Point {
	cr, cc := Center(rows, cols)
	return models.Point{
		Row: ((2*cr-p.Row)%rows + rows) % rows,
		Col: ((2*cc-p.Col)%cols + cols) % cols,
	}
}

// BraggMask builds a centered passband mask with a disk of the given radius
// around each spot. Spots outside the grid are ignored. When symmetric is set
// the conjugate of every spot is added too, which keeps the filtered image real.
func BraggMask(spots []models.Point, rows, cols, radius int, symmetric bool) *mat.Dense {
	impulses := mat.NewDense(rows, cols, nil)
	place := func(p models.Point) {
		if p.Row < 0 || p.Row >= rows || p.Col < 0 || p.Col >= cols {
			return
		}
		impulses.Set(p.Row, p.Col, 1)
	}
	for _, s := range spots {
		place(s)
		if symmetric {
			place(Mirror(s, rows, cols))
		}
	}

	mask := Convolve(impulses, DiskKernel(rows, cols, radius))
	mask.Apply(func(_, _ int, v float64) float64 {
		switch {
		case v < maskFloor:
			return 0
		case v > 1:
			return 1
		}
		return v
	}, mask)
	return mask
}

// BraggFilter keeps only the spectral components of img selected by the
// centered mask and returns the real part of the reconstruction.
//
// tolerance bounds the largest imaginary magnitude relative to the largest
// real magnitude of the output or input, whichever is larger; a
// non-positive tolerance disables the check.
func BraggFilter(img, mask *mat.Dense, tolerance float64) (*mat.Dense, error) {
	rows, cols := img.Dims()
	mr, mc := mask.Dims()
	if mr != rows || mc != cols {
		return nil, fmt.Errorf("mask %dx%d does not match image %dx%d", mr, mc, rows, cols)
	}

	coeffs := FFT2(img)
	weights := IFFTShift(denseData(mask), rows, cols)
	for i := range coeffs {
		coeffs[i] *= complex(weights[i], 0)
	}
	IFFT2(coeffs, rows, cols)

	out := make([]float64, len(coeffs))
	var maxReal, maxImag float64
	for i, v := range coeffs {
		out[i] = real(v)
		maxReal = math.Max(maxReal, math.Abs(real(v)))
		maxImag = math.Max(maxImag, math.Abs(imag(v)))
	}

	// A mask that rejects everything but round-off leaves nothing to compare
	// against, so the input magnitude bounds the reference from below.
	ref := math.Max(maxReal, maxAbs(img))
	if tolerance > 0 && ref > 0 && maxImag/ref > tolerance {
		return nil, fmt.Errorf("%w: %.3g relative to real part", ErrImaginaryResidue, maxImag/ref)
	}
	return mat.NewDense(rows, cols, out), nil
}

func denseData(m *mat.Dense) []float64 {
	rows, cols := m.Dims()
	out := make([]float64, 0, rows*cols)
	for r := 0; r < rows; r++ {
		out = append(out, m.RawRowView(r)...)
	}
	return out
}

func maxAbs(m *mat.Dense) float64 {
	var v float64
	rows, _ := m.Dims()
	for r := 0; r < rows; r++ {
		for _, x := range m.RawRowView(r) {
			v = math.Max(v, math.Abs(x))
		}
	}
	return v
}
