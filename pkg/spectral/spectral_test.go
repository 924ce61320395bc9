package spectral

import (
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"braggscan/internal/models"
)

func createTestImage(rows, cols int, pattern func(r, c int) float64) *mat.Dense {
	img := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			img.Set(r, c, pattern(r, c))
		}
	}
	return img
}

func randomImage(rows, cols int, seed int64) *mat.Dense {
	rng := rand.New(rand.NewSource(seed))
	return createTestImage(rows, cols, func(int, int) float64 { return rng.Float64() })
}

// cosineLattice is a sum of two cosines with period rows/fr and cols/fc
func cosineLattice(rows, cols, fr, fc int, offset float64) *mat.Dense {
	return createTestImage(rows, cols, func(r, c int) float64 {
		return offset +
			math.Cos(2*math.Pi*float64(fr*r)/float64(rows)) +
			math.Cos(2*math.Pi*float64(fc*c)/float64(cols))
	})
}

func TestFFT2MatchesDFT(t *testing.T) {
	const rows, cols = 3, 4
	img := randomImage(rows, cols, 1)
	got := FFT2(img)

	for u := 0; u < rows; u++ {
		for v := 0; v < cols; v++ {
			var want complex128
			for r := 0; r < rows; r++ {
				for c := 0; c < cols; c++ {
					phase := -2 * math.Pi * (float64(u*r)/rows + float64(v*c)/cols)
					want += complex(img.At(r, c), 0) * cmplx.Exp(complex(0, phase))
				}
			}
			assert.InDelta(t, real(want), real(got[u*cols+v]), 1e-9)
			assert.InDelta(t, imag(want), imag(got[u*cols+v]), 1e-9)
		}
	}
}

func TestFFTRoundTrip(t *testing.T) {
	for _, size := range [][2]int{{8, 8}, {6, 9}, {7, 5}} {
		rows, cols := size[0], size[1]
		img := randomImage(rows, cols, int64(rows*cols))

		coeffs := FFT2(img)
		IFFT2(coeffs, rows, cols)

		for i, v := range coeffs {
			assert.InDelta(t, img.At(i/cols, i%cols), real(v), 1e-10)
			assert.InDelta(t, 0, imag(v), 1e-10)
		}
	}
}

func TestShiftsAreInverse(t *testing.T) {
	for _, size := range [][2]int{{4, 6}, {5, 7}} {
		rows, cols := size[0], size[1]
		data := make([]int, rows*cols)
		for i := range data {
			data[i] = i
		}

		shifted := FFTShift(data, rows, cols)
		assert.Equal(t, 0, shifted[(rows/2)*cols+cols/2], "zero frequency moves to the center")
		assert.Equal(t, data, IFFTShift(shifted, rows, cols))
	}
}

func TestPowerSpectrumZeroImage(t *testing.T) {
	spec := PowerSpectrum(mat.NewDense(16, 16, nil))
	assert.Zero(t, floats.Max(spec.RawMatrix().Data))
}

func TestPowerSpectrumDCAtCenter(t *testing.T) {
	for _, size := range [][2]int{{16, 16}, {15, 20}} {
		rows, cols := size[0], size[1]
		spec := PowerSpectrum(createTestImage(rows, cols, func(int, int) float64 { return 2 }))

		cr, cc := Center(rows, cols)
		assert.InDelta(t, 2*float64(rows*cols), spec.At(cr, cc), 1e-9)

		spec.Set(cr, cc, 0)
		assert.InDelta(t, 0, floats.Max(spec.RawMatrix().Data), 1e-9)
	}
}

func TestPowerSpectrumShiftInvariance(t *testing.T) {
	img := randomImage(12, 10, 7)
	shifted := mat.NewDense(12, 10, nil)
	shifted.Apply(func(_, _ int, v float64) float64 { return v + 5 }, img)

	a := PowerSpectrum(img)
	b := PowerSpectrum(shifted)
	cr, cc := Center(12, 10)
	for r := 0; r < 12; r++ {
		for c := 0; c < 10; c++ {
			if r == cr && c == cc {
				assert.NotEqual(t, a.At(r, c), b.At(r, c))
				continue
			}
			assert.InDelta(t, a.At(r, c), b.At(r, c), 1e-9)
		}
	}
}

func TestApplyWindow(t *testing.T) {
	img := createTestImage(9, 9, func(int, int) float64 { return 1 })

	hann := ApplyWindow(img, WindowHann)
	assert.InDelta(t, 0, hann.At(0, 4), 1e-12)
	assert.InDelta(t, 1, hann.At(4, 4), 1e-12)

	none := ApplyWindow(img, WindowNone)
	assert.True(t, mat.Equal(img, none))
}

func TestParseWindow(t *testing.T) {
	w, err := ParseWindow(" Hann ")
	require.NoError(t, err)
	assert.Equal(t, WindowHann, w)

	w, err = ParseWindow("")
	require.NoError(t, err)
	assert.Equal(t, WindowNone, w)

	_, err = ParseWindow("kaiser")
	assert.Error(t, err)
}

func TestBraggMaskDisks(t *testing.T) {
	spots := []models.Point{{Row: 10, Col: 12}}

	mask := BraggMask(spots, 32, 32, 2, false)
	assert.InDelta(t, 13, floats.Sum(mask.RawMatrix().Data), 1e-9)
	assert.InDelta(t, 1, mask.At(10, 12), 1e-9)
	assert.InDelta(t, 1, mask.At(12, 12), 1e-9)
	assert.Zero(t, mask.At(13, 12))

	sym := BraggMask(spots, 32, 32, 2, true)
	assert.InDelta(t, 26, floats.Sum(sym.RawMatrix().Data), 1e-9)
	assert.InDelta(t, 1, sym.At(22, 20), 1e-9)
}

func TestBraggMaskIgnoresOutOfRange(t *testing.T) {
	mask := BraggMask([]models.Point{{Row: -1, Col: 3}, {Row: 3, Col: 40}}, 16, 16, 1, false)
	assert.Zero(t, floats.Sum(mask.RawMatrix().Data))
}

func TestMirror(t *testing.T) {
	assert.Equal(t, models.Point{Row: 12, Col: 6}, Mirror(models.Point{Row: 4, Col: 10}, 16, 16))
	// Odd sizes mirror through floor(n/2)
	assert.Equal(t, models.Point{Row: 2, Col: 4}, Mirror(models.Point{Row: 2, Col: 0}, 5, 5))
}

func TestBraggFilterAllPass(t *testing.T) {
	img := randomImage(20, 14, 3)
	ones := createTestImage(20, 14, func(int, int) float64 { return 1 })

	filtered, err := BraggFilter(img, ones, 1e-6)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(img, filtered, 1e-10))
}

func TestBraggFilterKeepsLattice(t *testing.T) {
	const n = 32
	img := cosineLattice(n, n, 4, 4, 3)
	cr, cc := Center(n, n)
	spots := []models.Point{{Row: cr + 4, Col: cc}, {Row: cr, Col: cc + 4}}

	filtered, err := BraggFilter(img, BraggMask(spots, n, n, 1, true), 1e-6)
	require.NoError(t, err)

	want := cosineLattice(n, n, 4, 4, 0)
	assert.True(t, mat.EqualApprox(want, filtered, 1e-9))
}

func TestBraggFilterImaginaryResidue(t *testing.T) {
	const n = 32
	img := cosineLattice(n, n, 4, 4, 0)
	cr, cc := Center(n, n)

	mask := BraggMask([]models.Point{{Row: cr + 4, Col: cc}}, n, n, 1, false)
	_, err := BraggFilter(img, mask, 1e-6)
	assert.ErrorIs(t, err, ErrImaginaryResidue)

	_, err = BraggFilter(img, mask, 0)
	assert.NoError(t, err)
}

func TestConvolveDelta(t *testing.T) {
	img := randomImage(8, 8, 11)
	delta := mat.NewDense(8, 8, nil)
	delta.Set(0, 0, 1)

	assert.True(t, mat.EqualApprox(img, Convolve(img, delta), 1e-12))
}
