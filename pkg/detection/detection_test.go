package detection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"braggscan/internal/models"
	"braggscan/pkg/filters"
)

// impulse is a synthetic spot of known amplitude
type impulse struct {
	row, col  int
	amplitude float64
}

// sevenSpots mimics a hexagonal spectrum: a strong DC peak plus six
// first-order spots of distinct amplitudes
var sevenSpots = []impulse{
	{32, 32, 100},
	{32, 44, 9},
	{32, 20, 8},
	{42, 38, 7},
	{22, 26, 6},
	{42, 26, 5},
	{22, 38, 4},
}

func impulseImage(rows, cols int, spots []impulse) *mat.Dense {
	img := mat.NewDense(rows, cols, nil)
	for _, s := range spots {
		img.Set(s.row, s.col, s.amplitude)
	}
	return img
}

func gaussianBlob(rows, cols int, row, col, sigma, amplitude float64) *mat.Dense {
	img := mat.NewDense(rows, cols, nil)
	img.Apply(func(r, c int, _ float64) float64 {
		dr, dc := float64(r)-row, float64(c)-col
		return amplitude * math.Exp(-(dr*dr+dc*dc)/(2*sigma*sigma))
	}, img)
	return img
}

func TestPeakLocalMaxOrdersByIntensity(t *testing.T) {
	img := impulseImage(64, 64, sevenSpots)

	peaks := PeakLocalMax(img, PeakParams{MinDistance: 3, ExcludeBorder: 3})
	require.Len(t, peaks, 7)

	for i, s := range sevenSpots {
		assert.Equal(t, models.Point{Row: s.row, Col: s.col}, peaks[i].Point)
		assert.Equal(t, s.amplitude, peaks[i].Intensity)
	}
}

func TestSelectSpotsDropsStrongest(t *testing.T) {
	for _, blur := range []float64{0, 1.5} {
		img := filters.Gaussian(impulseImage(64, 64, sevenSpots), blur)

		peaks := PeakLocalMax(img, PeakParams{MinDistance: 4, ExcludeBorder: 4})
		spots := SelectSpots(peaks, 6, SuppressStrongest, models.Point{Row: 32, Col: 32})
		require.Len(t, spots, 6, "blur %.1f", blur)

		for i, s := range sevenSpots[1:] {
			assert.InDelta(t, s.row, spots[i].Row, 1, "blur %.1f spot %d", blur, i)
			assert.InDelta(t, s.col, spots[i].Col, 1, "blur %.1f spot %d", blur, i)
		}
	}
}

func TestSelectSpotsCenterPolicy(t *testing.T) {
	// A first-order spot brighter than the DC peak
	spots := []impulse{
		{32, 44, 200},
		{32, 32, 100},
		{32, 20, 50},
	}
	peaks := PeakLocalMax(impulseImage(64, 64, spots), PeakParams{MinDistance: 3})

	strongest := SelectSpots(peaks, 6, SuppressStrongest, models.Point{Row: 32, Col: 32})
	assert.Equal(t, []models.Point{{Row: 32, Col: 32}, {Row: 32, Col: 20}}, Points(strongest))

	center := SelectSpots(peaks, 6, SuppressCenter, models.Point{Row: 32, Col: 32})
	assert.Equal(t, []models.Point{{Row: 32, Col: 44}, {Row: 32, Col: 20}}, Points(center))
}

func TestSelectSpotsFewerThanRequested(t *testing.T) {
	peaks := []models.Peak{
		{Point: models.Point{Row: 1, Col: 1}, Intensity: 1},
		{Point: models.Point{Row: 5, Col: 5}, Intensity: 3},
	}

	spots := SelectSpots(peaks, 12, SuppressStrongest, models.Point{})
	require.Len(t, spots, 1)
	assert.Equal(t, models.Point{Row: 1, Col: 1}, spots[0].Point)

	assert.Empty(t, SelectSpots(nil, 6, SuppressStrongest, models.Point{}))
}

func TestParseDCPolicy(t *testing.T) {
	p, err := ParseDCPolicy("Center")
	require.NoError(t, err)
	assert.Equal(t, SuppressCenter, p)

	p, err = ParseDCPolicy("")
	require.NoError(t, err)
	assert.Equal(t, SuppressStrongest, p)

	_, err = ParseDCPolicy("weakest")
	assert.Error(t, err)
}

func TestPeakLocalMaxSpacing(t *testing.T) {
	img := impulseImage(32, 32, []impulse{
		{10, 10, 5},
		{10, 13, 4}, // within MinDistance of the stronger peak
		{20, 20, 3},
	})

	peaks := PeakLocalMax(img, PeakParams{MinDistance: 2})
	assert.Equal(t, []models.Point{{Row: 10, Col: 10}, {Row: 10, Col: 13}, {Row: 20, Col: 20}}, Points(peaks))

	peaks = PeakLocalMax(img, PeakParams{MinDistance: 3})
	assert.Equal(t, []models.Point{{Row: 10, Col: 10}, {Row: 20, Col: 20}}, Points(peaks))
}

func TestPeakLocalMaxThresholdAndLimit(t *testing.T) {
	img := impulseImage(32, 32, []impulse{
		{8, 8, 10},
		{16, 16, 6},
		{24, 24, 2},
	})

	peaks := PeakLocalMax(img, PeakParams{MinDistance: 2, ThresholdRel: 0.5})
	assert.Len(t, peaks, 2)

	peaks = PeakLocalMax(img, PeakParams{MinDistance: 2, NumPeaks: 1})
	require.Len(t, peaks, 1)
	assert.Equal(t, 10.0, peaks[0].Intensity)

	peaks = PeakLocalMax(img, PeakParams{MinDistance: 2, ExcludeBorder: 9})
	assert.Equal(t, []models.Point{{Row: 16, Col: 16}}, Points(peaks))
}

func TestPeakLocalMaxFlatImage(t *testing.T) {
	img := mat.NewDense(16, 16, nil)
	assert.Empty(t, PeakLocalMax(img, PeakParams{MinDistance: 2}))
}

func TestBlobLoGSingleBlob(t *testing.T) {
	img := gaussianBlob(64, 64, 30, 40, 3, 1)

	blobs := BlobLoG(img, BlobParams{
		MinSigma:  1,
		MaxSigma:  6,
		NumSigma:  11,
		Threshold: 0.1,
		Overlap:   0.5,
	})
	require.Len(t, blobs, 1)

	b := blobs[0]
	assert.InDelta(t, 30, b.Row, 1)
	assert.InDelta(t, 40, b.Col, 1)
	assert.InDelta(t, 3, b.Sigma, 0.5)
	assert.InDelta(t, b.Sigma*math.Sqrt2, b.Radius, 1e-12)
	assert.InDelta(t, 0.5, b.Response, 0.05)
}

func TestBlobLoGTwoBlobs(t *testing.T) {
	img := gaussianBlob(64, 64, 16, 16, 2, 1)
	img.Add(img, gaussianBlob(64, 64, 46, 48, 2, 0.6))

	blobs := BlobLoG(img, BlobParams{MinSigma: 1, MaxSigma: 4, NumSigma: 7, Threshold: 0.1, Overlap: 0.5})
	require.Len(t, blobs, 2)
	assert.InDelta(t, 16, blobs[0].Row, 1)
	assert.InDelta(t, 46, blobs[1].Row, 1)
}

func TestBlobLoGBorderAndThreshold(t *testing.T) {
	img := gaussianBlob(48, 48, 8, 24, 2, 1)
	params := BlobParams{MinSigma: 1, MaxSigma: 3, NumSigma: 5, Threshold: 0.1, Overlap: 0.5}

	assert.Len(t, BlobLoG(img, params), 1)

	params.ExcludeBorder = 9
	assert.Empty(t, BlobLoG(img, params))

	params.ExcludeBorder = 0
	params.Threshold = 0.9
	assert.Empty(t, BlobLoG(img, params))
}

func TestBlobLoGFlatImage(t *testing.T) {
	img := mat.NewDense(32, 32, nil)
	assert.Empty(t, BlobLoG(img, BlobParams{MinSigma: 1, MaxSigma: 3, NumSigma: 3, Threshold: 0.01, Overlap: 0.5}))
}

func TestBlobOverlap(t *testing.T) {
	a := models.NewBlob(10, 10, 2, 1)

	assert.Equal(t, 1.0, blobOverlap(a, a))
	assert.Equal(t, 0.0, blobOverlap(a, models.NewBlob(30, 30, 2, 1)))
	assert.Equal(t, 1.0, blobOverlap(a, models.NewBlob(10, 11, 4, 1)), "small disk inside the large one")

	half := blobOverlap(a, models.NewBlob(10, 12, 2, 1))
	assert.Greater(t, half, 0.0)
	assert.Less(t, half, 1.0)
}

func TestPruneBlobsKeepsLarger(t *testing.T) {
	blobs := []models.Blob{
		models.NewBlob(10, 10, 2, 0.9),
		models.NewBlob(10, 11, 3, 0.5),
		models.NewBlob(40, 40, 2, 0.4),
	}

	kept := pruneBlobs(blobs, 0.5, 3)
	require.Len(t, kept, 2)
	assert.Equal(t, 3.0, kept[0].Sigma)
	assert.Equal(t, 40.0, kept[1].Row)
}

func TestScales(t *testing.T) {
	assert.Equal(t, []float64{1, 2, 3}, BlobParams{MinSigma: 1, MaxSigma: 3, NumSigma: 3}.Scales())
	assert.Equal(t, []float64{2}, BlobParams{MinSigma: 2, MaxSigma: 2, NumSigma: 5}.Scales())
}

func TestParsePolarity(t *testing.T) {
	for name, want := range map[string]Polarity{
		"":       PolarityBoth,
		"both":   PolarityBoth,
		" Dark ": PolarityDark,
		"BRIGHT": PolarityBright,
	} {
		p, err := ParsePolarity(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, p, name)
	}

	_, err := ParsePolarity("grey")
	assert.Error(t, err)
}

func TestFindDefectsPolarity(t *testing.T) {
	// A dip in the original leaves a positive residual, a bump a negative one
	residual := gaussianBlob(64, 64, 16, 16, 2, 1)
	residual.Sub(residual, gaussianBlob(64, 64, 46, 48, 2, 0.8))
	params := BlobParams{MinSigma: 1, MaxSigma: 4, NumSigma: 7, Threshold: 0.1, Overlap: 0.5}

	dark := FindDefects(residual, params, PolarityDark)
	require.Len(t, dark, 1)
	assert.InDelta(t, 16, dark[0].Row, 1)
	assert.False(t, dark[0].Bright)

	bright := FindDefects(residual, params, PolarityBright)
	require.Len(t, bright, 1)
	assert.InDelta(t, 46, bright[0].Row, 1)
	assert.InDelta(t, 48, bright[0].Col, 1)
	assert.True(t, bright[0].Bright)

	both := FindDefects(residual, params, PolarityBoth)
	require.Len(t, both, 2)
	assert.False(t, both[0].Bright, "stronger blob first")
	assert.True(t, both[1].Bright)
	assert.Greater(t, both[0].Response, both[1].Response)
}
