package visualization

import (
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"braggscan/internal/models"
)

// createTestResult builds a 32x32 gradient with a contaminated corner and one blob
func createTestResult() *models.Result {
	img := mat.NewDense(32, 32, nil)
	img.Apply(func(r, c int, _ float64) float64 { return float64(c) }, img)

	mask := models.NewMask(32, 32)
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			mask.Set(r, c, true)
		}
	}

	return &models.Result{
		Rows:          32,
		Cols:          32,
		Binned:        img,
		Contamination: mask,
		Blobs:         []models.Blob{models.NewBlob(16, 16, 3, 0.5)},
	}
}

func TestGrayscale(t *testing.T) {
	g := Grayscale(mat.NewDense(1, 3, []float64{-1, 0, 1}))
	assert.Equal(t, uint8(0), g.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(128), g.GrayAt(1, 0).Y)
	assert.Equal(t, uint8(255), g.GrayAt(2, 0).Y)

	flat := Grayscale(mat.NewDense(2, 2, []float64{3, 3, 3, 3}))
	assert.Equal(t, uint8(0), flat.GrayAt(1, 1).Y)
}

func TestNewViewerValidates(t *testing.T) {
	_, err := NewViewer(nil)
	assert.Error(t, err)

	res := createTestResult()
	res.Contamination = models.NewMask(8, 8)
	_, err = NewViewer(res)
	assert.Error(t, err)
}

func TestOverlay(t *testing.T) {
	v, err := NewViewer(createTestResult())
	require.NoError(t, err)

	out := v.Overlay()
	require.Equal(t, 32, out.Bounds().Dx())
	require.Equal(t, 32, out.Bounds().Dy())

	// Contaminated pixels lean red, clean pixels stay gray
	tinted := out.NRGBAAt(1, 1)
	assert.Greater(t, tinted.R, tinted.G)
	clean := out.NRGBAAt(8, 28)
	assert.Equal(t, clean.R, clean.G)
	assert.Equal(t, clean.G, clean.B)

	// The blob circle passes through the point one radius to the right
	radius := 3 * 1.4142135623730951
	assert.Equal(t, BlobColor, out.NRGBAAt(16+int(radius+0.5), 16))
	assert.NotEqual(t, BlobColor, out.NRGBAAt(16, 16))
}

func TestBlobRegion(t *testing.T) {
	v, err := NewViewer(createTestResult())
	require.NoError(t, err)

	region, err := v.BlobRegion(0, 2, 3)
	require.NoError(t, err)
	// half = ceil(4.24) + 2 = 7, side = 15, zoomed x3
	assert.Equal(t, 45, region.Bounds().Dx())
	assert.Equal(t, 45, region.Bounds().Dy())

	_, err = v.BlobRegion(1, 2, 3)
	assert.Error(t, err)
	_, err = v.BlobRegion(0, 2, 0)
	assert.Error(t, err)
}

func TestSaveOverlayAndRegions(t *testing.T) {
	dir := t.TempDir()
	v, err := NewViewer(createTestResult())
	require.NoError(t, err)

	path := filepath.Join(dir, "overlays", "sample.png")
	require.NoError(t, v.SaveOverlay(path))

	img, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())

	require.NoError(t, v.SaveBlobRegions(filepath.Join(dir, "blobs"), 2, 2))
	assert.FileExists(t, filepath.Join(dir, "blobs", "blob_000.png"))
}

func TestBlend(t *testing.T) {
	got := blend(color.NRGBA{R: 100, G: 100, B: 100, A: 255}, ContaminationTint, 0.5)
	assert.Equal(t, color.NRGBA{R: 178, G: 50, B: 50, A: 255}, got)
}

func TestSaveBlobRegionsMatchesBlobRegion(t *testing.T) {
	res := createTestResult()
	dip := res.Blobs[0]
	bump := models.NewBlob(24, 8, 2, 0.3)
	bump.Bright = true
	res.Blobs = append(res.Blobs, bump)

	v, err := NewViewer(res)
	require.NoError(t, err)

	out := v.Overlay()
	assert.Equal(t, BlobColor, out.NRGBAAt(16+int(dip.Radius+0.5), 16))
	assert.Equal(t, BrightBlobColor, out.NRGBAAt(8+int(bump.Radius+0.5), 24))

	dir := t.TempDir()
	require.NoError(t, v.SaveBlobRegions(dir, 1, 2))

	for i, name := range []string{"blob_000.png", "blob_001.png"} {
		want, err := v.BlobRegion(i, 1, 2)
		require.NoError(t, err)

		saved, err := imaging.Open(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, want.Pix, imaging.Clone(saved).Pix, name)
	}

	assert.Error(t, v.SaveBlobRegions(dir, 1, 0))
}
