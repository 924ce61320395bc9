// Package visualization renders analysis results: gray-scale views of
// intermediate images and detection overlays.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"braggscan/internal/models"
	"braggscan/pkg/filters"
)

// Colors used by overlays
var (
	ContaminationTint = color.NRGBA{R: 255, A: 255}
	BlobColor         = color.NRGBA{R: 255, G: 255, A: 255}
	BrightBlobColor   = color.NRGBA{G: 255, B: 255, A: 255}
)

// tintStrength is how much of the contamination tint is blended into the gray value
const tintStrength = 0.4

// Grayscale maps the range of m linearly onto 8-bit gray. A constant matrix
// renders black.
func Grayscale(m *mat.Dense) *image.Gray {
	rows, cols := m.Dims()
	img := image.NewGray(image.Rect(0, 0, cols, rows))
	if rows == 0 || cols == 0 {
		return img
	}

	data := filters.Flatten(m)
	lo, hi := floats.Min(data), floats.Max(data)
	scale := 0.0
	if hi > lo {
		scale = 255 / (hi - lo)
	}

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((data[y*cols+x]-lo)*scale + 0.5)})
		}
	}
	return img
}

// Viewer draws the detections of one analyzed image
type Viewer struct {
	result *models.Result
}

// NewViewer creates a viewer for result. The result must carry the binned image.
func NewViewer(result *models.Result) (*Viewer, error) {
	if result == nil || result.Binned == nil {
		return nil, fmt.Errorf("result has no image to draw on")
	}
	rows, cols := result.Binned.Dims()
	m := result.Contamination
	if len(m.Pix) > 0 && (m.Rows != rows || m.Cols != cols) {
		return nil, fmt.Errorf("mask %dx%d does not match image %dx%d", m.Rows, m.Cols, rows, cols)
	}
	return &Viewer{result: result}, nil
}

// Overlay renders the binned image in gray with contaminated pixels tinted
// red and each blob outlined by a circle of its radius. Intensity dips are
// drawn in BlobColor and bumps in BrightBlobColor.
func (v *Viewer) Overlay() *image.NRGBA {
	gray := Grayscale(v.result.Binned)
	out := imaging.Clone(gray)

	mask := v.result.Contamination
	if len(mask.Pix) > 0 {
		for y := 0; y < mask.Rows; y++ {
			for x := 0; x < mask.Cols; x++ {
				if mask.At(y, x) {
					out.SetNRGBA(x, y, blend(out.NRGBAAt(x, y), ContaminationTint, tintStrength))
				}
			}
		}
	}

	for _, b := range v.result.Blobs {
		c := BlobColor
		if b.Bright {
			c = BrightBlobColor
		}
		drawCircle(out, b.Col, b.Row, b.Radius, c)
	}
	return out
}

// BlobRegion returns the overlay cropped to a square around blob i, margin
// pixels beyond its radius, and scaled up by zoom
func (v *Viewer) BlobRegion(i, margin, zoom int) (*image.NRGBA, error) {
	if err := v.checkRegion(i, zoom); err != nil {
		return nil, err
	}
	return blobRegion(v.Overlay(), v.result.Blobs[i], margin, zoom), nil
}

func (v *Viewer) checkRegion(i, zoom int) error {
	if i < 0 || i >= len(v.result.Blobs) {
		return fmt.Errorf("blob %d out of range [0, %d)", i, len(v.result.Blobs))
	}
	if zoom < 1 {
		return fmt.Errorf("zoom must be positive")
	}
	return nil
}

func blobRegion(overlay *image.NRGBA, b models.Blob, margin, zoom int) *image.NRGBA {
	half := int(math.Ceil(b.Radius)) + margin
	cx, cy := int(math.Round(b.Col)), int(math.Round(b.Row))
	region := imaging.Crop(overlay, image.Rect(cx-half, cy-half, cx+half+1, cy+half+1))
	if zoom == 1 {
		return region
	}
	bounds := region.Bounds()
	return imaging.Resize(region, bounds.Dx()*zoom, bounds.Dy()*zoom, imaging.NearestNeighbor)
}

// SaveOverlay writes the overlay to path; the format follows the extension
func (v *Viewer) SaveOverlay(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return imaging.Save(v.Overlay(), path)
}

// SaveBlobRegions writes one zoomed crop per blob to outputDir. Nothing is
// created when there are no blobs.
func (v *Viewer) SaveBlobRegions(outputDir string, margin, zoom int) error {
	if len(v.result.Blobs) == 0 {
		return nil
	}
	if err := v.checkRegion(0, zoom); err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	overlay := v.Overlay()
	for i, b := range v.result.Blobs {
		img := blobRegion(overlay, b, margin, zoom)
		filename := filepath.Join(outputDir, fmt.Sprintf("blob_%03d.png", i))
		if err := imaging.Save(img, filename); err != nil {
			return err
		}
	}

	return nil
}

func blend(base, tint color.NRGBA, alpha float64) color.NRGBA {
	mix := func(a, b uint8) uint8 {
		return uint8(math.Round(float64(a)*(1-alpha) + float64(b)*alpha))
	}
	return color.NRGBA{R: mix(base.R, tint.R), G: mix(base.G, tint.G), B: mix(base.B, tint.B), A: 255}
}

// drawCircle outlines a circle by sampling its circumference about once per pixel
func drawCircle(img *image.NRGBA, cx, cy, radius float64, c color.NRGBA) {
	bounds := img.Bounds()
	steps := max(int(2*math.Pi*radius*2), 8)
	for i := 0; i < steps; i++ {
		theta := 2 * math.Pi * float64(i) / float64(steps)
		x := int(math.Round(cx + radius*math.Cos(theta)))
		y := int(math.Round(cy + radius*math.Sin(theta)))
		if image.Pt(x, y).In(bounds) {
			img.SetNRGBA(x, y, c)
		}
	}
}
