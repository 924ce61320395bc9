package filters

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"braggscan/internal/models"
)

// SegmentParams controls contamination segmentation
type SegmentParams struct {
	// Sigma of the Gaussian applied before thresholding
	Sigma float64

	// MinArea is the smallest object or hole, in pixels, that survives cleanup
	MinArea int

	// DilationRadius grows the final mask by a disk of this radius
	DilationRadius int
}

// Segment finds bright contamination in img.
//
// The image is smoothed, thresholded with Yen's method, cleaned of small
// holes and objects, and dilated. The threshold is returned alongside the
// mask; for a constant image it is NaN and the mask is empty.
func Segment(img *mat.Dense, p SegmentParams) (models.Mask, float64) {
	rows, cols := img.Dims()
	smoothed := Gaussian(img, p.Sigma)

	threshold, ok := YenThreshold(smoothed)
	if !ok {
		return models.NewMask(rows, cols), math.NaN()
	}

	mask := Binarize(smoothed, threshold)
	mask = RemoveSmallHoles(mask, p.MinArea)
	mask = RemoveSmallObjects(mask, p.MinArea)
	mask = Dilate(mask, p.DilationRadius)

	return mask, threshold
}

// ApplyMask replaces masked pixels with the mean of the unmasked ones.
// A mask with no set pixel yields an exact copy.
func ApplyMask(img *mat.Dense, mask models.Mask) (*mat.Dense, error) {
	rows, cols := img.Dims()
	if mask.Rows != rows || mask.Cols != cols {
		return nil, fmt.Errorf("%w: image %dx%d, mask %dx%d", ErrShapeMismatch, rows, cols, mask.Rows, mask.Cols)
	}

	data := Flatten(img)
	clean := make([]float64, 0, len(data))
	for i, v := range data {
		if !mask.Pix[i] {
			clean = append(clean, v)
		}
	}

	if len(clean) == len(data) {
		return mat.NewDense(rows, cols, data), nil
	}
	if len(clean) == 0 {
		return nil, ErrFullyMasked
	}

	mean := stat.Mean(clean, nil)
	for i := range data {
		if mask.Pix[i] {
			data[i] = mean
		}
	}
	return mat.NewDense(rows, cols, data), nil
}
