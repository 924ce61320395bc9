package models

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Point is an integer pixel coordinate, row first.
type Point struct {
	Row int `yaml:"row"`
	Col int `yaml:"col"`
}

// Peak is a local maximum found in an image or power spectrum
type Peak struct {
	Point `yaml:",inline"`

	// Intensity is the image value at the peak
	Intensity float64 `yaml:"intensity"`
}

// Blob is a candidate defect reported by the Laplacian-of-Gaussian detector
type Blob struct {
	// Row and Col locate the blob center in pixels
	Row float64 `yaml:"row"`
	Col float64 `yaml:"col"`

	// Sigma is the Gaussian scale at which the blob responded strongest
	Sigma float64 `yaml:"sigma"`

	// Radius is the approximate blob radius, sigma*sqrt(2)
	Radius float64 `yaml:"radius"`

	// Response is the scale-normalized LoG response at the blob center
	Response float64 `yaml:"response"`

	// Bright marks an intensity bump in the original image; otherwise the
	// blob is an intensity dip
	Bright bool `yaml:"bright"`
}

// NewBlob builds a blob from its center and scale
func NewBlob(row, col, sigma, response float64) Blob {
	return Blob{
		Row:      row,
		Col:      col,
		Sigma:    sigma,
		Radius:   sigma * math.Sqrt2,
		Response: response,
	}
}

// Mask is a 2-D boolean grid in row-major order. A true pixel is contaminated.
type Mask struct {
	Rows, Cols int
	Pix        []bool
}

// NewMask returns an all-false mask
func NewMask(rows, cols int) Mask {
	return Mask{Rows: rows, Cols: cols, Pix: make([]bool, rows*cols)}
}

// At reports whether pixel (r, c) is set
func (m Mask) At(r, c int) bool {
	return m.Pix[r*m.Cols+c]
}

// Set assigns pixel (r, c)
func (m Mask) Set(r, c int, v bool) {
	m.Pix[r*m.Cols+c] = v
}

// Count returns the number of set pixels
func (m Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v {
			n++
		}
	}
	return n
}

// Fraction returns the share of set pixels in [0, 1]
func (m Mask) Fraction() float64 {
	if len(m.Pix) == 0 {
		return 0
	}
	return float64(m.Count()) / float64(len(m.Pix))
}

// Clone returns a deep copy of the mask
func (m Mask) Clone() Mask {
	pix := make([]bool, len(m.Pix))
	copy(pix, m.Pix)
	return Mask{Rows: m.Rows, Cols: m.Cols, Pix: pix}
}

// Invert returns the complement of the mask
func (m Mask) Invert() Mask {
	out := NewMask(m.Rows, m.Cols)
	for i, v := range m.Pix {
		out.Pix[i] = !v
	}
	return out
}

// Result holds everything the pipeline reports for one image
type Result struct {
	// Path is the source file, or a name for in-memory images
	Path string

	// Rows and Cols are the dimensions after binning
	Rows, Cols int

	// Binned is the image the detections refer to
	Binned *mat.Dense

	// Threshold is the Yen threshold used for contamination, NaN if undefined
	Threshold float64

	// Spots are the selected first-order diffraction spots in centered spectrum coordinates
	Spots []Peak

	// Blobs are the detected defect candidates
	Blobs []Blob

	// Contamination marks contaminated pixels in the binned image
	Contamination Mask

	// ContaminatedFraction is Contamination.Fraction(), kept for reporting
	ContaminatedFraction float64

	// Duration is the wall time spent on the image
	Duration time.Duration
}
