// Package filters implements the spatial-domain stages of the defect pipeline:
// binning, Gaussian smoothing, Yen thresholding, binary morphology,
// contamination segmentation and masking.
//
// Every function returns a new image or mask and leaves its inputs untouched.
package filters

import "errors"

var (
	// ErrInvalidFactor is returned for binning factors below one
	ErrInvalidFactor = errors.New("binning factor must be at least 1")

	// ErrIndivisible is returned when image dimensions are not a multiple of
	// the binning factors and truncation is disabled
	ErrIndivisible = errors.New("image dimensions not divisible by binning factors")

	// ErrFullyMasked is returned when a mask leaves no pixel to average
	ErrFullyMasked = errors.New("mask covers every pixel")

	// ErrShapeMismatch is returned when an image and a mask disagree in size
	ErrShapeMismatch = errors.New("image and mask shapes differ")

	// ErrEmptyImage is returned for images without pixels
	ErrEmptyImage = errors.New("image has no pixels")
)
