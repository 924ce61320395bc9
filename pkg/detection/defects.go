package detection

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"braggscan/internal/models"
)

// Polarity selects which lattice defects are reported, by how they look in
// the original image.
//
// The residual is the Bragg-filtered image minus the original, so an
// intensity dip (vacancy) is a bright residual blob and an intensity bump
// (adatom) is a dark one.
type Polarity string

const (
	PolarityDark   Polarity = "dark"
	PolarityBright Polarity = "bright"
	PolarityBoth   Polarity = "both"
)

// ParsePolarity validates a polarity name
func ParsePolarity(name string) (Polarity, error) {
	p := Polarity(strings.ToLower(strings.TrimSpace(name)))
	switch p {
	case PolarityDark, PolarityBright, PolarityBoth:
		return p, nil
	case "":
		return PolarityBoth, nil
	}
	return "", fmt.Errorf("unknown blob polarity %q", name)
}

// FindDefects runs BlobLoG on residual for the requested polarity. With
// PolarityBoth the two blob sets are merged, pruned for overlap across signs
// and ordered by descending response. Blobs found on the negated residual
// are marked Bright.
func FindDefects(residual *mat.Dense, p BlobParams, pol Polarity) []models.Blob {
	var blobs []models.Blob
	if pol == PolarityDark || pol == PolarityBoth {
		blobs = append(blobs, BlobLoG(residual, p)...)
	}
	if pol == PolarityBright || pol == PolarityBoth {
		neg := mat.DenseCopyOf(residual)
		neg.Scale(-1, neg)
		for _, b := range BlobLoG(neg, p) {
			b.Bright = true
			blobs = append(blobs, b)
		}
	}
	if pol != PolarityBoth {
		return blobs
	}

	sort.SliceStable(blobs, func(i, j int) bool {
		return blobs[i].Response > blobs[j].Response
	})
	return pruneBlobs(blobs, p.Overlap, floats.Max(p.Scales()))
}
