package detection

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"

	"braggscan/internal/models"
	"braggscan/pkg/filters"
)

// BlobParams controls Laplacian-of-Gaussian blob detection
type BlobParams struct {
	// MinSigma and MaxSigma bound the Gaussian scales searched
	MinSigma float64
	MaxSigma float64

	// NumSigma is the number of scales, evenly spaced between the bounds
	NumSigma int

	// Threshold is the minimum scale-normalized response of a blob
	Threshold float64

	// ExcludeBorder ignores blobs centered closer than this to an edge
	ExcludeBorder int

	// Overlap is the area fraction above which the smaller of two blobs is
	// discarded
	Overlap float64
}

// Scales returns the sigmas searched by BlobLoG
func (p BlobParams) Scales() []float64 {
	if p.NumSigma <= 1 || p.MaxSigma <= p.MinSigma {
		return []float64{p.MinSigma}
	}
	return floats.Span(make([]float64, p.NumSigma), p.MinSigma, p.MaxSigma)
}

// BlobLoG finds bright blobs in img.
//
// For every scale the image is filtered with the scale-normalized negative
// Laplacian of Gaussian, -sigma^2 * LoG. Blobs are local maxima of the
// resulting (scale, row, col) stack over a 3x3x3 neighbourhood that exceed
// Threshold. Overlapping blobs are pruned, keeping the larger one. Results
// are ordered by descending response.
func BlobLoG(img *mat.Dense, p BlobParams) []models.Blob {
	rows, cols := img.Dims()
	sigmas := p.Scales()

	cube := make([][]float64, len(sigmas))
	for k, s := range sigmas {
		if s <= 0 {
			cube[k] = make([]float64, rows*cols)
			continue
		}
		layer := filters.Flatten(filters.LaplacianOfGaussian(img, s))
		floats.Scale(-s*s, layer)
		cube[k] = layer
	}

	border := max(p.ExcludeBorder, 0)
	var blobs []models.Blob
	for k := range cube {
		for r := border; r < rows-border; r++ {
			for c := border; c < cols-border; c++ {
				v := cube[k][r*cols+c]
				if v <= p.Threshold || !isCubeMax(cube, rows, cols, k, r, c) {
					continue
				}
				blobs = append(blobs, models.NewBlob(float64(r), float64(c), sigmas[k], v))
			}
		}
	}

	sort.SliceStable(blobs, func(i, j int) bool {
		return blobs[i].Response > blobs[j].Response
	})

	return pruneBlobs(blobs, p.Overlap, floats.Max(sigmas))
}

// isCubeMax reports whether cube[k][r][c] is the maximum of its 3x3x3
// neighbourhood, clipped at the stack edges
func isCubeMax(cube [][]float64, rows, cols, k, r, c int) bool {
	v := cube[k][r*cols+c]
	for kk := max(0, k-1); kk <= min(len(cube)-1, k+1); kk++ {
		for rr := max(0, r-1); rr <= min(rows-1, r+1); rr++ {
			for cc := max(0, c-1); cc <= min(cols-1, c+1); cc++ {
				if cube[kk][rr*cols+cc] > v {
					return false
				}
			}
		}
	}
	return true
}

// blobOverlap returns the intersection area of two blob disks as a fraction
// of the smaller disk
func blobOverlap(a, b models.Blob) float64 {
	r1, r2 := a.Radius, b.Radius
	d := math.Hypot(a.Row-b.Row, a.Col-b.Col)

	switch {
	case d > r1+r2:
		return 0
	case d <= math.Abs(r1-r2):
		return 1
	}

	d1 := (d*d + r1*r1 - r2*r2) / (2 * d)
	d2 := d - d1
	clamp := func(x float64) float64 { return math.Max(-1, math.Min(1, x)) }

	area := r1*r1*math.Acos(clamp(d1/r1)) - d1*math.Sqrt(math.Max(0, r1*r1-d1*d1)) +
		r2*r2*math.Acos(clamp(d2/r2)) - d2*math.Sqrt(math.Max(0, r2*r2-d2*d2))

	return area / (math.Pi * math.Pow(math.Min(r1, r2), 2))
}

// pruneBlobs removes the smaller blob of every pair overlapping by more than
// overlap. blobs must be sorted by descending response; on equal scales the
// stronger blob survives.
func pruneBlobs(blobs []models.Blob, overlap, maxSigma float64) []models.Blob {
	if len(blobs) < 2 {
		return blobs
	}

	pts := make(points, len(blobs))
	for i, b := range blobs {
		pts[i] = point{Row: b.Row, Col: b.Col, Index: i}
	}
	tree := kdtree.New(pts, false)
	reach := 2 * maxSigma * math.Sqrt2

	removed := make([]bool, len(blobs))
	for i, b := range blobs {
		if removed[i] {
			continue
		}
		for _, j := range within(tree, point{Row: b.Row, Col: b.Col}, reach) {
			if j <= i || removed[j] {
				continue
			}
			if blobOverlap(b, blobs[j]) <= overlap {
				continue
			}
			if blobs[j].Sigma > b.Sigma {
				removed[i] = true
				break
			}
			removed[j] = true
		}
	}

	kept := make([]models.Blob, 0, len(blobs))
	for i, b := range blobs {
		if !removed[i] {
			kept = append(kept, b)
		}
	}
	return kept
}
