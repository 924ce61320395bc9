// Package detection finds point features: local maxima in power spectra
// (diffraction spots) and Laplacian-of-Gaussian blobs in residual images.
package detection

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"

	"braggscan/internal/models"
)

// PeakParams controls local maximum detection
type PeakParams struct {
	// MinDistance is the half-width of the square suppression window and the
	// minimum max-norm separation between accepted peaks
	MinDistance int

	// ThresholdAbs and ThresholdRel set the detection floor to
	// max(image minimum, ThresholdAbs, ThresholdRel*image maximum)
	ThresholdAbs float64
	ThresholdRel float64

	// ExcludeBorder ignores peaks closer than this many pixels to an edge
	ExcludeBorder int

	// NumPeaks caps the result; zero keeps every peak
	NumPeaks int
}

// maxFilter returns the maximum over a (2*radius+1)^2 square window, with
// the window clipped at the image border
func maxFilter(data []float64, rows, cols, radius int) []float64 {
	tmp := make([]float64, len(data))
	out := make([]float64, len(data))

	for r := 0; r < rows; r++ {
		row := data[r*cols : (r+1)*cols]
		for c := 0; c < cols; c++ {
			lo, hi := max(0, c-radius), min(cols, c+radius+1)
			tmp[r*cols+c] = floats.Max(row[lo:hi])
		}
	}
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			m := math.Inf(-1)
			for rr := max(0, r-radius); rr < min(rows, r+radius+1); rr++ {
				m = math.Max(m, tmp[rr*cols+c])
			}
			out[r*cols+c] = m
		}
	}
	return out
}

// sortPeaks orders peaks by descending intensity, then by position
func sortPeaks(peaks []models.Peak) {
	sort.SliceStable(peaks, func(i, j int) bool {
		if peaks[i].Intensity != peaks[j].Intensity {
			return peaks[i].Intensity > peaks[j].Intensity
		}
		if peaks[i].Row != peaks[j].Row {
			return peaks[i].Row < peaks[j].Row
		}
		return peaks[i].Col < peaks[j].Col
	})
}

// PeakLocalMax finds local maxima of img ordered by descending intensity.
//
// A pixel is a candidate when it equals the maximum of its square
// neighbourhood and lies strictly above the threshold. Candidates are then
// accepted strongest first, skipping any within MinDistance of an accepted
// peak.
func PeakLocalMax(img *mat.Dense, p PeakParams) []models.Peak {
	rows, cols := img.Dims()
	data := make([]float64, 0, rows*cols)
	for r := 0; r < rows; r++ {
		data = append(data, img.RawRowView(r)...)
	}
	if len(data) == 0 {
		return nil
	}

	radius := max(p.MinDistance, 1)
	threshold := math.Max(floats.Min(data), p.ThresholdAbs)
	if p.ThresholdRel > 0 {
		threshold = math.Max(threshold, p.ThresholdRel*floats.Max(data))
	}
	border := max(p.ExcludeBorder, 0)

	filtered := maxFilter(data, rows, cols, radius)

	var candidates []models.Peak
	for r := border; r < rows-border; r++ {
		for c := border; c < cols-border; c++ {
			v := data[r*cols+c]
			if v > threshold && v == filtered[r*cols+c] {
				candidates = append(candidates, models.Peak{
					Point:     models.Point{Row: r, Col: c},
					Intensity: v,
				})
			}
		}
	}
	sortPeaks(candidates)

	return ensureSpacing(candidates, float64(p.MinDistance), p.NumPeaks)
}

// ensureSpacing keeps peaks, strongest first, that are farther than minDist
// (max-norm) from every peak already kept
func ensureSpacing(sorted []models.Peak, minDist float64, limit int) []models.Peak {
	if minDist <= 0 {
		if limit > 0 && len(sorted) > limit {
			return sorted[:limit]
		}
		return sorted
	}

	tree := &kdtree.Tree{}
	kept := make([]models.Peak, 0, len(sorted))
	for i, pk := range sorted {
		q := point{Row: float64(pk.Row), Col: float64(pk.Col), Index: i, chebyshev: true}
		if tree.Len() > 0 {
			if _, d := tree.Nearest(q); d <= minDist*minDist {
				continue
			}
		}
		tree.Insert(q, false)
		kept = append(kept, pk)
		if limit > 0 && len(kept) == limit {
			break
		}
	}
	return kept
}
