package filters

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"braggscan/internal/models"
)

// HistogramBins is the number of histogram bins used by YenThreshold
const HistogramBins = 256

// YenThreshold computes a global threshold with Yen's maximum correlation
// criterion over a 256-bin histogram spanning [min, max] of img.
//
// The returned threshold is the center of the bin that maximizes the
// criterion. ok is false when the image is constant or contains non-finite
// values, in which case no threshold exists.
func YenThreshold(img *mat.Dense) (threshold float64, ok bool) {
	data := Flatten(img)
	if len(data) == 0 {
		return math.NaN(), false
	}
	sort.Float64s(data)

	lo, hi := data[0], data[len(data)-1]
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) || !(hi > lo) {
		return math.NaN(), false
	}

	dividers := floats.Span(make([]float64, HistogramBins+1), lo, hi)
	// The top edge is inclusive, as for numpy histograms.
	dividers[HistogramBins] = math.Nextafter(hi, math.Inf(1))
	hist := stat.Histogram(nil, dividers, data, nil)

	pmf := make([]float64, HistogramBins)
	floats.ScaleTo(pmf, 1/float64(len(data)), hist)

	p1 := make([]float64, HistogramBins)
	p1sq := make([]float64, HistogramBins)
	p2sq := make([]float64, HistogramBins)
	floats.CumSum(p1, pmf)

	sq := make([]float64, HistogramBins)
	floats.MulTo(sq, pmf, pmf)
	floats.CumSum(p1sq, sq)

	var acc float64
	for i := HistogramBins - 1; i >= 0; i-- {
		acc += sq[i]
		p2sq[i] = acc
	}

	best := math.Inf(-1)
	bestIdx := -1
	for i := 0; i < HistogramBins-1; i++ {
		a := p1sq[i] * p2sq[i+1]
		b := p1[i] * (1 - p1[i])
		if a <= 0 || b <= 0 {
			continue
		}
		crit := -math.Log(a) + 2*math.Log(b)
		if crit > best {
			best = crit
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return math.NaN(), false
	}

	return 0.5 * (dividers[bestIdx] + dividers[bestIdx+1]), true
}

// Binarize marks every pixel strictly above threshold
func Binarize(img *mat.Dense, threshold float64) models.Mask {
	rows, cols := img.Dims()
	mask := models.NewMask(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if img.At(r, c) > threshold {
				mask.Set(r, c, true)
			}
		}
	}
	return mask
}
