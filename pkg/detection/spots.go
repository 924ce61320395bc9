package detection

import (
	"fmt"
	"strings"

	"braggscan/internal/models"
)

// DCPolicy decides which spectral peak is the zero-order (DC) peak.
//
// SuppressStrongest assumes the DC peak is the single strongest response.
// It fails when a first-order spot outshines the DC peak, which can happen
// after windowing or background subtraction. SuppressCenter removes the peak
// nearest the spectrum center instead.
type DCPolicy string

const (
	SuppressStrongest DCPolicy = "strongest"
	SuppressCenter    DCPolicy = "center"
)

// ParseDCPolicy validates a policy name
func ParseDCPolicy(name string) (DCPolicy, error) {
	p := DCPolicy(strings.ToLower(strings.TrimSpace(name)))
	switch p {
	case SuppressStrongest, SuppressCenter:
		return p, nil
	case "":
		return SuppressStrongest, nil
	}
	return "", fmt.Errorf("unknown DC policy %q", name)
}

// SelectSpots drops the DC peak according to policy and returns up to n of
// the remaining peaks, strongest first. center is the zero-frequency
// location of the spectrum the peaks came from. Fewer than n peaks is not an
// error; n <= 0 keeps them all.
func SelectSpots(peaks []models.Peak, n int, policy DCPolicy, center models.Point) []models.Peak {
	sorted := make([]models.Peak, len(peaks))
	copy(sorted, peaks)
	sortPeaks(sorted)

	if len(sorted) == 0 {
		return sorted
	}

	drop := 0
	if policy == SuppressCenter {
		best := -1
		for i, p := range sorted {
			dr, dcol := p.Row-center.Row, p.Col-center.Col
			d := dr*dr + dcol*dcol
			if best < 0 || d < best {
				best = d
				drop = i
			}
		}
	}

	rest := make([]models.Peak, 0, len(sorted)-1)
	rest = append(rest, sorted[:drop]...)
	rest = append(rest, sorted[drop+1:]...)

	if n > 0 && len(rest) > n {
		rest = rest[:n]
	}
	return rest
}

// Points returns the coordinates of peaks in order
func Points(peaks []models.Peak) []models.Point {
	pts := make([]models.Point, len(peaks))
	for i, p := range peaks {
		pts[i] = p.Point
	}
	return pts
}
