package filters

import (
	"braggscan/internal/models"
)

// Disk returns the offsets of a disk structuring element: every (dr, dc)
// with dr*dr + dc*dc <= radius*radius.
func Disk(radius int) []models.Point {
	if radius < 0 {
		return nil
	}
	var offsets []models.Point
	r2 := radius * radius
	for dr := -radius; dr <= radius; dr++ {
		for dc := -radius; dc <= radius; dc++ {
			if dr*dr+dc*dc <= r2 {
				offsets = append(offsets, models.Point{Row: dr, Col: dc})
			}
		}
	}
	return offsets
}

// Dilate grows the set pixels of mask by a disk of the given radius
func Dilate(mask models.Mask, radius int) models.Mask {
	if radius <= 0 {
		return mask.Clone()
	}

	disk := Disk(radius)
	out := models.NewMask(mask.Rows, mask.Cols)
	for r := 0; r < mask.Rows; r++ {
		for c := 0; c < mask.Cols; c++ {
			if !mask.At(r, c) {
				continue
			}
			for _, d := range disk {
				rr, cc := r+d.Row, c+d.Col
				if rr < 0 || rr >= mask.Rows || cc < 0 || cc >= mask.Cols {
					continue
				}
				out.Set(rr, cc, true)
			}
		}
	}
	return out
}

// Label assigns a component number (starting at 1) to every set pixel using
// 4-connectivity. It returns the label image and the size of each component,
// indexed by label.
func Label(mask models.Mask) (labels []int, sizes []int) {
	labels = make([]int, len(mask.Pix))
	sizes = []int{0}
	queue := make([]int, 0, 64)

	for start, set := range mask.Pix {
		if !set || labels[start] != 0 {
			continue
		}

		label := len(sizes)
		size := 0
		labels[start] = label
		queue = append(queue[:0], start)

		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			size++

			r, c := idx/mask.Cols, idx%mask.Cols
			neighbors := [4][2]int{{r - 1, c}, {r + 1, c}, {r, c - 1}, {r, c + 1}}
			for _, n := range neighbors {
				if n[0] < 0 || n[0] >= mask.Rows || n[1] < 0 || n[1] >= mask.Cols {
					continue
				}
				j := n[0]*mask.Cols + n[1]
				if mask.Pix[j] && labels[j] == 0 {
					labels[j] = label
					queue = append(queue, j)
				}
			}
		}
		sizes = append(sizes, size)
	}
	return labels, sizes
}

// RemoveSmallObjects clears connected components with fewer than minArea pixels
func RemoveSmallObjects(mask models.Mask, minArea int) models.Mask {
	out := mask.Clone()
	if minArea <= 1 {
		return out
	}

	labels, sizes := Label(mask)
	for i, l := range labels {
		if l != 0 && sizes[l] < minArea {
			out.Pix[i] = false
		}
	}
	return out
}

// RemoveSmallHoles fills unset regions with fewer than minArea pixels.
// Regions touching the image border are treated like any other hole.
func RemoveSmallHoles(mask models.Mask, minArea int) models.Mask {
	return RemoveSmallObjects(mask.Invert(), minArea).Invert()
}
