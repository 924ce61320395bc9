package filters

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Flatten returns the matrix contents as a fresh row-major slice
func Flatten(m mat.Matrix) []float64 {
	rows, cols := m.Dims()
	out := make([]float64, rows*cols)
	if d, ok := m.(*mat.Dense); ok {
		raw := d.RawMatrix()
		for r := 0; r < rows; r++ {
			copy(out[r*cols:(r+1)*cols], raw.Data[r*raw.Stride:r*raw.Stride+cols])
		}
		return out
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out[r*cols+c] = m.At(r, c)
		}
	}
	return out
}

// Bin reduces img by averaging non-overlapping rowFactor x colFactor tiles.
//
// When the dimensions are not multiples of the factors, Bin returns
// ErrIndivisible unless truncate is set, in which case the trailing rows and
// columns that do not fill a whole tile are dropped.
func Bin(img *mat.Dense, rowFactor, colFactor int, truncate bool) (*mat.Dense, error) {
	if rowFactor < 1 || colFactor < 1 {
		return nil, fmt.Errorf("%w: got %dx%d", ErrInvalidFactor, rowFactor, colFactor)
	}

	rows, cols := img.Dims()
	if !truncate && (rows%rowFactor != 0 || cols%colFactor != 0) {
		return nil, fmt.Errorf("%w: %dx%d by %dx%d", ErrIndivisible, rows, cols, rowFactor, colFactor)
	}

	outRows := rows / rowFactor
	outCols := cols / colFactor
	if outRows == 0 || outCols == 0 {
		return nil, fmt.Errorf("%w: %dx%d binned by %dx%d", ErrEmptyImage, rows, cols, rowFactor, colFactor)
	}

	if rowFactor == 1 && colFactor == 1 {
		return mat.NewDense(rows, cols, Flatten(img)), nil
	}

	src := Flatten(img)
	out := make([]float64, outRows*outCols)
	norm := 1 / float64(rowFactor*colFactor)

	for r := 0; r < outRows*rowFactor; r++ {
		br := r / rowFactor
		row := src[r*cols : r*cols+outCols*colFactor]
		for c, v := range row {
			out[br*outCols+c/colFactor] += v
		}
	}
	for i := range out {
		out[i] *= norm
	}

	return mat.NewDense(outRows, outCols, out), nil
}
