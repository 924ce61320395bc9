package spectral

import (
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
)

// FFT2 performs a 2D Fast Fourier Transform of a real image.
// Rows are transformed with Gonum's real FFT and completed with conjugate
// symmetry, then columns are transformed with the complex FFT.
//
// Parameters:
//   - img: Input image, any size
//
// Returns:
//   - The unnormalized 2D spectrum as a row-major slice of rows*cols values
func FFT2(img *mat.Dense) []complex128 {
	rows, cols := img.Dims()
	result := make([]complex128, rows*cols)

	rowFFT := fourier.NewFFT(cols)
	rowInput := make([]float64, cols)
	rowOutput := make([]complex128, cols/2+1) // Gonum FFT output size for real input

	for i := 0; i < rows; i++ {
		mat.Row(rowInput, i, img)
		rowFFT.Coefficients(rowOutput, rowInput)

		full := result[i*cols : (i+1)*cols]
		copy(full, rowOutput)
		for j := len(rowOutput); j < cols; j++ {
			// F(n-k) = F*(k)
			c := rowOutput[cols-j]
			full[j] = complex(real(c), -imag(c))
		}
	}

	transformColumns(result, rows, cols, false)
	return result
}

// IFFT2 performs the inverse 2D FFT in place, including the 1/(rows*cols)
// normalization, so IFFT2 after FFT2 reproduces the input.
func IFFT2(data []complex128, rows, cols int) {
	transformRows(data, rows, cols, true)
	transformColumns(data, rows, cols, true)

	norm := complex(1/float64(rows*cols), 0)
	for i := range data {
		data[i] *= norm
	}
}

func transformRows(data []complex128, rows, cols int, inverse bool) {
	fft := fourier.NewCmplxFFT(cols)
	for i := 0; i < rows; i++ {
		row := data[i*cols : (i+1)*cols]
		if inverse {
			fft.Sequence(row, row)
		} else {
			fft.Coefficients(row, row)
		}
	}
}

func transformColumns(data []complex128, rows, cols int, inverse bool) {
	fft := fourier.NewCmplxFFT(rows)
	col := make([]complex128, rows)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			col[i] = data[i*cols+j]
		}
		if inverse {
			fft.Sequence(col, col)
		} else {
			fft.Coefficients(col, col)
		}
		for i := 0; i < rows; i++ {
			data[i*cols+j] = col[i]
		}
	}
}

// FFTShift moves the zero-frequency element of a rows x cols grid to
// (rows/2, cols/2). It returns a new slice.
func FFTShift[T any](data []T, rows, cols int) []T {
	return roll(data, rows, cols, rows/2, cols/2)
}

// IFFTShift undoes FFTShift, including for odd sizes
func IFFTShift[T any](data []T, rows, cols int) []T {
	return roll(data, rows, cols, -(rows / 2), -(cols / 2))
}

func roll[T any](data []T, rows, cols, dr, dc int) []T {
	out := make([]T, len(data))
	for r := 0; r < rows; r++ {
		nr := ((r+dr)%rows + rows) % rows
		for c := 0; c < cols; c++ {
			nc := ((c+dc)%cols + cols) % cols
			out[nr*cols+nc] = data[r*cols+c]
		}
	}
	return out
}
