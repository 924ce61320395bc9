package filters

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Truncate is the kernel half-width in standard deviations
const Truncate = 4.0

// GaussianKernel returns a normalized 1-D Gaussian kernel of the given
// derivative order (0 or 2), sampled over +-Truncate*sigma.
func GaussianKernel(sigma float64, order int) []float64 {
	radius := int(Truncate*sigma + 0.5)
	if radius < 1 {
		radius = 1
	}

	kernel := make([]float64, 2*radius+1)
	s2 := sigma * sigma
	for i := range kernel {
		x := float64(i - radius)
		kernel[i] = math.Exp(-0.5 * x * x / s2)
	}
	floats.Scale(1/floats.Sum(kernel), kernel)

	if order == 2 {
		// d2/dx2 of the normalized Gaussian
		for i := range kernel {
			x := float64(i - radius)
			kernel[i] *= (x*x - s2) / (s2 * s2)
		}
	}
	return kernel
}

// correlate1D filters n samples spaced step apart in src starting at offset,
// writing to dst at the same positions. Samples past either edge repeat the
// nearest edge sample.
func correlate1D(dst, src []float64, offset, n, step int, kernel []float64) {
	radius := len(kernel) / 2
	for i := 0; i < n; i++ {
		var sum float64
		for k, w := range kernel {
			j := i + k - radius
			if j < 0 {
				j = 0
			} else if j >= n {
				j = n - 1
			}
			sum += w * src[offset+j*step]
		}
		dst[offset+i*step] = sum
	}
}

// SeparableFilter applies rowKernel along each row and colKernel along each
// column. A nil kernel skips that axis.
func SeparableFilter(img *mat.Dense, rowKernel, colKernel []float64) *mat.Dense {
	rows, cols := img.Dims()
	data := Flatten(img)
	tmp := make([]float64, len(data))

	if rowKernel != nil {
		for r := 0; r < rows; r++ {
			correlate1D(tmp, data, r*cols, cols, 1, rowKernel)
		}
		data, tmp = tmp, data
	}
	if colKernel != nil {
		for c := 0; c < cols; c++ {
			correlate1D(tmp, data, c, rows, cols, colKernel)
		}
		data = tmp
	}

	return mat.NewDense(rows, cols, data)
}

// Gaussian smooths img with an isotropic Gaussian of standard deviation sigma.
// A non-positive sigma returns a copy.
func Gaussian(img *mat.Dense, sigma float64) *mat.Dense {
	if sigma <= 0 {
		rows, cols := img.Dims()
		return mat.NewDense(rows, cols, Flatten(img))
	}
	k := GaussianKernel(sigma, 0)
	return SeparableFilter(img, k, k)
}

// LaplacianOfGaussian returns the Laplacian of img smoothed at scale sigma
func LaplacianOfGaussian(img *mat.Dense, sigma float64) *mat.Dense {
	g := GaussianKernel(sigma, 0)
	d2 := GaussianKernel(sigma, 2)

	lxx := SeparableFilter(img, d2, g)
	lyy := SeparableFilter(img, g, d2)
	lxx.Add(lxx, lyy)
	return lxx
}
