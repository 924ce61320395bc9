package pipeline

import (
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/tiff"
	"gonum.org/v1/gonum/mat"

	"braggscan/pkg/filters"
)

// LoadImage decodes a TIFF, PNG or JPEG file into a matrix of luminance
// values in [0, 1]
func LoadImage(path string) (*mat.Dense, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}

	m, err := imageToDense(img)
	if err != nil {
		return nil, &IOError{Path: path, Err: err}
	}
	return m, nil
}

// imageToDense converts an image to 16-bit precision luminance
func imageToDense(img image.Image) (*mat.Dense, error) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, filters.ErrEmptyImage
	}
	width, height := bounds.Dx(), bounds.Dy()

	out := mat.NewDense(height, width, nil)
	for y := 0; y < height; y++ {
		row := out.RawRowView(y)
		for x := 0; x < width; x++ {
			g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			row[x] = float64(g.Y) / 65535.0
		}
	}
	return out, nil
}

// ListImages returns the TIFF files in dir sorted by name
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &IOError{Path: dir, Err: err}
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".tif", ".tiff":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
