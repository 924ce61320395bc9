package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/mat"

	"braggscan/internal/models"
	"braggscan/pkg/config"
	"braggscan/pkg/visualization"
)

// stageOrder numbers the intermediary files so they sort in pipeline order
var stageOrder = map[string]int{
	StageBin:      1,
	StageSegment:  2,
	StageMask:     3,
	StageSpectrum: 4,
	StageSpots:    5,
	StageBragg:    6,
	StageFilter:   7,
	StageResidual: 8,
}

// spotMarkRadius is the half-width of the cross drawn on each spot
const spotMarkRadius = 3

// stageWriter saves intermediary results of one image as PNG files under
// <intermediaryDir>/<key>/<NN_stage>.png. A disabled writer does nothing.
type stageWriter struct {
	dir     string
	enabled bool
}

func newStageWriter(cfg *config.Config, key string) stageWriter {
	return stageWriter{
		dir:     filepath.Join(cfg.Output.IntermediaryDir, key),
		enabled: cfg.Output.SaveIntermediaryResults,
	}
}

// path returns the file an intermediary stage is written to
func (w stageWriter) path(stage string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%02d_%s.png", stageOrder[stage], stage))
}

func (w stageWriter) save(stage string, m *mat.Dense) error {
	if !w.enabled {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create intermediary directory: %w", err)
	}
	if err := imaging.Save(visualization.Grayscale(m), w.path(stage)); err != nil {
		return fmt.Errorf("failed to save %s: %w", stage, err)
	}
	return nil
}

func (w stageWriter) saveMask(stage string, mask models.Mask) error {
	if !w.enabled {
		return nil
	}
	data := make([]float64, len(mask.Pix))
	for i, v := range mask.Pix {
		if v {
			data[i] = 1
		}
	}
	if len(data) == 0 {
		return nil
	}
	return w.save(stage, mat.NewDense(mask.Rows, mask.Cols, data))
}

// saveSpots saves the spectrum with a cross at the maximum value over every
// selected spot
func (w stageWriter) saveSpots(spectrum *mat.Dense, spots []models.Peak) error {
	if !w.enabled {
		return nil
	}
	rows, cols := spectrum.Dims()
	marked := mat.DenseCopyOf(spectrum)
	top := mat.Max(spectrum)
	for _, s := range spots {
		for d := -spotMarkRadius; d <= spotMarkRadius; d++ {
			if r := s.Row + d; r >= 0 && r < rows {
				marked.Set(r, s.Col, top)
			}
			if c := s.Col + d; c >= 0 && c < cols {
				marked.Set(s.Row, c, top)
			}
		}
	}
	return w.save(StageSpots, marked)
}
