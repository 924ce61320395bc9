// Package pipeline runs the Bragg-filter defect analysis on single images and
// on batches of files.
//
// The analysis of one image consists of:
// 1. Binning the raw image
// 2. Segmenting contamination with a Yen threshold and morphological cleanup
// 3. Replacing contaminated pixels with the mean of the clean ones
// 4. Computing the windowed power spectrum
// 5. Detecting diffraction spots and dropping the DC peak
// 6. Building a Bragg mask around the spots
// 7. Bragg filtering the masked image
// 8. Detecting dark and bright blobs in the smoothed, re-masked residual
package pipeline

import (
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"braggscan/internal/models"
	"braggscan/pkg/config"
	"braggscan/pkg/detection"
	"braggscan/pkg/filters"
	"braggscan/pkg/spectral"
)

// Stage names, also used for intermediary file names
const (
	StageBin      = "binning"
	StageSegment  = "segmentation"
	StageMask     = "masking"
	StageSpectrum = "spectrum"
	StageSpots    = "spots"
	StageBragg    = "bragg_mask"
	StageFilter   = "bragg_filter"
	StageResidual = "residual"
	StageBlobs    = "blobs"
)

// Analyzer runs the defect detection pipeline with a fixed configuration.
// It holds no per-image state and is safe for concurrent use.
type Analyzer struct {
	cfg *config.Config
	log logrus.FieldLogger
}

// NewAnalyzer creates an analyzer. A nil logger uses the logrus standard logger.
func NewAnalyzer(cfg *config.Config, log logrus.FieldLogger) *Analyzer {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Analyzer{cfg: cfg, log: log}
}

// Analyze loads the image at path and runs the full pipeline on it
func (a *Analyzer) Analyze(path string) (*models.Result, error) {
	return a.analyzeFile(path, imageName(path))
}

// AnalyzeImage runs the pipeline on an in-memory image. name identifies the
// image in errors, logs and intermediary output.
func (a *Analyzer) AnalyzeImage(name string, img *mat.Dense) (*models.Result, error) {
	return a.analyze(name, img, newStageWriter(a.cfg, imageName(name)))
}

// analyzeFile is Analyze with intermediary results stored under key
func (a *Analyzer) analyzeFile(path, key string) (*models.Result, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	return a.analyze(path, img, newStageWriter(a.cfg, key))
}

func (a *Analyzer) analyze(name string, img *mat.Dense, stages stageWriter) (*models.Result, error) {
	start := time.Now()
	log := a.log.WithField("image", name)

	fail := func(stage string, err error) (*models.Result, error) {
		log.WithField("stage", stage).WithError(err).Debug("Stage failed")
		return nil, &StageError{Path: name, Stage: stage, Err: err}
	}

	// Stage 1: binning
	rawRows, rawCols := img.Dims()
	binned, err := filters.Bin(img, a.cfg.Processing.BinRows, a.cfg.Processing.BinCols, a.cfg.Processing.TruncateBinning)
	if err != nil {
		return fail(StageBin, err)
	}
	rows, cols := binned.Dims()
	log.WithFields(logrus.Fields{
		"stage": StageBin,
		"from":  [2]int{rawRows, rawCols},
		"to":    [2]int{rows, cols},
	}).Debug("Binned image")
	if err := stages.save(StageBin, binned); err != nil {
		log.WithError(err).Warn("Failed to save intermediary result")
	}

	// Stage 2: contamination segmentation
	mask, threshold := filters.Segment(binned, filters.SegmentParams{
		Sigma:          a.cfg.Segmentation.Sigma,
		MinArea:        a.cfg.Segmentation.MinArea,
		DilationRadius: a.cfg.Segmentation.DilationRadius,
	})
	log.WithFields(logrus.Fields{
		"stage":     StageSegment,
		"threshold": threshold,
		"fraction":  mask.Fraction(),
	}).Debug("Segmented contamination")
	if math.IsNaN(threshold) {
		log.Debug("Image has no intensity range, contamination mask is empty")
	}
	if err := stages.saveMask(StageSegment, mask); err != nil {
		log.WithError(err).Warn("Failed to save intermediary result")
	}

	// Stage 3: masking
	masked, err := filters.ApplyMask(binned, mask)
	if err != nil {
		return fail(StageMask, err)
	}
	if err := stages.save(StageMask, masked); err != nil {
		log.WithError(err).Warn("Failed to save intermediary result")
	}

	// Stage 4: windowed power spectrum
	win, err := spectral.ParseWindow(a.cfg.Spectrum.Window)
	if err != nil {
		return fail(StageSpectrum, err)
	}
	spectrum := spectral.PowerSpectrum(spectral.ApplyWindow(masked, win))
	logSpectrum := logScale(spectrum)
	log.WithFields(logrus.Fields{"stage": StageSpectrum, "window": win}).Debug("Computed power spectrum")
	if err := stages.save(StageSpectrum, logSpectrum); err != nil {
		log.WithError(err).Warn("Failed to save intermediary result")
	}

	// Stage 5: diffraction spots
	policy, err := detection.ParseDCPolicy(a.cfg.Spectrum.DCPolicy)
	if err != nil {
		return fail(StageSpots, err)
	}
	peaks := detection.PeakLocalMax(spectrum, detection.PeakParams{
		MinDistance:   a.cfg.Spectrum.MinPeakDistance,
		ThresholdAbs:  a.cfg.Spectrum.PeakThresholdAbs,
		ThresholdRel:  a.cfg.Spectrum.PeakThresholdRel,
		ExcludeBorder: a.cfg.Spectrum.MinPeakDistance,
		NumPeaks:      a.cfg.Spectrum.MaxPeaks,
	})
	cr, cc := spectral.Center(rows, cols)
	spots := detection.SelectSpots(peaks, a.cfg.Spectrum.NumSpots, policy, models.Point{Row: cr, Col: cc})
	log.WithFields(logrus.Fields{
		"stage":      StageSpots,
		"candidates": len(peaks),
		"spots":      len(spots),
		"policy":     policy,
	}).Debug("Selected diffraction spots")
	if len(spots) < a.cfg.Spectrum.NumSpots {
		log.WithField("requested", a.cfg.Spectrum.NumSpots).Debug("Fewer diffraction spots than requested")
	}
	if err := stages.saveSpots(logSpectrum, spots); err != nil {
		log.WithError(err).Warn("Failed to save intermediary result")
	}

	// Stage 6: Bragg mask
	braggMask := spectral.BraggMask(detection.Points(spots), rows, cols, a.cfg.Spectrum.BraggRadius, a.cfg.Spectrum.SymmetricMask)
	if err := stages.save(StageBragg, braggMask); err != nil {
		log.WithError(err).Warn("Failed to save intermediary result")
	}

	// Stage 7: Bragg filter
	filtered, err := spectral.BraggFilter(masked, braggMask, a.cfg.Spectrum.ImagTolerance)
	if err != nil {
		return fail(StageFilter, err)
	}
	if err := stages.save(StageFilter, filtered); err != nil {
		log.WithError(err).Warn("Failed to save intermediary result")
	}

	// Stage 8: residual and blobs
	residual := mat.NewDense(rows, cols, nil)
	residual.Sub(filtered, binned)
	residual, err = filters.ApplyMask(residual, mask)
	if err != nil {
		return fail(StageResidual, err)
	}
	residual = filters.Gaussian(residual, a.cfg.Blobs.SmoothSigma)
	if err := stages.save(StageResidual, residual); err != nil {
		log.WithError(err).Warn("Failed to save intermediary result")
	}

	polarity, err := detection.ParsePolarity(a.cfg.Blobs.Polarity)
	if err != nil {
		return fail(StageBlobs, err)
	}
	found := detection.FindDefects(residual, detection.BlobParams{
		MinSigma:      a.cfg.Blobs.MinSigma,
		MaxSigma:      a.cfg.Blobs.MaxSigma,
		NumSigma:      a.cfg.Blobs.NumSigma,
		Threshold:     a.cfg.Blobs.Threshold,
		ExcludeBorder: a.cfg.Blobs.ExcludeBorder,
		Overlap:       a.cfg.Blobs.Overlap,
	}, polarity)
	blobs := dropContaminated(found, mask)
	log.WithFields(logrus.Fields{
		"stage":        StageBlobs,
		"polarity":     polarity,
		"blobs":        len(blobs),
		"contaminated": len(found) - len(blobs),
	}).Debug("Detected blobs")

	result := &models.Result{
		Path:                 name,
		Rows:                 rows,
		Cols:                 cols,
		Binned:               binned,
		Threshold:            threshold,
		Spots:                spots,
		Blobs:                blobs,
		Contamination:        mask,
		ContaminatedFraction: mask.Fraction(),
		Duration:             time.Since(start),
	}
	log.WithFields(logrus.Fields{
		"blobs":    len(blobs),
		"duration": result.Duration,
	}).Info("Analyzed image")

	return result, nil
}

// dropContaminated removes blobs centered on a contaminated pixel
func dropContaminated(blobs []models.Blob, mask models.Mask) []models.Blob {
	kept := make([]models.Blob, 0, len(blobs))
	for _, b := range blobs {
		r, c := int(math.Round(b.Row)), int(math.Round(b.Col))
		if r >= 0 && r < mask.Rows && c >= 0 && c < mask.Cols && mask.At(r, c) {
			continue
		}
		kept = append(kept, b)
	}
	return kept
}

// logScale compresses the dynamic range of a spectrum for display
func logScale(m *mat.Dense) *mat.Dense {
	rows, cols := m.Dims()
	out := mat.NewDense(rows, cols, nil)
	out.Apply(func(_, _ int, v float64) float64 {
		return math.Log1p(v)
	}, m)
	return out
}

// imageName strips directory and extension from a path
func imageName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
