// Package report writes batch results as a YAML document.
package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"braggscan/internal/models"
	"braggscan/pkg/pipeline"
)

// Entry is the report record of one input image
type Entry struct {
	Path  string `yaml:"path"`
	Error string `yaml:"error,omitempty"`

	Rows                 int      `yaml:"rows,omitempty"`
	Cols                 int      `yaml:"cols,omitempty"`
	Threshold            *float64 `yaml:"threshold,omitempty"`
	ContaminatedFraction float64  `yaml:"contaminatedFraction"`
	Duration             string   `yaml:"duration,omitempty"`

	Spots []models.Peak `yaml:"spots,omitempty"`
	Blobs []models.Blob `yaml:"blobs,omitempty"`
}

// Summary totals a batch
type Summary struct {
	Images int `yaml:"images"`
	Failed int `yaml:"failed"`
	Blobs  int `yaml:"blobs"`
}

// Report is the document written by Write
type Report struct {
	Generated time.Time `yaml:"generated"`
	Summary   Summary   `yaml:"summary"`
	Entries   []Entry   `yaml:"entries"`
}

// New builds a report from batch items, keeping their order
func New(items []pipeline.BatchItem) *Report {
	r := &Report{
		Generated: time.Now().UTC().Truncate(time.Second),
		Entries:   make([]Entry, 0, len(items)),
	}

	for _, it := range items {
		e := Entry{Path: it.Path}
		r.Summary.Images++

		if it.Err != nil {
			e.Error = it.Err.Error()
			r.Summary.Failed++
			r.Entries = append(r.Entries, e)
			continue
		}

		res := it.Result
		e.Rows, e.Cols = res.Rows, res.Cols
		if !math.IsNaN(res.Threshold) {
			th := res.Threshold
			e.Threshold = &th
		}
		e.ContaminatedFraction = res.ContaminatedFraction
		e.Duration = res.Duration.Round(time.Millisecond).String()
		e.Spots = res.Spots
		e.Blobs = res.Blobs
		r.Summary.Blobs += len(res.Blobs)

		r.Entries = append(r.Entries, e)
	}
	return r
}

// Encode writes the report as YAML to w
func (r *Report) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("error encoding report: %w", err)
	}
	return enc.Close()
}

// Write saves a report of items to path
func Write(path string, items []pipeline.BatchItem) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating report directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating report file: %w", err)
	}
	defer file.Close()

	if err := New(items).Encode(file); err != nil {
		return err
	}
	return file.Close()
}
