package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"braggscan/internal/models"
)

// BatchItem is the outcome for one input file. Exactly one of Result and
// Err is set.
type BatchItem struct {
	// Index is the position of the file in the input list
	Index  int
	Path   string
	Result *models.Result
	Err    error
}

// RunBatch analyzes paths with processing.numCores workers and returns one
// item per path in input order. A failing image never stops the others.
// Intermediary results go under the item key of each file.
// Cancelling ctx stops dispatching new files; images already being analyzed
// run to completion and the undispatched ones report ctx.Err().
func (a *Analyzer) RunBatch(ctx context.Context, paths []string) []BatchItem {
	numWorkers := a.cfg.Processing.NumCores
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > len(paths) {
		numWorkers = len(paths)
	}

	type job struct {
		index int
		path  string
	}
	jobs := make(chan job)
	resultChan := make(chan BatchItem)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				res, err := a.analyzeFile(j.path, ItemKey(j.index, j.path))
				resultChan <- BatchItem{Index: j.index, Path: j.path, Result: res, Err: err}
			}
		}()
	}

	// Dispatch files until done or cancelled
	dispatched := make([]bool, len(paths))
	go func() {
		defer close(jobs)
		for i, p := range paths {
			select {
			case <-ctx.Done():
				return
			case jobs <- job{index: i, path: p}:
				dispatched[i] = true
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	// Collect results
	items := make([]BatchItem, 0, len(paths))
	failed := 0
	for item := range resultChan {
		items = append(items, item)
		if item.Err != nil {
			failed++
			a.log.WithFields(logrus.Fields{"image": item.Path}).WithError(item.Err).Error("Image analysis failed")
		}
		a.log.WithFields(logrus.Fields{
			"completed": len(items),
			"total":     len(paths),
			"progress":  float64(len(items)) / float64(len(paths)) * 100,
		}).Debug("Batch progress")
	}

	// The dispatcher has returned once every worker has exited
	for i, p := range paths {
		if !dispatched[i] {
			items = append(items, BatchItem{Index: i, Path: p, Err: ctx.Err()})
			failed++
		}
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Index < items[j].Index
	})

	a.log.WithFields(logrus.Fields{
		"images": len(paths),
		"failed": failed,
	}).Info("Batch complete")

	return items
}

// ItemKey names the outputs of the file at index in a batch. The index keeps
// files with the same base name in different directories apart.
func ItemKey(index int, path string) string {
	return fmt.Sprintf("%03d_%s", index, imageName(path))
}

// Key returns ItemKey for the item
func (it BatchItem) Key() string {
	return ItemKey(it.Index, it.Path)
}

// Failed returns the items that carry an error
func Failed(items []BatchItem) []BatchItem {
	var out []BatchItem
	for _, it := range items {
		if it.Err != nil {
			out = append(out, it)
		}
	}
	return out
}
