// Package scanner assembles scans over datasets and executes them.
package scanner

import (
	"context"
	"sync"

	"github.com/apache/arrow/go/v10/arrow"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"fpetkovski/parquet-scan/dataset"
	"fpetkovski/parquet-scan/iterator"
)

// Scanner scans a dataset with fixed options. Scanners are created with a
// Builder.
type Scanner struct {
	dataset  dataset.Dataset
	options  *dataset.ScanOptions
	scanCtx  *dataset.ScanContext
	executor *Executor
}

func (s *Scanner) Options() *dataset.ScanOptions { return s.options }

// Schema is the schema of the scanned batches.
func (s *Scanner) Schema() *arrow.Schema { return s.options.Projector.Schema() }

// Scan returns the scan tasks of every fragment of the dataset. Fragments are
// only scanned as the returned iterator is pulled.
func (s *Scanner) Scan(ctx context.Context) (iterator.Iterator[dataset.ScanTask], error) {
	fragments, err := s.dataset.Fragments(ctx)
	if err != nil {
		return nil, err
	}
	return dataset.GetScanTaskIterator(fragments, s.options, s.scanCtx), nil
}

// Execute runs the scan with the scanner's executor.
func (s *Scanner) Execute(ctx context.Context, visit Visitor) error {
	tasks, err := s.Scan(ctx)
	if err != nil {
		return err
	}
	return s.executor.Execute(ctx, tasks, visit)
}

// ToRecords runs the scan and returns every batch in fragment, task and
// batch order, regardless of the order in which tasks complete. The caller
// must release the records.
func (s *Scanner) ToRecords(ctx context.Context) ([]arrow.Record, error) {
	var (
		mu      sync.Mutex
		perTask = make(map[int][]arrow.Record)
	)
	err := s.Execute(ctx, func(task int, batch arrow.Record) error {
		batch.Retain()
		mu.Lock()
		defer mu.Unlock()
		perTask[task] = append(perTask[task], batch)
		return nil
	})

	tasks := maps.Keys(perTask)
	slices.Sort(tasks)
	records := make([]arrow.Record, 0, len(perTask))
	for _, task := range tasks {
		records = append(records, perTask[task]...)
	}

	if err != nil {
		for _, r := range records {
			r.Release()
		}
		return nil, err
	}
	return records, nil
}
