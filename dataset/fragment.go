package dataset

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v10/arrow"

	"fpetkovski/parquet-scan/expr"
	"fpetkovski/parquet-scan/iterator"
)

// Fragment is an independently scannable part of a dataset, such as a single
// file.
type Fragment interface {
	fmt.Stringer

	// Scan returns the fragment's scan tasks. No data is read until a task is
	// executed.
	Scan(options *ScanOptions, scanCtx *ScanContext) (iterator.Iterator[ScanTask], error)

	// PartitionExpression holds for every row the fragment produces. It is
	// nil if nothing is known about the fragment.
	PartitionExpression() expr.Expression
}

// ScanTask is a unit of deferred work producing a sequence of batches. The
// records yielded by the sequence are owned by the consumer, who must
// release them.
type ScanTask interface {
	Execute() (iterator.Iterator[arrow.Record], error)
	Options() *ScanOptions
	Context() *ScanContext
}

// InMemoryFragment serves records that are already in memory.
type InMemoryFragment struct {
	name      string
	records   []arrow.Record
	partition expr.Expression

	// BatchesPerTask splits the records into tasks of at most this many
	// records. Zero yields a single task with every record.
	BatchesPerTask int
}

// NewInMemoryFragment retains records until Release is called.
func NewInMemoryFragment(name string, records []arrow.Record, partition expr.Expression) *InMemoryFragment {
	for _, r := range records {
		r.Retain()
	}
	return &InMemoryFragment{
		name:      name,
		records:   records,
		partition: partition,
	}
}

func (f *InMemoryFragment) String() string { return f.name }

func (f *InMemoryFragment) PartitionExpression() expr.Expression { return f.partition }

func (f *InMemoryFragment) Scan(options *ScanOptions, scanCtx *ScanContext) (iterator.Iterator[ScanTask], error) {
	perTask := f.BatchesPerTask
	if perTask <= 0 {
		perTask = len(f.records)
	}

	var tasks []ScanTask
	for from := 0; from < len(f.records); from += perTask {
		to := from + perTask
		if to > len(f.records) {
			to = len(f.records)
		}
		tasks = append(tasks, &inMemoryScanTask{
			records: f.records[from:to],
			options: options,
			context: scanCtx,
		})
	}
	return iterator.FromSlice(tasks...), nil
}

func (f *InMemoryFragment) Release() {
	for _, r := range f.records {
		r.Release()
	}
	f.records = nil
}

type inMemoryScanTask struct {
	records []arrow.Record
	options *ScanOptions
	context *ScanContext
}

func (t *inMemoryScanTask) Options() *ScanOptions { return t.options }

func (t *inMemoryScanTask) Context() *ScanContext { return t.context }

func (t *inMemoryScanTask) Execute() (iterator.Iterator[arrow.Record], error) {
	records := t.records
	return iterator.Func(func() (arrow.Record, error) {
		if len(records) == 0 {
			return nil, io.EOF
		}
		r := records[0]
		records = records[1:]
		r.Retain()
		return r, nil
	}, nil), nil
}
