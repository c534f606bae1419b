package dataset

import (
	"sync"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/pkg/errors"

	"fpetkovski/parquet-scan/expr"
	"fpetkovski/parquet-scan/iterator"
)

var ErrTaskExecuted = errors.New("scan task already executed")

// FilterRecordBatch lazily filters every record of it with filter. Input
// records are released once filtered. The first failure ends the sequence.
func FilterRecordBatch(it iterator.Iterator[arrow.Record], evaluator ExpressionEvaluator, filter expr.Expression, mem memory.Allocator) iterator.Iterator[arrow.Record] {
	return iterator.Fuse(iterator.MaybeMap(it, func(in arrow.Record) (arrow.Record, error) {
		defer in.Release()

		selection, err := evaluator.Evaluate(filter, in, mem)
		if err != nil {
			return nil, err
		}
		defer selection.Release()

		return evaluator.Filter(selection, in, mem)
	}))
}

// ProjectRecordBatch lazily projects every record of it. The projector is
// cloned once for the returned sequence, which owns the clone and releases it
// on Close. Input records are released once projected and the first failure
// ends the sequence.
func ProjectRecordBatch(it iterator.Iterator[arrow.Record], projector *RecordBatchProjector, mem memory.Allocator) iterator.Iterator[arrow.Record] {
	local := projector.Clone()
	projected := iterator.Fuse(iterator.MaybeMap(it, func(in arrow.Record) (arrow.Record, error) {
		defer in.Release()
		return local.Project(in, mem)
	}))

	return &releasingIterator{
		Iterator: projected,
		release:  local.Release,
	}
}

type releasingIterator struct {
	iterator.Iterator[arrow.Record]
	once    sync.Once
	release func()
}

func (r *releasingIterator) Close() error {
	err := r.Iterator.Close()
	r.once.Do(r.release)
	return err
}

// FilterAndProjectScanTask decorates a scan task so that its batches are
// filtered with the scan filter, specialized to the partition of the task's
// fragment, and then projected onto the scan schema.
type FilterAndProjectScanTask struct {
	task      ScanTask
	partition expr.Expression

	filter    expr.Expression
	projector *RecordBatchProjector
	executed  bool
}

func NewFilterAndProjectScanTask(task ScanTask, partition expr.Expression) *FilterAndProjectScanTask {
	t := &FilterAndProjectScanTask{
		task:      task,
		partition: partition,
	}
	if task.Options().Projector != nil {
		t.projector = task.Options().Projector.Clone()
	}
	return t
}

func (t *FilterAndProjectScanTask) Options() *ScanOptions { return t.task.Options() }

func (t *FilterAndProjectScanTask) Context() *ScanContext { return t.task.Context() }

// Partition returns the partition expression of the task's fragment.
func (t *FilterAndProjectScanTask) Partition() expr.Expression { return t.partition }

// Filter returns the specialized filter. It is nil until Execute is called.
func (t *FilterAndProjectScanTask) Filter() expr.Expression { return t.filter }

// Execute may only be called once.
func (t *FilterAndProjectScanTask) Execute() (iterator.Iterator[arrow.Record], error) {
	if t.executed {
		return nil, ErrTaskExecuted
	}
	t.executed = true

	it, err := t.task.Execute()
	if err != nil {
		return nil, err
	}

	options := t.Options()
	pool := t.Context().pool()

	t.filter = options.filter().Assume(t.partition)
	filtered := FilterRecordBatch(it, options.evaluator(), t.filter, pool)
	if t.projector == nil {
		return filtered, nil
	}

	if t.partition != nil {
		if err := t.projector.SetDefaultsFromPartition(t.partition); err != nil {
			filtered.Close()
			return nil, errors.Wrap(err, "setting partition defaults")
		}
	}
	return ProjectRecordBatch(filtered, t.projector, pool), nil
}

// GetScanTaskIterator turns a sequence of fragments into a flat sequence of
// filter-and-project scan tasks. Fragments are scanned one at a time, only
// once every task of the previous fragment has been pulled. A fragment that
// fails to scan contributes a single error element.
func GetScanTaskIterator(fragments iterator.Iterator[Fragment], options *ScanOptions, scanCtx *ScanContext) iterator.Iterator[ScanTask] {
	perFragment := iterator.MaybeMap(fragments, func(fragment Fragment) (iterator.Iterator[ScanTask], error) {
		tasks, err := fragment.Scan(options, scanCtx)
		if err != nil {
			return nil, errors.Wrapf(err, "scanning fragment %s", fragment)
		}

		partition := fragment.PartitionExpression()
		return iterator.Map(tasks, func(task ScanTask) ScanTask {
			return NewFilterAndProjectScanTask(task, partition)
		}), nil
	})

	return iterator.Flatten(perFragment)
}
