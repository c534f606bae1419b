package dataset

import (
	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/memory"

	"fpetkovski/parquet-scan/compute"
	"fpetkovski/parquet-scan/expr"
)

// ExpressionEvaluator evaluates predicates against batches and applies the
// resulting selections. Implementations must be safe for concurrent use.
type ExpressionEvaluator interface {
	Evaluate(predicate expr.Expression, batch arrow.Record, mem memory.Allocator) (compute.Selection, error)
	Filter(selection compute.Selection, batch arrow.Record, mem memory.Allocator) (arrow.Record, error)
}

// ScanOptions are shared by every task of a scan and must not be modified
// once scanning has started.
type ScanOptions struct {
	// Filter is the predicate every yielded row satisfies. Nil selects all rows.
	Filter expr.Expression
	// Evaluator evaluates Filter. Nil uses compute.NewEvaluator().
	Evaluator ExpressionEvaluator
	// Projector is the template that every task clones before projecting
	// batches onto its schema. Nil disables projection.
	Projector *RecordBatchProjector
	// Columns restricts the physical columns fragments read. Nil reads all.
	Columns []string
	// BatchSize is the maximum number of rows per batch read by fragments.
	BatchSize int64
}

const DefaultBatchSize = 32 * 1024

// DefaultScanOptions selects every row and projects onto schema.
func DefaultScanOptions(schema *arrow.Schema) *ScanOptions {
	return &ScanOptions{
		Filter:    expr.True(),
		Evaluator: compute.NewEvaluator(),
		Projector: NewRecordBatchProjector(schema),
		BatchSize: DefaultBatchSize,
	}
}

func (o *ScanOptions) filter() expr.Expression {
	if o.Filter == nil {
		return expr.True()
	}
	return o.Filter
}

func (o *ScanOptions) evaluator() ExpressionEvaluator {
	if o.Evaluator == nil {
		return compute.NewEvaluator()
	}
	return o.Evaluator
}

func (o *ScanOptions) batchSize() int64 {
	if o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

// ScanContext holds execution wide settings shared by every task.
type ScanContext struct {
	Pool memory.Allocator
}

func NewScanContext(pool memory.Allocator) *ScanContext {
	return &ScanContext{Pool: pool}
}

func (c *ScanContext) pool() memory.Allocator {
	if c == nil || c.Pool == nil {
		return memory.DefaultAllocator
	}
	return c.Pool
}
