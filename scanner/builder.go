package scanner

import (
	"context"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/pkg/errors"

	"fpetkovski/parquet-scan/compute"
	"fpetkovski/parquet-scan/dataset"
	"fpetkovski/parquet-scan/expr"
)

var ErrUnknownColumn = errors.New("unknown column")

// Builder configures a Scanner over a dataset.
type Builder struct {
	dataset dataset.Dataset
	schema  *arrow.Schema

	columns   []string
	filter    expr.Expression
	batchSize int64
	pool      memory.Allocator
	opts      []Option
}

// NewBuilder resolves the schema of ds. By default every column is projected
// and every row is selected.
func NewBuilder(ctx context.Context, ds dataset.Dataset) (*Builder, error) {
	schema, err := ds.Schema(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "resolving dataset schema")
	}
	return &Builder{
		dataset:   ds,
		schema:    schema,
		filter:    expr.True(),
		batchSize: dataset.DefaultBatchSize,
	}, nil
}

// Project selects the columns of the scanned batches, in order.
func (b *Builder) Project(columns ...string) *Builder {
	b.columns = columns
	return b
}

func (b *Builder) Filter(filter expr.Expression) *Builder {
	b.filter = filter
	return b
}

func (b *Builder) BatchSize(n int64) *Builder {
	b.batchSize = n
	return b
}

func (b *Builder) Pool(pool memory.Allocator) *Builder {
	b.pool = pool
	return b
}

// Executor configures the executor of the scanner.
func (b *Builder) Executor(opts ...Option) *Builder {
	b.opts = append(b.opts, opts...)
	return b
}

func (b *Builder) Finish() (*Scanner, error) {
	schema := b.schema
	if b.columns != nil {
		fields := make([]arrow.Field, 0, len(b.columns))
		for _, name := range b.columns {
			indices := b.schema.FieldIndices(name)
			if len(indices) == 0 {
				return nil, errors.Wrapf(ErrUnknownColumn, "projected column %q", name)
			}
			fields = append(fields, b.schema.Field(indices[0]))
		}
		schema = arrow.NewSchema(fields, nil)
	}

	filter := b.filter
	if filter == nil {
		filter = expr.True()
	}
	for _, name := range expr.Fields(filter) {
		if len(b.schema.FieldIndices(name)) == 0 {
			return nil, errors.Wrapf(ErrUnknownColumn, "filter column %q", name)
		}
	}

	options := &dataset.ScanOptions{
		Filter:    filter,
		Evaluator: compute.NewEvaluator(),
		Projector: dataset.NewRecordBatchProjector(schema),
		Columns:   readColumns(schema, filter),
		BatchSize: b.batchSize,
	}
	return &Scanner{
		dataset:  b.dataset,
		options:  options,
		scanCtx:  dataset.NewScanContext(b.pool),
		executor: NewExecutor(b.opts...),
	}, nil
}

// readColumns are the columns fragments need to read: the projected columns
// followed by the columns only referenced by the filter.
func readColumns(projected *arrow.Schema, filter expr.Expression) []string {
	columns := make([]string, 0, len(projected.Fields()))
	seen := make(map[string]struct{})
	for _, f := range projected.Fields() {
		columns = append(columns, f.Name)
		seen[f.Name] = struct{}{}
	}
	for _, name := range expr.Fields(filter) {
		if _, ok := seen[name]; !ok {
			columns = append(columns, name)
		}
	}
	return columns
}
