package scanner

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/thanos-io/objstore"
	"go.uber.org/goleak"

	"fpetkovski/parquet-scan/compute"
	"fpetkovski/parquet-scan/dataset"
	"fpetkovski/parquet-scan/expr"
	"fpetkovski/parquet-scan/iterator"
	"fpetkovski/parquet-scan/pqtest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	physicalSchema = arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "value", Type: arrow.PrimitiveTypes.Float64},
	}, nil)
	datasetSchema = arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "value", Type: arrow.PrimitiveTypes.Float64},
		{Name: "region", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
)

func checkedAllocator(t *testing.T) *memory.CheckedAllocator {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	t.Cleanup(func() { mem.AssertSize(t, 0) })
	return mem
}

func newRecord(mem memory.Allocator, ids ...int64) arrow.Record {
	b := array.NewRecordBuilder(mem, physicalSchema)
	defer b.Release()

	for _, id := range ids {
		b.Field(0).(*array.Int64Builder).Append(id)
		b.Field(1).(*array.Float64Builder).Append(float64(id) / 2)
	}
	return b.NewRecord()
}

type failingFragment struct {
	name string
}

func (f failingFragment) String() string { return f.name }

func (f failingFragment) PartitionExpression() expr.Expression { return nil }

func (f failingFragment) Scan(*dataset.ScanOptions, *dataset.ScanContext) (iterator.Iterator[dataset.ScanTask], error) {
	return nil, errFragment
}

var errFragment = errors.New("fragment is corrupt")

// newInMemoryDataset creates one fragment per region, each with one task per
// record of ids.
func newInMemoryDataset(t *testing.T, mem memory.Allocator, regions map[string][][]int64, order ...string) *dataset.InMemoryDataset {
	fragments := make([]dataset.Fragment, 0, len(order))
	for _, region := range order {
		if region == "" {
			fragments = append(fragments, failingFragment{name: "broken"})
			continue
		}

		records := make([]arrow.Record, 0, len(regions[region]))
		for _, ids := range regions[region] {
			records = append(records, newRecord(mem, ids...))
		}
		partition := expr.Eq(expr.Field("region"), expr.String(region))
		fragment := dataset.NewInMemoryFragment(region, records, partition)
		fragment.BatchesPerTask = 1
		for _, r := range records {
			r.Release()
		}
		t.Cleanup(fragment.Release)
		fragments = append(fragments, fragment)
	}
	return dataset.NewInMemoryDataset(datasetSchema, fragments...)
}

func columnValues(t *testing.T, records []arrow.Record, name string) []string {
	values := []string{}
	for _, rec := range records {
		indices := rec.Schema().FieldIndices(name)
		require.Len(t, indices, 1)
		column := rec.Column(indices[0])
		for i := 0; i < column.Len(); i++ {
			switch c := column.(type) {
			case *array.Int64:
				values = append(values, fmt.Sprint(c.Value(i)))
			case *array.String:
				values = append(values, c.Value(i))
			}
		}
	}
	return values
}

func release(records []arrow.Record) {
	for _, r := range records {
		r.Release()
	}
}

func TestScannerToRecordsKeepsOrder(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		for _, readahead := range []int{0, 2} {
			t.Run(fmt.Sprintf("concurrency=%d/readahead=%d", concurrency, readahead), func(t *testing.T) {
				mem := checkedAllocator(t)
				ds := newInMemoryDataset(t, mem, map[string][][]int64{
					"east":  {{1, 2}, {3}},
					"west":  {{4}, {5, 6, 7}, {8}},
					"north": {{9}},
				}, "east", "west", "north")

				builder, err := NewBuilder(context.Background(), ds)
				require.NoError(t, err)
				scanner, err := builder.
					Project("region", "id").
					Pool(mem).
					Executor(WithConcurrency(concurrency), WithReadahead(readahead)).
					Finish()
				require.NoError(t, err)

				records, err := scanner.ToRecords(context.Background())
				require.NoError(t, err)
				defer release(records)

				require.Len(t, records, 6)
				require.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7", "8", "9"}, columnValues(t, records, "id"))
				require.Equal(t, []string{"east", "east", "east", "west", "west", "west", "west", "west", "north"}, columnValues(t, records, "region"))
			})
		}
	}
}

func TestScannerFilter(t *testing.T) {
	mem := checkedAllocator(t)
	ds := newInMemoryDataset(t, mem, map[string][][]int64{
		"east": {{1, 2, 3}, {4, 5}},
		"west": {{6, 7}, {8, 9}},
	}, "east", "west")

	builder, err := NewBuilder(context.Background(), ds)
	require.NoError(t, err)
	scanner, err := builder.
		Project("id").
		Filter(expr.Or(
			expr.And(expr.Eq(expr.Field("region"), expr.String("east")), expr.Greater(expr.Field("value"), expr.Float(1))),
			expr.Eq(expr.Field("id"), expr.Int(7)),
		)).
		Pool(mem).
		Executor(WithConcurrency(2)).
		Finish()
	require.NoError(t, err)
	require.Equal(t, []string{"id", "region", "value"}, scanner.Options().Columns)
	require.True(t, arrow.NewSchema([]arrow.Field{datasetSchema.Field(0)}, nil).Equal(scanner.Schema()))

	records, err := scanner.ToRecords(context.Background())
	require.NoError(t, err)
	defer release(records)
	require.Equal(t, []string{"3", "4", "5", "7"}, columnValues(t, records, "id"))
}

func TestBuilderUnknownColumns(t *testing.T) {
	ds := dataset.NewInMemoryDataset(datasetSchema)

	builder, err := NewBuilder(context.Background(), ds)
	require.NoError(t, err)
	_, err = builder.Project("id", "missing").Finish()
	require.ErrorIs(t, err, ErrUnknownColumn)

	builder, err = NewBuilder(context.Background(), ds)
	require.NoError(t, err)
	_, err = builder.Filter(expr.Eq(expr.Field("missing"), expr.Int(1))).Finish()
	require.ErrorIs(t, err, ErrUnknownColumn)
}

func TestScannerErrors(t *testing.T) {
	cases := []struct {
		name     string
		tolerate bool
		filter   expr.Expression
		order    []string

		expectedErr            error
		expectedIDs            []string
		expectedFragmentErrors float64
		expectedFailedTasks    float64
	}{
		{
			name:                   "fragment failure aborts the scan",
			order:                  []string{"east", "", "west"},
			expectedErr:            errFragment,
			expectedFragmentErrors: 1,
		},
		{
			name:                   "fragment failure is skipped",
			tolerate:               true,
			order:                  []string{"east", "", "west"},
			expectedIDs:            []string{"1", "2", "3"},
			expectedFragmentErrors: 1,
		},
		{
			name:                "task failure aborts the scan",
			filter:              expr.Eq(expr.Field("id"), expr.String("1")),
			order:               []string{"east", "west"},
			expectedErr:         compute.ErrTypeMismatch,
			expectedFailedTasks: 1,
		},
		{
			name:                "task failures are skipped",
			tolerate:            true,
			filter:              expr.Eq(expr.Field("id"), expr.String("1")),
			order:               []string{"east", "west"},
			expectedIDs:         []string{},
			expectedFailedTasks: 3,
		},
	}

	for _, tcase := range cases {
		t.Run(tcase.name, func(t *testing.T) {
			mem := checkedAllocator(t)
			ds := newInMemoryDataset(t, mem, map[string][][]int64{
				"east": {{1}, {2}},
				"west": {{3}},
			}, tcase.order...)

			reg := prometheus.NewRegistry()
			builder, err := NewBuilder(context.Background(), ds)
			require.NoError(t, err)
			if tcase.filter != nil {
				builder.Filter(tcase.filter)
			}
			scanner, err := builder.
				Project("id").
				Pool(mem).
				Executor(WithRegisterer(reg), WithTolerateErrors(tcase.tolerate)).
				Finish()
			require.NoError(t, err)

			records, err := scanner.ToRecords(context.Background())
			if tcase.expectedErr != nil {
				require.ErrorIs(t, err, tcase.expectedErr)
			} else {
				require.NoError(t, err)
				require.Equal(t, tcase.expectedIDs, columnValues(t, records, "id"))
				release(records)
			}

			executor := scanner.executor
			require.Equal(t, tcase.expectedFragmentErrors, testutil.ToFloat64(executor.metrics.fragmentErrors))
			require.Equal(t, tcase.expectedFailedTasks, testutil.ToFloat64(executor.metrics.tasks.WithLabelValues("failure")))
		})
	}
}

func TestExecutorCancellation(t *testing.T) {
	mem := checkedAllocator(t)
	ds := newInMemoryDataset(t, mem, map[string][][]int64{
		"east": {{1}, {2}, {3}, {4}},
		"west": {{5}, {6}, {7}, {8}},
	}, "east", "west")

	builder, err := NewBuilder(context.Background(), ds)
	require.NoError(t, err)
	scanner, err := builder.
		Pool(mem).
		Executor(WithConcurrency(2), WithReadahead(1)).
		Finish()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var visited atomic.Int32
	err = scanner.Execute(ctx, func(task int, batch arrow.Record) error {
		cancel()
		visited.Add(1)
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, visited.Load(), int32(8))
}

func TestScannerOverBucket(t *testing.T) {
	ctx := context.Background()
	bucket := objstore.NewInMemBucket()
	require.NoError(t, pqtest.Upload(ctx, bucket, "metrics/region=west/0.parquet", [][]pqtest.Row{
		pqtest.Rows(1, 2, 3),
		pqtest.Rows(4, 5, 6),
	}))
	require.NoError(t, pqtest.Upload(ctx, bucket, "metrics/region=east/0.parquet", [][]pqtest.Row{
		pqtest.Rows(7, 8),
	}))

	partitioning := dataset.NewHivePartitioning(arrow.NewSchema([]arrow.Field{
		{Name: "region", Type: arrow.BinaryTypes.String},
	}, nil))
	builder, err := NewBuilder(ctx, dataset.NewBucketDataset(bucket, "metrics/", partitioning))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	scanner, err := builder.
		Project("region", "id").
		Filter(expr.GreaterEq(expr.Field("value"), expr.Float(2))).
		BatchSize(2).
		Executor(WithConcurrency(3), WithRegisterer(reg)).
		Finish()
	require.NoError(t, err)

	records, err := scanner.ToRecords(ctx)
	require.NoError(t, err)
	defer release(records)

	require.Equal(t, []string{"7", "8", "4", "5", "6"}, columnValues(t, records, "id"))
	require.Equal(t, []string{"east", "east", "west", "west", "west"}, columnValues(t, records, "region"))
	require.Equal(t, float64(5), testutil.ToFloat64(scanner.executor.metrics.rows))
}
