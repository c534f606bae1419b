package dataset

import (
	"testing"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/scalar"
	"github.com/stretchr/testify/require"

	"fpetkovski/parquet-scan/expr"
)

func TestRecordBatchProjector(t *testing.T) {
	mem := checkedAllocator(t)

	to := arrow.NewSchema([]arrow.Field{
		{Name: "year", Type: arrow.PrimitiveTypes.Int32},
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "region", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	projector := NewRecordBatchProjector(to)
	defer projector.Release()

	partition := expr.And(
		expr.Eq(expr.Field("year"), expr.Int(2021)),
		expr.Eq(expr.Field("tenant"), expr.String("ignored")),
	)
	require.NoError(t, projector.SetDefaultsFromPartition(partition))

	// Batches grow and shrink to exercise reuse of the scratch arrays.
	for _, ids := range [][]int64{{1, 2}, {3, 4, 5, 6}, {7}, {}} {
		in := newRecord(mem, ids...)
		out, err := projector.Project(in, mem)
		in.Release()
		require.NoError(t, err)

		require.True(t, to.Equal(out.Schema()))
		require.Equal(t, int64(len(ids)), out.NumRows())
		require.Equal(t, ids, int64Column(t, out, "id"))

		years := out.Column(0).(*array.Int32)
		for i := 0; i < years.Len(); i++ {
			require.Equal(t, int32(2021), years.Value(i))
		}
		require.Equal(t, len(ids), out.Column(2).NullN())
		out.Release()
	}
}

func TestRecordBatchProjectorClone(t *testing.T) {
	mem := checkedAllocator(t)

	template := NewRecordBatchProjector(scanSchema)
	west := template.Clone()
	defer west.Release()
	east := template.Clone()
	defer east.Release()

	require.NoError(t, west.SetDefaultValue("region", scalar.NewStringScalar("west")))
	require.NoError(t, east.SetDefaultValue("region", scalar.NewStringScalar("east")))

	in := newRecord(mem, 1, 2)
	defer in.Release()

	for expected, projector := range map[string]*RecordBatchProjector{"west": west, "east": east, "<null>": template} {
		out, err := projector.Project(in, mem)
		require.NoError(t, err)
		require.Equal(t, []string{expected, expected}, stringColumn(t, out, "region"))
		out.Release()
	}
	template.Release()
}

func TestRecordBatchProjectorErrors(t *testing.T) {
	projector := NewRecordBatchProjector(scanSchema)

	err := projector.SetDefaultValue("missing", scalar.NewInt64Scalar(1))
	require.ErrorIs(t, err, ErrMissingColumn)

	err = projector.SetDefaultValue("id", scalar.NewStringScalar("not a number"))
	require.Error(t, err)
}

func TestRecordBatchProjectorPartitionOutOfRange(t *testing.T) {
	mem := checkedAllocator(t)
	to := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "p", Type: arrow.PrimitiveTypes.Int8},
	}, nil)

	projector := NewRecordBatchProjector(to)
	defer projector.Release()

	err := projector.SetDefaultsFromPartition(expr.Eq(expr.Field("p"), expr.Int(300)))
	require.ErrorIs(t, err, ErrSchemaMismatch)

	require.NoError(t, projector.SetDefaultsFromPartition(expr.Eq(expr.Field("p"), expr.Int(-128))))
	in := newRecord(mem, 1)
	defer in.Release()
	out, err := projector.Project(in, mem)
	require.NoError(t, err)
	defer out.Release()
	require.Equal(t, int8(-128), out.Column(1).(*array.Int8).Value(0))
}
