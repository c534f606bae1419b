package dataset

import (
	"testing"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/stretchr/testify/require"

	"fpetkovski/parquet-scan/expr"
)

var partitionSchema = arrow.NewSchema([]arrow.Field{
	{Name: "year", Type: arrow.PrimitiveTypes.Int32},
	{Name: "region", Type: arrow.BinaryTypes.String},
}, nil)

func TestHivePartitioning(t *testing.T) {
	cases := []struct {
		name     string
		path     string
		expected expr.Expression
		err      bool
	}{
		{
			name: "all fields",
			path: "year=2021/region=west/part-0.parquet",
			expected: expr.And(
				expr.Eq(expr.Field("year"), expr.Int(2021)),
				expr.Eq(expr.Field("region"), expr.String("west")),
			),
		},
		{
			name:     "unknown keys are ignored",
			path:     "tenant=a/region=west/part-0.parquet",
			expected: expr.Eq(expr.Field("region"), expr.String("west")),
		},
		{
			name:     "escaped values",
			path:     "region=us%2Feast/part-0.parquet",
			expected: expr.Eq(expr.Field("region"), expr.String("us/east")),
		},
		{
			name:     "default partition is skipped",
			path:     "year=__HIVE_DEFAULT_PARTITION__/region=west/part-0.parquet",
			expected: expr.Eq(expr.Field("region"), expr.String("west")),
		},
		{
			name: "no partition directories",
			path: "part-0.parquet",
		},
		{
			name: "invalid typed value",
			path: "year=last/part-0.parquet",
			err:  true,
		},
	}

	partitioning := NewHivePartitioning(partitionSchema)
	for _, tcase := range cases {
		t.Run(tcase.name, func(t *testing.T) {
			partition, err := partitioning.Parse(tcase.path)
			if tcase.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tcase.expected == nil {
				require.Nil(t, partition)
				return
			}
			require.Truef(t, tcase.expected.Equal(partition), "expected %s, got %s", tcase.expected, partition)
		})
	}
}

func TestDirectoryPartitioning(t *testing.T) {
	partitioning := NewDirectoryPartitioning(partitionSchema)

	partition, err := partitioning.Parse("2021/west/extra/part-0.parquet")
	require.NoError(t, err)
	expected := expr.And(
		expr.Eq(expr.Field("year"), expr.Int(2021)),
		expr.Eq(expr.Field("region"), expr.String("west")),
	)
	require.Truef(t, expected.Equal(partition), "expected %s, got %s", expected, partition)

	partition, err = partitioning.Parse("2021/part-0.parquet")
	require.NoError(t, err)
	require.Equal(t, `(year == 2021)`, partition.String())

	_, err = partitioning.Parse("west/2021/part-0.parquet")
	require.Error(t, err)
}

func TestPartitioningValueRanges(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "p", Type: arrow.PrimitiveTypes.Int8},
		{Name: "u", Type: arrow.PrimitiveTypes.Uint8},
		{Name: "f", Type: arrow.PrimitiveTypes.Float32},
	}, nil)

	cases := []struct {
		path     string
		expected string
		err      bool
	}{
		{path: "p=127/u=255/x.parquet", expected: "((p == 127) and (u == 255))"},
		{path: "p=-128/x.parquet", expected: "(p == -128)"},
		{path: "p=300/x.parquet", err: true},
		{path: "p=-129/x.parquet", err: true},
		{path: "u=256/x.parquet", err: true},
		{path: "u=-1/x.parquet", err: true},
		{path: "f=1e40/x.parquet", err: true},
	}

	hive := NewHivePartitioning(schema)
	for _, tcase := range cases {
		t.Run(tcase.path, func(t *testing.T) {
			partition, err := hive.Parse(tcase.path)
			if tcase.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tcase.expected, partition.String())
		})
	}

	_, err := NewDirectoryPartitioning(schema).Parse("300/1/x.parquet")
	require.Error(t, err)
}
