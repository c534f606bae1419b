package dataset

import (
	"github.com/apache/arrow/go/v10/parquet/metadata"
	"github.com/apache/arrow/go/v10/parquet/schema"

	"fpetkovski/parquet-scan/expr"
)

// rowGroupStatistics describes the rows of a row group with the min/max
// statistics of its columns, e.g. (id >= 1 and id <= 10). Columns without
// statistics are left out. The result is nil if no column has statistics.
func rowGroupStatistics(md *metadata.FileMetaData, rowGroup int) expr.Expression {
	rg := md.RowGroup(rowGroup)

	var conjuncts []expr.Expression
	for i := 0; i < rg.NumColumns(); i++ {
		chunk, err := rg.ColumnChunk(i)
		if err != nil {
			continue
		}
		if ok, err := chunk.StatsSet(); err != nil || !ok {
			continue
		}
		stats, err := chunk.Statistics()
		if err != nil || stats == nil || !stats.HasMinMax() {
			continue
		}
		// A column with nulls can still hold rows outside of the bounds.
		if stats.HasNullCount() && stats.NullCount() > 0 {
			continue
		}

		column := md.Schema.Column(i)
		min, max, ok := statisticsBounds(stats, column.SortOrder())
		if !ok {
			continue
		}
		field := expr.Field(column.Name())
		conjuncts = append(conjuncts, expr.GreaterEq(field, min), expr.LessEq(field, max))
	}
	return conjunction(conjuncts)
}

// statisticsBounds only trusts statistics whose sort order matches the order
// in which expressions compare values.
func statisticsBounds(stats metadata.TypedStatistics, order schema.SortOrder) (*expr.Literal, *expr.Literal, bool) {
	switch s := stats.(type) {
	case *metadata.ByteArrayStatistics:
		if order != schema.SortUNSIGNED {
			return nil, nil, false
		}
		return expr.String(string(s.Min())), expr.String(string(s.Max())), true
	}
	if order != schema.SortSIGNED {
		return nil, nil, false
	}

	switch s := stats.(type) {
	case *metadata.Int32Statistics:
		return expr.Int(int64(s.Min())), expr.Int(int64(s.Max())), true
	case *metadata.Int64Statistics:
		return expr.Int(s.Min()), expr.Int(s.Max()), true
	case *metadata.Float32Statistics:
		return expr.Float(float64(s.Min())), expr.Float(float64(s.Max())), true
	case *metadata.Float64Statistics:
		return expr.Float(s.Min()), expr.Float(s.Max()), true
	default:
		return nil, nil, false
	}
}

// skipRowGroup reports whether no row described by statistics and partition
// can satisfy filter.
func skipRowGroup(filter, partition, statistics expr.Expression) bool {
	if filter == nil || statistics == nil {
		return false
	}
	given := statistics
	if partition != nil {
		given = expr.And(partition, statistics)
	}
	return !expr.IsSatisfiable(filter.Assume(given))
}
