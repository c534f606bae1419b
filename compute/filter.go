package compute

import (
	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/pkg/errors"
)

type rowRange struct {
	from, to int64
}

// Filter materializes the rows of batch picked by selection. The returned
// record is owned by the caller; batch is not released.
func (e *Evaluator) Filter(selection Selection, batch arrow.Record, mem memory.Allocator) (arrow.Record, error) {
	if selection.IsConstant() {
		if selection.Value() {
			batch.Retain()
			return batch, nil
		}
		return batch.NewSlice(0, 0), nil
	}

	mask := selection.Mask()
	if int64(mask.Len()) != batch.NumRows() {
		return nil, errors.Errorf("selection has %d rows, batch has %d", mask.Len(), batch.NumRows())
	}

	ranges := selectedRanges(mask)
	switch {
	case len(ranges) == 0:
		return batch.NewSlice(0, 0), nil
	case len(ranges) == 1 && ranges[0].from == 0 && ranges[0].to == batch.NumRows():
		batch.Retain()
		return batch, nil
	case len(ranges) == 1:
		return batch.NewSlice(ranges[0].from, ranges[0].to), nil
	}

	var numRows int64
	for _, r := range ranges {
		numRows += r.to - r.from
	}

	columns := make([]arrow.Array, 0, batch.NumCols())
	defer func() {
		for _, c := range columns {
			c.Release()
		}
	}()
	for _, column := range batch.Columns() {
		filtered, err := takeRanges(column, ranges, mem)
		if err != nil {
			return nil, err
		}
		columns = append(columns, filtered)
	}

	return array.NewRecord(batch.Schema(), columns, numRows), nil
}

// selectedRanges returns the maximal runs of selected rows in mask.
func selectedRanges(mask *array.Boolean) []rowRange {
	var (
		ranges []rowRange
		start  int64 = -1
	)
	for i := 0; i < mask.Len(); i++ {
		selected := mask.IsValid(i) && mask.Value(i)
		switch {
		case selected && start < 0:
			start = int64(i)
		case !selected && start >= 0:
			ranges = append(ranges, rowRange{from: start, to: int64(i)})
			start = -1
		}
	}
	if start >= 0 {
		ranges = append(ranges, rowRange{from: start, to: int64(mask.Len())})
	}
	return ranges
}

func takeRanges(column arrow.Array, ranges []rowRange, mem memory.Allocator) (arrow.Array, error) {
	slices := make([]arrow.Array, 0, len(ranges))
	defer func() {
		for _, s := range slices {
			s.Release()
		}
	}()
	for _, r := range ranges {
		slices = append(slices, array.NewSlice(column, r.from, r.to))
	}

	concatenated, err := array.Concatenate(slices, mem)
	if err != nil {
		return nil, errors.Wrapf(err, "filtering column of type %s", column.DataType())
	}
	return concatenated, nil
}
