package dataset

import (
	"math"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/apache/arrow/go/v10/arrow/scalar"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"fpetkovski/parquet-scan/expr"
)

var (
	ErrMissingColumn  = errors.New("missing column")
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// RecordBatchProjector reshapes records onto a target schema. Columns are
// matched by name; target columns missing from a record are filled with a
// configured default value, or nulls.
//
// Missing columns are materialized into scratch arrays which are reused and
// grown across calls to Project, so a projector must not be used by more than
// one goroutine at a time. Use Clone to obtain an independent projector.
type RecordBatchProjector struct {
	to       *arrow.Schema
	defaults []scalar.Scalar

	from         *arrow.Schema
	fieldIndices []int

	scratch []arrow.Array
}

func NewRecordBatchProjector(to *arrow.Schema) *RecordBatchProjector {
	return &RecordBatchProjector{
		to:       to,
		defaults: make([]scalar.Scalar, len(to.Fields())),
	}
}

func (p *RecordBatchProjector) Schema() *arrow.Schema { return p.to }

// Clone returns a projector with the same schema and defaults. Scratch
// arrays are never shared with the clone.
func (p *RecordBatchProjector) Clone() *RecordBatchProjector {
	return &RecordBatchProjector{
		to:           p.to,
		defaults:     slices.Clone(p.defaults),
		from:         p.from,
		fieldIndices: slices.Clone(p.fieldIndices),
	}
}

// SetDefaultValue sets the value used for the named field when a record does
// not contain it. The value is cast to the field type.
func (p *RecordBatchProjector) SetDefaultValue(name string, value scalar.Scalar) error {
	indices := p.to.FieldIndices(name)
	if len(indices) == 0 {
		return errors.Wrapf(ErrMissingColumn, "no field %q in projected schema", name)
	}
	i := indices[0]
	field := p.to.Field(i)

	if value != nil && !arrow.TypeEqual(value.DataType(), field.Type) {
		cast, err := value.CastTo(field.Type)
		if err != nil {
			return errors.Wrapf(err, "casting default value of %q to %s", name, field.Type)
		}
		value = cast
	}
	p.defaults[i] = value

	if p.scratch != nil && p.scratch[i] != nil {
		p.scratch[i].Release()
		p.scratch[i] = nil
	}
	// The nullability check of missing columns depends on the defaults.
	p.from = nil
	return nil
}

// SetDefaultsFromPartition uses the field == value bindings of a partition
// expression as defaults. Bindings of fields outside the projected schema are
// ignored.
func (p *RecordBatchProjector) SetDefaultsFromPartition(partition expr.Expression) error {
	bindings := expr.KeyValues(partition)
	names := maps.Keys(bindings)
	slices.Sort(names)

	for _, name := range names {
		indices := p.to.FieldIndices(name)
		if len(indices) == 0 {
			continue
		}
		field := p.to.Field(indices[0])
		if !representable(bindings[name], field.Type) {
			return errors.Wrapf(ErrSchemaMismatch, "partition value %s of %q does not fit %s", bindings[name], name, field.Type)
		}
		value, err := literalScalar(bindings[name])
		if err != nil {
			return err
		}
		if err := p.SetDefaultValue(name, value); err != nil {
			return err
		}
	}
	return nil
}

// Project returns batch reshaped onto the projected schema. The returned
// record is owned by the caller; batch is not released.
func (p *RecordBatchProjector) Project(batch arrow.Record, mem memory.Allocator) (arrow.Record, error) {
	if p.from == nil || !p.from.Equal(batch.Schema()) {
		if err := p.setInputSchema(batch.Schema()); err != nil {
			return nil, err
		}
	}

	numRows := batch.NumRows()
	columns := make([]arrow.Array, len(p.fieldIndices))
	var owned []arrow.Array
	defer func() {
		for _, c := range owned {
			c.Release()
		}
	}()
	for i, idx := range p.fieldIndices {
		if idx >= 0 {
			columns[i] = batch.Column(idx)
			continue
		}
		column, err := p.missingColumn(i, numRows, mem)
		if err != nil {
			return nil, err
		}
		owned = append(owned, column)
		columns[i] = column
	}

	return array.NewRecord(p.to, columns, numRows), nil
}

func (p *RecordBatchProjector) setInputSchema(from *arrow.Schema) error {
	indices := make([]int, 0, len(p.to.Fields()))
	for i, field := range p.to.Fields() {
		matches := from.FieldIndices(field.Name)
		if len(matches) == 0 {
			if p.defaults[i] == nil && !field.Nullable {
				return errors.Wrapf(ErrMissingColumn, "non-nullable field %q has no default", field.Name)
			}
			indices = append(indices, -1)
			continue
		}

		actual := from.Field(matches[0]).Type
		if !arrow.TypeEqual(actual, field.Type) {
			return errors.Wrapf(ErrSchemaMismatch, "field %q has type %s, expected %s", field.Name, actual, field.Type)
		}
		indices = append(indices, matches[0])
	}

	p.from = from
	p.fieldIndices = indices
	return nil
}

// missingColumn returns a new reference to numRows copies of the default
// value of field i. The scratch array is grown when needed and sliced
// otherwise.
func (p *RecordBatchProjector) missingColumn(i int, numRows int64, mem memory.Allocator) (arrow.Array, error) {
	if p.scratch == nil {
		p.scratch = make([]arrow.Array, len(p.to.Fields()))
	}

	if p.scratch[i] == nil || int64(p.scratch[i].Len()) < numRows {
		if p.scratch[i] != nil {
			p.scratch[i].Release()
			p.scratch[i] = nil
		}
		value := p.defaults[i]
		if value == nil {
			value = scalar.MakeNullScalar(p.to.Field(i).Type)
		}
		column, err := scalar.MakeArrayFromScalar(value, int(numRows), mem)
		if err != nil {
			return nil, errors.Wrapf(err, "materializing field %q", p.to.Field(i).Name)
		}
		p.scratch[i] = column
	}

	if int64(p.scratch[i].Len()) == numRows {
		p.scratch[i].Retain()
		return p.scratch[i], nil
	}
	return array.NewSlice(p.scratch[i], 0, numRows), nil
}

// Release frees the scratch arrays. The projector remains usable.
func (p *RecordBatchProjector) Release() {
	for i, column := range p.scratch {
		if column != nil {
			column.Release()
			p.scratch[i] = nil
		}
	}
}

// representable reports whether an integer literal is in the range of an
// integer type. Casting would wrap values outside of it.
func representable(l *expr.Literal, dt arrow.DataType) bool {
	v, ok := l.Value.(int64)
	if !ok {
		return true
	}
	switch dt.ID() {
	case arrow.INT8:
		return v >= math.MinInt8 && v <= math.MaxInt8
	case arrow.INT16:
		return v >= math.MinInt16 && v <= math.MaxInt16
	case arrow.INT32:
		return v >= math.MinInt32 && v <= math.MaxInt32
	case arrow.UINT8:
		return v >= 0 && v <= math.MaxUint8
	case arrow.UINT16:
		return v >= 0 && v <= math.MaxUint16
	case arrow.UINT32:
		return v >= 0 && v <= math.MaxUint32
	case arrow.UINT64:
		return v >= 0
	}
	return true
}

func literalScalar(l *expr.Literal) (scalar.Scalar, error) {
	switch v := l.Value.(type) {
	case nil:
		return nil, nil
	case int64:
		return scalar.NewInt64Scalar(v), nil
	case float64:
		return scalar.NewFloat64Scalar(v), nil
	case string:
		return scalar.NewStringScalar(v), nil
	case bool:
		return scalar.NewBooleanScalar(v), nil
	default:
		return nil, errors.Errorf("unsupported literal %s", l)
	}
}
