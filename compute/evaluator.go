package compute

import (
	"bytes"
	"math"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/pkg/errors"

	"fpetkovski/parquet-scan/expr"
)

var (
	ErrTypeMismatch = errors.New("type mismatch")
	ErrNotBoolean   = errors.New("expression is not boolean")
)

// Evaluator evaluates predicate expressions against arrow records using
// three-valued logic. A field missing from a record evaluates to null, the
// same as a column the projector fills with nulls. It holds no state and is
// safe for concurrent use.
type Evaluator struct{}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate computes which rows of batch satisfy predicate.
func (e *Evaluator) Evaluate(predicate expr.Expression, batch arrow.Record, mem memory.Allocator) (Selection, error) {
	result, err := e.eval(predicate, batch)
	if err != nil {
		return Selection{}, err
	}
	if result.constant {
		return ConstantSelection(!result.null && result.value), nil
	}

	builder := array.NewBooleanBuilder(mem)
	defer builder.Release()
	builder.AppendValues(result.values, result.valid)
	return MaskSelection(builder.NewBooleanArray()), nil
}

// truth is a boolean column with nulls, or a constant.
type truth struct {
	constant bool
	value    bool
	null     bool

	values []bool
	// valid is nil if every row is valid.
	valid []bool
}

func constantTruth(value bool) truth { return truth{constant: true, value: value} }

func nullTruth() truth { return truth{constant: true, null: true} }

func (t truth) isFalse() bool { return t.constant && !t.null && !t.value }

func (t truth) isTrue() bool { return t.constant && !t.null && t.value }

func (t truth) at(i int) (value bool, valid bool) {
	if t.constant {
		return t.value, !t.null
	}
	if t.valid != nil && !t.valid[i] {
		return false, false
	}
	return t.values[i], true
}

func (e *Evaluator) eval(predicate expr.Expression, batch arrow.Record) (truth, error) {
	switch p := predicate.(type) {
	case *expr.Literal:
		switch v := p.Value.(type) {
		case nil:
			return nullTruth(), nil
		case bool:
			return constantTruth(v), nil
		default:
			return truth{}, errors.Wrapf(ErrNotBoolean, "literal %s", p)
		}
	case *expr.FieldRef:
		column, ok := lookupColumn(batch, p.Name)
		if !ok {
			return nullTruth(), nil
		}
		values, ok := column.(*array.Boolean)
		if !ok {
			return truth{}, errors.Wrapf(ErrNotBoolean, "field %s of type %s", p.Name, column.DataType())
		}
		return compareEach(values, func(i int) bool { return values.Value(i) }), nil
	case *expr.Comparison:
		return e.evalComparison(p, batch)
	case *expr.Conjunction:
		return e.evalConnective(p.Operands, batch, true)
	case *expr.Disjunction:
		return e.evalConnective(p.Operands, batch, false)
	case *expr.Negation:
		operand, err := e.eval(p.Operand, batch)
		if err != nil {
			return truth{}, err
		}
		return negate(operand), nil
	default:
		return truth{}, errors.Errorf("unsupported expression %T", predicate)
	}
}

func (e *Evaluator) evalComparison(c *expr.Comparison, batch arrow.Record) (truth, error) {
	if folded := c.Assume(nil); folded != expr.Expression(c) {
		return e.eval(folded, batch)
	}

	if fc, ok := c.Normalize(); ok {
		column, ok := lookupColumn(batch, fc.Field)
		if !ok || fc.Value.IsNull() {
			return nullTruth(), nil
		}
		return compareColumnToLiteral(column, fc.Op, fc.Value.Value)
	}

	left, lok := c.Left.(*expr.FieldRef)
	right, rok := c.Right.(*expr.FieldRef)
	if !lok || !rok {
		return truth{}, errors.Errorf("unsupported comparison %s", c)
	}
	leftColumn, lok := lookupColumn(batch, left.Name)
	rightColumn, rok := lookupColumn(batch, right.Name)
	if !lok || !rok {
		return nullTruth(), nil
	}
	return compareColumns(leftColumn, rightColumn, c.Op)
}

// evalConnective evaluates a conjunction (and == true) or disjunction with
// Kleene semantics, stopping early once the result is decided for every row.
func (e *Evaluator) evalConnective(operands []expr.Expression, batch arrow.Record, and bool) (truth, error) {
	result := constantTruth(and)
	for _, operand := range operands {
		t, err := e.eval(operand, batch)
		if err != nil {
			return truth{}, err
		}
		result = combine(result, t, int(batch.NumRows()), and)
		if (and && result.isFalse()) || (!and && result.isTrue()) {
			return result, nil
		}
	}
	return result, nil
}

func combine(a, b truth, numRows int, and bool) truth {
	if a.constant && b.constant {
		v, ok := kleene(a.value, !a.null, b.value, !b.null, and)
		return truth{constant: true, value: v, null: !ok}
	}

	out := truth{values: make([]bool, numRows)}
	for i := 0; i < numRows; i++ {
		av, aok := a.at(i)
		bv, bok := b.at(i)
		v, ok := kleene(av, aok, bv, bok, and)
		out.values[i] = v
		if !ok {
			if out.valid == nil {
				out.valid = make([]bool, numRows)
				for j := 0; j < i; j++ {
					out.valid[j] = true
				}
			}
			continue
		}
		if out.valid != nil {
			out.valid[i] = true
		}
	}
	return out
}

func kleene(a, aok, b, bok, and bool) (bool, bool) {
	if and {
		if (aok && !a) || (bok && !b) {
			return false, true
		}
		if !aok || !bok {
			return false, false
		}
		return true, true
	}
	if (aok && a) || (bok && b) {
		return true, true
	}
	if !aok || !bok {
		return false, false
	}
	return false, true
}

func negate(t truth) truth {
	if t.constant {
		return truth{constant: true, value: !t.value, null: t.null}
	}
	out := truth{values: make([]bool, len(t.values)), valid: t.valid}
	for i, v := range t.values {
		out.values[i] = !v
	}
	return out
}

func lookupColumn(batch arrow.Record, name string) (arrow.Array, bool) {
	indices := batch.Schema().FieldIndices(name)
	if len(indices) == 0 {
		return nil, false
	}
	return batch.Column(indices[0]), true
}

// compareEach builds a truth column from a per-row predicate, marking null
// rows of column as null.
func compareEach(column arrow.Array, matches func(i int) bool) truth {
	n := column.Len()
	out := truth{values: make([]bool, n)}
	if column.NullN() > 0 {
		out.valid = make([]bool, n)
	}
	for i := 0; i < n; i++ {
		if out.valid != nil {
			if column.IsNull(i) {
				continue
			}
			out.valid[i] = true
		}
		out.values[i] = matches(i)
	}
	return out
}

func compareColumnToLiteral(column arrow.Array, op expr.CompareOp, literal any) (truth, error) {
	mismatch := func() (truth, error) {
		return truth{}, errors.Wrapf(ErrTypeMismatch, "cannot compare %s with %T", column.DataType(), literal)
	}

	if ints, ok := intValues(column); ok {
		switch v := literal.(type) {
		case int64:
			return compareEach(column, func(i int) bool { return op.Matches(compareInt64(ints(i), v)) }), nil
		case float64:
			return compareEach(column, func(i int) bool { return matchFloat64(op, float64(ints(i)), v) }), nil
		}
		return mismatch()
	}
	if floats, ok := floatValues(column); ok {
		switch v := literal.(type) {
		case int64:
			return compareEach(column, func(i int) bool { return matchFloat64(op, floats(i), float64(v)) }), nil
		case float64:
			return compareEach(column, func(i int) bool { return matchFloat64(op, floats(i), v) }), nil
		}
		return mismatch()
	}

	switch arr := column.(type) {
	case *array.Uint64:
		switch v := literal.(type) {
		case int64:
			return compareEach(column, func(i int) bool { return op.Matches(compareUint64ToInt64(arr.Value(i), v)) }), nil
		case float64:
			return compareEach(column, func(i int) bool { return matchFloat64(op, float64(arr.Value(i)), v) }), nil
		}
	case *array.String:
		if v, ok := literal.(string); ok {
			return compareEach(column, func(i int) bool { return op.Matches(compareString(arr.Value(i), v)) }), nil
		}
	case *array.Binary:
		if v, ok := literal.(string); ok {
			lit := []byte(v)
			return compareEach(column, func(i int) bool { return op.Matches(bytes.Compare(arr.Value(i), lit)) }), nil
		}
	case *array.Boolean:
		if v, ok := literal.(bool); ok {
			return compareEach(column, func(i int) bool {
				matches, _ := expr.MatchValues(op, arr.Value(i), v)
				return matches
			}), nil
		}
	}
	return mismatch()
}

func compareColumns(left, right arrow.Array, op expr.CompareOp) (truth, error) {
	n := left.Len()
	out := truth{values: make([]bool, n)}
	if left.NullN() > 0 || right.NullN() > 0 {
		out.valid = make([]bool, n)
	}
	for i := 0; i < n; i++ {
		l, lok := valueAt(left, i)
		r, rok := valueAt(right, i)
		if !lok || !rok {
			continue
		}
		matches, ok := expr.MatchValues(op, l, r)
		if !ok {
			return truth{}, errors.Wrapf(ErrTypeMismatch, "cannot compare %s with %s", left.DataType(), right.DataType())
		}
		out.values[i] = matches
		if out.valid != nil {
			out.valid[i] = true
		}
	}
	return out, nil
}

// valueAt returns the value of row i normalized to a literal value type. ok
// is false for nulls and unsupported types.
func valueAt(column arrow.Array, i int) (any, bool) {
	if column.IsNull(i) {
		return nil, false
	}
	if ints, ok := intValues(column); ok {
		return ints(i), true
	}
	if floats, ok := floatValues(column); ok {
		return floats(i), true
	}
	switch arr := column.(type) {
	case *array.Uint64:
		lit := expr.Lit(arr.Value(i))
		return lit.Value, true
	case *array.String:
		return arr.Value(i), true
	case *array.Binary:
		return string(arr.Value(i)), true
	case *array.Boolean:
		return arr.Value(i), true
	}
	return nil, false
}

func intValues(column arrow.Array) (func(int) int64, bool) {
	switch arr := column.(type) {
	case *array.Int8:
		return func(i int) int64 { return int64(arr.Value(i)) }, true
	case *array.Int16:
		return func(i int) int64 { return int64(arr.Value(i)) }, true
	case *array.Int32:
		return func(i int) int64 { return int64(arr.Value(i)) }, true
	case *array.Int64:
		return arr.Value, true
	case *array.Uint8:
		return func(i int) int64 { return int64(arr.Value(i)) }, true
	case *array.Uint16:
		return func(i int) int64 { return int64(arr.Value(i)) }, true
	case *array.Uint32:
		return func(i int) int64 { return int64(arr.Value(i)) }, true
	}
	return nil, false
}

func floatValues(column arrow.Array) (func(int) float64, bool) {
	switch arr := column.(type) {
	case *array.Float32:
		return func(i int) float64 { return float64(arr.Value(i)) }, true
	case *array.Float64:
		return arr.Value, true
	}
	return nil, false
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// matchFloat64 treats NaN as unordered: it is neither equal to, less than nor
// greater than any value.
func matchFloat64(op expr.CompareOp, a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return op == expr.OpNotEqual
	}
	return op.Matches(compareFloat64(a, b))
}

func compareFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareUint64ToInt64(a uint64, b int64) int {
	if b < 0 {
		return 1
	}
	switch {
	case a < uint64(b):
		return -1
	case a > uint64(b):
		return 1
	}
	return 0
}
