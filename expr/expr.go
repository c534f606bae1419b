// Package expr defines immutable predicate expressions over named columns.
//
// Expressions are built from field references, literals, comparisons and the
// boolean connectives. Besides being evaluated against record batches (see
// package compute) they can be specialized with Assume, which folds in a
// predicate that is already known to hold, such as the partition expression
// of a dataset fragment.
package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type Expression interface {
	fmt.Stringer

	// Assume returns a simplified expression that is equivalent to the
	// receiver for every row satisfying given. A nil given leaves the
	// receiver unchanged.
	Assume(given Expression) Expression

	// Equal reports structural equality.
	Equal(other Expression) bool
}

// FieldRef references a column by name.
type FieldRef struct {
	Name string
}

func Field(name string) *FieldRef {
	return &FieldRef{Name: name}
}

func (f *FieldRef) Assume(given Expression) Expression { return f }

func (f *FieldRef) Equal(other Expression) bool {
	o, ok := other.(*FieldRef)
	return ok && o.Name == f.Name
}

func (f *FieldRef) String() string { return f.Name }

// Literal is a constant. Value is one of int64, float64, string, bool or nil
// for null.
type Literal struct {
	Value any
}

// NewLiteral normalizes v to one of the literal value types.
func NewLiteral(v any) (*Literal, error) {
	switch v := v.(type) {
	case nil, int64, float64, string, bool:
		return &Literal{Value: v}, nil
	case int:
		return &Literal{Value: int64(v)}, nil
	case int8:
		return &Literal{Value: int64(v)}, nil
	case int16:
		return &Literal{Value: int64(v)}, nil
	case int32:
		return &Literal{Value: int64(v)}, nil
	case uint8:
		return &Literal{Value: int64(v)}, nil
	case uint16:
		return &Literal{Value: int64(v)}, nil
	case uint32:
		return &Literal{Value: int64(v)}, nil
	case uint:
		return newUint64Literal(uint64(v)), nil
	case uint64:
		return newUint64Literal(v), nil
	case float32:
		return &Literal{Value: float64(v)}, nil
	default:
		return nil, errors.Errorf("unsupported literal type %T", v)
	}
}

func newUint64Literal(v uint64) *Literal {
	if v > math.MaxInt64 {
		return &Literal{Value: float64(v)}
	}
	return &Literal{Value: int64(v)}
}

// Lit is like NewLiteral but panics on unsupported types.
func Lit(v any) *Literal {
	l, err := NewLiteral(v)
	if err != nil {
		panic(err)
	}
	return l
}

func Int(v int64) *Literal     { return &Literal{Value: v} }
func Float(v float64) *Literal { return &Literal{Value: v} }
func String(v string) *Literal { return &Literal{Value: v} }
func Bool(v bool) *Literal     { return &Literal{Value: v} }
func Null() *Literal           { return &Literal{} }
func True() *Literal           { return Bool(true) }
func False() *Literal          { return Bool(false) }

func (l *Literal) IsNull() bool { return l.Value == nil }

func (l *Literal) Assume(given Expression) Expression { return l }

func (l *Literal) Equal(other Expression) bool {
	o, ok := other.(*Literal)
	return ok && o.Value == l.Value
}

func (l *Literal) String() string {
	switch v := l.Value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func isBoolLiteral(e Expression, value bool) bool {
	l, ok := e.(*Literal)
	if !ok {
		return false
	}
	b, ok := l.Value.(bool)
	return ok && b == value
}

func isNullLiteral(e Expression) bool {
	l, ok := e.(*Literal)
	return ok && l.IsNull()
}

// Conjunction is the logical and of its operands.
type Conjunction struct {
	Operands []Expression
}

// And returns the conjunction of operands. Nested conjunctions are
// flattened; no operands yields true and a single operand is returned as is.
func And(operands ...Expression) Expression {
	flat := make([]Expression, 0, len(operands))
	for _, op := range operands {
		if c, ok := op.(*Conjunction); ok {
			flat = append(flat, c.Operands...)
			continue
		}
		flat = append(flat, op)
	}
	switch len(flat) {
	case 0:
		return True()
	case 1:
		return flat[0]
	}
	return &Conjunction{Operands: flat}
}

func (c *Conjunction) Equal(other Expression) bool {
	o, ok := other.(*Conjunction)
	return ok && equalOperands(c.Operands, o.Operands)
}

func (c *Conjunction) String() string { return joinOperands(c.Operands, " and ") }

// Disjunction is the logical or of its operands.
type Disjunction struct {
	Operands []Expression
}

// Or returns the disjunction of operands, flattening nested disjunctions.
func Or(operands ...Expression) Expression {
	flat := make([]Expression, 0, len(operands))
	for _, op := range operands {
		if d, ok := op.(*Disjunction); ok {
			flat = append(flat, d.Operands...)
			continue
		}
		flat = append(flat, op)
	}
	switch len(flat) {
	case 0:
		return False()
	case 1:
		return flat[0]
	}
	return &Disjunction{Operands: flat}
}

func (d *Disjunction) Equal(other Expression) bool {
	o, ok := other.(*Disjunction)
	return ok && equalOperands(d.Operands, o.Operands)
}

func (d *Disjunction) String() string { return joinOperands(d.Operands, " or ") }

// Negation is the logical not of its operand.
type Negation struct {
	Operand Expression
}

func Not(operand Expression) Expression {
	return &Negation{Operand: operand}
}

func (n *Negation) Equal(other Expression) bool {
	o, ok := other.(*Negation)
	return ok && n.Operand.Equal(o.Operand)
}

func (n *Negation) String() string { return "not " + n.Operand.String() }

func equalOperands(a, b []Expression) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func joinOperands(operands []Expression, sep string) string {
	parts := make([]string, 0, len(operands))
	for _, op := range operands {
		parts = append(parts, op.String())
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// IsSatisfiable returns false only if e is the literal false or null.
func IsSatisfiable(e Expression) bool {
	return !isBoolLiteral(e, false) && !isNullLiteral(e)
}

// Conjuncts returns the operands of a conjunction, or e itself.
func Conjuncts(e Expression) []Expression {
	if c, ok := e.(*Conjunction); ok {
		return c.Operands
	}
	return []Expression{e}
}
