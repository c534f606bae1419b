package expr

import (
	"math"
	"strings"
)

type CompareOp int

const (
	OpEqual CompareOp = iota
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
)

var opSymbols = [...]string{
	OpEqual:        "==",
	OpNotEqual:     "!=",
	OpLess:         "<",
	OpLessEqual:    "<=",
	OpGreater:      ">",
	OpGreaterEqual: ">=",
}

func (op CompareOp) String() string {
	if op < 0 || int(op) >= len(opSymbols) {
		return "?"
	}
	return opSymbols[op]
}

// ParseCompareOp parses one of == != < <= > >=. A single "=" is accepted as
// equality.
func ParseCompareOp(s string) (CompareOp, bool) {
	s = strings.TrimSpace(s)
	if s == "=" {
		return OpEqual, true
	}
	for op, sym := range opSymbols {
		if sym == s {
			return CompareOp(op), true
		}
	}
	return 0, false
}

// Flip returns the operator to use when the operands are swapped.
func (op CompareOp) Flip() CompareOp {
	switch op {
	case OpLess:
		return OpGreater
	case OpLessEqual:
		return OpGreaterEqual
	case OpGreater:
		return OpLess
	case OpGreaterEqual:
		return OpLessEqual
	default:
		return op
	}
}

// Matches reports whether a three-way comparison result satisfies op.
func (op CompareOp) Matches(cmp int) bool {
	switch op {
	case OpEqual:
		return cmp == 0
	case OpNotEqual:
		return cmp != 0
	case OpLess:
		return cmp < 0
	case OpLessEqual:
		return cmp <= 0
	case OpGreater:
		return cmp > 0
	case OpGreaterEqual:
		return cmp >= 0
	default:
		return false
	}
}

type Comparison struct {
	Op    CompareOp
	Left  Expression
	Right Expression
}

func Compare(op CompareOp, left, right Expression) *Comparison {
	return &Comparison{Op: op, Left: left, Right: right}
}

func Eq(left, right Expression) *Comparison        { return Compare(OpEqual, left, right) }
func NotEq(left, right Expression) *Comparison     { return Compare(OpNotEqual, left, right) }
func Less(left, right Expression) *Comparison      { return Compare(OpLess, left, right) }
func LessEq(left, right Expression) *Comparison    { return Compare(OpLessEqual, left, right) }
func Greater(left, right Expression) *Comparison   { return Compare(OpGreater, left, right) }
func GreaterEq(left, right Expression) *Comparison { return Compare(OpGreaterEqual, left, right) }

func (c *Comparison) Equal(other Expression) bool {
	o, ok := other.(*Comparison)
	return ok && o.Op == c.Op && c.Left.Equal(o.Left) && c.Right.Equal(o.Right)
}

func (c *Comparison) String() string {
	return "(" + c.Left.String() + " " + c.Op.String() + " " + c.Right.String() + ")"
}

// FieldComparison is a comparison normalized to the form field op value.
type FieldComparison struct {
	Field string
	Op    CompareOp
	Value *Literal
}

// Normalize returns c as field op literal, swapping the operands if the
// literal is on the left.
func (c *Comparison) Normalize() (FieldComparison, bool) {
	if f, ok := c.Left.(*FieldRef); ok {
		if l, ok := c.Right.(*Literal); ok {
			return FieldComparison{Field: f.Name, Op: c.Op, Value: l}, true
		}
	}
	if l, ok := c.Left.(*Literal); ok {
		if f, ok := c.Right.(*FieldRef); ok {
			return FieldComparison{Field: f.Name, Op: c.Op.Flip(), Value: l}, true
		}
	}
	return FieldComparison{}, false
}

// CompareValues compares two literal values. Integers and floats compare
// numerically; strings and bools compare with their own kind only. ok is
// false for nulls, NaN and incomparable kinds.
func CompareValues(a, b any) (cmp int, ok bool) {
	if isNaN(a) || isNaN(b) {
		return 0, false
	}
	switch a := a.(type) {
	case int64:
		switch b := b.(type) {
		case int64:
			return compareOrdered(a, b), true
		case float64:
			return compareOrdered(float64(a), b), true
		}
	case float64:
		switch b := b.(type) {
		case int64:
			return compareOrdered(a, float64(b)), true
		case float64:
			return compareOrdered(a, b), true
		}
	case string:
		if b, isString := b.(string); isString {
			return strings.Compare(a, b), true
		}
	case bool:
		if b, isBool := b.(bool); isBool {
			return compareBools(a, b), true
		}
	}
	return 0, false
}

// MatchValues reports whether a op b holds. NaN is unordered, so only != holds
// when either side is NaN. ok is false for nulls and incomparable kinds.
func MatchValues(op CompareOp, a, b any) (matches bool, ok bool) {
	if isNaN(a) || isNaN(b) {
		if !isNumber(a) || !isNumber(b) {
			return false, false
		}
		return op == OpNotEqual, true
	}
	cmp, ok := CompareValues(a, b)
	if !ok {
		return false, false
	}
	return op.Matches(cmp), true
}

func isNaN(v any) bool {
	f, ok := v.(float64)
	return ok && math.IsNaN(f)
}

func isNumber(v any) bool {
	switch v.(type) {
	case int64, float64:
		return true
	}
	return false
}

type ordered interface {
	~int64 | ~uint64 | ~float64 | ~string
}

func compareOrdered[T ordered](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}
