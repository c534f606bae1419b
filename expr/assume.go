package expr

// Assume for a comparison first folds literal-only comparisons, then checks
// every conjunct of given that constrains the same field. Each constraint is
// treated as a set of admissible values: if the constraint is contained in
// the comparison the result is true, if the two are disjoint it is false.
func (c *Comparison) Assume(given Expression) Expression {
	if folded, ok := c.fold(); ok {
		return folded
	}
	if given == nil {
		return c
	}

	target, ok := c.Normalize()
	if !ok || target.Value.IsNull() {
		return c
	}
	for _, conjunct := range Conjuncts(given) {
		if conjunct.Equal(c) {
			return True()
		}
		known, ok := conjunct.(*Comparison)
		if !ok {
			continue
		}
		constraint, ok := known.Normalize()
		if !ok || constraint.Field != target.Field || constraint.Value.IsNull() {
			continue
		}
		if result, ok := implies(constraint, target); ok {
			return Bool(result)
		}
	}
	return c
}

func (c *Comparison) fold() (Expression, bool) {
	left, ok := c.Left.(*Literal)
	if !ok {
		return nil, false
	}
	right, ok := c.Right.(*Literal)
	if !ok {
		return nil, false
	}
	if left.IsNull() || right.IsNull() {
		return Null(), true
	}
	matches, ok := MatchValues(c.Op, left.Value, right.Value)
	if !ok {
		return nil, false
	}
	return Bool(matches), true
}

func (c *Conjunction) Assume(given Expression) Expression {
	if given != nil && given.Equal(c) {
		return True()
	}
	operands := make([]Expression, 0, len(c.Operands))
	for _, op := range c.Operands {
		simplified := op.Assume(given)
		switch {
		case isBoolLiteral(simplified, false):
			return False()
		case isBoolLiteral(simplified, true):
			continue
		}
		operands = append(operands, simplified)
	}
	return And(operands...)
}

func (d *Disjunction) Assume(given Expression) Expression {
	if given != nil && given.Equal(d) {
		return True()
	}
	operands := make([]Expression, 0, len(d.Operands))
	for _, op := range d.Operands {
		simplified := op.Assume(given)
		switch {
		case isBoolLiteral(simplified, true):
			return True()
		case isBoolLiteral(simplified, false):
			continue
		}
		operands = append(operands, simplified)
	}
	return Or(operands...)
}

func (n *Negation) Assume(given Expression) Expression {
	if given != nil && given.Equal(n) {
		return True()
	}
	operand := n.Operand.Assume(given)
	if l, ok := operand.(*Literal); ok {
		switch v := l.Value.(type) {
		case nil:
			return Null()
		case bool:
			return Bool(!v)
		}
	}
	if operand == n.Operand {
		return n
	}
	return Not(operand)
}

// implies decides target for every value admitted by constraint. ok is false
// when the answer depends on the row.
func implies(constraint, target FieldComparison) (result bool, ok bool) {
	if constraint.Op == OpNotEqual {
		if target.Op != OpEqual && target.Op != OpNotEqual {
			return false, false
		}
		cmp, comparable := CompareValues(constraint.Value.Value, target.Value.Value)
		if !comparable || cmp != 0 {
			return false, false
		}
		return target.Op == OpNotEqual, true
	}

	known, ok := intervalOf(constraint.Op, constraint.Value.Value)
	if !ok {
		return false, false
	}

	if target.Op == OpNotEqual {
		contains, comparable := known.contains(target.Value.Value)
		if !comparable {
			return false, false
		}
		if !contains {
			return true, true
		}
		if known.isPoint() {
			return false, true
		}
		return false, false
	}

	wanted, ok := intervalOf(target.Op, target.Value.Value)
	if !ok {
		return false, false
	}
	if subset, comparable := known.subsetOf(wanted); comparable && subset {
		return true, true
	}
	if disjoint, comparable := known.disjointFrom(wanted); comparable && disjoint {
		return false, true
	}
	return false, false
}

type bound struct {
	value     any
	inclusive bool
	unbounded bool
}

type interval struct {
	lo, hi bound
}

var unbounded = bound{unbounded: true}

func intervalOf(op CompareOp, v any) (interval, bool) {
	switch op {
	case OpEqual:
		return interval{lo: bound{value: v, inclusive: true}, hi: bound{value: v, inclusive: true}}, true
	case OpLess:
		return interval{lo: unbounded, hi: bound{value: v}}, true
	case OpLessEqual:
		return interval{lo: unbounded, hi: bound{value: v, inclusive: true}}, true
	case OpGreater:
		return interval{lo: bound{value: v}, hi: unbounded}, true
	case OpGreaterEqual:
		return interval{lo: bound{value: v, inclusive: true}, hi: unbounded}, true
	default:
		return interval{}, false
	}
}

func (i interval) isPoint() bool {
	if i.lo.unbounded || i.hi.unbounded || !i.lo.inclusive || !i.hi.inclusive {
		return false
	}
	cmp, ok := CompareValues(i.lo.value, i.hi.value)
	return ok && cmp == 0
}

func (i interval) contains(v any) (bool, bool) {
	if !i.lo.unbounded {
		cmp, ok := CompareValues(v, i.lo.value)
		if !ok {
			return false, false
		}
		if cmp < 0 || (cmp == 0 && !i.lo.inclusive) {
			return false, true
		}
	}
	if !i.hi.unbounded {
		cmp, ok := CompareValues(v, i.hi.value)
		if !ok {
			return false, false
		}
		if cmp > 0 || (cmp == 0 && !i.hi.inclusive) {
			return false, true
		}
	}
	return true, true
}

func (i interval) subsetOf(other interval) (bool, bool) {
	if !other.lo.unbounded {
		if i.lo.unbounded {
			return false, true
		}
		cmp, ok := CompareValues(i.lo.value, other.lo.value)
		if !ok {
			return false, false
		}
		if cmp < 0 || (cmp == 0 && i.lo.inclusive && !other.lo.inclusive) {
			return false, true
		}
	}
	if !other.hi.unbounded {
		if i.hi.unbounded {
			return false, true
		}
		cmp, ok := CompareValues(i.hi.value, other.hi.value)
		if !ok {
			return false, false
		}
		if cmp > 0 || (cmp == 0 && i.hi.inclusive && !other.hi.inclusive) {
			return false, true
		}
	}
	return true, true
}

func (i interval) disjointFrom(other interval) (bool, bool) {
	lo, ok := tighterLower(i.lo, other.lo)
	if !ok {
		return false, false
	}
	hi, ok := tighterUpper(i.hi, other.hi)
	if !ok {
		return false, false
	}
	if lo.unbounded || hi.unbounded {
		return false, true
	}
	cmp, ok := CompareValues(lo.value, hi.value)
	if !ok {
		return false, false
	}
	return cmp > 0 || (cmp == 0 && !(lo.inclusive && hi.inclusive)), true
}

func tighterLower(a, b bound) (bound, bool) {
	if a.unbounded {
		return b, true
	}
	if b.unbounded {
		return a, true
	}
	cmp, ok := CompareValues(a.value, b.value)
	if !ok {
		return bound{}, false
	}
	switch {
	case cmp > 0:
		return a, true
	case cmp < 0:
		return b, true
	default:
		return bound{value: a.value, inclusive: a.inclusive && b.inclusive}, true
	}
}

func tighterUpper(a, b bound) (bound, bool) {
	if a.unbounded {
		return b, true
	}
	if b.unbounded {
		return a, true
	}
	cmp, ok := CompareValues(a.value, b.value)
	if !ok {
		return bound{}, false
	}
	switch {
	case cmp < 0:
		return a, true
	case cmp > 0:
		return b, true
	default:
		return bound{value: a.value, inclusive: a.inclusive && b.inclusive}, true
	}
}
