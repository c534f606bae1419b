package expr

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// KeyValues returns the field == literal bindings among the conjuncts of e.
// Null literals are skipped. A nil expression has no bindings.
func KeyValues(e Expression) map[string]*Literal {
	bindings := make(map[string]*Literal)
	if e == nil {
		return bindings
	}
	for _, conjunct := range Conjuncts(e) {
		c, ok := conjunct.(*Comparison)
		if !ok || c.Op != OpEqual {
			continue
		}
		fc, ok := c.Normalize()
		if !ok || fc.Value.IsNull() {
			continue
		}
		bindings[fc.Field] = fc.Value
	}
	return bindings
}

// Fields returns the sorted, de-duplicated names of all fields referenced by e.
func Fields(e Expression) []string {
	names := make(map[string]struct{})
	collectFields(e, names)

	keys := maps.Keys(names)
	slices.Sort(keys)
	return keys
}

func collectFields(e Expression, into map[string]struct{}) {
	switch e := e.(type) {
	case *FieldRef:
		into[e.Name] = struct{}{}
	case *Comparison:
		collectFields(e.Left, into)
		collectFields(e.Right, into)
	case *Conjunction:
		for _, op := range e.Operands {
			collectFields(op, into)
		}
	case *Disjunction:
		for _, op := range e.Operands {
			collectFields(op, into)
		}
	case *Negation:
		collectFields(e.Operand, into)
	}
}
