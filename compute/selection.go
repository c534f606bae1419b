package compute

import (
	"github.com/apache/arrow/go/v10/arrow/array"
)

// Selection is the result of evaluating a predicate against a batch. It is
// either a constant that applies to every row or a boolean mask with one
// entry per row. Null mask entries are not selected.
type Selection struct {
	constant bool
	value    bool
	mask     *array.Boolean
}

func ConstantSelection(selected bool) Selection {
	return Selection{constant: true, value: selected}
}

// MaskSelection takes ownership of mask.
func MaskSelection(mask *array.Boolean) Selection {
	return Selection{mask: mask}
}

func (s Selection) IsConstant() bool { return s.constant }

// Value is the constant selection. It is only meaningful if IsConstant.
func (s Selection) Value() bool { return s.value }

// Mask returns the per-row mask, or nil for constant selections.
func (s Selection) Mask() *array.Boolean { return s.mask }

// NumSelected counts the selected rows out of numRows.
func (s Selection) NumSelected(numRows int64) int64 {
	if s.constant {
		if s.value {
			return numRows
		}
		return 0
	}
	var n int64
	for i := 0; i < s.mask.Len(); i++ {
		if s.mask.IsValid(i) && s.mask.Value(i) {
			n++
		}
	}
	return n
}

func (s Selection) Release() {
	if s.mask != nil {
		s.mask.Release()
	}
}
