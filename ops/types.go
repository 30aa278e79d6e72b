package ops

import "golang.org/x/exp/constraints"

type NumericTypes interface {
	constraints.Integer | constraints.Float
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
