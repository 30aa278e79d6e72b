package schema

import "golang.org/x/exp/constraints"

type NumericTypes interface {
	constraints.Integer | constraints.Float
}

type BoundsFilterMatchResult uint8

const (
	UnknownIntersection BoundsFilterMatchResult = iota
	NoIntersection
	PartialIntersection
	FullIntersection
)

func (r BoundsFilterMatchResult) String() string {
	switch r {
	case NoIntersection:
		return "none"
	case PartialIntersection:
		return "partial"
	case FullIntersection:
		return "full"
	default:
		return "unknown"
	}
}

// BoundsFloat is a closed interval. It is the value written by interval brushes
// and the per column statistics kept by the in-memory engine.
type BoundsFloat struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func NewBoundsFromValues(a, b float64) BoundsFloat {
	if a > b {
		a, b = b, a
	}
	return BoundsFloat{Min: a, Max: b}
}

func (b BoundsFloat) Empty() bool {
	return b.Min == b.Max
}

func (b BoundsFloat) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Intersects reports how other overlaps b: full when b lies entirely inside other.
func (b BoundsFloat) Intersects(other BoundsFloat) BoundsFilterMatchResult {
	if other.Max < b.Min || other.Min > b.Max {
		return NoIntersection
	}
	if other.Min <= b.Min && other.Max >= b.Max {
		return FullIntersection
	}
	return PartialIntersection
}

func GetMaxMinBoundsFloat[T NumericTypes](arr []T) BoundsFloat {

	if len(arr) == 0 {
		return BoundsFloat{}
	}

	resultMin := arr[0]
	resultMax := arr[0]

	for _, v := range arr[1:] {
		if v < resultMin {
			resultMin = v
		}
		if v > resultMax {
			resultMax = v
		}
	}
	return BoundsFloat{
		Min: float64(resultMin),
		Max: float64(resultMax),
	}
}
