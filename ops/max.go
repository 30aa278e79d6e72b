package ops

type Bounds[T NumericTypes] struct {
	Min T
	Max T
}

// GetMaxMinAt computes bounds over the rows listed in indices. ok is false when
// indices is empty.
func GetMaxMinAt[T NumericTypes](arr []T, indices []uint32) (result Bounds[T], ok bool) {

	if len(indices) == 0 {
		return result, false
	}

	result.Min = arr[indices[0]]
	result.Max = arr[indices[0]]

	for _, idx := range indices[1:] {
		v := arr[idx]
		if v < result.Min {
			result.Min = v
		}
		if v > result.Max {
			result.Max = v
		}
	}
	return result, true
}

func SumAt[T NumericTypes](arr []T, indices []uint32) float64 {
	var sum float64
	for _, idx := range indices {
		sum += float64(arr[idx])
	}
	return sum
}
