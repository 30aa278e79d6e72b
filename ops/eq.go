package ops

func CompareValuesAreEqual[T comparable](arr []T, cmp T, out []uint32) int {
	n := len(arr)
	var filled int = 0
	i := 0

	for ; i+7 < n; i += 8 {

		im0 := b2i(arr[i+0] == cmp)
		im1 := b2i(arr[i+1] == cmp)
		im2 := b2i(arr[i+2] == cmp)
		im3 := b2i(arr[i+3] == cmp)
		im4 := b2i(arr[i+4] == cmp)
		im5 := b2i(arr[i+5] == cmp)
		im6 := b2i(arr[i+6] == cmp)
		im7 := b2i(arr[i+7] == cmp)

		out[filled] = uint32(i + 0)
		filled += im0
		out[filled] = uint32(i + 1)
		filled += im1
		out[filled] = uint32(i + 2)
		filled += im2
		out[filled] = uint32(i + 3)
		filled += im3
		out[filled] = uint32(i + 4)
		filled += im4
		out[filled] = uint32(i + 5)
		filled += im5
		out[filled] = uint32(i + 6)
		filled += im6
		out[filled] = uint32(i + 7)
		filled += im7
	}

	// tail
	for ; i < n; i++ {
		if arr[i] == cmp {
			out[filled] = uint32(i)
			filled++
		}
	}
	return filled
}

func CompareValuesAreNotEqual[T comparable](arr []T, cmp T, out []uint32) int {
	filled := 0
	for i, v := range arr {
		if v != cmp {
			out[filled] = uint32(i)
			filled++
		}
	}
	return filled
}

// CompareValuesAreIn matches against a set of levels, used by legend selections.
func CompareValuesAreIn[T comparable](arr []T, levels map[T]struct{}, out []uint32) int {
	filled := 0
	for i, v := range arr {
		if _, ok := levels[v]; ok {
			out[filled] = uint32(i)
			filled++
		}
	}
	return filled
}
