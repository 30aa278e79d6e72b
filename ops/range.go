package ops

// CompareValuesAreInRange writes indices of values within [from, to] into out
// and returns how many were written. out must be at least len(arr) long.
func CompareValuesAreInRange[T NumericTypes](arr []T, from, to T, out []uint32) int {
	if to < from {
		from, to = to, from
	}

	n := len(arr)
	filled := 0
	i := 0

	for ; i+7 < n; i += 8 {
		a0 := arr[i+0]
		a1 := arr[i+1]
		a2 := arr[i+2]
		a3 := arr[i+3]
		a4 := arr[i+4]
		a5 := arr[i+5]
		a6 := arr[i+6]
		a7 := arr[i+7]

		out[filled] = uint32(i + 0)
		filled += b2i(a0 >= from && a0 <= to)
		out[filled] = uint32(i + 1)
		filled += b2i(a1 >= from && a1 <= to)
		out[filled] = uint32(i + 2)
		filled += b2i(a2 >= from && a2 <= to)
		out[filled] = uint32(i + 3)
		filled += b2i(a3 >= from && a3 <= to)
		out[filled] = uint32(i + 4)
		filled += b2i(a4 >= from && a4 <= to)
		out[filled] = uint32(i + 5)
		filled += b2i(a5 >= from && a5 <= to)
		out[filled] = uint32(i + 6)
		filled += b2i(a6 >= from && a6 <= to)
		out[filled] = uint32(i + 7)
		filled += b2i(a7 >= from && a7 <= to)
	}

	// tail
	for ; i < n; i++ {
		a := arr[i]
		if a >= from && a <= to {
			out[filled] = uint32(i)
			filled++
		}
	}

	return filled
}
