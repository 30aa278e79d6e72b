package lists

// Intersect writes the sorted intersection of two sorted index lists into out
// and returns its size. out may alias a.
func Intersect(a, b, out []uint32) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	filled := 0
	i, j := 0, 0

	for i < len(a) && j < len(b) {
		av, bv := a[i], b[j]
		switch {
		case av == bv:
			out[filled] = av
			filled++
			i++
			j++
		case av < bv:
			i++
		default:
			j++
		}
	}

	return filled
}

// Union writes the sorted union of two sorted index lists into out, which
// must hold len(a)+len(b) items and must not alias either input.
func Union(a, b, out []uint32) int {

	filled := 0
	i, j := 0, 0

	for i < len(a) && j < len(b) {
		av, bv := a[i], b[j]
		switch {
		case av == bv:
			out[filled] = av
			i++
			j++
		case av < bv:
			out[filled] = av
			i++
		default:
			out[filled] = bv
			j++
		}
		filled++
	}

	filled += copy(out[filled:], a[i:])
	filled += copy(out[filled:], b[j:])

	return filled
}

// Complement writes every index in [0, total) missing from the sorted list a.
func Complement(a []uint32, total int, out []uint32) int {

	filled := 0
	j := 0

	for i := 0; i < total; i++ {
		if j < len(a) && a[j] == uint32(i) {
			j++
			continue
		}
		out[filled] = uint32(i)
		filled++
	}

	return filled
}

func Full(total int) []uint32 {
	out := make([]uint32, total)
	for i := range out {
		out[i] = uint32(i)
	}
	return out
}
