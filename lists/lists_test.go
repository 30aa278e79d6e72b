package lists

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestIntersect(t *testing.T) {

	a := []uint32{1, 3, 5, 7, 9}
	b := []uint32{0, 3, 4, 5, 9, 10}
	out := make([]uint32, len(a))

	filled := Intersect(a, b, out)

	if diff := cmp.Diff([]uint32{3, 5, 9}, out[:filled]); diff != "" {
		t.Errorf("intersection mismatch (-want +got):\n%s", diff)
	}
}

func TestUnion(t *testing.T) {

	a := []uint32{1, 3, 5}
	b := []uint32{0, 3, 4, 10}
	out := make([]uint32, len(a)+len(b))

	filled := Union(a, b, out)

	if diff := cmp.Diff([]uint32{0, 1, 3, 4, 5, 10}, out[:filled]); diff != "" {
		t.Errorf("union mismatch (-want +got):\n%s", diff)
	}
}

func TestComplement(t *testing.T) {

	out := make([]uint32, 6)
	filled := Complement([]uint32{0, 2, 5}, 6, out)

	if diff := cmp.Diff([]uint32{1, 3, 4}, out[:filled]); diff != "" {
		t.Errorf("complement mismatch (-want +got):\n%s", diff)
	}
}

func TestMergerIntersect(t *testing.T) {

	m := NewIntersectMerger()

	if _, ok := m.Result(); ok {
		t.Fatalf("empty merger must not report a result")
	}

	m.With([]uint32{1, 2, 3, 4})
	m.With([]uint32{2, 3, 4, 8})
	m.With([]uint32{0, 3, 4})

	result, ok := m.Result()
	if !ok {
		t.Fatalf("expected result")
	}
	if diff := cmp.Diff([]uint32{3, 4}, result); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if m.Merges() != 3 {
		t.Errorf("expected 3 merges, got %d", m.Merges())
	}
}

func TestMergerUnion(t *testing.T) {

	m := NewUnionMerger()
	m.With([]uint32{1, 4})
	m.With([]uint32{2, 4})
	m.With([]uint32{0})

	result, _ := m.Result()
	if diff := cmp.Diff([]uint32{0, 1, 2, 4}, result); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func randomFillIndices(n int, fillPercent int) []uint32 {
	out := make([]uint32, 0, n*fillPercent/100)
	for i := 0; i < n; i++ {
		if rand.Intn(100) < fillPercent {
			out = append(out, uint32(i))
		}
	}
	return out
}

func TestIntersectRandMatchesMap(t *testing.T) {

	a := randomFillIndices(4000, 35)
	b := randomFillIndices(4000, 30)

	out := make([]uint32, len(a))
	filled := Intersect(a, b, out)

	expected := []uint32{}
	for _, v := range a {
		if _, found := slices.BinarySearch(b, v); found {
			expected = append(expected, v)
		}
	}

	if diff := cmp.Diff(expected, out[:filled]); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func BenchmarkIntersectRandSparse(b *testing.B) {

	input := randomFillIndices(4000, 35)
	input2 := randomFillIndices(4000, 30)
	out := make([]uint32, 4000)

	for b.Loop() {
		Intersect(input, input2, out)
	}
}
