package ops

import (
	"math/rand"
	"testing"
)

func TestRangeTail(t *testing.T) {

	input := []int64{1050, 9000, 2000}
	out := make([]uint32, len(input))

	resultSize := CompareValuesAreInRange(input, 1024, 8192, out)

	if resultSize != 2 {
		t.Errorf("Expected %d but got %d", 2, resultSize)
	} else if out[1] != 2 {
		t.Errorf("result compare Expected %v but got %v", 2, out[1])
	}
}

func TestRangeBlockAndTailFloat(t *testing.T) {

	input := []float64{0, 0, 0, 1, 0, 0, 0, 7000, 1500}
	out := make([]uint32, len(input))

	resultSize := CompareValuesAreInRange(input, 1024.0, 8192, out)

	if resultSize != 2 {
		t.Errorf("Expected %d but got %d", 2, resultSize)
	} else if out[0] != 7 || out[1] != 8 {
		t.Errorf("unexpected indices %v", out[:resultSize])
	}
}

func TestRangeIsInclusiveAndNormalized(t *testing.T) {

	input := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	out := make([]uint32, len(input))

	resultSize := CompareValuesAreInRange(input, 8, 3, out)

	if resultSize != 6 {
		t.Errorf("Expected %d but got %d: %v", 6, resultSize, out[:resultSize])
	}
}

func TestEqualStrings(t *testing.T) {

	input := []string{"a", "b", "a", "c", "a", "b", "b", "a", "a"}
	out := make([]uint32, len(input))

	resultSize := CompareValuesAreEqual(input, "a", out)

	expected := []uint32{0, 2, 4, 7, 8}
	if resultSize != len(expected) {
		t.Fatalf("Expected %d but got %d", len(expected), resultSize)
	}
	for i, v := range expected {
		if out[i] != v {
			t.Errorf("index %d: expected %d, got %d", i, v, out[i])
		}
	}
}

func TestBiggerSmaller(t *testing.T) {

	input := []int64{5, 1, 9, 5, 3, 7, 5, 2, 8, 5}
	out := make([]uint32, len(input))

	if n := CompareValuesAreBigger(input, 5, false, out); n != 3 {
		t.Errorf("gt: expected 3, got %d", n)
	}
	if n := CompareValuesAreBigger(input, 5, true, out); n != 7 {
		t.Errorf("gte: expected 7, got %d", n)
	}
	if n := CompareValuesAreSmaller(input, 5, false, out); n != 3 {
		t.Errorf("lt: expected 3, got %d", n)
	}
	if n := CompareValuesAreSmaller(input, 5, true, out); n != 7 {
		t.Errorf("lte: expected 7, got %d", n)
	}
	if n := CompareValuesAreNotEqual(input, 5, out); n != 6 {
		t.Errorf("neq: expected 6, got %d", n)
	}
}

func TestCompareRandMatchesNaive(t *testing.T) {

	size := 4001
	input := make([]float64, size)
	for i := range input {
		input[i] = float64(rand.Int63n(50000))
	}

	out := make([]uint32, size)
	resultSize := CompareValuesAreInRange(input, 1024, 8192, out)

	naive := 0
	for _, v := range input {
		if v >= 1024 && v <= 8192 {
			naive++
		}
	}

	if naive != resultSize {
		t.Errorf("expected %d matches, got %d", naive, resultSize)
	}
}

func TestAggregatesAt(t *testing.T) {

	input := []float64{4, 1, 9, 2}
	indices := []uint32{0, 2, 3}

	if sum := SumAt(input, indices); sum != 15 {
		t.Errorf("expected sum 15, got %v", sum)
	}

	bounds, ok := GetMaxMinAt(input, indices)
	if !ok || bounds.Min != 2 || bounds.Max != 9 {
		t.Errorf("unexpected bounds %+v", bounds)
	}

	if _, ok := GetMaxMinAt(input, nil); ok {
		t.Errorf("empty indices must report !ok")
	}
}

func BenchmarkRangeFloats(b *testing.B) {

	size := 40000
	input := make([]float64, size)
	for i := range input {
		input[i] = float64(rand.Int63n(50000))
	}
	out := make([]uint32, size)

	for b.Loop() {
		CompareValuesAreInRange(input, 1024, 8192, out)
	}
}
