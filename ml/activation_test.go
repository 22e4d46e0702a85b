package ml

import (
	"math"
	"slices"
	"testing"

	"gonum.org/v1/gonum/floats"
)

func TestSoftmax(t *testing.T) {
	v := []float64{1000, 1001, 999, -5}
	out := make([]float64, len(v))
	Softmax(v, out)
	if math.Abs(floats.Sum(out)-1) > 1e-12 {
		t.Errorf("softmax sums to %v", floats.Sum(out))
	}
	if floats.MaxIdx(out) != 1 {
		t.Errorf("softmax %v", out)
	}

	log := make([]float64, len(v))
	LogSoftmax(v, log)
	for i := range v {
		if math.Abs(math.Exp(log[i])-out[i]) > 1e-12 {
			t.Errorf("exp(logsoftmax)[%d] = %v, softmax %v", i, math.Exp(log[i]), out[i])
		}
	}

	// In place.
	Softmax(v, v)
	if !floats.EqualApprox(v, out, 1e-15) {
		t.Errorf("in-place softmax %v", v)
	}
}

func TestTopK(t *testing.T) {
	v := []float64{0.1, 0.5, 0.5, 0.2, 0.9, 0}
	if got, want := topK(v, 3), []int{4, 1, 2}; !slices.Equal(got, want) {
		t.Errorf("topK = %v, want %v", got, want)
	}
	if got := topK(v, 10); len(got) != len(v) {
		t.Errorf("topK over the length returned %d", len(got))
	}
	if argmax(v) != 4 {
		t.Errorf("argmax = %d", argmax(v))
	}
}

func TestAllFinite(t *testing.T) {
	if !allFinite(1, -2, 0) {
		t.Error("finite values rejected")
	}
	if allFinite(1, math.NaN()) || allFinite(math.Inf(-1)) {
		t.Error("non-finite values accepted")
	}
}
