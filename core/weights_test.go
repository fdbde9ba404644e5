package core

import (
	"math"
	"testing"
)

func vec(layers ...[]float64) WeightVector {
	return WeightVector{Layers: layers}
}

func TestAverageWeightVectors(t *testing.T) {
	a := vec([]float64{1, 2}, []float64{3})
	b := vec([]float64{3, 4}, []float64{5})
	got, err := AverageWeightVectors([]WeightVector{a, b})
	if err != nil {
		t.Fatalf("AverageWeightVectors: %v", err)
	}
	want := vec([]float64{2, 3}, []float64{4})
	if !weightsApproxEqual(got, want, 1e-9) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSumWeightVectors(t *testing.T) {
	a := vec([]float64{1, 2})
	b := vec([]float64{3, 4})
	c := vec([]float64{5, 6})
	got, err := SumWeightVectors([]WeightVector{a, b, c})
	if err != nil {
		t.Fatalf("SumWeightVectors: %v", err)
	}
	want := vec([]float64{9, 12})
	if !weightsApproxEqual(got, want, 1e-9) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestShapeMismatchRejected(t *testing.T) {
	a := vec([]float64{1, 2})
	b := vec([]float64{1, 2, 3})
	if _, err := a.Add(b); err == nil {
		t.Fatalf("expected shape mismatch error")
	}
}

func TestClipL2(t *testing.T) {
	w := vec([]float64{3, 4}) // norm = 5
	clipped := w.ClipL2(1.0)
	norm := l2Norm(clipped.Layers[0])
	if math.Abs(norm-1.0) > 1e-9 {
		t.Fatalf("clipped norm = %v, want 1.0", norm)
	}

	within := vec([]float64{0.1, 0.1})
	notClipped := within.ClipL2(1.0)
	if !weightsApproxEqual(notClipped, within, 1e-12) {
		t.Fatalf("vector within bound should be unchanged")
	}
}

func weightsApproxEqual(a, b WeightVector, tol float64) bool {
	if len(a.Layers) != len(b.Layers) {
		return false
	}
	for i := range a.Layers {
		if len(a.Layers[i]) != len(b.Layers[i]) {
			return false
		}
		for j := range a.Layers[i] {
			if math.Abs(a.Layers[i][j]-b.Layers[i][j]) > tol {
				return false
			}
		}
	}
	return true
}
