package core

import (
	"math"
	"testing"
)

func TestGaussianSigmaFormula(t *testing.T) {
	p := PrivacyParams{Epsilon: 1.0, Delta: 1e-5, ClipNorm: 2.0}
	sigma, err := GaussianSigma(p)
	if err != nil {
		t.Fatalf("GaussianSigma: %v", err)
	}
	want := math.Sqrt(2*math.Log(1.25/p.Delta)) * p.ClipNorm / p.Epsilon
	if math.Abs(sigma-want) > 1e-9 {
		t.Fatalf("sigma = %v, want %v", sigma, want)
	}
}

func TestGaussianSigmaRejectsInvalidParams(t *testing.T) {
	cases := []PrivacyParams{
		{Epsilon: 0, Delta: 1e-5, ClipNorm: 1},
		{Epsilon: 1, Delta: 0, ClipNorm: 1},
		{Epsilon: 1, Delta: 1, ClipNorm: 1},
	}
	for _, p := range cases {
		if _, err := GaussianSigma(p); err == nil {
			t.Fatalf("expected error for params %+v", p)
		}
	}
}

func TestApplyDifferentialPrivacyClipsThenNoises(t *testing.T) {
	w := vec([]float64{30, 40}) // norm 50
	p := PrivacyParams{Epsilon: 2.0, Delta: 1e-5, ClipNorm: 1.0}
	out, err := ApplyDifferentialPrivacy(w, p)
	if err != nil {
		t.Fatalf("ApplyDifferentialPrivacy: %v", err)
	}
	// Noise is unbounded in principle, but starting from a clipped norm
	// of 1 the result should not resemble the original unclipped vector.
	if out.Layers[0][0] == w.Layers[0][0] && out.Layers[0][1] == w.Layers[0][1] {
		t.Fatalf("output identical to unclipped input")
	}
}

func TestRandUnitFloatRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		v, err := randUnitFloat()
		if err != nil {
			t.Fatalf("randUnitFloat: %v", err)
		}
		if v < 0 || v >= 1 {
			t.Fatalf("randUnitFloat() = %v, out of [0,1)", v)
		}
	}
}
