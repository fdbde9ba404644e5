package core

import (
	"context"
	"testing"
)

func splitAndBuffer(t *testing.T, fn *FogNodeState, facilityID int, round RoundId, w WeightVector, k, n int) {
	t.Helper()
	encoded, err := EncodeWeightVector(w)
	if err != nil {
		t.Fatalf("EncodeWeightVector: %v", err)
	}
	shares, err := ShamirSplit(encoded, k, n)
	if err != nil {
		t.Fatalf("ShamirSplit: %v", err)
	}
	for i, s := range shares {
		sh := Share{
			ShareID:    i + 1,
			FacilityID: facilityID,
			Round:      round,
			Threshold:  k,
			Total:      n,
			Payload:    SharePayload{Kind: PayloadShamirReal, X: s.X, Values: s.Ys},
		}
		if err := fn.ReceiveShare(round, sh); err != nil {
			t.Fatalf("ReceiveShare: %v", err)
		}
	}
}

func TestFogNodeAggregateReconstructsAndAverages(t *testing.T) {
	kp, _ := GenerateKeyPair()
	fn := NewFogNodeState(0, kp, 2)

	w1 := vec([]float64{1, 2}, []float64{3})
	w2 := vec([]float64{5, 6}, []float64{7})
	splitAndBuffer(t, fn, 1, 1, w1, 2, 3)
	splitAndBuffer(t, fn, 2, 1, w2, 2, 3)

	partial, err := fn.Aggregate(context.Background(), 1)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if partial.FacilityCount != 2 {
		t.Fatalf("FacilityCount = %d, want 2", partial.FacilityCount)
	}
	want := vec([]float64{3, 4}, []float64{5})
	if !weightsApproxEqual(partial.PartialWeights, want, 1e-6) {
		t.Fatalf("got %v, want %v", partial.PartialWeights, want)
	}
	if fn.Buffer.CountFor(1) != 0 {
		t.Fatalf("buffer not cleared after aggregate")
	}
}

func TestFogNodeSkipsFacilityBelowThreshold(t *testing.T) {
	kp, _ := GenerateKeyPair()
	fn := NewFogNodeState(0, kp, 2)

	w1 := vec([]float64{1, 2})
	splitAndBuffer(t, fn, 1, 1, w1, 2, 3)

	// Facility 2 only gets one share, below k=2.
	encoded, _ := EncodeWeightVector(vec([]float64{9, 9}))
	shares, _ := ShamirSplit(encoded, 2, 3)
	fn.ReceiveShare(1, Share{
		ShareID: 1, FacilityID: 2, Round: 1, Threshold: 2, Total: 3,
		Payload: SharePayload{Kind: PayloadShamirReal, X: shares[0].X, Values: shares[0].Ys},
	})

	partial, err := fn.Aggregate(context.Background(), 1)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if partial.FacilityCount != 1 {
		t.Fatalf("FacilityCount = %d, want 1 (facility 2 should be skipped)", partial.FacilityCount)
	}
}

func TestFogNodeAggregateQuorumUnmetWhenAllFacilitiesFail(t *testing.T) {
	kp, _ := GenerateKeyPair()
	fn := NewFogNodeState(0, kp, 2)
	encoded, _ := EncodeWeightVector(vec([]float64{1}))
	shares, _ := ShamirSplit(encoded, 2, 3)
	fn.ReceiveShare(1, Share{
		ShareID: 1, FacilityID: 1, Round: 1, Threshold: 2, Total: 3,
		Payload: SharePayload{Kind: PayloadShamirReal, X: shares[0].X, Values: shares[0].Ys},
	})
	if _, err := fn.Aggregate(context.Background(), 1); err == nil {
		t.Fatalf("expected QuorumUnmet when no facility reaches threshold")
	}
}
