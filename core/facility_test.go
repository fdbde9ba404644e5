package core

import (
	"context"
	"testing"
)

func TestFacilityStartRoundSplitsAndPostsShares(t *testing.T) {
	kp, _ := GenerateKeyPair()
	trainer := LocalTrainerFunc(func(current WeightVector, epochs, batchSize int) (WeightVector, error) {
		return vec([]float64{10, 20}), nil
	})
	f := NewFacilityState(1, kp, trainer, PrivacyParams{Epsilon: 5, Delta: 1e-5, ClipNorm: 50}, 2, 3, []int{2})
	f.ValidatorURLs = []string{"v0", "v1", "v2"}

	var posted []Share
	err := f.StartRound(context.Background(), 1, nil, func(ctx context.Context, validatorIdx int, sh Share) error {
		posted = append(posted, sh)
		return nil
	})
	if err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	if len(posted) != 3 {
		t.Fatalf("expected 3 shares posted (n=3), got %d", len(posted))
	}
	for _, sh := range posted {
		if sh.Threshold != 2 || sh.Total != 3 {
			t.Fatalf("share has wrong (k,n): %d,%d", sh.Threshold, sh.Total)
		}
		unsigned := sh
		unsigned.Signature = ""
		if !VerifyPayload(kp.Public, unsigned, sh.Signature) {
			t.Fatalf("share signature does not verify")
		}
	}
}

func TestFacilityReceiveGlobalInstallsWeights(t *testing.T) {
	kp, _ := GenerateKeyPair()
	trainer := LocalTrainerFunc(func(current WeightVector, epochs, batchSize int) (WeightVector, error) {
		return current, nil
	})
	f := NewFacilityState(1, kp, trainer, PrivacyParams{Epsilon: 5, Delta: 1e-5, ClipNorm: 50}, 2, 3, []int{2})

	key, _ := GenerateRoundKey()
	w := vec([]float64{7, 8})
	encoded, err := EncodeWeightVector(w)
	if err != nil {
		t.Fatalf("EncodeWeightVector: %v", err)
	}
	wrapped, err := WrapGlobalModel(1, key, encoded)
	if err != nil {
		t.Fatalf("WrapGlobalModel: %v", err)
	}
	if err := f.ReceiveGlobal(1, wrapped, key); err != nil {
		t.Fatalf("ReceiveGlobal: %v", err)
	}
	f.mu.Lock()
	got := f.current
	f.mu.Unlock()
	if !weightsApproxEqual(got, w, 1e-9) {
		t.Fatalf("got %v, want %v", got, w)
	}
	if f.DownloadBytes() == 0 {
		t.Fatalf("expected download byte counter to increase")
	}
}

func TestFacilityReceiveGlobalRejectsStaleRound(t *testing.T) {
	kp, _ := GenerateKeyPair()
	trainer := LocalTrainerFunc(func(current WeightVector, epochs, batchSize int) (WeightVector, error) {
		return current, nil
	})
	f := NewFacilityState(1, kp, trainer, PrivacyParams{Epsilon: 5, Delta: 1e-5, ClipNorm: 50}, 2, 3, []int{2})
	f.Rounds.Advance(5)

	key, _ := GenerateRoundKey()
	wrapped, _ := WrapGlobalModel(2, key, []byte("x"))
	if err := f.ReceiveGlobal(2, wrapped, key); err == nil {
		t.Fatalf("expected stale round rejection")
	}
}
