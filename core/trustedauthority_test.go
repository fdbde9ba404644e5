package core

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"
)

func TestRegisterFacilityRequiresValidPoW(t *testing.T) {
	kp, _ := GenerateKeyPair()
	facilityKeys, _ := GenerateKeyPair()
	ta := NewTAState(kp, 4, Leaf("region", "eu"))

	req := RegistrationRequest{
		FacilityID: 1,
		PublicKey:  hex.EncodeToString(facilityKeys.Public),
		PoW:        PoWSolution{Nonce: 0, Hash: "deadbeef"},
		Attributes: AttributeSet{"region": "eu"},
	}
	if _, err := ta.RegisterFacility(req); !errors.Is(err, ErrAuthFailure) {
		t.Fatalf("expected AuthFailure for bogus PoW, got %v", err)
	}

	challenge := FacilityPoWChallenge(1, facilityKeys.Public)
	pow, err := SolvePoW(context.Background(), challenge, 4, 0, nil)
	if err != nil {
		t.Fatalf("SolvePoW: %v", err)
	}
	req.PoW = pow
	res, err := ta.RegisterFacility(req)
	if err != nil {
		t.Fatalf("RegisterFacility: %v", err)
	}
	if res.IssuedKey == "" {
		t.Fatalf("expected a non-empty issued key")
	}
	rec, ok := ta.Registry.Get(1)
	if !ok || rec.Status != FacilityRegistered {
		t.Fatalf("facility not persisted as registered")
	}
}

func TestDistributeGlobalSkipsIneligibleAndRevoked(t *testing.T) {
	kp, _ := GenerateKeyPair()
	ta := NewTAState(kp, 1, Leaf("region", "eu"))

	ta.Registry.Put(FacilityRecord{FacilityID: 1, Attributes: AttributeSet{"region": "eu"}, Status: FacilityRegistered})
	ta.Registry.Put(FacilityRecord{FacilityID: 2, Attributes: AttributeSet{"region": "us"}, Status: FacilityRegistered})
	ta.Registry.Put(FacilityRecord{FacilityID: 3, Attributes: AttributeSet{"region": "eu"}, Status: FacilityRevoked})

	var delivered []int
	targets := []DistributionTarget{
		{FacilityID: 1, Deliver: func(ctx context.Context, w WrappedModel, key []byte) error {
			delivered = append(delivered, 1)
			return nil
		}},
		{FacilityID: 2, Deliver: func(ctx context.Context, w WrappedModel, key []byte) error {
			delivered = append(delivered, 2)
			return nil
		}},
		{FacilityID: 3, Deliver: func(ctx context.Context, w WrappedModel, key []byte) error {
			delivered = append(delivered, 3)
			return nil
		}},
	}
	gm := GlobalModel{Round: 1, Weights: vec([]float64{1, 2})}
	if err := ta.DistributeGlobal(context.Background(), gm, targets); err != nil {
		t.Fatalf("DistributeGlobal: %v", err)
	}
	if len(delivered) != 1 || delivered[0] != 1 {
		t.Fatalf("expected delivery only to facility 1, got %v", delivered)
	}
}

func TestDistributeGlobalExcludesUndeliverableUntilReregister(t *testing.T) {
	kp, _ := GenerateKeyPair()
	ta := NewTAState(kp, 1, Leaf("region", "eu"))
	ta.Registry.Put(FacilityRecord{FacilityID: 1, Attributes: AttributeSet{"region": "eu"}, Status: FacilityRegistered})

	failing := DistributionTarget{FacilityID: 1, Deliver: func(ctx context.Context, w WrappedModel, key []byte) error {
		return errors.New("unreachable")
	}}
	gm := GlobalModel{Round: 1, Weights: vec([]float64{1})}
	ta.DistributeGlobal(context.Background(), gm, []DistributionTarget{failing})

	succeedCount := 0
	succeeding := DistributionTarget{FacilityID: 1, Deliver: func(ctx context.Context, w WrappedModel, key []byte) error {
		succeedCount++
		return nil
	}}
	ta.DistributeGlobal(context.Background(), GlobalModel{Round: 2, Weights: vec([]float64{1})}, []DistributionTarget{succeeding})
	if succeedCount != 0 {
		t.Fatalf("facility should remain excluded without re-registration")
	}

	// Re-registration clears the exclusion.
	facilityKeys, _ := GenerateKeyPair()
	challenge := FacilityPoWChallenge(1, facilityKeys.Public)
	pow, _ := SolvePoW(context.Background(), challenge, 1, 0, nil)
	ta.RegisterFacility(RegistrationRequest{
		FacilityID: 1,
		PublicKey:  hex.EncodeToString(facilityKeys.Public),
		PoW:        pow,
		Attributes: AttributeSet{"region": "eu"},
	})
	ta.DistributeGlobal(context.Background(), GlobalModel{Round: 3, Weights: vec([]float64{1})}, []DistributionTarget{succeeding})
	if succeedCount != 1 {
		t.Fatalf("expected delivery to succeed after re-registration, got count %d", succeedCount)
	}
}
