package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeGossiper struct {
	mu        sync.Mutex
	gossiped  []string
	forwarded []string
}

func (f *fakeGossiper) GossipVote(ctx context.Context, peerURL string, vote Vote, sh Share) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gossiped = append(f.gossiped, peerURL)
	return nil
}

func (f *fakeGossiper) gossipCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.gossiped)
}

func (f *fakeGossiper) ForwardShare(ctx context.Context, fogURL string, sh Share) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forwarded = append(f.forwarded, fogURL)
	return nil
}

func makeTestShare(t *testing.T, facilityID, shareID int, kp KeyPair, round RoundId, k, n int) Share {
	t.Helper()
	payload := SharePayload{Kind: PayloadShamirReal, X: shareID, Values: []uint16{1, 2, 3}}
	shareUID, err := ComputeShareUID(facilityID, shareID, round, payload)
	if err != nil {
		t.Fatalf("ComputeShareUID: %v", err)
	}
	sh := Share{
		ShareID:    shareID,
		FacilityID: facilityID,
		Round:      round,
		Threshold:  k,
		Total:      n,
		Payload:    payload,
		ShareUID:   shareUID,
		IssuerPub:  "ignored-by-test",
	}
	sig, err := SignPayload(kp, sh)
	if err != nil {
		t.Fatalf("SignPayload: %v", err)
	}
	sh.Signature = sig
	return sh
}

func TestValidateShareApprovesAndForwardsAtQuorum(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	sh := makeTestShare(t, 1, 1, kp, 1, 2, 3)

	pow, err := SolvePoW(context.Background(), "challenge", 1, 0, nil)
	if err != nil {
		t.Fatalf("SolvePoW: %v", err)
	}

	mkValidator := func(id int) (*ValidatorState, *fakeGossiper) {
		v := NewValidatorState(id, 2, 3, 2, 3, 1024)
		v.RegisterIssuer(RegisteredIssuer{FacilityID: 1, PublicKey: kp.Public, PoW: pow, Difficulty: 1})
		v.RegistrationChallenge(RegisteredIssuer{FacilityID: 1, PublicKey: kp.Public}) // sanity call
		gossiper := &fakeGossiper{}
		v.Client = gossiper
		v.PeerURLs = []string{"peer-a", "peer-b"}
		v.FogURLs = []string{"fog-0"}
		return v, gossiper
	}

	// Rebuild pow challenge consistent with RegistrationChallenge derivation.
	v1, g1 := mkValidator(1)
	challenge := v1.RegistrationChallenge(RegisteredIssuer{FacilityID: 1, PublicKey: kp.Public})
	pow, err = SolvePoW(context.Background(), challenge, 1, 0, nil)
	if err != nil {
		t.Fatalf("SolvePoW: %v", err)
	}
	v1.RegisterIssuer(RegisteredIssuer{FacilityID: 1, PublicKey: kp.Public, PoW: pow, Difficulty: 1})

	if err := v1.ValidateShare(context.Background(), sh); err != nil {
		t.Fatalf("ValidateShare: %v", err)
	}
	if v1.Ledger.Outcome(sh.ShareUID) != OutcomePending {
		t.Fatalf("expected pending after 1 of 2 quorum votes")
	}
	// Gossip runs on background goroutines; wait for them to land.
	deadline := time.Now().Add(time.Second)
	for g1.gossipCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := g1.gossipCount(); got != 2 {
		t.Fatalf("expected gossip to 2 peers, got %d", got)
	}

	// A second validator's vote, delivered as gossip, should push the
	// share to ADMITTED and trigger exactly one forward.
	if err := v1.ReceiveVote(context.Background(), Vote{ShareUID: sh.ShareUID, ValidatorID: 2, Verdict: VerdictApprove}, sh); err != nil {
		t.Fatalf("ReceiveVote: %v", err)
	}
	if v1.Ledger.Outcome(sh.ShareUID) != OutcomeAdmitted {
		t.Fatalf("expected admitted after quorum reached")
	}
	if len(g1.forwarded) != 1 {
		t.Fatalf("expected exactly one forward, got %d", len(g1.forwarded))
	}

	// A duplicate gossip of the same vote must not forward again.
	if err := v1.ReceiveVote(context.Background(), Vote{ShareUID: sh.ShareUID, ValidatorID: 2, Verdict: VerdictApprove}, sh); err != nil {
		t.Fatalf("ReceiveVote (duplicate): %v", err)
	}
	if len(g1.forwarded) != 1 {
		t.Fatalf("expected forward count to remain 1, got %d", len(g1.forwarded))
	}
}

func TestValidateShareRejectsUnknownIssuer(t *testing.T) {
	kp, _ := GenerateKeyPair()
	sh := makeTestShare(t, 99, 1, kp, 1, 2, 3)
	v := NewValidatorState(1, 2, 3, 2, 3, 1024)
	// No RegisterIssuer call: facility 99 is unknown.
	if err := v.ValidateShare(context.Background(), sh); err != nil {
		t.Fatalf("ValidateShare should not itself error: %v", err)
	}
	if v.Ledger.Outcome(sh.ShareUID) == OutcomeAdmitted {
		t.Fatalf("share from unregistered issuer must not be admitted")
	}
}

func TestValidateShareRejectsIntegrityViolation(t *testing.T) {
	kp, _ := GenerateKeyPair()
	// ShareID 5 is out of the 1..3 range for total=3.
	sh := makeTestShare(t, 1, 5, kp, 1, 2, 3)
	pow, _ := SolvePoW(context.Background(), FacilityPoWChallenge(1, kp.Public), 1, 0, nil)
	v := NewValidatorState(1, 2, 3, 2, 3, 1024)
	v.RegisterIssuer(RegisteredIssuer{FacilityID: 1, PublicKey: kp.Public, PoW: pow, Difficulty: 1})
	if _, err := v.evaluate(sh); !errors.Is(err, ErrIntegrityFailure) {
		t.Fatalf("evaluate = %v, want ErrIntegrityFailure", err)
	}
	if err := v.ValidateShare(context.Background(), sh); err != nil {
		t.Fatalf("ValidateShare: %v", err)
	}
	if v.Ledger.Outcome(sh.ShareUID) == OutcomeAdmitted {
		t.Fatalf("out-of-range share_id must not be admitted")
	}
}
