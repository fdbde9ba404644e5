package core

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// RegistrationRequest is a facility's registration payload (spec §4.1
// "Registration": "POST (facility_id, pubkey, nonce, attributes) to
// TA").
type RegistrationRequest struct {
	FacilityID int          `json:"facility_id"`
	PublicKey  string       `json:"public_key"`
	PoW        PoWSolution  `json:"pow"`
	Attributes AttributeSet `json:"attributes"`
}

// RegistrationResult is what RegisterFacility returns on success.
type RegistrationResult struct {
	IssuedKey string `json:"issued_key"`
}

// TAState is the singleton trusted authority's state (spec §4.5).
type TAState struct {
	Keys       KeyPair
	Difficulty uint
	Policy     PolicyExpr

	Registry *Registry

	mu            sync.Mutex
	roundKeys     map[RoundId][]byte
	undeliverable map[int]bool
}

// NewTAState constructs a trusted authority.
func NewTAState(keys KeyPair, difficulty uint, policy PolicyExpr) *TAState {
	return &TAState{
		Keys:          keys,
		Difficulty:    difficulty,
		Policy:        policy,
		Registry:      NewRegistry(),
		roundKeys:     make(map[RoundId][]byte),
		undeliverable: make(map[int]bool),
	}
}

// RegisterFacility verifies PoW and attribute-set membership, issues an
// attribute key, and persists a FacilityRecord (spec §4.5 contract).
// Attribute-set membership here means every attribute value is
// non-empty; policy satisfaction is evaluated later, at distribution
// time, against whatever policy a round's DistributeGlobal call uses.
func (ta *TAState) RegisterFacility(req RegistrationRequest) (RegistrationResult, error) {
	pub, err := hex.DecodeString(req.PublicKey)
	if err != nil {
		return RegistrationResult{}, fmt.Errorf("%w: malformed public key", ErrIntegrityFailure)
	}
	challenge := FacilityPoWChallenge(req.FacilityID, ed25519.PublicKey(pub))
	if !VerifyPoW(challenge, req.PoW, ta.Difficulty) {
		return RegistrationResult{}, fmt.Errorf("%w: proof of work does not verify", ErrAuthFailure)
	}
	for attr, val := range req.Attributes {
		if val == "" {
			return RegistrationResult{}, fmt.Errorf("%w: attribute %q has empty value", ErrIntegrityFailure, attr)
		}
	}

	issuedKey, err := randomHexKey(16)
	if err != nil {
		return RegistrationResult{}, err
	}
	ta.Registry.Put(FacilityRecord{
		FacilityID: req.FacilityID,
		PublicKey:  ed25519.PublicKey(pub),
		Attributes: req.Attributes,
		Status:     FacilityRegistered,
		IssuedKey:  issuedKey,
	})
	// Re-registration clears any prior exclusion (spec §4.5
	// "Distribution": excluded "until they re-register").
	ta.mu.Lock()
	delete(ta.undeliverable, req.FacilityID)
	ta.mu.Unlock()

	log.WithField("facility_id", req.FacilityID).Info("facility registered")
	return RegistrationResult{IssuedKey: issuedKey}, nil
}

func randomHexKey(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate issued key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// DistributionTarget is one facility's delivery endpoint for a round's
// wrapped model.
type DistributionTarget struct {
	FacilityID int
	Deliver    func(ctx context.Context, wrapped WrappedModel, key []byte) error
}

// DistributeGlobal wraps gm's weights under ta.Policy and pushes to
// every eligible, deliverable facility (spec §4.5 "Distribution").
// Failed deliveries are retried by the caller's RetryConfig-bound
// Deliver closure; a target whose Deliver still fails is marked
// undeliverable until it re-registers.
func (ta *TAState) DistributeGlobal(ctx context.Context, gm GlobalModel, targets []DistributionTarget) error {
	eligible := ta.Registry.Eligible(ta.Policy)
	eligibleIDs := make(map[int]bool, len(eligible))
	for _, rec := range eligible {
		eligibleIDs[rec.FacilityID] = true
	}

	encoded, err := EncodeWeightVector(gm.Weights)
	if err != nil {
		return err
	}
	key, err := GenerateRoundKey()
	if err != nil {
		return err
	}
	wrapped, err := WrapGlobalModel(gm.Round, key, encoded)
	if err != nil {
		return err
	}
	ta.mu.Lock()
	ta.roundKeys[gm.Round] = key
	ta.mu.Unlock()

	var lastErr error
	delivered := 0
	for _, target := range targets {
		if !eligibleIDs[target.FacilityID] {
			continue
		}
		ta.mu.Lock()
		excluded := ta.undeliverable[target.FacilityID]
		ta.mu.Unlock()
		if excluded {
			continue
		}
		if err := target.Deliver(ctx, wrapped, key); err != nil {
			log.WithField("facility_id", target.FacilityID).Warnf("undeliverable: %v", err)
			ta.mu.Lock()
			ta.undeliverable[target.FacilityID] = true
			ta.mu.Unlock()
			lastErr = err
			continue
		}
		delivered++
	}
	if delivered == 0 && len(targets) > 0 {
		return fmt.Errorf("distribute global round %d: %w", gm.Round, lastErr)
	}
	log.WithFields(log.Fields{"round": gm.Round, "delivered": delivered}).Info("round complete")
	return nil
}

// RoundKey returns the symmetric key used to wrap round r's model, if
// distributed.
func (ta *TAState) RoundKey(r RoundId) ([]byte, bool) {
	ta.mu.Lock()
	defer ta.mu.Unlock()
	k, ok := ta.roundKeys[r]
	return k, ok
}
