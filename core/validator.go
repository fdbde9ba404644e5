package core

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// RegisteredIssuer is the cached registration record a validator
// consults to verify a share's issuer PoW out-of-band (spec §4.2 step
// 1: "verify PoW of issuer out of cached registration").
type RegisteredIssuer struct {
	FacilityID int         `json:"facility_id"`
	PublicKey  []byte      `json:"public_key"`
	PoW        PoWSolution `json:"pow"`
	Difficulty uint        `json:"difficulty"`
}

// ValidatorState is one committee member's per-round state (spec
// §4.2).
type ValidatorState struct {
	ValidatorID int
	Quorum      int
	Total       int
	ExpectedK   int
	ExpectedN   int
	MaxPayload  int

	Ledger *VoteLedger

	mu      sync.Mutex
	issuers map[int]RegisteredIssuer // facility_id -> registration

	PeerURLs []string
	FogURLs  []string
	Client   HTTPGossiper
}

// HTTPGossiper abstracts the outbound calls a validator makes, so tests
// can substitute an in-memory fake without standing up real servers.
type HTTPGossiper interface {
	GossipVote(ctx context.Context, peerURL string, vote Vote, sh Share) error
	ForwardShare(ctx context.Context, fogURL string, sh Share) error
}

// NewValidatorState constructs a validator committee member.
func NewValidatorState(id, quorum, total, expectedK, expectedN, maxPayload int) *ValidatorState {
	return &ValidatorState{
		ValidatorID: id,
		Quorum:      quorum,
		Total:       total,
		ExpectedK:   expectedK,
		ExpectedN:   expectedN,
		MaxPayload:  maxPayload,
		Ledger:      NewVoteLedger(quorum, total),
		issuers:     make(map[int]RegisteredIssuer),
	}
}

// RegisterIssuer caches a facility's registration so later shares can be
// PoW-verified without a round trip to the TA.
func (v *ValidatorState) RegisterIssuer(rec RegisteredIssuer) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.issuers[rec.FacilityID] = rec
}

// checkIntegrity applies spec §4.2 step 2's bound checks, including
// spec §9's "validators refuse unknown variants" for the tagged
// SharePayload.
func (v *ValidatorState) checkIntegrity(sh Share) error {
	switch sh.Payload.Kind {
	case PayloadShamirReal, PayloadPlain:
	default:
		return fmt.Errorf("%w: unknown payload kind %q", ErrIntegrityFailure, sh.Payload.Kind)
	}
	if sh.Threshold != v.ExpectedK || sh.Total != v.ExpectedN {
		return fmt.Errorf("%w: threshold/total mismatch (got %d/%d want %d/%d)",
			ErrIntegrityFailure, sh.Threshold, sh.Total, v.ExpectedK, v.ExpectedN)
	}
	if sh.ShareID < 1 || sh.ShareID > sh.Total {
		return fmt.Errorf("%w: share_id %d out of range 1..%d", ErrIntegrityFailure, sh.ShareID, sh.Total)
	}
	if len(sh.Payload.Values) < 1 || len(sh.Payload.Values) > v.MaxPayload {
		return fmt.Errorf("%w: payload length %d out of bounds", ErrIntegrityFailure, len(sh.Payload.Values))
	}
	return nil
}

func (v *ValidatorState) verifyIssuer(sh Share) error {
	v.mu.Lock()
	rec, ok := v.issuers[sh.FacilityID]
	v.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: facility %d not registered", ErrAuthFailure, sh.FacilityID)
	}
	unsigned := sh
	unsigned.Signature = ""
	if !VerifyPayload(rec.PublicKey, unsigned, sh.Signature) {
		return fmt.Errorf("%w: bad signature", ErrAuthFailure)
	}
	if !VerifyPoW(v.RegistrationChallenge(rec), rec.PoW, rec.Difficulty) {
		return fmt.Errorf("%w: issuer PoW does not verify", ErrAuthFailure)
	}
	return nil
}

// RegistrationChallenge reconstructs the PoW challenge input for a
// cached issuer, matching FacilityState.RegistrationChallenge.
func (v *ValidatorState) RegistrationChallenge(rec RegisteredIssuer) string {
	return FacilityPoWChallenge(rec.FacilityID, ed25519.PublicKey(rec.PublicKey))
}

// evaluate runs the admission checks (spec §4.2 steps 1-3) without
// mutating the ledger.
func (v *ValidatorState) evaluate(sh Share) (Verdict, error) {
	if err := v.verifyIssuer(sh); err != nil {
		return VerdictReject, err
	}
	if err := v.checkIntegrity(sh); err != nil {
		return VerdictReject, err
	}
	return VerdictApprove, nil
}

// ValidateShare is the direct-vote entrypoint: evaluate, record, gossip
// to peers, and forward on quorum (spec §4.2 contract).
func (v *ValidatorState) ValidateShare(ctx context.Context, sh Share) error {
	verdict, evalErr := v.evaluate(sh)
	recorded, outcome, approvals, rejections := v.Ledger.Record(sh.ShareUID, v.ValidatorID, verdict)
	if !recorded {
		return nil // already voted on this share_uid; nothing to do
	}

	log.WithFields(log.Fields{
		"validator_id": v.ValidatorID,
		"share_uid":    sh.ShareUID,
		"verdict":      verdict,
		"approvals":    approvals,
		"rejections":   rejections,
	}).Info("validator vote recorded")

	if evalErr != nil {
		log.WithField("share_uid", sh.ShareUID).Debugf("share rejected: %v", evalErr)
	}

	vote := Vote{ShareUID: sh.ShareUID, ValidatorID: v.ValidatorID, Verdict: verdict}
	v.gossip(ctx, vote, sh)

	if outcome == OutcomeAdmitted {
		return v.forwardOnce(ctx, sh)
	}
	return nil
}

// ReceiveVote is the gossip sink (spec §4.2 contract: "records a peer's
// vote and, if this validator has not yet voted on the share carried in
// the payload, evaluates it and votes").
func (v *ValidatorState) ReceiveVote(ctx context.Context, vote Vote, sh Share) error {
	if v.Ledger.Outcome(sh.ShareUID) != OutcomePending {
		// Already resolved locally; still record the peer's vote for
		// quorum bookkeeping, but do not re-evaluate or re-forward.
		v.Ledger.Record(sh.ShareUID, vote.ValidatorID, vote.Verdict)
		return nil
	}
	// Record the peer's vote; a repeat vote from the same peer is
	// dropped here.
	recorded, outcome, _, _ := v.Ledger.Record(sh.ShareUID, vote.ValidatorID, vote.Verdict)
	if !recorded {
		return nil
	}
	if outcome == OutcomeAdmitted {
		return v.forwardOnce(ctx, sh)
	}
	if outcome == OutcomePending {
		// This validator has not cast its own vote yet; do so now.
		return v.ValidateShare(ctx, sh)
	}
	return nil
}

func (v *ValidatorState) gossip(ctx context.Context, vote Vote, sh Share) {
	if v.Client == nil {
		return
	}
	for _, peer := range v.PeerURLs {
		peer := peer
		go func() {
			if err := v.Client.GossipVote(ctx, peer, vote, sh); err != nil {
				log.WithField("peer", peer).Debugf("vote gossip failed: %v", err)
			}
		}()
	}
}

// forwardOnce forwards an admitted share to its fog node exactly once,
// guarded by the ledger's forwarded flag (spec §4.2 step 6, invariant
// 2: "at most one forward to any fog node").
func (v *ValidatorState) forwardOnce(ctx context.Context, sh Share) error {
	if !v.Ledger.MarkForwarded(sh.ShareUID) {
		return nil
	}
	if v.Client == nil || len(v.FogURLs) == 0 {
		return nil
	}
	fogIdx := (sh.ShareID - 1) % len(v.FogURLs)
	return v.Client.ForwardShare(ctx, v.FogURLs[fogIdx], sh)
}
