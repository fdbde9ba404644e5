package core

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/saicha124/hierfed/pkg/utils"
)

// ShareBuffer accumulates committee-forwarded shares for one round,
// keyed by facility then share_id (spec §5 Shared-resource policy).
type ShareBuffer struct {
	mu     sync.Mutex
	shares map[int]map[int]Share // facility_id -> share_id -> Share
}

func newShareBuffer() *ShareBuffer {
	return &ShareBuffer{shares: make(map[int]map[int]Share)}
}

// Add inserts sh; a duplicate share_id for the same facility replaces
// the earlier share instead of being counted twice.
func (b *ShareBuffer) Add(sh Share) {
	b.mu.Lock()
	defer b.mu.Unlock()
	byID, ok := b.shares[sh.FacilityID]
	if !ok {
		byID = make(map[int]Share)
		b.shares[sh.FacilityID] = byID
	}
	byID[sh.ShareID] = sh
}

// CountFor returns how many distinct shares have been buffered for
// facilityID.
func (b *ShareBuffer) CountFor(facilityID int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.shares[facilityID])
}

// Facilities returns the set of facility IDs with at least one buffered
// share.
func (b *ShareBuffer) Facilities() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]int, 0, len(b.shares))
	for id := range b.shares {
		out = append(out, id)
	}
	return out
}

// SharesFor returns a snapshot of facilityID's buffered shares.
func (b *ShareBuffer) SharesFor(facilityID int) []Share {
	b.mu.Lock()
	defer b.mu.Unlock()
	byID := b.shares[facilityID]
	out := make([]Share, 0, len(byID))
	for _, sh := range byID {
		out = append(out, sh)
	}
	return out
}

// Clear empties the buffer, done at round end (spec §4.3 step 4).
func (b *ShareBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shares = make(map[int]map[int]Share)
}

// FogPartial is one fog node's per-round partial aggregate (spec §3
// FogPartial).
type FogPartial struct {
	FogNodeID      int          `json:"fog_node_id"`
	PartialWeights WeightVector `json:"partial_weights"`
	FacilityCount  int          `json:"facility_count"`
	Round          RoundId      `json:"round"`
	Signature      string       `json:"signature"`
}

// FogNodeState is one fog node's per-round state machine (spec §4.3).
type FogNodeState struct {
	FogNodeID int
	Keys      KeyPair
	ShamirK   int

	Buffer *ShareBuffer
	Rounds RoundCounter
	Pool   *WorkerPool
}

// NewFogNodeState constructs a fog node.
func NewFogNodeState(id int, keys KeyPair, shamirK int) *FogNodeState {
	return &FogNodeState{
		FogNodeID: id,
		Keys:      keys,
		ShamirK:   shamirK,
		Buffer:    newShareBuffer(),
		Pool:      NewWorkerPool(4),
	}
}

// ReceiveShare buffers a committee-forwarded share (spec §4.3 contract).
func (fn *FogNodeState) ReceiveShare(round RoundId, sh Share) error {
	if err := fn.Rounds.Check(round); err != nil {
		return err
	}
	fn.Buffer.Add(sh)
	return nil
}

// reconstructFacility runs byte-wise Lagrange interpolation over
// facilityID's buffered shares (spec §4.3 step 1).
func (fn *FogNodeState) reconstructFacility(facilityID int) (WeightVector, error) {
	shares := fn.Buffer.SharesFor(facilityID)
	if len(shares) < fn.ShamirK {
		return WeightVector{}, fmt.Errorf("facility %d: %w (have %d, need %d)",
			facilityID, ErrReconstructionFailure, len(shares), fn.ShamirK)
	}
	shamirShares := make([]ShamirShare, 0, len(shares))
	for _, sh := range shares {
		if sh.Payload.Kind != PayloadShamirReal {
			continue
		}
		shamirShares = append(shamirShares, ShamirShare{X: sh.Payload.X, Ys: sh.Payload.Values})
	}
	if len(shamirShares) < fn.ShamirK {
		return WeightVector{}, fmt.Errorf("facility %d: %w (have %d usable, need %d)",
			facilityID, ErrReconstructionFailure, len(shamirShares), fn.ShamirK)
	}
	compressed, err := ShamirReconstruct(shamirShares, fn.ShamirK)
	if err != nil {
		return WeightVector{}, fmt.Errorf("facility %d: %w: %v", facilityID, ErrReconstructionFailure, err)
	}
	w, err := DecodeWeightVector(compressed)
	if err != nil {
		return WeightVector{}, fmt.Errorf("facility %d: %w: %v", facilityID, ErrReconstructionFailure, err)
	}
	return w, nil
}

// Aggregate reconstructs every facility assigned to this fog node,
// averages them, signs the partial, and clears buffers (spec §4.3
// steps 1-4). A facility whose shares never reach k is skipped and
// logged (spec §4.3 Failure semantics); aggregation proceeds with the
// remainder if at least one facility succeeded.
func (fn *FogNodeState) Aggregate(ctx context.Context, round RoundId) (FogPartial, error) {
	facilities := fn.Buffer.Facilities()

	var mu sync.Mutex
	var reconstructed []WeightVector
	jobs := make([]func() error, len(facilities))
	for i, fid := range facilities {
		fid := fid
		jobs[i] = func() error {
			w, err := fn.reconstructFacility(fid)
			if err != nil {
				log.WithFields(log.Fields{"fog_node_id": fn.FogNodeID, "facility_id": fid}).
					Warnf("skipping facility for round %d: %v", round, err)
				return nil
			}
			mu.Lock()
			reconstructed = append(reconstructed, w)
			mu.Unlock()
			return nil
		}
	}
	if err := fn.Pool.RunAll(ctx, jobs...); err != nil {
		return FogPartial{}, utils.Wrap(err, "reconstruct facilities")
	}

	if len(reconstructed) == 0 {
		return FogPartial{}, fmt.Errorf("fog node %d round %d: %w", fn.FogNodeID, round, ErrQuorumUnmet)
	}

	avg, err := AverageWeightVectors(reconstructed)
	if err != nil {
		return FogPartial{}, utils.Wrap(err, "average reconstructed weights")
	}

	partial := FogPartial{
		FogNodeID:      fn.FogNodeID,
		PartialWeights: avg,
		FacilityCount:  len(reconstructed),
		Round:          round,
	}
	sig, err := SignPayload(fn.Keys, partial)
	if err != nil {
		return FogPartial{}, err
	}
	partial.Signature = sig

	fn.Buffer.Clear()
	fn.Rounds.Advance(round)
	log.WithFields(log.Fields{"fog_node_id": fn.FogNodeID, "round": round, "facilities": len(reconstructed)}).
		Info("round complete")
	return partial, nil
}
