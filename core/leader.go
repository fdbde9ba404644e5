package core

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// PartialBuffer accumulates fog-node partials for one round (spec §5
// Shared-resource policy).
type PartialBuffer struct {
	mu       sync.Mutex
	partials map[int]FogPartial // fog_node_id -> partial
}

func newPartialBuffer() *PartialBuffer {
	return &PartialBuffer{partials: make(map[int]FogPartial)}
}

// Add inserts or replaces fog node p.FogNodeID's partial.
func (b *PartialBuffer) Add(p FogPartial) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.partials[p.FogNodeID] = p
}

// Len returns the number of distinct fog nodes that have reported.
func (b *PartialBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.partials)
}

// Snapshot returns a copy of the currently buffered partials.
func (b *PartialBuffer) Snapshot() []FogPartial {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]FogPartial, 0, len(b.partials))
	for _, p := range b.partials {
		out = append(out, p)
	}
	return out
}

// Clear empties the buffer, done at round end.
func (b *PartialBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.partials = make(map[int]FogPartial)
}

// GlobalModel is the round's aggregated model (spec §3 GlobalModel),
// prior to TA wrapping.
type GlobalModel struct {
	Round     RoundId      `json:"round"`
	Weights   WeightVector `json:"weights"`
	Signature string       `json:"leader_signature"`
}

// LeaderState is the singleton leader's per-round state machine (spec
// §4.4).
type LeaderState struct {
	Keys         KeyPair
	FogNodeCount int
	Slack        int // f: at most this many missing partials tolerated after timeout

	Buffer *PartialBuffer
	Rounds RoundCounter
}

// NewLeaderState constructs the leader.
func NewLeaderState(keys KeyPair, fogNodeCount, slack int) *LeaderState {
	return &LeaderState{
		Keys:         keys,
		FogNodeCount: fogNodeCount,
		Slack:        slack,
		Buffer:       newPartialBuffer(),
	}
}

// ReceiveFogPartial buffers a signed partial (spec §4.4 contract).
func (l *LeaderState) ReceiveFogPartial(round RoundId, p FogPartial) error {
	if err := l.Rounds.Check(round); err != nil {
		return err
	}
	l.Buffer.Add(p)
	return nil
}

// ReadyToAggregate reports whether all G fog nodes have reported, or
// whether deadlineExpired and at least G-f have (spec §4.4 contract:
// "when all G fog nodes have reported (or after timeout T_leader with
// at least G − f partials)").
func (l *LeaderState) ReadyToAggregate(deadlineExpired bool) bool {
	n := l.Buffer.Len()
	if n >= l.FogNodeCount {
		return true
	}
	return deadlineExpired && n >= l.FogNodeCount-l.Slack
}

// Aggregate sums every buffered fog partial layer-wise, then divides by
// G (spec §4.4 "Global aggregation", resolving the open question per
// the reference configuration where every fog node reconstructs every
// facility: dividing the sum by G reproduces the FedAvg mean, matching
// each fog node already having averaged its own reconstructions).
func (l *LeaderState) Aggregate(ctx context.Context, round RoundId, deadlineExpired bool) (GlobalModel, error) {
	if !l.ReadyToAggregate(deadlineExpired) {
		return GlobalModel{}, fmt.Errorf("leader round %d: %w (%d/%d partials)",
			round, ErrQuorumUnmet, l.Buffer.Len(), l.FogNodeCount)
	}
	partials := l.Buffer.Snapshot()
	if len(partials) == 0 {
		return GlobalModel{}, fmt.Errorf("leader round %d: %w (no partials)", round, ErrQuorumUnmet)
	}

	weights := make([]WeightVector, len(partials))
	for i, p := range partials {
		weights[i] = p.PartialWeights
	}
	summed, err := SumWeightVectors(weights)
	if err != nil {
		return GlobalModel{}, err
	}
	global := summed.Scale(1.0 / float64(l.FogNodeCount))

	gm := GlobalModel{Round: round, Weights: global}
	sig, err := SignPayload(l.Keys, gm)
	if err != nil {
		return GlobalModel{}, err
	}
	gm.Signature = sig

	l.Buffer.Clear()
	l.Rounds.Advance(round)
	log.WithFields(log.Fields{"round": round, "partials": len(partials)}).Info("round complete")
	return gm, nil
}
