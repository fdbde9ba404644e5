package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RoundId is a monotonically increasing training round number. Every
// inter-role message carries one; messages from a stale round are
// dropped (ErrStaleRound).
type RoundId uint64

// RoundCounter tracks the local round number and the current round's
// cancel function for a role instance, guarded by its own mutex. The
// per-round buffers (ShareBuffer, PartialBuffer, VoteLedger) each carry
// their own mutex; RoundCounter does not guard them.
type RoundCounter struct {
	mu      sync.Mutex
	current RoundId
	cancel  context.CancelFunc
}

// Current returns the local round counter value.
func (c *RoundCounter) Current() RoundId {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Check returns ErrStaleRound if r is below the local counter; it
// performs no mutation either way, matching "Handlers receiving a
// RoundId below the local counter respond with StaleRound and perform
// no state mutation" (spec §5).
func (c *RoundCounter) Check(r RoundId) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r < c.current {
		return fmt.Errorf("round %d: %w (local=%d)", r, ErrStaleRound, c.current)
	}
	return nil
}

// Begin starts round r, returning a context cancelled either by the
// caller's Abort/Advance call or by the supplied deadline. A
// non-positive deadline means no round-level timeout is imposed beyond
// parent's own. Cancelling the previous round's context (if any) is the
// caller's responsibility via Abort before calling Begin again.
func (c *RoundCounter) Begin(parent context.Context, r RoundId, deadline time.Duration) (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r < c.current {
		return nil, fmt.Errorf("round %d: %w (local=%d)", r, ErrStaleRound, c.current)
	}
	var ctx context.Context
	var cancel context.CancelFunc
	if deadline > 0 {
		ctx, cancel = context.WithTimeout(parent, deadline)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	c.current = r
	c.cancel = cancel
	return ctx, nil
}

// Abort cancels the current round's context without advancing the
// counter, so the round can be retried or the next round starts from
// the last successfully broadcast global model (spec §5 Cancellation).
func (c *RoundCounter) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Advance moves the local counter past the just-completed round and
// cancels any lingering round context. Round counters are monotonically
// non-decreasing at every role (spec §8 invariant 5).
func (c *RoundCounter) Advance(completed RoundId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if completed >= c.current {
		c.current = completed + 1
	}
}
