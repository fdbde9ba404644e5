package core

// Round error taxonomy (spec §7). Each kind is a sentinel wrapped with
// fmt.Errorf's %w at the call site so the site-specific message survives
// while callers can still errors.Is against the kind.
import "errors"

var (
	// ErrAuthFailure: bad signature, unverifiable PoW, unknown issuer.
	// Dropped at receiver, logged, never retried by sender.
	ErrAuthFailure = errors.New("auth failure")

	// ErrIntegrityFailure: malformed share, out-of-range indices, size
	// bound violation. Same treatment as ErrAuthFailure.
	ErrIntegrityFailure = errors.New("integrity failure")

	// ErrStaleRound: RoundId on the message is below the receiver's
	// counter. No-op, no state mutation.
	ErrStaleRound = errors.New("stale round")

	// ErrTransientTransport: network timeout or connection refused.
	// Retried with exponential backoff up to a bounded attempt count.
	ErrTransientTransport = errors.New("transient transport failure")

	// ErrQuorumUnmet: insufficient approvals/partials before the round
	// deadline. The round aborts and state rewinds to the last good
	// global model.
	ErrQuorumUnmet = errors.New("quorum unmet")

	// ErrReconstructionFailure: fewer than k valid shares for a
	// facility. The facility is skipped for the round.
	ErrReconstructionFailure = errors.New("reconstruction failure")

	// ErrFatal: internal invariant violated. The process should abort
	// with a diagnostic after this is observed.
	ErrFatal = errors.New("fatal invariant violation")
)
