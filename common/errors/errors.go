// Package errors declares the closed set of protocol-level error kinds the
// PET engine can produce (spec §7). Call sites compare with errors.Is;
// IsRoundFatal says which kinds abort the round, and pet applies it.
package errors

import "errors"

var (
	// ErrMessageRejected marks a message that failed eligibility or
	// validation. Counted, no state change, acknowledged to the sender.
	ErrMessageRejected = errors.New("message rejected")

	// ErrMessageDiscarded marks a message that arrived after its phase's
	// quorum was already reached. Counted separately from rejections.
	ErrMessageDiscarded = errors.New("message discarded")

	// ErrAggregationFailed marks a masked model whose shape or mask
	// configuration does not match the accumulator it was aggregated into.
	ErrAggregationFailed = errors.New("aggregation failed")

	// ErrStorageInvariant marks a dictionary-store contract violation:
	// duplicate sum participant, mismatched seed-dict keyset, or an unknown
	// sum2 submitter.
	ErrStorageInvariant = errors.New("storage invariant violation")

	// ErrInternal marks a system-attributable failure (storage unreachable,
	// channel closed) that is fatal to the current round.
	ErrInternal = errors.New("internal error")

	// ErrPhaseTimeout marks a phase that failed to reach its quorum within
	// max_time. Fatal to the current round.
	ErrPhaseTimeout = errors.New("phase timeout")

	// ErrUnexpectedMessage marks a message whose tag does not match the
	// round's current phase. Transient: the participant may retry next round.
	ErrUnexpectedMessage = errors.New("unexpected message for current phase")
)

// IsRoundFatal reports whether err should abort the current round (routing
// the state machine through Failure) rather than simply being counted
// against the sender.
func IsRoundFatal(err error) bool {
	return errors.Is(err, ErrInternal) || errors.Is(err, ErrPhaseTimeout)
}
