package state

import "errors"

// Lookup failures are non-fatal; the caller decides what a missing entity
// means. ErrConsensusInvariant marks an operation whose precondition a
// correct validator would have guaranteed, i.e. a bug rather than
// adversarial input.
var (
	ErrCoinNotFound        = errors.New("coin not found")
	ErrGroupNotFound       = errors.New("coin group not found")
	ErrTagNotFound         = errors.New("linking tag not found")
	ErrConsensusInvariant  = errors.New("consensus invariant violated")
	ErrIncompleteBlockInfo = errors.New("block shield info is not complete")
)
