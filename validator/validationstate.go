package validator

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// RejectCode classifies why a transaction or block was rejected. The codes
// are consensus-relevant in block context: every node must reach the same
// accept/reject decision.
type RejectCode int

const (
	RejectNone RejectCode = iota
	RejectMalformed
	RejectDoubleSpend
	RejectDuplicateMint
	RejectInvalidProof
	RejectInvalidMint
	RejectBalanceMismatch
	RejectInternal
)

func (c RejectCode) String() string {
	switch c {
	case RejectNone:
		return "none"
	case RejectMalformed:
		return "malformed"
	case RejectDoubleSpend:
		return "double-spend"
	case RejectDuplicateMint:
		return "duplicate-mint"
	case RejectInvalidProof:
		return "invalid-proof"
	case RejectInvalidMint:
		return "invalid-mint"
	case RejectBalanceMismatch:
		return "balance-mismatch"
	case RejectInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// ValidationState carries the outcome of validating one transaction or
// block: a reject code, a human-readable reason and, for mempool
// double-spend rejects, the hash of the conflicting transaction when known.
type ValidationState struct {
	valid      bool
	Code       RejectCode
	Reason     string
	ConflictTx *chainhash.Hash
}

// NewValidationState returns a state that is valid until invalidated.
func NewValidationState() *ValidationState {
	return &ValidationState{valid: true}
}

// IsValid reports whether no rejection was recorded.
func (vs *ValidationState) IsValid() bool {
	return vs.valid
}

// Invalid records a rejection and returns false so callers can
// `return vs.Invalid(...)`.
func (vs *ValidationState) Invalid(code RejectCode, reason string) bool {
	vs.valid = false
	vs.Code = code
	vs.Reason = reason
	return false
}

// DoubleSpend records a double-spend rejection with the conflicting
// transaction attached when it is known.
func (vs *ValidationState) DoubleSpend(conflict *chainhash.Hash, reason string) bool {
	vs.ConflictTx = conflict
	return vs.Invalid(RejectDoubleSpend, reason)
}
