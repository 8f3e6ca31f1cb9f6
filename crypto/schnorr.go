package crypto

import (
	"bytes"

	"github.com/pkg/errors"
)

// SchnorrProofLabel is the domain separation prefix bound into the fixed
// challenge transcript.
const SchnorrProofLabel = "SCHNORR_PROOF"

// SchnorrProofSize is the serialized size of a proof: one compressed point
// and two scalars.
const SchnorrProofSize = GroupElementSize + 2*ScalarSize

// SchnorrProof is a proof of knowledge of scalars (p, t) such that
// y = p·G + t·H. It consists of an ephemeral commitment U and the two
// responses P1 and T1.
type SchnorrProof struct {
	U  *GroupElement
	P1 *Scalar
	T1 *Scalar
}

// Serialize encodes the proof as U || P1 || T1.
func (p *SchnorrProof) Serialize() []byte {
	var buf bytes.Buffer
	buf.Write(p.U.Serialize())
	buf.Write(SerializeScalar(p.P1))
	buf.Write(SerializeScalar(p.T1))
	return buf.Bytes()
}

// ParseSchnorrProof decodes a proof serialized by Serialize.
func ParseSchnorrProof(b []byte) (*SchnorrProof, error) {
	if len(b) != SchnorrProofSize {
		return nil, errors.Errorf("schnorr proof must be %d bytes, got %d", SchnorrProofSize, len(b))
	}
	u, err := ParseGroupElement(b[:GroupElementSize])
	if err != nil {
		return nil, errors.Wrap(err, "schnorr proof point")
	}
	p1, err := ParseScalar(b[GroupElementSize : GroupElementSize+ScalarSize])
	if err != nil {
		return nil, errors.Wrap(err, "schnorr response P1")
	}
	t1, err := ParseScalar(b[GroupElementSize+ScalarSize:])
	if err != nil {
		return nil, errors.Wrap(err, "schnorr response T1")
	}
	return &SchnorrProof{U: u, P1: p1, T1: t1}, nil
}

// SchnorrVerifier checks sigma-protocol proofs against a fixed generator
// pair. It is stateless and safe for concurrent use.
type SchnorrVerifier struct {
	g         *GroupElement
	h         *GroupElement
	withFixes bool
}

// NewSchnorrVerifier returns a verifier over generators g and h. withFixes
// selects the fixed challenge transcript; verifiers for historical proofs
// pass false to get the legacy construction.
func NewSchnorrVerifier(g, h *GroupElement, withFixes bool) *SchnorrVerifier {
	return &SchnorrVerifier{g: g, h: h, withFixes: withFixes}
}

// Verify checks proof against the statement (y, a, b). The commitment pair
// (a, b) is bound into the fixed transcript together with y and the
// ephemeral point; the legacy transcript binds only the ephemeral point.
// Malformed-but-parseable inputs yield false, never a panic.
func (v *SchnorrVerifier) Verify(y, a, b *GroupElement, proof *SchnorrProof) bool {
	if proof == nil || proof.U == nil || proof.P1 == nil || proof.T1 == nil {
		return false
	}
	u := proof.U

	if !u.IsMember() || !y.IsMember() {
		return false
	}
	if proof.P1.IsZero() || proof.T1.IsZero() {
		return false
	}

	var gen ChallengeGenerator
	if v.withFixes {
		gen = NewFixedTranscript()
		gen.AddBytes([]byte(SchnorrProofLabel))
		gen.AddPoints(u, y, a, b)
	} else {
		gen = NewLegacyTranscript()
		gen.AddPoints(u)
	}
	c := gen.Challenge()

	// u == c·y + P1·g + T1·h
	right := y.Mul(c).Add(v.g.Mul(proof.P1)).Add(v.h.Mul(proof.T1))
	return u.Equal(right)
}
