package crypto

import (
	"crypto/rand"

	"github.com/pkg/errors"

	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// RandomScalar returns a uniformly random non-zero scalar.
func RandomScalar() (*Scalar, error) {
	var buf [ScalarSize]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return nil, errors.Wrap(err, "scalar entropy")
		}
		var s secp256k1.ModNScalar
		if overflow := s.SetBytes(&buf); overflow > 0 {
			continue
		}
		if s.IsZero() {
			continue
		}
		return &s, nil
	}
}

// ProveSchnorr builds a proof of knowledge of (p, t) for the statement
// y = p·G + t·H, bound to the commitment pair (a, b) under the fixed
// transcript. The verifier counterpart is SchnorrVerifier.Verify.
func ProveSchnorr(p, t *Scalar, y, a, b *GroupElement, withFixes bool) (*SchnorrProof, error) {
	p0, err := RandomScalar()
	if err != nil {
		return nil, err
	}
	t0, err := RandomScalar()
	if err != nil {
		return nil, err
	}
	u := MulBase(p0).Add(H.Mul(t0))

	var gen ChallengeGenerator
	if withFixes {
		gen = NewFixedTranscript()
		gen.AddBytes([]byte(SchnorrProofLabel))
		gen.AddPoints(u, y, a, b)
	} else {
		gen = NewLegacyTranscript()
		gen.AddPoints(u)
	}
	c := gen.Challenge()

	// responses: P1 = p0 - c·p, T1 = t0 - c·t
	var p1, t1 Scalar
	p1.Set(c).Mul(p).Negate().Add(p0)
	t1.Set(c).Mul(t).Negate().Add(t0)
	return &SchnorrProof{U: u, P1: &p1, T1: &t1}, nil
}
