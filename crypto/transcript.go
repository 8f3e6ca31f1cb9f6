package crypto

import (
	"crypto/sha256"
	"hash"

	"golang.org/x/crypto/sha3"
)

// ChallengeGenerator derives a Fiat-Shamir challenge scalar from a transcript
// of public values. Implementations differ only in the hash construction and
// in how much of the statement they bind.
type ChallengeGenerator interface {
	// AddBytes appends raw bytes (e.g. a domain separation label) to the
	// transcript.
	AddBytes(b []byte)

	// AddPoints appends serialized group elements to the transcript.
	AddPoints(points ...*GroupElement)

	// Challenge finalizes the transcript into a non-zero scalar.
	Challenge() *Scalar
}

type transcript struct {
	h hash.Hash
}

// NewFixedTranscript returns the current challenge generator: a SHA3-256
// transcript expected to bind a domain label plus every statement and proof
// point, which rules out cross-protocol and malleability games.
func NewFixedTranscript() ChallengeGenerator {
	return &transcript{h: sha3.New256()}
}

// NewLegacyTranscript returns the pre-fix SHA-256 generator that binds only
// the ephemeral point. It exists solely to verify proofs created before the
// transcript change and must not be used for new proofs.
func NewLegacyTranscript() ChallengeGenerator {
	return &transcript{h: sha256.New()}
}

func (t *transcript) AddBytes(b []byte) {
	t.h.Write(b)
}

func (t *transcript) AddPoints(points ...*GroupElement) {
	for _, p := range points {
		t.h.Write(p.Serialize())
	}
}

func (t *transcript) Challenge() *Scalar {
	digest := t.h.Sum(nil)
	var c Scalar
	c.SetByteSlice(digest)
	// a zero challenge would let any response pass; re-hash until non-zero
	for c.IsZero() {
		h := sha256.Sum256(digest)
		digest = h[:]
		c.SetByteSlice(digest)
	}
	return &c
}
