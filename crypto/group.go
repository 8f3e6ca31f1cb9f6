package crypto

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/pkg/errors"

	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// GroupElementSize is the length of a serialized group element (compressed
// point). The identity element serializes as GroupElementSize zero bytes.
const GroupElementSize = 33

// ScalarSize is the length of a serialized scalar.
const ScalarSize = 32

// Scalar is an integer modulo the secp256k1 group order.
type Scalar = secp256k1.ModNScalar

// GroupElement is a point on secp256k1, including the identity.
type GroupElement struct {
	p secp256k1.JacobianPoint
}

var (
	// G is the standard base point of the curve.
	G = baseGenerator()

	// H is a second generator with unknown discrete log relative to G,
	// derived by hashing a fixed label to the curve.
	H = hashToGroup("veild shielded generator H")
)

func baseGenerator() *GroupElement {
	var one Scalar
	one.SetInt(1)
	var g GroupElement
	secp256k1.ScalarBaseMultNonConst(&one, &g.p)
	g.p.ToAffine()
	return &g
}

// hashToGroup maps a label to a curve point by try-and-increment over
// candidate x coordinates.
func hashToGroup(label string) *GroupElement {
	for ctr := uint32(0); ; ctr++ {
		h := sha256.New()
		h.Write([]byte(label))
		var ctrBytes [4]byte
		binary.BigEndian.PutUint32(ctrBytes[:], ctr)
		h.Write(ctrBytes[:])
		digest := h.Sum(nil)

		var x secp256k1.FieldVal
		if x.SetByteSlice(digest) {
			continue // overflows the field prime, try next counter
		}
		var y secp256k1.FieldVal
		if !secp256k1.DecompressY(&x, false, &y) {
			continue
		}
		y.Normalize()
		var e GroupElement
		e.p.X.Set(&x)
		e.p.Y.Set(&y)
		e.p.Z.SetInt(1)
		return &e
	}
}

// Infinity returns the identity element.
func Infinity() *GroupElement {
	return &GroupElement{}
}

// IsInfinity reports whether e is the identity element.
func (e *GroupElement) IsInfinity() bool {
	return (e.p.X.IsZero() && e.p.Y.IsZero()) || e.p.Z.IsZero()
}

// IsMember reports whether e is a valid point on the curve. The identity
// element is not a member.
func (e *GroupElement) IsMember() bool {
	if e.IsInfinity() {
		return false
	}
	e.p.ToAffine()
	// y^2 == x^3 + 7
	var y2, rhs secp256k1.FieldVal
	y2.SquareVal(&e.p.Y).Normalize()
	rhs.SquareVal(&e.p.X).Mul(&e.p.X).AddInt(7).Normalize()
	return y2.Equals(&rhs)
}

// Add returns e + other.
func (e *GroupElement) Add(other *GroupElement) *GroupElement {
	var r GroupElement
	secp256k1.AddNonConst(&e.p, &other.p, &r.p)
	return &r
}

// Mul returns k·e.
func (e *GroupElement) Mul(k *Scalar) *GroupElement {
	var r GroupElement
	secp256k1.ScalarMultNonConst(k, &e.p, &r.p)
	return &r
}

// MulBase returns k·G.
func MulBase(k *Scalar) *GroupElement {
	var r GroupElement
	secp256k1.ScalarBaseMultNonConst(k, &r.p)
	return &r
}

// Equal reports whether two group elements represent the same point.
func (e *GroupElement) Equal(other *GroupElement) bool {
	if e.IsInfinity() || other.IsInfinity() {
		return e.IsInfinity() && other.IsInfinity()
	}
	e.p.ToAffine()
	other.p.ToAffine()
	return e.p.X.Equals(&other.p.X) && e.p.Y.Equals(&other.p.Y)
}

// Serialize encodes the element in 33-byte compressed form. The identity
// encodes as all zeros.
func (e *GroupElement) Serialize() []byte {
	if e.IsInfinity() {
		return make([]byte, GroupElementSize)
	}
	e.p.ToAffine()
	pub := secp256k1.NewPublicKey(&e.p.X, &e.p.Y)
	return pub.SerializeCompressed()
}

// ParseGroupElement decodes a 33-byte compressed point. All-zero input
// decodes to the identity element.
func ParseGroupElement(b []byte) (*GroupElement, error) {
	if len(b) != GroupElementSize {
		return nil, errors.Errorf("group element must be %d bytes, got %d", GroupElementSize, len(b))
	}
	allZero := true
	for _, c := range b {
		if c != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return Infinity(), nil
	}
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, errors.Wrap(err, "invalid group element")
	}
	var e GroupElement
	pub.AsJacobian(&e.p)
	return &e, nil
}

// String returns the hex form of the serialized element.
func (e *GroupElement) String() string {
	return hex.EncodeToString(e.Serialize())
}

// ParseScalar decodes a 32-byte big-endian scalar. Values not below the
// group order are rejected rather than silently reduced.
func ParseScalar(b []byte) (*Scalar, error) {
	if len(b) != ScalarSize {
		return nil, errors.Errorf("scalar must be %d bytes, got %d", ScalarSize, len(b))
	}
	var s Scalar
	if overflow := s.SetByteSlice(b); overflow {
		return nil, errors.New("scalar out of range")
	}
	return &s, nil
}

// SerializeScalar encodes a scalar in 32-byte big-endian form.
func SerializeScalar(s *Scalar) []byte {
	b := s.Bytes()
	return b[:]
}
