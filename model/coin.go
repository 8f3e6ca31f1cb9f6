package model

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"

	"github.com/veilnet/veild/crypto"
)

const (
	// MaxEncryptedDiversifierSize bounds the encrypted diversifier field.
	MaxEncryptedDiversifierSize = 256

	// MaxMemoSize bounds the coin memo field.
	MaxMemoSize = 128

	// MaxSerialContextSize bounds the serial/binding context field.
	MaxSerialContextSize = 64
)

// Coin is a minted shielded note. Identity is the commitment alone: two
// coins with equal commitments are the same coin regardless of the auxiliary
// fields, which are wallet-local and not consensus-relevant.
type Coin struct {
	Commitment           *crypto.GroupElement
	Diversifier          uint64
	EncryptedDiversifier []byte
	Value                uint64
	Nonce                *crypto.Scalar
	Memo                 string
	SerialContext        []byte
}

// Hash returns the coin identity hash, computed from the commitment only.
// It is recomputed on every call; the commitment is 33 bytes so caching is
// not worth carrying mutable state around.
func (c *Coin) Hash() chainhash.Hash {
	return chainhash.HashH(c.Commitment.Serialize())
}

// Equal reports whether two coins are the same coin, i.e. have equal
// commitments.
func (c *Coin) Equal(other *Coin) bool {
	return c.Commitment.Equal(other.Commitment)
}

// Serialize writes the coin to w.
func (c *Coin) Serialize(w io.Writer) error {
	if _, err := w.Write(c.Commitment.Serialize()); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, c.Diversifier); err != nil {
		return err
	}
	if err := wire.WriteVarBytes(w, 0, c.EncryptedDiversifier); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, c.Value); err != nil {
		return err
	}
	if _, err := w.Write(crypto.SerializeScalar(c.Nonce)); err != nil {
		return err
	}
	if err := wire.WriteVarString(w, 0, c.Memo); err != nil {
		return err
	}
	return wire.WriteVarBytes(w, 0, c.SerialContext)
}

// SerializeBytes returns the serialized coin as a byte slice.
func (c *Coin) SerializeBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeserializeCoin reads a coin from r.
func DeserializeCoin(r io.Reader) (*Coin, error) {
	var commitBytes [crypto.GroupElementSize]byte
	if _, err := io.ReadFull(r, commitBytes[:]); err != nil {
		return nil, errors.Wrap(err, "coin commitment")
	}
	commitment, err := crypto.ParseGroupElement(commitBytes[:])
	if err != nil {
		return nil, errors.Wrap(err, "coin commitment")
	}
	c := &Coin{Commitment: commitment}
	if err := binary.Read(r, binary.LittleEndian, &c.Diversifier); err != nil {
		return nil, errors.Wrap(err, "coin diversifier")
	}
	c.EncryptedDiversifier, err = wire.ReadVarBytes(r, 0, MaxEncryptedDiversifierSize, "encrypted diversifier")
	if err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &c.Value); err != nil {
		return nil, errors.Wrap(err, "coin value")
	}
	var nonceBytes [crypto.ScalarSize]byte
	if _, err := io.ReadFull(r, nonceBytes[:]); err != nil {
		return nil, errors.Wrap(err, "coin nonce")
	}
	c.Nonce, err = crypto.ParseScalar(nonceBytes[:])
	if err != nil {
		return nil, errors.Wrap(err, "coin nonce")
	}
	c.Memo, err = wire.ReadVarString(r, 0)
	if err != nil {
		return nil, errors.Wrap(err, "coin memo")
	}
	if len(c.Memo) > MaxMemoSize {
		return nil, errors.Errorf("coin memo exceeds %d bytes", MaxMemoSize)
	}
	c.SerialContext, err = wire.ReadVarBytes(r, 0, MaxSerialContextSize, "serial context")
	if err != nil {
		return nil, err
	}
	return c, nil
}

// LTagHash returns the lookup hash of a linking tag, used by protocols that
// reference tags by hash rather than by value.
func LTagHash(tag *crypto.GroupElement) chainhash.Hash {
	return chainhash.HashH(tag.Serialize())
}

// BlockRef identifies a block by hash and height.
type BlockRef struct {
	Hash   chainhash.Hash `json:"hash"`
	Height int            `json:"height"`
}

// MintedCoinInfo is the authoritative (coin -> group, height) record for a
// confirmed mint.
type MintedCoinInfo struct {
	GroupID int `json:"group_id"`
	Height  int `json:"height"`
}

// CoinGroupInfo describes one bounded anonymity set: the first and last
// blocks that minted into it and the running coin count.
type CoinGroupInfo struct {
	FirstBlock BlockRef `json:"first_block"`
	LastBlock  BlockRef `json:"last_block"`
	Count      int      `json:"count"`
}

// Marshal encodes the group info for key-value storage.
func (g *CoinGroupInfo) Marshal() ([]byte, error) {
	return json.Marshal(g)
}

// UnmarshalCoinGroupInfo decodes group info encoded by Marshal.
func UnmarshalCoinGroupInfo(data []byte) (*CoinGroupInfo, error) {
	info := &CoinGroupInfo{}
	if err := json.Unmarshal(data, info); err != nil {
		return nil, err
	}
	return info, nil
}
