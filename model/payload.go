package model

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"

	"github.com/veilnet/veild/crypto"
)

// Leading script opcodes marking shielded payloads. Scripts starting with
// these bytes are consensus payloads, never executable spend conditions.
const (
	OpShieldMint  = 0xd1
	OpShieldSpend = 0xd3
)

// MaxSpendsPerTx bounds the number of shielded spends in one transaction.
const MaxSpendsPerTx = 16

// MintPayload is the script payload of one shielded mint output.
type MintPayload struct {
	Coin *Coin
}

// SpendData is one shielded spend: the linking tag that nullifies the spent
// coin, the anonymity group it spends against, the declared value, the
// claimed group set hash, the statement commitment pair and the proof.
type SpendData struct {
	LTag    *crypto.GroupElement
	A       *crypto.GroupElement
	B       *crypto.GroupElement
	GroupID int
	Value   uint64
	SetHash chainhash.Hash
	Proof   *crypto.SchnorrProof
}

// SpendPayload is the script payload of a shielded spend transaction.
type SpendPayload struct {
	Fee    uint64
	Spends []*SpendData
}

// Script returns the full output script carrying the mint payload.
func (m *MintPayload) Script() ([]byte, error) {
	coinBytes, err := m.Coin.SerializeBytes()
	if err != nil {
		return nil, err
	}
	return txscript.NewScriptBuilder().
		AddOp(OpShieldMint).
		AddFullData(coinBytes).
		Script()
}

// Script returns the full input script carrying the spend payload.
func (s *SpendPayload) Script() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, s.Fee); err != nil {
		return nil, err
	}
	if err := wire.WriteVarInt(&buf, 0, uint64(len(s.Spends))); err != nil {
		return nil, err
	}
	for _, spend := range s.Spends {
		if _, err := buf.Write(spend.LTag.Serialize()); err != nil {
			return nil, err
		}
		buf.Write(spend.A.Serialize())
		buf.Write(spend.B.Serialize())
		if err := binary.Write(&buf, binary.LittleEndian, uint32(spend.GroupID)); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, spend.Value); err != nil {
			return nil, err
		}
		buf.Write(spend.SetHash[:])
		buf.Write(spend.Proof.Serialize())
	}
	return txscript.NewScriptBuilder().
		AddOp(OpShieldSpend).
		AddFullData(buf.Bytes()).
		Script()
}

// IsMintScript reports whether script carries a mint payload.
func IsMintScript(script []byte) bool {
	return len(script) > 0 && script[0] == OpShieldMint
}

// IsSpendScript reports whether script carries a spend payload.
func IsSpendScript(script []byte) bool {
	return len(script) > 0 && script[0] == OpShieldSpend
}

// payloadData extracts the single data push following the marker opcode.
func payloadData(script []byte) ([]byte, error) {
	pushes, err := txscript.PushedData(script)
	if err != nil {
		return nil, errors.Wrap(err, "unparseable payload script")
	}
	if len(pushes) != 1 {
		return nil, errors.Errorf("payload script must carry exactly one data push, got %d", len(pushes))
	}
	return pushes[0], nil
}

// ParseMintScript decodes a mint payload from an output script.
func ParseMintScript(script []byte) (*MintPayload, error) {
	if !IsMintScript(script) {
		return nil, errors.New("not a shielded mint script")
	}
	data, err := payloadData(script)
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(data)
	coin, err := DeserializeCoin(r)
	if err != nil {
		return nil, errors.Wrap(err, "mint payload")
	}
	if r.Len() != 0 {
		return nil, errors.New("trailing bytes after mint payload")
	}
	return &MintPayload{Coin: coin}, nil
}

// ParseSpendScript decodes a spend payload from an input script.
func ParseSpendScript(script []byte) (*SpendPayload, error) {
	if !IsSpendScript(script) {
		return nil, errors.New("not a shielded spend script")
	}
	data, err := payloadData(script)
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(data)
	payload := &SpendPayload{}
	if err := binary.Read(r, binary.LittleEndian, &payload.Fee); err != nil {
		return nil, errors.Wrap(err, "spend fee")
	}
	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, errors.Wrap(err, "spend count")
	}
	if count == 0 || count > MaxSpendsPerTx {
		return nil, errors.Errorf("spend count %d outside [1, %d]", count, MaxSpendsPerTx)
	}
	for i := uint64(0); i < count; i++ {
		spend, err := deserializeSpendData(r)
		if err != nil {
			return nil, errors.Wrapf(err, "spend %d", i)
		}
		payload.Spends = append(payload.Spends, spend)
	}
	if r.Len() != 0 {
		return nil, errors.New("trailing bytes after spend payload")
	}
	return payload, nil
}

func deserializeSpendData(r io.Reader) (*SpendData, error) {
	readPoint := func(name string) (*crypto.GroupElement, error) {
		var b [crypto.GroupElementSize]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, errors.Wrap(err, name)
		}
		e, err := crypto.ParseGroupElement(b[:])
		if err != nil {
			return nil, errors.Wrap(err, name)
		}
		return e, nil
	}

	spend := &SpendData{}
	var err error
	if spend.LTag, err = readPoint("linking tag"); err != nil {
		return nil, err
	}
	if spend.A, err = readPoint("commitment A"); err != nil {
		return nil, err
	}
	if spend.B, err = readPoint("commitment B"); err != nil {
		return nil, err
	}
	var groupID uint32
	if err := binary.Read(r, binary.LittleEndian, &groupID); err != nil {
		return nil, errors.Wrap(err, "group id")
	}
	spend.GroupID = int(groupID)
	if err := binary.Read(r, binary.LittleEndian, &spend.Value); err != nil {
		return nil, errors.Wrap(err, "declared value")
	}
	if _, err := io.ReadFull(r, spend.SetHash[:]); err != nil {
		return nil, errors.Wrap(err, "set hash")
	}
	proofBytes := make([]byte, crypto.SchnorrProofSize)
	if _, err := io.ReadFull(r, proofBytes); err != nil {
		return nil, errors.Wrap(err, "proof")
	}
	if spend.Proof, err = crypto.ParseSchnorrProof(proofBytes); err != nil {
		return nil, err
	}
	return spend, nil
}

// HasShieldPayload reports whether tx carries any shielded mint or spend
// payload, without fully parsing it.
func HasShieldPayload(tx *wire.MsgTx) bool {
	for _, txOut := range tx.TxOut {
		if IsMintScript(txOut.PkScript) {
			return true
		}
	}
	for _, txIn := range tx.TxIn {
		if IsSpendScript(txIn.SignatureScript) {
			return true
		}
	}
	return false
}

// ParseShieldTx extracts the spend payload (from the first input script, if
// shielded) and all mint payloads (from output scripts) of a transaction.
// A structural error anywhere makes the whole transaction malformed.
func ParseShieldTx(tx *wire.MsgTx) (*SpendPayload, []*MintPayload, error) {
	var spend *SpendPayload
	for i, txIn := range tx.TxIn {
		if !IsSpendScript(txIn.SignatureScript) {
			continue
		}
		if i != 0 || spend != nil {
			return nil, nil, errors.New("spend payload must be the sole first input")
		}
		parsed, err := ParseSpendScript(txIn.SignatureScript)
		if err != nil {
			return nil, nil, err
		}
		spend = parsed
	}

	var mints []*MintPayload
	for i, txOut := range tx.TxOut {
		if !IsMintScript(txOut.PkScript) {
			continue
		}
		payload, err := ParseMintScript(txOut.PkScript)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "output %d", i)
		}
		if int64(payload.Coin.Value) != txOut.Value {
			return nil, nil, errors.Errorf("output %d value %d does not match coin value %d",
				i, txOut.Value, payload.Coin.Value)
		}
		mints = append(mints, payload)
	}
	return spend, mints, nil
}
