package model_test

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/veilnet/veild/crypto"
	"github.com/veilnet/veild/model"
)

func testScalar(seed byte) *crypto.Scalar {
	var s crypto.Scalar
	s.SetInt(uint32(seed) + 1)
	return &s
}

func testCoin(seed byte, value uint64) *model.Coin {
	return &model.Coin{
		Commitment:           crypto.MulBase(testScalar(seed)),
		Diversifier:          uint64(seed),
		EncryptedDiversifier: []byte{seed, seed},
		Value:                value,
		Nonce:                testScalar(seed + 100),
		Memo:                 "test",
		SerialContext:        []byte{0x01},
	}
}

func testSpendData(seed byte, groupID int, value uint64) *model.SpendData {
	return &model.SpendData{
		LTag:    crypto.MulBase(testScalar(seed)),
		A:       crypto.MulBase(testScalar(seed + 1)),
		B:       crypto.MulBase(testScalar(seed + 2)),
		GroupID: groupID,
		Value:   value,
		SetHash: chainhash.HashH([]byte{seed}),
		Proof: &crypto.SchnorrProof{
			U:  crypto.MulBase(testScalar(seed + 3)),
			P1: testScalar(seed + 4),
			T1: testScalar(seed + 5),
		},
	}
}

func TestParseShieldTx(t *testing.T) {
	coin := testCoin(7, 90)
	mintScript, err := (&model.MintPayload{Coin: coin}).Script()
	if err != nil {
		t.Fatal(err)
	}

	payload := &model.SpendPayload{
		Fee:    10,
		Spends: []*model.SpendData{testSpendData(1, 1, 100)},
	}
	spendScript, err := payload.Script()
	if err != nil {
		t.Fatal(err)
	}

	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{SignatureScript: spendScript})
	tx.AddTxOut(&wire.TxOut{Value: int64(coin.Value), PkScript: mintScript})

	spend, mints, err := model.ParseShieldTx(tx)
	if err != nil {
		t.Fatal(err)
	}
	if spend == nil || spend.Fee != 10 || len(spend.Spends) != 1 {
		t.Fatalf("unexpected spend payload: %+v", spend)
	}
	if !spend.Spends[0].LTag.Equal(payload.Spends[0].LTag) {
		t.Fatal("linking tag changed in round trip")
	}
	if len(mints) != 1 || !mints[0].Coin.Equal(coin) {
		t.Fatal("mint payload changed in round trip")
	}
	if mints[0].Coin.Hash() != coin.Hash() {
		t.Fatal("coin hash mismatch after round trip")
	}
}

func TestParseShieldTxRejectsValueMismatch(t *testing.T) {
	coin := testCoin(3, 50)
	mintScript, err := (&model.MintPayload{Coin: coin}).Script()
	if err != nil {
		t.Fatal(err)
	}
	tx := wire.NewMsgTx(1)
	tx.AddTxOut(&wire.TxOut{Value: 51, PkScript: mintScript})

	if _, _, err := model.ParseShieldTx(tx); err == nil {
		t.Fatal("expected value mismatch error")
	}
}

func TestParseShieldTxRejectsMisplacedSpend(t *testing.T) {
	payload := &model.SpendPayload{
		Fee:    1,
		Spends: []*model.SpendData{testSpendData(9, 1, 10)},
	}
	spendScript, err := payload.Script()
	if err != nil {
		t.Fatal(err)
	}
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{SignatureScript: []byte{0x51}}) // OP_1, not shielded
	tx.AddTxIn(&wire.TxIn{SignatureScript: spendScript})

	if _, _, err := model.ParseShieldTx(tx); err == nil {
		t.Fatal("spend payload outside the first input must be malformed")
	}
}

func TestParseSpendScriptRejectsTruncation(t *testing.T) {
	payload := &model.SpendPayload{
		Fee:    1,
		Spends: []*model.SpendData{testSpendData(5, 2, 10)},
	}
	script, err := payload.Script()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := model.ParseSpendScript(script[:len(script)-4]); err == nil {
		t.Fatal("expected truncated payload to fail parsing")
	}
}

func TestCoinIdentityIgnoresMetadata(t *testing.T) {
	a := testCoin(1, 10)
	b := testCoin(1, 10)
	b.Memo = "different metadata"
	b.Diversifier = 42

	if !a.Equal(b) || a.Hash() != b.Hash() {
		t.Fatal("coin identity must depend on the commitment only")
	}
}
