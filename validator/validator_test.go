package validator_test

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/veilnet/veild/crypto"
	"github.com/veilnet/veild/mempool"
	"github.com/veilnet/veild/model"
	"github.com/veilnet/veild/state"
	"github.com/veilnet/veild/validator"
)

type harness struct {
	t      *testing.T
	ledger *state.Ledger
	pool   *mempool.Pool
	v      *validator.Validator
}

func newHarness(t *testing.T) *harness {
	params := state.Params{MaxCoinInGroup: 100, StartGroupSize: 100, ActivationHeight: 0}
	ledger := state.NewLedger(params)
	pool := mempool.New()
	return &harness{
		t:      t,
		ledger: ledger,
		pool:   pool,
		v:      validator.New(ledger, pool),
	}
}

func scalar(seed uint32) *crypto.Scalar {
	var s crypto.Scalar
	s.SetInt(seed + 1)
	return &s
}

func (h *harness) coin(seed uint32, value uint64) *model.Coin {
	return &model.Coin{
		Commitment: crypto.MulBase(scalar(seed)),
		Value:      value,
		Nonce:      scalar(seed + 4000),
	}
}

// mintTx builds a transaction that only mints the given coins.
func (h *harness) mintTx(coins ...*model.Coin) *wire.MsgTx {
	tx := wire.NewMsgTx(1)
	for _, coin := range coins {
		script, err := (&model.MintPayload{Coin: coin}).Script()
		if err != nil {
			h.t.Fatal(err)
		}
		tx.AddTxOut(&wire.TxOut{Value: int64(coin.Value), PkScript: script})
	}
	return tx
}

// spendSecrets are the witness for one spend's proof.
type spendSecrets struct {
	p, t *crypto.Scalar
}

// spendTx builds a transaction spending tags derived from the given secrets
// against groupID, minting change coins and paying fee.
func (h *harness) spendTx(secrets []spendSecrets, groupID int, values []uint64, fee uint64, change []*model.Coin) *wire.MsgTx {
	setHash, err := h.ledger.GroupSetHash(groupID)
	if err != nil {
		h.t.Fatal(err)
	}
	payload := &model.SpendPayload{Fee: fee}
	for i, sec := range secrets {
		ltag := crypto.MulBase(sec.p).Add(crypto.H.Mul(sec.t))
		a := crypto.MulBase(scalar(7000 + uint32(i)))
		b := crypto.MulBase(scalar(8000 + uint32(i)))
		proof, err := crypto.ProveSchnorr(sec.p, sec.t, ltag, a, b, true)
		if err != nil {
			h.t.Fatal(err)
		}
		payload.Spends = append(payload.Spends, &model.SpendData{
			LTag:    ltag,
			A:       a,
			B:       b,
			GroupID: groupID,
			Value:   values[i],
			SetHash: setHash,
			Proof:   proof,
		})
	}
	script, err := payload.Script()
	if err != nil {
		h.t.Fatal(err)
	}
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{SignatureScript: script})
	for _, coin := range change {
		mintScript, err := (&model.MintPayload{Coin: coin}).Script()
		if err != nil {
			h.t.Fatal(err)
		}
		tx.AddTxOut(&wire.TxOut{Value: int64(coin.Value), PkScript: mintScript})
	}
	return tx
}

func (h *harness) mempoolAccept(tx *wire.MsgTx) *validator.ValidationState {
	vs := validator.NewValidationState()
	h.v.CheckTransaction(tx, vs, tx.TxHash(), validator.CheckOptions{
		Height:       10,
		EnforceState: true,
	})
	return vs
}

func (h *harness) connectBlock(height int, txs ...*wire.MsgTx) (*validator.ValidationState, bool) {
	msgBlock := &wire.MsgBlock{Transactions: txs}
	block := btcutil.NewBlock(msgBlock)
	vs := validator.NewValidationState()
	ref := model.BlockRef{Hash: *block.Hash(), Height: height}
	ok := h.v.ConnectBlock(block, vs, ref, false)
	return vs, ok
}

func TestMempoolAcceptDoubleSpendScenario(t *testing.T) {
	h := newHarness(t)

	// mint coin A at height 10 -> group 1
	coinA := h.coin(1, 100)
	if _, ok := h.connectBlock(10, h.mintTx(coinA)); !ok {
		t.Fatal("mint block should connect")
	}
	height, group, err := h.ledger.GetMintedCoinHeightAndGroup(coinA)
	if err != nil || height != 10 || group != 1 {
		t.Fatalf("coin A should be in group 1 at height 10, got (%d,%d,%v)", height, group, err)
	}

	// first mempool spend of A's tag succeeds and lands in the tracker
	sec := []spendSecrets{{p: scalar(11), t: scalar(12)}}
	change := []*model.Coin{h.coin(2, 90)}
	spend1 := h.spendTx(sec, 1, []uint64{100}, 10, change)
	if vs := h.mempoolAccept(spend1); !vs.IsValid() {
		t.Fatalf("first spend rejected: %s %s", vs.Code, vs.Reason)
	}
	ltag := crypto.MulBase(sec[0].p).Add(crypto.H.Mul(sec[0].t))
	if !h.pool.HasLTag(model.LTagHash(ltag)) {
		t.Fatal("accepted spend must appear in the mempool tracker")
	}

	// a second transaction spending the same tag is a double spend naming
	// the first transaction
	spend2 := h.spendTx(sec, 1, []uint64{100}, 10, []*model.Coin{h.coin(3, 90)})
	vs := h.mempoolAccept(spend2)
	if vs.IsValid() || vs.Code != validator.RejectDoubleSpend {
		t.Fatalf("expected double-spend reject, got %s %s", vs.Code, vs.Reason)
	}
	want := spend1.TxHash()
	if vs.ConflictTx == nil || *vs.ConflictTx != want {
		t.Fatalf("conflict should name the first tx %s, got %v", want, vs.ConflictTx)
	}

	// mine the first spend: the tag moves to the ledger and leaves the pool
	if _, ok := h.connectBlock(11, spend1); !ok {
		t.Fatal("spend block should connect")
	}
	if !h.ledger.IsUsedLTag(ltag) {
		t.Fatal("mined tag must be used on chain")
	}
	if h.pool.HasLTag(model.LTagHash(ltag)) {
		t.Fatal("mined tag must leave the mempool tracker")
	}
}

func TestBlockConnectRejectsIntraBlockDoubleSpend(t *testing.T) {
	h := newHarness(t)
	if _, ok := h.connectBlock(10, h.mintTx(h.coin(1, 100), h.coin(2, 100))); !ok {
		t.Fatal("mint block should connect")
	}

	sec := []spendSecrets{{p: scalar(21), t: scalar(22)}}
	tx1 := h.spendTx(sec, 1, []uint64{100}, 100, nil)
	tx2 := h.spendTx(sec, 1, []uint64{100}, 100, nil)

	vs, ok := h.connectBlock(11, tx1, tx2)
	if ok || vs.Code != validator.RejectDoubleSpend {
		t.Fatalf("expected intra-block double spend to kill the block, got ok=%v code=%s", ok, vs.Code)
	}
	// the failed block must not have touched canonical state
	if h.ledger.TotalSpends() != 0 {
		t.Fatal("rejected block leaked spends into the ledger")
	}
}

func TestIntraTxTagReuseRejectsAsDoubleSpend(t *testing.T) {
	h := newHarness(t)
	if _, ok := h.connectBlock(10, h.mintTx(h.coin(1, 100), h.coin(2, 100))); !ok {
		t.Fatal("mint block should connect")
	}

	// a transaction listing the same tag twice, with a proof that does not
	// even verify: the self-conflict must win over the bad proof
	sec := []spendSecrets{{p: scalar(81), t: scalar(82)}}
	tx := h.spendTx(sec, 1, []uint64{100}, 100, nil)
	spend, _, err := model.ParseShieldTx(tx)
	if err != nil {
		t.Fatal(err)
	}
	other := []spendSecrets{{p: scalar(83), t: scalar(84)}}
	otherTx := h.spendTx(other, 1, []uint64{100}, 100, nil)
	otherSpend, _, err := model.ParseShieldTx(otherTx)
	if err != nil {
		t.Fatal(err)
	}
	dup := *spend.Spends[0]
	dup.Proof = otherSpend.Spends[0].Proof
	forged := &model.SpendPayload{Fee: 200, Spends: []*model.SpendData{&dup, &dup}}
	script, err := forged.Script()
	if err != nil {
		t.Fatal(err)
	}
	forgedTx := wire.NewMsgTx(1)
	forgedTx.AddTxIn(&wire.TxIn{SignatureScript: script})

	vs := h.mempoolAccept(forgedTx)
	if vs.IsValid() || vs.Code != validator.RejectDoubleSpend {
		t.Fatalf("expected double-spend reject, got %s %s", vs.Code, vs.Reason)
	}
	want := forgedTx.TxHash()
	if vs.ConflictTx == nil || *vs.ConflictTx != want {
		t.Fatalf("self-conflict should name the transaction itself %s, got %v", want, vs.ConflictTx)
	}
}

func TestBalanceMismatchRejected(t *testing.T) {
	h := newHarness(t)
	if _, ok := h.connectBlock(10, h.mintTx(h.coin(1, 100))); !ok {
		t.Fatal("mint block should connect")
	}

	sec := []spendSecrets{{p: scalar(31), t: scalar(32)}}
	// declared 100 in, but 90 out + 5 fee
	tx := h.spendTx(sec, 1, []uint64{100}, 5, []*model.Coin{h.coin(2, 90)})
	vs := h.mempoolAccept(tx)
	if vs.IsValid() || vs.Code != validator.RejectBalanceMismatch {
		t.Fatalf("expected balance mismatch, got %s %s", vs.Code, vs.Reason)
	}
}

func TestInvalidProofRejected(t *testing.T) {
	h := newHarness(t)
	if _, ok := h.connectBlock(10, h.mintTx(h.coin(1, 100))); !ok {
		t.Fatal("mint block should connect")
	}

	sec := []spendSecrets{{p: scalar(41), t: scalar(42)}}
	tx := h.spendTx(sec, 1, []uint64{100}, 100, nil)

	// corrupt the proof by spending a tag the secrets don't match
	other := []spendSecrets{{p: scalar(43), t: scalar(44)}}
	otherTx := h.spendTx(other, 1, []uint64{100}, 100, nil)
	spend, _, err := model.ParseShieldTx(otherTx)
	if err != nil {
		t.Fatal(err)
	}
	goodSpend, _, err := model.ParseShieldTx(tx)
	if err != nil {
		t.Fatal(err)
	}
	forged := &model.SpendPayload{
		Fee: 100,
		Spends: []*model.SpendData{{
			LTag:    goodSpend.Spends[0].LTag,
			A:       goodSpend.Spends[0].A,
			B:       goodSpend.Spends[0].B,
			GroupID: 1,
			Value:   100,
			SetHash: goodSpend.Spends[0].SetHash,
			Proof:   spend.Spends[0].Proof, // proof for a different tag
		}},
	}
	script, err := forged.Script()
	if err != nil {
		t.Fatal(err)
	}
	forgedTx := wire.NewMsgTx(1)
	forgedTx.AddTxIn(&wire.TxIn{SignatureScript: script})

	vs := h.mempoolAccept(forgedTx)
	if vs.IsValid() || vs.Code != validator.RejectInvalidProof {
		t.Fatalf("expected invalid proof, got %s %s", vs.Code, vs.Reason)
	}
}

func TestDuplicateMintRejected(t *testing.T) {
	h := newHarness(t)
	coin := h.coin(1, 100)
	if _, ok := h.connectBlock(10, h.mintTx(coin)); !ok {
		t.Fatal("mint block should connect")
	}

	vs := h.mempoolAccept(h.mintTx(coin))
	if vs.IsValid() || vs.Code != validator.RejectDuplicateMint {
		t.Fatalf("expected duplicate mint, got %s %s", vs.Code, vs.Reason)
	}
}

func TestMalformedPayloadRejected(t *testing.T) {
	h := newHarness(t)

	tx := wire.NewMsgTx(1)
	tx.AddTxOut(&wire.TxOut{Value: 5, PkScript: []byte{model.OpShieldMint, 0x01, 0xff}})
	vs := h.mempoolAccept(tx)
	if vs.IsValid() || vs.Code != validator.RejectMalformed {
		t.Fatalf("expected malformed reject, got %s %s", vs.Code, vs.Reason)
	}
}

func TestSpendAgainstUnknownGroupRejected(t *testing.T) {
	h := newHarness(t)
	if _, ok := h.connectBlock(10, h.mintTx(h.coin(1, 100))); !ok {
		t.Fatal("mint block should connect")
	}

	sec := []spendSecrets{{p: scalar(51), t: scalar(52)}}
	tx := h.spendTx(sec, 1, []uint64{100}, 100, nil)
	spend, _, err := model.ParseShieldTx(tx)
	if err != nil {
		t.Fatal(err)
	}
	spend.Spends[0].GroupID = 7 // never created
	script, err := spend.Script()
	if err != nil {
		t.Fatal(err)
	}
	bad := wire.NewMsgTx(1)
	bad.AddTxIn(&wire.TxIn{SignatureScript: script})

	vs := h.mempoolAccept(bad)
	if vs.IsValid() || vs.Code != validator.RejectInvalidProof {
		t.Fatalf("expected invalid proof for unknown group, got %s %s", vs.Code, vs.Reason)
	}
}

func TestReorgRoundTrip(t *testing.T) {
	h := newHarness(t)
	if _, ok := h.connectBlock(10, h.mintTx(h.coin(1, 100))); !ok {
		t.Fatal("mint block should connect")
	}

	sec := []spendSecrets{{p: scalar(61), t: scalar(62)}}
	spendTx := h.spendTx(sec, 1, []uint64{100}, 10, []*model.Coin{h.coin(2, 90)})

	msgBlock := &wire.MsgBlock{Transactions: []*wire.MsgTx{spendTx}}
	block := btcutil.NewBlock(msgBlock)
	ref := model.BlockRef{Hash: *block.Hash(), Height: 11}
	vs := validator.NewValidationState()

	info, ok := h.v.CheckBlock(block, vs, ref.Height, false)
	if !ok {
		t.Fatalf("block should validate: %s %s", vs.Code, vs.Reason)
	}
	if err := h.ledger.ApplyBlock(info, ref); err != nil {
		t.Fatal(err)
	}
	coinsAfter := h.ledger.TotalCoins()

	if err := h.v.DisconnectBlock(info, ref); err != nil {
		t.Fatal(err)
	}
	if h.ledger.TotalCoins() != coinsAfter-1 || h.ledger.TotalSpends() != 0 {
		t.Fatal("disconnect did not restore the pre-block ledger")
	}
	if h.pool.LTagCount() != 0 || h.pool.MintCount() != 0 {
		t.Fatal("disconnect must reset the mempool tracker")
	}
}

func TestReplaySkipsProofs(t *testing.T) {
	h := newHarness(t)
	if _, ok := h.connectBlock(10, h.mintTx(h.coin(1, 100))); !ok {
		t.Fatal("mint block should connect")
	}

	// proof deliberately mismatched; replay mode must accept it anyway
	sec := []spendSecrets{{p: scalar(71), t: scalar(72)}}
	tx := h.spendTx(sec, 1, []uint64{100}, 100, nil)
	spend, _, err := model.ParseShieldTx(tx)
	if err != nil {
		t.Fatal(err)
	}
	spend.Spends[0].LTag = crypto.MulBase(scalar(73)) // tag not matching the proof
	script, err := spend.Script()
	if err != nil {
		t.Fatal(err)
	}
	replayTx := wire.NewMsgTx(1)
	replayTx.AddTxIn(&wire.TxIn{SignatureScript: script})

	msgBlock := &wire.MsgBlock{Transactions: []*wire.MsgTx{replayTx}}
	block := btcutil.NewBlock(msgBlock)
	vs := validator.NewValidationState()
	ref := model.BlockRef{Hash: *block.Hash(), Height: 11}
	if !h.v.ConnectBlock(block, vs, ref, true) {
		t.Fatalf("replay should skip proof verification: %s %s", vs.Code, vs.Reason)
	}
}
