package mempool_test

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/veilnet/veild/crypto"
	"github.com/veilnet/veild/mempool"
	"github.com/veilnet/veild/model"
)

func testTag(seed uint32) *crypto.GroupElement {
	var s crypto.Scalar
	s.SetInt(seed + 1)
	return crypto.MulBase(&s)
}

func testCoin(seed uint32) *model.Coin {
	var nonce crypto.Scalar
	nonce.SetInt(seed + 1)
	return &model.Coin{
		Commitment: testTag(seed + 1000),
		Value:      uint64(seed),
		Nonce:      &nonce,
	}
}

func TestPoolSpendFirstSeenWins(t *testing.T) {
	pool := mempool.New()
	tag := testTag(1)
	txA := chainhash.HashH([]byte("tx-a"))
	txB := chainhash.HashH([]byte("tx-b"))

	if !pool.AddSpend([]*crypto.GroupElement{tag}, txA) {
		t.Fatal("first spend should be accepted")
	}
	if pool.AddSpend([]*crypto.GroupElement{tag}, txB) {
		t.Fatal("second spend of the same tag must be rejected")
	}

	conflict, ok := pool.ConflictingTxHash(tag)
	if !ok || conflict != txA {
		t.Fatalf("conflict should name the first tx, got %v (ok=%v)", conflict, ok)
	}
}

func TestPoolSpendBatchIsAtomic(t *testing.T) {
	pool := mempool.New()
	taken := testTag(2)
	free := testTag(3)

	if !pool.AddSpend([]*crypto.GroupElement{taken}, chainhash.HashH([]byte("tx-1"))) {
		t.Fatal("setup spend should be accepted")
	}

	// one tag of the batch is taken, so neither may be inserted
	if pool.AddSpend([]*crypto.GroupElement{free, taken}, chainhash.HashH([]byte("tx-2"))) {
		t.Fatal("batch containing a taken tag must be rejected")
	}
	if pool.HasLTag(model.LTagHash(free)) {
		t.Fatal("rejected batch must not leave partial state behind")
	}
	if pool.LTagCount() != 1 {
		t.Fatalf("expected 1 tracked tag, got %d", pool.LTagCount())
	}
}

func TestPoolMintLifecycle(t *testing.T) {
	pool := mempool.New()
	coin := testCoin(4)

	if pool.HasMint(coin.Hash()) {
		t.Fatal("empty pool should not report the mint")
	}
	pool.AddMint(coin)
	if !pool.HasMint(coin.Hash()) {
		t.Fatal("added mint not visible")
	}
	pool.RemoveMint(coin)
	if pool.HasMint(coin.Hash()) {
		t.Fatal("removed mint still visible")
	}
}

func TestPoolReset(t *testing.T) {
	pool := mempool.New()
	pool.AddMints([]*model.Coin{testCoin(5), testCoin(6)})
	if !pool.AddSpend([]*crypto.GroupElement{testTag(7)}, chainhash.HashH([]byte("tx"))) {
		t.Fatal("spend should be accepted")
	}

	pool.Reset()
	if pool.MintCount() != 0 || pool.LTagCount() != 0 {
		t.Fatal("reset must clear all provisional state")
	}
}
