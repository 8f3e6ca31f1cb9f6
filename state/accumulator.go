package state

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"

	"github.com/veilnet/veild/crypto"
	"github.com/veilnet/veild/model"
)

// accSpend keeps the tag preimage next to the group it was checked against.
type accSpend struct {
	tag     *crypto.GroupElement
	groupID int
}

// BlockTxInfo accumulates all shielded activity discovered while validating
// one candidate block. Nothing in it touches canonical state: an abandoned
// accumulator is simply dropped. It is written by a single validation
// goroutine and needs no locking of its own.
type BlockTxInfo struct {
	txs        map[chainhash.Hash]struct{}
	mints      []*model.Coin
	mintHashes map[chainhash.Hash]struct{}
	spentLTags map[chainhash.Hash]accSpend
	spendOrder []chainhash.Hash
	complete   bool

	// undo data captured by Ledger.ApplyBlock. Mints only ever land in the
	// group that was latest at apply time or in groups the block opened, so
	// restoring that one record and dropping the newer ids reverts every
	// group the block touched.
	prevLatestGroupID int
	prevLatestGroup   *model.CoinGroupInfo
	applied           bool
}

// NewBlockTxInfo returns an empty accumulator.
func NewBlockTxInfo() *BlockTxInfo {
	return &BlockTxInfo{
		txs:        make(map[chainhash.Hash]struct{}),
		mintHashes: make(map[chainhash.Hash]struct{}),
		spentLTags: make(map[chainhash.Hash]accSpend),
	}
}

// AddTx records that a transaction carried shielded activity.
func (i *BlockTxInfo) AddTx(txHash chainhash.Hash) {
	i.txs[txHash] = struct{}{}
}

// HasTx reports whether a transaction was recorded.
func (i *BlockTxInfo) HasTx(txHash chainhash.Hash) bool {
	_, ok := i.txs[txHash]
	return ok
}

// AddMint appends a mint. Order is consensus-relevant: commits assign group
// ids in exactly this order.
func (i *BlockTxInfo) AddMint(coin *model.Coin) {
	i.mints = append(i.mints, coin)
	i.mintHashes[coin.Hash()] = struct{}{}
}

// HasMint reports whether a coin was already minted earlier in this block.
func (i *BlockTxInfo) HasMint(coinHash chainhash.Hash) bool {
	_, ok := i.mintHashes[coinHash]
	return ok
}

// Mints returns the accumulated mints in block order.
func (i *BlockTxInfo) Mints() []*model.Coin {
	return i.mints
}

// AddSpend records a linking tag and the group it was validated against.
// A tag already present is an intra-block double spend the validator must
// have caught before calling this.
func (i *BlockTxInfo) AddSpend(tag *crypto.GroupElement, groupID int) error {
	hash := model.LTagHash(tag)
	if _, ok := i.spentLTags[hash]; ok {
		return errors.Wrap(ErrConsensusInvariant, "linking tag already accumulated in this block")
	}
	i.spentLTags[hash] = accSpend{tag: tag, groupID: groupID}
	i.spendOrder = append(i.spendOrder, hash)
	return nil
}

// HasLTag reports whether a linking tag was already spent earlier in this
// block.
func (i *BlockTxInfo) HasLTag(tagHash chainhash.Hash) bool {
	_, ok := i.spentLTags[tagHash]
	return ok
}

// SpentTag is a linking tag together with the group it spends against.
type SpentTag struct {
	Tag     *crypto.GroupElement
	GroupID int
}

// SpentTags returns the (tag, groupID) pairs in the order they were
// accumulated.
func (i *BlockTxInfo) SpentTags() []SpentTag {
	out := make([]SpentTag, 0, len(i.spendOrder))
	for _, h := range i.spendOrder {
		s := i.spentLTags[h]
		out = append(out, SpentTag{Tag: s.tag, GroupID: s.groupID})
	}
	return out
}

// Complete marks the accumulator ready for commit. The validator calls this
// only once every transaction in the block has passed, so a block found
// invalid for an unrelated reason can never be partially applied.
func (i *BlockTxInfo) Complete() {
	i.complete = true
}

// IsComplete reports whether Complete has been called.
func (i *BlockTxInfo) IsComplete() bool {
	return i.complete
}
