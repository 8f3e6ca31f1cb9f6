package mempool

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"go.uber.org/zap"

	"github.com/veilnet/veild/crypto"
	"github.com/veilnet/veild/model"
)

// Pool is the provisional mirror of shielded state: coins minted and linking
// tags spent only by unconfirmed transactions. It never touches canonical
// state; the validator queries it next to the ledger. Entries leave the pool
// when their transaction is mined or evicted, and the whole pool is reset
// when mempool assumptions are invalidated (e.g. after a reorg).
type Pool struct {
	mu     sync.RWMutex
	logger *zap.Logger

	// coins minted by unconfirmed transactions
	mints map[chainhash.Hash]*model.Coin

	// linking tags spent by unconfirmed transactions, mapped to the
	// spending transaction's hash
	ltags map[chainhash.Hash]ltagEntry
}

type ltagEntry struct {
	tag    *crypto.GroupElement
	txHash chainhash.Hash
}

// New returns an empty conflict tracker.
func New() *Pool {
	return &Pool{
		logger: zap.NewNop(),
		mints:  make(map[chainhash.Hash]*model.Coin),
		ltags:  make(map[chainhash.Hash]ltagEntry),
	}
}

// SetLogger attaches a logger and returns the pool for chaining.
func (p *Pool) SetLogger(logger *zap.Logger) *Pool {
	p.logger = logger
	return p
}

// HasMint reports whether an unconfirmed transaction already mints the coin
// with this hash. Satisfies state.MempoolView.
func (p *Pool) HasMint(coinHash chainhash.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.mints[coinHash]
	return ok
}

// AddMint records a coin minted by an unconfirmed transaction.
func (p *Pool) AddMint(coin *model.Coin) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mints[coin.Hash()] = coin
}

// AddMints records a batch of mints from one transaction.
func (p *Pool) AddMints(coins []*model.Coin) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, coin := range coins {
		p.mints[coin.Hash()] = coin
	}
}

// RemoveMint forgets a provisional mint, either because its transaction was
// mined or because it left the pool.
func (p *Pool) RemoveMint(coin *model.Coin) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.mints, coin.Hash())
}

// HasLTag reports whether an unconfirmed transaction already spends the tag
// with this hash. Satisfies state.MempoolView.
func (p *Pool) HasLTag(tagHash chainhash.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.ltags[tagHash]
	return ok
}

// AddSpend atomically claims all linking tags of one transaction. If any tag
// is already taken nothing is inserted and false is returned: first seen
// wins, and a transaction is never left half-accepted.
func (p *Pool) AddSpend(tags []*crypto.GroupElement, txHash chainhash.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	hashes := make([]chainhash.Hash, len(tags))
	for i, tag := range tags {
		hashes[i] = model.LTagHash(tag)
		if _, ok := p.ltags[hashes[i]]; ok {
			return false
		}
	}
	for i, tag := range tags {
		p.ltags[hashes[i]] = ltagEntry{tag: tag, txHash: txHash}
	}
	return true
}

// RemoveSpend releases linking tags, usually because their transaction was
// mined into a block.
func (p *Pool) RemoveSpend(tags []*crypto.GroupElement) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, tag := range tags {
		delete(p.ltags, model.LTagHash(tag))
	}
}

// ConflictingTxHash returns the hash of the unconfirmed transaction that
// already spends the tag, enabling double-spend diagnostics upstream.
func (p *Pool) ConflictingTxHash(tag *crypto.GroupElement) (chainhash.Hash, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.ltags[model.LTagHash(tag)]
	if !ok {
		return chainhash.Hash{}, false
	}
	return entry.txHash, true
}

// MintCount returns the number of provisional mints.
func (p *Pool) MintCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.mints)
}

// LTagCount returns the number of provisional spends.
func (p *Pool) LTagCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.ltags)
}

// Reset drops all provisional state. Called whenever the mempool is rebuilt.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mints = make(map[chainhash.Hash]*model.Coin)
	p.ltags = make(map[chainhash.Hash]ltagEntry)
	p.logger.Debug("mempool shield state reset")
}
