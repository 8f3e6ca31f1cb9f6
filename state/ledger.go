package state

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/veilnet/veild/crypto"
	"github.com/veilnet/veild/model"
)

// Default group limits. The first group starts smaller so reference sets
// stay small early in the chain's life.
const (
	DefaultMaxCoinInGroup = 65000
	DefaultStartGroupSize = 16000

	// DefaultActivationHeight is the mainnet height at which shielded
	// transactions become valid.
	DefaultActivationHeight = 819300
)

// Params are the consensus parameters of the shielded pool. An explicit
// value is passed wherever needed; there is no process-wide default state.
type Params struct {
	MaxCoinInGroup   int
	StartGroupSize   int
	ActivationHeight int
}

// DefaultParams returns mainnet parameters.
func DefaultParams() Params {
	return Params{
		MaxCoinInGroup:   DefaultMaxCoinInGroup,
		StartGroupSize:   DefaultStartGroupSize,
		ActivationHeight: DefaultActivationHeight,
	}
}

// TestNetParams returns parameters for test networks: shielded transactions
// are active from genesis and groups roll over sooner so the multi-group
// paths get exercised without minting tens of thousands of coins.
func TestNetParams() Params {
	return Params{
		MaxCoinInGroup:   16000,
		StartGroupSize:   4000,
		ActivationHeight: 0,
	}
}

// IsShieldAllowed reports whether shielded transactions are active at the
// given height.
func (p Params) IsShieldAllowed(height int) bool {
	return height >= p.ActivationHeight
}

// groupCapacity returns how many coins the group with the given id may hold.
func (p Params) groupCapacity(groupID int) int {
	if groupID == 1 {
		return p.StartGroupSize
	}
	return p.MaxCoinInGroup
}

// MempoolView is the slice of the mempool conflict tracker the ledger needs
// for its cross-layer pre-checks.
type MempoolView interface {
	HasMint(coinHash chainhash.Hash) bool
	HasLTag(tagHash chainhash.Hash) bool
}

type mintEntry struct {
	coin *model.Coin
	info model.MintedCoinInfo
}

type tagEntry struct {
	tag     *crypto.GroupElement
	groupID int
}

// Ledger is the canonical, chain-confirmed record of minted coins, used
// linking tags and coin groups. Map keys are collision-resistant hashes of
// the serialized values; the stored preimages are the authoritative
// identities. A single RWMutex serializes every state transition; reads
// take the same lock so no query observes a torn intermediate state.
type Ledger struct {
	mu     sync.RWMutex
	params Params
	logger *zap.Logger

	latestGroupID int
	coinGroups    map[int]*model.CoinGroupInfo
	mintedCoins   map[chainhash.Hash]mintEntry
	usedLTags     map[chainhash.Hash]tagEntry
}

// NewLedger returns an empty ledger with the given parameters.
func NewLedger(params Params) *Ledger {
	l := &Ledger{
		params: params,
		logger: zap.NewNop(),
	}
	l.resetLocked()
	return l
}

// SetLogger attaches a logger and returns the ledger for chaining.
func (l *Ledger) SetLogger(logger *zap.Logger) *Ledger {
	l.logger = logger
	return l
}

// Params returns the consensus parameters the ledger was built with.
func (l *Ledger) Params() Params {
	return l.params
}

func (l *Ledger) resetLocked() {
	l.latestGroupID = 0
	l.coinGroups = make(map[int]*model.CoinGroupInfo)
	l.mintedCoins = make(map[chainhash.Hash]mintEntry)
	l.usedLTags = make(map[chainhash.Hash]tagEntry)
}

// Reset drops all canonical state. Only reindexing from genesis should call
// this.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetLocked()
}

// HasCoin reports whether the coin was minted on the canonical chain.
func (l *Ledger) HasCoin(coin *model.Coin) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.mintedCoins[coin.Hash()]
	return ok
}

// GetCoinByHash returns the minted coin with the given identity hash.
func (l *Ledger) GetCoinByHash(coinHash chainhash.Hash) (*model.Coin, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.mintedCoins[coinHash]
	if !ok {
		return nil, false
	}
	return entry.coin, true
}

// GetMintedCoinHeightAndGroup returns the mint height and group id of a
// confirmed coin.
func (l *Ledger) GetMintedCoinHeightAndGroup(coin *model.Coin) (int, int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.mintedCoins[coin.Hash()]
	if !ok {
		return 0, 0, ErrCoinNotFound
	}
	return entry.info.Height, entry.info.GroupID, nil
}

// GetCoinGroupInfo returns the group record for the given id.
func (l *Ledger) GetCoinGroupInfo(groupID int) (model.CoinGroupInfo, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	info, ok := l.coinGroups[groupID]
	if !ok {
		return model.CoinGroupInfo{}, ErrGroupNotFound
	}
	return *info, nil
}

// LatestGroupID returns the id of the currently active group, 0 if no coin
// was ever minted.
func (l *Ledger) LatestGroupID() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.latestGroupID
}

// TotalCoins returns the number of confirmed minted coins.
func (l *Ledger) TotalCoins() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.mintedCoins)
}

// TotalSpends returns the number of confirmed used linking tags.
func (l *Ledger) TotalSpends() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.usedLTags)
}

// IsUsedLTag reports whether the linking tag was used by a confirmed spend.
func (l *Ledger) IsUsedLTag(tag *crypto.GroupElement) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.usedLTags[model.LTagHash(tag)]
	return ok
}

// IsUsedLTagHash resolves a linking-tag hash to its preimage if the tag was
// used by a confirmed spend.
func (l *Ledger) IsUsedLTagHash(tagHash chainhash.Hash) (*crypto.GroupElement, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.usedLTags[tagHash]
	if !ok {
		return nil, false
	}
	return entry.tag, true
}

// GroupSetHash is the deterministic binding of a group's identity that spend
// proofs commit to. It depends only on the group id and the block that
// opened the group, so it is stable for the group's whole life.
func (l *Ledger) GroupSetHash(groupID int) (chainhash.Hash, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.groupSetHashLocked(groupID)
}

func (l *Ledger) groupSetHashLocked(groupID int) (chainhash.Hash, error) {
	info, ok := l.coinGroups[groupID]
	if !ok {
		return chainhash.Hash{}, ErrGroupNotFound
	}
	h := sha256.New()
	h.Write([]byte("veild group set"))
	var idBytes [4]byte
	binary.LittleEndian.PutUint32(idBytes[:], uint32(groupID))
	h.Write(idBytes[:])
	h.Write(info.FirstBlock.Hash[:])
	var out chainhash.Hash
	copy(out[:], h.Sum(nil))
	return out, nil
}

// CanAcceptMintToMempool reports whether minting this coin in an unconfirmed
// transaction conflicts with either canonical or mempool state.
func (l *Ledger) CanAcceptMintToMempool(pool MempoolView, coin *model.Coin) bool {
	hash := coin.Hash()
	l.mu.RLock()
	_, confirmed := l.mintedCoins[hash]
	l.mu.RUnlock()
	if confirmed {
		return false
	}
	return !pool.HasMint(hash)
}

// CanAcceptSpendToMempool reports whether a spend of this linking tag in an
// unconfirmed transaction conflicts with either canonical or mempool state.
// A tag is globally at-most-once across confirmed chain and mempool.
func (l *Ledger) CanAcceptSpendToMempool(pool MempoolView, tag *crypto.GroupElement) bool {
	hash := model.LTagHash(tag)
	l.mu.RLock()
	_, used := l.usedLTags[hash]
	l.mu.RUnlock()
	if used {
		return false
	}
	return !pool.HasLTag(hash)
}

// AddMint inserts a confirmed mint, assigning it to a coin group. Group
// assignment is deterministic and order-sensitive: every validator must
// replay it identically. Returns the assigned (group, height) record.
func (l *Ledger) AddMint(coin *model.Coin, block model.BlockRef) (model.MintedCoinInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addMintLocked(coin, block)
}

func (l *Ledger) addMintLocked(coin *model.Coin, block model.BlockRef) (model.MintedCoinInfo, error) {
	hash := coin.Hash()
	if _, ok := l.mintedCoins[hash]; ok {
		l.logger.Error("consensus invariant violated: duplicate mint",
			zap.String("coin", hash.String()),
			zap.Int("height", block.Height))
		return model.MintedCoinInfo{}, errors.Wrap(ErrConsensusInvariant, "coin already minted")
	}

	group := l.coinGroups[l.latestGroupID]
	if group == nil || group.Count >= l.params.groupCapacity(l.latestGroupID) {
		l.latestGroupID++
		group = &model.CoinGroupInfo{FirstBlock: block, LastBlock: block}
		l.coinGroups[l.latestGroupID] = group
	}
	group.Count++
	group.LastBlock = block

	info := model.MintedCoinInfo{GroupID: l.latestGroupID, Height: block.Height}
	l.mintedCoins[hash] = mintEntry{coin: coin, info: info}
	return info, nil
}

// RemoveMint rolls back a confirmed mint. Valid only while disconnecting the
// block that minted it, in reverse of application order.
func (l *Ledger) RemoveMint(coin *model.Coin) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.removeMintLocked(coin)
}

func (l *Ledger) removeMintLocked(coin *model.Coin) error {
	hash := coin.Hash()
	entry, ok := l.mintedCoins[hash]
	if !ok {
		return ErrCoinNotFound
	}
	group, ok := l.coinGroups[entry.info.GroupID]
	if !ok {
		l.logger.Error("consensus invariant violated: minted coin references missing group",
			zap.String("coin", hash.String()),
			zap.Int("group", entry.info.GroupID))
		return errors.Wrap(ErrConsensusInvariant, "mint references missing group")
	}
	group.Count--
	if group.Count <= 0 {
		delete(l.coinGroups, entry.info.GroupID)
		if entry.info.GroupID == l.latestGroupID {
			l.latestGroupID--
		}
	}
	delete(l.mintedCoins, hash)
	return nil
}

// AddSpend records a confirmed use of a linking tag against a group.
func (l *Ledger) AddSpend(tag *crypto.GroupElement, groupID int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addSpendLocked(tag, groupID)
}

func (l *Ledger) addSpendLocked(tag *crypto.GroupElement, groupID int) error {
	hash := model.LTagHash(tag)
	if _, ok := l.usedLTags[hash]; ok {
		l.logger.Error("consensus invariant violated: duplicate spend",
			zap.String("ltag", hash.String()),
			zap.Int("group", groupID))
		return errors.Wrap(ErrConsensusInvariant, "linking tag already used")
	}
	l.usedLTags[hash] = tagEntry{tag: tag, groupID: groupID}
	return nil
}

// RemoveSpend rolls back a confirmed spend during block disconnection.
func (l *Ledger) RemoveSpend(tag *crypto.GroupElement) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.removeSpendLocked(tag)
}

func (l *Ledger) removeSpendLocked(tag *crypto.GroupElement) error {
	hash := model.LTagHash(tag)
	if _, ok := l.usedLTags[hash]; !ok {
		return ErrTagNotFound
	}
	delete(l.usedLTags, hash)
	return nil
}

// ApplyBlock commits a completed block accumulator: all mints in block
// order, then all spends. The whole commit happens under one lock
// acquisition so no reader sees a half-applied block. The prior record of
// the group the block extends is captured into the accumulator so
// RevertBlock can restore it exactly.
func (l *Ledger) ApplyBlock(info *BlockTxInfo, block model.BlockRef) error {
	if !info.IsComplete() {
		return ErrIncompleteBlockInfo
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	info.prevLatestGroupID = l.latestGroupID
	info.prevLatestGroup = nil
	if group, ok := l.coinGroups[l.latestGroupID]; ok {
		prev := *group
		info.prevLatestGroup = &prev
	}
	info.applied = true

	for _, coin := range info.Mints() {
		if _, err := l.addMintLocked(coin, block); err != nil {
			return err
		}
	}
	for _, spend := range info.SpentTags() {
		if err := l.addSpendLocked(spend.Tag, spend.GroupID); err != nil {
			return err
		}
	}
	return nil
}

// RevertBlock undoes a previously applied block accumulator: spends first,
// then mints in reverse order. Group records (counts, first/last block refs,
// latest group id) are restored from the undo data captured at apply time,
// so a node that lived through the reorg ends bit-identical to one that
// reindexed from genesis.
func (l *Ledger) RevertBlock(info *BlockTxInfo) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !info.applied {
		return errors.Wrap(ErrConsensusInvariant, "reverting a block that was never applied")
	}

	for _, spend := range info.SpentTags() {
		if err := l.removeSpendLocked(spend.Tag); err != nil {
			return err
		}
	}
	mints := info.Mints()
	for i := len(mints) - 1; i >= 0; i-- {
		hash := mints[i].Hash()
		if _, ok := l.mintedCoins[hash]; !ok {
			return ErrCoinNotFound
		}
		delete(l.mintedCoins, hash)
	}

	// drop groups the block opened, then restore the one it extended
	for id := l.latestGroupID; id > info.prevLatestGroupID; id-- {
		delete(l.coinGroups, id)
	}
	if info.prevLatestGroup != nil {
		prev := *info.prevLatestGroup
		l.coinGroups[info.prevLatestGroupID] = &prev
	} else {
		delete(l.coinGroups, info.prevLatestGroupID)
	}
	l.latestGroupID = info.prevLatestGroupID
	info.applied = false
	return nil
}

// Snapshot is an export of the full canonical shielded state, used by the
// persistence layer. The data it carries must match the in-memory model
// exactly: the ledger is equally reconstructible from a snapshot or by
// replaying the chain from genesis.
type Snapshot struct {
	LatestGroupID int                         `json:"latest_group_id"`
	Groups        map[int]model.CoinGroupInfo `json:"groups"`
	Mints         []SnapshotMint              `json:"mints"`
	Spends        []SnapshotSpend             `json:"spends"`
}

// SnapshotMint is one confirmed mint in a snapshot.
type SnapshotMint struct {
	Coin []byte               `json:"coin"`
	Info model.MintedCoinInfo `json:"info"`
}

// SnapshotSpend is one confirmed spend in a snapshot.
type SnapshotSpend struct {
	Tag     []byte `json:"tag"`
	GroupID int    `json:"group_id"`
}

// Export captures the current canonical state.
func (l *Ledger) Export() (*Snapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := &Snapshot{
		LatestGroupID: l.latestGroupID,
		Groups:        make(map[int]model.CoinGroupInfo, len(l.coinGroups)),
	}
	for id, info := range l.coinGroups {
		snap.Groups[id] = *info
	}
	for _, entry := range l.mintedCoins {
		coinBytes, err := entry.coin.SerializeBytes()
		if err != nil {
			return nil, err
		}
		snap.Mints = append(snap.Mints, SnapshotMint{Coin: coinBytes, Info: entry.info})
	}
	for _, entry := range l.usedLTags {
		snap.Spends = append(snap.Spends, SnapshotSpend{
			Tag:     entry.tag.Serialize(),
			GroupID: entry.groupID,
		})
	}
	return snap, nil
}

// Restore replaces the ledger contents with a snapshot.
func (l *Ledger) Restore(snap *Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.resetLocked()
	l.latestGroupID = snap.LatestGroupID
	for id, info := range snap.Groups {
		groupInfo := info
		l.coinGroups[id] = &groupInfo
	}
	for _, m := range snap.Mints {
		coin, err := model.DeserializeCoin(bytes.NewReader(m.Coin))
		if err != nil {
			return errors.Wrap(err, "snapshot mint")
		}
		l.mintedCoins[coin.Hash()] = mintEntry{coin: coin, info: m.Info}
	}
	for _, s := range snap.Spends {
		tag, err := crypto.ParseGroupElement(s.Tag)
		if err != nil {
			return errors.Wrap(err, "snapshot spend")
		}
		l.usedLTags[model.LTagHash(tag)] = tagEntry{tag: tag, groupID: s.GroupID}
	}
	return nil
}
