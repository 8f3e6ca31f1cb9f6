package command

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/veilnet/veild/crypto"
	"github.com/veilnet/veild/mempool"
	"github.com/veilnet/veild/state"
	"github.com/veilnet/veild/store"
)

// getlatestgroupid
type latestGroupID struct {
	ledger *state.Ledger
}

func LatestGroupID(ledger *state.Ledger) Command {
	return &latestGroupID{ledger: ledger}
}

func (c *latestGroupID) Name() string {
	return "getlatestgroupid"
}

func (c *latestGroupID) Execute(params json.RawMessage) (interface{}, error) {
	return c.ledger.LatestGroupID(), nil
}

// getcoingroupinfo
type coinGroupInfo struct {
	ledger *state.Ledger
}

func CoinGroupInfo(ledger *state.Ledger) Command {
	return &coinGroupInfo{ledger: ledger}
}

func (c *coinGroupInfo) Name() string {
	return "getcoingroupinfo"
}

type coinGroupInfoResult struct {
	GroupID    int    `json:"group_id"`
	FirstBlock string `json:"first_block"`
	LastBlock  string `json:"last_block"`
	Count      int    `json:"count"`
	SetHash    string `json:"set_hash"`
}

func (c *coinGroupInfo) Execute(params json.RawMessage) (interface{}, error) {
	var groupID int
	if err := json.Unmarshal(params, &groupID); err != nil {
		return nil, err
	}
	info, err := c.ledger.GetCoinGroupInfo(groupID)
	if err != nil {
		return nil, err
	}
	setHash, err := c.ledger.GroupSetHash(groupID)
	if err != nil {
		return nil, err
	}
	return coinGroupInfoResult{
		GroupID:    groupID,
		FirstBlock: info.FirstBlock.Hash.String(),
		LastBlock:  info.LastBlock.Hash.String(),
		Count:      info.Count,
		SetHash:    setHash.String(),
	}, nil
}

// islinkingtagused
type isLinkingTagUsed struct {
	ledger *state.Ledger
}

func IsLinkingTagUsed(ledger *state.Ledger) Command {
	return &isLinkingTagUsed{ledger: ledger}
}

func (c *isLinkingTagUsed) Name() string {
	return "islinkingtagused"
}

// Execute accepts either a serialized tag (33 bytes hex) or its lookup hash
// (32 bytes hex).
func (c *isLinkingTagUsed) Execute(params json.RawMessage) (interface{}, error) {
	var p string
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(p)
	if err != nil {
		return nil, err
	}
	switch len(raw) {
	case crypto.GroupElementSize:
		tag, err := crypto.ParseGroupElement(raw)
		if err != nil {
			return nil, err
		}
		return c.ledger.IsUsedLTag(tag), nil
	case chainhash.HashSize:
		hash, err := chainhash.NewHash(raw)
		if err != nil {
			return nil, err
		}
		_, used := c.ledger.IsUsedLTagHash(*hash)
		return used, nil
	default:
		return nil, fmt.Errorf("expected %d or %d hex bytes, got %d",
			crypto.GroupElementSize, chainhash.HashSize, len(raw))
	}
}

// getcoinheightandgroup
type coinHeightAndGroup struct {
	ledger *state.Ledger
}

func CoinHeightAndGroup(ledger *state.Ledger) Command {
	return &coinHeightAndGroup{ledger: ledger}
}

func (c *coinHeightAndGroup) Name() string {
	return "getcoinheightandgroup"
}

type coinHeightAndGroupResult struct {
	Height  int `json:"height"`
	GroupID int `json:"group_id"`
}

// Execute looks up a confirmed coin by its identity hash (32 bytes hex).
func (c *coinHeightAndGroup) Execute(params json.RawMessage) (interface{}, error) {
	var p string
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	hash, err := chainhash.NewHashFromStr(p)
	if err != nil {
		return nil, err
	}
	coin, ok := c.ledger.GetCoinByHash(*hash)
	if !ok {
		return nil, state.ErrCoinNotFound
	}
	height, groupID, err := c.ledger.GetMintedCoinHeightAndGroup(coin)
	if err != nil {
		return nil, err
	}
	return coinHeightAndGroupResult{Height: height, GroupID: groupID}, nil
}

// getmempoolconflict
type mempoolConflict struct {
	pool *mempool.Pool
}

func MempoolConflict(pool *mempool.Pool) Command {
	return &mempoolConflict{pool: pool}
}

func (c *mempoolConflict) Name() string {
	return "getmempoolconflict"
}

// Execute returns the hash of the unconfirmed transaction holding the given
// linking tag (33 bytes hex), or null if the tag is unclaimed.
func (c *mempoolConflict) Execute(params json.RawMessage) (interface{}, error) {
	var p string
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(p)
	if err != nil {
		return nil, err
	}
	tag, err := crypto.ParseGroupElement(raw)
	if err != nil {
		return nil, err
	}
	txHash, ok := c.pool.ConflictingTxHash(tag)
	if !ok {
		return nil, nil
	}
	return txHash.String(), nil
}

// getshieldstate
type shieldState struct {
	ledger *state.Ledger
	pool   *mempool.Pool
}

func ShieldState(ledger *state.Ledger, pool *mempool.Pool) Command {
	return &shieldState{ledger: ledger, pool: pool}
}

func (c *shieldState) Name() string {
	return "getshieldstate"
}

type shieldStateResult struct {
	TotalCoins    int `json:"total_coins"`
	TotalSpends   int `json:"total_spends"`
	LatestGroupID int `json:"latest_group_id"`
	MempoolMints  int `json:"mempool_mints"`
	MempoolSpends int `json:"mempool_spends"`
}

func (c *shieldState) Execute(params json.RawMessage) (interface{}, error) {
	return shieldStateResult{
		TotalCoins:    c.ledger.TotalCoins(),
		TotalSpends:   c.ledger.TotalSpends(),
		LatestGroupID: c.ledger.LatestGroupID(),
		MempoolMints:  c.pool.MintCount(),
		MempoolSpends: c.pool.LTagCount(),
	}, nil
}

// getanonymityset
type anonymitySet struct {
	ledger  *state.Ledger
	archive *store.Archive
}

func AnonymitySet(ledger *state.Ledger, archive *store.Archive) Command {
	return &anonymitySet{ledger: ledger, archive: archive}
}

func (c *anonymitySet) Name() string {
	return "getanonymityset"
}

type anonymitySetResult struct {
	GroupID     int      `json:"group_id"`
	SetHash     string   `json:"set_hash"`
	Commitments []string `json:"commitments"`
}

func (c *anonymitySet) Execute(params json.RawMessage) (interface{}, error) {
	if c.archive == nil {
		return nil, fmt.Errorf("node is running without an archive database")
	}
	var groupID int
	if err := json.Unmarshal(params, &groupID); err != nil {
		return nil, err
	}
	setHash, err := c.ledger.GroupSetHash(groupID)
	if err != nil {
		return nil, err
	}
	records, err := c.archive.MintsByGroup(groupID)
	if err != nil {
		return nil, err
	}
	result := anonymitySetResult{
		GroupID: groupID,
		SetHash: setHash.String(),
	}
	for _, record := range records {
		result.Commitments = append(result.Commitments, hex.EncodeToString(record.Commitment))
	}
	return result, nil
}
