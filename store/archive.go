package store

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"gorm.io/gorm"

	"github.com/veilnet/veild/model"
	"github.com/veilnet/veild/state"
)

// MintRecord is one confirmed mint in the relational archive, keyed by the
// coin identity hash.
type MintRecord struct {
	gorm.Model
	CoinHash   string `gorm:"uniqueIndex"`
	Commitment []byte
	Value      uint64
	GroupID    int `gorm:"index"`
	Height     int
	BlockHash  string `gorm:"index"`
}

// SpendRecord is one confirmed linking-tag use in the relational archive.
type SpendRecord struct {
	gorm.Model
	LTagHash  string `gorm:"uniqueIndex"`
	LTag      []byte
	GroupID   int    `gorm:"index"`
	BlockHash string `gorm:"index"`
	Height    int
}

// NewDB opens the archive database and migrates its schema.
func NewDB(dialector gorm.Dialector, opts ...gorm.Option) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, opts...)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&MintRecord{}, &SpendRecord{}); err != nil {
		return nil, err
	}
	return db, nil
}

// Archive is the queryable history of the shielded pool. It is not consensus
// state: the node runs without it, but anonymity-set and wallet queries need
// it.
type Archive struct {
	db *gorm.DB
}

func NewArchive(db *gorm.DB) *Archive {
	return &Archive{db: db}
}

// RecordBlock appends a connected block's mints and spends in one
// transaction.
func (a *Archive) RecordBlock(info *state.BlockTxInfo, ref model.BlockRef, groupOf func(coinHash chainhash.Hash) (model.MintedCoinInfo, bool)) error {
	return a.db.Transaction(func(tx *gorm.DB) error {
		for _, coin := range info.Mints() {
			hash := coin.Hash()
			minted, ok := groupOf(hash)
			if !ok {
				continue
			}
			record := MintRecord{
				CoinHash:   hash.String(),
				Commitment: coin.Commitment.Serialize(),
				Value:      coin.Value,
				GroupID:    minted.GroupID,
				Height:     minted.Height,
				BlockHash:  ref.Hash.String(),
			}
			if res := tx.Create(&record); res.Error != nil {
				return res.Error
			}
		}
		for _, spend := range info.SpentTags() {
			record := SpendRecord{
				LTagHash:  model.LTagHash(spend.Tag).String(),
				LTag:      spend.Tag.Serialize(),
				GroupID:   spend.GroupID,
				BlockHash: ref.Hash.String(),
				Height:    ref.Height,
			}
			if res := tx.Create(&record); res.Error != nil {
				return res.Error
			}
		}
		return nil
	})
}

// DeleteBlock removes every archive row written for the given block,
// mirroring a ledger disconnect.
func (a *Archive) DeleteBlock(blockHash chainhash.Hash) error {
	return a.db.Transaction(func(tx *gorm.DB) error {
		if res := tx.Unscoped().Delete(&MintRecord{}, "block_hash = ?", blockHash.String()); res.Error != nil {
			return res.Error
		}
		res := tx.Unscoped().Delete(&SpendRecord{}, "block_hash = ?", blockHash.String())
		return res.Error
	})
}

// MintsByGroup returns the archived mints of one coin group in mint order.
// This is the raw material of anonymity-set queries.
func (a *Archive) MintsByGroup(groupID int) ([]MintRecord, error) {
	records := []MintRecord{}
	res := a.db.Order("id asc").Find(&records, "group_id = ?", groupID)
	return records, res.Error
}

// SpendByLTagHash looks up the archived spend of a linking tag by its hash.
func (a *Archive) SpendByLTagHash(tagHash string) (*SpendRecord, error) {
	record := &SpendRecord{}
	if res := a.db.First(record, "l_tag_hash = ?", tagHash); res.Error != nil {
		return nil, res.Error
	}
	return record, nil
}
