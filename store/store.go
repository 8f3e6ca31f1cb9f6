package store

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/veilnet/veild/database"
	"github.com/veilnet/veild/model"
	"github.com/veilnet/veild/state"
)

var (
	stateKey       = "shield:state"
	latestGroupKey = "shield:latestGroup"
	tipKey         = "shield:tip"
)

// ErrNoState is returned by LoadState when nothing was ever persisted, so
// callers can distinguish a fresh node from a corrupt store.
var ErrNoState = errors.New("no persisted shielded state")

// Storage persists the shielded ledger through a key-value backend. The
// snapshot is written as one value so a crash between writes can never leave
// a torn state on disk.
type Storage struct {
	db     database.Db
	logger *zap.Logger
}

func NewStorage(db database.Db) *Storage {
	return &Storage{
		db:     db,
		logger: zap.NewNop(),
	}
}

func (s *Storage) SetLogger(logger *zap.Logger) *Storage {
	s.logger = logger
	return s
}

// SaveState persists a ledger snapshot together with the block it reflects.
// The latest group id is duplicated under its own key so monitoring can read
// it without decoding the whole snapshot.
func (s *Storage) SaveState(snap *state.Snapshot, tip model.BlockRef) error {
	snapBytes, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	tipBytes, err := json.Marshal(tip)
	if err != nil {
		return errors.Wrap(err, "marshal tip")
	}
	err = s.db.PutMulti(
		[]string{stateKey, tipKey, latestGroupKey},
		[][]byte{snapBytes, tipBytes, []byte(strconv.Itoa(snap.LatestGroupID))},
	)
	if err != nil {
		s.logger.Error("failed to persist shielded state",
			zap.Int("height", tip.Height), zap.Error(err))
		return err
	}
	s.logger.Debug("persisted shielded state",
		zap.Int("height", tip.Height),
		zap.Int("mints", len(snap.Mints)),
		zap.Int("spends", len(snap.Spends)))
	return nil
}

// LoadState reads the persisted snapshot and the block it reflects.
func (s *Storage) LoadState() (*state.Snapshot, model.BlockRef, error) {
	snapBytes, err := s.db.Get(stateKey)
	if errors.Is(err, database.ErrKeyNotFound) {
		return nil, model.BlockRef{}, ErrNoState
	}
	if err != nil {
		return nil, model.BlockRef{}, err
	}
	snap := &state.Snapshot{}
	if err := json.Unmarshal(snapBytes, snap); err != nil {
		return nil, model.BlockRef{}, errors.Wrap(err, "unmarshal snapshot")
	}

	tip, err := s.LoadTip()
	if err != nil {
		return nil, model.BlockRef{}, errors.Wrap(err, "persisted state missing tip")
	}
	return snap, tip, nil
}

// LoadTip reads just the persisted tip. It is cheap enough to poll, which the
// unconfirmed transaction feed does to keep its height current.
func (s *Storage) LoadTip() (model.BlockRef, error) {
	tipBytes, err := s.db.Get(tipKey)
	if errors.Is(err, database.ErrKeyNotFound) {
		return model.BlockRef{}, ErrNoState
	}
	if err != nil {
		return model.BlockRef{}, err
	}
	var tip model.BlockRef
	if err := json.Unmarshal(tipBytes, &tip); err != nil {
		return model.BlockRef{}, errors.Wrap(err, "unmarshal tip")
	}
	return tip, nil
}

// LatestGroupID reads the convenience key written by SaveState.
func (s *Storage) LatestGroupID() (int, error) {
	data, err := s.db.Get(latestGroupKey)
	if errors.Is(err, database.ErrKeyNotFound) {
		return 0, ErrNoState
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(data))
}

// Reset drops all persisted shielded state. Only reindexing from genesis
// should call this.
func (s *Storage) Reset() error {
	return s.db.DeleteMulti([]string{stateKey, tipKey, latestGroupKey})
}
