package database

import (
	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type MdbxDb struct {
	env    *mdbx.Env
	dbName string
	dbi    mdbx.DBI
	logger *zap.Logger
}

func NewMDBX(path string, dbName string) (*MdbxDb, error) {
	env, err := mdbx.NewEnv()
	if err != nil {
		return nil, err
	}

	if err := env.SetOption(mdbx.OptMaxDB, 1); err != nil {
		return nil, err
	}
	pageSize := mdbx.MaxPageSize
	if err := env.SetGeometry(-1, -1, 1024*1024*pageSize, -1, -1, pageSize); err != nil {
		return nil, err
	}
	if err := env.Open(path, 0, 0644); err != nil {
		env.Close()
		return nil, err
	}
	m := &MdbxDb{env: env, dbName: dbName, logger: zap.NewNop()}
	return m.openDbi()
}

func (m *MdbxDb) SetLogger(logger *zap.Logger) *MdbxDb {
	m.logger = logger
	return m
}

func (m *MdbxDb) Close() {
	m.env.CloseDBI(m.dbi)
	m.env.Close()
}

func (m *MdbxDb) Get(key string) ([]byte, error) {
	var value []byte
	err := m.env.View(func(txn *mdbx.Txn) error {
		var err error
		value, err = txn.Get(m.dbi, []byte(key))
		return err
	})
	if mdbx.IsNotFound(err) {
		return nil, errors.Wrap(ErrKeyNotFound, key)
	}
	return value, err
}

func (m *MdbxDb) Put(key string, value []byte) error {
	err := m.env.Update(func(txn *mdbx.Txn) error {
		return txn.Put(m.dbi, []byte(key), value, 0)
	})
	if err != nil {
		m.logger.Error("error putting value", zap.String("key", key), zap.Error(err))
	}
	return err
}

// PutMulti writes all pairs in one transaction: either every key lands or
// none does.
func (m *MdbxDb) PutMulti(keys []string, values [][]byte) error {
	if len(keys) != len(values) {
		return errors.New("keys and values length mismatch")
	}
	err := m.env.Update(func(txn *mdbx.Txn) error {
		for i, key := range keys {
			if err := txn.Put(m.dbi, []byte(key), values[i], 0); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		m.logger.Error("error putting batch", zap.Int("keys", len(keys)), zap.Error(err))
	}
	return err
}

func (m *MdbxDb) Delete(key string) error {
	err := m.env.Update(func(txn *mdbx.Txn) error {
		return txn.Del(m.dbi, []byte(key), nil)
	})
	if mdbx.IsNotFound(err) {
		return nil
	}
	if err != nil {
		m.logger.Error("error deleting value", zap.String("key", key), zap.Error(err))
	}
	return err
}

// DeleteMulti removes all keys in one transaction. Missing keys are not an
// error.
func (m *MdbxDb) DeleteMulti(keys []string) error {
	err := m.env.Update(func(txn *mdbx.Txn) error {
		for _, key := range keys {
			if err := txn.Del(m.dbi, []byte(key), nil); err != nil && !mdbx.IsNotFound(err) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		m.logger.Error("error deleting batch", zap.Int("keys", len(keys)), zap.Error(err))
	}
	return err
}

func (m *MdbxDb) openDbi() (*MdbxDb, error) {
	err := m.env.Update(func(txn *mdbx.Txn) error {
		var err error
		m.dbi, err = txn.CreateDBI(m.dbName)
		return err
	})
	return m, err
}
