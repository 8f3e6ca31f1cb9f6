package database

import (
	"sync"

	"github.com/pkg/errors"
)

// MemDb is an in-memory Db used by tests and by nodes running without a
// persistence directory.
type MemDb struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDb() *MemDb {
	return &MemDb{data: make(map[string][]byte)}
}

func (m *MemDb) Close() {}

func (m *MemDb) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.data[key]
	if !ok {
		return nil, errors.Wrap(ErrKeyNotFound, key)
	}
	return append([]byte(nil), value...), nil
}

func (m *MemDb) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemDb) PutMulti(keys []string, values [][]byte) error {
	if len(keys) != len(values) {
		return errors.New("keys and values length mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, key := range keys {
		m.data[key] = append([]byte(nil), values[i]...)
	}
	return nil
}

func (m *MemDb) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemDb) DeleteMulti(keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}
