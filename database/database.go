package database

import "github.com/pkg/errors"

// ErrKeyNotFound is returned by Get when no value is stored under the key.
// Backends wrap their native not-found errors so callers can errors.Is
// against this one value.
var ErrKeyNotFound = errors.New("key not found")

// Db is the key-value surface the persistence layer writes shielded state
// through. Implementations must be safe for concurrent use.
type Db interface {
	Close()
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	PutMulti(keys []string, values [][]byte) error
	Delete(key string) error
	DeleteMulti(keys []string) error
}
