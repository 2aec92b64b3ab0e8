// Package datastore provides the persisted key-value layer backing the
// snapshot store and the image resolution cache. The backend is selected
// once at startup from configuration; there is no runtime fallback
// between implementations.
package datastore

import (
	"fmt"

	"github.com/tvaltari/wayfind-go/internal/conf"
)

// KV is the storage-capability interface. Both backends are safe for
// concurrent use.
type KV interface {
	// Get returns the value for key. The boolean reports presence, so an
	// empty stored value is distinguishable from an absent key.
	Get(key string) ([]byte, bool, error)
	// Set stores value under key, overwriting any previous value.
	Set(key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
	// Keys returns all keys with the given prefix.
	Keys(prefix string) ([]string, error)
	// DeletePrefix removes every key with the given prefix.
	DeletePrefix(prefix string) error
	// Close releases the backend.
	Close() error
}

// Open creates the KV backend named by the storage settings.
func Open(settings *conf.StorageSettings) (KV, error) {
	switch settings.Backend {
	case conf.StorageSQLite:
		return OpenSQLite(settings.Path)
	case conf.StorageFile:
		return OpenFile(settings.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", settings.Backend)
	}
}
