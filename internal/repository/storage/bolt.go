package storage

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const boltOpenTimeout = 5 * time.Second

// NewBolt - opens (or creates) the BoltDB file at path.
func NewBolt(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("can't open bolt database %s: %w", path, err)
	}

	return db, nil
}
