package store

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/syncmesh/syncmesh-server/internal/config"
)

// Stores bundles the two persistence interfaces. Both may be backed by the
// same underlying implementation.
type Stores struct {
	Endpoints EndpointStore
	Temporal  TemporalStore
}

// NewStores creates the store implementations for the configured storage
// type. The pool parameter must not be nil when database storage is
// configured; it is ignored otherwise.
func NewStores(cfg *config.Config, pool *pgxpool.Pool) (*Stores, error) {
	switch cfg.GetStorageType() {
	case config.StorageTypeDatabase:
		if pool == nil {
			return nil, fmt.Errorf("database pool is required when storage type is database")
		}
		db := NewDBStore(pool)
		return &Stores{Endpoints: db, Temporal: db}, nil
	case config.StorageTypeMemory:
		mem := NewMemoryStore()
		return &Stores{Endpoints: mem, Temporal: mem}, nil
	default:
		return nil, fmt.Errorf("unrecognized storage type: %s", cfg.GetStorageType())
	}
}
