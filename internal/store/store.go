// Package store contains the persistence interfaces for endpoint and
// temporal-chain state, with in-memory and Postgres-backed implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/syncmesh/syncmesh-server/internal/status"
	"github.com/syncmesh/syncmesh-server/internal/temporal"
)

var (
	// ErrEndpointNotFound is returned when an endpoint can't be found
	ErrEndpointNotFound = errors.New("endpoint not found")

	// ErrEndpointExists is returned when registering a duplicate endpoint
	ErrEndpointExists = errors.New("endpoint already exists")

	// ErrInstanceNotFound is returned when a sync instance can't be found
	ErrInstanceNotFound = errors.New("sync instance not found")

	// ErrInstanceExists is returned when registering a duplicate instance
	ErrInstanceExists = errors.New("sync instance already exists")

	// ErrOperationNotFound is returned when a sync operation can't be found
	ErrOperationNotFound = errors.New("sync operation not found")

	// ErrConflictNotFound is returned when a conflict can't be found
	ErrConflictNotFound = errors.New("conflict not found")

	// ErrConflictResolved is returned when resolving an already resolved
	// conflict; a resolution is set exactly once
	ErrConflictResolved = errors.New("conflict already resolved")

	// ErrChainHeadChanged is returned by AppendEntry when the chain head
	// no longer matches the expected head. The caller must re-read the
	// latest entry and retry the whole synchronize sequence.
	ErrChainHeadChanged = errors.New("temporal chain head changed")
)

// EndpointStore persists endpoint connectivity state. All mutation is
// scoped to a single endpoint; implementations never take a store-wide
// write lock across unrelated endpoints.
//
//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/syncmesh/syncmesh-server/internal/store EndpointStore,TemporalStore
type EndpointStore interface {
	// CreateEndpoint registers a new endpoint in the disconnected state
	CreateEndpoint(ctx context.Context, id string) (*status.Endpoint, error)

	// GetEndpoint returns a copy of the named endpoint
	GetEndpoint(ctx context.Context, id string) (*status.Endpoint, error)

	// ListEndpoints returns copies of all registered endpoints
	ListEndpoints(ctx context.Context) ([]*status.Endpoint, error)

	// UpdateEndpoint applies updateFn to the named endpoint as a single
	// atomic action scoped to that endpoint, and returns the updated copy
	UpdateEndpoint(ctx context.Context, id string, updateFn func(*status.Endpoint)) (*status.Endpoint, error)

	// DeleteEndpoint removes the endpoint. Callers must cancel any pending
	// reconnect schedule before deleting.
	DeleteEndpoint(ctx context.Context, id string) error
}

// TemporalStore owns the per-instance temporal chains, conflicts and sync
// operations. AppendEntry is a compare-and-append: it commits the entry
// only if the chain head still matches the expected head.
type TemporalStore interface {
	// CreateInstance registers a sync instance
	CreateInstance(ctx context.Context, id, endpointID string) (*temporal.SyncInstance, error)

	// GetInstance returns a copy of the named instance
	GetInstance(ctx context.Context, id string) (*temporal.SyncInstance, error)

	// ListInstances returns copies of all registered instances
	ListInstances(ctx context.Context) ([]*temporal.SyncInstance, error)

	// RecordSyncResult bumps the instance's sync counter and, when a
	// conflict occurred, its conflict counter
	RecordSyncResult(ctx context.Context, instanceID string, syncedAt time.Time, conflict bool) error

	// LatestEntry returns the newest chain entry for the instance by
	// timestamp, or nil when the chain is empty
	LatestEntry(ctx context.Context, instanceID string) (*temporal.StateEntry, error)

	// AppendEntry appends a chain entry. expectedHead is the StateHash of
	// the entry the caller read as latest, or nil for an empty chain;
	// a mismatch returns ErrChainHeadChanged and commits nothing.
	AppendEntry(ctx context.Context, entry *temporal.StateEntry, expectedHead *string) error

	// ListEntries returns up to limit chain entries for the instance,
	// newest first. limit <= 0 means no limit.
	ListEntries(ctx context.Context, instanceID string, limit int) ([]*temporal.StateEntry, error)

	// CreateConflict records a newly detected conflict
	CreateConflict(ctx context.Context, conflict *temporal.Conflict) error

	// ResolveConflict records the resolution for a conflict exactly once
	ResolveConflict(ctx context.Context, id uuid.UUID, resolution temporal.Resolution, resolvedAt time.Time) error

	// GetConflict returns a copy of the named conflict
	GetConflict(ctx context.Context, id uuid.UUID) (*temporal.Conflict, error)

	// CreateOperation records a new sync operation in the syncing state
	CreateOperation(ctx context.Context, op *temporal.Operation) error

	// CompleteOperation moves an operation to its terminal status
	CompleteOperation(ctx context.Context, id uuid.UUID, opStatus temporal.OperationStatus) error

	// GetOperation returns a copy of the named operation
	GetOperation(ctx context.Context, id uuid.UUID) (*temporal.Operation, error)
}
