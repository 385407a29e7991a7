package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/syncmesh/syncmesh-server/internal/status"
	"github.com/syncmesh/syncmesh-server/internal/temporal"
)

// endpointRecord pairs an endpoint with its own lock so mutation stays
// scoped to a single entity
type endpointRecord struct {
	mu       sync.Mutex
	endpoint status.Endpoint
}

// chainRecord holds one instance's chain and counters behind a per-instance lock
type chainRecord struct {
	mu       sync.Mutex
	instance temporal.SyncInstance
	entries  []*temporal.StateEntry
}

// memoryStore is the in-memory implementation of EndpointStore and
// TemporalStore. The outer maps are guarded by short-held read/write locks;
// record mutation happens under each record's own lock.
type memoryStore struct {
	epMu      sync.RWMutex
	endpoints map[string]*endpointRecord

	chMu   sync.RWMutex
	chains map[string]*chainRecord

	recMu      sync.RWMutex
	conflicts  map[uuid.UUID]*temporal.Conflict
	operations map[uuid.UUID]*temporal.Operation
}

// NewMemoryStore creates an in-memory store serving both the endpoint and
// temporal interfaces
func NewMemoryStore() interface {
	EndpointStore
	TemporalStore
} {
	return &memoryStore{
		endpoints:  make(map[string]*endpointRecord),
		chains:     make(map[string]*chainRecord),
		conflicts:  make(map[uuid.UUID]*temporal.Conflict),
		operations: make(map[uuid.UUID]*temporal.Operation),
	}
}

func (m *memoryStore) CreateEndpoint(_ context.Context, id string) (*status.Endpoint, error) {
	m.epMu.Lock()
	defer m.epMu.Unlock()

	if _, exists := m.endpoints[id]; exists {
		return nil, ErrEndpointExists
	}
	rec := &endpointRecord{
		endpoint: status.Endpoint{
			ID:     id,
			Status: status.EndpointDisconnected,
		},
	}
	m.endpoints[id] = rec

	cp := rec.endpoint
	return &cp, nil
}

func (m *memoryStore) GetEndpoint(_ context.Context, id string) (*status.Endpoint, error) {
	rec, err := m.endpointRecord(id)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	cp := rec.endpoint
	return &cp, nil
}

func (m *memoryStore) ListEndpoints(_ context.Context) ([]*status.Endpoint, error) {
	m.epMu.RLock()
	records := make([]*endpointRecord, 0, len(m.endpoints))
	for _, rec := range m.endpoints {
		records = append(records, rec)
	}
	m.epMu.RUnlock()

	result := make([]*status.Endpoint, 0, len(records))
	for _, rec := range records {
		rec.mu.Lock()
		cp := rec.endpoint
		rec.mu.Unlock()
		result = append(result, &cp)
	}
	return result, nil
}

func (m *memoryStore) UpdateEndpoint(
	_ context.Context, id string, updateFn func(*status.Endpoint),
) (*status.Endpoint, error) {
	rec, err := m.endpointRecord(id)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	updateFn(&rec.endpoint)
	cp := rec.endpoint
	return &cp, nil
}

func (m *memoryStore) DeleteEndpoint(_ context.Context, id string) error {
	m.epMu.Lock()
	defer m.epMu.Unlock()

	if _, exists := m.endpoints[id]; !exists {
		return ErrEndpointNotFound
	}
	delete(m.endpoints, id)
	return nil
}

func (m *memoryStore) endpointRecord(id string) (*endpointRecord, error) {
	m.epMu.RLock()
	defer m.epMu.RUnlock()

	rec, exists := m.endpoints[id]
	if !exists {
		return nil, ErrEndpointNotFound
	}
	return rec, nil
}

func (m *memoryStore) CreateInstance(_ context.Context, id, endpointID string) (*temporal.SyncInstance, error) {
	m.chMu.Lock()
	defer m.chMu.Unlock()

	if _, exists := m.chains[id]; exists {
		return nil, ErrInstanceExists
	}
	rec := &chainRecord{
		instance: temporal.SyncInstance{
			ID:         id,
			EndpointID: endpointID,
		},
	}
	m.chains[id] = rec

	cp := rec.instance
	return &cp, nil
}

func (m *memoryStore) GetInstance(_ context.Context, id string) (*temporal.SyncInstance, error) {
	rec, err := m.chainRecord(id)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	cp := rec.instance
	return &cp, nil
}

func (m *memoryStore) ListInstances(_ context.Context) ([]*temporal.SyncInstance, error) {
	m.chMu.RLock()
	records := make([]*chainRecord, 0, len(m.chains))
	for _, rec := range m.chains {
		records = append(records, rec)
	}
	m.chMu.RUnlock()

	result := make([]*temporal.SyncInstance, 0, len(records))
	for _, rec := range records {
		rec.mu.Lock()
		cp := rec.instance
		rec.mu.Unlock()
		result = append(result, &cp)
	}
	return result, nil
}

func (m *memoryStore) RecordSyncResult(_ context.Context, instanceID string, syncedAt time.Time, conflict bool) error {
	rec, err := m.chainRecord(instanceID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.instance.SyncCount++
	if conflict {
		rec.instance.ConflictCount++
	}
	at := syncedAt
	rec.instance.LastSyncAt = &at
	return nil
}

func (m *memoryStore) LatestEntry(_ context.Context, instanceID string) (*temporal.StateEntry, error) {
	rec, err := m.chainRecord(instanceID)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.entries) == 0 {
		return nil, nil
	}
	cp := *rec.entries[len(rec.entries)-1]
	return &cp, nil
}

func (m *memoryStore) AppendEntry(_ context.Context, entry *temporal.StateEntry, expectedHead *string) error {
	rec, err := m.chainRecord(entry.InstanceID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	var head *string
	if len(rec.entries) > 0 {
		head = &rec.entries[len(rec.entries)-1].StateHash
	}
	if !hashesEqual(head, expectedHead) {
		return ErrChainHeadChanged
	}

	cp := *entry
	cp.UnresolvedConflictIDs = append([]uuid.UUID(nil), entry.UnresolvedConflictIDs...)
	rec.entries = append(rec.entries, &cp)
	return nil
}

func (m *memoryStore) ListEntries(_ context.Context, instanceID string, limit int) ([]*temporal.StateEntry, error) {
	rec, err := m.chainRecord(instanceID)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	n := len(rec.entries)
	if limit <= 0 || limit > n {
		limit = n
	}

	// Newest first
	result := make([]*temporal.StateEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		cp := *rec.entries[i]
		cp.UnresolvedConflictIDs = append([]uuid.UUID(nil), rec.entries[i].UnresolvedConflictIDs...)
		result = append(result, &cp)
	}
	return result, nil
}

func (m *memoryStore) chainRecord(id string) (*chainRecord, error) {
	m.chMu.RLock()
	defer m.chMu.RUnlock()

	rec, exists := m.chains[id]
	if !exists {
		return nil, ErrInstanceNotFound
	}
	return rec, nil
}

func (m *memoryStore) CreateConflict(_ context.Context, conflict *temporal.Conflict) error {
	m.recMu.Lock()
	defer m.recMu.Unlock()

	cp := *conflict
	m.conflicts[conflict.ID] = &cp
	return nil
}

func (m *memoryStore) ResolveConflict(
	_ context.Context, id uuid.UUID, resolution temporal.Resolution, resolvedAt time.Time,
) error {
	m.recMu.Lock()
	defer m.recMu.Unlock()

	conflict, exists := m.conflicts[id]
	if !exists {
		return ErrConflictNotFound
	}
	if conflict.Resolution != temporal.ResolutionUnresolved {
		return ErrConflictResolved
	}
	conflict.Resolution = resolution
	at := resolvedAt
	conflict.ResolvedAt = &at
	return nil
}

func (m *memoryStore) GetConflict(_ context.Context, id uuid.UUID) (*temporal.Conflict, error) {
	m.recMu.RLock()
	defer m.recMu.RUnlock()

	conflict, exists := m.conflicts[id]
	if !exists {
		return nil, ErrConflictNotFound
	}
	cp := *conflict
	return &cp, nil
}

func (m *memoryStore) CreateOperation(_ context.Context, op *temporal.Operation) error {
	m.recMu.Lock()
	defer m.recMu.Unlock()

	cp := *op
	m.operations[op.ID] = &cp
	return nil
}

func (m *memoryStore) CompleteOperation(_ context.Context, id uuid.UUID, opStatus temporal.OperationStatus) error {
	m.recMu.Lock()
	defer m.recMu.Unlock()

	op, exists := m.operations[id]
	if !exists {
		return ErrOperationNotFound
	}
	op.Status = opStatus
	return nil
}

func (m *memoryStore) GetOperation(_ context.Context, id uuid.UUID) (*temporal.Operation, error) {
	m.recMu.RLock()
	defer m.recMu.RUnlock()

	op, exists := m.operations[id]
	if !exists {
		return nil, ErrOperationNotFound
	}
	cp := *op
	return &cp, nil
}

func hashesEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
