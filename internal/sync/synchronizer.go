// Package sync implements the temporal synchronization protocol: pushing a
// payload toward a remote instance while maintaining a hash-chained state
// log and detecting divergence caused by concurrent or out-of-order writes.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/syncmesh/syncmesh-server/internal/events"
	"github.com/syncmesh/syncmesh-server/internal/retry"
	"github.com/syncmesh/syncmesh-server/internal/status"
	"github.com/syncmesh/syncmesh-server/internal/store"
	"github.com/syncmesh/syncmesh-server/internal/telemetry"
	"github.com/syncmesh/syncmesh-server/internal/temporal"
	"github.com/syncmesh/syncmesh-server/internal/transport"
)

// maxHeadRetries bounds how often a synchronize call restarts after losing
// a compare-and-append race to a concurrent writer
const maxHeadRetries = 3

var (
	// ErrEndpointUnavailable is returned when the target instance's
	// endpoint is known to be in the error state
	ErrEndpointUnavailable = errors.New("target endpoint unavailable")

	// ErrNoResolver is returned when a conflict type has no registered
	// resolution strategy
	ErrNoResolver = errors.New("no resolver registered for conflict type")
)

// EndpointHealth is the read-only status query the synchronizer uses to
// avoid pushing toward a known-down endpoint. The supervisor satisfies it.
type EndpointHealth interface {
	EndpointStatus(ctx context.Context, id string) (*status.Endpoint, error)
}

// Synchronizer coordinates sync operations toward remote instances. It
// exclusively owns the temporal chain and conflict records; endpoint state
// is consulted read-only.
type Synchronizer struct {
	store      store.TemporalStore
	pusher     transport.Pusher
	health     EndpointHealth
	bus        *events.Bus
	metrics    *telemetry.SyncMetrics
	pushPolicy retry.Policy
	resolvers  map[temporal.ConflictType]Resolver

	// Per-target-instance locks serialize the read-latest/append-new
	// sequence within this process; the store's compare-and-append guards
	// against writers in other processes.
	mu    gosync.Mutex
	locks map[string]*gosync.Mutex
}

// SynchronizerOption is a function that configures the synchronizer
type SynchronizerOption func(*Synchronizer)

// WithSyncMetrics sets the sync metrics
func WithSyncMetrics(metrics *telemetry.SyncMetrics) SynchronizerOption {
	return func(s *Synchronizer) {
		s.metrics = metrics
	}
}

// WithEndpointHealth sets the endpoint health query used to gate syncs
func WithEndpointHealth(health EndpointHealth) SynchronizerOption {
	return func(s *Synchronizer) {
		s.health = health
	}
}

// WithPushPolicy sets the retry policy for the transport push
func WithPushPolicy(policy retry.Policy) SynchronizerOption {
	return func(s *Synchronizer) {
		s.pushPolicy = policy
	}
}

// WithResolver registers a resolution strategy for a conflict type,
// replacing the default
func WithResolver(conflictType temporal.ConflictType, resolver Resolver) SynchronizerOption {
	return func(s *Synchronizer) {
		s.resolvers[conflictType] = resolver
	}
}

// NewSynchronizer creates a synchronizer with injected dependencies. The
// default resolution strategy for value conflicts is deterministic
// source-wins.
func NewSynchronizer(
	temporalStore store.TemporalStore,
	pusher transport.Pusher,
	bus *events.Bus,
	opts ...SynchronizerOption,
) *Synchronizer {
	s := &Synchronizer{
		store:      temporalStore,
		pusher:     pusher,
		bus:        bus,
		pushPolicy: retry.DefaultPolicy(),
		resolvers: map[temporal.ConflictType]Resolver{
			temporal.ConflictTypeValue: SourceWins(),
		},
		locks: make(map[string]*gosync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterInstance creates a sync instance
func (s *Synchronizer) RegisterInstance(ctx context.Context, id, endpointID string) (*temporal.SyncInstance, error) {
	if id == "" {
		return nil, fmt.Errorf("instance id is required")
	}
	instance, err := s.store.CreateInstance(ctx, id, endpointID)
	if err != nil {
		return nil, err
	}
	slog.Info("registered sync instance", "instance", id, "endpoint", endpointID)
	return instance, nil
}

// GetInstance returns the named sync instance
func (s *Synchronizer) GetInstance(ctx context.Context, id string) (*temporal.SyncInstance, error) {
	return s.store.GetInstance(ctx, id)
}

// History returns up to limit temporal chain entries for an instance,
// newest first, after verifying adjacent hash linkage.
func (s *Synchronizer) History(ctx context.Context, id string, limit int) ([]*temporal.StateEntry, error) {
	entries, err := s.store.ListEntries(ctx, id, limit)
	if err != nil {
		return nil, err
	}

	// Entries arrive newest first; verify linkage oldest first
	chronological := make([]*temporal.StateEntry, len(entries))
	for i, entry := range entries {
		chronological[len(entries)-1-i] = entry
	}
	// A limited window doesn't include the chain's first entry, so only
	// full reads can check the nil-predecessor rule
	if limit <= 0 {
		if err := temporal.VerifyChain(chronological); err != nil {
			return nil, fmt.Errorf("temporal chain integrity violation: %w", err)
		}
	} else if err := verifyAdjacency(chronological); err != nil {
		return nil, fmt.Errorf("temporal chain integrity violation: %w", err)
	}
	return entries, nil
}

// verifyAdjacency checks hash linkage between consecutive entries without
// requiring the window to start at the chain's first entry
func verifyAdjacency(entries []*temporal.StateEntry) error {
	for i := 1; i < len(entries); i++ {
		prev, entry := entries[i-1], entries[i]
		if entry.PreviousStateHash == nil || *entry.PreviousStateHash != prev.StateHash {
			return fmt.Errorf("entry %s does not link to predecessor %s", entry.ID, prev.ID)
		}
	}
	return nil
}

// GetOperation returns the named sync operation
func (s *Synchronizer) GetOperation(ctx context.Context, id uuid.UUID) (*temporal.Operation, error) {
	return s.store.GetOperation(ctx, id)
}

// Synchronize pushes a payload from the source instance toward the target
// instance, extending the target's temporal chain and detecting divergence
// against its unresolved head. Calls for the same target are serialized;
// calls for different targets proceed in parallel.
func (s *Synchronizer) Synchronize(
	ctx context.Context,
	sourceInstanceID, targetInstanceID, syncType string,
	payload []byte,
) (*temporal.Operation, error) {
	if _, err := s.store.GetInstance(ctx, sourceInstanceID); err != nil {
		return nil, fmt.Errorf("source instance: %w", err)
	}
	target, err := s.store.GetInstance(ctx, targetInstanceID)
	if err != nil {
		return nil, fmt.Errorf("target instance: %w", err)
	}

	if err := s.checkEndpointHealth(ctx, target); err != nil {
		return nil, err
	}

	lock := s.instanceLock(targetInstanceID)
	lock.Lock()
	defer lock.Unlock()

	startTime := time.Now()
	op := &temporal.Operation{
		ID:               uuid.New(),
		SourceInstanceID: sourceInstanceID,
		TargetInstanceID: targetInstanceID,
		SyncType:         syncType,
		Payload:          payload,
		Timestamp:        startTime,
		Status:           temporal.OperationSyncing,
	}
	if err := s.store.CreateOperation(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to record operation: %w", err)
	}

	var conflict *temporal.Conflict
	var outcome Outcome
	pushed := false
	for headAttempt := 0; ; headAttempt++ {
		conflict, outcome, err = s.attemptSync(ctx, op, payload, &pushed)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrChainHeadChanged) && headAttempt < maxHeadRetries {
			slog.Debug("chain head changed during sync, retrying",
				"target", targetInstanceID,
				"attempt", headAttempt+1)
			continue
		}
		s.metrics.RecordSyncDuration(ctx, targetInstanceID, time.Since(startTime), false)
		return nil, err
	}

	op.Status = temporal.OperationSynced
	if outcome.Resolution == temporal.ResolutionManual {
		op.Status = temporal.OperationConflict
	}
	if err := s.store.CompleteOperation(ctx, op.ID, op.Status); err != nil {
		return nil, fmt.Errorf("failed to complete operation: %w", err)
	}

	now := time.Now()
	if err := s.store.RecordSyncResult(ctx, targetInstanceID, now, conflict != nil); err != nil {
		return nil, fmt.Errorf("failed to update instance counters: %w", err)
	}

	s.metrics.RecordSyncDuration(ctx, targetInstanceID, time.Since(startTime), true)
	s.publishOutcome(op, conflict, outcome)

	slog.Info("sync completed",
		"source", sourceInstanceID,
		"target", targetInstanceID,
		"sync_type", syncType,
		"status", op.Status,
		"conflict", conflict != nil)
	return op, nil
}

// attemptSync runs one read-latest through append-new cycle. It returns
// store.ErrChainHeadChanged when a concurrent writer won the append race,
// in which case the caller restarts from the latest-entry read. Side
// effects happen at most once per operation: the payload is pushed on the
// first cycle that needs it, and the conflict record is persisted only by
// the cycle that wins the append race.
func (s *Synchronizer) attemptSync(
	ctx context.Context, op *temporal.Operation, payload []byte, pushed *bool,
) (*temporal.Conflict, Outcome, error) {
	targetID := op.TargetInstanceID

	latest, err := s.store.LatestEntry(ctx, targetID)
	if err != nil {
		return nil, Outcome{}, fmt.Errorf("failed to read chain head: %w", err)
	}

	incomingHash := temporal.HashPayload(payload)

	var conflict *temporal.Conflict
	outcome := Outcome{AcceptIncoming: true}
	if latest != nil && !latest.Resolved && latest.StateHash != incomingHash {
		conflict, outcome, err = s.evaluateConflict(ctx, op, targetID, incomingHash, latest.StateHash)
		if err != nil {
			return nil, Outcome{}, err
		}
	}

	if !outcome.AcceptIncoming {
		// The existing state stands; nothing is pushed or appended
		if err := s.recordConflict(ctx, op, conflict, outcome); err != nil {
			return nil, Outcome{}, err
		}
		return conflict, outcome, nil
	}

	if !*pushed {
		if _, err := retry.Do(ctx, s.pushPolicy, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.pusher.Push(ctx, targetID, payload)
		}); err != nil {
			return nil, Outcome{}, fmt.Errorf("push to %s failed: %w", targetID, err)
		}
		*pushed = true
	}

	entry := &temporal.StateEntry{
		ID:         uuid.New(),
		InstanceID: targetID,
		Timestamp:  time.Now(),
		StateHash:  incomingHash,
		Resolved:   outcome.Resolution != temporal.ResolutionManual,
	}
	var expectedHead *string
	if latest != nil {
		head := latest.StateHash
		entry.PreviousStateHash = &head
		expectedHead = &head
	}
	if conflict != nil && outcome.Resolution == temporal.ResolutionManual {
		entry.UnresolvedConflictIDs = []uuid.UUID{conflict.ID}
	}

	if err := s.store.AppendEntry(ctx, entry, expectedHead); err != nil {
		return nil, Outcome{}, err
	}
	if conflict != nil {
		if err := s.recordConflict(ctx, op, conflict, outcome); err != nil {
			return nil, Outcome{}, err
		}
	}
	return conflict, outcome, nil
}

// evaluateConflict builds a value conflict between the incoming hash and
// the unresolved chain head and runs the registered strategy. Nothing is
// persisted: a cycle that loses the append race discards its conflict and
// re-evaluates against the new head.
func (s *Synchronizer) evaluateConflict(
	ctx context.Context, op *temporal.Operation, targetID, sourceHash, targetHash string,
) (*temporal.Conflict, Outcome, error) {
	conflict := &temporal.Conflict{
		ID:          uuid.New(),
		OperationID: op.ID,
		InstanceID:  targetID,
		Type:        temporal.ConflictTypeValue,
		SourceHash:  sourceHash,
		TargetHash:  targetHash,
		DetectedAt:  time.Now(),
	}

	resolver, ok := s.resolvers[conflict.Type]
	if !ok {
		return nil, Outcome{}, fmt.Errorf("%w: %s", ErrNoResolver, conflict.Type)
	}
	outcome, err := resolver.Resolve(ctx, conflict)
	if err != nil {
		return nil, Outcome{}, fmt.Errorf("conflict resolution failed: %w", err)
	}
	return conflict, outcome, nil
}

// recordConflict persists the conflict and its resolution. The resolution
// is recorded on the conflict exactly once.
func (s *Synchronizer) recordConflict(
	ctx context.Context, op *temporal.Operation, conflict *temporal.Conflict, outcome Outcome,
) error {
	if err := s.store.CreateConflict(ctx, conflict); err != nil {
		return fmt.Errorf("failed to record conflict: %w", err)
	}

	resolvedAt := time.Now()
	if err := s.store.ResolveConflict(ctx, conflict.ID, outcome.Resolution, resolvedAt); err != nil {
		return fmt.Errorf("failed to record resolution: %w", err)
	}
	conflict.Resolution = outcome.Resolution
	conflict.ResolvedAt = &resolvedAt

	s.metrics.RecordConflict(ctx, conflict.InstanceID, string(outcome.Resolution))
	slog.Warn("sync conflict detected",
		"target", conflict.InstanceID,
		"operation", op.ID,
		"resolution", outcome.Resolution)
	return nil
}

// checkEndpointHealth refuses to sync toward an endpoint the supervisor
// currently reports as being in the error state
func (s *Synchronizer) checkEndpointHealth(ctx context.Context, target *temporal.SyncInstance) error {
	if s.health == nil || target.EndpointID == "" {
		return nil
	}
	endpoint, err := s.health.EndpointStatus(ctx, target.EndpointID)
	if err != nil {
		// An unknown endpoint doesn't block the sync; the transport will
		// surface real reachability problems
		return nil
	}
	if endpoint.Status == status.EndpointError {
		return fmt.Errorf("%w: endpoint %s is in error state", ErrEndpointUnavailable, endpoint.ID)
	}
	return nil
}

func (s *Synchronizer) instanceLock(id string) *gosync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[id]
	if !ok {
		lock = &gosync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

func (s *Synchronizer) publishOutcome(op *temporal.Operation, conflict *temporal.Conflict, outcome Outcome) {
	if s.bus == nil {
		return
	}
	if conflict != nil {
		s.bus.Publish(events.Event{
			Type:        events.TypeSyncConflict,
			InstanceID:  op.TargetInstanceID,
			OperationID: op.ID.String(),
			Status:      string(op.Status),
			Detail:      string(outcome.Resolution),
		})
	}
	s.bus.Publish(events.Event{
		Type:        events.TypeSyncCompleted,
		InstanceID:  op.TargetInstanceID,
		OperationID: op.ID.String(),
		Status:      string(op.Status),
	})
}
