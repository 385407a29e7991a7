package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/syncmesh/syncmesh-server/internal/events"
	"github.com/syncmesh/syncmesh-server/internal/retry"
	"github.com/syncmesh/syncmesh-server/internal/status"
	"github.com/syncmesh/syncmesh-server/internal/store"
	"github.com/syncmesh/syncmesh-server/internal/temporal"
	"github.com/syncmesh/syncmesh-server/internal/transport/mocks"
)

// fastPushPolicy avoids real backoff sleeps in tests
func fastPushPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:       2,
		InitialDelay:      time.Millisecond,
		MaxDelay:          10 * time.Millisecond,
		BackoffMultiplier: 2,
		RetryablePatterns: []string{"timeout"},
	}
}

type testDeps struct {
	store  store.TemporalStore
	pusher *mocks.MockPusher
	bus    *events.Bus
}

func newTestSynchronizer(t *testing.T, opts ...SynchronizerOption) (*Synchronizer, *testDeps) {
	t.Helper()

	ctrl := gomock.NewController(t)
	deps := &testDeps{
		store:  store.NewMemoryStore(),
		pusher: mocks.NewMockPusher(ctrl),
		bus:    events.NewBus(16),
	}
	t.Cleanup(deps.bus.Close)

	opts = append([]SynchronizerOption{WithPushPolicy(fastPushPolicy())}, opts...)
	return NewSynchronizer(deps.store, deps.pusher, deps.bus, opts...), deps
}

func registerPair(t *testing.T, s *Synchronizer) {
	t.Helper()
	ctx := context.Background()

	_, err := s.RegisterInstance(ctx, "src", "")
	require.NoError(t, err)
	_, err = s.RegisterInstance(ctx, "tgt", "ep-1")
	require.NoError(t, err)
}

// seedUnresolvedHead appends an entry that still awaits manual resolution
func seedUnresolvedHead(t *testing.T, ts store.TemporalStore, payload string) *temporal.StateEntry {
	t.Helper()

	entry := &temporal.StateEntry{
		ID:         uuid.New(),
		InstanceID: "tgt",
		Timestamp:  time.Now(),
		StateHash:  temporal.HashPayload([]byte(payload)),
		Resolved:   false,
	}
	require.NoError(t, ts.AppendEntry(context.Background(), entry, nil))
	return entry
}

func TestSynchronizeFirstEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, deps := newTestSynchronizer(t)
	registerPair(t, s)
	deps.pusher.EXPECT().Push(gomock.Any(), "tgt", []byte(`{"v":1}`)).Return(nil)

	op, err := s.Synchronize(ctx, "src", "tgt", "orders", []byte(`{"v":1}`))
	require.NoError(t, err)
	assert.Equal(t, temporal.OperationSynced, op.Status)
	assert.Equal(t, "src", op.SourceInstanceID)
	assert.Equal(t, "tgt", op.TargetInstanceID)

	entries, err := s.History(ctx, "tgt", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].PreviousStateHash)
	assert.Equal(t, temporal.HashPayload([]byte(`{"v":1}`)), entries[0].StateHash)
	assert.True(t, entries[0].Resolved)
	assert.Empty(t, entries[0].UnresolvedConflictIDs)

	inst, err := s.GetInstance(ctx, "tgt")
	require.NoError(t, err)
	assert.Equal(t, int64(1), inst.SyncCount)
	assert.Equal(t, int64(0), inst.ConflictCount)
	assert.NotNil(t, inst.LastSyncAt)
}

func TestSynchronizeExtendsChain(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, deps := newTestSynchronizer(t)
	registerPair(t, s)
	deps.pusher.EXPECT().Push(gomock.Any(), "tgt", gomock.Any()).Return(nil).Times(3)

	payloads := [][]byte{[]byte(`{"v":1}`), []byte(`{"v":2}`), []byte(`{"v":3}`)}
	for _, payload := range payloads {
		_, err := s.Synchronize(ctx, "src", "tgt", "orders", payload)
		require.NoError(t, err)
	}

	// History verifies full-chain linkage on unlimited reads
	entries, err := s.History(ctx, "tgt", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Newest first: each entry links to its predecessor
	assert.Equal(t, temporal.HashPayload(payloads[2]), entries[0].StateHash)
	require.NotNil(t, entries[0].PreviousStateHash)
	assert.Equal(t, entries[1].StateHash, *entries[0].PreviousStateHash)
	require.NotNil(t, entries[1].PreviousStateHash)
	assert.Equal(t, entries[2].StateHash, *entries[1].PreviousStateHash)
	assert.Nil(t, entries[2].PreviousStateHash)

	// Resolved heads never conflict
	inst, err := s.GetInstance(ctx, "tgt")
	require.NoError(t, err)
	assert.Equal(t, int64(3), inst.SyncCount)
	assert.Equal(t, int64(0), inst.ConflictCount)
}

func TestConflictAgainstUnresolvedHead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, deps := newTestSynchronizer(t)
	registerPair(t, s)
	head := seedUnresolvedHead(t, deps.store, `{"v":1}`)
	deps.pusher.EXPECT().Push(gomock.Any(), "tgt", []byte(`{"v":2}`)).Return(nil)

	ch, cancel := deps.bus.Subscribe()
	defer cancel()

	op, err := s.Synchronize(ctx, "src", "tgt", "orders", []byte(`{"v":2}`))
	require.NoError(t, err)
	// source_wins is automatic, so the operation is synced, not conflicted
	assert.Equal(t, temporal.OperationSynced, op.Status)

	inst, err := s.GetInstance(ctx, "tgt")
	require.NoError(t, err)
	assert.Equal(t, int64(1), inst.ConflictCount)

	// The superseding entry is resolved and links to the unresolved head
	entries, err := s.History(ctx, "tgt", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Resolved)
	require.NotNil(t, entries[0].PreviousStateHash)
	assert.Equal(t, head.StateHash, *entries[0].PreviousStateHash)

	// A conflict event precedes the completion event
	select {
	case evt := <-ch:
		assert.Equal(t, events.TypeSyncConflict, evt.Type)
		assert.Equal(t, string(temporal.ResolutionSourceWins), evt.Detail)
	case <-time.After(time.Second):
		t.Fatal("no conflict event published")
	}
}

func TestIdenticalPayloadNoConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, deps := newTestSynchronizer(t)
	registerPair(t, s)
	seedUnresolvedHead(t, deps.store, `{"v":1}`)
	deps.pusher.EXPECT().Push(gomock.Any(), "tgt", []byte(`{"v":1}`)).Return(nil)

	op, err := s.Synchronize(ctx, "src", "tgt", "orders", []byte(`{"v":1}`))
	require.NoError(t, err)
	assert.Equal(t, temporal.OperationSynced, op.Status)

	inst, err := s.GetInstance(ctx, "tgt")
	require.NoError(t, err)
	assert.Equal(t, int64(0), inst.ConflictCount)
}

func TestTargetWinsRejectsIncoming(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, deps := newTestSynchronizer(t, WithResolver(temporal.ConflictTypeValue, TargetWins()))
	registerPair(t, s)
	head := seedUnresolvedHead(t, deps.store, `{"v":1}`)
	// No push expectation: a rejected write must not reach the transport

	op, err := s.Synchronize(ctx, "src", "tgt", "orders", []byte(`{"v":2}`))
	require.NoError(t, err)
	assert.Equal(t, temporal.OperationSynced, op.Status)

	// The existing head stands; nothing was appended
	entries, err := s.History(ctx, "tgt", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, head.StateHash, entries[0].StateHash)

	inst, err := s.GetInstance(ctx, "tgt")
	require.NoError(t, err)
	assert.Equal(t, int64(1), inst.ConflictCount)
}

func TestManualResolutionLeavesEntryUnresolved(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, deps := newTestSynchronizer(t, WithResolver(temporal.ConflictTypeValue, Manual()))
	registerPair(t, s)
	seedUnresolvedHead(t, deps.store, `{"v":1}`)
	deps.pusher.EXPECT().Push(gomock.Any(), "tgt", []byte(`{"v":2}`)).Return(nil)

	op, err := s.Synchronize(ctx, "src", "tgt", "orders", []byte(`{"v":2}`))
	require.NoError(t, err)
	assert.Equal(t, temporal.OperationConflict, op.Status)

	entries, err := s.History(ctx, "tgt", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Resolved)
	require.Len(t, entries[0].UnresolvedConflictIDs, 1)

	// The conflict record carries the manual resolution, set exactly once
	conflict, err := deps.store.GetConflict(ctx, entries[0].UnresolvedConflictIDs[0])
	require.NoError(t, err)
	assert.Equal(t, temporal.ResolutionManual, conflict.Resolution)
	assert.NotNil(t, conflict.ResolvedAt)
}

func TestSynchronizeUnknownInstances(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, _ := newTestSynchronizer(t)
	_, err := s.RegisterInstance(ctx, "src", "")
	require.NoError(t, err)

	_, err = s.Synchronize(ctx, "missing", "src", "orders", []byte(`{}`))
	assert.ErrorIs(t, err, store.ErrInstanceNotFound)

	_, err = s.Synchronize(ctx, "src", "missing", "orders", []byte(`{}`))
	assert.ErrorIs(t, err, store.ErrInstanceNotFound)
}

// stubHealth reports a fixed status for every endpoint
type stubHealth struct {
	status status.EndpointStatus
}

func (h *stubHealth) EndpointStatus(_ context.Context, id string) (*status.Endpoint, error) {
	return &status.Endpoint{ID: id, Status: h.status}, nil
}

func TestEndpointHealthGate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("error endpoint blocks sync", func(t *testing.T) {
		t.Parallel()

		s, _ := newTestSynchronizer(t, WithEndpointHealth(&stubHealth{status: status.EndpointError}))
		registerPair(t, s)

		_, err := s.Synchronize(ctx, "src", "tgt", "orders", []byte(`{}`))
		assert.ErrorIs(t, err, ErrEndpointUnavailable)
	})

	t.Run("connected endpoint allows sync", func(t *testing.T) {
		t.Parallel()

		s, deps := newTestSynchronizer(t, WithEndpointHealth(&stubHealth{status: status.EndpointConnected}))
		registerPair(t, s)
		deps.pusher.EXPECT().Push(gomock.Any(), "tgt", gomock.Any()).Return(nil)

		_, err := s.Synchronize(ctx, "src", "tgt", "orders", []byte(`{}`))
		assert.NoError(t, err)
	})
}

func TestPushFailureAbortsSync(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, deps := newTestSynchronizer(t)
	registerPair(t, s)
	deps.pusher.EXPECT().Push(gomock.Any(), "tgt", gomock.Any()).
		Return(errors.New("forbidden")).Times(1)

	op, err := s.Synchronize(ctx, "src", "tgt", "orders", []byte(`{"v":1}`))
	require.Error(t, err)
	assert.Nil(t, op)

	// Nothing was appended on the failed push
	entries, err := s.History(ctx, "tgt", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPushRetriesTransientFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, deps := newTestSynchronizer(t)
	registerPair(t, s)
	gomock.InOrder(
		deps.pusher.EXPECT().Push(gomock.Any(), "tgt", gomock.Any()).Return(errors.New("i/o timeout")),
		deps.pusher.EXPECT().Push(gomock.Any(), "tgt", gomock.Any()).Return(nil),
	)

	op, err := s.Synchronize(ctx, "src", "tgt", "orders", []byte(`{"v":1}`))
	require.NoError(t, err)
	assert.Equal(t, temporal.OperationSynced, op.Status)
}

func TestConcurrentSynchronizeSerializes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, deps := newTestSynchronizer(t)
	registerPair(t, s)
	deps.pusher.EXPECT().Push(gomock.Any(), "tgt", gomock.Any()).Return(nil).Times(2)

	results := make(chan error, 2)
	for _, payload := range []string{`{"v":1}`, `{"v":2}`} {
		go func(p string) {
			_, err := s.Synchronize(ctx, "src", "tgt", "orders", []byte(p))
			results <- err
		}(payload)
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, <-results)
	}

	// Both appends landed and the chain is intact
	entries, err := s.History(ctx, "tgt", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.NotNil(t, entries[0].PreviousStateHash)
	assert.Equal(t, entries[1].StateHash, *entries[0].PreviousStateHash)

	inst, err := s.GetInstance(ctx, "tgt")
	require.NoError(t, err)
	assert.Equal(t, int64(2), inst.SyncCount)
}

func TestHistoryLimitedWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, deps := newTestSynchronizer(t)
	registerPair(t, s)
	deps.pusher.EXPECT().Push(gomock.Any(), "tgt", gomock.Any()).Return(nil).Times(3)

	for _, payload := range []string{`{"v":1}`, `{"v":2}`, `{"v":3}`} {
		_, err := s.Synchronize(ctx, "src", "tgt", "orders", []byte(payload))
		require.NoError(t, err)
	}

	entries, err := s.History(ctx, "tgt", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, temporal.HashPayload([]byte(`{"v":3}`)), entries[0].StateHash)
	assert.Equal(t, temporal.HashPayload([]byte(`{"v":2}`)), entries[1].StateHash)
}

func TestRegisterInstanceValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, _ := newTestSynchronizer(t)

	_, err := s.RegisterInstance(ctx, "", "")
	assert.Error(t, err)

	_, err = s.RegisterInstance(ctx, "inst-1", "")
	require.NoError(t, err)
	_, err = s.RegisterInstance(ctx, "inst-1", "")
	assert.ErrorIs(t, err, store.ErrInstanceExists)
}
