package v1_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/syncmesh/syncmesh-server/internal/api"
	v1 "github.com/syncmesh/syncmesh-server/internal/api/v1"
	"github.com/syncmesh/syncmesh-server/internal/events"
	"github.com/syncmesh/syncmesh-server/internal/retry"
	"github.com/syncmesh/syncmesh-server/internal/status"
	"github.com/syncmesh/syncmesh-server/internal/store"
	"github.com/syncmesh/syncmesh-server/internal/supervisor"
	syncpkg "github.com/syncmesh/syncmesh-server/internal/sync"
	"github.com/syncmesh/syncmesh-server/internal/temporal"
	"github.com/syncmesh/syncmesh-server/internal/transport/mocks"
)

// newTestServer wires the full API stack over in-memory storage with mocked
// transports
func newTestServer(t *testing.T) (*httptest.Server, *mocks.MockPusher) {
	t.Helper()

	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)
	prober.EXPECT().Probe(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	pusher := mocks.NewMockPusher(ctrl)

	mem := store.NewMemoryStore()
	bus := events.NewBus(0)
	t.Cleanup(bus.Close)

	policy := retry.Policy{
		MaxAttempts:       1,
		InitialDelay:      time.Millisecond,
		MaxDelay:          10 * time.Millisecond,
		BackoffMultiplier: 2,
	}
	sup := supervisor.New(mem, prober, bus, supervisor.Config{
		SweepInterval: time.Hour,
		BaseDelay:     time.Hour,
		CapDelay:      2 * time.Hour,
		ProbePolicy:   policy,
	})
	syncer := syncpkg.NewSynchronizer(mem, pusher, bus,
		syncpkg.WithEndpointHealth(sup),
		syncpkg.WithPushPolicy(policy))

	router := api.NewServer(sup, syncer)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, pusher
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthRoute(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEndpointRoutes(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	base := server.URL + "/api/v1/endpoints"

	// Register
	resp := doJSON(t, http.MethodPost, base, v1.RegisterEndpointRequest{ID: "ep-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ep := decode[status.Endpoint](t, resp)
	assert.Equal(t, "ep-1", ep.ID)
	assert.Equal(t, status.EndpointDisconnected, ep.Status)

	// Duplicate registration conflicts
	resp = doJSON(t, http.MethodPost, base, v1.RegisterEndpointRequest{ID: "ep-1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Missing id is a bad request
	resp = doJSON(t, http.MethodPost, base, v1.RegisterEndpointRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Get
	resp = doJSON(t, http.MethodGet, base+"/ep-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, base+"/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// List
	resp = doJSON(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]status.Endpoint](t, resp)
	assert.Len(t, list, 1)

	// Delete
	resp = doJSON(t, http.MethodDelete, base+"/ep-1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = doJSON(t, http.MethodDelete, base+"/ep-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReportFailureRoute(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	base := server.URL + "/api/v1/endpoints"

	resp := doJSON(t, http.MethodPost, base, v1.RegisterEndpointRequest{ID: "ep-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, base+"/ep-1/failure",
		v1.ReportFailureRequest{Kind: "application", Reason: "upstream 500"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, base+"/ep-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ep := decode[status.Endpoint](t, resp)
	assert.Equal(t, status.EndpointError, ep.Status)
	assert.Equal(t, "upstream 500", ep.LastError)

	// Unknown failure kind
	resp = doJSON(t, http.MethodPost, base+"/ep-1/failure", v1.ReportFailureRequest{Kind: "cosmic"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown endpoint
	resp = doJSON(t, http.MethodPost, base+"/missing/failure", v1.ReportFailureRequest{Kind: "network"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInstanceAndSyncRoutes(t *testing.T) {
	t.Parallel()

	server, pusher := newTestServer(t)
	pusher.EXPECT().Push(gomock.Any(), "tgt", gomock.Any()).Return(nil).Times(2)

	instances := server.URL + "/api/v1/instances"

	for _, id := range []string{"src", "tgt"} {
		resp := doJSON(t, http.MethodPost, instances, v1.RegisterInstanceRequest{ID: id})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	// Duplicate instance conflicts
	resp := doJSON(t, http.MethodPost, instances, v1.RegisterInstanceRequest{ID: "src"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Synchronize twice to build a chain
	for _, payload := range []string{`{"v":1}`, `{"v":2}`} {
		resp = doJSON(t, http.MethodPost, server.URL+"/api/v1/sync", v1.SynchronizeRequest{
			SourceInstanceID: "src",
			TargetInstanceID: "tgt",
			SyncType:         "orders",
			Payload:          json.RawMessage(payload),
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		op := decode[temporal.Operation](t, resp)
		assert.Equal(t, temporal.OperationSynced, op.Status)
	}

	// Instance counters reflect both syncs
	resp = doJSON(t, http.MethodGet, instances+"/tgt", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	inst := decode[temporal.SyncInstance](t, resp)
	assert.Equal(t, int64(2), inst.SyncCount)

	// History is newest first and linked
	resp = doJSON(t, http.MethodGet, instances+"/tgt/history?limit=10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decode[v1.HistoryResponse](t, resp)
	require.Len(t, history.Entries, 2)
	assert.Equal(t, temporal.HashPayload([]byte(`{"v":2}`)), history.Entries[0].StateHash)
	require.NotNil(t, history.Entries[0].PreviousStateHash)
	assert.Equal(t, history.Entries[1].StateHash, *history.Entries[0].PreviousStateHash)

	// Invalid limit
	resp = doJSON(t, http.MethodGet, instances+"/tgt/history?limit=nan", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown instance
	resp = doJSON(t, http.MethodGet, instances+"/missing/history", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSyncRouteErrorMapping(t *testing.T) {
	t.Parallel()

	server, pusher := newTestServer(t)
	instances := server.URL + "/api/v1/instances"
	endpoints := server.URL + "/api/v1/endpoints"
	syncURL := server.URL + "/api/v1/sync"

	resp := doJSON(t, http.MethodPost, endpoints, v1.RegisterEndpointRequest{ID: "ep-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	for _, req := range []v1.RegisterInstanceRequest{
		{ID: "src"},
		{ID: "tgt", Endpoint: "ep-1"},
	} {
		resp = doJSON(t, http.MethodPost, instances, req)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	// Missing ids
	resp = doJSON(t, http.MethodPost, syncURL, v1.SynchronizeRequest{SourceInstanceID: "src"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown target
	resp = doJSON(t, http.MethodPost, syncURL, v1.SynchronizeRequest{
		SourceInstanceID: "src", TargetInstanceID: "missing",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Endpoint in error state blocks the sync
	resp = doJSON(t, http.MethodPost, endpoints+"/ep-1/failure",
		v1.ReportFailureRequest{Kind: "application", Reason: "upstream 500"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, syncURL, v1.SynchronizeRequest{
		SourceInstanceID: "src", TargetInstanceID: "tgt", Payload: json.RawMessage(`{}`),
	})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// Transport failure surfaces as a bad gateway
	resp = doJSON(t, http.MethodPost, endpoints+"/ep-1/failure",
		v1.ReportFailureRequest{Kind: "network", Reason: "gone"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	pusher.EXPECT().Push(gomock.Any(), "tgt", gomock.Any()).Return(fmt.Errorf("push rejected"))
	resp = doJSON(t, http.MethodPost, syncURL, v1.SynchronizeRequest{
		SourceInstanceID: "src", TargetInstanceID: "tgt", Payload: json.RawMessage(`{}`),
	})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	errResp := decode[v1.ErrorResponse](t, resp)
	assert.NotEmpty(t, errResp.Error)
}
