package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticResolver(base string) Resolver {
	return func(_ string) (string, error) {
		return base, nil
	}
}

func TestHTTPTransportProbe(t *testing.T) {
	t.Parallel()

	var gotPath atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tr := NewHTTPTransport(staticResolver(server.URL), 0)

	err := tr.Probe(context.Background(), "ep-1")
	require.NoError(t, err)
	assert.Equal(t, "/health", gotPath.Load())
}

func TestHTTPTransportProbeUnhealthy(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	tr := NewHTTPTransport(staticResolver(server.URL), 0)

	err := tr.Probe(context.Background(), "ep-1")
	require.Error(t, err)

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "probe", terr.Op)
	assert.Equal(t, "EHTTPSTATUS", terr.ErrorCode())
	assert.Equal(t, http.StatusServiceUnavailable, terr.HTTPStatus())
}

func TestHTTPTransportPush(t *testing.T) {
	t.Parallel()

	type captured struct {
		path        string
		method      string
		contentType string
		body        string
	}
	got := make(chan captured, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- captured{
			path:        r.URL.Path,
			method:      r.Method,
			contentType: r.Header.Get("Content-Type"),
			body:        string(body),
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	tr := NewHTTPTransport(staticResolver(server.URL), 0)

	err := tr.Push(context.Background(), "inst-1", []byte(`{"orders":1}`))
	require.NoError(t, err)

	req := <-got
	assert.Equal(t, "/sync", req.path)
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "application/json", req.contentType)
	assert.JSONEq(t, `{"orders":1}`, req.body)
}

func TestHTTPTransportConnectionFailure(t *testing.T) {
	t.Parallel()

	// Reserve a port, then close it so the dial is refused
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := server.URL
	server.Close()

	tr := NewHTTPTransport(staticResolver(base), 0)

	err := tr.Push(context.Background(), "inst-1", []byte("{}"))
	require.Error(t, err)

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "ECONNFAILED", terr.ErrorCode())
	assert.NotNil(t, terr.Unwrap())
}

func TestHTTPTransportResolverFailure(t *testing.T) {
	t.Parallel()

	resolverErr := errors.New("unknown id")
	tr := NewHTTPTransport(func(string) (string, error) {
		return "", resolverErr
	}, 0)

	err := tr.Probe(context.Background(), "ep-1")
	require.Error(t, err)

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "EUNRESOLVED", terr.ErrorCode())
	assert.ErrorIs(t, err, resolverErr)
}
