package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds a single HTTP attempt. Retries handle failed
	// attempts; this bounds the duration of each one.
	DefaultTimeout = 10 * time.Second

	// maxResponseSize caps how much of a response body is drained (1MB)
	maxResponseSize = 1 * 1024 * 1024

	// userAgent is the user agent string for outbound requests
	userAgent = "syncmesh-server/1.0"
)

// Resolver maps an endpoint or instance id to its base URL
type Resolver func(id string) (string, error)

// HTTPTransport implements Prober and Pusher over plain HTTP. Probes issue
// GET {base}/health; pushes issue POST {base}/sync with a JSON body.
type HTTPTransport struct {
	client  *http.Client
	resolve Resolver
}

// NewHTTPTransport creates an HTTP transport with the given base-URL
// resolver. If timeout is 0, DefaultTimeout is used.
func NewHTTPTransport(resolve Resolver, timeout time.Duration) *HTTPTransport {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &HTTPTransport{
		client:  &http.Client{Timeout: timeout},
		resolve: resolve,
	}
}

// Probe issues a lightweight GET against the endpoint's health path
func (t *HTTPTransport) Probe(ctx context.Context, endpointID string) error {
	base, err := t.resolve(endpointID)
	if err != nil {
		return &Error{
			Op:      "probe",
			Target:  endpointID,
			Code:    "EUNRESOLVED",
			Message: "failed to resolve endpoint",
			Err:     err,
		}
	}
	return t.do(ctx, "probe", endpointID, http.MethodGet, base+"/health", nil)
}

// Push delivers the payload to the target instance's sync path
func (t *HTTPTransport) Push(ctx context.Context, targetInstanceID string, payload []byte) error {
	base, err := t.resolve(targetInstanceID)
	if err != nil {
		return &Error{
			Op:      "push",
			Target:  targetInstanceID,
			Code:    "EUNRESOLVED",
			Message: "failed to resolve instance",
			Err:     err,
		}
	}
	return t.do(ctx, "push", targetInstanceID, http.MethodPost, base+"/sync", payload)
}

func (t *HTTPTransport) do(ctx context.Context, op, target, method, url string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return &Error{Op: op, Target: target, Code: "EREQUEST", Message: "failed to create request", Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return &Error{Op: op, Target: target, Code: "ECONNFAILED", Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	// Drain a bounded amount so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{
			Op:         op,
			Target:     target,
			Code:       "EHTTPSTATUS",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}
	return nil
}
