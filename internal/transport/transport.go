// Package transport defines the narrow contracts through which the core
// reaches remote peers. Integration-specific clients supply implementations;
// the core treats them as opaque success-or-failure calls.
package transport

import (
	"context"
	"fmt"
)

// Prober checks whether an endpoint is reachable and healthy
//
//go:generate mockgen -destination=mocks/mock_transport.go -package=mocks github.com/syncmesh/syncmesh-server/internal/transport Prober,Pusher
type Prober interface {
	// Probe issues a lightweight read-only health request against the
	// endpoint. A nil return means the endpoint is healthy.
	Probe(ctx context.Context, endpointID string) error
}

// Pusher delivers a sync payload to a remote instance
type Pusher interface {
	// Push sends the payload to the target instance
	Push(ctx context.Context, targetInstanceID string, payload []byte) error
}

// Error is a failure reported by a transport implementation. Code and
// StatusCode feed the retry executor's pattern classification.
type Error struct {
	// Op is the transport operation that failed ("probe" or "push")
	Op string

	// Target is the endpoint or instance the operation addressed
	Target string

	// Code is a short machine-readable failure code (e.g. "ETIMEDOUT")
	Code string

	// StatusCode is the HTTP status code, if the failure was an HTTP response
	StatusCode int

	// Message describes the failure
	Message string

	// Err is the underlying error, if any
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport %s %s: %s: %v", e.Op, e.Target, e.Message, e.Err)
	}
	return fmt.Sprintf("transport %s %s: %s", e.Op, e.Target, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode returns the machine-readable failure code
func (e *Error) ErrorCode() string {
	return e.Code
}

// HTTPStatus returns the HTTP status code, or 0 when not applicable
func (e *Error) HTTPStatus() int {
	return e.StatusCode
}
