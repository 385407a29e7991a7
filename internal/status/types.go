// Package status defines the connectivity state types shared between the
// reconnection supervisor and its observers.
package status

import "time"

// EndpointStatus represents the connectivity state of an endpoint
type EndpointStatus string

const (
	// EndpointConnected means the last probe against the endpoint succeeded
	EndpointConnected EndpointStatus = "connected"

	// EndpointDisconnected means the endpoint is unreachable at the
	// transport layer and reconnection attempts are being scheduled
	EndpointDisconnected EndpointStatus = "disconnected"

	// EndpointError means the endpoint responded with an application-level
	// error; only lightweight health checks are issued against it
	EndpointError EndpointStatus = "error"
)

// FailureKind classifies an endpoint failure reported by a caller
type FailureKind string

const (
	// FailureNetwork indicates a transport-layer absence (no response at all)
	FailureNetwork FailureKind = "network"

	// FailureApplication indicates an error response from the peer
	FailureApplication FailureKind = "application"
)

// Endpoint represents one externally reachable integration tracked by the
// supervisor. Mutation is owned exclusively by the supervisor.
type Endpoint struct {
	// ID is the unique identifier for this endpoint
	ID string `json:"id"`

	// Status is the current connectivity state
	Status EndpointStatus `json:"status"`

	// LastCheckedAt is the timestamp of the last probe or health check
	LastCheckedAt *time.Time `json:"lastCheckedAt,omitempty"`

	// ConsecutiveFailures is the number of failed probes since last success
	ConsecutiveFailures int `json:"consecutiveFailures,omitempty"`

	// LastError is the most recent probe failure, empty while connected
	LastError string `json:"lastError,omitempty"`
}

// ReconnectSchedule describes a pending reconnection attempt. At most one
// schedule exists per endpoint at any time.
type ReconnectSchedule struct {
	// EndpointID is the endpoint the attempt targets
	EndpointID string

	// DueAt is when the attempt fires
	DueAt time.Time

	// Attempt is the zero-based retry attempt this schedule represents
	Attempt int

	// Generation distinguishes this schedule from earlier cancelled ones
	// for the same endpoint, so a stopped timer that fires late is a no-op
	Generation uint64
}
