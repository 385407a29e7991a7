// Package retry provides a bounded exponential-backoff executor with
// pattern-based error classification.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Default policy values used when no policy is supplied by the call site
const (
	DefaultMaxAttempts       = 3
	DefaultInitialDelay      = 500 * time.Millisecond
	DefaultMaxDelay          = 30 * time.Second
	DefaultBackoffMultiplier = 2.0
)

// defaultRetryablePatterns covers the transient failure modes seen from
// network-facing transports: timeouts, connection drops and 5xx-class
// responses. Matching is case-insensitive substring containment.
var defaultRetryablePatterns = []string{
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"econnreset",
	"unavailable",
	"temporarily",
	"500",
	"502",
	"503",
	"504",
}

// Policy describes how an operation is retried. A Policy is a value object:
// construct one per call site and treat it as immutable.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first (>= 1)
	MaxAttempts int

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration

	// MaxDelay caps the computed backoff delay
	MaxDelay time.Duration

	// BackoffMultiplier is the exponential growth factor (> 1)
	BackoffMultiplier float64

	// RetryablePatterns is matched case-insensitively against an error's
	// message, its error code and any numeric status code it carries.
	// An error matching none of the patterns is treated as permanent.
	RetryablePatterns []string

	// OnRetry, when set, observes each retry attempt before its backoff
	// sleep. It is for logging and metrics only and must not block.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy returns the process-wide default retry policy
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       DefaultMaxAttempts,
		InitialDelay:      DefaultInitialDelay,
		MaxDelay:          DefaultMaxDelay,
		BackoffMultiplier: DefaultBackoffMultiplier,
		RetryablePatterns: defaultRetryablePatterns,
	}
}

// NewPolicy constructs a validated Policy
func NewPolicy(
	maxAttempts int,
	initialDelay, maxDelay time.Duration,
	multiplier float64,
	patterns []string,
) (Policy, error) {
	p := Policy{
		MaxAttempts:       maxAttempts,
		InitialDelay:      initialDelay,
		MaxDelay:          maxDelay,
		BackoffMultiplier: multiplier,
		RetryablePatterns: patterns,
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks the policy invariants
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.InitialDelay < 0 {
		return fmt.Errorf("initial delay must not be negative, got %s", p.InitialDelay)
	}
	if p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("max delay %s is below initial delay %s", p.MaxDelay, p.InitialDelay)
	}
	if p.BackoffMultiplier <= 1 {
		return fmt.Errorf("backoff multiplier must be greater than 1, got %v", p.BackoffMultiplier)
	}
	return nil
}

// DelayFor computes the backoff delay for the given zero-based attempt.
// The result saturates at MaxDelay rather than overflowing.
func (p Policy) DelayFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if math.IsNaN(d) || math.IsInf(d, 1) || d >= float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// coder is implemented by errors that carry a transport error code
type coder interface {
	ErrorCode() string
}

// statusCoder is implemented by errors that carry a numeric status code
type statusCoder interface {
	HTTPStatus() int
}

// IsRetryable classifies an error against the policy's retryable patterns.
// The haystack is the error message plus, when present, the error code and
// numeric status code exposed by the error chain. Context cancellation is
// never retryable: the caller has already given up.
func (p Policy) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var sb strings.Builder
	sb.WriteString(err.Error())

	var c coder
	if errors.As(err, &c) {
		sb.WriteByte(' ')
		sb.WriteString(c.ErrorCode())
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		if code := sc.HTTPStatus(); code != 0 {
			sb.WriteByte(' ')
			sb.WriteString(strconv.Itoa(code))
		}
	}
	haystack := strings.ToLower(sb.String())

	for _, pattern := range p.RetryablePatterns {
		if pattern == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}
