// Package supervisor owns the per-endpoint connectivity state machine and
// schedules idempotent reconnection attempts.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/syncmesh/syncmesh-server/internal/events"
	"github.com/syncmesh/syncmesh-server/internal/retry"
	"github.com/syncmesh/syncmesh-server/internal/status"
	"github.com/syncmesh/syncmesh-server/internal/store"
	"github.com/syncmesh/syncmesh-server/internal/telemetry"
	"github.com/syncmesh/syncmesh-server/internal/transport"
)

const (
	// defaultSweepInterval is how often the supervisor sweeps all endpoints
	defaultSweepInterval = 30 * time.Second

	// defaultSweepJitter is the maximum random offset applied to the sweep
	// interval so multiple server instances don't probe in lockstep
	defaultSweepJitter = 5 * time.Second

	// defaultBaseDelay seeds the reconnection backoff
	defaultBaseDelay = time.Second

	// defaultCapDelay is the hard ceiling on reconnection backoff
	defaultCapDelay = 5 * time.Minute
)

// Config holds the supervisor's timing parameters
type Config struct {
	// SweepInterval is the fixed interval between endpoint sweeps
	SweepInterval time.Duration

	// SweepJitter is the maximum random offset applied per sweep tick
	SweepJitter time.Duration

	// BaseDelay seeds the reconnection backoff schedule
	BaseDelay time.Duration

	// CapDelay bounds the reconnection backoff so retries never diverge
	CapDelay time.Duration

	// ProbePolicy is the retry policy used for reconnection probes
	ProbePolicy retry.Policy
}

// DefaultConfig returns the supervisor's default timing parameters
func DefaultConfig() Config {
	return Config{
		SweepInterval: defaultSweepInterval,
		SweepJitter:   defaultSweepJitter,
		BaseDelay:     defaultBaseDelay,
		CapDelay:      defaultCapDelay,
		ProbePolicy:   retry.DefaultPolicy(),
	}
}

// schedule is one pending reconnection attempt. The generation counter lets
// a firing timer verify it is still the current schedule for its endpoint,
// so cancellation and firing cannot race.
type schedule struct {
	endpointID string
	generation uint64
	attempt    int
	dueAt      time.Time
	timer      *time.Timer
}

// Supervisor runs the per-endpoint connectivity state machine. Probe
// failures are never fatal and never surface to callers; they only update
// per-endpoint state and potentially schedule a retry.
type Supervisor struct {
	cfg       Config
	endpoints store.EndpointStore
	prober    transport.Prober
	bus       *events.Bus
	metrics   *telemetry.SupervisorMetrics

	mu         sync.Mutex
	schedules  map[string]*schedule
	inFlight   map[string]bool
	generation uint64

	// Lifecycle management
	cancelFunc context.CancelFunc
	done       chan struct{}
	wg         sync.WaitGroup
}

// Option is a function that configures the supervisor
type Option func(*Supervisor)

// WithMetrics sets the supervisor metrics
func WithMetrics(metrics *telemetry.SupervisorMetrics) Option {
	return func(s *Supervisor) {
		s.metrics = metrics
	}
}

// New creates a supervisor with injected dependencies
func New(endpoints store.EndpointStore, prober transport.Prober, bus *events.Bus, cfg Config, opts ...Option) *Supervisor {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.CapDelay <= 0 {
		cfg.CapDelay = defaultCapDelay
	}
	if cfg.ProbePolicy.MaxAttempts == 0 {
		cfg.ProbePolicy = retry.DefaultPolicy()
	}

	s := &Supervisor{
		cfg:       cfg,
		endpoints: endpoints,
		prober:    prober,
		bus:       bus,
		schedules: make(map[string]*schedule),
		inFlight:  make(map[string]bool),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// sweepInterval returns the configured interval with random jitter applied
func (s *Supervisor) sweepInterval() time.Duration {
	if s.cfg.SweepJitter <= 0 {
		return s.cfg.SweepInterval
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for sweep jitter
	offset := time.Duration(rand.Int64N(int64(2*s.cfg.SweepJitter))) - s.cfg.SweepJitter
	return s.cfg.SweepInterval + offset
}

// Start begins the periodic endpoint sweep. It blocks until the context is
// cancelled.
func (s *Supervisor) Start(ctx context.Context) error {
	slog.Info("starting reconnection supervisor", "sweep_interval", s.cfg.SweepInterval)

	supCtx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel
	defer func() {
		s.cancelAllSchedules()
		s.wg.Wait()
		close(s.done)
		slog.Info("reconnection supervisor shut down")
	}()

	ticker := time.NewTicker(s.sweepInterval())
	defer ticker.Stop()

	s.sweep(supCtx)

	for {
		select {
		case <-ticker.C:
			s.sweep(supCtx)
			ticker.Reset(s.sweepInterval())
		case <-supCtx.Done():
			slog.Info("reconnection supervisor stopping")
			return nil
		}
	}
}

// Stop gracefully stops the supervisor and waits for in-flight probes
func (s *Supervisor) Stop() error {
	if s.cancelFunc != nil {
		s.cancelFunc()
		<-s.done
	}
	return nil
}

// RegisterEndpoint creates a new endpoint in the disconnected state; the
// next sweep will probe it.
func (s *Supervisor) RegisterEndpoint(ctx context.Context, id string) (*status.Endpoint, error) {
	if id == "" {
		return nil, fmt.Errorf("endpoint id is required")
	}
	endpoint, err := s.endpoints.CreateEndpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	slog.Info("registered endpoint", "endpoint", id)
	return endpoint, nil
}

// RemoveEndpoint deletes an endpoint. Its pending reconnect schedule, if
// any, is cancelled first so no timer outlives the endpoint.
func (s *Supervisor) RemoveEndpoint(ctx context.Context, id string) error {
	s.cancelSchedule(id)
	if err := s.endpoints.DeleteEndpoint(ctx, id); err != nil {
		return err
	}
	slog.Info("removed endpoint", "endpoint", id)
	return nil
}

// EndpointStatus returns the current state of the named endpoint
func (s *Supervisor) EndpointStatus(ctx context.Context, id string) (*status.Endpoint, error) {
	return s.endpoints.GetEndpoint(ctx, id)
}

// ListEndpoints returns the current state of all endpoints
func (s *Supervisor) ListEndpoints(ctx context.Context) ([]*status.Endpoint, error) {
	return s.endpoints.ListEndpoints(ctx)
}

// PendingSchedule reports the pending reconnect schedule for an endpoint,
// or nil when none is pending.
func (s *Supervisor) PendingSchedule(id string) *status.ReconnectSchedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[id]
	if !ok {
		return nil
	}
	return &status.ReconnectSchedule{
		EndpointID: sched.endpointID,
		DueAt:      sched.dueAt,
		Attempt:    sched.attempt,
		Generation: sched.generation,
	}
}

// ReportFailure records a caller-observed failure for a connected endpoint.
// Network-layer absence moves the endpoint to disconnected; an
// application-level error response moves it to error.
func (s *Supervisor) ReportFailure(ctx context.Context, id string, kind status.FailureKind, reason string) error {
	next := status.EndpointDisconnected
	if kind == status.FailureApplication {
		next = status.EndpointError
	}

	now := time.Now()
	endpoint, err := s.endpoints.UpdateEndpoint(ctx, id, func(ep *status.Endpoint) {
		ep.Status = next
		ep.LastError = reason
		ep.LastCheckedAt = &now
	})
	if err != nil {
		return err
	}

	// An error endpoint receives only health checks, so an armed reconnect
	// timer from an earlier disconnection must not fire against it
	if next == status.EndpointError {
		s.cancelSchedule(id)
	}

	slog.Warn("endpoint failure reported",
		"endpoint", id,
		"kind", kind,
		"status", endpoint.Status,
		"reason", reason)
	s.publishStatusChange(id, endpoint.Status, reason)
	s.metrics.RecordEndpointUp(ctx, id, false)
	return nil
}

// sweep walks all endpoints once: disconnected endpoints get a reconnection
// attempt unless one is already pending or in flight; error endpoints get a
// lightweight health check.
func (s *Supervisor) sweep(ctx context.Context) {
	endpoints, err := s.endpoints.ListEndpoints(ctx)
	if err != nil {
		slog.Error("failed to list endpoints for sweep", "error", err)
		return
	}

	for _, endpoint := range endpoints {
		switch endpoint.Status {
		case status.EndpointDisconnected:
			if s.hasPendingSchedule(endpoint.ID) || !s.beginProbe(endpoint.ID) {
				continue
			}
			s.wg.Add(1)
			go func(id string) {
				defer s.wg.Done()
				defer s.endProbe(id)
				s.attemptReconnect(ctx, id)
			}(endpoint.ID)
		case status.EndpointError:
			if !s.beginProbe(endpoint.ID) {
				continue
			}
			s.wg.Add(1)
			go func(id string) {
				defer s.wg.Done()
				defer s.endProbe(id)
				s.healthCheck(ctx, id)
			}(endpoint.ID)
		case status.EndpointConnected:
			// Nothing to do
		}
	}
}

// attemptReconnect probes the endpoint through the retry executor. Success
// moves it to connected; failure bumps the failure count and schedules the
// next attempt.
func (s *Supervisor) attemptReconnect(ctx context.Context, id string) {
	_, err := retry.Do(ctx, s.cfg.ProbePolicy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.prober.Probe(ctx, id)
	})
	s.metrics.RecordProbe(ctx, id, err == nil)

	if err == nil {
		s.markConnected(ctx, id)
		return
	}
	if ctx.Err() != nil {
		return
	}

	now := time.Now()
	endpoint, updateErr := s.endpoints.UpdateEndpoint(ctx, id, func(ep *status.Endpoint) {
		ep.Status = status.EndpointDisconnected
		ep.ConsecutiveFailures++
		ep.LastError = err.Error()
		ep.LastCheckedAt = &now
	})
	if updateErr != nil {
		slog.Error("failed to record probe failure", "endpoint", id, "error", updateErr)
		return
	}

	slog.Warn("reconnection attempt failed",
		"endpoint", id,
		"consecutive_failures", endpoint.ConsecutiveFailures,
		"error", err)
	s.scheduleReconnect(ctx, id, endpoint.ConsecutiveFailures-1)
}

// healthCheck issues a single lightweight probe against an endpoint in the
// error state. Success moves it to connected; failure leaves it in error.
func (s *Supervisor) healthCheck(ctx context.Context, id string) {
	err := s.prober.Probe(ctx, id)
	s.metrics.RecordProbe(ctx, id, err == nil)

	if err == nil {
		s.markConnected(ctx, id)
		return
	}
	if ctx.Err() != nil {
		return
	}

	now := time.Now()
	if _, updateErr := s.endpoints.UpdateEndpoint(ctx, id, func(ep *status.Endpoint) {
		ep.LastError = err.Error()
		ep.LastCheckedAt = &now
	}); updateErr != nil {
		slog.Error("failed to record health check failure", "endpoint", id, "error", updateErr)
		return
	}
	slog.Debug("health check failed", "endpoint", id, "error", err)
}

// markConnected records a successful probe: failures reset to zero, the
// last error clears, and any pending reconnect schedule is cancelled.
func (s *Supervisor) markConnected(ctx context.Context, id string) {
	now := time.Now()
	endpoint, err := s.endpoints.UpdateEndpoint(ctx, id, func(ep *status.Endpoint) {
		ep.Status = status.EndpointConnected
		ep.ConsecutiveFailures = 0
		ep.LastError = ""
		ep.LastCheckedAt = &now
	})
	if err != nil {
		slog.Error("failed to mark endpoint connected", "endpoint", id, "error", err)
		return
	}

	s.cancelSchedule(id)
	slog.Info("endpoint connected", "endpoint", id)
	s.publishStatusChange(id, endpoint.Status, "")
	s.metrics.RecordEndpointUp(ctx, id, true)
}

// scheduleReconnect schedules the next reconnection attempt for an
// endpoint. Scheduling is idempotent: if a schedule is already pending the
// call is a no-op, which prevents duplicate timers racing each other.
// attempt is zero-based: the first retry waits BaseDelay.
func (s *Supervisor) scheduleReconnect(ctx context.Context, id string, attempt int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, pending := s.schedules[id]; pending {
		return
	}

	delay := s.backoffDelay(attempt)
	s.generation++
	sched := &schedule{
		endpointID: id,
		generation: s.generation,
		attempt:    attempt,
		dueAt:      time.Now().Add(delay),
	}
	sched.timer = time.AfterFunc(delay, func() {
		s.onScheduleFired(ctx, sched)
	})
	s.schedules[id] = sched

	slog.Debug("scheduled reconnection attempt",
		"endpoint", id,
		"attempt", attempt,
		"delay", delay)
}

// onScheduleFired runs when a reconnect timer fires. The generation check
// makes a timer that lost a race with cancellation a no-op.
func (s *Supervisor) onScheduleFired(ctx context.Context, sched *schedule) {
	s.mu.Lock()
	current, ok := s.schedules[sched.endpointID]
	if !ok || current.generation != sched.generation {
		s.mu.Unlock()
		return
	}
	delete(s.schedules, sched.endpointID)
	s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	// The endpoint may have left the disconnected state since the schedule
	// was armed; only disconnected endpoints get reconnection probes
	endpoint, err := s.endpoints.GetEndpoint(ctx, sched.endpointID)
	if err != nil || endpoint.Status != status.EndpointDisconnected {
		return
	}

	if !s.beginProbe(sched.endpointID) {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.endProbe(sched.endpointID)
		s.attemptReconnect(ctx, sched.endpointID)
	}()
}

// cancelSchedule removes the pending schedule for an endpoint, if any.
// A timer that already fired will see a stale generation and do nothing.
func (s *Supervisor) cancelSchedule(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sched, ok := s.schedules[id]; ok {
		sched.timer.Stop()
		delete(s.schedules, id)
	}
}

func (s *Supervisor) cancelAllSchedules() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sched := range s.schedules {
		sched.timer.Stop()
		delete(s.schedules, id)
	}
}

func (s *Supervisor) hasPendingSchedule(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, pending := s.schedules[id]
	return pending
}

// beginProbe marks an endpoint as having a probe in flight. It returns
// false when one is already running, so no endpoint ever has two probes
// racing each other.
func (s *Supervisor) beginProbe(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight[id] {
		return false
	}
	s.inFlight[id] = true
	return true
}

func (s *Supervisor) endProbe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

// backoffDelay computes min(CapDelay, BaseDelay * 2^attempt), saturating at
// the cap rather than overflowing
func (s *Supervisor) backoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(s.cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if math.IsInf(d, 1) || d >= float64(s.cfg.CapDelay) {
		return s.cfg.CapDelay
	}
	return time.Duration(d)
}

func (s *Supervisor) publishStatusChange(id string, newStatus status.EndpointStatus, detail string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{
		Type:       events.TypeEndpointStatusChanged,
		EndpointID: id,
		Status:     string(newStatus),
		Detail:     detail,
	})
}
