/*
Package scheduler runs the auto-reservation batch once a day.

DESIGN:
  - One goroutine sleeps until NextFireTime(now, hour, minute), runs the
    batch, then computes the next instant again. Slow runs do not shift the
    schedule because every wait is recomputed from the wall clock.
  - Executions are serialized: the scheduled run, ExecuteNow and the manual
    triggers never run the batch concurrently.
  - Stop prevents a pending firing. An execution already in progress runs
    to completion, retries included; Stop waits for it.

RETRY:
  Each execution attempts the batch up to RetryAttempts times with a fixed
  RetryDelay in between. Only an error returned by the batch triggers a
  retry; per-user failures inside a successful batch do not. Exhausting the
  attempts increments ConsecutiveFailures; a success resets it.

HEALTH:
  Healthy while running with fewer than 3 consecutive failures. From 5
  consecutive failures every failed execution is logged at error level
  for operators.

CIRCUIT BREAKER:
  Attempts run through a gobreaker circuit breaker. Once it opens,
  attempts fail fast with gobreaker.ErrOpenState until BreakerTimeout
  elapses, which the retry envelope treats like any other failure.

USAGE:
  s := scheduler.New(processor, scheduler.DefaultConfig(), logger)
  if err := s.Start(); err != nil { ... }
  defer s.Stop()

SEE ALSO:
  - autoreservation/batch.go: The batch being scheduled
  - api/scheduler.go: Admin endpoints over this type
*/
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/warp/cafeteria-engine/autoreservation"
	"github.com/warp/cafeteria-engine/reservation"
)

const (
	// UnhealthyFailureThreshold is the consecutive failure count at which
	// the scheduler reports itself unhealthy.
	UnhealthyFailureThreshold = 3
	// EscalationFailureThreshold is the consecutive failure count from which
	// failures are escalated to operators.
	EscalationFailureThreshold = 5
)

// ErrDisabled is returned by Start when the configuration disables the loop.
var ErrDisabled = reservation.BusinessRule("auto-reservation scheduler is disabled")

// BatchRunner is the batch the scheduler drives.
type BatchRunner interface {
	ProcessScheduledAutoReservations(ctx context.Context) (*autoreservation.BatchResult, error)
	CreateAutoReservationsForDate(ctx context.Context, date time.Time) (*autoreservation.BatchResult, error)
	CreateAutoReservationsForDateRange(ctx context.Context, start, end time.Time) ([]*autoreservation.BatchResult, error)
	RetryFailedAutoReservations(ctx context.Context, previous *autoreservation.BatchResult) (*autoreservation.BatchResult, error)
}

// Status is a snapshot of the scheduler.
type Status struct {
	IsRunning           bool
	Config              Config
	LastExecution       *time.Time
	NextExecution       *time.Time
	LastResult          *autoreservation.BatchResult
	LastError           string
	ConsecutiveFailures int
	TotalExecutions     int
}

// HealthInfo summarizes Status for health checks.
type HealthInfo struct {
	Healthy             bool
	IsRunning           bool
	ConsecutiveFailures int
	LastExecution       *time.Time
	NextExecution       *time.Time
	LastError           string
	BreakerState        string
	Message             string
}

// Scheduler owns the daily loop and its runtime status.
type Scheduler struct {
	batch  BatchRunner
	logger *slog.Logger

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time

	// mu guards cfg, running, stop, done and breaker. It is never held
	// while waiting for an execution.
	mu      sync.Mutex
	cfg     Config
	running bool
	stop    chan struct{}
	done    chan struct{} // closed when the current loop goroutine exits
	breaker *gobreaker.CircuitBreaker[*autoreservation.BatchResult]

	execMu sync.Mutex // serializes batch executions

	statusMu sync.RWMutex
	status   Status
}

// New creates a stopped scheduler.
func New(batch BatchRunner, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		batch:  batch,
		logger: logger.With("component", "auto_reservation_scheduler"),
		Now:    time.Now,
		cfg:    cfg,
	}
	s.breaker = s.newBreaker(cfg)
	return s
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Start arms the daily timer. Starting a running scheduler is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

func (s *Scheduler) startLocked() error {
	if !s.cfg.Enabled {
		s.logger.Info("scheduler disabled, not starting")
		return ErrDisabled
	}
	if s.running {
		s.logger.Info("scheduler already running")
		return nil
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true
	go s.loop(s.cfg, s.breaker, s.stop, s.done)

	s.logger.Info("scheduler started",
		"hour", s.cfg.DailyExecutionHour,
		"minute", s.cfg.DailyExecutionMinute,
		"retry_attempts", s.cfg.RetryAttempts,
		"retry_delay", s.cfg.RetryDelay,
	)
	return nil
}

// Stop cancels the pending firing and waits for an in-progress execution.
// Stopping a stopped scheduler is a no-op. Status and Health stay
// responsive while Stop waits.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	wait := s.stopLocked()
	s.mu.Unlock()

	if wait == nil {
		return
	}
	wait()
	s.logger.Info("scheduler stopped")
}

// stopLocked signals the loop and returns a func that blocks until it has
// exited, or nil when nothing was running. The caller must release s.mu
// before calling it.
func (s *Scheduler) stopLocked() (wait func()) {
	if !s.running {
		s.logger.Info("scheduler already stopped")
		return nil
	}
	close(s.stop)
	s.running = false
	s.setNextExecution(nil)

	done := s.done
	return func() { <-done }
}

// IsEnabled reports the configured enabled flag.
func (s *Scheduler) IsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// UpdateConfig merges u into the configuration. A running loop is restarted
// so the new schedule applies immediately; disabling it leaves it stopped.
// It returns once an in-progress execution of the old loop has finished.
func (s *Scheduler) UpdateConfig(u ConfigUpdate) (Config, error) {
	s.mu.Lock()

	next := s.cfg.Merge(u)
	if err := next.Validate(); err != nil {
		cfg := s.cfg
		s.mu.Unlock()
		return cfg, err
	}

	wasRunning := s.running
	var wait func()
	if wasRunning {
		wait = s.stopLocked()
	}
	s.cfg = next
	s.logger.Info("scheduler configuration updated",
		"enabled", next.Enabled,
		"hour", next.DailyExecutionHour,
		"minute", next.DailyExecutionMinute,
		"retry_attempts", next.RetryAttempts,
		"retry_delay", next.RetryDelay,
	)

	var err error
	if wasRunning && next.Enabled {
		err = s.startLocked()
	}
	s.mu.Unlock()

	if wait != nil {
		wait()
	}
	return next, err
}

func (s *Scheduler) loop(
	cfg Config,
	breaker *gobreaker.CircuitBreaker[*autoreservation.BatchResult],
	stop <-chan struct{},
	done chan<- struct{},
) {
	defer close(done)

	for {
		now := s.now()
		next := NextFireTime(now, cfg.DailyExecutionHour, cfg.DailyExecutionMinute)
		if !s.armNext(stop, next) {
			return
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		select {
		case <-stop:
			return
		default:
		}

		// not interruptible by Stop
		_, _ = s.execute(context.Background(), cfg, breaker, "scheduled", s.batch.ProcessScheduledAutoReservations)
	}
}

// armNext publishes the next firing unless stop was closed. Checked under
// s.mu so a stopped loop never overwrites the status of its successor.
func (s *Scheduler) armNext(stop <-chan struct{}, next time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-stop:
		return false
	default:
	}
	s.setNextExecution(&next)
	return true
}

// =============================================================================
// EXECUTION
// =============================================================================

// ExecuteNow runs the scheduled batch immediately with the retry policy. The
// next scheduled firing is unaffected.
func (s *Scheduler) ExecuteNow(ctx context.Context) (*autoreservation.BatchResult, error) {
	cfg, breaker := s.snapshot()
	return s.execute(ctx, cfg, breaker, "manual", s.batch.ProcessScheduledAutoReservations)
}

// CreateReservationsForDate runs the batch for date with the retry policy.
func (s *Scheduler) CreateReservationsForDate(ctx context.Context, date time.Time) (*autoreservation.BatchResult, error) {
	cfg, breaker := s.snapshot()
	return s.execute(ctx, cfg, breaker, "date", func(ctx context.Context) (*autoreservation.BatchResult, error) {
		return s.batch.CreateAutoReservationsForDate(ctx, date)
	})
}

// CreateReservationsForDateRange runs the batch once per date in
// [start, end]. It does not go through the retry policy and does not change
// the recorded status.
func (s *Scheduler) CreateReservationsForDateRange(ctx context.Context, start, end time.Time) ([]*autoreservation.BatchResult, error) {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	s.logger.Info("auto-reservation range requested",
		"start", reservation.FormatDate(start),
		"end", reservation.FormatDate(end),
	)
	return s.batch.CreateAutoReservationsForDateRange(ctx, start, end)
}

// RetryLastFailedReservations re-runs the users that failed in the last
// recorded result.
func (s *Scheduler) RetryLastFailedReservations(ctx context.Context) (*autoreservation.BatchResult, error) {
	s.statusMu.RLock()
	previous := s.status.LastResult
	s.statusMu.RUnlock()

	if previous == nil {
		return nil, reservation.BusinessRule("no previous execution to retry")
	}
	if !previous.HasFailures() {
		return nil, reservation.BusinessRule("last execution had no failed reservations")
	}

	cfg, breaker := s.snapshot()
	return s.execute(ctx, cfg, breaker, "retry", func(ctx context.Context) (*autoreservation.BatchResult, error) {
		return s.batch.RetryFailedAutoReservations(ctx, previous)
	})
}

func (s *Scheduler) execute(
	ctx context.Context,
	cfg Config,
	breaker *gobreaker.CircuitBreaker[*autoreservation.BatchResult],
	trigger string,
	run func(context.Context) (*autoreservation.BatchResult, error),
) (*autoreservation.BatchResult, error) {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	log := s.logger.With("trigger", trigger)
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := s.attempt(ctx, breaker, run)
		if err == nil {
			s.recordSuccess(result)
			log.Info("auto-reservation execution succeeded",
				"attempt", attempt,
				"successful", result.SuccessfulReservations,
				"failed", result.FailedReservations,
			)
			return result, nil
		}

		lastErr = err
		log.Warn("auto-reservation attempt failed",
			"attempt", attempt,
			"max_attempts", attempts,
			"error", err,
		)
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, cfg.RetryDelay); err != nil {
			lastErr = err
			break
		}
	}

	failures := s.recordFailure(lastErr)
	if failures >= EscalationFailureThreshold {
		log.Error("auto-reservation keeps failing, operator attention required",
			"consecutive_failures", failures,
			"error", lastErr,
		)
	} else {
		log.Error("auto-reservation execution failed",
			"consecutive_failures", failures,
			"error", lastErr,
		)
	}
	return nil, &reservation.Error{
		Kind:    reservation.KindOperational,
		Message: fmt.Sprintf("auto-reservation failed after %d attempts", attempts),
		Err:     lastErr,
	}
}

func (s *Scheduler) attempt(
	ctx context.Context,
	breaker *gobreaker.CircuitBreaker[*autoreservation.BatchResult],
	run func(context.Context) (*autoreservation.BatchResult, error),
) (*autoreservation.BatchResult, error) {
	if breaker == nil {
		return run(ctx)
	}
	return breaker.Execute(func() (*autoreservation.BatchResult, error) {
		return run(ctx)
	})
}

// =============================================================================
// STATUS
// =============================================================================

// Status returns a snapshot.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	running, cfg := s.running, s.cfg
	s.mu.Unlock()

	s.statusMu.RLock()
	st := s.status
	s.statusMu.RUnlock()

	st.IsRunning = running
	st.Config = cfg
	return st
}

// Health reports whether the loop is running and not failing repeatedly.
func (s *Scheduler) Health() HealthInfo {
	st := s.Status()
	_, breaker := s.snapshot()

	info := HealthInfo{
		Healthy:             st.IsRunning && st.ConsecutiveFailures < UnhealthyFailureThreshold,
		IsRunning:           st.IsRunning,
		ConsecutiveFailures: st.ConsecutiveFailures,
		LastExecution:       st.LastExecution,
		NextExecution:       st.NextExecution,
		LastError:           st.LastError,
		BreakerState:        "disabled",
	}
	if breaker != nil {
		info.BreakerState = breaker.State().String()
	}

	switch {
	case !st.IsRunning:
		info.Message = "scheduler is not running"
	case !info.Healthy:
		info.Message = fmt.Sprintf("%d consecutive failed executions", st.ConsecutiveFailures)
	default:
		info.Message = "ok"
	}
	return info
}

func (s *Scheduler) recordSuccess(result *autoreservation.BatchResult) {
	now := s.now()
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.LastExecution = &now
	s.status.LastResult = result
	s.status.LastError = ""
	s.status.ConsecutiveFailures = 0
	s.status.TotalExecutions++
}

func (s *Scheduler) recordFailure(err error) int {
	now := s.now()
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.LastExecution = &now
	s.status.LastError = err.Error()
	s.status.ConsecutiveFailures++
	s.status.TotalExecutions++
	return s.status.ConsecutiveFailures
}

func (s *Scheduler) setNextExecution(next *time.Time) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.NextExecution = next
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Scheduler) snapshot() (Config, *gobreaker.CircuitBreaker[*autoreservation.BatchResult]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.breaker
}

func (s *Scheduler) newBreaker(cfg Config) *gobreaker.CircuitBreaker[*autoreservation.BatchResult] {
	if cfg.BreakerThreshold == 0 {
		return nil
	}
	return gobreaker.NewCircuitBreaker[*autoreservation.BatchResult](gobreaker.Settings{
		Name:        "auto-reservation-batch",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
}

func (s *Scheduler) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
