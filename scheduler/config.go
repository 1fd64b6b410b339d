package scheduler

import (
	"time"

	"github.com/warp/cafeteria-engine/reservation"
)

// Config controls the daily auto-reservation run.
type Config struct {
	Enabled              bool
	DailyExecutionHour   int // 0-23
	DailyExecutionMinute int // 0-59
	RetryAttempts        int // >= 1
	RetryDelay           time.Duration

	// BreakerThreshold is the number of consecutive failed attempts that
	// opens the circuit breaker. Zero disables the breaker.
	BreakerThreshold uint32
	// BreakerTimeout is how long the breaker stays open.
	BreakerTimeout time.Duration
}

// DefaultConfig runs daily at 06:00 with three attempts one minute apart.
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		DailyExecutionHour:   6,
		DailyExecutionMinute: 0,
		RetryAttempts:        3,
		RetryDelay:           time.Minute,
		BreakerThreshold:     5,
		BreakerTimeout:       time.Minute,
	}
}

// Validate checks ranges.
func (c Config) Validate() error {
	switch {
	case c.DailyExecutionHour < 0 || c.DailyExecutionHour > 23:
		return reservation.BusinessRule("daily execution hour must be between 0 and 23, got %d", c.DailyExecutionHour)
	case c.DailyExecutionMinute < 0 || c.DailyExecutionMinute > 59:
		return reservation.BusinessRule("daily execution minute must be between 0 and 59, got %d", c.DailyExecutionMinute)
	case c.RetryAttempts < 1:
		return reservation.BusinessRule("retry attempts must be positive, got %d", c.RetryAttempts)
	case c.RetryDelay < 0:
		return reservation.BusinessRule("retry delay must not be negative, got %s", c.RetryDelay)
	case c.BreakerTimeout < 0:
		return reservation.BusinessRule("breaker timeout must not be negative, got %s", c.BreakerTimeout)
	}
	return nil
}

// ConfigUpdate is a partial Config. Nil fields keep their current value.
type ConfigUpdate struct {
	Enabled              *bool
	DailyExecutionHour   *int
	DailyExecutionMinute *int
	RetryAttempts        *int
	RetryDelay           *time.Duration
}

// Merge applies u on top of c.
func (c Config) Merge(u ConfigUpdate) Config {
	if u.Enabled != nil {
		c.Enabled = *u.Enabled
	}
	if u.DailyExecutionHour != nil {
		c.DailyExecutionHour = *u.DailyExecutionHour
	}
	if u.DailyExecutionMinute != nil {
		c.DailyExecutionMinute = *u.DailyExecutionMinute
	}
	if u.RetryAttempts != nil {
		c.RetryAttempts = *u.RetryAttempts
	}
	if u.RetryDelay != nil {
		c.RetryDelay = *u.RetryDelay
	}
	return c
}

// NextFireTime is the next instant at hour:minute strictly after now: today
// if that is still ahead, otherwise tomorrow.
func NextFireTime(now time.Time, hour, minute int) time.Time {
	y, m, d := now.Date()
	next := time.Date(y, m, d, hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(y, m, d+1, hour, minute, 0, 0, now.Location())
	}
	return next
}
