/*
Package autoreservation creates default reservations for fixed users.

PURPOSE:
  Every active FIXO user gets a reservation for the target date without
  asking, using the menu's default variation. The reservation goes through
  the same admission rules as a user request and is flagged
  IsAutoGenerated.

PER-USER ISOLATION:
  Users are processed one at a time, in the order the repository lists
  them. A failure for one user is recorded in the result and the batch
  moves on. Only a failure to list the eligible users aborts the batch;
  that error is what the scheduler retries.

OUTCOMES:
  created  reservation written                       counted as success
  skipped  user already has a reservation that day   not counted
  failed   no active menu, no default variation,     counted as failure,
           admission rejected, store error           listed in Errors

  A CANCELLED reservation for the date is a skip as well: the user opted
  out of that day and the batch does not override it.

RETRY:
  RetryFailedAutoReservations takes a previous result and re-runs only the
  users listed in its Errors.

SEE ALSO:
  - reservation/admission.go: CreateAutoGenerated
  - scheduler/scheduler.go: Daily invocation with retry
*/
package autoreservation

import (
	"context"
	"log/slog"
	"time"

	"github.com/warp/cafeteria-engine/events"
	"github.com/warp/cafeteria-engine/reservation"
)

// Admission is the create path the batch goes through.
type Admission interface {
	CreateAutoGenerated(ctx context.Context, req reservation.CreateRequest) (*reservation.Reservation, error)
}

// Outcome of one user in a batch.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// UserResult is one line of the batch manifest.
type UserResult struct {
	UserID          string
	Outcome         Outcome
	ReservationID   string
	MenuVariationID string
	Reason          string
}

// UserError records why a user got no reservation.
type UserError struct {
	UserID     string
	Message    string
	StatusCode int
}

// BatchResult is the manifest of one batch, enough to log and to retry.
type BatchResult struct {
	Date                   time.Time
	TotalUsers             int
	SuccessfulReservations int
	FailedReservations     int
	SkippedReservations    int
	ProcessedAt            time.Time
	Results                []UserResult
	Errors                 []UserError
}

// HasFailures reports whether any user failed.
func (r *BatchResult) HasFailures() bool { return r != nil && len(r.Errors) > 0 }

// FailedUserIDs lists the users in Errors.
func (r *BatchResult) FailedUserIDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		ids[i] = e.UserID
	}
	return ids
}

// =============================================================================
// PROCESSOR
// =============================================================================

// Processor runs auto-reservation batches.
type Processor struct {
	Users        reservation.UserRepository
	Menus        reservation.MenuRepository
	Reservations reservation.ReservationRepository
	Admission    Admission
	Publisher    events.Publisher // optional
	Cutoff       reservation.Cutoff

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time

	logger *slog.Logger
}

// NewProcessor creates a processor using the default cutoff to pick the
// scheduled target date.
func NewProcessor(users reservation.UserRepository, menus reservation.MenuRepository, reservations reservation.ReservationRepository, admission Admission, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		Users:        users,
		Menus:        menus,
		Reservations: reservations,
		Admission:    admission,
		Cutoff:       reservation.DefaultCutoff(),
		Now:          time.Now,
		logger:       logger,
	}
}

// ProcessScheduledAutoReservations runs the batch for the next business date
// that can still be booked.
func (p *Processor) ProcessScheduledAutoReservations(ctx context.Context) (*BatchResult, error) {
	target := NextBusinessDate(p.now(), p.Cutoff)
	p.logger.Info("scheduled auto-reservation batch", "date", reservation.FormatDate(target))
	return p.CreateAutoReservationsForDate(ctx, target)
}

// CreateAutoReservationsForDate runs the batch for one date.
func (p *Processor) CreateAutoReservationsForDate(ctx context.Context, date time.Time) (*BatchResult, error) {
	date = reservation.DateOf(date)
	users, err := p.Users.FindUsersByStatusAndType(ctx, reservation.UserActive, reservation.UserFixed)
	if err != nil {
		return nil, reservation.Operational(err, "failed to list users eligible for auto-reservation")
	}

	result := p.newResult(date, len(users))
	for _, u := range users {
		p.processUser(ctx, result, u)
	}
	p.finish(ctx, result)
	return result, nil
}

// CreateAutoReservationsForDateRange runs the batch once per date in
// [start, end]. On a batch-level failure the results so far are returned
// with the error.
func (p *Processor) CreateAutoReservationsForDateRange(ctx context.Context, start, end time.Time) ([]*BatchResult, error) {
	if reservation.CompareDates(end, start) < 0 {
		return nil, reservation.BusinessRule("end date %s is before start date %s",
			reservation.FormatDate(end), reservation.FormatDate(start))
	}

	var results []*BatchResult
	for _, date := range reservation.DatesBetween(start, end) {
		result, err := p.CreateAutoReservationsForDate(ctx, date)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// RetryFailedAutoReservations re-attempts the users that failed in previous.
// Users that are no longer eligible fail again with that reason.
func (p *Processor) RetryFailedAutoReservations(ctx context.Context, previous *BatchResult) (*BatchResult, error) {
	if previous == nil {
		return nil, reservation.BusinessRule("no previous batch result to retry")
	}

	result := p.newResult(previous.Date, len(previous.Errors))
	for _, failed := range previous.Errors {
		u, err := p.Users.FindUserByID(ctx, failed.UserID)
		if err != nil {
			p.fail(result, failed.UserID, reservation.Operational(err, "failed to load user %s", failed.UserID))
			continue
		}
		if u == nil {
			p.fail(result, failed.UserID, reservation.NotFound("user %s not found", failed.UserID))
			continue
		}
		if !u.IsAutoReservationEligible() {
			p.fail(result, failed.UserID, reservation.BusinessRule("user %s is no longer eligible for auto-reservation", u.ID))
			continue
		}
		p.processUser(ctx, result, *u)
	}
	p.finish(ctx, result)
	return result, nil
}

// NextBusinessDate is today while the cutoff still allows booking it,
// otherwise tomorrow, moved past the weekend.
func NextBusinessDate(now time.Time, cutoff reservation.Cutoff) time.Time {
	date := reservation.DateOf(now)
	if !cutoff.Permits(now, date) {
		date = reservation.AddDays(date, 1)
	}
	for reservation.IsWeekend(date) {
		date = reservation.AddDays(date, 1)
	}
	return date
}

// =============================================================================
// PER-USER PROCESSING
// =============================================================================

func (p *Processor) processUser(ctx context.Context, result *BatchResult, u reservation.User) {
	log := p.logger.With("user_id", u.ID, "date", reservation.FormatDate(result.Date))

	existing, err := p.Reservations.FindReservationByUserAndDate(ctx, u.ID, result.Date)
	if err != nil {
		p.fail(result, u.ID, reservation.Operational(err, "failed to check existing reservations"))
		log.Warn("auto-reservation failed", "error", err)
		return
	}
	if existing != nil {
		reason := "already has an active reservation"
		if !existing.IsActive() {
			reason = "reservation cancelled by user"
		}
		p.skip(result, u.ID, existing.ID, reason)
		log.Debug("auto-reservation skipped", "reason", reason)
		return
	}

	menu, err := p.Menus.FindMenuByDate(ctx, result.Date)
	if err != nil {
		p.fail(result, u.ID, reservation.Operational(err, "failed to load menu"))
		log.Warn("auto-reservation failed", "error", err)
		return
	}
	if menu == nil || !menu.IsActive {
		p.fail(result, u.ID, reservation.BusinessRule("no active menu for %s", reservation.FormatDate(result.Date)))
		log.Warn("auto-reservation failed", "reason", "no active menu")
		return
	}

	full, err := p.Menus.FindMenuWithComposition(ctx, menu.ID)
	if err != nil {
		p.fail(result, u.ID, reservation.Operational(err, "failed to load menu %s", menu.ID))
		return
	}
	variation, err := reservation.DefaultVariation(full)
	if err != nil {
		p.fail(result, u.ID, err)
		log.Warn("auto-reservation failed", "error", err)
		return
	}

	r, err := p.Admission.CreateAutoGenerated(ctx, reservation.CreateRequest{
		UserID:          u.ID,
		MenuID:          menu.ID,
		MenuVariationID: variation.ID,
		ReservationDate: result.Date,
	})
	if reservation.IsConflict(err) {
		// booked by the user while the batch was running
		p.skip(result, u.ID, "", "already has an active reservation")
		return
	}
	if err != nil {
		p.fail(result, u.ID, err)
		log.Warn("auto-reservation failed", "error", err)
		return
	}

	result.SuccessfulReservations++
	result.Results = append(result.Results, UserResult{
		UserID:          u.ID,
		Outcome:         OutcomeCreated,
		ReservationID:   r.ID,
		MenuVariationID: r.MenuVariationID,
	})
}

func (p *Processor) skip(result *BatchResult, userID, reservationID, reason string) {
	result.SkippedReservations++
	result.Results = append(result.Results, UserResult{
		UserID:        userID,
		Outcome:       OutcomeSkipped,
		ReservationID: reservationID,
		Reason:        reason,
	})
}

func (p *Processor) fail(result *BatchResult, userID string, err error) {
	result.FailedReservations++
	result.Results = append(result.Results, UserResult{
		UserID:  userID,
		Outcome: OutcomeFailed,
		Reason:  err.Error(),
	})
	result.Errors = append(result.Errors, UserError{
		UserID:     userID,
		Message:    err.Error(),
		StatusCode: reservation.StatusCode(err),
	})
}

func (p *Processor) newResult(date time.Time, total int) *BatchResult {
	return &BatchResult{
		Date:       reservation.DateOf(date),
		TotalUsers: total,
		Results:    make([]UserResult, 0, total),
	}
}

func (p *Processor) finish(ctx context.Context, result *BatchResult) {
	result.ProcessedAt = p.now()
	p.logger.Info("auto-reservation batch finished",
		"date", reservation.FormatDate(result.Date),
		"total", result.TotalUsers,
		"successful", result.SuccessfulReservations,
		"failed", result.FailedReservations,
		"skipped", result.SkippedReservations,
	)

	if p.Publisher == nil {
		return
	}
	err := events.PublishJSON(ctx, p.Publisher, events.BatchCompleted, events.BatchEvent{
		Date:                   reservation.FormatDate(result.Date),
		TotalUsers:             result.TotalUsers,
		SuccessfulReservations: result.SuccessfulReservations,
		FailedReservations:     result.FailedReservations,
		SkippedReservations:    result.SkippedReservations,
		ProcessedAt:            result.ProcessedAt,
	})
	if err != nil {
		p.logger.Warn("failed to publish batch event", "error", err)
	}
}

func (p *Processor) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}
