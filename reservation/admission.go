/*
admission.go - Reservation admission service

PURPOSE:
  Decides whether a reservation may be created, changed, cancelled or
  reactivated, and performs the single write when it may.

LIFECYCLE:
  ACTIVE <-> CANCELLED. Variation changes are only valid while ACTIVE.
  Reservations are never deleted; cancelling is a status transition.

CREATE PRECONDITIONS (checked in order, first violation wins):
  1. user exists and is ATIVO
  2. menu exists (with compositions and variations) and is active
  3. date is not before today
  4. date equals the menu date
  5. no ACTIVE reservation for (user, date)                    -> 409
  6. variation belongs to the menu
  7. same-day requests are before the cutoff (08:30 by default)

MODIFIABLE:
  A reservation is modifiable when it is ACTIVE and the cutoff still
  permits mutation for the reservation's own date. Update and Cancel
  require it; the admin variants skip it.

ATOMICITY:
  Every precondition is checked before the one repository write. The store
  rejects a second ACTIVE reservation for the same (user, date) at write
  time, which closes the window between check 5 and the insert under
  concurrent requests.

EVENTS:
  After a successful write a ReservationEvent is published. Publish
  failures are logged and never fail the operation.

SEE ALSO:
  - cutoff.go: Same-day cutoff rule
  - variation.go: Variation binding
  - autoreservation/batch.go: Calls CreateAutoGenerated per eligible user
*/
package reservation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/warp/cafeteria-engine/events"
)

// Service runs reservation admission against the repositories.
type Service struct {
	Users        UserRepository
	Menus        MenuRepository
	Reservations ReservationRepository
	Publisher    events.Publisher // optional
	Cutoff       Cutoff

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
	// NewID generates reservation ids. Defaults to random UUIDs.
	NewID func() string

	logger *slog.Logger
}

// NewService creates a service with the default 08:30 cutoff.
func NewService(users UserRepository, menus MenuRepository, reservations ReservationRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Users:        users,
		Menus:        menus,
		Reservations: reservations,
		Cutoff:       DefaultCutoff(),
		Now:          time.Now,
		NewID:        func() string { return uuid.NewString() },
		logger:       logger,
	}
}

// CreateRequest is the input of Create.
type CreateRequest struct {
	UserID          string
	MenuID          string
	MenuVariationID string
	ReservationDate time.Time
}

// UpdateRequest is the input of Update. Nil fields are left unchanged.
type UpdateRequest struct {
	MenuVariationID *string
}

// =============================================================================
// CREATE
// =============================================================================

// Create admits a user-initiated reservation.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Reservation, error) {
	return s.create(ctx, req, false)
}

// CreateAutoGenerated admits a reservation on behalf of a user. Same rules as
// Create; the result is flagged IsAutoGenerated.
func (s *Service) CreateAutoGenerated(ctx context.Context, req CreateRequest) (*Reservation, error) {
	return s.create(ctx, req, true)
}

func (s *Service) create(ctx context.Context, req CreateRequest, auto bool) (*Reservation, error) {
	user, err := s.Users.FindUserByID(ctx, req.UserID)
	if err != nil {
		return nil, Operational(err, "failed to load user %s", req.UserID)
	}
	if user == nil {
		return nil, NotFound("user %s not found", req.UserID)
	}
	if !user.IsActive() {
		return nil, BusinessRule("user %s is not active", req.UserID)
	}

	menu, err := s.Menus.FindMenuWithComposition(ctx, req.MenuID)
	if err != nil {
		return nil, Operational(err, "failed to load menu %s", req.MenuID)
	}
	if menu == nil {
		return nil, NotFound("menu %s not found", req.MenuID)
	}
	if !menu.IsActive {
		return nil, BusinessRule("menu %s is not active", req.MenuID)
	}

	now := s.now()
	date := DateOf(req.ReservationDate)
	if CompareDates(date, now) < 0 {
		return nil, BusinessRule("cannot reserve for a past date (%s)", FormatDate(date))
	}
	if !SameDate(date, menu.Date) {
		return nil, BusinessRule("reservation date %s does not match menu date %s",
			FormatDate(date), FormatDate(menu.Date))
	}

	existing, err := s.Reservations.FindReservationByUserAndDate(ctx, req.UserID, date)
	if err != nil {
		return nil, Operational(err, "failed to check existing reservations")
	}
	if existing != nil && existing.IsActive() {
		return nil, Conflict("user already has an active reservation for this date (%s)", FormatDate(date))
	}

	if _, err := ResolveVariation(menu, req.MenuVariationID); err != nil {
		return nil, err
	}

	if SameDate(date, now) && !s.Cutoff.Permits(now, date) {
		return nil, BusinessRule("reservations for today close at %s", s.Cutoff)
	}

	created, err := s.Reservations.CreateReservation(ctx, Reservation{
		ID:              s.newID(),
		UserID:          req.UserID,
		MenuID:          req.MenuID,
		MenuVariationID: req.MenuVariationID,
		ReservationDate: date,
		Status:          StatusActive,
		IsAutoGenerated: auto,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return nil, writeError(err, "create reservation")
	}

	s.log().Info("reservation created",
		"reservation_id", created.ID,
		"user_id", created.UserID,
		"date", FormatDate(created.ReservationDate),
		"auto_generated", auto,
	)
	s.publish(ctx, events.ReservationCreated, created, false)
	return created, nil
}

// =============================================================================
// UPDATE
// =============================================================================

// Update changes the variation of a modifiable reservation.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*Reservation, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureModifiable(r); err != nil {
		return nil, err
	}

	var patch ReservationPatch
	if req.MenuVariationID != nil && *req.MenuVariationID != r.MenuVariationID {
		menu, err := s.Menus.FindMenuWithComposition(ctx, r.MenuID)
		if err != nil {
			return nil, Operational(err, "failed to load menu %s", r.MenuID)
		}
		if menu == nil {
			return nil, NotFound("menu %s not found", r.MenuID)
		}
		v, err := ResolveVariation(menu, *req.MenuVariationID)
		if err != nil {
			return nil, err
		}
		if v.MenuID != r.MenuID {
			return nil, BusinessRule("variation %s does not belong to the reserved menu", v.ID)
		}
		patch.MenuVariationID = &v.ID
	}

	if patch.MenuVariationID == nil {
		return r, nil
	}

	patch.UpdatedAt = s.now()
	updated, err := s.Reservations.UpdateReservation(ctx, id, patch)
	if err != nil {
		return nil, writeError(err, "update reservation")
	}
	s.log().Info("reservation updated",
		"reservation_id", id,
		"menu_variation_id", updated.MenuVariationID,
	)
	s.publish(ctx, events.ReservationUpdated, updated, false)
	return updated, nil
}

// ChangeMenuVariation switches a modifiable reservation to another variation
// of the same menu.
func (s *Service) ChangeMenuVariation(ctx context.Context, id, variationID string) (*Reservation, error) {
	if variationID == "" {
		return nil, BusinessRule("menu variation is required")
	}
	return s.Update(ctx, id, UpdateRequest{MenuVariationID: &variationID})
}

// =============================================================================
// CANCEL / REACTIVATE
// =============================================================================

// Cancel cancels a modifiable reservation.
func (s *Service) Cancel(ctx context.Context, id string) (*Reservation, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status == StatusCancelled {
		return nil, BusinessRule("reservation %s is already cancelled", id)
	}
	if err := s.ensureModifiable(r); err != nil {
		return nil, err
	}
	return s.setStatus(ctx, r, StatusCancelled, false)
}

// AdminCancel cancels regardless of cutoff.
func (s *Service) AdminCancel(ctx context.Context, id string) (*Reservation, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status == StatusCancelled {
		return nil, BusinessRule("reservation %s is already cancelled", id)
	}
	return s.setStatus(ctx, r, StatusCancelled, true)
}

// Reactivate restores a cancelled reservation while the cutoff for its date
// still permits it and its menu is active.
func (s *Service) Reactivate(ctx context.Context, id string) (*Reservation, error) {
	return s.reactivate(ctx, id, false)
}

// AdminReactivate restores a cancelled reservation regardless of cutoff.
func (s *Service) AdminReactivate(ctx context.Context, id string) (*Reservation, error) {
	return s.reactivate(ctx, id, true)
}

func (s *Service) reactivate(ctx context.Context, id string, admin bool) (*Reservation, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusCancelled {
		return nil, BusinessRule("only cancelled reservations can be reactivated")
	}
	if !admin && !s.Cutoff.Permits(s.now(), r.ReservationDate) {
		return nil, BusinessRule("reservation for %s can no longer be reactivated (cutoff %s)",
			FormatDate(r.ReservationDate), s.Cutoff)
	}

	menu, err := s.Menus.FindMenuByID(ctx, r.MenuID)
	if err != nil {
		return nil, Operational(err, "failed to load menu %s", r.MenuID)
	}
	if menu == nil {
		return nil, NotFound("menu %s not found", r.MenuID)
	}
	if !menu.IsActive {
		return nil, BusinessRule("menu %s is not active", r.MenuID)
	}

	other, err := s.Reservations.FindReservationByUserAndDate(ctx, r.UserID, r.ReservationDate)
	if err != nil {
		return nil, Operational(err, "failed to check existing reservations")
	}
	if other != nil && other.ID != r.ID && other.IsActive() {
		return nil, Conflict("user already has an active reservation for this date (%s)",
			FormatDate(r.ReservationDate))
	}

	return s.setStatus(ctx, r, StatusActive, admin)
}

// =============================================================================
// READS
// =============================================================================

// FindByID returns a reservation or a NotFound error.
func (s *Service) FindByID(ctx context.Context, id string) (*Reservation, error) {
	return s.load(ctx, id)
}

// FindByUser returns a user's reservation history, newest date first.
func (s *Service) FindByUser(ctx context.Context, userID string) ([]Reservation, error) {
	list, err := s.Reservations.ListReservationsByUser(ctx, userID)
	if err != nil {
		return nil, Operational(err, "failed to list reservations for user %s", userID)
	}
	return list, nil
}

// FindByDateRange returns every reservation dated within [from, to].
func (s *Service) FindByDateRange(ctx context.Context, from, to time.Time) ([]Reservation, error) {
	return s.FindByUserAndDateRange(ctx, "", from, to)
}

// FindByUserAndDateRange returns a user's reservations dated within [from, to].
func (s *Service) FindByUserAndDateRange(ctx context.Context, userID string, from, to time.Time) ([]Reservation, error) {
	if CompareDates(to, from) < 0 {
		return nil, BusinessRule("end date %s is before start date %s", FormatDate(to), FormatDate(from))
	}
	list, err := s.Reservations.ListReservationsInRange(ctx, userID, DateOf(from), DateOf(to))
	if err != nil {
		return nil, Operational(err, "failed to list reservations")
	}
	return list, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Service) newID() string {
	if s.NewID == nil {
		return uuid.NewString()
	}
	return s.NewID()
}

func (s *Service) log() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

func (s *Service) load(ctx context.Context, id string) (*Reservation, error) {
	r, err := s.Reservations.FindReservationByID(ctx, id)
	if err != nil {
		return nil, Operational(err, "failed to load reservation %s", id)
	}
	if r == nil {
		return nil, NotFound("reservation %s not found", id)
	}
	return r, nil
}

func (s *Service) ensureModifiable(r *Reservation) error {
	if !r.IsActive() {
		return BusinessRule("only active reservations can be modified")
	}
	if !s.Cutoff.Permits(s.now(), r.ReservationDate) {
		return BusinessRule("reservation for %s can no longer be modified (cutoff %s)",
			FormatDate(r.ReservationDate), s.Cutoff)
	}
	return nil
}

func (s *Service) setStatus(ctx context.Context, r *Reservation, status Status, admin bool) (*Reservation, error) {
	updated, err := s.Reservations.UpdateReservation(ctx, r.ID, ReservationPatch{Status: &status, UpdatedAt: s.now()})
	if err != nil {
		return nil, writeError(err, "update reservation status")
	}

	key := events.ReservationCancelled
	if status == StatusActive {
		key = events.ReservationReactivated
	}
	s.log().Info("reservation status changed",
		"reservation_id", r.ID,
		"user_id", r.UserID,
		"from", r.Status,
		"to", status,
		"admin", admin,
	)
	s.publish(ctx, key, updated, admin)
	return updated, nil
}

// writeError classifies a repository write failure.
func writeError(err error, op string) error {
	if IsConflict(err) {
		return &Error{
			Kind:    KindConflict,
			Message: "user already has an active reservation for this date",
			Err:     err,
		}
	}
	if IsNotFound(err) {
		return &Error{Kind: KindNotFound, Message: "reservation not found", Err: err}
	}
	return Operational(err, "failed to %s", op)
}

func (s *Service) publish(ctx context.Context, key string, r *Reservation, admin bool) {
	if s.Publisher == nil {
		return
	}
	err := events.PublishJSON(ctx, s.Publisher, key, events.ReservationEvent{
		Type:            key,
		ReservationID:   r.ID,
		UserID:          r.UserID,
		MenuID:          r.MenuID,
		MenuVariationID: r.MenuVariationID,
		ReservationDate: FormatDate(r.ReservationDate),
		Status:          string(r.Status),
		IsAutoGenerated: r.IsAutoGenerated,
		Admin:           admin,
		OccurredAt:      s.now(),
	})
	if err != nil {
		s.log().Warn("failed to publish reservation event",
			"routing_key", key,
			"reservation_id", r.ID,
			"error", err,
		)
	}
}
