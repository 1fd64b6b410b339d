/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes of the HTTP API, kept apart from the domain types so field
  names and date formats can stay stable on the wire.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DATES:
  Calendar dates are "YYYY-MM-DD" strings. Timestamps are RFC 3339.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/menu.go: MenuJSON, accepted as-is by POST /api/menus
*/
package api

import (
	"time"

	"github.com/warp/cafeteria-engine/autoreservation"
	"github.com/warp/cafeteria-engine/reservation"
	"github.com/warp/cafeteria-engine/scheduler"
)

// =============================================================================
// RESERVATIONS
// =============================================================================

// ReservationDTO represents a reservation in API responses.
type ReservationDTO struct {
	ID              string `json:"id"`
	UserID          string `json:"user_id"`
	MenuID          string `json:"menu_id"`
	MenuVariationID string `json:"menu_variation_id"`
	ReservationDate string `json:"reservation_date"`
	Status          string `json:"status"`
	IsAutoGenerated bool   `json:"is_auto_generated"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// CreateReservationRequest is the body of POST /api/reservations.
type CreateReservationRequest struct {
	UserID          string `json:"user_id"`
	MenuID          string `json:"menu_id"`
	MenuVariationID string `json:"menu_variation_id"`
	ReservationDate string `json:"reservation_date"`
}

// UpdateReservationRequest is the body of PUT /api/reservations/{id}.
type UpdateReservationRequest struct {
	MenuVariationID *string `json:"menu_variation_id"`
}

// ChangeVariationRequest is the body of PUT /api/admin/reservations/{id}/variation.
type ChangeVariationRequest struct {
	MenuVariationID string `json:"menu_variation_id"`
}

func toReservationDTO(r *reservation.Reservation) ReservationDTO {
	return ReservationDTO{
		ID:              r.ID,
		UserID:          r.UserID,
		MenuID:          r.MenuID,
		MenuVariationID: r.MenuVariationID,
		ReservationDate: reservation.FormatDate(r.ReservationDate),
		Status:          string(r.Status),
		IsAutoGenerated: r.IsAutoGenerated,
		CreatedAt:       r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       r.UpdatedAt.Format(time.RFC3339),
	}
}

func toReservationDTOs(rs []reservation.Reservation) []ReservationDTO {
	out := make([]ReservationDTO, len(rs))
	for i := range rs {
		out[i] = toReservationDTO(&rs[i])
	}
	return out
}

// =============================================================================
// CATALOG
// =============================================================================

// UserDTO represents a cafeteria user.
type UserDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Document string `json:"document,omitempty"`
	Status   string `json:"status"`
	UserType string `json:"user_type"`
}

// CreateUserRequest is the body of POST /api/users.
type CreateUserRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Document string `json:"document"`
	Status   string `json:"status"`
	UserType string `json:"user_type"`
}

func toUserDTO(u reservation.User) UserDTO {
	return UserDTO{
		ID:       u.ID,
		Name:     u.Name,
		Document: u.Document,
		Status:   string(u.Status),
		UserType: string(u.UserType),
	}
}

// MenuDTO represents a menu. Collections are omitted by the plain lookups.
type MenuDTO struct {
	ID           string           `json:"id"`
	Date         string           `json:"date"`
	DayOfWeek    string           `json:"day_of_week"`
	ISOWeek      int              `json:"iso_week"`
	IsActive     bool             `json:"is_active"`
	Compositions []CompositionDTO `json:"compositions,omitempty"`
	Variations   []VariationDTO   `json:"variations,omitempty"`
}

type CompositionDTO struct {
	ID                   string `json:"id"`
	MenuItemID           string `json:"menu_item_id"`
	IsMainProtein        bool   `json:"is_main_protein"`
	IsAlternativeProtein bool   `json:"is_alternative_protein"`
}

type VariationDTO struct {
	ID            string `json:"id"`
	VariationType string `json:"variation_type"`
	ProteinItemID string `json:"protein_item_id,omitempty"`
	IsDefault     bool   `json:"is_default"`
}

func toMenuDTO(m *reservation.Menu) MenuDTO {
	dto := MenuDTO{
		ID:        m.ID,
		Date:      reservation.FormatDate(m.Date),
		DayOfWeek: m.DayOfWeek.String(),
		ISOWeek:   m.ISOWeek,
		IsActive:  m.IsActive,
	}
	for _, c := range m.Compositions {
		dto.Compositions = append(dto.Compositions, CompositionDTO{
			ID:                   c.ID,
			MenuItemID:           c.MenuItemID,
			IsMainProtein:        c.IsMainProtein,
			IsAlternativeProtein: c.IsAlternativeProtein,
		})
	}
	for _, v := range m.Variations {
		dto.Variations = append(dto.Variations, VariationDTO{
			ID:            v.ID,
			VariationType: string(v.VariationType),
			ProteinItemID: v.ProteinItemID,
			IsDefault:     v.IsDefault,
		})
	}
	return dto
}

// =============================================================================
// AUTO-RESERVATION / SCHEDULER
// =============================================================================

// BatchResultDTO is the manifest of one batch.
type BatchResultDTO struct {
	Date                   string          `json:"date"`
	TotalUsers             int             `json:"total_users"`
	SuccessfulReservations int             `json:"successful_reservations"`
	FailedReservations     int             `json:"failed_reservations"`
	SkippedReservations    int             `json:"skipped_reservations"`
	ProcessedAt            string          `json:"processed_at"`
	Results                []UserResultDTO `json:"results"`
	Errors                 []UserErrorDTO  `json:"errors"`
}

type UserResultDTO struct {
	UserID          string `json:"user_id"`
	Outcome         string `json:"outcome"`
	ReservationID   string `json:"reservation_id,omitempty"`
	MenuVariationID string `json:"menu_variation_id,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

type UserErrorDTO struct {
	UserID     string `json:"user_id"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

func toBatchResultDTO(r *autoreservation.BatchResult) *BatchResultDTO {
	if r == nil {
		return nil
	}
	dto := &BatchResultDTO{
		Date:                   reservation.FormatDate(r.Date),
		TotalUsers:             r.TotalUsers,
		SuccessfulReservations: r.SuccessfulReservations,
		FailedReservations:     r.FailedReservations,
		SkippedReservations:    r.SkippedReservations,
		ProcessedAt:            r.ProcessedAt.Format(time.RFC3339),
		Results:                make([]UserResultDTO, len(r.Results)),
		Errors:                 make([]UserErrorDTO, len(r.Errors)),
	}
	for i, u := range r.Results {
		dto.Results[i] = UserResultDTO{
			UserID:          u.UserID,
			Outcome:         string(u.Outcome),
			ReservationID:   u.ReservationID,
			MenuVariationID: u.MenuVariationID,
			Reason:          u.Reason,
		}
	}
	for i, e := range r.Errors {
		dto.Errors[i] = UserErrorDTO{UserID: e.UserID, Message: e.Message, StatusCode: e.StatusCode}
	}
	return dto
}

// SchedulerConfigDTO is the scheduler configuration on the wire.
type SchedulerConfigDTO struct {
	Enabled              bool  `json:"enabled"`
	DailyExecutionHour   int   `json:"daily_execution_hour"`
	DailyExecutionMinute int   `json:"daily_execution_minute"`
	RetryAttempts        int   `json:"retry_attempts"`
	RetryDelayMs         int64 `json:"retry_delay_ms"`
}

// UpdateSchedulerConfigRequest is a partial configuration.
type UpdateSchedulerConfigRequest struct {
	Enabled              *bool  `json:"enabled"`
	DailyExecutionHour   *int   `json:"daily_execution_hour"`
	DailyExecutionMinute *int   `json:"daily_execution_minute"`
	RetryAttempts        *int   `json:"retry_attempts"`
	RetryDelayMs         *int64 `json:"retry_delay_ms"`
}

// maxRetryDelayMs keeps retry_delay_ms within a day, far below the point
// where the conversion to time.Duration would overflow.
const maxRetryDelayMs = int64(24 * time.Hour / time.Millisecond)

func (req UpdateSchedulerConfigRequest) toUpdate() (scheduler.ConfigUpdate, error) {
	u := scheduler.ConfigUpdate{
		Enabled:              req.Enabled,
		DailyExecutionHour:   req.DailyExecutionHour,
		DailyExecutionMinute: req.DailyExecutionMinute,
		RetryAttempts:        req.RetryAttempts,
	}
	if req.RetryDelayMs != nil {
		ms := *req.RetryDelayMs
		if ms < 0 || ms > maxRetryDelayMs {
			return u, reservation.BusinessRule("retry_delay_ms must be between 0 and %d, got %d", maxRetryDelayMs, ms)
		}
		d := time.Duration(ms) * time.Millisecond
		u.RetryDelay = &d
	}
	return u, nil
}

func toSchedulerConfigDTO(c scheduler.Config) SchedulerConfigDTO {
	return SchedulerConfigDTO{
		Enabled:              c.Enabled,
		DailyExecutionHour:   c.DailyExecutionHour,
		DailyExecutionMinute: c.DailyExecutionMinute,
		RetryAttempts:        c.RetryAttempts,
		RetryDelayMs:         c.RetryDelay.Milliseconds(),
	}
}

// SchedulerStatusDTO is GET /api/admin/scheduler/status.
type SchedulerStatusDTO struct {
	IsRunning           bool               `json:"is_running"`
	Config              SchedulerConfigDTO `json:"config"`
	LastExecution       *string            `json:"last_execution"`
	NextExecution       *string            `json:"next_execution"`
	LastResult          *BatchResultDTO    `json:"last_result"`
	LastError           string             `json:"last_error,omitempty"`
	ConsecutiveFailures int                `json:"consecutive_failures"`
	TotalExecutions     int                `json:"total_executions"`
}

func toSchedulerStatusDTO(s scheduler.Status) SchedulerStatusDTO {
	return SchedulerStatusDTO{
		IsRunning:           s.IsRunning,
		Config:              toSchedulerConfigDTO(s.Config),
		LastExecution:       timePtr(s.LastExecution),
		NextExecution:       timePtr(s.NextExecution),
		LastResult:          toBatchResultDTO(s.LastResult),
		LastError:           s.LastError,
		ConsecutiveFailures: s.ConsecutiveFailures,
		TotalExecutions:     s.TotalExecutions,
	}
}

// SchedulerHealthDTO is GET /api/admin/scheduler/health.
type SchedulerHealthDTO struct {
	Healthy             bool    `json:"healthy"`
	IsRunning           bool    `json:"is_running"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	LastExecution       *string `json:"last_execution"`
	NextExecution       *string `json:"next_execution"`
	LastError           string  `json:"last_error,omitempty"`
	BreakerState        string  `json:"breaker_state"`
	Message             string  `json:"message"`
}

func toSchedulerHealthDTO(h scheduler.HealthInfo) SchedulerHealthDTO {
	return SchedulerHealthDTO{
		Healthy:             h.Healthy,
		IsRunning:           h.IsRunning,
		ConsecutiveFailures: h.ConsecutiveFailures,
		LastExecution:       timePtr(h.LastExecution),
		NextExecution:       timePtr(h.NextExecution),
		LastError:           h.LastError,
		BreakerState:        h.BreakerState,
		Message:             h.Message,
	}
}

// DateRequest is the body of POST /api/admin/scheduler/dates.
type DateRequest struct {
	Date string `json:"date"`
}

// DateRangeRequest is the body of POST /api/admin/scheduler/range.
type DateRangeRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// =============================================================================
// MISC
// =============================================================================

// ScenarioDTO describes a demo data set.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func timePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
