/*
handlers.go - HTTP API handlers for the cafeteria reservation engine

PURPOSE:
  Exposes reservation admission, the menu/user catalog and the
  auto-reservation scheduler via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the domain packages.

ENDPOINTS:
  Reservations:
    POST   /api/reservations                    Create reservation
    GET    /api/reservations?from=&to=          Reservations in a date range
    GET    /api/reservations/{id}               Get reservation
    PUT    /api/reservations/{id}               Change variation
    POST   /api/reservations/{id}/cancel        Cancel (cutoff applies)
    POST   /api/reservations/{id}/reactivate    Reactivate (cutoff applies)

  Catalog:
    GET    /api/users?status=&type=             List users
    POST   /api/users                           Create or replace user
    GET    /api/users/{id}                      Get user
    GET    /api/users/{id}/reservations         Reservation history
    POST   /api/menus                           Publish menu from JSON
    GET    /api/menus?date=                     Menu of a date
    GET    /api/menus/{id}                      Menu with composition

  Admin:
    POST   /api/admin/reservations/{id}/cancel      Cancel, no cutoff
    POST   /api/admin/reservations/{id}/reactivate  Reactivate, no cutoff
    PUT    /api/admin/reservations/{id}/variation   Change variation (cutoff applies)
    /api/admin/scheduler/*                          See scheduler.go

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Reservations: Admission service (reads users and menus through it)
  - Catalog: Writes users and menus
  - Scheduler: Auto-reservation scheduler, optional
  - MenuFactory: JSON to Menu conversion

ERROR HANDLING:
  Domain errors carry their kind; reservation.StatusCode maps them:
  - 400: Business rule violations, invalid input
  - 404: Resource not found
  - 409: Conflict (second active reservation for a user and date)
  - 500: Store or collaborator failures

SECURITY NOTE:
  No authentication. The admin routes skip the cutoff and must sit behind
  an authenticating proxy in production.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/warp/cafeteria-engine/factory"
	"github.com/warp/cafeteria-engine/reservation"
	"github.com/warp/cafeteria-engine/scheduler"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger is implemented by stores that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Reservations *reservation.Service
	Catalog      reservation.CatalogWriter
	Scheduler    *scheduler.Scheduler // nil disables /api/admin/scheduler
	MenuFactory  *factory.MenuFactory
	DB           Pinger // optional, checked by /healthz

	// Location anchors the calendar dates parsed from requests.
	Location *time.Location

	logger *slog.Logger

	scenarioMu      sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. Users and menus are read through the
// service's repositories so the menu cache applies to the API too.
func NewHandler(svc *reservation.Service, catalog reservation.CatalogWriter, sched *scheduler.Scheduler, loc *time.Location, logger *slog.Logger) *Handler {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Reservations: svc,
		Catalog:      catalog,
		Scheduler:    sched,
		MenuFactory:  factory.NewMenuFactory(loc),
		Location:     loc,
		logger:       logger,
	}
}

// =============================================================================
// RESERVATION HANDLERS
// =============================================================================

// CreateReservation admits a new reservation.
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req CreateReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" || req.MenuID == "" || req.MenuVariationID == "" {
		writeError(w, http.StatusBadRequest, "user_id, menu_id and menu_variation_id are required", nil)
		return
	}
	date, err := h.parseDate(req.ReservationDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid reservation_date format (use YYYY-MM-DD)", err)
		return
	}

	res, err := h.Reservations.Create(r.Context(), reservation.CreateRequest{
		UserID:          req.UserID,
		MenuID:          req.MenuID,
		MenuVariationID: req.MenuVariationID,
		ReservationDate: date,
	})
	if err != nil {
		writeDomainError(w, "Failed to create reservation", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationDTO(res))
}

// ListReservations returns reservations in [from, to], optionally for one user.
func (h *Handler) ListReservations(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.dateRange(w, r)
	if !ok {
		return
	}

	var (
		list []reservation.Reservation
		err  error
	)
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		list, err = h.Reservations.FindByUserAndDateRange(r.Context(), userID, from, to)
	} else {
		list, err = h.Reservations.FindByDateRange(r.Context(), from, to)
	}
	if err != nil {
		writeDomainError(w, "Failed to list reservations", err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTOs(list))
}

// GetReservation returns a single reservation.
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.Reservations.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get reservation", err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(res))
}

// UpdateReservation changes the variation of a modifiable reservation.
func (h *Handler) UpdateReservation(w http.ResponseWriter, r *http.Request) {
	var req UpdateReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Reservations.Update(r.Context(), chi.URLParam(r, "id"), reservation.UpdateRequest{
		MenuVariationID: req.MenuVariationID,
	})
	if err != nil {
		writeDomainError(w, "Failed to update reservation", err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(res))
}

// CancelReservation cancels a reservation before the cutoff.
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Failed to cancel reservation", h.Reservations.Cancel)
}

// ReactivateReservation reactivates a cancelled reservation before the cutoff.
func (h *Handler) ReactivateReservation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Failed to reactivate reservation", h.Reservations.Reactivate)
}

// =============================================================================
// ADMIN RESERVATION HANDLERS
// =============================================================================

func (h *Handler) AdminCancelReservation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Failed to cancel reservation", h.Reservations.AdminCancel)
}

func (h *Handler) AdminReactivateReservation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Failed to reactivate reservation", h.Reservations.AdminReactivate)
}

// AdminChangeVariation switches a modifiable reservation to another
// variation of its menu. Unlike cancel and reactivate it does not bypass the
// cutoff.
func (h *Handler) AdminChangeVariation(w http.ResponseWriter, r *http.Request) {
	var req ChangeVariationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.MenuVariationID == "" {
		writeError(w, http.StatusBadRequest, "menu_variation_id is required", nil)
		return
	}

	res, err := h.Reservations.ChangeMenuVariation(r.Context(), chi.URLParam(r, "id"), req.MenuVariationID)
	if err != nil {
		writeDomainError(w, "Failed to change variation", err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(res))
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, message string,
	op func(ctx context.Context, id string) (*reservation.Reservation, error)) {
	res, err := op(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, message, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(res))
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUsers lists users by status and type, ATIVO and FIXO by default.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	status := reservation.UserStatus(strings.ToUpper(r.URL.Query().Get("status")))
	if status == "" {
		status = reservation.UserActive
	}
	userType := reservation.UserType(strings.ToUpper(r.URL.Query().Get("type")))
	if userType == "" {
		userType = reservation.UserFixed
	}
	if err := validateUser(status, userType); err != nil {
		writeDomainError(w, "Invalid filter", err)
		return
	}

	users, err := h.Reservations.Users.FindUsersByStatusAndType(r.Context(), status, userType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users", err)
		return
	}

	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetUser returns a single user.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Reservations.Users.FindUserByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get user", err)
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "User not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*u))
}

// CreateUser creates or replaces a user.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	u := reservation.User{
		ID:       req.ID,
		Name:     req.Name,
		Document: req.Document,
		Status:   reservation.UserStatus(strings.ToUpper(req.Status)),
		UserType: reservation.UserType(strings.ToUpper(req.UserType)),
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Status == "" {
		u.Status = reservation.UserActive
	}
	if u.UserType == "" {
		u.UserType = reservation.UserFixed
	}
	if err := validateUser(u.Status, u.UserType); err != nil {
		writeDomainError(w, "Invalid user", err)
		return
	}

	if err := h.Catalog.SaveUser(r.Context(), u); err != nil {
		writeDomainError(w, "Failed to create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(u))
}

// GetUserReservations returns a user's history, restricted to [from, to]
// when both are given.
func (h *Handler) GetUserReservations(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	var (
		list []reservation.Reservation
		err  error
	)
	q := r.URL.Query()
	if q.Get("from") != "" || q.Get("to") != "" {
		from, to, ok := h.dateRange(w, r)
		if !ok {
			return
		}
		list, err = h.Reservations.FindByUserAndDateRange(r.Context(), userID, from, to)
	} else {
		list, err = h.Reservations.FindByUser(r.Context(), userID)
	}
	if err != nil {
		writeDomainError(w, "Failed to list reservations", err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTOs(list))
}

func validateUser(status reservation.UserStatus, userType reservation.UserType) error {
	switch status {
	case reservation.UserActive, reservation.UserInactive:
	default:
		return reservation.BusinessRule("unknown user status %q", status)
	}
	switch userType {
	case reservation.UserFixed, reservation.UserNonFixed:
	default:
		return reservation.BusinessRule("unknown user type %q", userType)
	}
	return nil
}

// =============================================================================
// MENU HANDLERS
// =============================================================================

// CreateMenu publishes a menu from its JSON definition.
func (h *Handler) CreateMenu(w http.ResponseWriter, r *http.Request) {
	var mj factory.MenuJSON
	if err := json.NewDecoder(r.Body).Decode(&mj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	menu, err := h.MenuFactory.BuildMenu(mj)
	if err != nil {
		writeDomainError(w, "Invalid menu", err)
		return
	}
	if err := h.Catalog.SaveMenu(r.Context(), *menu); err != nil {
		writeDomainError(w, "Failed to save menu", err)
		return
	}

	h.logger.Info("menu published", "menu_id", menu.ID, "date", reservation.FormatDate(menu.Date))
	writeJSON(w, http.StatusCreated, toMenuDTO(menu))
}

// GetMenuByDate returns the menu of ?date=YYYY-MM-DD.
func (h *Handler) GetMenuByDate(w http.ResponseWriter, r *http.Request) {
	date, err := h.parseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	menu, err := h.Reservations.Menus.FindMenuByDate(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get menu", err)
		return
	}
	if menu == nil {
		writeError(w, http.StatusNotFound, "No menu for "+reservation.FormatDate(date), nil)
		return
	}
	writeJSON(w, http.StatusOK, toMenuDTO(menu))
}

// GetMenu returns a menu with its compositions and variations.
func (h *Handler) GetMenu(w http.ResponseWriter, r *http.Request) {
	menu, err := h.Reservations.Menus.FindMenuWithComposition(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get menu", err)
		return
	}
	if menu == nil {
		writeError(w, http.StatusNotFound, "Menu not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toMenuDTO(menu))
}

// =============================================================================
// HEALTH
// =============================================================================

// Healthz reports liveness and, when a store is attached, its reachability.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Database unreachable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("date is required")
	}
	return reservation.ParseDate(s, h.Location)
}

// dateRange reads ?from=&to=. On failure it has already written the reply.
func (h *Handler) dateRange(w http.ResponseWriter, r *http.Request) (from, to time.Time, ok bool) {
	q := r.URL.Query()
	from, err := h.parseDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return from, to, false
	}
	to, err = h.parseDate(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return from, to, false
	}
	return from, to, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError picks the status from the error kind. Client errors
// carry the domain message, which is written for end users.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	status := reservation.StatusCode(err)
	var de *reservation.Error
	if status < http.StatusInternalServerError && errors.As(err, &de) {
		message = de.Message
	}
	writeError(w, status, message, err)
}
