/*
scheduler.go - Admin endpoints for the auto-reservation scheduler

PURPOSE:
  Lets operators inspect the daily auto-reservation scheduler, switch it on
  and off, change its configuration and trigger batches by hand.

ENDPOINTS:
  GET    /api/admin/scheduler/status    Config, last result, counters
  GET    /api/admin/scheduler/health    Health summary, 503 when unhealthy
  POST   /api/admin/scheduler/start     Start the daily loop
  POST   /api/admin/scheduler/stop      Stop the daily loop
  POST   /api/admin/scheduler/execute   Run the scheduled batch now
  POST   /api/admin/scheduler/retry     Re-run the failed users of the last batch
  POST   /api/admin/scheduler/dates     {"date": "2025-03-10"}
  POST   /api/admin/scheduler/range     {"start_date": ..., "end_date": ...}
  PUT    /api/admin/scheduler/config    Partial configuration

Manual triggers return the batch manifest. A batch that ran but had per-user
failures is still a 200; only a failed execution is an error.

SEE ALSO:
  - scheduler/scheduler.go: Loop, retry envelope, health
  - autoreservation/batch.go: The batch itself
*/
package api

import (
	"encoding/json"
	"net/http"

	"github.com/warp/cafeteria-engine/reservation"
)

// requireScheduler writes 503 when no scheduler is wired.
func (h *Handler) requireScheduler(w http.ResponseWriter) bool {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Auto-reservation scheduler is not configured", nil)
		return false
	}
	return true
}

// GetSchedulerStatus returns the scheduler status.
func (h *Handler) GetSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if !h.requireScheduler(w) {
		return
	}
	writeJSON(w, http.StatusOK, toSchedulerStatusDTO(h.Scheduler.Status()))
}

// GetSchedulerHealth returns the health summary.
func (h *Handler) GetSchedulerHealth(w http.ResponseWriter, r *http.Request) {
	if !h.requireScheduler(w) {
		return
	}
	health := h.Scheduler.Health()
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, toSchedulerHealthDTO(health))
}

// StartScheduler starts the daily loop.
func (h *Handler) StartScheduler(w http.ResponseWriter, r *http.Request) {
	if !h.requireScheduler(w) {
		return
	}
	if err := h.Scheduler.Start(); err != nil {
		writeDomainError(w, "Failed to start scheduler", err)
		return
	}
	h.logger.Info("auto-reservation scheduler started via API")
	writeJSON(w, http.StatusOK, toSchedulerStatusDTO(h.Scheduler.Status()))
}

// StopScheduler stops the daily loop.
func (h *Handler) StopScheduler(w http.ResponseWriter, r *http.Request) {
	if !h.requireScheduler(w) {
		return
	}
	h.Scheduler.Stop()
	h.logger.Info("auto-reservation scheduler stopped via API")
	writeJSON(w, http.StatusOK, toSchedulerStatusDTO(h.Scheduler.Status()))
}

// ExecuteScheduler runs the scheduled batch immediately.
func (h *Handler) ExecuteScheduler(w http.ResponseWriter, r *http.Request) {
	if !h.requireScheduler(w) {
		return
	}
	result, err := h.Scheduler.ExecuteNow(r.Context())
	if err != nil {
		writeDomainError(w, "Auto-reservation execution failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResultDTO(result))
}

// RetryScheduler re-attempts the users that failed in the last batch.
func (h *Handler) RetryScheduler(w http.ResponseWriter, r *http.Request) {
	if !h.requireScheduler(w) {
		return
	}
	result, err := h.Scheduler.RetryLastFailedReservations(r.Context())
	if err != nil {
		writeDomainError(w, "Retry failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResultDTO(result))
}

// CreateReservationsForDate runs the batch for one date.
func (h *Handler) CreateReservationsForDate(w http.ResponseWriter, r *http.Request) {
	if !h.requireScheduler(w) {
		return
	}
	var req DateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := h.parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	result, err := h.Scheduler.CreateReservationsForDate(r.Context(), date)
	if err != nil {
		writeDomainError(w, "Auto-reservation failed for "+reservation.FormatDate(date), err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResultDTO(result))
}

// CreateReservationsForRange runs the batch for every date in a range.
func (h *Handler) CreateReservationsForRange(w http.ResponseWriter, r *http.Request) {
	if !h.requireScheduler(w) {
		return
	}
	var req DateRangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := h.parseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}
	end, err := h.parseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
		return
	}

	results, err := h.Scheduler.CreateReservationsForDateRange(r.Context(), start, end)
	if err != nil {
		writeDomainError(w, "Auto-reservation failed for range", err)
		return
	}
	dtos := make([]*BatchResultDTO, len(results))
	for i, res := range results {
		dtos[i] = toBatchResultDTO(res)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpdateSchedulerConfig applies a partial configuration. A running
// scheduler restarts with the new schedule.
func (h *Handler) UpdateSchedulerConfig(w http.ResponseWriter, r *http.Request) {
	if !h.requireScheduler(w) {
		return
	}
	var req UpdateSchedulerConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	update, err := req.toUpdate()
	if err != nil {
		writeDomainError(w, "Invalid scheduler configuration", err)
		return
	}
	cfg, err := h.Scheduler.UpdateConfig(update)
	if err != nil {
		writeDomainError(w, "Invalid scheduler configuration", err)
		return
	}
	h.logger.Info("auto-reservation scheduler reconfigured",
		"enabled", cfg.Enabled,
		"hour", cfg.DailyExecutionHour,
		"minute", cfg.DailyExecutionMinute)
	writeJSON(w, http.StatusOK, toSchedulerConfigDTO(cfg))
}
