/*
scenarios_test.go - Demo scenarios against the SQLite store

PURPOSE:
	Loads each scenario into an in-memory SQLite database and runs the
	auto-reservation batch over it, so the scenarios double as integration
	tests of catalog, admission and batch on the real schema.
*/
package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/cafeteria-engine/autoreservation"
	"github.com/warp/cafeteria-engine/reservation"
	"github.com/warp/cafeteria-engine/scheduler"
	"github.com/warp/cafeteria-engine/store/sqlite"
)

func setupScenarioHandler(t *testing.T, now time.Time) *Handler {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := func() time.Time { return now }
	svc := reservation.NewService(db, db, db, nil)
	svc.Now = clock
	proc := autoreservation.NewProcessor(db, db, db, svc, nil)
	proc.Now = clock

	cfg := scheduler.DefaultConfig()
	cfg.Enabled = false
	cfg.RetryDelay = time.Millisecond
	sched := scheduler.New(proc, cfg, nil)
	sched.Now = clock

	h := NewHandler(svc, db, sched, time.UTC, nil)
	h.DB = db
	return h
}

func loadScenario(t *testing.T, h *Handler, id string) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/scenarios/load", strings.NewReader(`{"scenario_id": "`+id+`"}`))
	h.LoadScenario(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestDemoWeekScenario(t *testing.T) {
	// GIVEN: Sunday 2025-03-16, so the current week started on the 10th
	now := time.Date(2025, time.March, 16, 10, 0, 0, 0, time.UTC)
	h := setupScenarioHandler(t, now)
	ctx := context.Background()

	// WHEN: the demo week is loaded and the batch runs for Monday the 17th
	loadScenario(t, h, "demo-week")
	result, err := h.Scheduler.CreateReservationsForDate(ctx, time.Date(2025, time.March, 17, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// THEN: only the three fixed, active users are reserved, on the default
	assert.Equal(t, 3, result.TotalUsers)
	assert.Equal(t, 3, result.SuccessfulReservations)
	assert.False(t, result.HasFailures())
	for _, r := range result.Results {
		assert.Equal(t, "menu-2025-03-17-standard", r.MenuVariationID)
	}

	// Menus cover both weeks, weekdays only
	for _, day := range []string{"2025-03-10", "2025-03-14", "2025-03-21"} {
		date, _ := reservation.ParseDate(day, time.UTC)
		menu, err := h.Reservations.Menus.FindMenuByDate(ctx, date)
		require.NoError(t, err)
		require.NotNil(t, menu, day)
		assert.Equal(t, "menu-"+day, menu.ID)
	}
	saturday := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)
	menu, err := h.Reservations.Menus.FindMenuByDate(ctx, saturday)
	require.NoError(t, err)
	assert.Nil(t, menu)

	// Each menu rotates its main protein and offers every variation
	full, err := h.Reservations.Menus.FindMenuWithComposition(ctx, "menu-2025-03-18")
	require.NoError(t, err)
	require.NotNil(t, full)
	assert.Len(t, full.Variations, 3)
	def, err := reservation.DefaultVariation(full)
	require.NoError(t, err)
	assert.Equal(t, "beef-stew", def.ProteinItemID)
}

func TestMenuGapScenario_RetryAfterMenuPublished(t *testing.T) {
	// GIVEN: Monday 2025-03-17 with menus only until Wednesday
	now := time.Date(2025, time.March, 17, 7, 0, 0, 0, time.UTC)
	h := setupScenarioHandler(t, now)
	ctx := context.Background()
	loadScenario(t, h, "menu-gap")
	thursday := time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC)

	// WHEN: the batch runs for Thursday
	result, err := h.Scheduler.CreateReservationsForDate(ctx, thursday)

	// THEN: the batch itself succeeds but every user fails
	require.NoError(t, err)
	assert.Equal(t, 3, result.FailedReservations)
	assert.ElementsMatch(t, []string{"user-ana", "user-bruno", "user-carla"}, result.FailedUserIDs())
	for _, e := range result.Errors {
		assert.Equal(t, http.StatusBadRequest, e.StatusCode)
	}

	// WHEN: the kitchen publishes Thursday's menu and the failures are retried
	menu, err := h.MenuFactory.ParseMenu(demoMenuJSON(thursday))
	require.NoError(t, err)
	require.NoError(t, h.Catalog.SaveMenu(ctx, *menu))

	retried, err := h.Scheduler.RetryLastFailedReservations(ctx)

	// THEN: everyone is reserved
	require.NoError(t, err)
	assert.Equal(t, 3, retried.TotalUsers)
	assert.Equal(t, 3, retried.SuccessfulReservations)
	assert.False(t, retried.HasFailures())

	status := h.Scheduler.Status()
	assert.Equal(t, 2, status.TotalExecutions)
	assert.Same(t, retried, status.LastResult)
}

func TestHealthz_PingsStore(t *testing.T) {
	h := setupScenarioHandler(t, time.Now())

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
