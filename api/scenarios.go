/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Populates the catalog with users and menus so the reservation and
	auto-reservation flows can be tried without a kitchen back office.

AVAILABLE SCENARIOS:

	demo-week:  Staff of five (three fixed, one non-fixed, one inactive) and
	            menus for every weekday of this week and the next
	menu-gap:   Same staff, but menus only Monday to Wednesday, so the
	            batch fails for Thursday and Friday until menus exist

HOW SCENARIOS WORK:
 1. Save users (upsert by id)
 2. Build menus from JSON through the menu factory
 3. Save menus (upsert by id, one menu per date)

Reservations are never deleted, so loading a scenario does not reset
anything: it only adds or replaces catalog records. Menu ids are derived
from their date, which keeps reloading idempotent.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "demo-week"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

SEE ALSO:
  - handlers.go: Catalog endpoints
  - factory/menu.go: Menu JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/cafeteria-engine/reservation"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "demo-week",
		Name:        "Demo Week",
		Description: "Five users and weekday menus for this week and the next",
	},
	{
		ID:          "menu-gap",
		Name:        "Menu Gap",
		Description: "Menus only Monday to Wednesday; auto-reservation fails later in the week",
	},
}

var demoUsers = []reservation.User{
	{ID: "user-ana", Name: "Ana Souza", Document: "111.111.111-11", Status: reservation.UserActive, UserType: reservation.UserFixed},
	{ID: "user-bruno", Name: "Bruno Lima", Document: "222.222.222-22", Status: reservation.UserActive, UserType: reservation.UserFixed},
	{ID: "user-carla", Name: "Carla Dias", Document: "333.333.333-33", Status: reservation.UserActive, UserType: reservation.UserFixed},
	{ID: "user-diego", Name: "Diego Alves", Document: "444.444.444-44", Status: reservation.UserActive, UserType: reservation.UserNonFixed},
	{ID: "user-elisa", Name: "Elisa Rocha", Document: "555.555.555-55", Status: reservation.UserInactive, UserType: reservation.UserFixed},
}

// Main protein per weekday, Monday first.
var weekdayProteins = []string{"grilled-chicken", "beef-stew", "baked-fish", "pork-loin", "chicken-stroganoff"}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.Lock()
	current := h.currentScenario
	h.scenarioMu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	var err error
	switch req.ScenarioID {
	case "demo-week":
		err = h.loadDemoWeekScenario(ctx)
	case "menu-gap":
		err = h.loadMenuGapScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeDomainError(w, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.scenarioMu.Lock()
	h.currentScenario = req.ScenarioID
	h.scenarioMu.Unlock()

	h.logger.Info("scenario loaded", "scenario", req.ScenarioID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadDemoWeekScenario(ctx context.Context) error {
	if err := h.saveUsers(ctx); err != nil {
		return err
	}
	monday := h.currentMonday()
	for week := 0; week < 2; week++ {
		for day := 0; day < 5; day++ {
			if err := h.saveDemoMenu(ctx, reservation.AddDays(monday, week*7+day)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *Handler) loadMenuGapScenario(ctx context.Context) error {
	if err := h.saveUsers(ctx); err != nil {
		return err
	}
	monday := h.currentMonday()
	for day := 0; day < 3; day++ {
		if err := h.saveDemoMenu(ctx, reservation.AddDays(monday, day)); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) saveUsers(ctx context.Context) error {
	for _, u := range demoUsers {
		if err := h.Catalog.SaveUser(ctx, u); err != nil {
			return fmt.Errorf("failed to save user %s: %w", u.ID, err)
		}
	}
	return nil
}

func (h *Handler) saveDemoMenu(ctx context.Context, date time.Time) error {
	menu, err := h.MenuFactory.ParseMenu(demoMenuJSON(date))
	if err != nil {
		return err
	}
	if err := h.Catalog.SaveMenu(ctx, *menu); err != nil {
		return fmt.Errorf("failed to save menu %s: %w", menu.ID, err)
	}
	return nil
}

// demoMenuJSON builds a weekday menu with all three variations.
func demoMenuJSON(date time.Time) string {
	day := reservation.FormatDate(date)
	protein := weekdayProteins[(int(date.Weekday())+6)%7%len(weekdayProteins)]
	return fmt.Sprintf(`{
		"id": "menu-%[1]s",
		"date": "%[1]s",
		"compositions": [
			{"menu_item_id": "%[2]s", "is_main_protein": true},
			{"menu_item_id": "omelette", "is_alternative_protein": true},
			{"menu_item_id": "chickpea-curry", "is_alternative_protein": true},
			{"menu_item_id": "rice"},
			{"menu_item_id": "beans"},
			{"menu_item_id": "green-salad"}
		],
		"variations": [
			{"variation_type": "STANDARD", "protein_item_id": "%[2]s", "is_default": true},
			{"variation_type": "EGG_SUBSTITUTE", "protein_item_id": "omelette"},
			{"variation_type": "VEGETARIAN", "protein_item_id": "chickpea-curry"}
		]
	}`, day, protein)
}

// currentMonday is the Monday of the week containing today.
func (h *Handler) currentMonday() time.Time {
	now := time.Now()
	if h.Reservations != nil && h.Reservations.Now != nil {
		now = h.Reservations.Now()
	}
	today := reservation.DateOf(now.In(h.Location))
	offset := (int(today.Weekday()) + 6) % 7
	return reservation.AddDays(today, -offset)
}
