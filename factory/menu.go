/*
Package factory converts JSON menu definitions into reservation.Menu.

PURPOSE:
  Menus are published by the kitchen, not by developers. The catalog
  endpoint and the demo seed accept this JSON and the factory produces a
  validated menu whose variations are bound to it.

JSON SCHEMA:
  {
    "id": "menu-2025-03-10",
    "date": "2025-03-10",
    "is_active": true,
    "compositions": [
      {"menu_item_id": "grilled-chicken", "is_main_protein": true},
      {"menu_item_id": "omelette", "is_alternative_protein": true},
      {"menu_item_id": "rice"}
    ],
    "variations": [
      {"variation_type": "STANDARD", "protein_item_id": "grilled-chicken", "is_default": true},
      {"variation_type": "EGG_SUBSTITUTE", "protein_item_id": "omelette"}
    ]
  }

RULES:
  - date is required (YYYY-MM-DD); day of week and ISO week derive from it
  - is_active defaults to true
  - exactly one variation is the default
  - variation types are STANDARD, EGG_SUBSTITUTE or VEGETARIAN, each at
    most once
  - a variation's protein_item_id must be one of the composition items
  - missing ids are derived from the menu id

USAGE:
  f := factory.NewMenuFactory(time.Local)
  menu, err := f.ParseMenu(jsonString)

SEE ALSO:
  - reservation/variation.go: Variation/menu binding at reservation time
  - api/scenarios.go: Demo menus built through this factory
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/warp/cafeteria-engine/reservation"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// MenuJSON is the JSON representation of a menu.
type MenuJSON struct {
	ID           string            `json:"id,omitempty"`
	Date         string            `json:"date"`
	IsActive     *bool             `json:"is_active,omitempty"`
	Compositions []CompositionJSON `json:"compositions,omitempty"`
	Variations   []VariationJSON   `json:"variations"`
}

// CompositionJSON is one item of a menu.
type CompositionJSON struct {
	ID                   string `json:"id,omitempty"`
	MenuItemID           string `json:"menu_item_id"`
	IsMainProtein        bool   `json:"is_main_protein,omitempty"`
	IsAlternativeProtein bool   `json:"is_alternative_protein,omitempty"`
}

// VariationJSON is one protein option of a menu.
type VariationJSON struct {
	ID            string `json:"id,omitempty"`
	VariationType string `json:"variation_type"`
	ProteinItemID string `json:"protein_item_id,omitempty"`
	IsDefault     bool   `json:"is_default,omitempty"`
}

// =============================================================================
// FACTORY
// =============================================================================

// MenuFactory builds menus.
type MenuFactory struct {
	// Location is where menu dates are anchored.
	Location *time.Location
	// NewID generates a menu id when the JSON has none.
	NewID func() string
}

func NewMenuFactory(loc *time.Location) *MenuFactory {
	if loc == nil {
		loc = time.Local
	}
	return &MenuFactory{
		Location: loc,
		NewID:    func() string { return "menu-" + uuid.NewString() },
	}
}

// ParseMenu decodes and builds a menu from JSON text.
func (f *MenuFactory) ParseMenu(data string) (*reservation.Menu, error) {
	var mj MenuJSON
	if err := json.Unmarshal([]byte(data), &mj); err != nil {
		return nil, reservation.BusinessRule("invalid menu JSON: %v", err)
	}
	return f.BuildMenu(mj)
}

// BuildMenu validates mj and converts it.
func (f *MenuFactory) BuildMenu(mj MenuJSON) (*reservation.Menu, error) {
	if strings.TrimSpace(mj.Date) == "" {
		return nil, reservation.BusinessRule("menu date is required")
	}
	date, err := reservation.ParseDate(mj.Date, f.Location)
	if err != nil {
		return nil, reservation.BusinessRule("invalid menu date %q, want YYYY-MM-DD", mj.Date)
	}

	id := mj.ID
	if id == "" {
		id = f.NewID()
	}
	active := true
	if mj.IsActive != nil {
		active = *mj.IsActive
	}
	_, week := date.ISOWeek()

	menu := &reservation.Menu{
		ID:        id,
		Date:      date,
		DayOfWeek: date.Weekday(),
		ISOWeek:   week,
		IsActive:  active,
	}

	items := make(map[string]bool, len(mj.Compositions))
	for i, cj := range mj.Compositions {
		if cj.MenuItemID == "" {
			return nil, reservation.BusinessRule("composition %d has no menu_item_id", i)
		}
		cid := cj.ID
		if cid == "" {
			cid = fmt.Sprintf("%s-item-%d", id, i+1)
		}
		items[cj.MenuItemID] = true
		menu.Compositions = append(menu.Compositions, reservation.MenuComposition{
			ID:                   cid,
			MenuID:               id,
			MenuItemID:           cj.MenuItemID,
			IsMainProtein:        cj.IsMainProtein,
			IsAlternativeProtein: cj.IsAlternativeProtein,
		})
	}

	if len(mj.Variations) == 0 {
		return nil, reservation.BusinessRule("menu %s needs at least one variation", id)
	}
	seen := make(map[reservation.VariationType]bool)
	defaults := 0
	for _, vj := range mj.Variations {
		vt, err := parseVariationType(vj.VariationType)
		if err != nil {
			return nil, err
		}
		if seen[vt] {
			return nil, reservation.BusinessRule("menu %s has variation %s twice", id, vt)
		}
		seen[vt] = true

		if vj.ProteinItemID != "" && len(items) > 0 && !items[vj.ProteinItemID] {
			return nil, reservation.BusinessRule("variation %s uses %s which is not on menu %s", vt, vj.ProteinItemID, id)
		}
		if vj.IsDefault {
			defaults++
		}

		vid := vj.ID
		if vid == "" {
			vid = id + "-" + strings.ToLower(strings.ReplaceAll(string(vt), "_", "-"))
		}
		menu.Variations = append(menu.Variations, reservation.MenuVariation{
			ID:            vid,
			MenuID:        id,
			VariationType: vt,
			ProteinItemID: vj.ProteinItemID,
			IsDefault:     vj.IsDefault,
		})
	}
	if defaults != 1 {
		return nil, reservation.BusinessRule("menu %s must have exactly one default variation, has %d", id, defaults)
	}

	return menu, nil
}

func parseVariationType(s string) (reservation.VariationType, error) {
	switch vt := reservation.VariationType(strings.ToUpper(strings.TrimSpace(s))); vt {
	case reservation.VariationStandard, reservation.VariationEggSubstitute, reservation.VariationVegetarian:
		return vt, nil
	default:
		return "", reservation.BusinessRule("unknown variation type %q", s)
	}
}
