// Package store provides an in-memory reservation.Store.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/cafeteria-engine/reservation"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	users        map[string]reservation.User
	menus        map[string]reservation.Menu
	menuByDate   map[string]string // date -> menu id
	reservations map[string]reservation.Reservation
	active       map[activeKey]string // (user, date) -> ACTIVE reservation id
}

type activeKey struct {
	UserID string
	Date   string
}

var (
	_ reservation.Store         = (*Memory)(nil)
	_ reservation.CatalogWriter = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		users:        make(map[string]reservation.User),
		menus:        make(map[string]reservation.Menu),
		menuByDate:   make(map[string]string),
		reservations: make(map[string]reservation.Reservation),
		active:       make(map[activeKey]string),
	}
}

// =============================================================================
// CATALOG
// =============================================================================

func (m *Memory) SaveUser(_ context.Context, u reservation.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *Memory) SaveMenu(_ context.Context, menu reservation.Menu) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	date := reservation.FormatDate(menu.Date)
	if id, ok := m.menuByDate[date]; ok && id != menu.ID {
		return fmt.Errorf("menu for %s already exists: %w", date, reservation.ErrConflict)
	}
	for id, other := range m.menus {
		if id == menu.ID {
			continue
		}
		for _, v := range menu.Variations {
			if hasVariation(other, v.ID) {
				return fmt.Errorf("variation %s belongs to menu %s: %w", v.ID, id, reservation.ErrConflict)
			}
		}
	}
	if old, ok := m.menus[menu.ID]; ok {
		if err := reservation.CheckMenuRewrite(old.Date, m.referencedVariations(menu.ID), menu); err != nil {
			return err
		}
		delete(m.menuByDate, reservation.FormatDate(old.Date))
	}
	m.menus[menu.ID] = cloneMenu(menu)
	m.menuByDate[date] = menu.ID
	return nil
}

func hasVariation(menu reservation.Menu, id string) bool {
	for _, v := range menu.Variations {
		if v.ID == id {
			return true
		}
	}
	return false
}

// referencedVariations lists the variation ids reservations of menuID use.
func (m *Memory) referencedVariations(menuID string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range m.reservations {
		if r.MenuID == menuID && !seen[r.MenuVariationID] {
			seen[r.MenuVariationID] = true
			out = append(out, r.MenuVariationID)
		}
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) FindUserByID(_ context.Context, id string) (*reservation.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *Memory) FindUsersByStatusAndType(_ context.Context, status reservation.UserStatus, userType reservation.UserType) ([]reservation.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []reservation.User
	for _, u := range m.users {
		if u.Status == status && u.UserType == userType {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// MENUS
// =============================================================================

func (m *Memory) FindMenuByID(_ context.Context, id string) (*reservation.Menu, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	menu, ok := m.menus[id]
	if !ok {
		return nil, nil
	}
	menu.Compositions, menu.Variations = nil, nil
	return &menu, nil
}

func (m *Memory) FindMenuWithComposition(_ context.Context, id string) (*reservation.Menu, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	menu, ok := m.menus[id]
	if !ok {
		return nil, nil
	}
	menu = cloneMenu(menu)
	return &menu, nil
}

func (m *Memory) FindMenuByDate(ctx context.Context, date time.Time) (*reservation.Menu, error) {
	m.mu.RLock()
	id, ok := m.menuByDate[reservation.FormatDate(date)]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return m.FindMenuByID(ctx, id)
}

// =============================================================================
// RESERVATIONS
// =============================================================================

func (m *Memory) FindReservationByID(_ context.Context, id string) (*reservation.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reservations[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Memory) FindReservationByUserAndDate(_ context.Context, userID string, date time.Time) (*reservation.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if id, ok := m.active[activeKey{UserID: userID, Date: reservation.FormatDate(date)}]; ok {
		r := m.reservations[id]
		return &r, nil
	}

	var latest *reservation.Reservation
	for _, r := range m.reservations {
		if r.UserID != userID || !reservation.SameDate(r.ReservationDate, date) {
			continue
		}
		if latest == nil || r.UpdatedAt.After(latest.UpdatedAt) {
			r := r
			latest = &r
		}
	}
	return latest, nil
}

// CreateReservation inserts r. A second ACTIVE reservation for the same
// user and date is rejected with reservation.ErrConflict.
func (m *Memory) CreateReservation(_ context.Context, r reservation.Reservation) (*reservation.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.reservations[r.ID]; exists {
		return nil, fmt.Errorf("reservation %s already exists: %w", r.ID, reservation.ErrConflict)
	}
	key := activeKey{UserID: r.UserID, Date: reservation.FormatDate(r.ReservationDate)}
	if r.IsActive() {
		if _, taken := m.active[key]; taken {
			return nil, fmt.Errorf("active reservation for %s on %s: %w", r.UserID, key.Date, reservation.ErrConflict)
		}
		m.active[key] = r.ID
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	m.reservations[r.ID] = r
	return &r, nil
}

func (m *Memory) UpdateReservation(_ context.Context, id string, patch reservation.ReservationPatch) (*reservation.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[id]
	if !ok {
		return nil, fmt.Errorf("reservation %s: %w", id, reservation.ErrNotFound)
	}

	key := activeKey{UserID: r.UserID, Date: reservation.FormatDate(r.ReservationDate)}
	if patch.Status != nil && *patch.Status != r.Status {
		switch *patch.Status {
		case reservation.StatusActive:
			if holder, taken := m.active[key]; taken && holder != id {
				return nil, fmt.Errorf("active reservation for %s on %s: %w", r.UserID, key.Date, reservation.ErrConflict)
			}
			m.active[key] = id
		case reservation.StatusCancelled:
			if m.active[key] == id {
				delete(m.active, key)
			}
		}
		r.Status = *patch.Status
	}
	if patch.MenuVariationID != nil {
		r.MenuVariationID = *patch.MenuVariationID
	}
	r.UpdatedAt = patch.UpdatedAt
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now()
	}
	m.reservations[id] = r
	return &r, nil
}

func (m *Memory) ListReservationsByUser(_ context.Context, userID string) ([]reservation.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []reservation.Reservation
	for _, r := range m.reservations {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *Memory) ListReservationsInRange(_ context.Context, userID string, from, to time.Time) ([]reservation.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []reservation.Reservation
	for _, r := range m.reservations {
		if userID != "" && r.UserID != userID {
			continue
		}
		if reservation.CompareDates(r.ReservationDate, from) < 0 || reservation.CompareDates(r.ReservationDate, to) > 0 {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := reservation.CompareDates(out[i].ReservationDate, out[j].ReservationDate); c != 0 {
			return c < 0
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// Reset clears all data (for testing).
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = make(map[string]reservation.User)
	m.menus = make(map[string]reservation.Menu)
	m.menuByDate = make(map[string]string)
	m.reservations = make(map[string]reservation.Reservation)
	m.active = make(map[activeKey]string)
}

func sortNewestFirst(rs []reservation.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if c := reservation.CompareDates(rs[i].ReservationDate, rs[j].ReservationDate); c != 0 {
			return c > 0
		}
		return rs[i].CreatedAt.After(rs[j].CreatedAt)
	})
}

func cloneMenu(m reservation.Menu) reservation.Menu {
	m.Compositions = append([]reservation.MenuComposition(nil), m.Compositions...)
	m.Variations = append([]reservation.MenuVariation(nil), m.Variations...)
	return m
}
