/*
store.go - Repository interfaces consumed by the admission service

PURPOSE:
  Defines the boundary between reservation rules and persistence. The
  service only reads users and menus; reservations are the only records it
  writes.

KEY INTERFACES:
  UserRepository:        Lookup by id, eligibility listing for the batch
  MenuRepository:        Menu by id/date, menu with compositions+variations
  ReservationRepository: Lookup, create, patch, history queries
  Store:                 All three, as implemented by the concrete stores

MISSING RECORDS:
  Finders return (nil, nil) when nothing matches. Errors are reserved for
  failures of the store itself.

UNIQUENESS BACKSTOP:
  Implementations MUST reject a second ACTIVE reservation for the same
  (user, date) at write time, returning an error that wraps ErrConflict.
  The service checks first for a readable error, but two concurrent
  creates can both pass that check; only the store can close the race.

IMPLEMENTATIONS:
  - store/sqlite: SQLite with a partial unique index
  - store/postgres: PostgreSQL via pgx with the same index
  - reservation/store: In-memory for tests and the demo server
*/
package reservation

import (
	"context"
	"time"
)

// UserRepository reads cafeteria users.
type UserRepository interface {
	FindUserByID(ctx context.Context, id string) (*User, error)

	// FindUsersByStatusAndType lists users in a stable order.
	FindUsersByStatusAndType(ctx context.Context, status UserStatus, userType UserType) ([]User, error)
}

// MenuRepository reads menus.
type MenuRepository interface {
	// FindMenuByID returns the menu without compositions or variations.
	FindMenuByID(ctx context.Context, id string) (*Menu, error)

	// FindMenuWithComposition returns the menu with both owned collections.
	FindMenuWithComposition(ctx context.Context, id string) (*Menu, error)

	// FindMenuByDate returns the menu of a calendar date, without collections.
	FindMenuByDate(ctx context.Context, date time.Time) (*Menu, error)
}

// ReservationRepository persists reservations. Reservations are never deleted.
type ReservationRepository interface {
	FindReservationByID(ctx context.Context, id string) (*Reservation, error)

	// FindReservationByUserAndDate returns the ACTIVE reservation for the
	// pair if there is one, otherwise the most recently updated one.
	FindReservationByUserAndDate(ctx context.Context, userID string, date time.Time) (*Reservation, error)

	CreateReservation(ctx context.Context, r Reservation) (*Reservation, error)
	UpdateReservation(ctx context.Context, id string, patch ReservationPatch) (*Reservation, error)

	// ListReservationsByUser returns a user's reservations, newest date first.
	ListReservationsByUser(ctx context.Context, userID string) ([]Reservation, error)

	// ListReservationsInRange returns reservations dated within [from, to].
	// An empty userID matches every user.
	ListReservationsInRange(ctx context.Context, userID string, from, to time.Time) ([]Reservation, error)
}

// Store is implemented by every concrete persistence backend.
type Store interface {
	UserRepository
	MenuRepository
	ReservationRepository
}

// CatalogWriter writes the records the engine only reads. Used by seeding
// and the catalog endpoints.
type CatalogWriter interface {
	SaveUser(ctx context.Context, u User) error
	SaveMenu(ctx context.Context, m Menu) error
}
