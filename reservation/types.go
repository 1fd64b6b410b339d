// Package reservation implements meal reservation admission for the cafeteria:
// the cutoff policy, menu variation binding and the reservation lifecycle.
package reservation

import "time"

// =============================================================================
// RESERVATION
// =============================================================================

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCancelled Status = "CANCELLED"
)

// Reservation is one user's claim on one menu variation for one calendar date.
type Reservation struct {
	ID              string
	UserID          string
	MenuID          string
	MenuVariationID string
	ReservationDate time.Time // calendar date, midnight
	Status          Status
	IsAutoGenerated bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsActive reports whether the reservation currently holds its date.
func (r *Reservation) IsActive() bool { return r.Status == StatusActive }

// ReservationPatch is a partial update. Nil fields are left unchanged.
type ReservationPatch struct {
	MenuVariationID *string
	Status          *Status
	UpdatedAt       time.Time // zero means the store's clock
}

// =============================================================================
// MENU
// =============================================================================

// VariationType names a selectable substitution within a menu.
type VariationType string

const (
	VariationStandard      VariationType = "STANDARD"
	VariationEggSubstitute VariationType = "EGG_SUBSTITUTE"
	VariationVegetarian    VariationType = "VEGETARIAN"
)

// Menu is the offering for one calendar date. It owns its compositions and
// variations.
type Menu struct {
	ID           string
	Date         time.Time
	DayOfWeek    time.Weekday
	ISOWeek      int
	IsActive     bool
	Compositions []MenuComposition
	Variations   []MenuVariation
}

// MenuComposition lists one item served with a menu.
type MenuComposition struct {
	ID                   string
	MenuID               string
	MenuItemID           string
	IsMainProtein        bool
	IsAlternativeProtein bool
}

// MenuVariation is a selectable option bound to exactly one menu.
type MenuVariation struct {
	ID            string
	MenuID        string
	VariationType VariationType
	ProteinItemID string
	IsDefault     bool
}

// =============================================================================
// USER
// =============================================================================

type UserStatus string

const (
	UserActive   UserStatus = "ATIVO"
	UserInactive UserStatus = "INATIVO"
)

type UserType string

const (
	UserFixed    UserType = "FIXO"
	UserNonFixed UserType = "NAO_FIXO"
)

// User is a cafeteria patron. Document holds the CPF and is opaque here.
type User struct {
	ID       string
	Name     string
	Document string
	Status   UserStatus
	UserType UserType
}

// IsActive reports whether the user may hold reservations.
func (u *User) IsActive() bool { return u.Status == UserActive }

// IsAutoReservationEligible reports whether the nightly batch reserves for u.
func (u *User) IsAutoReservationEligible() bool {
	return u.Status == UserActive && u.UserType == UserFixed
}
