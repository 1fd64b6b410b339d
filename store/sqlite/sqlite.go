/*
Package sqlite provides a SQLite-backed reservation.Store.

PURPOSE:
  Persists users, menus (with compositions and variations) and
  reservations. The same schema is used by store/postgres with dialect
  changes only.

INTERFACES IMPLEMENTED:
  reservation.Store:         Users, menus and reservations
  reservation.CatalogWriter: User and menu upserts for seeding

KEY TABLES:
  users:             Cafeteria users (status, type)
  menus:             One row per calendar date
  menu_compositions: Items of a menu, owned by the menu
  menu_variations:   Protein choices of a menu, owned by the menu
  reservations:      Never deleted; cancellation is a status change

INDEXES:
  - idx_reservations_active_user_date: partial UNIQUE index over
    (user_id, reservation_date) WHERE status = 'ACTIVE'. This is the
    backstop for "at most one active reservation per user per day" when two
    writers pass the service check at the same time. A violation surfaces
    as reservation.ErrConflict.
  - idx_reservations_date: range queries and the batch

MENU REWRITES:
  SaveMenu upserts. Once a reservation points at a menu, the menu keeps
  its date and every variation a reservation uses (ErrConflict otherwise).
  reservations.menu_variation_id references menu_variations(id) as the
  backstop.

DATES:
  Calendar dates are stored as TEXT "2006-01-02" and read back at midnight
  UTC. Timestamps are stored as fixed-width UTC text so they sort.

CONCURRENCY:
  sync.RWMutex around every statement, plus a single connection so
  ":memory:" databases are shared by all callers.

USAGE:
  store, err := sqlite.New("./data/cafeteria.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - reservation/store.go: Interface definitions
  - reservation/store/memory.go: In-memory implementation
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/cafeteria-engine/reservation"
)

const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements reservation.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ reservation.Store         = (*Store)(nil)
	_ reservation.CatalogWriter = (*Store)(nil)
)

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		document TEXT,
		status TEXT NOT NULL,
		user_type TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_status_type
		ON users(status, user_type);

	CREATE TABLE IF NOT EXISTS menus (
		id TEXT PRIMARY KEY,
		menu_date TEXT NOT NULL UNIQUE,
		day_of_week INTEGER NOT NULL,
		iso_week INTEGER NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS menu_compositions (
		id TEXT PRIMARY KEY,
		menu_id TEXT NOT NULL REFERENCES menus(id) ON DELETE CASCADE,
		menu_item_id TEXT NOT NULL,
		is_main_protein INTEGER NOT NULL DEFAULT 0,
		is_alternative_protein INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_menu_compositions_menu
		ON menu_compositions(menu_id);

	CREATE TABLE IF NOT EXISTS menu_variations (
		id TEXT PRIMARY KEY,
		menu_id TEXT NOT NULL REFERENCES menus(id) ON DELETE CASCADE,
		variation_type TEXT NOT NULL,
		protein_item_id TEXT,
		is_default INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_menu_variations_menu
		ON menu_variations(menu_id);

	CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		menu_id TEXT NOT NULL REFERENCES menus(id),
		menu_variation_id TEXT NOT NULL REFERENCES menu_variations(id),
		reservation_date TEXT NOT NULL,
		status TEXT NOT NULL,
		is_auto_generated INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_active_user_date
		ON reservations(user_id, reservation_date)
		WHERE status = 'ACTIVE';

	CREATE INDEX IF NOT EXISTS idx_reservations_date
		ON reservations(reservation_date);
	CREATE INDEX IF NOT EXISTS idx_reservations_user
		ON reservations(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CATALOG (reservation.CatalogWriter)
// =============================================================================

// SaveUser inserts or replaces a user.
func (s *Store) SaveUser(ctx context.Context, u reservation.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, document, status, user_type)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			document = excluded.document,
			status = excluded.status,
			user_type = excluded.user_type`,
		u.ID, u.Name, nullString(u.Document), string(u.Status), string(u.UserType),
	)
	if err != nil {
		return fmt.Errorf("failed to save user %s: %w", u.ID, err)
	}
	return nil
}

// SaveMenu inserts or replaces a menu together with its compositions and
// variations. A second menu for the same date is rejected with ErrConflict,
// and so is a rewrite that moves a reserved menu to another date or drops a
// variation a reservation uses.
func (s *Store) SaveMenu(ctx context.Context, m reservation.Menu) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := guardMenuRewrite(ctx, tx, m); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO menus (id, menu_date, day_of_week, iso_week, is_active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			menu_date = excluded.menu_date,
			day_of_week = excluded.day_of_week,
			iso_week = excluded.iso_week,
			is_active = excluded.is_active`,
		m.ID, reservation.FormatDate(m.Date), int(m.DayOfWeek), m.ISOWeek, m.IsActive,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("menu for %s already exists: %w", reservation.FormatDate(m.Date), reservation.ErrConflict)
		}
		return fmt.Errorf("failed to save menu %s: %w", m.ID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM menu_compositions WHERE menu_id = ?", m.ID); err != nil {
		return fmt.Errorf("failed to replace compositions: %w", err)
	}
	// referenced variations survive; the guard made sure they are re-listed
	_, err = tx.ExecContext(ctx, `
		DELETE FROM menu_variations
		WHERE menu_id = ?
		  AND id NOT IN (SELECT menu_variation_id FROM reservations WHERE menu_id = ?)`,
		m.ID, m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to replace variations: %w", err)
	}

	for _, c := range m.Compositions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO menu_compositions (id, menu_id, menu_item_id, is_main_protein, is_alternative_protein)
			VALUES (?, ?, ?, ?, ?)`,
			c.ID, m.ID, c.MenuItemID, c.IsMainProtein, c.IsAlternativeProtein,
		)
		if err != nil {
			return fmt.Errorf("failed to save composition %s: %w", c.ID, err)
		}
	}
	for _, v := range m.Variations {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO menu_variations (id, menu_id, variation_type, protein_item_id, is_default)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				variation_type = excluded.variation_type,
				protein_item_id = excluded.protein_item_id,
				is_default = excluded.is_default
			WHERE menu_variations.menu_id = excluded.menu_id`,
			v.ID, m.ID, string(v.VariationType), nullString(v.ProteinItemID), v.IsDefault,
		)
		if err != nil {
			return fmt.Errorf("failed to save variation %s: %w", v.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("variation %s belongs to another menu: %w", v.ID, reservation.ErrConflict)
		}
	}

	return tx.Commit()
}

// guardMenuRewrite checks a save of an existing menu against the
// reservations that already point at it.
func guardMenuRewrite(ctx context.Context, tx *sql.Tx, m reservation.Menu) error {
	var saved string
	err := tx.QueryRowContext(ctx, "SELECT menu_date FROM menus WHERE id = ?", m.ID).Scan(&saved)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load menu %s: %w", m.ID, err)
	}
	savedDate, err := parseDate(saved)
	if err != nil {
		return fmt.Errorf("invalid menu_date %q for menu %s: %w", saved, m.ID, err)
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT DISTINCT menu_variation_id FROM reservations WHERE menu_id = ? ORDER BY menu_variation_id", m.ID)
	if err != nil {
		return fmt.Errorf("failed to load reservations of menu %s: %w", m.ID, err)
	}
	defer rows.Close()

	var referenced []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan variation id: %w", err)
		}
		referenced = append(referenced, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return reservation.CheckMenuRewrite(savedDate, referenced, m)
}

// =============================================================================
// USERS
// =============================================================================

const userColumns = "id, name, document, status, user_type"

// FindUserByID returns the user or nil.
func (s *Store) FindUserByID(ctx context.Context, id string) (*reservation.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindUsersByStatusAndType lists matching users ordered by id.
func (s *Store) FindUsersByStatusAndType(ctx context.Context, status reservation.UserStatus, userType reservation.UserType) ([]reservation.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE status = ? AND user_type = ? ORDER BY id",
		string(status), string(userType),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []reservation.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// =============================================================================
// MENUS
// =============================================================================

const menuColumns = "id, menu_date, day_of_week, iso_week, is_active"

// FindMenuByID returns the menu without its collections, or nil.
func (s *Store) FindMenuByID(ctx context.Context, id string) (*reservation.Menu, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findMenu(ctx, "SELECT "+menuColumns+" FROM menus WHERE id = ?", id)
}

// FindMenuByDate returns the menu of date without its collections, or nil.
func (s *Store) FindMenuByDate(ctx context.Context, date time.Time) (*reservation.Menu, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findMenu(ctx, "SELECT "+menuColumns+" FROM menus WHERE menu_date = ?", reservation.FormatDate(date))
}

// FindMenuWithComposition returns the menu with compositions and variations.
func (s *Store) FindMenuWithComposition(ctx context.Context, id string) (*reservation.Menu, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.findMenu(ctx, "SELECT "+menuColumns+" FROM menus WHERE id = ?", id)
	if err != nil || m == nil {
		return m, err
	}

	if m.Compositions, err = s.loadCompositions(ctx, id); err != nil {
		return nil, err
	}
	if m.Variations, err = s.loadVariations(ctx, id); err != nil {
		return nil, err
	}
	return m, nil
}

// rows must be closed before the next query: the pool holds one connection.
func (s *Store) loadCompositions(ctx context.Context, menuID string) ([]reservation.MenuComposition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, menu_id, menu_item_id, is_main_protein, is_alternative_protein
		FROM menu_compositions WHERE menu_id = ? ORDER BY id`, menuID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reservation.MenuComposition
	for rows.Next() {
		var c reservation.MenuComposition
		if err := rows.Scan(&c.ID, &c.MenuID, &c.MenuItemID, &c.IsMainProtein, &c.IsAlternativeProtein); err != nil {
			return nil, fmt.Errorf("failed to scan composition: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) loadVariations(ctx context.Context, menuID string) ([]reservation.MenuVariation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, menu_id, variation_type, protein_item_id, is_default
		FROM menu_variations WHERE menu_id = ? ORDER BY id`, menuID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reservation.MenuVariation
	for rows.Next() {
		var v reservation.MenuVariation
		var vt string
		var protein sql.NullString
		if err := rows.Scan(&v.ID, &v.MenuID, &vt, &protein, &v.IsDefault); err != nil {
			return nil, fmt.Errorf("failed to scan variation: %w", err)
		}
		v.VariationType = reservation.VariationType(vt)
		v.ProteinItemID = protein.String
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) findMenu(ctx context.Context, query string, args ...any) (*reservation.Menu, error) {
	var m reservation.Menu
	var date string
	var dow int

	err := s.db.QueryRowContext(ctx, query, args...).Scan(&m.ID, &date, &dow, &m.ISOWeek, &m.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if m.Date, err = parseDate(date); err != nil {
		return nil, fmt.Errorf("invalid menu_date for menu %s: %w", m.ID, err)
	}
	m.DayOfWeek = time.Weekday(dow)
	return &m, nil
}

// =============================================================================
// RESERVATIONS
// =============================================================================

const reservationColumns = `id, user_id, menu_id, menu_variation_id, reservation_date,
	status, is_auto_generated, created_at, updated_at`

// FindReservationByID returns the reservation or nil.
func (s *Store) FindReservationByID(ctx context.Context, id string) (*reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findReservation(ctx, "SELECT "+reservationColumns+" FROM reservations WHERE id = ?", id)
}

// FindReservationByUserAndDate prefers the ACTIVE reservation, then the most
// recently updated one.
func (s *Store) FindReservationByUserAndDate(ctx context.Context, userID string, date time.Time) (*reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findReservation(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE user_id = ? AND reservation_date = ?
		ORDER BY CASE status WHEN 'ACTIVE' THEN 0 ELSE 1 END, updated_at DESC
		LIMIT 1`,
		userID, reservation.FormatDate(date),
	)
}

// CreateReservation inserts r. A second ACTIVE reservation for the same user
// and date violates idx_reservations_active_user_date and returns ErrConflict.
func (s *Store) CreateReservation(ctx context.Context, r reservation.Reservation) (*reservation.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reservations
		(id, user_id, menu_id, menu_variation_id, reservation_date,
		 status, is_auto_generated, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.UserID,
		r.MenuID,
		r.MenuVariationID,
		reservation.FormatDate(r.ReservationDate),
		string(r.Status),
		r.IsAutoGenerated,
		formatTimestamp(r.CreatedAt),
		formatTimestamp(r.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("active reservation for %s on %s: %w",
				r.UserID, reservation.FormatDate(r.ReservationDate), reservation.ErrConflict)
		}
		return nil, fmt.Errorf("failed to create reservation: %w", err)
	}

	return s.findReservation(ctx, "SELECT "+reservationColumns+" FROM reservations WHERE id = ?", r.ID)
}

// UpdateReservation applies patch. Reactivating onto a date that already has
// an ACTIVE reservation returns ErrConflict.
func (s *Store) UpdateReservation(ctx context.Context, id string, patch reservation.ReservationPatch) (*reservation.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.findReservation(ctx, "SELECT "+reservationColumns+" FROM reservations WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("reservation %s: %w", id, reservation.ErrNotFound)
	}

	if patch.Status != nil {
		current.Status = *patch.Status
	}
	if patch.MenuVariationID != nil {
		current.MenuVariationID = *patch.MenuVariationID
	}
	current.UpdatedAt = patch.UpdatedAt
	if current.UpdatedAt.IsZero() {
		current.UpdatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE reservations
		SET status = ?, menu_variation_id = ?, updated_at = ?
		WHERE id = ?`,
		string(current.Status), current.MenuVariationID, formatTimestamp(current.UpdatedAt), id,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("active reservation for %s on %s: %w",
				current.UserID, reservation.FormatDate(current.ReservationDate), reservation.ErrConflict)
		}
		return nil, fmt.Errorf("failed to update reservation %s: %w", id, err)
	}

	return s.findReservation(ctx, "SELECT "+reservationColumns+" FROM reservations WHERE id = ?", id)
}

// ListReservationsByUser returns the user's reservations, newest date first.
func (s *Store) ListReservationsByUser(ctx context.Context, userID string) ([]reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryReservations(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE user_id = ?
		ORDER BY reservation_date DESC, created_at DESC`,
		userID,
	)
}

// ListReservationsInRange returns reservations dated within [from, to],
// optionally for one user.
func (s *Store) ListReservationsInRange(ctx context.Context, userID string, from, to time.Time) ([]reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if userID == "" {
		return s.queryReservations(ctx, `
			SELECT `+reservationColumns+` FROM reservations
			WHERE reservation_date >= ? AND reservation_date <= ?
			ORDER BY reservation_date, user_id`,
			reservation.FormatDate(from), reservation.FormatDate(to),
		)
	}
	return s.queryReservations(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE user_id = ? AND reservation_date >= ? AND reservation_date <= ?
		ORDER BY reservation_date, user_id`,
		userID, reservation.FormatDate(from), reservation.FormatDate(to),
	)
}

func (s *Store) findReservation(ctx context.Context, query string, args ...any) (*reservation.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	r, err := scanReservation(rows)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) queryReservations(ctx context.Context, query string, args ...any) ([]reservation.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reservation.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (reservation.User, error) {
	var u reservation.User
	var document sql.NullString
	var status, userType string
	if err := row.Scan(&u.ID, &u.Name, &document, &status, &userType); err != nil {
		return u, err
	}
	u.Document = document.String
	u.Status = reservation.UserStatus(status)
	u.UserType = reservation.UserType(userType)
	return u, nil
}

func scanReservation(row scanner) (reservation.Reservation, error) {
	var r reservation.Reservation
	var date, status, createdAt, updatedAt string

	err := row.Scan(
		&r.ID, &r.UserID, &r.MenuID, &r.MenuVariationID, &date,
		&status, &r.IsAutoGenerated, &createdAt, &updatedAt,
	)
	if err != nil {
		return r, fmt.Errorf("failed to scan reservation: %w", err)
	}

	r.Status = reservation.Status(status)
	if r.ReservationDate, err = parseDate(date); err != nil {
		return r, fmt.Errorf("failed to scan reservation %s: reservation_date: %w", r.ID, err)
	}
	if r.CreatedAt, err = time.Parse(timestampLayout, createdAt); err != nil {
		return r, fmt.Errorf("failed to scan reservation %s: created_at: %w", r.ID, err)
	}
	if r.UpdatedAt, err = time.Parse(timestampLayout, updatedAt); err != nil {
		return r, fmt.Errorf("failed to scan reservation %s: updated_at: %w", r.ID, err)
	}
	return r, nil
}

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(reservation.DateLayout, s, time.UTC)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
