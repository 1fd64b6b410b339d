// Package postgres provides a PostgreSQL-backed reservation.Store using pgx.
//
// The schema mirrors store/sqlite: the partial unique index
// idx_reservations_active_user_date guarantees at most one ACTIVE
// reservation per (user, date), and a violation (SQLSTATE 23505) is
// returned as reservation.ErrConflict. SaveMenu locks the menu row, so a
// rewrite and a concurrent reservation insert (whose foreign key check
// takes a KEY SHARE lock on the same row) are serialized.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/warp/cafeteria-engine/reservation"
)

const uniqueViolation = "23505"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	document TEXT,
	status TEXT NOT NULL,
	user_type TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_users_status_type ON users(status, user_type);

CREATE TABLE IF NOT EXISTS menus (
	id TEXT PRIMARY KEY,
	menu_date DATE NOT NULL UNIQUE,
	day_of_week INTEGER NOT NULL,
	iso_week INTEGER NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS menu_compositions (
	id TEXT PRIMARY KEY,
	menu_id TEXT NOT NULL REFERENCES menus(id) ON DELETE CASCADE,
	menu_item_id TEXT NOT NULL,
	is_main_protein BOOLEAN NOT NULL DEFAULT FALSE,
	is_alternative_protein BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_menu_compositions_menu ON menu_compositions(menu_id);

CREATE TABLE IF NOT EXISTS menu_variations (
	id TEXT PRIMARY KEY,
	menu_id TEXT NOT NULL REFERENCES menus(id) ON DELETE CASCADE,
	variation_type TEXT NOT NULL,
	protein_item_id TEXT,
	is_default BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_menu_variations_menu ON menu_variations(menu_id);

CREATE TABLE IF NOT EXISTS reservations (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	menu_id TEXT NOT NULL REFERENCES menus(id),
	menu_variation_id TEXT NOT NULL REFERENCES menu_variations(id),
	reservation_date DATE NOT NULL,
	status TEXT NOT NULL,
	is_auto_generated BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_active_user_date
	ON reservations(user_id, reservation_date)
	WHERE status = 'ACTIVE';

CREATE INDEX IF NOT EXISTS idx_reservations_date ON reservations(reservation_date);
CREATE INDEX IF NOT EXISTS idx_reservations_user ON reservations(user_id);
`

// Migrate creates the schema if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}

// Store implements reservation.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ reservation.Store         = (*Store)(nil)
	_ reservation.CatalogWriter = (*Store)(nil)
)

// New connects to databaseURL and migrates the schema.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required for PostgreSQL")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewFromPool wraps an existing pool. The schema must already exist.
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// =============================================================================
// CATALOG
// =============================================================================

func (s *Store) SaveUser(ctx context.Context, u reservation.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, document, status, user_type)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			document = EXCLUDED.document,
			status = EXCLUDED.status,
			user_type = EXCLUDED.user_type`,
		u.ID, u.Name, u.Document, string(u.Status), string(u.UserType),
	)
	if err != nil {
		return fmt.Errorf("failed to save user %s: %w", u.ID, err)
	}
	return nil
}

// SaveMenu upserts m with its compositions and variations. A reserved menu
// keeps its date and every variation a reservation uses.
func (s *Store) SaveMenu(ctx context.Context, m reservation.Menu) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := guardMenuRewrite(ctx, tx, m); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO menus (id, menu_date, day_of_week, iso_week, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			menu_date = EXCLUDED.menu_date,
			day_of_week = EXCLUDED.day_of_week,
			iso_week = EXCLUDED.iso_week,
			is_active = EXCLUDED.is_active`,
		m.ID, dateArg(m.Date), int(m.DayOfWeek), m.ISOWeek, m.IsActive,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("menu for %s already exists: %w", reservation.FormatDate(m.Date), reservation.ErrConflict)
		}
		return fmt.Errorf("failed to save menu %s: %w", m.ID, err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM menu_compositions WHERE menu_id = $1", m.ID); err != nil {
		return fmt.Errorf("failed to replace compositions: %w", err)
	}
	_, err = tx.Exec(ctx, `
		DELETE FROM menu_variations
		WHERE menu_id = $1
		  AND id NOT IN (SELECT menu_variation_id FROM reservations WHERE menu_id = $1)`,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to replace variations: %w", err)
	}

	batch := &pgx.Batch{}
	for _, c := range m.Compositions {
		batch.Queue(`
			INSERT INTO menu_compositions (id, menu_id, menu_item_id, is_main_protein, is_alternative_protein)
			VALUES ($1, $2, $3, $4, $5)`,
			c.ID, m.ID, c.MenuItemID, c.IsMainProtein, c.IsAlternativeProtein)
	}
	for _, v := range m.Variations {
		batch.Queue(`
			INSERT INTO menu_variations (id, menu_id, variation_type, protein_item_id, is_default)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5)
			ON CONFLICT (id) DO UPDATE SET
				variation_type = EXCLUDED.variation_type,
				protein_item_id = EXCLUDED.protein_item_id,
				is_default = EXCLUDED.is_default
			WHERE menu_variations.menu_id = EXCLUDED.menu_id`,
			v.ID, m.ID, string(v.VariationType), v.ProteinItemID, v.IsDefault)
	}
	if batch.Len() > 0 {
		if err := sendMenuBatch(ctx, tx, batch, m); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func sendMenuBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch, m reservation.Menu) error {
	br := tx.SendBatch(ctx, batch)
	defer br.Close()

	for range m.Compositions {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to save menu %s compositions: %w", m.ID, err)
		}
	}
	for _, v := range m.Variations {
		tag, err := br.Exec()
		if err != nil {
			return fmt.Errorf("failed to save variation %s: %w", v.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("variation %s belongs to another menu: %w", v.ID, reservation.ErrConflict)
		}
	}
	return br.Close()
}

// guardMenuRewrite locks the stored menu row and checks the rewrite against
// the reservations that point at it.
func guardMenuRewrite(ctx context.Context, tx pgx.Tx, m reservation.Menu) error {
	var saved time.Time
	err := tx.QueryRow(ctx, "SELECT menu_date FROM menus WHERE id = $1 FOR UPDATE", m.ID).Scan(&saved)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load menu %s: %w", m.ID, err)
	}

	rows, err := tx.Query(ctx,
		"SELECT DISTINCT menu_variation_id FROM reservations WHERE menu_id = $1 ORDER BY menu_variation_id", m.ID)
	if err != nil {
		return fmt.Errorf("failed to load reservations of menu %s: %w", m.ID, err)
	}
	referenced, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("failed to load reservations of menu %s: %w", m.ID, err)
	}
	return reservation.CheckMenuRewrite(saved, referenced, m)
}

// =============================================================================
// USERS
// =============================================================================

const userColumns = "id, name, COALESCE(document, ''), status, user_type"

func (s *Store) FindUserByID(ctx context.Context, id string) (*reservation.User, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	u, err := pgx.CollectOneRow(rows, scanUser)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) FindUsersByStatusAndType(ctx context.Context, status reservation.UserStatus, userType reservation.UserType) ([]reservation.User, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+userColumns+" FROM users WHERE status = $1 AND user_type = $2 ORDER BY id",
		string(status), string(userType),
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanUser)
}

// =============================================================================
// MENUS
// =============================================================================

const menuColumns = "id, menu_date, day_of_week, iso_week, is_active"

func (s *Store) FindMenuByID(ctx context.Context, id string) (*reservation.Menu, error) {
	return s.findMenu(ctx, "SELECT "+menuColumns+" FROM menus WHERE id = $1", id)
}

func (s *Store) FindMenuByDate(ctx context.Context, date time.Time) (*reservation.Menu, error) {
	return s.findMenu(ctx, "SELECT "+menuColumns+" FROM menus WHERE menu_date = $1", dateArg(date))
}

func (s *Store) FindMenuWithComposition(ctx context.Context, id string) (*reservation.Menu, error) {
	m, err := s.findMenu(ctx, "SELECT "+menuColumns+" FROM menus WHERE id = $1", id)
	if err != nil || m == nil {
		return m, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, menu_id, menu_item_id, is_main_protein, is_alternative_protein
		FROM menu_compositions WHERE menu_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	m.Compositions, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (reservation.MenuComposition, error) {
		var c reservation.MenuComposition
		err := row.Scan(&c.ID, &c.MenuID, &c.MenuItemID, &c.IsMainProtein, &c.IsAlternativeProtein)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load compositions: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT id, menu_id, variation_type, COALESCE(protein_item_id, ''), is_default
		FROM menu_variations WHERE menu_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	m.Variations, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (reservation.MenuVariation, error) {
		var v reservation.MenuVariation
		var vt string
		err := row.Scan(&v.ID, &v.MenuID, &vt, &v.ProteinItemID, &v.IsDefault)
		v.VariationType = reservation.VariationType(vt)
		return v, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load variations: %w", err)
	}
	return m, nil
}

func (s *Store) findMenu(ctx context.Context, query string, args ...any) (*reservation.Menu, error) {
	var m reservation.Menu
	var dow int
	err := s.pool.QueryRow(ctx, query, args...).Scan(&m.ID, &m.Date, &dow, &m.ISOWeek, &m.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.DayOfWeek = time.Weekday(dow)
	return &m, nil
}

// =============================================================================
// RESERVATIONS
// =============================================================================

const reservationColumns = `id, user_id, menu_id, menu_variation_id, reservation_date,
	status, is_auto_generated, created_at, updated_at`

func (s *Store) FindReservationByID(ctx context.Context, id string) (*reservation.Reservation, error) {
	return s.findReservation(ctx, "SELECT "+reservationColumns+" FROM reservations WHERE id = $1", id)
}

func (s *Store) FindReservationByUserAndDate(ctx context.Context, userID string, date time.Time) (*reservation.Reservation, error) {
	return s.findReservation(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE user_id = $1 AND reservation_date = $2
		ORDER BY (status = 'ACTIVE') DESC, updated_at DESC
		LIMIT 1`,
		userID, dateArg(date),
	)
}

func (s *Store) CreateReservation(ctx context.Context, r reservation.Reservation) (*reservation.Reservation, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}

	rows, err := s.pool.Query(ctx, `
		INSERT INTO reservations
		(id, user_id, menu_id, menu_variation_id, reservation_date,
		 status, is_auto_generated, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+reservationColumns,
		r.ID, r.UserID, r.MenuID, r.MenuVariationID, dateArg(r.ReservationDate),
		string(r.Status), r.IsAutoGenerated, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reservation: %w", err)
	}
	created, err := pgx.CollectOneRow(rows, scanReservation)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("active reservation for %s on %s: %w",
				r.UserID, reservation.FormatDate(r.ReservationDate), reservation.ErrConflict)
		}
		return nil, fmt.Errorf("failed to create reservation: %w", err)
	}
	return &created, nil
}

func (s *Store) UpdateReservation(ctx context.Context, id string, patch reservation.ReservationPatch) (*reservation.Reservation, error) {
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	var status, variation *string
	if patch.Status != nil {
		st := string(*patch.Status)
		status = &st
	}
	if patch.MenuVariationID != nil {
		variation = patch.MenuVariationID
	}

	rows, err := s.pool.Query(ctx, `
		UPDATE reservations SET
			status = COALESCE($2, status),
			menu_variation_id = COALESCE($3, menu_variation_id),
			updated_at = $4
		WHERE id = $1
		RETURNING `+reservationColumns,
		id, status, variation, updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update reservation %s: %w", id, err)
	}
	updated, err := pgx.CollectOneRow(rows, scanReservation)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("reservation %s: %w", id, reservation.ErrNotFound)
	case isUniqueViolation(err):
		return nil, fmt.Errorf("active reservation already exists for reservation %s's date: %w", id, reservation.ErrConflict)
	case err != nil:
		return nil, fmt.Errorf("failed to update reservation %s: %w", id, err)
	}
	return &updated, nil
}

func (s *Store) ListReservationsByUser(ctx context.Context, userID string) ([]reservation.Reservation, error) {
	return s.queryReservations(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE user_id = $1
		ORDER BY reservation_date DESC, created_at DESC`,
		userID,
	)
}

func (s *Store) ListReservationsInRange(ctx context.Context, userID string, from, to time.Time) ([]reservation.Reservation, error) {
	return s.queryReservations(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE ($1 = '' OR user_id = $1)
		  AND reservation_date BETWEEN $2 AND $3
		ORDER BY reservation_date, user_id`,
		userID, dateArg(from), dateArg(to),
	)
}

func (s *Store) findReservation(ctx context.Context, query string, args ...any) (*reservation.Reservation, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	r, err := pgx.CollectOneRow(rows, scanReservation)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) queryReservations(ctx context.Context, query string, args ...any) ([]reservation.Reservation, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanReservation)
}

// =============================================================================
// HELPERS
// =============================================================================

func scanUser(row pgx.CollectableRow) (reservation.User, error) {
	var u reservation.User
	var status, userType string
	err := row.Scan(&u.ID, &u.Name, &u.Document, &status, &userType)
	u.Status = reservation.UserStatus(status)
	u.UserType = reservation.UserType(userType)
	return u, err
}

func scanReservation(row pgx.CollectableRow) (reservation.Reservation, error) {
	var r reservation.Reservation
	var status string
	err := row.Scan(
		&r.ID, &r.UserID, &r.MenuID, &r.MenuVariationID, &r.ReservationDate,
		&status, &r.IsAutoGenerated, &r.CreatedAt, &r.UpdatedAt,
	)
	r.Status = reservation.Status(status)
	return r, err
}

// dateArg pins a calendar date to midnight UTC so the DATE column receives
// the same day regardless of the caller's location.
func dateArg(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
