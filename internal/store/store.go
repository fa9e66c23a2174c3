package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"geowatch/internal/apperr"
	"geowatch/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateAOI creates a new AOI in in_cart status
func (s *Store) CreateAOI(ctx context.Context, aoi *models.AOI) error {
	query := `
		INSERT INTO aois (id, user_id, name, geometry, cadence, status, is_paid)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	if aoi.ID == uuid.Nil {
		aoi.ID = uuid.New()
	}
	return s.db.QueryRowxContext(ctx, query,
		aoi.ID, aoi.UserID, aoi.Name, aoi.Geometry, aoi.Cadence, aoi.Status, aoi.IsPaid).
		Scan(&aoi.CreatedAt, &aoi.UpdatedAt)
}

// GetAOIByID retrieves an AOI by ID
func (s *Store) GetAOIByID(ctx context.Context, id uuid.UUID) (*models.AOI, error) {
	var aoi models.AOI
	err := s.db.GetContext(ctx, &aoi, "SELECT * FROM aois WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("aoi %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &aoi, nil
}

// GetAOIForUser retrieves an AOI scoped to its owner
func (s *Store) GetAOIForUser(ctx context.Context, userID, id uuid.UUID) (*models.AOI, error) {
	var aoi models.AOI
	err := s.db.GetContext(ctx, &aoi,
		"SELECT * FROM aois WHERE id = $1 AND user_id = $2", id, userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("aoi %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &aoi, nil
}

// ListAOIsByUser retrieves all AOIs for a user
func (s *Store) ListAOIsByUser(ctx context.Context, userID uuid.UUID) ([]models.AOI, error) {
	var aois []models.AOI
	err := s.db.SelectContext(ctx, &aois,
		"SELECT * FROM aois WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return aois, err
}

// ActivateAOI moves a paid, inactive AOI to active with the given window.
// Returns false when the AOI was not in an activatable state.
func (s *Store) ActivateAOI(ctx context.Context, id uuid.UUID, start, end time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE aois
		SET status = $1, start_date = $2, end_date = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5 AND is_paid = TRUE`,
		models.AOIStatusActive, start, end, id, models.AOIStatusInactive)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListMonitorableAOIs returns active, paid AOIs whose window has not ended
func (s *Store) ListMonitorableAOIs(ctx context.Context, now time.Time) ([]models.AOI, error) {
	var aois []models.AOI
	err := s.db.SelectContext(ctx, &aois, `
		SELECT * FROM aois
		WHERE status = $1 AND is_paid = TRUE AND end_date > $2
		ORDER BY created_at`, models.AOIStatusActive, now)
	return aois, err
}

// ListPaidInactiveAOIs returns AOIs waiting for activation
func (s *Store) ListPaidInactiveAOIs(ctx context.Context) ([]models.AOI, error) {
	var aois []models.AOI
	err := s.db.SelectContext(ctx, &aois,
		"SELECT * FROM aois WHERE status = $1 AND is_paid = TRUE", models.AOIStatusInactive)
	return aois, err
}

// ExpireAOIs marks active AOIs past their end date as expired
func (s *Store) ExpireAOIs(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE aois SET status = $1, updated_at = NOW()
		WHERE status = $2 AND end_date <= $3`,
		models.AOIStatusExpired, models.AOIStatusActive, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
