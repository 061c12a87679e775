package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/logpeak/logpeak/internal/models"
	"github.com/logpeak/logpeak/internal/store"
)

// AppStore implements store.AppStore using PostgreSQL.
type AppStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// conn returns the queryable connection (transaction or database).
func (s *AppStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const appColumns = `id, owner_id, name, api_key, active, flag_rules, created_at, updated_at, deleted_at`

// Create creates a new application.
func (s *AppStore) Create(ctx context.Context, app *models.App) error {
	rulesJSON, err := json.Marshal(app.FlagRules)
	if err != nil {
		return fmt.Errorf("marshaling flag rules: %w", err)
	}

	query := `
		INSERT INTO apps (id, owner_id, name, api_key, active, flag_rules, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	if app.UpdatedAt.IsZero() {
		app.UpdatedAt = now
	}

	_, err = s.conn().ExecContext(ctx, query,
		app.ID,
		app.OwnerID,
		app.Name,
		app.APIKey,
		app.Active,
		rulesJSON,
		app.CreatedAt,
		app.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateName
		}
		return fmt.Errorf("inserting app: %w", err)
	}

	return nil
}

// Get retrieves an application by ID. Soft-deleted apps are not returned.
func (s *AppStore) Get(ctx context.Context, id string) (*models.App, error) {
	query := `SELECT ` + appColumns + ` FROM apps WHERE id = $1 AND deleted_at IS NULL`
	return s.scanApp(s.conn().QueryRowContext(ctx, query, id))
}

// GetByAPIKey retrieves an active, non-deleted application by its API key.
func (s *AppStore) GetByAPIKey(ctx context.Context, apiKey string) (*models.App, error) {
	query := `SELECT ` + appColumns + ` FROM apps WHERE api_key = $1 AND active AND deleted_at IS NULL`
	return s.scanApp(s.conn().QueryRowContext(ctx, query, apiKey))
}

// List retrieves all applications for a given owner.
func (s *AppStore) List(ctx context.Context, ownerID string) ([]*models.App, error) {
	query := `SELECT ` + appColumns + ` FROM apps
		WHERE owner_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`

	rows, err := s.conn().QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying apps: %w", err)
	}
	defer rows.Close()

	return s.scanApps(rows)
}

// ListActive retrieves all active, non-deleted applications.
func (s *AppStore) ListActive(ctx context.Context) ([]*models.App, error) {
	query := `SELECT ` + appColumns + ` FROM apps
		WHERE active AND deleted_at IS NULL
		ORDER BY created_at`

	rows, err := s.conn().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying active apps: %w", err)
	}
	defer rows.Close()

	return s.scanApps(rows)
}

// Update updates an application's name, active flag and flag rules.
func (s *AppStore) Update(ctx context.Context, app *models.App) error {
	rulesJSON, err := json.Marshal(app.FlagRules)
	if err != nil {
		return fmt.Errorf("marshaling flag rules: %w", err)
	}

	query := `
		UPDATE apps
		SET name = $2, active = $3, flag_rules = $4, updated_at = $5
		WHERE id = $1 AND deleted_at IS NULL`

	app.UpdatedAt = time.Now().UTC()

	result, err := s.conn().ExecContext(ctx, query,
		app.ID,
		app.Name,
		app.Active,
		rulesJSON,
		app.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateName
		}
		return fmt.Errorf("updating app: %w", err)
	}

	return requireRowsAffected(result)
}

// RotateAPIKey replaces the application's API key.
func (s *AppStore) RotateAPIKey(ctx context.Context, id, newKey string) error {
	query := `
		UPDATE apps
		SET api_key = $2, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL`

	result, err := s.conn().ExecContext(ctx, query, id, newKey, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("rotating api key: %w", err)
	}

	return requireRowsAffected(result)
}

// Delete soft-deletes an application by setting deleted_at. Read paths
// filter on the parent's deleted flag, so per-log fan-out writes are not
// needed.
func (s *AppStore) Delete(ctx context.Context, id string) error {
	query := `
		UPDATE apps
		SET deleted_at = $2, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL`

	result, err := s.conn().ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deleting app: %w", err)
	}

	return requireRowsAffected(result)
}

// Restore clears an application's soft-delete marker.
func (s *AppStore) Restore(ctx context.Context, id string) error {
	query := `
		UPDATE apps
		SET deleted_at = NULL, updated_at = $2
		WHERE id = $1 AND deleted_at IS NOT NULL`

	result, err := s.conn().ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("restoring app: %w", err)
	}

	return requireRowsAffected(result)
}

func (s *AppStore) scanApp(row *sql.Row) (*models.App, error) {
	app := &models.App{}
	var rulesJSON []byte
	var deletedAt sql.NullTime

	err := row.Scan(
		&app.ID,
		&app.OwnerID,
		&app.Name,
		&app.APIKey,
		&app.Active,
		&rulesJSON,
		&app.CreatedAt,
		&app.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("querying app: %w", err)
	}

	if err := json.Unmarshal(rulesJSON, &app.FlagRules); err != nil {
		return nil, fmt.Errorf("unmarshaling flag rules: %w", err)
	}
	if deletedAt.Valid {
		app.DeletedAt = &deletedAt.Time
	}

	return app, nil
}

func (s *AppStore) scanApps(rows *sql.Rows) ([]*models.App, error) {
	var apps []*models.App

	for rows.Next() {
		app := &models.App{}
		var rulesJSON []byte
		var deletedAt sql.NullTime

		err := rows.Scan(
			&app.ID,
			&app.OwnerID,
			&app.Name,
			&app.APIKey,
			&app.Active,
			&rulesJSON,
			&app.CreatedAt,
			&app.UpdatedAt,
			&deletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning app row: %w", err)
		}

		if err := json.Unmarshal(rulesJSON, &app.FlagRules); err != nil {
			return nil, fmt.Errorf("unmarshaling flag rules: %w", err)
		}
		if deletedAt.Valid {
			app.DeletedAt = &deletedAt.Time
		}

		apps = append(apps, app)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating app rows: %w", err)
	}

	return apps, nil
}

// requireRowsAffected converts a zero-row update into store.ErrNotFound.
func requireRowsAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
