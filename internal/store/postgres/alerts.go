package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/logpeak/logpeak/internal/models"
	"github.com/logpeak/logpeak/internal/store"
)

// AlertStore implements store.AlertStore using PostgreSQL.
type AlertStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// conn returns the queryable connection (transaction or database).
func (s *AlertStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const alertColumns = `id, app_id, owner_id, name, type, threshold, window_minutes, function_filter, active, last_triggered, trigger_count, created_at, updated_at`

// Create creates a new alert rule.
func (s *AlertStore) Create(ctx context.Context, rule *models.AlertRule) error {
	query := `
		INSERT INTO alert_rules (id, app_id, owner_id, name, type, threshold, window_minutes, function_filter, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = now
	}

	_, err := s.conn().ExecContext(ctx, query,
		rule.ID,
		rule.AppID,
		rule.OwnerID,
		rule.Name,
		rule.Type,
		rule.Threshold,
		rule.WindowMinutes,
		rule.FunctionFilter,
		rule.Active,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting alert rule: %w", err)
	}

	return nil
}

// Get retrieves an alert rule by ID.
func (s *AlertStore) Get(ctx context.Context, id string) (*models.AlertRule, error) {
	query := `SELECT ` + alertColumns + ` FROM alert_rules WHERE id = $1`

	rule, err := scanAlertRow(s.conn().QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("querying alert rule: %w", err)
	}

	return rule, nil
}

// ListByApp retrieves all rules for one application.
func (s *AlertStore) ListByApp(ctx context.Context, appID string) ([]*models.AlertRule, error) {
	query := `SELECT ` + alertColumns + ` FROM alert_rules WHERE app_id = $1 ORDER BY created_at`

	rows, err := s.conn().QueryContext(ctx, query, appID)
	if err != nil {
		return nil, fmt.Errorf("querying alert rules: %w", err)
	}
	defer rows.Close()

	return s.scanAlerts(rows)
}

// ListActive retrieves all active rules across applications.
func (s *AlertStore) ListActive(ctx context.Context) ([]*models.AlertRule, error) {
	query := `SELECT ` + alertColumns + ` FROM alert_rules WHERE active ORDER BY created_at`

	rows, err := s.conn().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying active alert rules: %w", err)
	}
	defer rows.Close()

	return s.scanAlerts(rows)
}

// Update updates a rule's definition fields. Trigger bookkeeping fields
// are only written through RecordTrigger.
func (s *AlertStore) Update(ctx context.Context, rule *models.AlertRule) error {
	query := `
		UPDATE alert_rules
		SET name = $2, type = $3, threshold = $4, window_minutes = $5, function_filter = $6, active = $7, updated_at = $8
		WHERE id = $1`

	rule.UpdatedAt = time.Now().UTC()

	result, err := s.conn().ExecContext(ctx, query,
		rule.ID,
		rule.Name,
		rule.Type,
		rule.Threshold,
		rule.WindowMinutes,
		rule.FunctionFilter,
		rule.Active,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating alert rule: %w", err)
	}

	return requireRowsAffected(result)
}

// Delete removes a rule.
func (s *AlertStore) Delete(ctx context.Context, id string) error {
	result, err := s.conn().ExecContext(ctx, `DELETE FROM alert_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting alert rule: %w", err)
	}

	return requireRowsAffected(result)
}

// RecordTrigger atomically sets last_triggered and increments
// trigger_count by exactly one.
func (s *AlertStore) RecordTrigger(ctx context.Context, id string, firedAt time.Time) error {
	query := `
		UPDATE alert_rules
		SET last_triggered = $2, trigger_count = trigger_count + 1
		WHERE id = $1`

	result, err := s.conn().ExecContext(ctx, query, id, firedAt.UTC())
	if err != nil {
		return fmt.Errorf("recording alert trigger: %w", err)
	}

	return requireRowsAffected(result)
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlertRow(row rowScanner) (*models.AlertRule, error) {
	rule := &models.AlertRule{}
	var lastTriggered sql.NullTime

	err := row.Scan(
		&rule.ID,
		&rule.AppID,
		&rule.OwnerID,
		&rule.Name,
		&rule.Type,
		&rule.Threshold,
		&rule.WindowMinutes,
		&rule.FunctionFilter,
		&rule.Active,
		&lastTriggered,
		&rule.TriggerCount,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastTriggered.Valid {
		rule.LastTriggered = &lastTriggered.Time
	}

	return rule, nil
}

func (s *AlertStore) scanAlerts(rows *sql.Rows) ([]*models.AlertRule, error) {
	var rules []*models.AlertRule

	for rows.Next() {
		rule, err := scanAlertRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning alert row: %w", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alert rows: %w", err)
	}

	return rules, nil
}
