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

// LogStore implements store.LogStore using PostgreSQL.
type LogStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// conn returns the queryable connection (transaction or database).
func (s *LogStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const logColumns = `id, app_id, timestamp, level, message, source, request_id, user_id, metadata, raw, created_at`

// Create creates a new full log record.
func (s *LogStore) Create(ctx context.Context, rec *models.LogRecord) error {
	query := `
		INSERT INTO logs (` + logColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var metadata any
	if len(rec.Metadata) > 0 {
		metadata = []byte(rec.Metadata)
	}

	_, err := s.conn().ExecContext(ctx, query,
		rec.ID,
		rec.AppID,
		rec.Timestamp,
		rec.Level,
		rec.Message,
		rec.Source,
		rec.RequestID,
		rec.UserID,
		metadata,
		rec.Raw,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting log record: %w", err)
	}

	return nil
}

// Get retrieves a full record by ID.
func (s *LogStore) Get(ctx context.Context, id string) (*models.LogRecord, error) {
	query := `SELECT ` + logColumns + ` FROM logs WHERE id = $1`

	rec := &models.LogRecord{}
	var metadata []byte

	err := s.conn().QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&rec.AppID,
		&rec.Timestamp,
		&rec.Level,
		&rec.Message,
		&rec.Source,
		&rec.RequestID,
		&rec.UserID,
		&metadata,
		&rec.Raw,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("querying log record: %w", err)
	}

	rec.Metadata = metadata
	return rec, nil
}

// ListWindow retrieves an app's full records with timestamp >= since,
// newest first. Served by the (app_id, timestamp) index.
func (s *LogStore) ListWindow(ctx context.Context, appID string, since time.Time) ([]*models.LogRecord, error) {
	query := `SELECT ` + logColumns + ` FROM logs
		WHERE app_id = $1 AND timestamp >= $2
		ORDER BY timestamp DESC`

	rows, err := s.conn().QueryContext(ctx, query, appID, since)
	if err != nil {
		return nil, fmt.Errorf("querying log window: %w", err)
	}
	defer rows.Close()

	var recs []*models.LogRecord
	for rows.Next() {
		rec := &models.LogRecord{}
		var metadata []byte

		err := rows.Scan(
			&rec.ID,
			&rec.AppID,
			&rec.Timestamp,
			&rec.Level,
			&rec.Message,
			&rec.Source,
			&rec.RequestID,
			&rec.UserID,
			&metadata,
			&rec.Raw,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning log row: %w", err)
		}

		rec.Metadata = metadata
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating log rows: %w", err)
	}

	return recs, nil
}

// DeleteOlderThan deletes up to limit records older than cutoff within one
// level category. The subselect walks the (level, timestamp) index, never
// the whole table.
func (s *LogStore) DeleteOlderThan(ctx context.Context, cutoff time.Time, errorLevel bool, limit int) (int, bool, error) {
	op := "<>"
	if errorLevel {
		op = "="
	}

	query := fmt.Sprintf(`
		DELETE FROM logs
		WHERE id IN (
			SELECT id FROM logs
			WHERE level %s 'error' AND timestamp < $1
			ORDER BY timestamp
			LIMIT $2
		)`, op)

	result, err := s.conn().ExecContext(ctx, query, cutoff, limit)
	if err != nil {
		return 0, false, fmt.Errorf("deleting old logs: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("getting rows affected: %w", err)
	}

	more := false
	if deleted > 0 {
		existsQuery := fmt.Sprintf(
			`SELECT EXISTS(SELECT 1 FROM logs WHERE level %s 'error' AND timestamp < $1)`, op)
		if err := s.conn().QueryRowContext(ctx, existsQuery, cutoff).Scan(&more); err != nil {
			return int(deleted), false, fmt.Errorf("checking remaining logs: %w", err)
		}
	}

	return int(deleted), more, nil
}

// DeleteByApp removes all records for one application.
func (s *LogStore) DeleteByApp(ctx context.Context, appID string) (int64, error) {
	result, err := s.conn().ExecContext(ctx, `DELETE FROM logs WHERE app_id = $1`, appID)
	if err != nil {
		return 0, fmt.Errorf("deleting app logs: %w", err)
	}
	return result.RowsAffected()
}

// DeleteAll removes all records.
func (s *LogStore) DeleteAll(ctx context.Context) (int64, error) {
	result, err := s.conn().ExecContext(ctx, `DELETE FROM logs`)
	if err != nil {
		return 0, fmt.Errorf("deleting all logs: %w", err)
	}
	return result.RowsAffected()
}
