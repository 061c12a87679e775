package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/logpeak/logpeak/internal/models"
	"github.com/logpeak/logpeak/internal/store"
)

// MetricsStore implements store.MetricsStore using PostgreSQL.
type MetricsStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// conn returns the queryable connection (transaction or database).
func (s *MetricsStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const bucketColumns = `id, app_id, period, period_start, total_count, error_count, warn_count, info_count, debug_count, flagged_count, avg_per_minute, created_at`

// Create inserts a bucket. The unique index on (app_id, period,
// period_start) enforces write-once semantics under concurrent
// aggregation runs.
func (s *MetricsStore) Create(ctx context.Context, bucket *models.MetricsBucket) error {
	query := `
		INSERT INTO metrics_buckets (` + bucketColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	if bucket.CreatedAt.IsZero() {
		bucket.CreatedAt = time.Now().UTC()
	}

	_, err := s.conn().ExecContext(ctx, query,
		bucket.ID,
		bucket.AppID,
		bucket.Period,
		bucket.PeriodStart.UTC(),
		bucket.TotalCount,
		bucket.ErrorCount,
		bucket.WarnCount,
		bucket.InfoCount,
		bucket.DebugCount,
		bucket.FlaggedCount,
		bucket.AvgPerMinute,
		bucket.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateBucket
		}
		return fmt.Errorf("inserting metrics bucket: %w", err)
	}

	return nil
}

// Exists reports whether a bucket exists for (app, period, start).
func (s *MetricsStore) Exists(ctx context.Context, appID string, period models.MetricsPeriod, start time.Time) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM metrics_buckets WHERE app_id = $1 AND period = $2 AND period_start = $3)`

	var exists bool
	err := s.conn().QueryRowContext(ctx, query, appID, period, start.UTC()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking metrics bucket: %w", err)
	}

	return exists, nil
}

// ListRange retrieves an app's buckets of one period with
// period_start >= from, oldest first.
func (s *MetricsStore) ListRange(ctx context.Context, appID string, period models.MetricsPeriod, from time.Time) ([]*models.MetricsBucket, error) {
	query := `SELECT ` + bucketColumns + ` FROM metrics_buckets
		WHERE app_id = $1 AND period = $2 AND period_start >= $3
		ORDER BY period_start`

	rows, err := s.conn().QueryContext(ctx, query, appID, period, from.UTC())
	if err != nil {
		return nil, fmt.Errorf("querying metrics buckets: %w", err)
	}
	defer rows.Close()

	return s.scanBuckets(rows)
}

// DeleteOlderThan removes buckets with period_start older than cutoff.
func (s *MetricsStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.conn().ExecContext(ctx,
		`DELETE FROM metrics_buckets WHERE period_start < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting old metrics buckets: %w", err)
	}
	return result.RowsAffected()
}

func (s *MetricsStore) scanBuckets(rows *sql.Rows) ([]*models.MetricsBucket, error) {
	var buckets []*models.MetricsBucket

	for rows.Next() {
		b := &models.MetricsBucket{}

		err := rows.Scan(
			&b.ID,
			&b.AppID,
			&b.Period,
			&b.PeriodStart,
			&b.TotalCount,
			&b.ErrorCount,
			&b.WarnCount,
			&b.InfoCount,
			&b.DebugCount,
			&b.FlaggedCount,
			&b.AvgPerMinute,
			&b.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning bucket row: %w", err)
		}

		buckets = append(buckets, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bucket rows: %w", err)
	}

	return buckets, nil
}
