package postgres

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/logpeak/logpeak/internal/models"
	"github.com/logpeak/logpeak/internal/store"
)

// SummaryStore implements store.SummaryStore using PostgreSQL.
type SummaryStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// conn returns the queryable connection (transaction or database).
func (s *SummaryStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const summaryColumns = `s.id, s.app_id, s.log_id, s.timestamp, s.level, s.level_num, s.message_short, s.source, s.request_id, s.has_meta`

// Create creates a new summary record.
func (s *SummaryStore) Create(ctx context.Context, sum *models.LogSummary) error {
	query := `
		INSERT INTO log_summaries (id, app_id, log_id, timestamp, level, level_num, message_short, source, request_id, has_meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.conn().ExecContext(ctx, query,
		sum.ID,
		sum.AppID,
		sum.LogID,
		sum.Timestamp,
		sum.Level,
		sum.LevelNum,
		sum.MessageShort,
		sum.Source,
		sum.RequestID,
		sum.HasMeta,
	)
	if err != nil {
		return fmt.Errorf("inserting log summary: %w", err)
	}

	return nil
}

// ListTail retrieves the newest summaries matching the query, newest first.
// App-scoped queries walk (app_id, level_num, timestamp); global ones walk
// (level_num, timestamp) joined against live apps.
func (s *SummaryStore) ListTail(ctx context.Context, q store.TailQuery) ([]*models.LogSummary, error) {
	var (
		conds []string
		args  []any
	)

	from := `log_summaries s`
	if q.AppID != "" {
		args = append(args, q.AppID)
		conds = append(conds, fmt.Sprintf("s.app_id = $%d", len(args)))
	} else {
		from += ` JOIN apps a ON a.id = s.app_id AND a.deleted_at IS NULL`
	}
	if q.MinLevelNum > 0 {
		args = append(args, q.MinLevelNum)
		conds = append(conds, fmt.Sprintf("s.level_num >= $%d", len(args)))
	}
	if !q.Since.IsZero() {
		args = append(args, q.Since)
		conds = append(conds, fmt.Sprintf("s.timestamp > $%d", len(args)))
	}

	query := `SELECT ` + summaryColumns + ` FROM ` + from
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, q.Limit)
	query += fmt.Sprintf(` ORDER BY s.timestamp DESC, s.id DESC LIMIT $%d`, len(args))

	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tail: %w", err)
	}
	defer rows.Close()

	return s.scanSummaries(rows)
}

// ListPage retrieves one page of summaries, newest first, with a
// continuation cursor. The cursor encodes the last row's (timestamp, id)
// so pages never skip or repeat rows with equal timestamps.
func (s *SummaryStore) ListPage(ctx context.Context, q store.PageQuery) ([]*models.LogSummary, string, error) {
	var (
		conds []string
		args  []any
	)

	from := `log_summaries s`
	if q.AppID != "" {
		args = append(args, q.AppID)
		conds = append(conds, fmt.Sprintf("s.app_id = $%d", len(args)))
	} else {
		from += ` JOIN apps a ON a.id = s.app_id AND a.deleted_at IS NULL`
	}
	if q.MinLevelNum > 0 {
		args = append(args, q.MinLevelNum)
		conds = append(conds, fmt.Sprintf("s.level_num >= $%d", len(args)))
	}
	if !q.Before.IsZero() {
		args = append(args, q.Before)
		conds = append(conds, fmt.Sprintf("s.timestamp < $%d", len(args)))
	}
	if q.Cursor != "" {
		ts, id, err := decodeCursor(q.Cursor)
		if err != nil {
			return nil, "", err
		}
		args = append(args, ts, id)
		conds = append(conds, fmt.Sprintf("(s.timestamp, s.id) < ($%d, $%d)", len(args)-1, len(args)))
	}

	query := `SELECT ` + summaryColumns + ` FROM ` + from
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, q.PageSize)
	query += fmt.Sprintf(` ORDER BY s.timestamp DESC, s.id DESC LIMIT $%d`, len(args))

	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("querying page: %w", err)
	}
	defer rows.Close()

	sums, err := s.scanSummaries(rows)
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(sums) == q.PageSize && q.PageSize > 0 {
		last := sums[len(sums)-1]
		next = encodeCursor(last.Timestamp, last.ID)
	}

	return sums, next, nil
}

// ListRange retrieves an app's summaries with start <= timestamp < end,
// oldest first.
func (s *SummaryStore) ListRange(ctx context.Context, appID string, start, end time.Time) ([]*models.LogSummary, error) {
	query := `SELECT ` + summaryColumns + ` FROM log_summaries s
		WHERE s.app_id = $1 AND s.timestamp >= $2 AND s.timestamp < $3
		ORDER BY s.timestamp`

	rows, err := s.conn().QueryContext(ctx, query, appID, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying summary range: %w", err)
	}
	defer rows.Close()

	return s.scanSummaries(rows)
}

// CountWindow counts an app's summaries with timestamp >= since, and how
// many of those are error-level.
func (s *SummaryStore) CountWindow(ctx context.Context, appID string, since time.Time) (int, int, error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE level_num >= $3)
		FROM log_summaries
		WHERE app_id = $1 AND timestamp >= $2`

	var total, errCount int
	err := s.conn().QueryRowContext(ctx, query, appID, since, models.RankError).Scan(&total, &errCount)
	if err != nil {
		return 0, 0, fmt.Errorf("counting summary window: %w", err)
	}

	return total, errCount, nil
}

// DeleteOlderThan deletes up to limit summaries older than cutoff within
// one level category.
func (s *SummaryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time, errorLevel bool, limit int) (int, bool, error) {
	op := "<>"
	if errorLevel {
		op = "="
	}

	query := fmt.Sprintf(`
		DELETE FROM log_summaries
		WHERE id IN (
			SELECT id FROM log_summaries
			WHERE level %s 'error' AND timestamp < $1
			ORDER BY timestamp
			LIMIT $2
		)`, op)

	result, err := s.conn().ExecContext(ctx, query, cutoff, limit)
	if err != nil {
		return 0, false, fmt.Errorf("deleting old summaries: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("getting rows affected: %w", err)
	}

	more := false
	if deleted > 0 {
		existsQuery := fmt.Sprintf(
			`SELECT EXISTS(SELECT 1 FROM log_summaries WHERE level %s 'error' AND timestamp < $1)`, op)
		if err := s.conn().QueryRowContext(ctx, existsQuery, cutoff).Scan(&more); err != nil {
			return int(deleted), false, fmt.Errorf("checking remaining summaries: %w", err)
		}
	}

	return int(deleted), more, nil
}

// DeleteOrphans deletes up to limit summaries whose full record is gone.
func (s *SummaryStore) DeleteOrphans(ctx context.Context, limit int) (int, error) {
	query := `
		DELETE FROM log_summaries
		WHERE id IN (
			SELECT s.id FROM log_summaries s
			LEFT JOIN logs l ON l.id = s.log_id
			WHERE l.id IS NULL
			LIMIT $1
		)`

	result, err := s.conn().ExecContext(ctx, query, limit)
	if err != nil {
		return 0, fmt.Errorf("deleting orphan summaries: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	return int(deleted), nil
}

// DeleteByApp removes all summaries for one application.
func (s *SummaryStore) DeleteByApp(ctx context.Context, appID string) (int64, error) {
	result, err := s.conn().ExecContext(ctx, `DELETE FROM log_summaries WHERE app_id = $1`, appID)
	if err != nil {
		return 0, fmt.Errorf("deleting app summaries: %w", err)
	}
	return result.RowsAffected()
}

// DeleteAll removes all summaries.
func (s *SummaryStore) DeleteAll(ctx context.Context) (int64, error) {
	result, err := s.conn().ExecContext(ctx, `DELETE FROM log_summaries`)
	if err != nil {
		return 0, fmt.Errorf("deleting all summaries: %w", err)
	}
	return result.RowsAffected()
}

func (s *SummaryStore) scanSummaries(rows *sql.Rows) ([]*models.LogSummary, error) {
	var sums []*models.LogSummary

	for rows.Next() {
		sum := &models.LogSummary{}

		err := rows.Scan(
			&sum.ID,
			&sum.AppID,
			&sum.LogID,
			&sum.Timestamp,
			&sum.Level,
			&sum.LevelNum,
			&sum.MessageShort,
			&sum.Source,
			&sum.RequestID,
			&sum.HasMeta,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning summary row: %w", err)
		}

		sums = append(sums, sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating summary rows: %w", err)
	}

	return sums, nil
}

// encodeCursor packs a row position into an opaque continuation token.
func encodeCursor(ts time.Time, id string) string {
	raw := ts.UTC().Format(time.RFC3339Nano) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// decodeCursor unpacks a continuation token.
func decodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("invalid cursor format")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	return ts, parts[1], nil
}
