// Package store provides database access interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/logpeak/logpeak/internal/models"
)

// Common store errors. Both drivers return these sentinels so callers can
// branch without knowing the backend.
var (
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrDuplicateName is returned when attempting to create a resource with a duplicate name.
	ErrDuplicateName = errors.New("duplicate name")

	// ErrDuplicateBucket is returned when a metrics bucket already exists
	// for the same (app, period, period_start).
	ErrDuplicateBucket = errors.New("metrics bucket already exists")

	// ErrInvalidCredentials is returned when user authentication fails.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// TailQuery selects the most recent summaries for the live tail view.
type TailQuery struct {
	// AppID filters to one application when non-empty.
	AppID string
	// Since excludes summaries at or before this instant when non-zero.
	Since time.Time
	// MinLevelNum excludes summaries below this rank.
	MinLevelNum int
	// Limit bounds the result size.
	Limit int
}

// PageQuery selects one page of historical summaries, newest first.
type PageQuery struct {
	// AppID filters to one application when non-empty.
	AppID string
	// Before excludes summaries at or after this instant when non-zero.
	Before time.Time
	// Cursor is the opaque continuation token from a previous page.
	Cursor string
	// MinLevelNum excludes summaries below this rank.
	MinLevelNum int
	// PageSize bounds the page size.
	PageSize int
}

// AppStore defines operations for monitored application management.
type AppStore interface {
	// Create creates a new application.
	Create(ctx context.Context, app *models.App) error
	// Get retrieves an application by ID. Soft-deleted apps are not returned.
	Get(ctx context.Context, id string) (*models.App, error)
	// GetByAPIKey retrieves an active, non-deleted application by its API key.
	GetByAPIKey(ctx context.Context, apiKey string) (*models.App, error)
	// List retrieves all applications for a given owner.
	List(ctx context.Context, ownerID string) ([]*models.App, error)
	// ListActive retrieves all active, non-deleted applications.
	ListActive(ctx context.Context) ([]*models.App, error)
	// Update updates an application's name, active flag and flag rules.
	Update(ctx context.Context, app *models.App) error
	// RotateAPIKey replaces the application's API key and returns the new key.
	RotateAPIKey(ctx context.Context, id, newKey string) error
	// Delete soft-deletes an application. Its data is retained until purged.
	Delete(ctx context.Context, id string) error
	// Restore clears an application's soft-delete marker.
	Restore(ctx context.Context, id string) error
}

// LogStore defines operations on full log records.
type LogStore interface {
	// Create creates a new full log record.
	Create(ctx context.Context, rec *models.LogRecord) error
	// Get retrieves a full record by ID.
	Get(ctx context.Context, id string) (*models.LogRecord, error)
	// ListWindow retrieves an app's full records with timestamp >= since,
	// newest first. Used by duration-based alert rules that need metadata.
	ListWindow(ctx context.Context, appID string, since time.Time) ([]*models.LogRecord, error)
	// DeleteOlderThan deletes up to limit records older than cutoff,
	// restricted to error-level records when errorLevel is true and to all
	// other levels otherwise. It reports the number deleted and whether
	// more eligible records remain.
	DeleteOlderThan(ctx context.Context, cutoff time.Time, errorLevel bool, limit int) (int, bool, error)
	// DeleteByApp removes all records for one application.
	DeleteByApp(ctx context.Context, appID string) (int64, error)
	// DeleteAll removes all records.
	DeleteAll(ctx context.Context) (int64, error)
}

// SummaryStore defines operations on log summary records.
type SummaryStore interface {
	// Create creates a new summary record.
	Create(ctx context.Context, sum *models.LogSummary) error
	// ListTail retrieves the newest summaries matching the query, newest first.
	ListTail(ctx context.Context, q TailQuery) ([]*models.LogSummary, error)
	// ListPage retrieves one page of summaries, newest first, and the
	// cursor for the next page ("" when exhausted).
	ListPage(ctx context.Context, q PageQuery) ([]*models.LogSummary, string, error)
	// ListRange retrieves an app's summaries with start <= timestamp < end,
	// oldest first. Used by the metrics aggregator.
	ListRange(ctx context.Context, appID string, start, end time.Time) ([]*models.LogSummary, error)
	// CountWindow counts an app's summaries with timestamp >= since, and
	// how many of those are error-level.
	CountWindow(ctx context.Context, appID string, since time.Time) (total int, errors int, err error)
	// DeleteOlderThan mirrors LogStore.DeleteOlderThan for summaries.
	DeleteOlderThan(ctx context.Context, cutoff time.Time, errorLevel bool, limit int) (int, bool, error)
	// DeleteOrphans deletes up to limit summaries whose full record no
	// longer exists. Dangling summaries self-heal through this call.
	DeleteOrphans(ctx context.Context, limit int) (int, error)
	// DeleteByApp removes all summaries for one application.
	DeleteByApp(ctx context.Context, appID string) (int64, error)
	// DeleteAll removes all summaries.
	DeleteAll(ctx context.Context) (int64, error)
}

// AlertStore defines operations for alert rule management.
type AlertStore interface {
	// Create creates a new alert rule.
	Create(ctx context.Context, rule *models.AlertRule) error
	// Get retrieves an alert rule by ID.
	Get(ctx context.Context, id string) (*models.AlertRule, error)
	// ListByApp retrieves all rules for one application.
	ListByApp(ctx context.Context, appID string) ([]*models.AlertRule, error)
	// ListActive retrieves all active rules across applications.
	ListActive(ctx context.Context) ([]*models.AlertRule, error)
	// Update updates a rule's definition fields.
	Update(ctx context.Context, rule *models.AlertRule) error
	// Delete removes a rule.
	Delete(ctx context.Context, id string) error
	// RecordTrigger atomically sets last_triggered and increments
	// trigger_count by exactly one.
	RecordTrigger(ctx context.Context, id string, firedAt time.Time) error
}

// MetricsStore defines operations for pre-aggregated metrics buckets.
type MetricsStore interface {
	// Create inserts a bucket. Returns ErrDuplicateBucket if one already
	// exists for the same (app, period, period_start).
	Create(ctx context.Context, bucket *models.MetricsBucket) error
	// Exists reports whether a bucket exists for (app, period, start).
	Exists(ctx context.Context, appID string, period models.MetricsPeriod, start time.Time) (bool, error)
	// ListRange retrieves an app's buckets of one period with
	// period_start >= from, oldest first.
	ListRange(ctx context.Context, appID string, period models.MetricsPeriod, from time.Time) ([]*models.MetricsBucket, error)
	// DeleteOlderThan removes buckets with period_start older than cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Role represents a dashboard user's role.
type Role string

const (
	// RoleOwner has full access including administrative operations.
	RoleOwner Role = "owner"
	// RoleMember has standard access without admin functions.
	RoleMember Role = "member"
)

// User represents a dashboard user.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// UserStore defines operations for dashboard user management.
type UserStore interface {
	// Create creates a new user with a hashed password.
	Create(ctx context.Context, email, password string, role Role) (*User, error)
	// GetByEmail retrieves a user by email.
	GetByEmail(ctx context.Context, email string) (*User, error)
	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id string) (*User, error)
	// Authenticate verifies credentials and returns the user.
	Authenticate(ctx context.Context, email, password string) (*User, error)
	// CountByRole returns the number of users with a specific role.
	CountByRole(ctx context.Context, role Role) (int, error)
}

// Store is the main interface for database operations.
type Store interface {
	// Apps returns the AppStore for application operations.
	Apps() AppStore
	// Logs returns the LogStore for full log record operations.
	Logs() LogStore
	// Summaries returns the SummaryStore for summary record operations.
	Summaries() SummaryStore
	// Alerts returns the AlertStore for alert rule operations.
	Alerts() AlertStore
	// Metrics returns the MetricsStore for metrics bucket operations.
	Metrics() MetricsStore
	// Users returns the UserStore for dashboard user operations.
	Users() UserStore

	// WithTx executes the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// Otherwise, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Ping verifies backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
