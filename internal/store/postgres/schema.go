package postgres

import (
	"database/sql"
	"fmt"
)

// schema holds the table and index definitions. Every read path is backed
// by one of these indexes; there are no full-table predicate scans.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role VARCHAR(16) NOT NULL DEFAULT 'member',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS apps (
		id UUID PRIMARY KEY,
		owner_id UUID NOT NULL,
		name VARCHAR(63) NOT NULL,
		api_key VARCHAR(64) NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		flag_rules JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_apps_api_key ON apps(api_key)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_apps_owner_name ON apps(owner_id, name) WHERE deleted_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_apps_owner ON apps(owner_id) WHERE deleted_at IS NULL`,

	`CREATE TABLE IF NOT EXISTS logs (
		id UUID PRIMARY KEY,
		app_id UUID NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		level VARCHAR(8) NOT NULL,
		message TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		metadata JSONB,
		raw TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_logs_app_ts ON logs(app_id, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_logs_app_level ON logs(app_id, level)`,
	`CREATE INDEX IF NOT EXISTS idx_logs_app_source ON logs(app_id, source)`,
	`CREATE INDEX IF NOT EXISTS idx_logs_ts ON logs(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_logs_level_ts ON logs(level, timestamp)`,

	`CREATE TABLE IF NOT EXISTS log_summaries (
		id UUID PRIMARY KEY,
		app_id UUID NOT NULL,
		log_id UUID NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		level VARCHAR(8) NOT NULL,
		level_num SMALLINT NOT NULL,
		message_short VARCHAR(120) NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT '',
		has_meta BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_summaries_log ON log_summaries(log_id)`,
	`CREATE INDEX IF NOT EXISTS idx_summaries_app_ts ON log_summaries(app_id, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_summaries_app_level ON log_summaries(app_id, level)`,
	`CREATE INDEX IF NOT EXISTS idx_summaries_app_source ON log_summaries(app_id, source)`,
	`CREATE INDEX IF NOT EXISTS idx_summaries_ts ON log_summaries(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_summaries_level_ts ON log_summaries(level, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_summaries_levelnum_ts ON log_summaries(level_num, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_summaries_app_levelnum_ts ON log_summaries(app_id, level_num, timestamp)`,

	`CREATE TABLE IF NOT EXISTS alert_rules (
		id UUID PRIMARY KEY,
		app_id UUID NOT NULL,
		owner_id UUID NOT NULL,
		name VARCHAR(120) NOT NULL,
		type VARCHAR(32) NOT NULL,
		threshold DOUBLE PRECISION NOT NULL,
		window_minutes INTEGER NOT NULL,
		function_filter TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		last_triggered TIMESTAMPTZ,
		trigger_count BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_app ON alert_rules(app_id)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_active ON alert_rules(active) WHERE active`,

	`CREATE TABLE IF NOT EXISTS metrics_buckets (
		id UUID PRIMARY KEY,
		app_id UUID NOT NULL,
		period VARCHAR(8) NOT NULL,
		period_start TIMESTAMPTZ NOT NULL,
		total_count BIGINT NOT NULL,
		error_count BIGINT NOT NULL,
		warn_count BIGINT NOT NULL,
		info_count BIGINT NOT NULL,
		debug_count BIGINT NOT NULL,
		flagged_count BIGINT NOT NULL,
		avg_per_minute DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_buckets_app_period_start ON metrics_buckets(app_id, period, period_start)`,
	`CREATE INDEX IF NOT EXISTS idx_buckets_start ON metrics_buckets(period_start)`,
}

// Migrate applies the schema. Statements are idempotent.
func Migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}
	return nil
}
