// Package retention implements the differentiated retention sweeper:
// short-lived normal records, long-lived error records, bounded deletes
// per invocation.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/logpeak/logpeak/internal/store"
)

// Policy holds the sweeper's cutoff windows and per-category batch size.
type Policy struct {
	// NormalWindow is how long non-error records are retained.
	NormalWindow time.Duration
	// ErrorWindow is how long error records are retained.
	ErrorWindow time.Duration
	// BatchSize caps deletions per category per invocation.
	BatchSize int
	// MetricsWindow is how long pre-aggregated buckets are retained.
	MetricsWindow time.Duration
}

// DefaultPolicy returns the standard retention policy.
func DefaultPolicy() Policy {
	return Policy{
		NormalWindow:  72 * time.Hour,
		ErrorWindow:   14 * 24 * time.Hour,
		BatchSize:     50,
		MetricsWindow: 90 * 24 * time.Hour,
	}
}

// SweepResult reports one sweep invocation. HasMore tells the caller
// whether eligible rows remain so it can re-invoke before the next tick.
type SweepResult struct {
	LogsDeleted      int  `json:"logs_deleted"`
	SummariesDeleted int  `json:"summaries_deleted"`
	OrphansDeleted   int  `json:"orphans_deleted"`
	HasMore          bool `json:"has_more"`
}

// Sweeper deletes records past their level-dependent retention window.
type Sweeper struct {
	store  store.Store
	logger *slog.Logger
	policy Policy
}

// NewSweeper creates a retention sweeper.
func NewSweeper(st store.Store, logger *slog.Logger, policy Policy) *Sweeper {
	if policy.BatchSize <= 0 {
		policy.BatchSize = DefaultPolicy().BatchSize
	}
	return &Sweeper{
		store:  st,
		logger: logger.With("component", "retention"),
		policy: policy,
	}
}

// Sweep runs one bounded cleanup pass: up to BatchSize old non-error and
// BatchSize old error records from each tier, then a pass over dangling
// summaries whose full record is already gone. A failure in one category
// is logged and does not stop the others.
func (s *Sweeper) Sweep(ctx context.Context) *SweepResult {
	now := time.Now().UTC()
	normalCutoff := now.Add(-s.policy.NormalWindow)
	errorCutoff := now.Add(-s.policy.ErrorWindow)

	res := &SweepResult{}

	for _, cat := range []struct {
		cutoff     time.Time
		errorLevel bool
	}{
		{normalCutoff, false},
		{errorCutoff, true},
	} {
		n, more, err := s.store.Logs().DeleteOlderThan(ctx, cat.cutoff, cat.errorLevel, s.policy.BatchSize)
		if err != nil {
			s.logger.Error("log sweep failed", "error_level", cat.errorLevel, "error", err)
		} else {
			res.LogsDeleted += n
			res.HasMore = res.HasMore || more
		}

		n, more, err = s.store.Summaries().DeleteOlderThan(ctx, cat.cutoff, cat.errorLevel, s.policy.BatchSize)
		if err != nil {
			s.logger.Error("summary sweep failed", "error_level", cat.errorLevel, "error", err)
		} else {
			res.SummariesDeleted += n
			res.HasMore = res.HasMore || more
		}
	}

	orphans, err := s.store.Summaries().DeleteOrphans(ctx, s.policy.BatchSize)
	if err != nil {
		s.logger.Error("orphan sweep failed", "error", err)
	} else {
		res.OrphansDeleted = orphans
	}

	if res.LogsDeleted > 0 || res.SummariesDeleted > 0 || res.OrphansDeleted > 0 {
		s.logger.Info("retention sweep complete",
			"logs_deleted", res.LogsDeleted,
			"summaries_deleted", res.SummariesDeleted,
			"orphans_deleted", res.OrphansDeleted,
			"has_more", res.HasMore,
		)
	}

	sweepDeletedTotal.WithLabelValues("logs").Add(float64(res.LogsDeleted))
	sweepDeletedTotal.WithLabelValues("summaries").Add(float64(res.SummariesDeleted))
	sweepDeletedTotal.WithLabelValues("orphans").Add(float64(res.OrphansDeleted))

	return res
}

// SweepMetrics removes pre-aggregated buckets past the metrics window.
func (s *Sweeper) SweepMetrics(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.policy.MetricsWindow)

	deleted, err := s.store.Metrics().DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("metrics sweep complete", "buckets_deleted", deleted)
	}
	return deleted, nil
}
