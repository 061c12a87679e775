// Package aggregate condenses summary rows into hourly metrics buckets.
package aggregate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/logpeak/logpeak/internal/models"
	"github.com/logpeak/logpeak/internal/store"
)

// Aggregator builds one pre-aggregated metrics bucket per (app, hour).
// Buckets are write-once; re-running an hour is a no-op.
type Aggregator struct {
	store  store.Store
	logger *slog.Logger
}

// New creates a metrics aggregator.
func New(st store.Store, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:  st,
		logger: logger.With("component", "aggregate"),
	}
}

// RunHour aggregates the hour containing target for every active
// application. A failure for one application is logged and does not stop
// the others. It returns the number of buckets written.
func (a *Aggregator) RunHour(ctx context.Context, target time.Time) (int, error) {
	hourStart := target.UTC().Truncate(time.Hour)

	apps, err := a.store.Apps().ListActive(ctx)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, app := range apps {
		ok, err := a.aggregateApp(ctx, app.ID, hourStart)
		if err != nil {
			a.logger.Error("aggregation failed", "app_id", app.ID, "hour", hourStart, "error", err)
			continue
		}
		if ok {
			written++
		}
	}

	if written > 0 {
		a.logger.Info("hourly aggregation complete", "hour", hourStart, "buckets", written)
	}
	return written, nil
}

// aggregateApp writes one hourly bucket for the app, or skips when the
// bucket already exists. Reports whether a bucket was written.
func (a *Aggregator) aggregateApp(ctx context.Context, appID string, hourStart time.Time) (bool, error) {
	exists, err := a.store.Metrics().Exists(ctx, appID, models.PeriodHour, hourStart)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	sums, err := a.store.Summaries().ListRange(ctx, appID, hourStart, hourStart.Add(time.Hour))
	if err != nil {
		return false, err
	}

	bucket := &models.MetricsBucket{
		ID:          uuid.NewString(),
		AppID:       appID,
		Period:      models.PeriodHour,
		PeriodStart: hourStart,
	}

	for _, sum := range sums {
		bucket.TotalCount++
		switch sum.Level {
		case models.LevelError:
			bucket.ErrorCount++
		case models.LevelWarn:
			bucket.WarnCount++
		case models.LevelDebug:
			bucket.DebugCount++
		default:
			bucket.InfoCount++
		}
		if strings.Contains(sum.MessageShort, models.FlagMarker) {
			bucket.FlaggedCount++
		}
	}
	bucket.AvgPerMinute = float64(bucket.TotalCount) / 60

	if err := a.store.Metrics().Create(ctx, bucket); err != nil {
		// Lost a write-once race with a concurrent run; the hour is done.
		if errors.Is(err, store.ErrDuplicateBucket) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
