// Package jobs drives the periodic background work: alert checks,
// retention sweeps and hourly metrics aggregation.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/logpeak/logpeak/internal/aggregate"
	"github.com/logpeak/logpeak/internal/alerting"
	"github.com/logpeak/logpeak/internal/models"
	"github.com/logpeak/logpeak/internal/retention"
	"github.com/logpeak/logpeak/pkg/config"
)

// maxSweepRounds bounds immediate re-invocations when a sweep reports
// more eligible rows.
const maxSweepRounds = 20

// Runner owns the ticker loops for all scheduled jobs.
type Runner struct {
	evaluator  *alerting.Evaluator
	sweeper    *retention.Sweeper
	aggregator *aggregate.Aggregator
	intervals  config.JobsConfig
	logger     *slog.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

// NewRunner creates a job runner.
func NewRunner(
	evaluator *alerting.Evaluator,
	sweeper *retention.Sweeper,
	aggregator *aggregate.Aggregator,
	intervals config.JobsConfig,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		evaluator:  evaluator,
		sweeper:    sweeper,
		aggregator: aggregator,
		intervals:  intervals,
		logger:     logger.With("component", "jobs"),
		stopChan:   make(chan struct{}),
	}
}

// Start runs the job loops until the context is cancelled or Stop is
// called. The aggregation tick targets the previous hour so a bucket is
// only built once its hour has fully elapsed.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.stopChan = make(chan struct{})
	r.mu.Unlock()

	r.logger.Info("starting job runner",
		"alert_interval", r.intervals.AlertCheckInterval,
		"sweep_interval", r.intervals.SweepInterval,
		"aggregation_interval", r.intervals.AggregationInterval,
		"metrics_sweep_interval", r.intervals.MetricsSweepInterval,
	)

	alertTicker := time.NewTicker(r.intervals.AlertCheckInterval)
	sweepTicker := time.NewTicker(r.intervals.SweepInterval)
	aggTicker := time.NewTicker(r.intervals.AggregationInterval)
	metricsSweepTicker := time.NewTicker(r.intervals.MetricsSweepInterval)
	defer alertTicker.Stop()
	defer sweepTicker.Stop()
	defer aggTicker.Stop()
	defer metricsSweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job runner stopped by context")
			return ctx.Err()
		case <-r.stopChan:
			r.logger.Info("job runner stopped")
			return nil
		case <-alertTicker.C:
			if _, err := r.evaluator.CheckAll(ctx); err != nil {
				r.logger.Error("alert check failed", "error", err)
			}
		case <-sweepTicker.C:
			r.RunSweep(ctx)
		case <-aggTicker.C:
			target := time.Now().UTC().Add(-time.Hour)
			if _, err := r.aggregator.RunHour(ctx, target); err != nil {
				r.logger.Error("aggregation failed", "error", err)
			}
		case <-metricsSweepTicker.C:
			if _, err := r.sweeper.SweepMetrics(ctx); err != nil {
				r.logger.Error("metrics sweep failed", "error", err)
			}
		}
	}
}

// Stop stops the job runner.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		close(r.stopChan)
		r.running = false
	}
}

// RunAlertCheck evaluates all active alert rules immediately.
func (r *Runner) RunAlertCheck(ctx context.Context) ([]*models.AlertFiring, error) {
	return r.evaluator.CheckAll(ctx)
}

// RunMetricsSweep drops expired metrics buckets immediately.
func (r *Runner) RunMetricsSweep(ctx context.Context) (int64, error) {
	return r.sweeper.SweepMetrics(ctx)
}

// RunSweep runs retention sweeps back to back while more eligible rows
// remain, up to a fixed round bound.
func (r *Runner) RunSweep(ctx context.Context) *retention.SweepResult {
	total := &retention.SweepResult{}

	for i := 0; i < maxSweepRounds; i++ {
		res := r.sweeper.Sweep(ctx)
		total.LogsDeleted += res.LogsDeleted
		total.SummariesDeleted += res.SummariesDeleted
		total.OrphansDeleted += res.OrphansDeleted
		total.HasMore = res.HasMore
		if !res.HasMore {
			break
		}
	}

	return total
}
