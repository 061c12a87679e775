// Package alerting evaluates alert rules over rolling time windows.
package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/logpeak/logpeak/internal/models"
	"github.com/logpeak/logpeak/internal/store"
)

// Evaluator checks every active alert rule against its trailing window
// and records trigger bookkeeping on fire.
type Evaluator struct {
	store  store.Store
	logger *slog.Logger
}

// New creates an alert evaluator.
func New(st store.Store, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		store:  st,
		logger: logger.With("component", "alerting"),
	}
}

// CheckAll evaluates all active rules. A failure for one rule is logged
// and does not block the rest. It returns the firings of this cycle.
func (e *Evaluator) CheckAll(ctx context.Context) ([]*models.AlertFiring, error) {
	rules, err := e.store.Alerts().ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing active rules: %w", err)
	}

	now := time.Now().UTC()
	var firings []*models.AlertFiring

	for _, rule := range rules {
		firing, err := e.checkRule(ctx, rule, now)
		if err != nil {
			e.logger.Error("rule evaluation failed", "rule_id", rule.ID, "error", err)
			continue
		}
		if firing != nil {
			firings = append(firings, firing)
		}
	}

	if len(firings) > 0 {
		e.logger.Info("alert check complete", "fired", len(firings), "rules", len(rules))
	}
	return firings, nil
}

// checkRule evaluates one rule and, on fire, atomically records the
// trigger. Count-based predicates read the summary tier; only duration
// rules touch full records for their metadata.
func (e *Evaluator) checkRule(ctx context.Context, rule *models.AlertRule, now time.Time) (*models.AlertFiring, error) {
	windowStart := now.Add(-time.Duration(rule.WindowMinutes) * time.Minute)

	total, errCount, err := e.store.Summaries().CountWindow(ctx, rule.AppID, windowStart)
	if err != nil {
		return nil, fmt.Errorf("counting window: %w", err)
	}

	fired := false
	switch rule.Type {
	case models.AlertErrorCount:
		fired = float64(errCount) >= rule.Threshold

	case models.AlertErrorRate:
		// An empty window has rate 0 and never fires, even at threshold 0.
		if total > 0 {
			fired = float64(errCount)/float64(total)*100 >= rule.Threshold
		}

	case models.AlertFunctionDuration:
		if rule.FunctionFilter == "" {
			return nil, nil
		}
		fired, err = e.durationExceeded(ctx, rule, windowStart)
		if err != nil {
			return nil, err
		}

	case models.AlertNoLogs:
		fired = total == 0

	default:
		return nil, fmt.Errorf("unknown rule type %q", rule.Type)
	}

	if !fired {
		return nil, nil
	}

	if err := e.store.Alerts().RecordTrigger(ctx, rule.ID, now); err != nil {
		return nil, fmt.Errorf("recording trigger: %w", err)
	}
	alertFiringsTotal.WithLabelValues(string(rule.Type)).Inc()

	return &models.AlertFiring{
		RuleID:       rule.ID,
		RuleName:     rule.Name,
		AppID:        rule.AppID,
		Type:         rule.Type,
		WindowLogs:   total,
		WindowErrors: errCount,
		FiredAt:      now,
	}, nil
}

// durationExceeded reports whether any record whose source matches the
// rule's function filter carries a metadata duration at or above the
// threshold (milliseconds).
func (e *Evaluator) durationExceeded(ctx context.Context, rule *models.AlertRule, windowStart time.Time) (bool, error) {
	recs, err := e.store.Logs().ListWindow(ctx, rule.AppID, windowStart)
	if err != nil {
		return false, fmt.Errorf("listing window records: %w", err)
	}

	filter := strings.ToLower(rule.FunctionFilter)
	for _, rec := range recs {
		if !strings.Contains(strings.ToLower(rec.Source), filter) {
			continue
		}
		if metadataDuration(rec.Metadata) >= rule.Threshold {
			return true, nil
		}
	}
	return false, nil
}

// metadataDuration extracts a duration in milliseconds from a record's
// metadata bag, or 0 when absent.
func metadataDuration(metadata json.RawMessage) float64 {
	if len(metadata) == 0 {
		return 0
	}

	var meta struct {
		ExecutionTimeMs float64 `json:"execution_time_ms"`
		DurationMs      float64 `json:"duration_ms"`
	}
	if err := json.Unmarshal(metadata, &meta); err != nil {
		return 0
	}
	if meta.ExecutionTimeMs > 0 {
		return meta.ExecutionTimeMs
	}
	return meta.DurationMs
}
