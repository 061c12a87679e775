package retention

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/logpeak/logpeak/internal/models"
	"github.com/logpeak/logpeak/internal/store"
	"github.com/logpeak/logpeak/internal/store/memory"
)

func testSweeper(st store.Store, policy Policy) *Sweeper {
	return NewSweeper(st, slog.New(slog.NewTextHandler(io.Discard, nil)), policy)
}

func insertRecord(t *testing.T, st store.Store, appID string, level models.Level, age time.Duration) *models.LogRecord {
	t.Helper()

	rec := &models.LogRecord{
		ID:        uuid.NewString(),
		AppID:     appID,
		Timestamp: time.Now().UTC().Add(-age),
		Level:     level,
		Message:   "msg",
		Raw:       "{}",
	}
	if err := st.Logs().Create(context.Background(), rec); err != nil {
		t.Fatalf("creating record: %v", err)
	}

	sum := rec.Summarize()
	sum.ID = uuid.NewString()
	if err := st.Summaries().Create(context.Background(), sum); err != nil {
		t.Fatalf("creating summary: %v", err)
	}
	return rec
}

func TestSweepDifferentiatedCutoffs(t *testing.T) {
	st := memory.New()
	appID := uuid.NewString()

	old := insertRecord(t, st, appID, models.LevelInfo, 80*time.Hour)
	kept := insertRecord(t, st, appID, models.LevelError, 10*24*time.Hour)

	res := testSweeper(st, DefaultPolicy()).Sweep(context.Background())
	if res.LogsDeleted != 1 || res.SummariesDeleted != 1 {
		t.Fatalf("expected 1 log and 1 summary deleted, got %+v", res)
	}

	if _, err := st.Logs().Get(context.Background(), old.ID); err == nil {
		t.Error("80h non-error record survived the sweep")
	}
	if _, err := st.Logs().Get(context.Background(), kept.ID); err != nil {
		t.Error("10d error record was deleted before its 14d window")
	}
}

func TestSweepBatchBoundAndHasMore(t *testing.T) {
	st := memory.New()
	appID := uuid.NewString()

	for i := 0; i < 5; i++ {
		insertRecord(t, st, appID, models.LevelInfo, 100*time.Hour)
	}

	policy := DefaultPolicy()
	policy.BatchSize = 2
	sweeper := testSweeper(st, policy)

	res := sweeper.Sweep(context.Background())
	if res.LogsDeleted != 2 {
		t.Fatalf("expected batch-bounded 2 deletions, got %d", res.LogsDeleted)
	}
	if !res.HasMore {
		t.Fatal("expected HasMore with eligible rows remaining")
	}
}

func TestSweepTrendsToZero(t *testing.T) {
	st := memory.New()
	appID := uuid.NewString()

	for i := 0; i < 3; i++ {
		insertRecord(t, st, appID, models.LevelInfo, 100*time.Hour)
	}

	policy := DefaultPolicy()
	policy.BatchSize = 2
	sweeper := testSweeper(st, policy)

	first := sweeper.Sweep(context.Background())
	second := sweeper.Sweep(context.Background())
	third := sweeper.Sweep(context.Background())

	if first.LogsDeleted != 2 || second.LogsDeleted != 1 || third.LogsDeleted != 0 {
		t.Fatalf("expected shrinking counts 2,1,0; got %d,%d,%d",
			first.LogsDeleted, second.LogsDeleted, third.LogsDeleted)
	}
	if third.HasMore {
		t.Fatal("expected HasMore=false once exhausted")
	}
}

func TestSweepHealsOrphanedSummaries(t *testing.T) {
	st := memory.New()
	appID := uuid.NewString()
	ctx := context.Background()

	rec := insertRecord(t, st, appID, models.LevelInfo, time.Minute)

	// Simulate a crash between the paired deletes: the full record is
	// gone but its summary remains.
	if _, err := st.Logs().DeleteByApp(ctx, appID); err != nil {
		t.Fatalf("deleting records: %v", err)
	}

	res := testSweeper(st, DefaultPolicy()).Sweep(ctx)
	if res.OrphansDeleted != 1 {
		t.Fatalf("expected 1 orphan healed, got %d", res.OrphansDeleted)
	}

	sums, err := st.Summaries().ListTail(ctx, store.TailQuery{AppID: appID, Limit: 10})
	if err != nil {
		t.Fatalf("listing summaries: %v", err)
	}
	if len(sums) != 0 {
		t.Fatalf("dangling summary for %s survived", rec.ID)
	}
}

func TestSweepMetricsWindow(t *testing.T) {
	st := memory.New()
	appID := uuid.NewString()
	ctx := context.Background()

	oldStart := time.Now().UTC().Add(-100 * 24 * time.Hour).Truncate(time.Hour)
	recentStart := time.Now().UTC().Add(-time.Hour).Truncate(time.Hour)
	for _, start := range []time.Time{oldStart, recentStart} {
		err := st.Metrics().Create(ctx, &models.MetricsBucket{
			ID:          uuid.NewString(),
			AppID:       appID,
			Period:      models.PeriodHour,
			PeriodStart: start,
		})
		if err != nil {
			t.Fatalf("creating bucket: %v", err)
		}
	}

	deleted, err := testSweeper(st, DefaultPolicy()).SweepMetrics(ctx)
	if err != nil {
		t.Fatalf("sweeping metrics: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 old bucket deleted, got %d", deleted)
	}

	buckets, err := st.Metrics().ListRange(ctx, appID, models.PeriodHour, time.Time{})
	if err != nil {
		t.Fatalf("listing buckets: %v", err)
	}
	if len(buckets) != 1 || !buckets[0].PeriodStart.Equal(recentStart) {
		t.Fatalf("unexpected surviving buckets: %v", buckets)
	}
}
