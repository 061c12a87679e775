package aggregate

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

func testAggregator(st store.Store) *Aggregator {
	return New(st, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func createApp(t *testing.T, st store.Store) *models.App {
	t.Helper()

	app := &models.App{
		ID:      uuid.NewString(),
		OwnerID: uuid.NewString(),
		Name:    "app-" + uuid.NewString(),
		APIKey:  uuid.NewString(),
		Active:  true,
	}
	if err := st.Apps().Create(context.Background(), app); err != nil {
		t.Fatalf("creating app: %v", err)
	}
	return app
}

func insertSummary(t *testing.T, st store.Store, appID string, ts time.Time, level models.Level, message string) {
	t.Helper()

	err := st.Summaries().Create(context.Background(), &models.LogSummary{
		ID:           uuid.NewString(),
		AppID:        appID,
		LogID:        uuid.NewString(),
		Timestamp:    ts,
		Level:        level,
		LevelNum:     level.Rank(),
		MessageShort: models.TruncateMessage(message),
	})
	if err != nil {
		t.Fatalf("creating summary: %v", err)
	}
}

func TestRunHourCounts(t *testing.T) {
	st := memory.New()
	app := createApp(t, st)
	ctx := context.Background()

	hour := time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC)
	insertSummary(t, st, app.ID, hour.Add(5*time.Minute), models.LevelInfo, "ok")
	insertSummary(t, st, app.ID, hour.Add(10*time.Minute), models.LevelError, "boom")
	insertSummary(t, st, app.ID, hour.Add(20*time.Minute), models.LevelWarn, models.FlagMarker+" slow: Function f success")
	insertSummary(t, st, app.ID, hour.Add(30*time.Minute), models.LevelDebug, "trace")
	// Outside the hour, must not count.
	insertSummary(t, st, app.ID, hour.Add(61*time.Minute), models.LevelError, "late")

	written, err := testAggregator(st).RunHour(ctx, hour.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("aggregating: %v", err)
	}
	if written != 1 {
		t.Fatalf("expected 1 bucket written, got %d", written)
	}

	buckets, err := st.Metrics().ListRange(ctx, app.ID, models.PeriodHour, time.Time{})
	if err != nil {
		t.Fatalf("listing buckets: %v", err)
	}
	if len(buckets) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(buckets))
	}

	b := buckets[0]
	if b.TotalCount != 4 || b.ErrorCount != 1 || b.WarnCount != 1 || b.InfoCount != 1 || b.DebugCount != 1 {
		t.Errorf("unexpected counts: %+v", b)
	}
	if b.FlaggedCount != 1 {
		t.Errorf("flagged count = %d, want 1", b.FlaggedCount)
	}
	if want := 4.0 / 60; b.AvgPerMinute != want {
		t.Errorf("avg per minute = %v, want %v", b.AvgPerMinute, want)
	}
	if !b.PeriodStart.Equal(hour) {
		t.Errorf("period start = %v, want %v", b.PeriodStart, hour)
	}
}

func TestRunHourIdempotent(t *testing.T) {
	st := memory.New()
	app := createApp(t, st)
	ctx := context.Background()

	hour := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	insertSummary(t, st, app.ID, hour.Add(time.Minute), models.LevelInfo, "ok")

	agg := testAggregator(st)
	if _, err := agg.RunHour(ctx, hour); err != nil {
		t.Fatalf("first run: %v", err)
	}
	written, err := agg.RunHour(ctx, hour)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if written != 0 {
		t.Fatalf("second run wrote %d buckets, want 0", written)
	}

	buckets, err := st.Metrics().ListRange(ctx, app.ID, models.PeriodHour, time.Time{})
	if err != nil {
		t.Fatalf("listing buckets: %v", err)
	}
	if len(buckets) != 1 {
		t.Fatalf("expected exactly 1 bucket after double run, got %d", len(buckets))
	}
}

func TestRunHourEmptyWindow(t *testing.T) {
	st := memory.New()
	app := createApp(t, st)
	ctx := context.Background()

	hour := time.Date(2026, 8, 20, 3, 0, 0, 0, time.UTC)
	if _, err := testAggregator(st).RunHour(ctx, hour); err != nil {
		t.Fatalf("aggregating: %v", err)
	}

	buckets, err := st.Metrics().ListRange(ctx, app.ID, models.PeriodHour, time.Time{})
	if err != nil {
		t.Fatalf("listing buckets: %v", err)
	}
	if len(buckets) != 1 {
		t.Fatalf("expected a zero bucket, got %d", len(buckets))
	}
	if buckets[0].TotalCount != 0 || buckets[0].AvgPerMinute != 0 {
		t.Errorf("expected zero counts, got %+v", buckets[0])
	}
}

func TestRunHourSkipsInactiveApps(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	app := createApp(t, st)
	app.Active = false
	if err := st.Apps().Update(ctx, app); err != nil {
		t.Fatalf("deactivating app: %v", err)
	}

	hour := time.Date(2026, 8, 20, 5, 0, 0, 0, time.UTC)
	insertSummary(t, st, app.ID, hour.Add(time.Minute), models.LevelInfo, "ok")

	written, err := testAggregator(st).RunHour(ctx, hour)
	if err != nil {
		t.Fatalf("aggregating: %v", err)
	}
	if written != 0 {
		t.Fatalf("inactive app produced %d buckets", written)
	}
}
