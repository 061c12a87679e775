package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/logpeak/logpeak/internal/models"
	"github.com/logpeak/logpeak/internal/store"
	"github.com/logpeak/logpeak/internal/store/memory"
)

func newTestApp(t *testing.T, st store.Store, rules ...models.FlagRule) *models.App {
	t.Helper()

	app := &models.App{
		ID:        uuid.NewString(),
		OwnerID:   uuid.NewString(),
		Name:      "test-app",
		APIKey:    "key-" + uuid.NewString(),
		Active:    true,
		FlagRules: rules,
	}
	if err := st.Apps().Create(context.Background(), app); err != nil {
		t.Fatalf("creating app: %v", err)
	}
	return app
}

func testPipeline(st store.Store, maxEvents int) *Pipeline {
	return NewPipeline(st, slog.New(slog.NewTextHandler(io.Discard, nil)), maxEvents)
}

func storedLogs(t *testing.T, st store.Store, appID string) []*models.LogRecord {
	t.Helper()

	recs, err := st.Logs().ListWindow(context.Background(), appID, time.Time{})
	if err != nil {
		t.Fatalf("listing logs: %v", err)
	}
	return recs
}

func storedSummaries(t *testing.T, st store.Store, appID string) []*models.LogSummary {
	t.Helper()

	sums, err := st.Summaries().ListTail(context.Background(), store.TailQuery{AppID: appID, Limit: 1000})
	if err != nil {
		t.Fatalf("listing summaries: %v", err)
	}
	return sums
}

func TestIngestInvalidAPIKey(t *testing.T) {
	st := memory.New()
	newTestApp(t, st)

	_, err := testPipeline(st, 100).Ingest(context.Background(), "wrong-key", `{"topic":"console","message":"x"}`)
	if !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestIngestInactiveAppRejected(t *testing.T) {
	st := memory.New()
	app := newTestApp(t, st)
	app.Active = false
	if err := st.Apps().Update(context.Background(), app); err != nil {
		t.Fatalf("deactivating app: %v", err)
	}

	_, err := testPipeline(st, 100).Ingest(context.Background(), app.APIKey, `{"message":"x"}`)
	if !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
	if got := storedLogs(t, st, app.ID); len(got) != 0 {
		t.Fatalf("expected no writes, got %d records", len(got))
	}
}

func TestIngestPairedWrites(t *testing.T) {
	st := memory.New()
	app := newTestApp(t, st)

	body := `{"topic":"console","log_level":"warn","message":"slow request"}
{"topic":"verification","deployment_id":"dep-1"}
{"message":"generic event"}`

	res, err := testPipeline(st, 100).Ingest(context.Background(), app.APIKey, body)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Processed != 3 || res.Skipped != 0 || res.Flagged != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	recs := storedLogs(t, st, app.ID)
	sums := storedSummaries(t, st, app.ID)
	if len(recs) != 3 || len(sums) != 3 {
		t.Fatalf("expected 3 records and 3 summaries, got %d and %d", len(recs), len(sums))
	}

	byID := make(map[string]*models.LogRecord)
	for _, rec := range recs {
		if rec.Raw == "" {
			t.Errorf("record %s missing raw payload", rec.ID)
		}
		byID[rec.ID] = rec
	}
	for _, sum := range sums {
		rec, ok := byID[sum.LogID]
		if !ok {
			t.Fatalf("summary %s references missing record %s", sum.ID, sum.LogID)
		}
		if sum.LevelNum != rec.Level.Rank() {
			t.Errorf("summary level_num %d does not match record level %q", sum.LevelNum, rec.Level)
		}
		if sum.MessageShort != models.TruncateMessage(rec.Message) {
			t.Errorf("summary message %q does not match record message prefix", sum.MessageShort)
		}
	}
}

func TestIngestSkipsUnparseableLine(t *testing.T) {
	st := memory.New()
	app := newTestApp(t, st)

	body := `{"topic":"console","message":"ok"}
{not json at all`

	res, err := testPipeline(st, 100).Ingest(context.Background(), app.APIKey, body)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Processed != 1 {
		t.Fatalf("expected 1 processed, got %d", res.Processed)
	}
	if res.Skipped != 1 {
		t.Fatalf("expected 1 skipped, got %d", res.Skipped)
	}
	if got := storedLogs(t, st, app.ID); len(got) != 1 {
		t.Fatalf("expected exactly 1 record, got %d", len(got))
	}
}

func TestIngestFlattensArrays(t *testing.T) {
	st := memory.New()
	app := newTestApp(t, st)

	body := `[{"message":"a"},{"message":"b"}]
{"message":"c"}`

	res, err := testPipeline(st, 100).Ingest(context.Background(), app.APIKey, body)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Processed != 3 {
		t.Fatalf("expected 3 processed, got %d", res.Processed)
	}
}

func TestIngestFlagRuleDerivation(t *testing.T) {
	st := memory.New()
	app := newTestApp(t, st, models.FlagRule{
		ID:      uuid.NewString(),
		Name:    "list-success",
		Pattern: "query interactions:list success",
		Active:  true,
	})

	body := `{"topic":"function_execution","function":{"type":"query","path":"interactions:list"},"status":"success"}`

	res, err := testPipeline(st, 100).Ingest(context.Background(), app.APIKey, body)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Processed != 2 || res.Flagged != 1 {
		t.Fatalf("expected 2 processed with 1 flagged, got %+v", res)
	}

	recs := storedLogs(t, st, app.ID)
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}

	var flagged *models.LogRecord
	for _, rec := range recs {
		if rec.Level == models.LevelWarn {
			flagged = rec
		}
	}
	if flagged == nil {
		t.Fatal("no warn-level derived record found")
	}
	if want := models.FlagMarker + " list-success"; len(flagged.Message) < len(want) || flagged.Message[:len(want)] != want {
		t.Errorf("flagged message %q missing marker prefix", flagged.Message)
	}
}

func TestIngestInactiveFlagRuleIgnored(t *testing.T) {
	st := memory.New()
	app := newTestApp(t, st, models.FlagRule{
		ID:      uuid.NewString(),
		Name:    "disabled",
		Pattern: "success",
		Active:  false,
	})

	res, err := testPipeline(st, 100).Ingest(context.Background(), app.APIKey,
		`{"topic":"function_execution","function":{"path":"f"},"status":"success"}`)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Flagged != 0 {
		t.Fatalf("inactive rule derived %d events", res.Flagged)
	}
}

func TestIngestBatchCap(t *testing.T) {
	st := memory.New()
	app := newTestApp(t, st)

	body := `{"message":"1"}
{"message":"2"}
{"message":"3"}
{"message":"4"}`

	res, err := testPipeline(st, 2).Ingest(context.Background(), app.APIKey, body)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Processed != 2 {
		t.Fatalf("expected 2 processed, got %d", res.Processed)
	}
	if res.Skipped != 2 {
		t.Fatalf("expected 2 skipped beyond cap, got %d", res.Skipped)
	}
}
