package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/logpeak/logpeak/internal/ingest"
	"github.com/logpeak/logpeak/internal/models"
	"github.com/logpeak/logpeak/internal/store"
	"github.com/logpeak/logpeak/internal/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedApp(t *testing.T, st store.Store) *models.App {
	t.Helper()
	app := &models.App{
		ID:      "app-1",
		OwnerID: "user-1",
		Name:    "checkout",
		APIKey:  "lpk_test_key",
		Active:  true,
	}
	if err := st.Apps().Create(context.Background(), app); err != nil {
		t.Fatalf("seed app: %v", err)
	}
	return app
}

func newIngestHandler(st store.Store) *IngestHandler {
	pipeline := ingest.NewPipeline(st, discardLogger(), 100)
	return NewIngestHandler(pipeline, 1<<20, discardLogger())
}

func postIngest(t *testing.T, h *IngestHandler, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	h.Ingest(rec, req)
	return rec
}

func TestIngestStoresEvents(t *testing.T) {
	st := memory.New()
	app := seedApp(t, st)
	h := newIngestHandler(st)

	logData := `{"topic":"console","log_level":"info","message":"hello"}` + "\n" +
		`{"topic":"console","log_level":"error","message":"boom"}`

	rec := postIngest(t, h, map[string]string{"api_key": app.APIKey, "log_data": logData})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var res ingest.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Processed != 2 || res.Skipped != 0 {
		t.Fatalf("result = %+v, want 2 processed", res)
	}

	sums, err := st.Summaries().ListTail(context.Background(), store.TailQuery{
		AppID:       app.ID,
		MinLevelNum: models.RankDebug,
		Limit:       10,
	})
	if err != nil {
		t.Fatalf("list tail: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("stored %d summaries, want 2", len(sums))
	}
}

func TestIngestRejectsInvalidKey(t *testing.T) {
	st := memory.New()
	seedApp(t, st)
	h := newIngestHandler(st)

	rec := postIngest(t, h, map[string]string{"api_key": "lpk_wrong", "log_data": "{}"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestIngestKeyFromHeader(t *testing.T) {
	st := memory.New()
	app := seedApp(t, st)
	h := newIngestHandler(st)

	payload, _ := json.Marshal(map[string]string{
		"log_data": `{"topic":"console","log_level":"warn","message":"header auth"}`,
	})
	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader(payload))
	req.Header.Set("X-API-Key", app.APIKey)
	rec := httptest.NewRecorder()
	h.Ingest(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestIngestMissingKey(t *testing.T) {
	st := memory.New()
	seedApp(t, st)
	h := newIngestHandler(st)

	rec := postIngest(t, h, map[string]string{"log_data": "{}"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestIngestBodyTooLarge(t *testing.T) {
	st := memory.New()
	app := seedApp(t, st)
	pipeline := ingest.NewPipeline(st, discardLogger(), 100)
	h := NewIngestHandler(pipeline, 64, discardLogger())

	big := make([]byte, 256)
	for i := range big {
		big[i] = 'x'
	}
	rec := postIngest(t, h, map[string]string{"api_key": app.APIKey, "log_data": string(big)})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestIngestSoftDeletedAppRejected(t *testing.T) {
	st := memory.New()
	app := seedApp(t, st)
	if err := st.Apps().Delete(context.Background(), app.ID); err != nil {
		t.Fatalf("delete app: %v", err)
	}
	h := newIngestHandler(st)

	rec := postIngest(t, h, map[string]string{
		"api_key":  app.APIKey,
		"log_data": `{"topic":"console","message":"ghost"}`,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 after soft delete", rec.Code)
	}

	sums, err := st.Summaries().ListTail(context.Background(), store.TailQuery{
		MinLevelNum: models.RankDebug,
		Limit:       10,
		Since:       time.Time{},
	})
	if err != nil {
		t.Fatalf("list tail: %v", err)
	}
	if len(sums) != 0 {
		t.Fatalf("stored %d summaries for deleted app, want 0", len(sums))
	}
}
