package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/logpeak/logpeak/internal/models"
	"github.com/logpeak/logpeak/internal/store"
	"github.com/logpeak/logpeak/internal/store/memory"
)

// seedSummaries writes n paired record/summary rows one minute apart,
// newest last, cycling through the given levels.
func seedSummaries(t *testing.T, st store.Store, appID string, base time.Time, levels ...models.Level) {
	t.Helper()
	for i, level := range levels {
		rec := &models.LogRecord{
			ID:        uuid.NewString(),
			AppID:     appID,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Level:     level,
			Message:   fmt.Sprintf("event %d", i),
			Raw:       "{}",
		}
		if err := st.Logs().Create(context.Background(), rec); err != nil {
			t.Fatalf("seed log: %v", err)
		}
		sum := rec.Summarize()
		sum.ID = uuid.NewString()
		if err := st.Summaries().Create(context.Background(), sum); err != nil {
			t.Fatalf("seed summary: %v", err)
		}
	}
}

type tailResponse struct {
	Logs  []*models.LogSummary `json:"logs"`
	Count int                  `json:"count"`
}

func TestTailDefaultsToWarn(t *testing.T) {
	st := memory.New()
	app := seedApp(t, st)
	base := time.Now().UTC().Add(-10 * time.Minute)
	seedSummaries(t, st, app.ID, base,
		models.LevelDebug, models.LevelInfo, models.LevelWarn, models.LevelError)

	h := NewLogsHandler(st, discardLogger())
	req := httptest.NewRequest(http.MethodGet, "/v1/logs/tail?app_id="+app.ID, nil)
	rec := httptest.NewRecorder()
	h.Tail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp tailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("count = %d, want 2 (warn and error only)", resp.Count)
	}
	for _, sum := range resp.Logs {
		if sum.LevelNum < models.RankWarn {
			t.Errorf("tail returned %s below default min level", sum.Level)
		}
	}
	// Newest first.
	if len(resp.Logs) == 2 && resp.Logs[0].Timestamp.Before(resp.Logs[1].Timestamp) {
		t.Error("tail is not newest first")
	}
}

func TestTailRejectsBadSince(t *testing.T) {
	h := NewLogsHandler(memory.New(), discardLogger())
	req := httptest.NewRequest(http.MethodGet, "/v1/logs/tail?since=yesterday", nil)
	rec := httptest.NewRecorder()
	h.Tail(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetFullRecord(t *testing.T) {
	st := memory.New()
	app := seedApp(t, st)

	rec := &models.LogRecord{
		ID:        uuid.NewString(),
		AppID:     app.ID,
		Timestamp: time.Now().UTC(),
		Level:     models.LevelError,
		Message:   "boom",
		Metadata:  json.RawMessage(`{"execution_time_ms":1200}`),
		Raw:       `{"topic":"console"}`,
	}
	if err := st.Logs().Create(context.Background(), rec); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	h := NewLogsHandler(st, discardLogger())
	w := httptest.NewRecorder()
	h.Get(w, authedRequest(http.MethodGet, "/v1/logs/"+rec.ID, "user-1", nil,
		map[string]string{"logID": rec.ID}))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got models.LogRecord
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Raw != rec.Raw || string(got.Metadata) != string(rec.Metadata) {
		t.Errorf("full record lost payload: %+v", got)
	}
}

func TestGetFullRecordNotFound(t *testing.T) {
	h := NewLogsHandler(memory.New(), discardLogger())
	w := httptest.NewRecorder()
	h.Get(w, authedRequest(http.MethodGet, "/v1/logs/missing", "user-1", nil,
		map[string]string{"logID": "missing"}))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

type historyResponse struct {
	Logs       []*models.LogSummary `json:"logs"`
	Count      int                  `json:"count"`
	NextCursor string               `json:"next_cursor"`
}

func TestHistoryPagination(t *testing.T) {
	st := memory.New()
	app := seedApp(t, st)
	base := time.Now().UTC().Add(-time.Hour)
	seedSummaries(t, st, app.ID, base,
		models.LevelInfo, models.LevelInfo, models.LevelInfo, models.LevelInfo, models.LevelInfo)

	h := NewLogsHandler(st, discardLogger())

	fetch := func(cursor string) historyResponse {
		t.Helper()
		target := "/v1/logs/history?app_id=" + app.ID + "&page_size=2"
		if cursor != "" {
			target += "&cursor=" + cursor
		}
		w := httptest.NewRecorder()
		h.History(w, httptest.NewRequest(http.MethodGet, target, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
		}
		var resp historyResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		return resp
	}

	var seen []string
	cursor := ""
	pages := 0
	for {
		resp := fetch(cursor)
		for _, sum := range resp.Logs {
			seen = append(seen, sum.ID)
		}
		pages++
		if resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
		if pages > 5 {
			t.Fatal("pagination did not terminate")
		}
	}

	if len(seen) != 5 {
		t.Fatalf("paged through %d summaries, want 5", len(seen))
	}
	unique := make(map[string]bool, len(seen))
	for _, id := range seen {
		if unique[id] {
			t.Fatalf("summary %s returned twice across pages", id)
		}
		unique[id] = true
	}
	if pages < 3 {
		t.Fatalf("expected at least 3 pages of size 2, got %d", pages)
	}
}

func TestChartsReshapesBuckets(t *testing.T) {
	st := memory.New()
	app := seedApp(t, st)

	hour := time.Now().UTC().Truncate(time.Hour).Add(-2 * time.Hour)
	bucket := &models.MetricsBucket{
		ID:           uuid.NewString(),
		AppID:        app.ID,
		Period:       models.PeriodHour,
		PeriodStart:  hour,
		TotalCount:   120,
		ErrorCount:   6,
		WarnCount:    10,
		InfoCount:    100,
		DebugCount:   4,
		FlaggedCount: 3,
		AvgPerMinute: 2,
	}
	if err := st.Metrics().Create(context.Background(), bucket); err != nil {
		t.Fatalf("seed bucket: %v", err)
	}

	h := NewLogsHandler(st, discardLogger())
	w := httptest.NewRecorder()
	h.Charts(w, authedRequest(http.MethodGet, "/v1/apps/"+app.ID+"/charts", "user-1", nil,
		map[string]string{"appID": app.ID}))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Period models.MetricsPeriod `json:"period"`
		Points []chartPoint         `json:"points"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Period != models.PeriodHour {
		t.Errorf("period = %q, want hour", resp.Period)
	}
	if len(resp.Points) != 1 {
		t.Fatalf("points = %d, want 1", len(resp.Points))
	}
	p := resp.Points[0]
	if p.Total != 120 || p.Errors != 6 || p.Flagged != 3 || !p.Time.Equal(hour) {
		t.Errorf("point = %+v, want bucket values", p)
	}
}

func TestChartsRejectsBadPeriod(t *testing.T) {
	h := NewLogsHandler(memory.New(), discardLogger())
	w := httptest.NewRecorder()
	h.Charts(w, authedRequest(http.MethodGet, "/v1/apps/app-1/charts?period=week", "user-1", nil,
		map[string]string{"appID": "app-1"}))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
