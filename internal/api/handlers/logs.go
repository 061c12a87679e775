package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/logpeak/logpeak/internal/models"
	"github.com/logpeak/logpeak/internal/store"
)

// Query surface defaults.
const (
	defaultTailLimit  = 150
	defaultTailLevel  = "warn"
	defaultPageSize   = 100
	defaultPageLevel  = "info"
	defaultChartHours = 24
	maxTailLimit      = 500
	maxPageSize       = 500
)

// LogsHandler serves the read side: live tail, full record fetch,
// paginated history and chart data.
type LogsHandler struct {
	store  store.Store
	logger *slog.Logger
}

// NewLogsHandler creates a new logs handler.
func NewLogsHandler(st store.Store, logger *slog.Logger) *LogsHandler {
	return &LogsHandler{
		store:  st,
		logger: logger,
	}
}

// Tail returns the newest summaries at or above the minimum level,
// newest first. Filters: app_id, since (RFC3339), min_level, limit.
func (h *LogsHandler) Tail(w http.ResponseWriter, r *http.Request) {
	q := store.TailQuery{
		AppID:       r.URL.Query().Get("app_id"),
		MinLevelNum: parseMinLevel(r, defaultTailLevel),
		Limit:       parseBoundedInt(r, "limit", defaultTailLimit, maxTailLimit),
	}

	if since := r.URL.Query().Get("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			WriteBadRequest(w, "since must be RFC 3339")
			return
		}
		q.Since = ts
	}

	sums, err := h.store.Summaries().ListTail(r.Context(), q)
	if err != nil {
		h.logger.Error("tail query failed", "error", err)
		WriteInternalError(w, "Failed to query logs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"logs": sums, "count": len(sums)})
}

// Get returns one full log record by ID.
func (h *LogsHandler) Get(w http.ResponseWriter, r *http.Request) {
	logID := chi.URLParam(r, "logID")

	rec, err := h.store.Logs().Get(r.Context(), logID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFound(w, "Log record not found")
			return
		}
		h.logger.Error("log fetch failed", "error", err, "log_id", logID)
		WriteInternalError(w, "Failed to fetch log record")
		return
	}

	WriteJSON(w, http.StatusOK, rec)
}

// History returns one page of summaries, newest first, with an opaque
// cursor for the next page. Filters: app_id, before (RFC3339), cursor,
// min_level, page_size.
func (h *LogsHandler) History(w http.ResponseWriter, r *http.Request) {
	q := store.PageQuery{
		AppID:       r.URL.Query().Get("app_id"),
		Cursor:      r.URL.Query().Get("cursor"),
		MinLevelNum: parseMinLevel(r, defaultPageLevel),
		PageSize:    parseBoundedInt(r, "page_size", defaultPageSize, maxPageSize),
	}

	if before := r.URL.Query().Get("before"); before != "" {
		ts, err := time.Parse(time.RFC3339, before)
		if err != nil {
			WriteBadRequest(w, "before must be RFC 3339")
			return
		}
		q.Before = ts
	}

	sums, nextCursor, err := h.store.Summaries().ListPage(r.Context(), q)
	if err != nil {
		h.logger.Error("history query failed", "error", err)
		WriteInternalError(w, "Failed to query log history")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"logs":        sums,
		"count":       len(sums),
		"next_cursor": nextCursor,
	})
}

// chartPoint is one bucket reshaped for display.
type chartPoint struct {
	Time         time.Time `json:"time"`
	Total        int64     `json:"total"`
	Errors       int64     `json:"errors"`
	Warns        int64     `json:"warns"`
	Infos        int64     `json:"infos"`
	Debugs       int64     `json:"debugs"`
	Flagged      int64     `json:"flagged"`
	AvgPerMinute float64   `json:"avg_per_minute"`
}

// Charts returns pre-aggregated metrics buckets for one app, reshaped
// for display. Filters: hours_back, period (hour|day).
func (h *LogsHandler) Charts(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")

	period := models.MetricsPeriod(r.URL.Query().Get("period"))
	if period == "" {
		period = models.PeriodHour
	}
	if period != models.PeriodHour && period != models.PeriodDay {
		WriteBadRequest(w, "period must be hour or day")
		return
	}

	hoursBack := parseBoundedInt(r, "hours_back", defaultChartHours, 24*90)
	from := time.Now().UTC().Add(-time.Duration(hoursBack) * time.Hour)

	buckets, err := h.store.Metrics().ListRange(r.Context(), appID, period, from)
	if err != nil {
		h.logger.Error("chart query failed", "error", err, "app_id", appID)
		WriteInternalError(w, "Failed to query metrics")
		return
	}

	points := make([]chartPoint, 0, len(buckets))
	for _, b := range buckets {
		points = append(points, chartPoint{
			Time:         b.PeriodStart,
			Total:        b.TotalCount,
			Errors:       b.ErrorCount,
			Warns:        b.WarnCount,
			Infos:        b.InfoCount,
			Debugs:       b.DebugCount,
			Flagged:      b.FlaggedCount,
			AvgPerMinute: b.AvgPerMinute,
		})
	}

	WriteJSON(w, http.StatusOK, map[string]any{"period": period, "points": points})
}

// parseMinLevel maps the min_level query parameter to a numeric rank.
func parseMinLevel(r *http.Request, def string) int {
	level := r.URL.Query().Get("min_level")
	if level == "" {
		level = def
	}
	return models.ParseLevel(level).Rank()
}

// parseBoundedInt reads a positive integer query parameter with a
// default and an upper bound.
func parseBoundedInt(r *http.Request, key string, def, max int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
