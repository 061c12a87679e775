package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/logpeak/logpeak/internal/aggregate"
	"github.com/logpeak/logpeak/internal/auth"
	"github.com/logpeak/logpeak/internal/jobs"
	"github.com/logpeak/logpeak/internal/store"
)

// Confirmation phrases for destructive admin operations.
const (
	confirmPurgeApp = "purge app logs"
	confirmPurgeAll = "purge all logs"
)

// AdminHandler exposes owner-only maintenance operations: log purges and
// manual job triggers.
type AdminHandler struct {
	store      store.Store
	runner     *jobs.Runner
	aggregator *aggregate.Aggregator
	logger     *slog.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(st store.Store, runner *jobs.Runner, aggregator *aggregate.Aggregator, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		store:      st,
		runner:     runner,
		aggregator: aggregator,
		logger:     logger,
	}
}

type purgeRequest struct {
	Confirm string `json:"confirm"`
}

// PurgeApp deletes all log records and summaries for one app. The body
// must carry the exact confirmation phrase.
func (h *AdminHandler) PurgeApp(w http.ResponseWriter, r *http.Request) {
	if !h.confirmed(w, r, confirmPurgeApp) {
		return
	}

	appID := chi.URLParam(r, "appID")
	if _, err := h.store.Apps().Get(r.Context(), appID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFound(w, "Application not found")
			return
		}
		h.logger.Error("app fetch failed", "error", err, "app_id", appID)
		WriteInternalError(w, "Failed to fetch app")
		return
	}

	logs, err := h.store.Logs().DeleteByApp(r.Context(), appID)
	if err != nil {
		h.logger.Error("log purge failed", "error", err, "app_id", appID)
		WriteInternalError(w, "Failed to purge logs")
		return
	}
	sums, err := h.store.Summaries().DeleteByApp(r.Context(), appID)
	if err != nil {
		h.logger.Error("summary purge failed", "error", err, "app_id", appID)
		WriteInternalError(w, "Failed to purge summaries")
		return
	}

	h.logger.Warn("app logs purged", "app_id", appID, "logs", logs, "summaries", sums)
	WriteJSON(w, http.StatusOK, map[string]int64{"logs_deleted": logs, "summaries_deleted": sums})
}

// PurgeAll deletes every log record and summary across all apps. The body
// must carry the exact confirmation phrase.
func (h *AdminHandler) PurgeAll(w http.ResponseWriter, r *http.Request) {
	if !h.confirmed(w, r, confirmPurgeAll) {
		return
	}

	logs, err := h.store.Logs().DeleteAll(r.Context())
	if err != nil {
		h.logger.Error("log purge failed", "error", err)
		WriteInternalError(w, "Failed to purge logs")
		return
	}
	sums, err := h.store.Summaries().DeleteAll(r.Context())
	if err != nil {
		h.logger.Error("summary purge failed", "error", err)
		WriteInternalError(w, "Failed to purge summaries")
		return
	}

	h.logger.Warn("all logs purged", "logs", logs, "summaries", sums)
	WriteJSON(w, http.StatusOK, map[string]int64{"logs_deleted": logs, "summaries_deleted": sums})
}

// TriggerSweep runs retention sweeps immediately, looping while more
// eligible rows remain.
func (h *AdminHandler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	res := h.runner.RunSweep(r.Context())
	h.logger.Info("manual sweep completed",
		"logs_deleted", res.LogsDeleted,
		"summaries_deleted", res.SummariesDeleted,
		"orphans_deleted", res.OrphansDeleted,
	)
	WriteJSON(w, http.StatusOK, res)
}

// TriggerAggregation builds metrics buckets for the previous hour, or for
// the hour given in the optional "hour" query parameter (RFC 3339).
func (h *AdminHandler) TriggerAggregation(w http.ResponseWriter, r *http.Request) {
	target := time.Now().UTC().Add(-time.Hour)
	if raw := r.URL.Query().Get("hour"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			WriteBadRequest(w, "hour must be RFC 3339")
			return
		}
		target = ts
	}

	written, err := h.aggregator.RunHour(r.Context(), target)
	if err != nil {
		h.logger.Error("manual aggregation failed", "error", err)
		WriteInternalError(w, "Aggregation failed")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"hour":            target.Truncate(time.Hour),
		"buckets_written": written,
	})
}

// TriggerAlertCheck evaluates all active alert rules immediately and
// reports what fired.
func (h *AdminHandler) TriggerAlertCheck(w http.ResponseWriter, r *http.Request) {
	firings, err := h.runner.RunAlertCheck(r.Context())
	if err != nil {
		h.logger.Error("manual alert check failed", "error", err)
		WriteInternalError(w, "Alert check failed")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"fired":   len(firings),
		"firings": firings,
	})
}

// TriggerMetricsSweep drops expired metrics buckets immediately.
func (h *AdminHandler) TriggerMetricsSweep(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.runner.RunMetricsSweep(r.Context())
	if err != nil {
		h.logger.Error("manual metrics sweep failed", "error", err)
		WriteInternalError(w, "Metrics sweep failed")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]int64{"buckets_deleted": deleted})
}

// confirmed checks the request's confirmation phrase in constant time,
// writing the rejection itself when it does not match.
func (h *AdminHandler) confirmed(w http.ResponseWriter, r *http.Request, phrase string) bool {
	var req purgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return false
	}
	if !auth.SecureCompare(req.Confirm, phrase) {
		WriteBadRequest(w, "Confirmation mismatch: expected "+phrase)
		return false
	}
	return true
}
