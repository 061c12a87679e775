package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/logpeak/logpeak/internal/api/middleware"
	"github.com/logpeak/logpeak/internal/models"
	"github.com/logpeak/logpeak/internal/store"
)

// AlertHandler handles alert rule management.
type AlertHandler struct {
	store  store.Store
	logger *slog.Logger
}

// NewAlertHandler creates a new alert handler.
func NewAlertHandler(st store.Store, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{
		store:  st,
		logger: logger,
	}
}

type alertRuleRequest struct {
	Name           *string  `json:"name,omitempty"`
	Type           *string  `json:"type,omitempty"`
	Threshold      *float64 `json:"threshold,omitempty"`
	WindowMinutes  *int     `json:"window_minutes,omitempty"`
	FunctionFilter *string  `json:"function_filter,omitempty"`
	Active         *bool    `json:"active,omitempty"`
}

// Create adds an alert rule to an app. Trigger bookkeeping starts at zero
// and is owned by the evaluator from then on.
func (h *AlertHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req alertRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		WriteBadRequest(w, "Name is required")
		return
	}
	if req.Type == nil || !models.AlertType(*req.Type).Valid() {
		WriteBadRequest(w, "Type must be one of error_count, error_rate, function_duration, no_logs")
		return
	}
	if req.WindowMinutes == nil || *req.WindowMinutes <= 0 {
		WriteBadRequest(w, "window_minutes must be positive")
		return
	}

	rule := &models.AlertRule{
		ID:            uuid.NewString(),
		AppID:         chi.URLParam(r, "appID"),
		OwnerID:       middleware.GetUserID(r.Context()),
		Name:          strings.TrimSpace(*req.Name),
		Type:          models.AlertType(*req.Type),
		WindowMinutes: *req.WindowMinutes,
		Active:        true,
	}
	if req.Threshold != nil {
		rule.Threshold = *req.Threshold
	}
	if req.FunctionFilter != nil {
		rule.FunctionFilter = strings.TrimSpace(*req.FunctionFilter)
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}

	if rule.Type == models.AlertFunctionDuration && rule.FunctionFilter == "" {
		WriteBadRequest(w, "function_duration rules require function_filter")
		return
	}

	if err := h.store.Alerts().Create(r.Context(), rule); err != nil {
		h.logger.Error("alert rule creation failed", "error", err)
		WriteInternalError(w, "Failed to create alert rule")
		return
	}

	h.logger.Info("alert rule created", "rule_id", rule.ID, "app_id", rule.AppID, "type", rule.Type)
	WriteJSON(w, http.StatusCreated, rule)
}

// List returns all alert rules for one app.
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.Alerts().ListByApp(r.Context(), chi.URLParam(r, "appID"))
	if err != nil {
		h.logger.Error("alert rule list failed", "error", err)
		WriteInternalError(w, "Failed to list alert rules")
		return
	}
	WriteJSON(w, http.StatusOK, rules)
}

// Get returns one alert rule.
func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request) {
	rule, err := h.getOwnedRule(w, r)
	if err != nil {
		return
	}
	WriteJSON(w, http.StatusOK, rule)
}

// Update patches a rule's definition. last_triggered and trigger_count
// are never touched here.
func (h *AlertHandler) Update(w http.ResponseWriter, r *http.Request) {
	rule, err := h.getOwnedRule(w, r)
	if err != nil {
		return
	}

	var req alertRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			WriteBadRequest(w, "Name cannot be empty")
			return
		}
		rule.Name = name
	}
	if req.Type != nil {
		if !models.AlertType(*req.Type).Valid() {
			WriteBadRequest(w, "Type must be one of error_count, error_rate, function_duration, no_logs")
			return
		}
		rule.Type = models.AlertType(*req.Type)
	}
	if req.Threshold != nil {
		rule.Threshold = *req.Threshold
	}
	if req.WindowMinutes != nil {
		if *req.WindowMinutes <= 0 {
			WriteBadRequest(w, "window_minutes must be positive")
			return
		}
		rule.WindowMinutes = *req.WindowMinutes
	}
	if req.FunctionFilter != nil {
		rule.FunctionFilter = strings.TrimSpace(*req.FunctionFilter)
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}

	if rule.Type == models.AlertFunctionDuration && rule.FunctionFilter == "" {
		WriteBadRequest(w, "function_duration rules require function_filter")
		return
	}

	if err := h.store.Alerts().Update(r.Context(), rule); err != nil {
		h.logger.Error("alert rule update failed", "error", err)
		WriteInternalError(w, "Failed to update alert rule")
		return
	}

	WriteJSON(w, http.StatusOK, rule)
}

// Delete removes one alert rule.
func (h *AlertHandler) Delete(w http.ResponseWriter, r *http.Request) {
	rule, err := h.getOwnedRule(w, r)
	if err != nil {
		return
	}

	if err := h.store.Alerts().Delete(r.Context(), rule.ID); err != nil {
		h.logger.Error("alert rule deletion failed", "error", err)
		WriteInternalError(w, "Failed to delete alert rule")
		return
	}

	h.logger.Info("alert rule deleted", "rule_id", rule.ID)
	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// getOwnedRule loads the rule from the ruleID path parameter and verifies
// it belongs to the caller, writing the error response itself on failure.
func (h *AlertHandler) getOwnedRule(w http.ResponseWriter, r *http.Request) (*models.AlertRule, error) {
	ruleID := chi.URLParam(r, "ruleID")

	rule, err := h.store.Alerts().Get(r.Context(), ruleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFound(w, "Alert rule not found")
		} else {
			h.logger.Error("alert rule fetch failed", "error", err, "rule_id", ruleID)
			WriteInternalError(w, "Failed to fetch alert rule")
		}
		return nil, err
	}

	if rule.OwnerID != middleware.GetUserID(r.Context()) {
		WriteForbidden(w, "You do not own this alert rule")
		return nil, errors.New("not rule owner")
	}
	return rule, nil
}
