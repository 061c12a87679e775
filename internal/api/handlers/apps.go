package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/logpeak/logpeak/internal/api/middleware"
	"github.com/logpeak/logpeak/internal/auth"
	"github.com/logpeak/logpeak/internal/models"
	"github.com/logpeak/logpeak/internal/store"
)

// AppHandler handles monitored application management.
type AppHandler struct {
	store  store.Store
	logger *slog.Logger
}

// NewAppHandler creates a new app handler.
func NewAppHandler(st store.Store, logger *slog.Logger) *AppHandler {
	return &AppHandler{
		store:  st,
		logger: logger,
	}
}

type createAppRequest struct {
	Name string `json:"name"`
}

// Create registers a new monitored application and returns it with its
// freshly generated ingestion key.
func (h *AppHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		WriteBadRequest(w, "Name is required")
		return
	}

	apiKey, err := auth.GenerateAppKey()
	if err != nil {
		h.logger.Error("key generation failed", "error", err)
		WriteInternalError(w, "Failed to generate API key")
		return
	}

	app := &models.App{
		ID:      uuid.NewString(),
		OwnerID: middleware.GetUserID(r.Context()),
		Name:    req.Name,
		APIKey:  apiKey,
		Active:  true,
	}

	if err := h.store.Apps().Create(r.Context(), app); err != nil {
		if errors.Is(err, store.ErrDuplicateName) {
			WriteConflict(w, "An app with this name already exists")
			return
		}
		h.logger.Error("app creation failed", "error", err)
		WriteInternalError(w, "Failed to create app")
		return
	}

	h.logger.Info("app created", "app_id", app.ID, "name", app.Name)
	WriteJSON(w, http.StatusCreated, app)
}

// List returns the caller's apps.
func (h *AppHandler) List(w http.ResponseWriter, r *http.Request) {
	apps, err := h.store.Apps().List(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.logger.Error("app list failed", "error", err)
		WriteInternalError(w, "Failed to list apps")
		return
	}
	WriteJSON(w, http.StatusOK, apps)
}

// Get returns one app.
func (h *AppHandler) Get(w http.ResponseWriter, r *http.Request) {
	app, err := h.getApp(w, r)
	if err != nil {
		return
	}
	WriteJSON(w, http.StatusOK, app)
}

type updateAppRequest struct {
	Name   *string `json:"name,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

// Update patches an app's name or active flag.
func (h *AppHandler) Update(w http.ResponseWriter, r *http.Request) {
	app, err := h.getApp(w, r)
	if err != nil {
		return
	}

	var req updateAppRequest
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
		app.Name = name
	}
	if req.Active != nil {
		app.Active = *req.Active
	}

	if err := h.store.Apps().Update(r.Context(), app); err != nil {
		if errors.Is(err, store.ErrDuplicateName) {
			WriteConflict(w, "An app with this name already exists")
			return
		}
		h.logger.Error("app update failed", "error", err)
		WriteInternalError(w, "Failed to update app")
		return
	}

	WriteJSON(w, http.StatusOK, app)
}

// Delete soft-deletes an app. Its logs stay until purged or swept.
func (h *AppHandler) Delete(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")

	if err := h.store.Apps().Delete(r.Context(), appID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFound(w, "Application not found")
			return
		}
		h.logger.Error("app deletion failed", "error", err)
		WriteInternalError(w, "Failed to delete app")
		return
	}

	h.logger.Info("app soft-deleted", "app_id", appID)
	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Restore clears an app's soft-delete marker.
func (h *AppHandler) Restore(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")

	if err := h.store.Apps().Restore(r.Context(), appID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFound(w, "No deleted application with this ID")
			return
		}
		h.logger.Error("app restore failed", "error", err)
		WriteInternalError(w, "Failed to restore app")
		return
	}

	h.logger.Info("app restored", "app_id", appID)
	WriteJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

// RotateKey replaces the app's ingestion key and returns the new one.
func (h *AppHandler) RotateKey(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")

	newKey, err := auth.GenerateAppKey()
	if err != nil {
		h.logger.Error("key generation failed", "error", err)
		WriteInternalError(w, "Failed to generate API key")
		return
	}

	if err := h.store.Apps().RotateAPIKey(r.Context(), appID, newKey); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFound(w, "Application not found")
			return
		}
		h.logger.Error("key rotation failed", "error", err)
		WriteInternalError(w, "Failed to rotate API key")
		return
	}

	h.logger.Info("api key rotated", "app_id", appID)
	WriteJSON(w, http.StatusOK, map[string]string{"api_key": newKey})
}

// ListFlags returns an app's flag rules.
func (h *AppHandler) ListFlags(w http.ResponseWriter, r *http.Request) {
	app, err := h.getApp(w, r)
	if err != nil {
		return
	}
	WriteJSON(w, http.StatusOK, app.FlagRules)
}

type flagRuleRequest struct {
	Name    string `json:"name"`
	Pattern string `json:"pattern"`
	Active  *bool  `json:"active,omitempty"`
}

// AddFlag appends a flag rule to the app.
func (h *AppHandler) AddFlag(w http.ResponseWriter, r *http.Request) {
	app, err := h.getApp(w, r)
	if err != nil {
		return
	}

	var req flagRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Pattern) == "" {
		WriteBadRequest(w, "Name and pattern are required")
		return
	}

	rule := models.FlagRule{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Pattern:   strings.TrimSpace(req.Pattern),
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}

	app.FlagRules = append(app.FlagRules, rule)
	if err := h.store.Apps().Update(r.Context(), app); err != nil {
		h.logger.Error("flag rule creation failed", "error", err)
		WriteInternalError(w, "Failed to add flag rule")
		return
	}

	WriteJSON(w, http.StatusCreated, rule)
}

// UpdateFlag patches one flag rule by ID.
func (h *AppHandler) UpdateFlag(w http.ResponseWriter, r *http.Request) {
	app, err := h.getApp(w, r)
	if err != nil {
		return
	}

	var req flagRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	flagID := chi.URLParam(r, "flagID")
	for i := range app.FlagRules {
		if app.FlagRules[i].ID != flagID {
			continue
		}
		if strings.TrimSpace(req.Name) != "" {
			app.FlagRules[i].Name = strings.TrimSpace(req.Name)
		}
		if strings.TrimSpace(req.Pattern) != "" {
			app.FlagRules[i].Pattern = strings.TrimSpace(req.Pattern)
		}
		if req.Active != nil {
			app.FlagRules[i].Active = *req.Active
		}

		if err := h.store.Apps().Update(r.Context(), app); err != nil {
			h.logger.Error("flag rule update failed", "error", err)
			WriteInternalError(w, "Failed to update flag rule")
			return
		}
		WriteJSON(w, http.StatusOK, app.FlagRules[i])
		return
	}

	WriteNotFound(w, "Flag rule not found")
}

// DeleteFlag removes one flag rule by ID.
func (h *AppHandler) DeleteFlag(w http.ResponseWriter, r *http.Request) {
	app, err := h.getApp(w, r)
	if err != nil {
		return
	}

	flagID := chi.URLParam(r, "flagID")
	for i := range app.FlagRules {
		if app.FlagRules[i].ID != flagID {
			continue
		}
		app.FlagRules = append(app.FlagRules[:i], app.FlagRules[i+1:]...)

		if err := h.store.Apps().Update(r.Context(), app); err != nil {
			h.logger.Error("flag rule deletion failed", "error", err)
			WriteInternalError(w, "Failed to delete flag rule")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
		return
	}

	WriteNotFound(w, "Flag rule not found")
}

// getApp loads the app from the appID path parameter, writing the error
// response itself on failure.
func (h *AppHandler) getApp(w http.ResponseWriter, r *http.Request) (*models.App, error) {
	appID := chi.URLParam(r, "appID")

	app, err := h.store.Apps().Get(r.Context(), appID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFound(w, "Application not found")
		} else {
			h.logger.Error("app fetch failed", "error", err, "app_id", appID)
			WriteInternalError(w, "Failed to fetch app")
		}
		return nil, err
	}
	return app, nil
}
