package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/logpeak/logpeak/internal/auth"
	"github.com/logpeak/logpeak/internal/store"
)

// AuthHandler handles registration and login.
type AuthHandler struct {
	store  store.Store
	auth   *auth.Service
	rbac   *auth.RBACService
	logger *slog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(st store.Store, authSvc *auth.Service, rbac *auth.RBACService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		store:  st,
		auth:   authSvc,
		rbac:   rbac,
		logger: logger,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  *store.User `json:"user"`
}

// CanRegister reports whether public registration is still open. It is
// open only until the first owner account exists.
func (h *AuthHandler) CanRegister(w http.ResponseWriter, r *http.Request) {
	open, err := h.rbac.CanRegister(r.Context())
	if err != nil {
		h.logger.Error("registration check failed", "error", err)
		WriteInternalError(w, "Failed to check registration status")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"can_register": open})
}

// Register creates the initial owner account. Once an owner exists,
// public registration is closed.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		WriteBadRequest(w, "A valid email is required")
		return
	}
	if len(req.Password) < 8 {
		WriteBadRequest(w, "Password must be at least 8 characters")
		return
	}

	open, err := h.rbac.CanRegister(r.Context())
	if err != nil {
		h.logger.Error("registration check failed", "error", err)
		WriteInternalError(w, "Failed to check registration status")
		return
	}
	if !open {
		WriteForbidden(w, "Registration is closed")
		return
	}

	user, err := h.store.Users().Create(r.Context(), req.Email, req.Password, store.RoleOwner)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateName) {
			WriteConflict(w, "Email is already registered")
			return
		}
		h.logger.Error("user creation failed", "error", err)
		WriteInternalError(w, "Failed to create user")
		return
	}

	token, err := h.auth.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		h.logger.Error("token generation failed", "error", err)
		WriteInternalError(w, "Failed to generate token")
		return
	}

	h.logger.Info("owner registered", "user_id", user.ID)
	WriteJSON(w, http.StatusCreated, &authResponse{Token: token, User: user})
}

// Login authenticates credentials and returns a JWT.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	user, err := h.store.Users().Authenticate(r.Context(), strings.TrimSpace(strings.ToLower(req.Email)), req.Password)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCredentials) {
			WriteUnauthorized(w, "Invalid email or password")
			return
		}
		h.logger.Error("authentication failed", "error", err)
		WriteInternalError(w, "Authentication failed")
		return
	}

	token, err := h.auth.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		h.logger.Error("token generation failed", "error", err)
		WriteInternalError(w, "Failed to generate token")
		return
	}

	WriteJSON(w, http.StatusOK, &authResponse{Token: token, User: user})
}

// CreateMember lets an owner add a member account.
func (h *AuthHandler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		WriteBadRequest(w, "A valid email is required")
		return
	}
	if len(req.Password) < 8 {
		WriteBadRequest(w, "Password must be at least 8 characters")
		return
	}

	user, err := h.store.Users().Create(r.Context(), req.Email, req.Password, store.RoleMember)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateName) {
			WriteConflict(w, "Email is already registered")
			return
		}
		h.logger.Error("member creation failed", "error", err)
		WriteInternalError(w, "Failed to create user")
		return
	}

	WriteJSON(w, http.StatusCreated, user)
}
