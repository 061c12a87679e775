package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/logpeak/logpeak/internal/api/middleware"
	"github.com/logpeak/logpeak/internal/models"
	"github.com/logpeak/logpeak/internal/store/memory"
)

// authedRequest builds a request carrying the caller identity and any chi
// URL parameters, the way the router middleware would.
func authedRequest(method, target, userID string, body any, params map[string]string) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)

	ctx := context.WithValue(req.Context(), middleware.UserIDKey, userID)
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	return req.WithContext(ctx)
}

func TestAppCreate(t *testing.T) {
	st := memory.New()
	h := NewAppHandler(st, discardLogger())

	req := authedRequest(http.MethodPost, "/v1/apps", "user-1", map[string]string{"name": "checkout"}, nil)
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var app models.App
	if err := json.Unmarshal(rec.Body.Bytes(), &app); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if app.OwnerID != "user-1" {
		t.Errorf("owner = %q, want user-1", app.OwnerID)
	}
	if !strings.HasPrefix(app.APIKey, "lpk_") {
		t.Errorf("api key %q missing lpk_ prefix", app.APIKey)
	}
	if !app.Active {
		t.Error("new app should be active")
	}
}

func TestAppCreateDuplicateName(t *testing.T) {
	st := memory.New()
	seedApp(t, st)
	h := NewAppHandler(st, discardLogger())

	req := authedRequest(http.MethodPost, "/v1/apps", "user-1", map[string]string{"name": "checkout"}, nil)
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestAppListScopedToOwner(t *testing.T) {
	st := memory.New()
	seedApp(t, st)
	h := NewAppHandler(st, discardLogger())

	req := authedRequest(http.MethodGet, "/v1/apps", "someone-else", nil, nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var apps []*models.App
	if err := json.Unmarshal(rec.Body.Bytes(), &apps); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(apps) != 0 {
		t.Fatalf("listed %d apps for non-owner, want 0", len(apps))
	}
}

func TestAppDeleteAndRestore(t *testing.T) {
	st := memory.New()
	app := seedApp(t, st)
	h := NewAppHandler(st, discardLogger())
	params := map[string]string{"appID": app.ID}

	rec := httptest.NewRecorder()
	h.Delete(rec, authedRequest(http.MethodDelete, "/v1/apps/"+app.ID, "user-1", nil, params))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", rec.Code)
	}

	// Soft-deleted apps vanish from Get.
	rec = httptest.NewRecorder()
	h.Get(rec, authedRequest(http.MethodGet, "/v1/apps/"+app.ID, "user-1", nil, params))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Restore(rec, authedRequest(http.MethodPost, "/v1/apps/"+app.ID+"/restore", "user-1", nil, params))
	if rec.Code != http.StatusOK {
		t.Fatalf("restore status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Get(rec, authedRequest(http.MethodGet, "/v1/apps/"+app.ID, "user-1", nil, params))
	if rec.Code != http.StatusOK {
		t.Fatalf("get after restore status = %d, want 200", rec.Code)
	}
}

func TestAppRotateKey(t *testing.T) {
	st := memory.New()
	app := seedApp(t, st)
	h := NewAppHandler(st, discardLogger())

	rec := httptest.NewRecorder()
	h.RotateKey(rec, authedRequest(http.MethodPost, "/v1/apps/"+app.ID+"/rotate-key", "user-1", nil,
		map[string]string{"appID": app.ID}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	newKey := resp["api_key"]
	if newKey == "" || newKey == app.APIKey {
		t.Fatalf("rotated key %q should differ from old key", newKey)
	}

	// The old key no longer resolves.
	if _, err := st.Apps().GetByAPIKey(context.Background(), app.APIKey); err == nil {
		t.Error("old api key still resolves after rotation")
	}
	if _, err := st.Apps().GetByAPIKey(context.Background(), newKey); err != nil {
		t.Errorf("new api key does not resolve: %v", err)
	}
}

func TestFlagRuleLifecycle(t *testing.T) {
	st := memory.New()
	app := seedApp(t, st)
	h := NewAppHandler(st, discardLogger())
	params := map[string]string{"appID": app.ID}

	rec := httptest.NewRecorder()
	h.AddFlag(rec, authedRequest(http.MethodPost, "/v1/apps/"+app.ID+"/flags", "user-1",
		map[string]string{"name": "slow-checkout", "pattern": "checkout:pay"}, params))
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var rule models.FlagRule
	if err := json.Unmarshal(rec.Body.Bytes(), &rule); err != nil {
		t.Fatalf("decode rule: %v", err)
	}
	if !rule.Active {
		t.Error("new flag rule should default to active")
	}

	params["flagID"] = rule.ID
	rec = httptest.NewRecorder()
	h.UpdateFlag(rec, authedRequest(http.MethodPatch, "/v1/apps/"+app.ID+"/flags/"+rule.ID, "user-1",
		map[string]any{"active": false}, params))
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, want 200", rec.Code)
	}

	stored, err := st.Apps().Get(context.Background(), app.ID)
	if err != nil {
		t.Fatalf("reload app: %v", err)
	}
	if len(stored.FlagRules) != 1 || stored.FlagRules[0].Active {
		t.Fatalf("flag rules = %+v, want one inactive rule", stored.FlagRules)
	}

	rec = httptest.NewRecorder()
	h.DeleteFlag(rec, authedRequest(http.MethodDelete, "/v1/apps/"+app.ID+"/flags/"+rule.ID, "user-1", nil, params))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", rec.Code)
	}

	stored, _ = st.Apps().Get(context.Background(), app.ID)
	if len(stored.FlagRules) != 0 {
		t.Fatalf("flag rules remain after delete: %+v", stored.FlagRules)
	}
}

func TestFlagRuleNotFound(t *testing.T) {
	st := memory.New()
	app := seedApp(t, st)
	h := NewAppHandler(st, discardLogger())

	rec := httptest.NewRecorder()
	h.DeleteFlag(rec, authedRequest(http.MethodDelete, "/v1/apps/"+app.ID+"/flags/nope", "user-1", nil,
		map[string]string{"appID": app.ID, "flagID": "nope"}))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
