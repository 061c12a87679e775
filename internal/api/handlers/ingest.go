package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/logpeak/logpeak/internal/ingest"
)

// IngestHandler terminates the inbound webhook endpoint.
type IngestHandler struct {
	pipeline     *ingest.Pipeline
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(pipeline *ingest.Pipeline, maxBodyBytes int64, logger *slog.Logger) *IngestHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &IngestHandler{
		pipeline:     pipeline,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

type ingestRequest struct {
	APIKey  string `json:"api_key"`
	LogData string `json:"log_data"`
}

// Ingest accepts one webhook batch: an API key plus newline-delimited
// JSON events. The key may come from the body or the X-API-Key header.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, ErrCodeInvalidRequest, "Request body too large")
			return
		}
		WriteBadRequest(w, "Invalid request body")
		return
	}

	if req.APIKey == "" {
		req.APIKey = r.Header.Get("X-API-Key")
	}
	if req.APIKey == "" {
		WriteUnauthorized(w, "Missing API key")
		return
	}

	res, err := h.pipeline.Ingest(r.Context(), req.APIKey, req.LogData)
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidCredential) {
			WriteUnauthorized(w, "Invalid API key")
			return
		}
		h.logger.Error("ingestion failed", "error", err)
		WriteInternalError(w, "Log processing failed")
		return
	}

	WriteJSON(w, http.StatusOK, res)
}
