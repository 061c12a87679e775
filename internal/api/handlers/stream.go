package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/logpeak/logpeak/internal/models"
	"github.com/logpeak/logpeak/internal/store"
)

const (
	streamPollInterval = 500 * time.Millisecond
	streamPingInterval = 30 * time.Second
	streamWriteTimeout = 10 * time.Second
	streamBatchLimit   = 200
)

// StreamHandler pushes new log summaries to dashboard clients over a
// websocket. It polls the summary tier and forwards anything newer than
// the last delivered timestamp.
type StreamHandler struct {
	store    store.Store
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(st store.Store, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		store: st,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

type streamEvent struct {
	Type string `json:"type"`
	Logs any    `json:"logs,omitempty"`
	Time int64  `json:"time,omitempty"`
}

// Stream upgrades the connection and tails summaries. Filters: app_id,
// min_level (default warn).
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	appID := r.URL.Query().Get("app_id")
	minLevel := parseMinLevel(r, defaultTailLevel)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.logger.Info("log stream started", "app_id", appID)

	// Drain client frames so close messages are noticed.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	lastSeen := time.Now().UTC()
	ticker := time.NewTicker(streamPollInterval)
	pingTicker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()
	defer pingTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("log stream closed", "app_id", appID)
			return
		case <-clientGone:
			h.logger.Info("log stream closed by client", "app_id", appID)
			return
		case <-pingTicker.C:
			if err := h.send(conn, streamEvent{Type: "ping", Time: time.Now().Unix()}); err != nil {
				return
			}
		case <-ticker.C:
			fresh, err := h.fetchSince(ctx, appID, minLevel, lastSeen)
			if err != nil {
				h.logger.Error("stream poll failed", "error", err, "app_id", appID)
				continue
			}
			if len(fresh) == 0 {
				continue
			}

			// Deliver in ascending order; the store returns newest first.
			for i, j := 0, len(fresh)-1; i < j; i, j = i+1, j-1 {
				fresh[i], fresh[j] = fresh[j], fresh[i]
			}
			if fresh[len(fresh)-1].Timestamp.After(lastSeen) {
				lastSeen = fresh[len(fresh)-1].Timestamp
			}

			if err := h.send(conn, streamEvent{Type: "logs", Logs: fresh}); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) fetchSince(ctx context.Context, appID string, minLevel int, since time.Time) ([]*models.LogSummary, error) {
	return h.store.Summaries().ListTail(ctx, store.TailQuery{
		AppID:       appID,
		Since:       since,
		MinLevelNum: minLevel,
		Limit:       streamBatchLimit,
	})
}

func (h *StreamHandler) send(conn *websocket.Conn, ev streamEvent) error {
	conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(ev)
}
