package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/logpeak/logpeak/internal/store"
)

var (
	// ErrInvalidCredential is returned when the API key resolves to no
	// active application. No writes occur on this path.
	ErrInvalidCredential = errors.New("invalid or inactive API key")

	// ErrProcessingFailure is returned when persistence fails mid-batch.
	// The HTTP boundary surfaces it as a server error.
	ErrProcessingFailure = errors.New("log processing failed")
)

// maxLineBytes bounds a single NDJSON line.
const maxLineBytes = 256 * 1024

// Result reports per-call accounting: events durably written, events
// skipped (parse failures plus cap overflow) and flagged derivations.
type Result struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Flagged   int `json:"flagged"`
}

// Pipeline ingests webhook batches for authenticated applications.
type Pipeline struct {
	store     store.Store
	logger    *slog.Logger
	maxEvents int
}

// NewPipeline creates an ingestion pipeline. maxEvents caps how many
// events (originals plus flagged derivations) one call may persist.
func NewPipeline(st store.Store, logger *slog.Logger, maxEvents int) *Pipeline {
	if maxEvents <= 0 {
		maxEvents = 100
	}
	return &Pipeline{
		store:     st,
		logger:    logger.With("component", "ingest"),
		maxEvents: maxEvents,
	}
}

// Ingest authenticates the API key and processes one NDJSON body. Each
// non-blank line is parsed independently; a line may hold one event
// object or an array of them. Parse failures skip the line and never
// abort the batch. Storage failures abort with ErrProcessingFailure.
func (p *Pipeline) Ingest(ctx context.Context, apiKey, logData string) (*Result, error) {
	app, err := p.store.Apps().GetByAPIKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			ingestRejectedTotal.Inc()
			return nil, ErrInvalidCredential
		}
		return nil, fmt.Errorf("%w: resolving API key: %v", ErrProcessingFailure, err)
	}

	res := &Result{}
	events := p.parseLines(app.ID, logData, res)

	now := time.Now().UTC()
	remaining := p.maxEvents

	for _, ev := range events {
		if remaining <= 0 {
			res.Skipped++
			continue
		}
		if err := p.persist(ctx, app.ID, ev, now); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProcessingFailure, err)
		}
		remaining--
		res.Processed++

		// Derived flagged events are persisted right after their source
		// and count toward the same per-call cap.
		for _, flagged := range MatchFlags(app.FlagRules, ev) {
			if remaining <= 0 {
				res.Skipped++
				continue
			}
			if err := p.persist(ctx, app.ID, flagged, now); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrProcessingFailure, err)
			}
			remaining--
			res.Processed++
			res.Flagged++
		}
	}

	ingestEventsTotal.Add(float64(res.Processed))
	ingestSkippedTotal.Add(float64(res.Skipped))
	ingestFlaggedTotal.Add(float64(res.Flagged))

	p.logger.Info("batch ingested",
		"app_id", app.ID,
		"processed", res.Processed,
		"skipped", res.Skipped,
		"flagged", res.Flagged,
	)

	return res, nil
}

// parseLines splits the body on newlines and decodes each line,
// flattening JSON arrays. Failed lines increment res.Skipped.
func (p *Pipeline) parseLines(appID, logData string, res *Result) []Event {
	var events []Event

	scanner := bufio.NewScanner(strings.NewReader(logData))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") {
			var batch []Event
			if err := json.Unmarshal([]byte(line), &batch); err != nil {
				p.logger.Warn("skipping unparseable line", "app_id", appID, "error", err)
				res.Skipped++
				continue
			}
			events = append(events, batch...)
			continue
		}

		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			p.logger.Warn("skipping unparseable line", "app_id", appID, "error", err)
			res.Skipped++
			continue
		}
		events = append(events, ev)
	}

	if err := scanner.Err(); err != nil {
		p.logger.Warn("stopped scanning body", "app_id", appID, "error", err)
		res.Skipped++
	}

	return events
}

// persist writes the full record and its paired summary in one
// transaction, full record first.
func (p *Pipeline) persist(ctx context.Context, appID string, ev Event, receivedAt time.Time) error {
	rec := Normalize(appID, ev, receivedAt)

	sum := rec.Summarize()
	sum.ID = uuid.NewString()

	return p.store.WithTx(ctx, func(txs store.Store) error {
		if err := txs.Logs().Create(ctx, rec); err != nil {
			return fmt.Errorf("inserting log record: %w", err)
		}
		if err := txs.Summaries().Create(ctx, sum); err != nil {
			return fmt.Errorf("inserting log summary: %w", err)
		}
		return nil
	})
}
