package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Level is the severity of a log record.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Numeric ranks for levels. Ranks are spaced so "severity >= X" queries on
// the summary collection are closed range scans.
const (
	RankDebug = 10
	RankInfo  = 20
	RankWarn  = 30
	RankError = 40
)

// Rank returns the numeric rank of the level. Unrecognized levels rank as
// info.
func (l Level) Rank() int {
	switch l {
	case LevelDebug:
		return RankDebug
	case LevelInfo:
		return RankInfo
	case LevelWarn:
		return RankWarn
	case LevelError:
		return RankError
	default:
		return RankInfo
	}
}

// ParseLevel normalizes an arbitrary level string to a Level. Matching is
// case-insensitive; unknown values map to info.
func ParseLevel(s string) Level {
	switch l := Level(strings.ToLower(s)); l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return l
	default:
		return LevelInfo
	}
}

// SummaryMessageLen is the truncation length for the summary message.
const SummaryMessageLen = 100

// FlagMarker prefixes the message of derived flagged events. The metrics
// aggregator counts its occurrences in summary messages.
const FlagMarker = "⚑"

// LogRecord is one fully ingested event, raw payload retained.
// Immutable once written; removed only by the retention sweeper or an
// app-level purge.
type LogRecord struct {
	ID        string          `json:"id"`
	AppID     string          `json:"app_id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     Level           `json:"level"`
	Message   string          `json:"message"`
	Source    string          `json:"source,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Raw       string          `json:"raw"`
	CreatedAt time.Time       `json:"created_at"`
}

// LogSummary is the truncated projection of a LogRecord, optimized for
// cheap range scans. LogID is an exclusive back-reference to the full
// record.
type LogSummary struct {
	ID           string    `json:"id"`
	AppID        string    `json:"app_id"`
	LogID        string    `json:"log_id"`
	Timestamp    time.Time `json:"timestamp"`
	Level        Level     `json:"level"`
	LevelNum     int       `json:"level_num"`
	MessageShort string    `json:"message_short"`
	Source       string    `json:"source,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	HasMeta      bool      `json:"has_meta"`
}

// Summarize projects a full record into its paired summary row.
func (r *LogRecord) Summarize() *LogSummary {
	return &LogSummary{
		AppID:        r.AppID,
		LogID:        r.ID,
		Timestamp:    r.Timestamp,
		Level:        r.Level,
		LevelNum:     r.Level.Rank(),
		MessageShort: TruncateMessage(r.Message),
		Source:       r.Source,
		RequestID:    r.RequestID,
		HasMeta:      len(r.Metadata) > 0 && string(r.Metadata) != "null" && string(r.Metadata) != "{}",
	}
}

// TruncateMessage cuts a message to SummaryMessageLen runes.
func TruncateMessage(msg string) string {
	runes := []rune(msg)
	if len(runes) <= SummaryMessageLen {
		return msg
	}
	return string(runes[:SummaryMessageLen])
}
