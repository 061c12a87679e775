package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/logpeak/logpeak/internal/models"
)

// Normalize projects one parsed event into a full log record for the
// given application. It never panics on unexpected shapes; missing fields
// degrade to fallbacks. The serialized input is always retained in the
// record's Raw field for forensic replay.
func Normalize(appID string, ev Event, receivedAt time.Time) *models.LogRecord {
	rec := &models.LogRecord{
		ID:        uuid.NewString(),
		AppID:     appID,
		Timestamp: eventTimestamp(ev, receivedAt),
		UserID:    ev.str("user_id"),
		Raw:       serialize(ev),
		CreatedAt: receivedAt,
	}

	switch ev.Topic() {
	case TopicVerification:
		rec.Level = models.LevelInfo
		rec.Message = fallback(ev.str("message"), "Deployment verified")
		rec.Source = ev.str("deployment_id")
		rec.Metadata = marshalMeta(verificationMeta{
			DeploymentID: ev.str("deployment_id"),
			ProjectID:    ev.str("project_id"),
		})

	case TopicConsole:
		rec.Level = models.ParseLevel(ev.str("log_level"))
		rec.Message = fallback(ev.str("message"), "console output")
		rec.Source = ev.functionField("path")
		rec.RequestID = ev.functionField("request_id")
		rec.Metadata = marshalMeta(consoleMeta{
			Truncated:  boolField(ev, "truncated"),
			SystemCode: boolField(ev, "system_code"),
		})

	case TopicFunctionExecution:
		status := ev.str("status")
		if status == "success" {
			rec.Level = models.LevelInfo
		} else {
			rec.Level = models.LevelError
		}
		path := ev.functionField("path")
		rec.Message = fmt.Sprintf("Function %s %s", fallback(path, "unknown"), fallback(status, "unknown"))
		rec.Source = path
		rec.RequestID = ev.functionField("request_id")
		rec.Metadata = marshalMeta(functionExecutionMeta{
			Status:          status,
			CacheHit:        boolField(ev, "cache_hit"),
			Usage:           rawField(ev, "usage"),
			ExecutionTimeMs: numField(ev, "execution_time_ms"),
		})

	case TopicFlagged:
		rec.Level = models.LevelWarn
		flagName := ev.str(flagNameKey)
		rec.Message = fmt.Sprintf("%s %s: %s", models.FlagMarker, flagName, genericMessage(ev))
		rec.Source = ev.functionField("path")
		rec.RequestID = ev.functionField("request_id")
		rec.Metadata = marshalMeta(flaggedMeta{
			FlagName:      flagName,
			OriginalTopic: ev.str(originalTopicKey),
		})

	default:
		rec.Level = models.ParseLevel(ev.str("level"))
		rec.Message = genericMessage(ev)
		rec.Source = ev.str("source")
		rec.RequestID = ev.str("request_id")
		rec.Metadata = json.RawMessage(rec.Raw)
	}

	return rec
}

// eventTimestamp reads a sender-supplied timestamp, accepting epoch
// milliseconds or RFC 3339, and falls back to ingestion time.
func eventTimestamp(ev Event, receivedAt time.Time) time.Time {
	switch v := ev["timestamp"].(type) {
	case float64:
		if v > 0 {
			return time.UnixMilli(int64(v)).UTC()
		}
	case string:
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return ts.UTC()
		}
	}
	return receivedAt
}

func genericMessage(ev Event) string {
	return fallback(ev.str("message"), "event received")
}

func fallback(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func boolField(ev Event, key string) bool {
	v, _ := ev[key].(bool)
	return v
}

func numField(ev Event, key string) float64 {
	v, _ := ev[key].(float64)
	return v
}

func rawField(ev Event, key string) json.RawMessage {
	v, ok := ev[key]
	if !ok {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func marshalMeta(meta any) json.RawMessage {
	data, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return data
}

func serialize(ev Event) string {
	data, err := json.Marshal(ev)
	if err != nil {
		return ""
	}
	return string(data)
}
