// Package ingest implements the webhook ingestion pipeline: API key
// authentication, NDJSON parsing, event normalization, flag matching and
// paired full/summary persistence.
package ingest

import "encoding/json"

// Recognized event topics. Events with any other topic fall through to
// generic field extraction.
const (
	TopicVerification      = "verification"
	TopicConsole           = "console"
	TopicFunctionExecution = "function_execution"
	TopicFlagged           = "flagged"
)

// Keys stamped onto derived flagged events by the matcher.
const (
	flagNameKey      = "flag_name"
	originalTopicKey = "original_topic"
)

// Event is one parsed webhook event. Shapes vary by topic, so events stay
// as decoded JSON until the normalizer projects them into a typed record.
type Event map[string]any

// Topic returns the event's topic discriminator, or "" when absent.
func (e Event) Topic() string {
	return e.str("topic")
}

func (e Event) str(key string) string {
	if v, ok := e[key].(string); ok {
		return v
	}
	return ""
}

// functionField reads a key from the event's nested function-context
// object, falling back to the same key at the top level.
func (e Event) functionField(key string) string {
	if fn, ok := e["function"].(map[string]any); ok {
		if v, ok := fn[key].(string); ok && v != "" {
			return v
		}
	}
	return e.str(key)
}

// clone returns a shallow copy. Derived events must never mutate the
// original.
func (e Event) clone() Event {
	out := make(Event, len(e)+2)
	for k, v := range e {
		out[k] = v
	}
	return out
}

// verificationMeta is the metadata payload for verification events.
type verificationMeta struct {
	DeploymentID string `json:"deployment_id,omitempty"`
	ProjectID    string `json:"project_id,omitempty"`
}

// consoleMeta is the metadata payload for console events.
type consoleMeta struct {
	Truncated  bool `json:"truncated,omitempty"`
	SystemCode bool `json:"system_code,omitempty"`
}

// functionExecutionMeta is the metadata payload for function execution
// events.
type functionExecutionMeta struct {
	Status          string          `json:"status,omitempty"`
	CacheHit        bool            `json:"cache_hit,omitempty"`
	Usage           json.RawMessage `json:"usage,omitempty"`
	ExecutionTimeMs float64         `json:"execution_time_ms,omitempty"`
}

// flaggedMeta is the metadata payload for derived flagged events. It
// records which rule fired and the topic the source event carried.
type flaggedMeta struct {
	FlagName      string `json:"flag_name"`
	OriginalTopic string `json:"original_topic,omitempty"`
}
