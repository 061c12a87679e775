package models

import "time"

// AlertType discriminates the trigger predicate of an alert rule.
type AlertType string

const (
	// AlertErrorCount fires when the window holds at least Threshold
	// error-level records.
	AlertErrorCount AlertType = "error_count"
	// AlertErrorRate fires when errors/total*100 in the window reaches
	// Threshold. An empty window never fires.
	AlertErrorRate AlertType = "error_rate"
	// AlertFunctionDuration fires when any record whose source matches
	// FunctionFilter reports a duration of at least Threshold ms.
	AlertFunctionDuration AlertType = "function_duration"
	// AlertNoLogs fires when the window holds no records at all.
	AlertNoLogs AlertType = "no_logs"
)

// Valid reports whether t is a known alert type.
func (t AlertType) Valid() bool {
	switch t {
	case AlertErrorCount, AlertErrorRate, AlertFunctionDuration, AlertNoLogs:
		return true
	}
	return false
}

// AlertRule is a condition over a trailing time window of one app's logs.
// LastTriggered and TriggerCount are mutated only by the alert evaluator.
type AlertRule struct {
	ID             string     `json:"id"`
	AppID          string     `json:"app_id"`
	OwnerID        string     `json:"owner_id"`
	Name           string     `json:"name"`
	Type           AlertType  `json:"type"`
	Threshold      float64    `json:"threshold"`
	WindowMinutes  int        `json:"window_minutes"`
	FunctionFilter string     `json:"function_filter,omitempty"`
	Active         bool       `json:"active"`
	LastTriggered  *time.Time `json:"last_triggered,omitempty"`
	TriggerCount   int64      `json:"trigger_count"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// AlertFiring summarizes one rule firing for the caller of an evaluation
// cycle. Notification delivery is out of scope; this is the hand-off shape.
type AlertFiring struct {
	RuleID       string    `json:"rule_id"`
	RuleName     string    `json:"rule_name"`
	AppID        string    `json:"app_id"`
	Type         AlertType `json:"type"`
	WindowLogs   int       `json:"window_logs"`
	WindowErrors int       `json:"window_errors"`
	FiredAt      time.Time `json:"fired_at"`
}
