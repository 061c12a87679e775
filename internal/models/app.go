package models

import "time"

// FlagRule is a user-defined substring pattern attached to an application.
// Events whose function context matches the pattern are re-emitted as
// derived warn-level "flagged" events.
type FlagRule struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Pattern   string    `json:"pattern"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// App represents a monitored application owned by a dashboard user.
// The API key authenticates webhook senders and maps 1:1 to the app.
type App struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"owner_id"`
	Name      string     `json:"name"`
	APIKey    string     `json:"api_key"`
	Active    bool       `json:"active"`
	FlagRules []FlagRule `json:"flag_rules"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// ActiveFlagRules returns only the rules that are enabled.
func (a *App) ActiveFlagRules() []FlagRule {
	var rules []FlagRule
	for _, r := range a.FlagRules {
		if r.Active {
			rules = append(rules, r)
		}
	}
	return rules
}
