package ingest

import (
	"strings"

	"github.com/logpeak/logpeak/internal/models"
)

// MatchFlags tests one event against an application's active flag rules
// and returns a derived flagged event per matching rule. The original
// event is never mutated; a single event may match several rules.
func MatchFlags(rules []models.FlagRule, ev Event) []Event {
	if len(rules) == 0 {
		return nil
	}

	haystack := strings.ToLower(strings.Join([]string{
		ev.functionField("type"),
		ev.functionField("path"),
		ev.str("status"),
	}, " "))

	var derived []Event
	for _, rule := range rules {
		if !rule.Active || rule.Pattern == "" {
			continue
		}
		if !strings.Contains(haystack, strings.ToLower(rule.Pattern)) {
			continue
		}

		flagged := ev.clone()
		flagged[originalTopicKey] = ev.Topic()
		flagged["topic"] = TopicFlagged
		flagged[flagNameKey] = rule.Name
		derived = append(derived, flagged)
	}

	return derived
}
