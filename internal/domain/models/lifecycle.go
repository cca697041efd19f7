package models

import "time"

type EventType string

const (
	EventCreated    EventType = "created"
	EventReinforced EventType = "reinforced"
	EventBroken     EventType = "broken"
	EventArchived   EventType = "archived"
	EventReplaced   EventType = "replaced"
)

// LifecycleEvent is published whenever a recommendation changes state.
type LifecycleEvent struct {
	Type             EventType     `json:"type"`
	RecommendationID string        `json:"recommendation_id"`
	Symbol           string        `json:"symbol"`
	Strategy         Horizon       `json:"strategy"`
	From             Status        `json:"from,omitempty"`
	To               Status        `json:"to"`
	Reason           ArchiveReason `json:"reason,omitempty"`
	ReturnPct        float64       `json:"return_pct"`
	ReplacedBy       string        `json:"replaced_by,omitempty"`
	At               time.Time     `json:"at"`
}

// ApplyReport summarises how scan candidates were turned into recommendations.
type ApplyReport struct {
	Strategy   Horizon  `json:"strategy"`
	Created    []string `json:"created"`
	Reinforced []string `json:"reinforced"`
	Replaced   []string `json:"replaced"`
	// Archived lists priors that were below their stop loss when a
	// fresher candidate arrived.
	Archived []string `json:"archived"`
	Skipped  []string `json:"skipped"`
}

// EvaluationReport summarises one evaluation cycle.
type EvaluationReport struct {
	Date      time.Time `json:"date"`
	Evaluated int       `json:"evaluated"`
	Unchanged int       `json:"unchanged"`
	Broken    []string  `json:"broken"`
	Archived  []string  `json:"archived"`
	Missed    []string  `json:"missed"`
	Conflicts []string  `json:"conflicts"`
	Failed    []string  `json:"failed"`
}
