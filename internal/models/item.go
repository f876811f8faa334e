package models

import "time"

// ItemState is the per-item position in the suggestion lifecycle.
type ItemState string

const (
	StateUncategorized ItemState = "uncategorized"
	StateSuggested     ItemState = "suggested"
	StateCategorized   ItemState = "categorized"
	StateIgnored       ItemState = "ignored"
)

// LiveItem is an item currently visible to the caller, with its current labels.
type LiveItem struct {
	ID     string   `json:"id"`
	Text   string   `json:"text"`
	Labels []string `json:"labels"`
}

// DriftGroup is a bulk-correction candidate found in the edit log.
type DriftGroup struct {
	Key           string    `json:"key"`
	Text          string    `json:"text"`
	Labels        []string  `json:"labels"`
	EditCount     int       `json:"edit_count"`
	Frequency     int       `json:"frequency"`
	MismatchedIDs []string  `json:"mismatched_ids"`
	Score         int       `json:"score"`
	LastEditAt    time.Time `json:"last_edit_at"`
}
