package models

import (
	"sort"
	"strings"
	"time"
)

// Pattern is a learned association between a normalized key and a label set.
type Pattern struct {
	Key        string    `json:"key"`
	Labels     []string  `json:"labels"`
	Confidence float64   `json:"confidence"`
	UsageCount int       `json:"usage_count"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// Categorization is the concrete labeling decision for a single item.
type Categorization struct {
	ItemID        string    `json:"item_id"`
	ItemText      string    `json:"item_text"`
	Labels        []string  `json:"labels"`
	CategorizedAt time.Time `json:"categorized_at"`
}

// IgnoredItem marks an item the user chose not to label.
type IgnoredItem struct {
	ItemID    string    `json:"item_id"`
	ItemText  string    `json:"item_text"`
	IgnoredAt time.Time `json:"ignored_at"`
}

// EditRecord captures a relabeling of an already categorized item.
type EditRecord struct {
	ItemID        string    `json:"item_id"`
	ItemText      string    `json:"item_text"`
	NormalizedKey string    `json:"normalized_key"`
	OldLabels     []string  `json:"old_labels"`
	NewLabels     []string  `json:"new_labels"`
	Timestamp     time.Time `json:"timestamp"`
}

// Clone returns a deep copy so callers never share label slices with a store.
func (p Pattern) Clone() Pattern {
	p.Labels = append([]string(nil), p.Labels...)
	return p
}

// Clone returns a deep copy of the categorization.
func (c Categorization) Clone() Categorization {
	c.Labels = append([]string(nil), c.Labels...)
	return c
}

// LabelSet returns the labels trimmed, de-duplicated and sorted.
func LabelSet(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// LabelKey is a canonical string form of a label set, usable as a map key.
func LabelKey(labels []string) string {
	return strings.Join(LabelSet(labels), "\x1f")
}

// SameLabels reports whether two label slices describe the same set.
func SameLabels(a, b []string) bool {
	return LabelKey(a) == LabelKey(b)
}
