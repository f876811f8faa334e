// Package drift finds bulk-correction candidates in the recent edit log.
package drift

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xaenox/labelbot/internal/models"
	"github.com/xaenox/labelbot/internal/pattern"
	"github.com/xaenox/labelbot/internal/storage"
)

// DefaultTTL is how long an edit record counts towards detection.
const DefaultTTL = 7 * 24 * time.Hour

// MinFrequency is the number of identical corrections needed before a label
// set is treated as a pattern.
const MinFrequency = 2

// Detector scores groups of recent edits sharing a normalized key.
type Detector struct {
	log  storage.EditLog
	norm *pattern.Normalizer
	ttl  time.Duration
	now  func() time.Time
}

func NewDetector(log storage.EditLog, norm *pattern.Normalizer, ttl time.Duration, now func() time.Time) *Detector {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Detector{log: log, norm: norm, ttl: ttl, now: now}
}

// TTL returns the edit retention window.
func (d *Detector) TTL() time.Duration {
	return d.ttl
}

type group struct {
	key        string
	text       string
	edits      int
	lastEditAt time.Time
	sets       map[string]*labelTally
}

type labelTally struct {
	labels []string
	count  int
	last   time.Time
}

// Detect returns the highest-scoring group among the edits inside the TTL
// window, or nil. live is the caller's current view of items; an item counts
// as mismatched when its text matches the group and its labels differ from
// the detected label set. Groups with no mismatched live item are skipped
// since there is nothing left to correct.
func (d *Detector) Detect(ctx context.Context, live []models.LiveItem) (*models.DriftGroup, error) {
	edits, err := d.log.ListEdits(ctx, d.now().Add(-d.ttl))
	if err != nil {
		return nil, fmt.Errorf("error listing edits: %w", err)
	}
	dismissed, err := d.log.DismissedDriftKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing dismissed drift keys: %w", err)
	}

	groups := make(map[string]*group)
	for _, e := range edits {
		key := e.NormalizedKey
		if key == "" {
			key = d.norm.Normalize(e.ItemText)
		}
		if !pattern.ValidKey(key) {
			continue
		}
		if _, skip := dismissed[key]; skip {
			continue
		}
		set := models.LabelSet(e.NewLabels)
		if len(set) == 0 {
			continue
		}

		g, ok := groups[key]
		if !ok {
			g = &group{key: key, sets: make(map[string]*labelTally)}
			groups[key] = g
		}
		g.edits++
		if !e.Timestamp.Before(g.lastEditAt) {
			g.lastEditAt = e.Timestamp
			g.text = e.ItemText
		}

		lk := models.LabelKey(set)
		t, ok := g.sets[lk]
		if !ok {
			t = &labelTally{labels: set}
			g.sets[lk] = t
		}
		t.count++
		if e.Timestamp.After(t.last) {
			t.last = e.Timestamp
		}
	}

	liveKeys := make([]string, len(live))
	for i, item := range live {
		liveKeys[i] = d.norm.Normalize(item.Text)
	}

	var best *models.DriftGroup
	for _, g := range groups {
		t := g.dominant()
		if t == nil {
			continue
		}

		var mismatched []string
		for i, item := range live {
			if pattern.NamesMatch(g.key, liveKeys[i]) && !models.SameLabels(item.Labels, t.labels) {
				mismatched = append(mismatched, item.ID)
			}
		}
		if len(mismatched) == 0 {
			continue
		}

		candidate := &models.DriftGroup{
			Key:           g.key,
			Text:          g.text,
			Labels:        append([]string(nil), t.labels...),
			EditCount:     g.edits,
			Frequency:     t.count,
			MismatchedIDs: mismatched,
			Score:         2*g.edits + len(mismatched),
			LastEditAt:    g.lastEditAt,
		}
		if best == nil || outranks(candidate, best) {
			best = candidate
		}
	}
	return best, nil
}

// dominant returns the most frequent qualifying label set, newest on ties.
func (g *group) dominant() *labelTally {
	keys := make([]string, 0, len(g.sets))
	for k := range g.sets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var best *labelTally
	for _, k := range keys {
		t := g.sets[k]
		if t.count < MinFrequency {
			continue
		}
		if best == nil || t.count > best.count || (t.count == best.count && t.last.After(best.last)) {
			best = t
		}
	}
	return best
}

func outranks(a, b *models.DriftGroup) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.EditCount != b.EditCount {
		return a.EditCount > b.EditCount
	}
	if !a.LastEditAt.Equal(b.LastEditAt) {
		return a.LastEditAt.After(b.LastEditAt)
	}
	return a.Key < b.Key
}
