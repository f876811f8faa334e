package pattern

import (
	"context"
	"time"

	"github.com/xaenox/labelbot/internal/models"
)

// PatternUpdater applies an atomic read-modify-write to the pattern stored under key.
// fn receives nil for a missing key; returning nil leaves the store unchanged.
type PatternUpdater interface {
	UpdatePattern(ctx context.Context, key string, fn func(existing *models.Pattern) *models.Pattern) error
}

// Learner folds user corrections into the pattern store.
type Learner struct {
	store      PatternUpdater
	norm       *Normalizer
	thresholds Thresholds
	now        func() time.Time
}

// NewLearner creates a learner writing to store.
func NewLearner(store PatternUpdater, norm *Normalizer, thresholds Thresholds, now func() time.Time) *Learner {
	if now == nil {
		now = time.Now
	}
	return &Learner{store: store, norm: norm, thresholds: thresholds, now: now}
}

// Learn records that text was labeled with labels. A new key starts at the
// initial confidence; an existing key has its labels replaced (latest
// correction wins), its usage count incremented and its confidence raised by
// one step, capped at 1.0. Short keys and empty label sets are ignored and
// reported with ok=false.
func (l *Learner) Learn(ctx context.Context, text string, labels []string) (p models.Pattern, ok bool, err error) {
	key := l.norm.Normalize(text)
	set := models.LabelSet(labels)
	if !ValidKey(key) || len(set) == 0 {
		return models.Pattern{}, false, nil
	}

	now := l.now()
	err = l.store.UpdatePattern(ctx, key, func(existing *models.Pattern) *models.Pattern {
		if existing == nil {
			p = models.Pattern{
				Key:        key,
				Labels:     set,
				Confidence: roundConfidence(l.thresholds.Initial),
				UsageCount: 1,
				LastUsedAt: now,
			}
			return &p
		}
		p = existing.Clone()
		p.Labels = set
		p.UsageCount++
		p.Confidence = l.thresholds.next(existing.Confidence)
		p.LastUsedAt = now
		return &p
	})
	if err != nil {
		return models.Pattern{}, false, err
	}
	return p, true, nil
}
