// Package engine learns label patterns from user corrections and offers them
// back as suggestions or automatic labels. One generic Engine is shared by the
// activity-tag and calendar classification instances.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/labelbot/internal/drift"
	"github.com/xaenox/labelbot/internal/models"
	"github.com/xaenox/labelbot/internal/pattern"
	"github.com/xaenox/labelbot/internal/reconcile"
	"github.com/xaenox/labelbot/internal/storage"
)

// ErrDriftDisabled is returned by drift operations on an instance created
// without drift detection.
var ErrDriftDisabled = errors.New("drift detection is disabled for this engine")

// ErrNoSuggestion is returned when accepting or dismissing an item that has
// no pending suggestion.
var ErrNoSuggestion = errors.New("no pending suggestion for item")

// Options configures one engine instance.
type Options struct {
	Scope      string
	Thresholds pattern.Thresholds
	Stoplist   []string
	Drift      bool
	DriftTTL   time.Duration
}

// Deps are the collaborators an engine writes to.
type Deps struct {
	Store  storage.Storage
	Push   reconcile.Enqueuer
	Logger *zap.Logger
	Now    func() time.Time
}

// Suggestion is a learned label set offered for an item.
type Suggestion[L ~string] struct {
	Key        string
	Labels     []L
	Confidence float64
}

// Engine is safe for concurrent use. Every method runs synchronously against
// local storage; remote writes are queued and never awaited.
type Engine[L ~string] struct {
	scope      string
	store      storage.Storage
	norm       *pattern.Normalizer
	matcher    *pattern.Matcher
	learner    *pattern.Learner
	thresholds pattern.Thresholds
	detector   *drift.Detector
	push       reconcile.Enqueuer
	logger     *zap.Logger
	now        func() time.Time

	mu    sync.Mutex
	items map[string]*itemSession[L]
}

// New builds an engine over deps.Store.
func New[L ~string](opts Options, deps Deps) (*Engine[L], error) {
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("engine %s: %w", opts.Scope, err)
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("engine %s: storage is required", opts.Scope)
	}
	if deps.Push == nil {
		deps.Push = reconcile.NopEnqueuer{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	norm := pattern.NewNormalizer(opts.Stoplist)
	e := &Engine[L]{
		scope:      opts.Scope,
		store:      deps.Store,
		norm:       norm,
		matcher:    pattern.NewMatcher(norm),
		learner:    pattern.NewLearner(deps.Store, norm, opts.Thresholds, deps.Now),
		thresholds: opts.Thresholds,
		push:       deps.Push,
		logger:     deps.Logger.With(zap.String("scope", opts.Scope)),
		now:        deps.Now,
		items:      make(map[string]*itemSession[L]),
	}
	if opts.Drift {
		e.detector = drift.NewDetector(deps.Store, norm, opts.DriftTTL, deps.Now)
	}
	return e, nil
}

func (e *Engine[L]) Scope() string { return e.scope }

// Learner exposes the pattern learner, for the startup merge.
func (e *Engine[L]) Learner() *pattern.Learner { return e.learner }

// DriftEnabled reports whether drift operations are available.
func (e *Engine[L]) DriftEnabled() bool { return e.detector != nil }

// Normalize returns the pattern key for text.
func (e *Engine[L]) Normalize(text string) string { return e.norm.Normalize(text) }

// Learn records a user correction. Short keys and empty label sets are
// dropped silently.
func (e *Engine[L]) Learn(ctx context.Context, text string, labels []L) error {
	_, err := e.learn(ctx, text, toStrings(labels))
	return err
}

func (e *Engine[L]) learn(ctx context.Context, text string, labels []string) (models.Pattern, error) {
	p, ok, err := e.learner.Learn(ctx, text, labels)
	if err != nil {
		return models.Pattern{}, fmt.Errorf("error learning pattern: %w", err)
	}
	if !ok {
		e.logger.Debug("Rejected learn call", zap.String("text", text), zap.Int("labels", len(labels)))
		return models.Pattern{}, nil
	}
	return p, nil
}

// Patterns lists the learned patterns ordered by key.
func (e *Engine[L]) Patterns(ctx context.Context) ([]models.Pattern, error) {
	return e.store.ListPatterns(ctx)
}

// GetSuggestion returns the best match for text when it clears the
// suggestion threshold.
func (e *Engine[L]) GetSuggestion(ctx context.Context, text string) (*Suggestion[L], error) {
	p, ok, err := e.match(ctx, text)
	if err != nil || !ok || !e.thresholds.Suggests(p.Confidence) {
		return nil, err
	}
	return suggestionOf[L](p), nil
}

// ShouldAutoApply returns the best match for text when it clears the
// auto-apply threshold.
func (e *Engine[L]) ShouldAutoApply(ctx context.Context, text string) (*Suggestion[L], error) {
	p, ok, err := e.match(ctx, text)
	if err != nil || !ok || !e.thresholds.AutoApplies(p.Confidence) {
		return nil, err
	}
	return suggestionOf[L](p), nil
}

func (e *Engine[L]) match(ctx context.Context, text string) (models.Pattern, bool, error) {
	patterns, err := e.store.ListPatterns(ctx)
	if err != nil {
		return models.Pattern{}, false, fmt.Errorf("error listing patterns: %w", err)
	}
	p, _, ok := e.matcher.Match(text, patterns)
	return p, ok, nil
}

// SaveCategorization stores the labels for an item, replacing any earlier
// decision or ignore mark. Relabeling a categorized item with a different
// set is logged as an edit when drift detection is enabled.
func (e *Engine[L]) SaveCategorization(ctx context.Context, itemID, itemText string, labels []L) error {
	return e.saveCategorization(ctx, itemID, itemText, toStrings(labels), true)
}

func (e *Engine[L]) saveCategorization(ctx context.Context, itemID, itemText string, labels []string, recordEdit bool) error {
	set := models.LabelSet(labels)
	if itemID == "" || len(set) == 0 {
		e.logger.Debug("Rejected categorization", zap.String("item_id", itemID))
		return nil
	}

	if recordEdit && e.detector != nil {
		prev, err := e.store.GetCategorization(ctx, itemID)
		if err != nil {
			return fmt.Errorf("error loading categorization: %w", err)
		}
		if prev != nil && !models.SameLabels(prev.Labels, set) {
			if err := e.appendEdit(ctx, itemID, itemText, prev.Labels, set); err != nil {
				return err
			}
		}
	}

	c := models.Categorization{
		ItemID:        itemID,
		ItemText:      itemText,
		Labels:        set,
		CategorizedAt: e.now(),
	}
	if err := e.store.SaveCategorization(ctx, c); err != nil {
		return fmt.Errorf("error saving categorization: %w", err)
	}
	e.forget(itemID)
	e.push.Enqueue(reconcile.PutTask(models.RemoteFromCategorization(c)))
	return nil
}

// RemoveCategorization deletes the item's labels. Missing items are a no-op.
func (e *Engine[L]) RemoveCategorization(ctx context.Context, itemID string) error {
	removed, err := e.store.DeleteCategorization(ctx, itemID)
	if err != nil {
		return fmt.Errorf("error removing categorization: %w", err)
	}
	e.forget(itemID)
	if removed {
		e.push.Enqueue(reconcile.DeleteTask(itemID))
	}
	return nil
}

// Ignore marks the item as deliberately unlabeled, dropping any categorization.
func (e *Engine[L]) Ignore(ctx context.Context, itemID, itemText string) error {
	if itemID == "" {
		return nil
	}
	item := models.IgnoredItem{ItemID: itemID, ItemText: itemText, IgnoredAt: e.now()}
	if err := e.store.SaveIgnored(ctx, item); err != nil {
		return fmt.Errorf("error ignoring item: %w", err)
	}
	e.forget(itemID)
	e.push.Enqueue(reconcile.PutTask(models.RemoteFromIgnored(item)))
	return nil
}

// Unignore clears the ignore mark; the item becomes uncategorized.
func (e *Engine[L]) Unignore(ctx context.Context, itemID string) error {
	removed, err := e.store.DeleteIgnored(ctx, itemID)
	if err != nil {
		return fmt.Errorf("error unignoring item: %w", err)
	}
	if removed {
		e.push.Enqueue(reconcile.DeleteTask(itemID))
	}
	return nil
}

func (e *Engine[L]) IsIgnored(ctx context.Context, itemID string) (bool, error) {
	item, err := e.store.GetIgnored(ctx, itemID)
	if err != nil {
		return false, fmt.Errorf("error loading ignored item: %w", err)
	}
	return item != nil, nil
}

// Categorization returns the stored labels for an item, or nil.
func (e *Engine[L]) Categorization(ctx context.Context, itemID string) ([]L, error) {
	c, err := e.store.GetCategorization(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("error loading categorization: %w", err)
	}
	if c == nil {
		return nil, nil
	}
	return fromStrings[L](c.Labels), nil
}

// ForgetLabel removes label from every pattern, deleting patterns left
// without labels. It returns the number of patterns changed.
func (e *Engine[L]) ForgetLabel(ctx context.Context, label L) (int, error) {
	patterns, err := e.store.ListPatterns(ctx)
	if err != nil {
		return 0, fmt.Errorf("error listing patterns: %w", err)
	}

	changed := 0
	for _, p := range patterns {
		if !containsLabel(p.Labels, string(label)) {
			continue
		}
		err := e.store.UpdatePattern(ctx, p.Key, func(existing *models.Pattern) *models.Pattern {
			if existing == nil {
				return nil
			}
			next := existing.Clone()
			next.Labels = next.Labels[:0]
			for _, l := range existing.Labels {
				if l != string(label) {
					next.Labels = append(next.Labels, l)
				}
			}
			return &next
		})
		if err != nil {
			return changed, fmt.Errorf("error updating pattern %s: %w", p.Key, err)
		}
		changed++
	}
	return changed, nil
}

func suggestionOf[L ~string](p models.Pattern) *Suggestion[L] {
	return &Suggestion[L]{Key: p.Key, Labels: fromStrings[L](p.Labels), Confidence: p.Confidence}
}

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

func toStrings[L ~string](labels []L) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = string(l)
	}
	return out
}

func fromStrings[L ~string](labels []string) []L {
	out := make([]L, len(labels))
	for i, l := range labels {
		out[i] = L(l)
	}
	return out
}
