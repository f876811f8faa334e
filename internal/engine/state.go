package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xaenox/labelbot/internal/models"
)

// itemSession is the in-process lifecycle state of one item. It is not
// persisted: a restart returns every undecided item to Uncategorized.
type itemSession[L ~string] struct {
	text       string
	suggestion *Suggestion[L]
	dismissed  map[string]struct{}
	selection  []L
}

func (e *Engine[L]) session(itemID string) *itemSession[L] {
	s, ok := e.items[itemID]
	if !ok {
		s = &itemSession[L]{dismissed: make(map[string]struct{})}
		e.items[itemID] = s
	}
	return s
}

// forget drops the pending suggestion and selection once the item is decided.
// Dismissed keys survive so a later re-evaluation stays quiet.
func (e *Engine[L]) forget(itemID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.items[itemID]; ok {
		s.suggestion = nil
		s.selection = nil
		if len(s.dismissed) == 0 {
			delete(e.items, itemID)
		}
	}
}

// State reports where the item is in its lifecycle.
func (e *Engine[L]) State(ctx context.Context, itemID string) (models.ItemState, error) {
	ignored, err := e.IsIgnored(ctx, itemID)
	if err != nil {
		return "", err
	}
	if ignored {
		return models.StateIgnored, nil
	}
	c, err := e.store.GetCategorization(ctx, itemID)
	if err != nil {
		return "", fmt.Errorf("error loading categorization: %w", err)
	}
	if c != nil {
		return models.StateCategorized, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.items[itemID]; ok && s.suggestion != nil {
		return models.StateSuggested, nil
	}
	return models.StateUncategorized, nil
}

// Evaluate runs an uncategorized item through the matcher. A match above the
// auto-apply threshold is saved directly and the item goes straight to
// Categorized; a match above the suggestion threshold is held as a pending
// suggestion. Pattern keys dismissed for this item are left out of the match,
// and an item with a pending explicit selection never receives a suggestion.
// The returned suggestion is the one applied or offered, if any.
func (e *Engine[L]) Evaluate(ctx context.Context, itemID, text string) (models.ItemState, *Suggestion[L], error) {
	state, err := e.State(ctx, itemID)
	if err != nil || state == models.StateIgnored || state == models.StateCategorized {
		return state, nil, err
	}

	patterns, err := e.store.ListPatterns(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("error listing patterns: %w", err)
	}

	e.mu.Lock()
	s := e.session(itemID)
	s.text = text
	if len(s.dismissed) > 0 {
		kept := patterns[:0]
		for _, p := range patterns {
			if _, dismissed := s.dismissed[p.Key]; !dismissed {
				kept = append(kept, p)
			}
		}
		patterns = kept
	}
	p, _, ok := e.matcher.Match(text, patterns)
	if !ok || !e.thresholds.Suggests(p.Confidence) || len(s.selection) > 0 {
		s.suggestion = nil
		e.mu.Unlock()
		return models.StateUncategorized, nil, nil
	}
	sug := suggestionOf[L](p)
	if !e.thresholds.AutoApplies(p.Confidence) {
		s.suggestion = sug
		e.mu.Unlock()
		return models.StateSuggested, sug, nil
	}
	e.mu.Unlock()

	if err := e.saveCategorization(ctx, itemID, text, p.Labels, true); err != nil {
		return "", nil, err
	}
	e.logger.Debug("Auto-applied pattern",
		zap.String("item_id", itemID),
		zap.String("key", p.Key),
		zap.Float64("confidence", p.Confidence))
	return models.StateCategorized, sug, nil
}

// Accept applies the pending suggestion and reinforces the pattern it came from.
func (e *Engine[L]) Accept(ctx context.Context, itemID string) error {
	e.mu.Lock()
	s, ok := e.items[itemID]
	if !ok || s.suggestion == nil {
		e.mu.Unlock()
		return ErrNoSuggestion
	}
	sug, text := *s.suggestion, s.text
	e.mu.Unlock()

	labels := toStrings(sug.Labels)
	if err := e.saveCategorization(ctx, itemID, text, labels, true); err != nil {
		return err
	}
	_, err := e.learn(ctx, sug.Key, labels)
	return err
}

// Dismiss declines the pending suggestion. Only its pattern key is suppressed
// for this item; other patterns may still be suggested later.
func (e *Engine[L]) Dismiss(ctx context.Context, itemID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.items[itemID]
	if !ok || s.suggestion == nil {
		return ErrNoSuggestion
	}
	s.dismissed[s.suggestion.Key] = struct{}{}
	s.suggestion = nil
	return nil
}

// Select records an explicit, not yet committed, user choice for the item.
// While it is pending no suggestion replaces it. An empty selection clears it.
func (e *Engine[L]) Select(itemID string, labels []L) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.session(itemID)
	s.selection = fromStrings[L](models.LabelSet(toStrings(labels)))
	if len(s.selection) > 0 {
		s.suggestion = nil
	}
}

// Selection returns the pending explicit choice for the item.
func (e *Engine[L]) Selection(itemID string) []L {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.items[itemID]; ok {
		return append([]L(nil), s.selection...)
	}
	return nil
}

// Label is a manual categorization: the labels are saved for the item and
// learned against the item's own text. Nil labels commit the pending
// selection.
func (e *Engine[L]) Label(ctx context.Context, itemID, text string, labels []L) error {
	if len(labels) == 0 {
		labels = e.Selection(itemID)
	}
	set := models.LabelSet(toStrings(labels))
	if len(set) == 0 {
		return nil
	}
	if err := e.saveCategorization(ctx, itemID, text, set, true); err != nil {
		return err
	}
	_, err := e.learn(ctx, text, set)
	return err
}
