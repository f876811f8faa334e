package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xaenox/labelbot/internal/models"
	"github.com/xaenox/labelbot/internal/pattern"
)

// RecordEdit logs a relabeling for drift detection. Items whose text
// normalizes to an invalid key are skipped.
func (e *Engine[L]) RecordEdit(ctx context.Context, itemID, text string, oldLabels, newLabels []L) error {
	if e.detector == nil {
		return ErrDriftDisabled
	}
	return e.appendEdit(ctx, itemID, text, toStrings(oldLabels), toStrings(newLabels))
}

func (e *Engine[L]) appendEdit(ctx context.Context, itemID, text string, oldLabels, newLabels []string) error {
	key := e.norm.Normalize(text)
	if !pattern.ValidKey(key) {
		return nil
	}
	rec := models.EditRecord{
		ItemID:        itemID,
		ItemText:      text,
		NormalizedKey: key,
		OldLabels:     models.LabelSet(oldLabels),
		NewLabels:     models.LabelSet(newLabels),
		Timestamp:     e.now(),
	}
	if err := e.store.AppendEdit(ctx, rec); err != nil {
		return fmt.Errorf("error recording edit: %w", err)
	}
	return nil
}

// GetPatternSuggestion returns the strongest bulk-correction candidate for
// the caller's live items, or nil.
func (e *Engine[L]) GetPatternSuggestion(ctx context.Context, live []models.LiveItem) (*models.DriftGroup, error) {
	if e.detector == nil {
		return nil, ErrDriftDisabled
	}
	return e.detector.Detect(ctx, live)
}

// DismissPattern hides the drift group for key until ResetDismissed.
func (e *Engine[L]) DismissPattern(ctx context.Context, key string) error {
	if e.detector == nil {
		return ErrDriftDisabled
	}
	key = e.norm.Normalize(key)
	if !pattern.ValidKey(key) {
		return nil
	}
	if err := e.store.DismissDriftKey(ctx, key); err != nil {
		return fmt.Errorf("error dismissing drift key: %w", err)
	}
	return nil
}

// ResetDismissed makes every dismissed drift group eligible again.
func (e *Engine[L]) ResetDismissed(ctx context.Context) error {
	if e.detector == nil {
		return ErrDriftDisabled
	}
	if err := e.store.ResetDismissedDriftKeys(ctx); err != nil {
		return fmt.Errorf("error resetting dismissed drift keys: %w", err)
	}
	return nil
}

// ApplyDriftGroup relabels every mismatched live item of g with the detected
// labels and reinforces the group's pattern. Applied relabels are not logged
// as edits, so resolving a group never feeds it. It returns the number of
// items changed.
func (e *Engine[L]) ApplyDriftGroup(ctx context.Context, g *models.DriftGroup, live []models.LiveItem) (int, error) {
	if e.detector == nil {
		return 0, ErrDriftDisabled
	}
	if g == nil {
		return 0, nil
	}

	wanted := make(map[string]struct{}, len(g.MismatchedIDs))
	for _, id := range g.MismatchedIDs {
		wanted[id] = struct{}{}
	}

	applied := 0
	for _, item := range live {
		if _, ok := wanted[item.ID]; !ok {
			continue
		}
		if err := e.saveCategorization(ctx, item.ID, item.Text, g.Labels, false); err != nil {
			return applied, err
		}
		applied++
	}
	if applied > 0 {
		if _, err := e.learn(ctx, g.Key, g.Labels); err != nil {
			return applied, err
		}
	}
	e.logger.Info("Applied drift group",
		zap.String("key", g.Key), zap.Int("items", applied), zap.Strings("labels", g.Labels))
	return applied, nil
}
