package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xaenox/labelbot/internal/models"
	"github.com/xaenox/labelbot/internal/remote"
	"github.com/xaenox/labelbot/internal/storage"
)

// Learner is the part of the pattern learner the merger needs.
type Learner interface {
	Learn(ctx context.Context, text string, labels []string) (models.Pattern, bool, error)
}

// MergeResult summarizes one startup pull.
type MergeResult struct {
	Fetched   int
	Adopted   int
	Discarded int
	Invalid   int
	Learned   int
}

// Merger pulls remote records into local storage with local-wins semantics:
// a remote record is adopted only when the item has no local record at all.
type Merger struct {
	scope   string
	local   storage.CategorizationStore
	remote  remote.Store
	learner Learner
	logger  *zap.Logger
}

func NewMerger(scope string, local storage.CategorizationStore, rs remote.Store, learner Learner, logger *zap.Logger) *Merger {
	return &Merger{scope: scope, local: local, remote: rs, learner: learner, logger: logger}
}

// SyncOnce runs Merge the first time it is called for this scope within
// session and is a no-op afterwards. ran reports whether a pull happened.
func (m *Merger) SyncOnce(ctx context.Context, session *Session) (result MergeResult, ran bool, err error) {
	if !session.claim(m.scope) {
		return MergeResult{}, false, nil
	}
	result, err = m.Merge(ctx)
	return result, true, err
}

// Merge never writes to the remote and is idempotent: a second pass finds
// every record already present locally.
func (m *Merger) Merge(ctx context.Context) (MergeResult, error) {
	var result MergeResult

	records, err := m.remote.ListCategorizations(ctx)
	if err != nil {
		return result, fmt.Errorf("error listing remote categorizations: %w", err)
	}
	result.Fetched = len(records)

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if r.ItemID == "" || (!r.IsIgnored && len(models.LabelSet(r.Labels)) == 0) {
			result.Invalid++
			continue
		}

		adopted, err := m.local.AdoptRemote(ctx, r)
		if err != nil {
			return result, fmt.Errorf("error adopting remote record %s: %w", r.ItemID, err)
		}
		if !adopted {
			result.Discarded++
			continue
		}
		result.Adopted++

		if r.IsIgnored || m.learner == nil {
			continue
		}
		if _, ok, err := m.learner.Learn(ctx, r.ItemText, r.Labels); err != nil {
			m.logger.Warn("Failed to learn from remote record",
				zap.Error(err),
				zap.String("scope", m.scope),
				zap.String("item_id", r.ItemID))
		} else if ok {
			result.Learned++
		}
	}

	m.logger.Info("Remote categorizations merged",
		zap.String("scope", m.scope),
		zap.Int("fetched", result.Fetched),
		zap.Int("adopted", result.Adopted),
		zap.Int("discarded", result.Discarded),
		zap.Int("invalid", result.Invalid),
		zap.Int("learned", result.Learned))
	return result, nil
}
