package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xaenox/labelbot/internal/models"
)

// MemoryStorage keeps everything in process memory. Reads return copies so
// callers observe either the pre- or post-mutation state.
type MemoryStorage struct {
	mu              sync.RWMutex
	patterns        map[string]models.Pattern
	categorizations map[string]models.Categorization
	ignored         map[string]models.IgnoredItem
	edits           []models.EditRecord
	dismissed       map[string]struct{}
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		patterns:        make(map[string]models.Pattern),
		categorizations: make(map[string]models.Categorization),
		ignored:         make(map[string]models.IgnoredItem),
		dismissed:       make(map[string]struct{}),
	}
}

// Pattern methods
func (s *MemoryStorage) GetPattern(ctx context.Context, key string) (*models.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, exists := s.patterns[key]; exists {
		c := p.Clone()
		return &c, nil
	}
	return nil, nil
}

func (s *MemoryStorage) ListPatterns(ctx context.Context) ([]models.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStorage) UpdatePattern(ctx context.Context, key string, fn func(*models.Pattern) *models.Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *models.Pattern
	if p, exists := s.patterns[key]; exists {
		c := p.Clone()
		existing = &c
	}
	next := fn(existing)
	switch {
	case next == nil:
	case len(next.Labels) == 0:
		delete(s.patterns, key)
	default:
		p := next.Clone()
		p.Key = key
		s.patterns[key] = p
	}
	return nil
}

// Categorization methods
func (s *MemoryStorage) SaveCategorization(ctx context.Context, c models.Categorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.ignored, c.ItemID)
	s.categorizations[c.ItemID] = c.Clone()
	return nil
}

func (s *MemoryStorage) GetCategorization(ctx context.Context, itemID string) (*models.Categorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, exists := s.categorizations[itemID]; exists {
		out := c.Clone()
		return &out, nil
	}
	return nil, nil
}

func (s *MemoryStorage) ListCategorizations(ctx context.Context) ([]models.Categorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Categorization, 0, len(s.categorizations))
	for _, c := range s.categorizations {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (s *MemoryStorage) DeleteCategorization(ctx context.Context, itemID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.categorizations[itemID]
	delete(s.categorizations, itemID)
	return exists, nil
}

func (s *MemoryStorage) SaveIgnored(ctx context.Context, item models.IgnoredItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.categorizations, item.ItemID)
	s.ignored[item.ItemID] = item
	return nil
}

func (s *MemoryStorage) GetIgnored(ctx context.Context, itemID string) (*models.IgnoredItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i, exists := s.ignored[itemID]; exists {
		return &i, nil
	}
	return nil, nil
}

func (s *MemoryStorage) DeleteIgnored(ctx context.Context, itemID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.ignored[itemID]
	delete(s.ignored, itemID)
	return exists, nil
}

func (s *MemoryStorage) AdoptRemote(ctx context.Context, r models.RemoteRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categorizations[r.ItemID]; exists {
		return false, nil
	}
	if _, exists := s.ignored[r.ItemID]; exists {
		return false, nil
	}
	if r.IsIgnored {
		s.ignored[r.ItemID] = models.IgnoredItem{ItemID: r.ItemID, ItemText: r.ItemText, IgnoredAt: r.CategorizedAt}
		return true, nil
	}
	s.categorizations[r.ItemID] = models.Categorization{
		ItemID:        r.ItemID,
		ItemText:      r.ItemText,
		Labels:        models.LabelSet(r.Labels),
		CategorizedAt: r.CategorizedAt,
	}
	return true, nil
}

// Edit log methods
func (s *MemoryStorage) AppendEdit(ctx context.Context, e models.EditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.OldLabels = append([]string(nil), e.OldLabels...)
	e.NewLabels = append([]string(nil), e.NewLabels...)
	s.edits = append(s.edits, e)
	return nil
}

func (s *MemoryStorage) ListEdits(ctx context.Context, since time.Time) ([]models.EditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.EditRecord
	for _, e := range s.edits {
		if e.Timestamp.After(since) {
			e.OldLabels = append([]string(nil), e.OldLabels...)
			e.NewLabels = append([]string(nil), e.NewLabels...)
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStorage) PruneEdits(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.edits[:0]
	for _, e := range s.edits {
		if e.Timestamp.After(before) {
			kept = append(kept, e)
		}
	}
	pruned := len(s.edits) - len(kept)
	s.edits = kept
	return pruned, nil
}

func (s *MemoryStorage) DismissDriftKey(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dismissed[key] = struct{}{}
	return nil
}

func (s *MemoryStorage) DismissedDriftKeys(ctx context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]struct{}, len(s.dismissed))
	for k := range s.dismissed {
		out[k] = struct{}{}
	}
	return out, nil
}

func (s *MemoryStorage) ResetDismissedDriftKeys(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dismissed = make(map[string]struct{})
	return nil
}
