package storage

import (
	"context"
	"time"

	"github.com/xaenox/labelbot/internal/models"
)

// Storage is the authoritative local state of one engine instance.
type Storage interface {
	PatternStore
	CategorizationStore
	EditLog
}

// PatternStore holds one Pattern per normalized key.
type PatternStore interface {
	// GetPattern returns nil when the key is unknown.
	GetPattern(ctx context.Context, key string) (*models.Pattern, error)
	ListPatterns(ctx context.Context) ([]models.Pattern, error)
	// UpdatePattern runs fn atomically against the stored pattern (nil when
	// absent). A nil result leaves the store untouched; a result with no
	// labels deletes the key.
	UpdatePattern(ctx context.Context, key string, fn func(existing *models.Pattern) *models.Pattern) error
}

// CategorizationStore keeps per-item decisions. An item is either categorized
// or ignored, never both.
type CategorizationStore interface {
	SaveCategorization(ctx context.Context, c models.Categorization) error
	GetCategorization(ctx context.Context, itemID string) (*models.Categorization, error)
	ListCategorizations(ctx context.Context) ([]models.Categorization, error)
	DeleteCategorization(ctx context.Context, itemID string) (bool, error)

	SaveIgnored(ctx context.Context, item models.IgnoredItem) error
	GetIgnored(ctx context.Context, itemID string) (*models.IgnoredItem, error)
	DeleteIgnored(ctx context.Context, itemID string) (bool, error)

	// AdoptRemote stores r only when no local record of either kind exists
	// for its item id, and reports whether it did.
	AdoptRemote(ctx context.Context, r models.RemoteRecord) (bool, error)
}

// EditLog is the correction history read by drift detection.
type EditLog interface {
	AppendEdit(ctx context.Context, e models.EditRecord) error
	// ListEdits returns records with Timestamp strictly after since, oldest first.
	ListEdits(ctx context.Context, since time.Time) ([]models.EditRecord, error)
	PruneEdits(ctx context.Context, before time.Time) (int, error)

	DismissDriftKey(ctx context.Context, key string) error
	DismissedDriftKeys(ctx context.Context) (map[string]struct{}, error)
	ResetDismissedDriftKeys(ctx context.Context) error
}
