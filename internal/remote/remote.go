// Package remote talks to the advisory, best-effort categorization store
// shared across devices.
package remote

import (
	"context"
	"errors"

	"github.com/xaenox/labelbot/internal/models"
)

// ErrDisabled is returned by Nop for every call.
var ErrDisabled = errors.New("remote store disabled")

// Store is the remote collaborator. Implementations are scoped to one user
// and one engine instance.
type Store interface {
	// PutCategorization upserts a categorized or ignored record.
	PutCategorization(ctx context.Context, r models.RemoteRecord) error
	// ListCategorizations returns every record of the current user.
	ListCategorizations(ctx context.Context) ([]models.RemoteRecord, error)
	DeleteCategorization(ctx context.Context, itemID string) error
}

// Nop is used when no remote store is configured.
type Nop struct{}

func (Nop) PutCategorization(context.Context, models.RemoteRecord) error { return ErrDisabled }

func (Nop) ListCategorizations(context.Context) ([]models.RemoteRecord, error) {
	return nil, ErrDisabled
}

func (Nop) DeleteCategorization(context.Context, string) error { return ErrDisabled }
