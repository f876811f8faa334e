package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/xaenox/labelbot/internal/engine"
	"github.com/xaenox/labelbot/internal/models"
)

var errInvalidLabel = errors.New("invalid label")

// outcome is an engine evaluation with labels flattened to strings.
type outcome struct {
	State      models.ItemState
	Labels     []string
	Confidence float64
}

// labeler is the string-typed view of one engine instance the chat commands use.
type labeler interface {
	Evaluate(ctx context.Context, itemID, text string) (outcome, error)
	Label(ctx context.Context, itemID, text string, labels []string) error
	Accept(ctx context.Context, itemID string) error
	Dismiss(ctx context.Context, itemID string) error
	Ignore(ctx context.Context, itemID, text string) error
	Unignore(ctx context.Context, itemID string) error
	Categorization(ctx context.Context, itemID string) ([]string, error)
	Patterns(ctx context.Context) ([]models.Pattern, error)
}

type adapter[L ~string] struct {
	e     *engine.Engine[L]
	valid func(L) bool
}

func newAdapter[L ~string](e *engine.Engine[L], valid func(L) bool) *adapter[L] {
	return &adapter[L]{e: e, valid: valid}
}

func (a *adapter[L]) Evaluate(ctx context.Context, itemID, text string) (outcome, error) {
	state, sug, err := a.e.Evaluate(ctx, itemID, text)
	if err != nil {
		return outcome{}, err
	}
	out := outcome{State: state}
	if sug != nil {
		out.Labels = labelStrings(sug.Labels)
		out.Confidence = sug.Confidence
	}
	return out, nil
}

func (a *adapter[L]) Label(ctx context.Context, itemID, text string, labels []string) error {
	typed := make([]L, 0, len(labels))
	for _, l := range labels {
		if a.valid != nil && !a.valid(L(l)) {
			return fmt.Errorf("%w %q", errInvalidLabel, l)
		}
		typed = append(typed, L(l))
	}
	return a.e.Label(ctx, itemID, text, typed)
}

func (a *adapter[L]) Accept(ctx context.Context, itemID string) error {
	return a.e.Accept(ctx, itemID)
}

func (a *adapter[L]) Dismiss(ctx context.Context, itemID string) error {
	return a.e.Dismiss(ctx, itemID)
}

func (a *adapter[L]) Ignore(ctx context.Context, itemID, text string) error {
	return a.e.Ignore(ctx, itemID, text)
}

func (a *adapter[L]) Unignore(ctx context.Context, itemID string) error {
	return a.e.Unignore(ctx, itemID)
}

func (a *adapter[L]) Categorization(ctx context.Context, itemID string) ([]string, error) {
	labels, err := a.e.Categorization(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return labelStrings(labels), nil
}

func (a *adapter[L]) Patterns(ctx context.Context) ([]models.Pattern, error) {
	return a.e.Patterns(ctx)
}

func labelStrings[L ~string](labels []L) []string {
	if labels == nil {
		return nil
	}
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = string(l)
	}
	return out
}
