package pattern

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/labelbot/internal/models"
)

type mapUpdater map[string]models.Pattern

func (m mapUpdater) UpdatePattern(_ context.Context, key string, fn func(*models.Pattern) *models.Pattern) error {
	var existing *models.Pattern
	if p, ok := m[key]; ok {
		existing = &p
	}
	if next := fn(existing); next != nil {
		m[key] = *next
	}
	return nil
}

func newTestLearner(store mapUpdater, now time.Time) *Learner {
	return NewLearner(store, NewNormalizer(DefaultStoplist), DefaultThresholds(), func() time.Time { return now })
}

func TestLearnNewAndExisting(t *testing.T) {
	ctx := context.Background()
	store := mapUpdater{}
	t0 := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
	l := newTestLearner(store, t0)

	p, ok, err := l.Learn(ctx, "Meeting: Budget Review 3/4/25", []string{"Finance", "Work"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "budget review", p.Key)
	assert.Equal(t, 0.5, p.Confidence)
	assert.Equal(t, 1, p.UsageCount)
	assert.Equal(t, t0, p.LastUsedAt)

	t1 := t0.Add(time.Hour)
	l.now = func() time.Time { return t1 }
	p, ok, err = l.Learn(ctx, "budget review", []string{"Planning"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.65, p.Confidence)
	assert.Equal(t, 2, p.UsageCount)
	assert.Equal(t, []string{"Planning"}, p.Labels, "labels are replaced, not merged")
	assert.Equal(t, t1, p.LastUsedAt)
	assert.Equal(t, p, store["budget review"])
}

func TestLearnConfidenceSequenceCapsAtOne(t *testing.T) {
	ctx := context.Background()
	store := mapUpdater{}
	l := newTestLearner(store, time.Now())

	want := []float64{0.5, 0.65, 0.8, 0.95, 1.0, 1.0, 1.0}
	for i, w := range want {
		p, ok, err := l.Learn(ctx, "deep work", []string{"Focus"})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, w, p.Confidence, "step %d", i)
		assert.Equal(t, i+1, p.UsageCount)
	}
}

func TestLearnRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	store := mapUpdater{}
	l := newTestLearner(store, time.Now())

	for _, tc := range []struct {
		text   string
		labels []string
	}{
		{"x", []string{"A"}},
		{"Meeting: 3/4", []string{"A"}},
		{"valid text", nil},
		{"valid text", []string{"  ", ""}},
	} {
		_, ok, err := l.Learn(ctx, tc.text, tc.labels)
		require.NoError(t, err)
		assert.False(t, ok, "text=%q labels=%v", tc.text, tc.labels)
	}
	assert.Empty(t, store)
}

func TestThresholdsInclusive(t *testing.T) {
	th := DefaultThresholds()
	assert.True(t, th.Suggests(0.3))
	assert.False(t, th.Suggests(0.29))
	assert.True(t, th.AutoApplies(0.8))
	assert.True(t, th.AutoApplies(0.5+0.15+0.15))
	assert.False(t, th.AutoApplies(0.79))
}

func TestThresholdsValidate(t *testing.T) {
	require.NoError(t, DefaultThresholds().Validate())

	bad := DefaultThresholds()
	bad.Suggest = 0.9
	assert.Error(t, bad.Validate())

	bad = DefaultThresholds()
	bad.Step = 1.5
	assert.Error(t, bad.Validate())
}
