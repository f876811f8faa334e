package drift

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xaenox/labelbot/internal/models"
	"github.com/xaenox/labelbot/internal/pattern"
	"github.com/xaenox/labelbot/internal/storage"
)

var base = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func edit(text string, labels []string, at time.Time) models.EditRecord {
	return models.EditRecord{
		ItemID:    text + at.String(),
		ItemText:  text,
		NewLabels: labels,
		Timestamp: at,
	}
}

func newDetector(t *testing.T, edits ...models.EditRecord) (*Detector, *storage.MemoryStorage) {
	t.Helper()
	s := storage.NewMemoryStorage()
	for _, e := range edits {
		require.NoError(t, s.AppendEdit(context.Background(), e))
	}
	d := NewDetector(s, pattern.NewNormalizer(nil), DefaultTTL, func() time.Time { return base })
	return d, s
}

func TestDetectRequiresTwoCorroboratingEdits(t *testing.T) {
	ctx := context.Background()
	live := []models.LiveItem{
		{ID: "1", Text: "Deep work block", Labels: []string{"admin"}},
		{ID: "2", Text: "deep work block", Labels: []string{"admin"}},
		{ID: "3", Text: "Deep Work Block", Labels: nil},
	}

	d, _ := newDetector(t,
		edit("Deep work block", []string{"focus"}, base.Add(-time.Hour)),
		edit("Deep work block", []string{"planning"}, base.Add(-30*time.Minute)),
	)
	g, err := d.Detect(ctx, live)
	require.NoError(t, err)
	assert.Nil(t, g, "no label set reached two edits")

	d, _ = newDetector(t,
		edit("Deep work block", []string{"focus"}, base.Add(-time.Hour)),
		edit("deep work block", []string{"focus"}, base.Add(-30*time.Minute)),
	)
	g, err = d.Detect(ctx, live)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "deep work block", g.Key)
	assert.Equal(t, []string{"focus"}, g.Labels)
	assert.Equal(t, 2, g.EditCount)
	assert.Equal(t, 2, g.Frequency)
	assert.Equal(t, []string{"1", "2", "3"}, g.MismatchedIDs)
	assert.Equal(t, 2*2+3, g.Score)
}

func TestDetectIgnoresExpiredEdits(t *testing.T) {
	d, _ := newDetector(t,
		edit("Gym", []string{"health"}, base.Add(-8*24*time.Hour)),
		edit("Gym", []string{"health"}, base.Add(-time.Hour)),
	)
	g, err := d.Detect(context.Background(), []models.LiveItem{{ID: "1", Text: "gym"}})
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestDetectPicksHighestScore(t *testing.T) {
	d, _ := newDetector(t,
		edit("Gym", []string{"health"}, base.Add(-3*time.Hour)),
		edit("Gym", []string{"health"}, base.Add(-2*time.Hour)),
		edit("Weekly planning", []string{"planning"}, base.Add(-3*time.Hour)),
		edit("Weekly planning", []string{"planning"}, base.Add(-2*time.Hour)),
		edit("Weekly planning", []string{"planning"}, base.Add(-time.Hour)),
	)
	live := []models.LiveItem{
		{ID: "g1", Text: "gym", Labels: []string{"misc"}},
		{ID: "g2", Text: "gym", Labels: []string{"misc"}},
		{ID: "p1", Text: "weekly planning session", Labels: []string{"misc"}},
		{ID: "p2", Text: "Weekly planning", Labels: []string{"planning"}},
	}

	g, err := d.Detect(context.Background(), live)
	require.NoError(t, err)
	require.NotNil(t, g)
	// planning: 2*3+1 = 7; gym: 2*2+2 = 6
	assert.Equal(t, "weekly planning", g.Key)
	assert.Equal(t, []string{"p1"}, g.MismatchedIDs)
	assert.Equal(t, 7, g.Score)
}

func TestDetectSkipsDismissedAndResolvedGroups(t *testing.T) {
	ctx := context.Background()
	d, s := newDetector(t,
		edit("Gym", []string{"health"}, base.Add(-2*time.Hour)),
		edit("Gym", []string{"health"}, base.Add(-time.Hour)),
	)

	g, err := d.Detect(ctx, []models.LiveItem{{ID: "1", Text: "gym", Labels: []string{"health"}}})
	require.NoError(t, err)
	assert.Nil(t, g, "nothing left to correct")

	live := []models.LiveItem{{ID: "1", Text: "gym"}}
	require.NoError(t, s.DismissDriftKey(ctx, "gym"))
	g, err = d.Detect(ctx, live)
	require.NoError(t, err)
	assert.Nil(t, g)

	require.NoError(t, s.ResetDismissedDriftKeys(ctx))
	g, err = d.Detect(ctx, live)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "gym", g.Key)
}

func TestDominantPrefersFrequencyThenRecency(t *testing.T) {
	d, _ := newDetector(t,
		edit("Standup", []string{"team"}, base.Add(-5*time.Hour)),
		edit("Standup", []string{"team"}, base.Add(-4*time.Hour)),
		edit("Standup", []string{"admin"}, base.Add(-3*time.Hour)),
		edit("Standup", []string{"admin"}, base.Add(-2*time.Hour)),
		edit("Standup", []string{"ops"}, base.Add(-time.Hour)),
	)
	g, err := d.Detect(context.Background(), []models.LiveItem{{ID: "1", Text: "standup"}})
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, []string{"admin"}, g.Labels)
	assert.Equal(t, 5, g.EditCount)
	assert.Equal(t, "Standup", g.Text)
}

func TestParseSchedule(t *testing.T) {
	_, err := ParseSchedule(DefaultPruneSchedule)
	assert.NoError(t, err)
	_, err = ParseSchedule("every hour")
	assert.Error(t, err)
}

func TestPruneOnce(t *testing.T) {
	ctx := context.Background()
	a := storage.NewMemoryStorage()
	b := storage.NewMemoryStorage()
	require.NoError(t, a.AppendEdit(ctx, edit("Gym", []string{"health"}, base.Add(-8*24*time.Hour))))
	require.NoError(t, a.AppendEdit(ctx, edit("Gym", []string{"health"}, base.Add(-time.Hour))))
	require.NoError(t, b.AppendEdit(ctx, edit("Run", []string{"health"}, base.Add(-10*24*time.Hour))))

	core, logs := observer.New(zapcore.InfoLevel)
	p, err := NewPruner(DefaultPruneSchedule, DefaultTTL,
		map[string]storage.EditLog{"a": a, "b": b}, zap.New(core))
	require.NoError(t, err)
	p.now = func() time.Time { return base }

	assert.Equal(t, 2, p.PruneOnce(ctx))
	assert.Equal(t, 1, logs.FilterMessage("Pruned expired edit records").Len())

	left, err := a.ListEdits(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	p, err := NewPruner(DefaultPruneSchedule, DefaultTTL, nil, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
