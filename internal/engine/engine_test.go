package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/labelbot/internal/models"
	"github.com/xaenox/labelbot/internal/pattern"
	"github.com/xaenox/labelbot/internal/reconcile"
	"github.com/xaenox/labelbot/internal/storage"
)

type recordingPush struct {
	mu    sync.Mutex
	tasks []reconcile.Task
}

func (r *recordingPush) Enqueue(t reconcile.Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, t)
	return true
}

func (r *recordingPush) kinds() []reconcile.TaskKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]reconcile.TaskKind, len(r.tasks))
	for i, t := range r.tasks {
		out[i] = t.Kind
	}
	return out
}

// tickingClock advances one minute per reading so recency tie-breaks are stable.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Minute)
		return t
	}
}

type fixture[L ~string] struct {
	engine *Engine[L]
	store  *storage.MemoryStorage
	push   *recordingPush
}

func newFixture[L ~string](t *testing.T, opts Options) fixture[L] {
	t.Helper()
	store := storage.NewMemoryStorage()
	push := &recordingPush{}
	e, err := New[L](opts, Deps{Store: store, Push: push, Logger: zap.NewNop(), Now: tickingClock()})
	require.NoError(t, err)
	return fixture[L]{engine: e, store: store, push: push}
}

func patternFor(t *testing.T, s *storage.MemoryStorage, key string) *models.Pattern {
	t.Helper()
	p, err := s.GetPattern(context.Background(), key)
	require.NoError(t, err)
	return p
}

func TestClientSyncLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture[TagID](t, DefaultOptions(ScopeActivity))
	e := f.engine

	require.NoError(t, e.Label(ctx, "i1", "Client Sync - Acme", []TagID{"Sales", "Priority"}))
	p := patternFor(t, f.store, "client sync - acme")
	require.NotNil(t, p)
	assert.Equal(t, 0.5, p.Confidence)

	auto, err := e.ShouldAutoApply(ctx, "Client Sync - Acme Renewal")
	require.NoError(t, err)
	assert.Nil(t, auto)

	state, sug, err := e.Evaluate(ctx, "i2", "Client Sync - Acme Renewal")
	require.NoError(t, err)
	assert.Equal(t, models.StateSuggested, state)
	require.NotNil(t, sug)
	assert.Equal(t, []TagID{"Priority", "Sales"}, sug.Labels)
	assert.Equal(t, 0.5, sug.Confidence)

	require.NoError(t, e.Accept(ctx, "i2"))
	state, err = e.State(ctx, "i2")
	require.NoError(t, err)
	assert.Equal(t, models.StateCategorized, state)
	assert.Equal(t, 0.65, patternFor(t, f.store, "client sync - acme").Confidence)

	require.NoError(t, e.Label(ctx, "i3", "Client Sync - Acme", []TagID{"Sales", "Priority"}))
	require.NoError(t, e.Label(ctx, "i4", "client sync - acme", []TagID{"Priority", "Sales"}))
	p = patternFor(t, f.store, "client sync - acme")
	assert.Equal(t, 0.95, p.Confidence)
	assert.Equal(t, 4, p.UsageCount)

	state, sug, err = e.Evaluate(ctx, "i5", "Client Sync - ACME")
	require.NoError(t, err)
	assert.Equal(t, models.StateCategorized, state)
	require.NotNil(t, sug)

	labels, err := e.Categorization(ctx, "i5")
	require.NoError(t, err)
	assert.Equal(t, []TagID{"Priority", "Sales"}, labels)

	for _, k := range f.push.kinds() {
		assert.Equal(t, reconcile.TaskPut, k)
	}
	assert.Len(t, f.push.kinds(), 5)
}

func TestThresholdsAreInclusive(t *testing.T) {
	ctx := context.Background()

	opts := DefaultOptions(ScopeValue)
	opts.Thresholds.Initial = 0.3
	f := newFixture[ValueClass](t, opts)
	require.NoError(t, f.engine.Learn(ctx, "Quarterly planning", []ValueClass{ValueHigh}))

	sug, err := f.engine.GetSuggestion(ctx, "quarterly planning")
	require.NoError(t, err)
	require.NotNil(t, sug)
	assert.Equal(t, 0.3, sug.Confidence)
	auto, err := f.engine.ShouldAutoApply(ctx, "quarterly planning")
	require.NoError(t, err)
	assert.Nil(t, auto)

	opts.Thresholds.Initial = 0.8
	f = newFixture[ValueClass](t, opts)
	require.NoError(t, f.engine.Learn(ctx, "Quarterly planning", []ValueClass{ValueHigh}))
	auto, err = f.engine.ShouldAutoApply(ctx, "quarterly planning")
	require.NoError(t, err)
	require.NotNil(t, auto)
	assert.Equal(t, []ValueClass{ValueHigh}, auto.Labels)

	opts.Thresholds.Initial = 0.25
	f = newFixture[ValueClass](t, opts)
	require.NoError(t, f.engine.Learn(ctx, "Quarterly planning", []ValueClass{ValueHigh}))
	sug, err = f.engine.GetSuggestion(ctx, "quarterly planning")
	require.NoError(t, err)
	assert.Nil(t, sug)
}

func TestNewRejectsBadThresholds(t *testing.T) {
	opts := DefaultOptions(ScopeEnergy)
	opts.Thresholds.Suggest = 0.9
	_, err := New[EnergyLevel](opts, Deps{Store: storage.NewMemoryStorage()})
	assert.Error(t, err)

	_, err = New[EnergyLevel](DefaultOptions(ScopeEnergy), Deps{})
	assert.Error(t, err)
}

func TestLearnRejectsShortKeysSilently(t *testing.T) {
	ctx := context.Background()
	f := newFixture[TagID](t, DefaultOptions(ScopeActivity))

	require.NoError(t, f.engine.Learn(ctx, "a", []TagID{"x"}))
	require.NoError(t, f.engine.Learn(ctx, "Gym", nil))
	patterns, err := f.engine.Patterns(ctx)
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

func TestCalendarNormalization(t *testing.T) {
	ctx := context.Background()
	f := newFixture[EnergyLevel](t, DefaultOptions(ScopeEnergy))

	require.NoError(t, f.engine.Label(ctx, "e1", "Meeting: Budget Review 3/4/25", []EnergyLevel{EnergyDraining}))
	assert.NotNil(t, patternFor(t, f.store, "budget review"))

	sug, err := f.engine.GetSuggestion(ctx, "Sync - budget review 10:30")
	require.NoError(t, err)
	require.NotNil(t, sug)
	assert.Equal(t, "budget review", sug.Key)
}

func TestDismissSuppressesOnlyThatPattern(t *testing.T) {
	ctx := context.Background()
	f := newFixture[TagID](t, DefaultOptions(ScopeActivity))
	e := f.engine

	require.NoError(t, e.Learn(ctx, "evening workout", []TagID{"fitness"}))
	require.NoError(t, e.Learn(ctx, "gym session", []TagID{"health"}))

	state, sug, err := e.Evaluate(ctx, "i1", "gym session evening workout")
	require.NoError(t, err)
	assert.Equal(t, models.StateSuggested, state)
	require.NotNil(t, sug)
	assert.Equal(t, "gym session", sug.Key)

	require.NoError(t, e.Dismiss(ctx, "i1"))
	state, err = e.State(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, models.StateUncategorized, state)

	state, sug, err = e.Evaluate(ctx, "i1", "gym session evening workout")
	require.NoError(t, err)
	assert.Equal(t, models.StateSuggested, state)
	require.NotNil(t, sug)
	assert.Equal(t, "evening workout", sug.Key)

	// Another item still sees the dismissed pattern.
	_, sug, err = e.Evaluate(ctx, "i2", "gym session")
	require.NoError(t, err)
	require.NotNil(t, sug)
	assert.Equal(t, "gym session", sug.Key)

	assert.ErrorIs(t, e.Dismiss(ctx, "unknown"), ErrNoSuggestion)
	assert.ErrorIs(t, e.Accept(ctx, "unknown"), ErrNoSuggestion)
}

func TestSuggestionNeverOverridesSelection(t *testing.T) {
	ctx := context.Background()
	f := newFixture[TagID](t, DefaultOptions(ScopeActivity))
	e := f.engine

	require.NoError(t, e.Learn(ctx, "gym session", []TagID{"health"}))
	e.Select("i1", []TagID{"social"})

	state, sug, err := e.Evaluate(ctx, "i1", "gym session")
	require.NoError(t, err)
	assert.Equal(t, models.StateUncategorized, state)
	assert.Nil(t, sug)
	assert.Equal(t, []TagID{"social"}, e.Selection("i1"))

	require.NoError(t, e.Label(ctx, "i1", "gym session", nil))
	labels, err := e.Categorization(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, []TagID{"social"}, labels)
	assert.Empty(t, e.Selection("i1"))

	p := patternFor(t, f.store, "gym session")
	assert.Equal(t, []string{"social"}, p.Labels, "latest correction replaces labels")
	assert.Equal(t, 2, p.UsageCount)
}

func TestIgnoreToggle(t *testing.T) {
	ctx := context.Background()
	f := newFixture[TagID](t, DefaultOptions(ScopeActivity))
	e := f.engine

	require.NoError(t, e.SaveCategorization(ctx, "i1", "Gym", []TagID{"health"}))
	require.NoError(t, e.Ignore(ctx, "i1", "Gym"))

	ignored, err := e.IsIgnored(ctx, "i1")
	require.NoError(t, err)
	assert.True(t, ignored)
	labels, err := e.Categorization(ctx, "i1")
	require.NoError(t, err)
	assert.Nil(t, labels)

	state, sug, err := e.Evaluate(ctx, "i1", "Gym")
	require.NoError(t, err)
	assert.Equal(t, models.StateIgnored, state)
	assert.Nil(t, sug)

	require.NoError(t, e.Unignore(ctx, "i1"))
	state, err = e.State(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, models.StateUncategorized, state)

	require.NoError(t, e.Unignore(ctx, "i1"))
	assert.Equal(t, []reconcile.TaskKind{reconcile.TaskPut, reconcile.TaskPut, reconcile.TaskDelete}, f.push.kinds())
	assert.True(t, f.push.tasks[1].Record.IsIgnored)
}

func TestRemoveCategorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture[TagID](t, DefaultOptions(ScopeActivity))
	e := f.engine

	require.NoError(t, e.SaveCategorization(ctx, "i1", "Gym", []TagID{"health"}))
	require.NoError(t, e.RemoveCategorization(ctx, "i1"))
	require.NoError(t, e.RemoveCategorization(ctx, "missing"))

	assert.Equal(t, []reconcile.TaskKind{reconcile.TaskPut, reconcile.TaskDelete}, f.push.kinds())
	assert.Equal(t, "i1", f.push.tasks[1].Record.ItemID)
}

func TestForgetLabel(t *testing.T) {
	ctx := context.Background()
	f := newFixture[TagID](t, DefaultOptions(ScopeActivity))
	e := f.engine

	require.NoError(t, e.Learn(ctx, "gym session", []TagID{"health", "sport"}))
	require.NoError(t, e.Learn(ctx, "morning run", []TagID{"sport"}))
	require.NoError(t, e.Learn(ctx, "reading", []TagID{"learning"}))

	n, err := e.ForgetLabel(ctx, "sport")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, []string{"health"}, patternFor(t, f.store, "gym session").Labels)
	assert.Nil(t, patternFor(t, f.store, "morning run"))
	assert.NotNil(t, patternFor(t, f.store, "reading"))
}

func TestDriftDisabledOnCalendarInstances(t *testing.T) {
	ctx := context.Background()
	f := newFixture[ValueClass](t, DefaultOptions(ScopeValue))

	assert.False(t, f.engine.DriftEnabled())
	assert.ErrorIs(t, f.engine.RecordEdit(ctx, "e1", "Budget", nil, []ValueClass{ValueLow}), ErrDriftDisabled)
	_, err := f.engine.GetPatternSuggestion(ctx, nil)
	assert.ErrorIs(t, err, ErrDriftDisabled)
	assert.ErrorIs(t, f.engine.DismissPattern(ctx, "budget"), ErrDriftDisabled)

	// Relabeling never touches the edit log without drift.
	require.NoError(t, f.engine.SaveCategorization(ctx, "e1", "Budget", []ValueClass{ValueLow}))
	require.NoError(t, f.engine.SaveCategorization(ctx, "e1", "Budget", []ValueClass{ValueHigh}))
	edits, err := f.store.ListEdits(ctx, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, edits)
}

func TestDriftDetectionAndResolution(t *testing.T) {
	ctx := context.Background()
	f := newFixture[TagID](t, DefaultOptions(ScopeActivity))
	e := f.engine
	require.True(t, e.DriftEnabled())

	for _, id := range []string{"a1", "a2", "a3"} {
		require.NoError(t, e.SaveCategorization(ctx, id, "Gym", []TagID{"misc"}))
	}
	require.NoError(t, e.SaveCategorization(ctx, "a1", "Gym", []TagID{"health"}))

	live := func() []models.LiveItem {
		var out []models.LiveItem
		for _, id := range []string{"a1", "a2", "a3"} {
			labels, err := e.Categorization(ctx, id)
			require.NoError(t, err)
			out = append(out, models.LiveItem{ID: id, Text: "Gym", Labels: toStrings(labels)})
		}
		return out
	}

	g, err := e.GetPatternSuggestion(ctx, live())
	require.NoError(t, err)
	assert.Nil(t, g, "a single edit is not a pattern")

	require.NoError(t, e.RecordEdit(ctx, "a2", "gym", []TagID{"misc"}, []TagID{"health"}))
	g, err = e.GetPatternSuggestion(ctx, live())
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "gym", g.Key)
	assert.Equal(t, []string{"health"}, g.Labels)
	assert.Equal(t, []string{"a2", "a3"}, g.MismatchedIDs)
	assert.Equal(t, 2*2+2, g.Score)

	require.NoError(t, e.DismissPattern(ctx, "Gym"))
	dismissed, err := e.GetPatternSuggestion(ctx, live())
	require.NoError(t, err)
	assert.Nil(t, dismissed)
	require.NoError(t, e.ResetDismissed(ctx))

	n, err := e.ApplyDriftGroup(ctx, g, live())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, item := range live() {
		assert.Equal(t, []string{"health"}, item.Labels)
	}
	assert.Equal(t, []string{"health"}, patternFor(t, f.store, "gym").Labels)

	edits, err := f.store.ListEdits(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, edits, 2, "applying a group records no new edits")

	g, err = e.GetPatternSuggestion(ctx, live())
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestNewSet(t *testing.T) {
	opts := map[string]Options{}
	deps := map[string]Deps{}
	for _, scope := range []string{ScopeActivity, ScopeValue, ScopeEnergy} {
		opts[scope] = DefaultOptions(scope)
		deps[scope] = Deps{Store: storage.NewMemoryStorage()}
	}
	set, err := NewSet(opts, deps)
	require.NoError(t, err)
	assert.Equal(t, ScopeActivity, set.Activity.Scope())
	assert.True(t, set.Activity.DriftEnabled())
	assert.False(t, set.Energy.DriftEnabled())
	assert.Equal(t, pattern.DefaultStoplist, DefaultOptions(ScopeValue).Stoplist)
}

func TestLabelValidity(t *testing.T) {
	assert.True(t, ValueHigh.Valid())
	assert.False(t, ValueClass("urgent").Valid())
	assert.True(t, EnergyDraining.Valid())
	assert.False(t, EnergyLevel("tired").Valid())
}
