package engine

import "github.com/xaenox/labelbot/internal/pattern"

// TagID identifies a user-defined activity tag.
type TagID string

// ValueClass grades how worthwhile a calendar event is.
type ValueClass string

const (
	ValueHigh    ValueClass = "high"
	ValueMedium  ValueClass = "medium"
	ValueLow     ValueClass = "low"
	ValueNoValue ValueClass = "none"
)

// EnergyLevel grades how an event affects the user's energy.
type EnergyLevel string

const (
	EnergyEnergizing EnergyLevel = "energizing"
	EnergyNeutral    EnergyLevel = "neutral"
	EnergyDraining   EnergyLevel = "draining"
)

// Scopes of the three built-in instances.
const (
	ScopeActivity = "activity"
	ScopeValue    = "value"
	ScopeEnergy   = "energy"
)

var valueClasses = map[ValueClass]struct{}{ValueHigh: {}, ValueMedium: {}, ValueLow: {}, ValueNoValue: {}}

var energyLevels = map[EnergyLevel]struct{}{EnergyEnergizing: {}, EnergyNeutral: {}, EnergyDraining: {}}

func (v ValueClass) Valid() bool {
	_, ok := valueClasses[v]
	return ok
}

func (l EnergyLevel) Valid() bool {
	_, ok := energyLevels[l]
	return ok
}

// ActivityStoplist holds the prefixes stripped from free-form activity names.
// Calendar words such as "call" are meaningful here and stay in the key.
var ActivityStoplist = []string{"todo", "task"}

// DefaultOptions returns the built-in configuration for scope. Only the
// activity instance tracks drift.
func DefaultOptions(scope string) Options {
	opts := Options{
		Scope:      scope,
		Thresholds: pattern.DefaultThresholds(),
		Stoplist:   pattern.DefaultStoplist,
	}
	if scope == ScopeActivity {
		opts.Stoplist = ActivityStoplist
		opts.Drift = true
	}
	return opts
}

// Set bundles the three engine instances used by the application.
type Set struct {
	Activity *Engine[TagID]
	Value    *Engine[ValueClass]
	Energy   *Engine[EnergyLevel]
}

// NewSet builds the three instances. deps maps a scope to its collaborators.
func NewSet(opts map[string]Options, deps map[string]Deps) (*Set, error) {
	activity, err := New[TagID](opts[ScopeActivity], deps[ScopeActivity])
	if err != nil {
		return nil, err
	}
	value, err := New[ValueClass](opts[ScopeValue], deps[ScopeValue])
	if err != nil {
		return nil, err
	}
	energy, err := New[EnergyLevel](opts[ScopeEnergy], deps[ScopeEnergy])
	if err != nil {
		return nil, err
	}
	return &Set{Activity: activity, Value: value, Energy: energy}, nil
}
