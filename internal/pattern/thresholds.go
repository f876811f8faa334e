package pattern

import (
	"fmt"
	"math"
)

// Thresholds configures confidence scoring and gating for one engine instance.
type Thresholds struct {
	Suggest   float64
	AutoApply float64
	Initial   float64
	Step      float64
}

// DefaultThresholds returns the standard gating: suggest at 0.3, auto-apply at 0.8,
// start new patterns at 0.5 and add 0.15 per confirming use.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Suggest:   0.3,
		AutoApply: 0.8,
		Initial:   0.5,
		Step:      0.15,
	}
}

// Validate checks that every value is a probability and the gates are ordered.
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{
		"suggest_threshold":    t.Suggest,
		"auto_apply_threshold": t.AutoApply,
		"initial_confidence":   t.Initial,
		"confidence_step":      t.Step,
	} {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("%s must be between 0 and 1, got %v", name, v)
		}
	}
	if t.Suggest > t.AutoApply {
		return fmt.Errorf("suggest_threshold %.2f exceeds auto_apply_threshold %.2f", t.Suggest, t.AutoApply)
	}
	return nil
}

// Suggests reports whether confidence clears the suggestion gate (inclusive).
func (t Thresholds) Suggests(confidence float64) bool {
	return roundConfidence(confidence) >= roundConfidence(t.Suggest)
}

// AutoApplies reports whether confidence clears the auto-apply gate (inclusive).
func (t Thresholds) AutoApplies(confidence float64) bool {
	return roundConfidence(confidence) >= roundConfidence(t.AutoApply)
}

// next returns the confidence after one more confirming use.
func (t Thresholds) next(confidence float64) float64 {
	return roundConfidence(math.Min(1.0, confidence+t.Step))
}

// roundConfidence keeps repeated increments on exact decimal values,
// so 0.5 + 3*0.15 compares equal to 0.95.
func roundConfidence(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
