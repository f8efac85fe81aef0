package routing

import "SecAssist/internal/modules/ai/domain/intent"

const (
	DefaultHighThreshold   = 0.85
	DefaultMediumThreshold = 0.70
)

// Thresholds confidence gate. ClarifyMediumBand turns the medium band into
// a clarification instead of a flagged execution.
type Thresholds struct {
	High              float64
	Medium            float64
	ClarifyMediumBand bool
}

func DefaultThresholds() Thresholds {
	return Thresholds{High: DefaultHighThreshold, Medium: DefaultMediumThreshold}
}

// Route maps a confidence to the gate outcome. Bounds are inclusive:
// exactly High is direct, exactly Medium is the medium band.
func (t Thresholds) Route(confidence float64) intent.Route {
	switch {
	case confidence >= t.High:
		return intent.RouteDirect
	case confidence >= t.Medium:
		if t.ClarifyMediumBand {
			return intent.RouteClarify
		}
		return intent.RouteFlagged
	default:
		return intent.RouteClarify
	}
}
