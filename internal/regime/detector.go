package regime

import (
	"github.com/wonny/scout/backend/internal/contracts"
)

// Detection defaults
const (
	DefaultLookbackBars = 120 // 약 6개월
	DefaultMinBars      = 30
	DefaultBullLine     = 0.10
	DefaultBearLine     = -0.10

	// boundaryEpsilon absorbs float error so that exactly ±10% lands on the inclusive side
	boundaryEpsilon = 1e-9
)

// Detector classifies the market regime from an index series. It holds no state.
// ⭐ SSOT: 시장 국면 판단은 여기서만
type Detector struct {
	LookbackBars int
	MinBars      int
	BullLine     float64
	BearLine     float64
}

// NewDetector returns a detector with the default thresholds
func NewDetector() Detector {
	return Detector{
		LookbackBars: DefaultLookbackBars,
		MinBars:      DefaultMinBars,
		BullLine:     DefaultBullLine,
		BearLine:     DefaultBearLine,
	}
}

// Detect classifies an oldest-first index series. It is total: short or broken
// series return SIDEWAYS with Insufficient set.
func (d Detector) Detect(bars []contracts.Bar) contracts.RegimeState {
	state := contracts.RegimeState{Label: contracts.RegimeSideways, Bars: len(bars)}
	if len(bars) > 0 {
		state.AsOf = bars[len(bars)-1].Date
	}

	if len(bars) < d.MinBars {
		state.Insufficient = true
		return state
	}

	window := bars
	if len(window) > d.LookbackBars {
		window = window[len(window)-d.LookbackBars:]
	}

	oldest := window[0].Close
	latest := window[len(window)-1].Close
	if oldest <= 0 {
		state.Insufficient = true
		return state
	}

	state.TrailingReturn = latest/oldest - 1
	state.Label = d.Classify(state.TrailingReturn)
	return state
}

// Classify maps a trailing return to a label. Both bounds are inclusive.
func (d Detector) Classify(trailingReturn float64) contracts.RegimeLabel {
	switch {
	case trailingReturn >= d.BullLine-boundaryEpsilon:
		return contracts.RegimeBull
	case trailingReturn <= d.BearLine+boundaryEpsilon:
		return contracts.RegimeBear
	default:
		return contracts.RegimeSideways
	}
}
