package factors

import (
	"math"
	"sort"

	"github.com/wonny/scout/backend/internal/contracts"
	"github.com/wonny/scout/backend/pkg/logger"
)

// DefaultHighWeightThreshold marks factors whose absence makes a score meaningless
const DefaultHighWeightThreshold = 0.10

// Engine computes factor snapshots and weighted composites
// ⭐ SSOT: 복합 팩터 점수 계산은 여기서만
type Engine struct {
	logger              *logger.Logger
	highWeightThreshold float64
}

// NewEngine creates a factor engine
func NewEngine(log *logger.Logger) *Engine {
	return &Engine{
		logger:              log.WithComponent("factors"),
		highWeightThreshold: DefaultHighWeightThreshold,
	}
}

// WithHighWeightThreshold overrides the threshold above which missing history is an error
func (e *Engine) WithHighWeightThreshold(th float64) *Engine {
	e.highWeightThreshold = th
	return e
}

// Snapshot computes every registered factor at the latest bar
func (e *Engine) Snapshot(s *Series) (*contracts.FactorSnapshot, error) {
	if s.Len() == 0 {
		return nil, &contracts.DataError{Code: s.Code, Field: "bars", Message: "no price history"}
	}

	last := s.Len() - 1
	snap := &contracts.FactorSnapshot{
		StockCode: s.Code,
		AsOf:      s.Bars[last].Date,
		Values:    make(map[string]float64, len(registry)),
		Bars:      s.Len(),
	}

	for _, def := range registry {
		if v, ok := def.Calculator.Calculate(s, last); ok {
			snap.Values[def.Key] = v
		}
	}
	return snap, nil
}

// Score returns Σ weight·value over keys present in both the snapshot and weights.
// Missing values contribute 0. A heavily weighted factor that is missing because the
// stock has too little history yields a DataError.
func (e *Engine) Score(snap *contracts.FactorSnapshot, weights map[string]float64) (float64, map[string]float64, error) {
	breakdown := make(map[string]float64, len(weights))
	composite := 0.0

	keys := make([]string, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		w := weights[key]
		v, ok := snap.Values[key]
		if !ok {
			if need := MinBars(key); w >= e.highWeightThreshold && snap.Bars < need {
				return 0, nil, &contracts.DataError{
					Code:    snap.StockCode,
					Field:   key,
					Message: "insufficient history for high-weight factor",
				}
			}
			e.logger.WithFields(map[string]interface{}{
				"code":   snap.StockCode,
				"factor": key,
				"weight": w,
			}).Debug("factor value missing, contributes 0")
			continue
		}
		contribution := w * v
		breakdown[key] = contribution
		composite += contribution
	}

	return composite, breakdown, nil
}

// Tags returns the keys of positively contributing factors, sorted
func Tags(breakdown map[string]float64) []string {
	var tags []string
	for k, v := range breakdown {
		if v > 0 {
			tags = append(tags, k)
		}
	}
	sort.Strings(tags)
	return tags
}

// Market cap bucket thresholds (KRW)
const (
	LargeCapThreshold = 10e12 // 10조
	MidCapThreshold   = 1e12  // 1조
)

// BucketFor classifies a market cap. nil or non-positive caps are UNKNOWN.
func BucketFor(marketCap *float64) contracts.MarketCapBucket {
	if marketCap == nil || *marketCap <= 0 {
		return contracts.BucketUnknown
	}
	switch {
	case *marketCap >= LargeCapThreshold:
		return contracts.BucketLarge
	case *marketCap >= MidCapThreshold:
		return contracts.BucketMid
	default:
		return contracts.BucketSmall
	}
}

// ScoreScale sets how fast NormalizeScore saturates
const ScoreScale = 10.0

// NormalizeScore maps a raw composite onto 0..100 (50 = neutral) with tanh
func NormalizeScore(composite float64) float64 {
	return 50 + 50*math.Tanh(composite/ScoreScale)
}
