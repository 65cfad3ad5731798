package contracts

import (
	"time"
)

// FactorCategory groups factors by the kind of signal they read
type FactorCategory string

const (
	CategoryMomentum  FactorCategory = "momentum"
	CategoryValue     FactorCategory = "value"
	CategoryQuality   FactorCategory = "quality"
	CategoryTechnical FactorCategory = "technical"
	CategorySupply    FactorCategory = "supply"
)

// Factor keys
// ⭐ SSOT: 팩터 키는 여기서만 정의
const (
	FactorMomentum6M       = "momentum_6m"
	FactorMomentum1M       = "momentum_1m"
	FactorValuePER         = "value_per"
	FactorValuePBR         = "value_pbr"
	FactorQualityROE       = "quality_roe"
	FactorTechnicalRSI     = "technical_rsi_oversold"
	FactorSupplyForeignBuy = "supply_foreign_buy"
)

// FactorSnapshot holds one stock's raw factor values at a date (transient)
type FactorSnapshot struct {
	StockCode string             `json:"stock_code"`
	AsOf      time.Time          `json:"as_of"`
	Values    map[string]float64 `json:"values"`
	Bars      int                `json:"bars"` // 사용된 가격 봉 수
}

// FactorWeight is one factor's calibrated weight with its evidence
type FactorWeight struct {
	Key         string  `json:"key"`
	Weight      float64 `json:"weight"`
	IC          float64 `json:"ic"`
	IR          float64 `json:"ir"`
	RecentIC    float64 `json:"recent_ic"`
	HitRate     float64 `json:"hit_rate"`
	SampleCount int     `json:"sample_count"`
	Significant bool    `json:"significant"`
}

// WeightGeneration is one append-only calibration result
type WeightGeneration struct {
	ID            string         `json:"id"`
	ComputedAt    time.Time      `json:"computed_at"`
	LookbackYears int            `json:"lookback_years"`
	Regime        RegimeLabel    `json:"regime"`
	SampleStocks  int            `json:"sample_stocks"`
	PolicyHash    string         `json:"policy_hash,omitempty"`
	Weights       []FactorWeight `json:"weights"`
}

// WeightMap returns key -> weight
func (g *WeightGeneration) WeightMap() map[string]float64 {
	m := make(map[string]float64, len(g.Weights))
	for _, w := range g.Weights {
		m[w.Key] = w.Weight
	}
	return m
}

// Age returns how long ago the generation was computed
func (g *WeightGeneration) Age(now time.Time) time.Duration {
	return now.Sub(g.ComputedAt)
}

// MarketCapBucket is the size bucket used for gate overrides
type MarketCapBucket string

const (
	BucketLarge   MarketCapBucket = "LARGE"
	BucketMid     MarketCapBucket = "MID"
	BucketSmall   MarketCapBucket = "SMALL"
	BucketUnknown MarketCapBucket = "UNKNOWN"
)

// ConfidenceLevel grades a performance record by sample size
type ConfidenceLevel string

const (
	ConfidenceHigh ConfidenceLevel = "HIGH"
	ConfidenceMid  ConfidenceLevel = "MID"
	ConfidenceLow  ConfidenceLevel = "LOW"
)

// ConfidenceForSamples maps a sample count to a confidence level (HIGH >= 30, MID >= 15)
func ConfidenceForSamples(n int) ConfidenceLevel {
	switch {
	case n >= 30:
		return ConfidenceHigh
	case n >= 15:
		return ConfidenceMid
	default:
		return ConfidenceLow
	}
}

// FactorPerformance is an append-only performance record for one condition.
// Applied flips to true exactly once, when its generation is promoted.
type FactorPerformance struct {
	ID              int64           `json:"id"`
	GenerationID    string          `json:"generation_id"`
	ConditionKey    string          `json:"condition_key"` // 예: "momentum_6m:top_quintile"
	HorizonDays     int             `json:"horizon_days"`
	WinRate         float64         `json:"win_rate"`
	AvgReturn       float64         `json:"avg_return"`
	SampleCount     int             `json:"sample_count"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level"`
	Applied         bool            `json:"applied"`
	AppliedAt       *time.Time      `json:"applied_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}
