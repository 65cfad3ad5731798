package strategyconfig

import (
	"time"

	"github.com/wonny/scout/backend/internal/calibration"
	"github.com/wonny/scout/backend/internal/contracts"
	"github.com/wonny/scout/backend/internal/regime"
)

// Tie policies for debate grade reconciliation
const (
	TiePolicyConservative = "conservative" // 50:50이면 가장 낮은 등급
	TiePolicyMajorityHalf = "majority_half"
)

// Config는 의사결정 정책 전체 설정
type Config struct {
	Meta        Meta        `yaml:"meta" json:"meta"`
	Gate        Gate        `yaml:"gate" json:"gate"`
	Debate      Debate      `yaml:"debate" json:"debate"`
	Engine      Engine      `yaml:"engine" json:"engine"`
	Regime      Regime      `yaml:"regime" json:"regime"`
	Calibration Calibration `yaml:"calibration" json:"calibration"`
	Batch       Batch       `yaml:"batch" json:"batch"`
}

// Meta 메타 정보
type Meta struct {
	PolicyID string `yaml:"policy_id" json:"policy_id"`
	Version  string `yaml:"version" json:"version"`
}

// Gate 최종 매매 가능 판정
type Gate struct {
	Mode            string                    `yaml:"mode" json:"mode"` // enforce | shadow | off
	MinGrade        string                    `yaml:"min_grade" json:"min_grade"`
	MinConfidence   int                       `yaml:"min_confidence" json:"min_confidence"`
	BucketOverrides map[string]BucketOverride `yaml:"bucket_overrides" json:"bucket_overrides"`
}

// BucketOverride tightens thresholds for one market-cap bucket. Empty fields inherit.
type BucketOverride struct {
	MinGrade      string `yaml:"min_grade,omitempty" json:"min_grade,omitempty"`
	MinConfidence int    `yaml:"min_confidence,omitempty" json:"min_confidence,omitempty"`
}

// Debate 다중 페르소나 토론
type Debate struct {
	Enabled        bool          `yaml:"enabled" json:"enabled"`
	TiePolicy      string        `yaml:"tie_policy" json:"tie_policy"`
	PersonaTimeout time.Duration `yaml:"persona_timeout" json:"persona_timeout"`
}

// Engine 평가 엔진
type Engine struct {
	HighWeightThreshold float64       `yaml:"high_weight_threshold" json:"high_weight_threshold"`
	WeightsMaxAge       time.Duration `yaml:"weights_max_age" json:"weights_max_age"`
	HistoryDays         int           `yaml:"history_days" json:"history_days"`
}

// Regime 시장 국면
type Regime struct {
	LookbackBars int     `yaml:"lookback_bars" json:"lookback_bars"`
	MinBars      int     `yaml:"min_bars" json:"min_bars"`
	BullLine     float64 `yaml:"bull_line" json:"bull_line"`
	BearLine     float64 `yaml:"bear_line" json:"bear_line"`
}

// Calibration 팩터 가중치 보정
type Calibration struct {
	Horizons         []int   `yaml:"horizons" json:"horizons"`
	LookbackYears    int     `yaml:"lookback_years" json:"lookback_years"`
	MinBarsPerStock  int     `yaml:"min_bars_per_stock" json:"min_bars_per_stock"`
	MinPairs         int     `yaml:"min_pairs" json:"min_pairs"`
	MinPooledSamples int     `yaml:"min_pooled_samples" json:"min_pooled_samples"`
	RollingWindow    int     `yaml:"rolling_window" json:"rolling_window"`
	RecentDays       int     `yaml:"recent_days" json:"recent_days"`
	Blend            float64 `yaml:"blend" json:"blend"`
	TCritical        float64 `yaml:"t_critical" json:"t_critical"`
	MinStocks        int     `yaml:"min_stocks" json:"min_stocks"`
}

// Batch 수집 윈도우
type Batch struct {
	FullRefreshDays int `yaml:"full_refresh_days" json:"full_refresh_days"`
	WeeklyDays      int `yaml:"weekly_days" json:"weekly_days"`
	TagExtraDays    int `yaml:"tag_extra_days" json:"tag_extra_days"`
}

// Default returns the built-in policy used when no YAML file is present
func Default() *Config {
	cal := calibration.DefaultConfig()
	return &Config{
		Meta: Meta{PolicyID: "scout_v1", Version: "1.0.0"},
		Gate: Gate{
			Mode:          string(contracts.GateModeEnforce),
			MinGrade:      string(contracts.GradeB),
			MinConfidence: 80,
			BucketOverrides: map[string]BucketOverride{
				string(contracts.BucketSmall):   {MinConfidence: 85},
				string(contracts.BucketUnknown): {MinConfidence: 85},
			},
		},
		Debate: Debate{
			Enabled:        false,
			TiePolicy:      TiePolicyConservative,
			PersonaTimeout: 90 * time.Second,
		},
		Engine: Engine{
			HighWeightThreshold: 0.10,
			WeightsMaxAge:       8 * 24 * time.Hour,
			HistoryDays:         400,
		},
		Regime: Regime{
			LookbackBars: regime.DefaultLookbackBars,
			MinBars:      regime.DefaultMinBars,
			BullLine:     regime.DefaultBullLine,
			BearLine:     regime.DefaultBearLine,
		},
		Calibration: Calibration{
			Horizons:         cal.Horizons,
			LookbackYears:    cal.LookbackYears,
			MinBarsPerStock:  cal.MinBarsPerStock,
			MinPairs:         cal.MinPairs,
			MinPooledSamples: cal.MinPooledSamples,
			RollingWindow:    cal.RollingWindow,
			RecentDays:       int(cal.RecentWindow / (24 * time.Hour)),
			Blend:            cal.Blend,
			TCritical:        cal.TCritical,
			MinStocks:        cal.MinStocks,
		},
		Batch: Batch{
			FullRefreshDays: 730,
			WeeklyDays:      7,
			TagExtraDays:    30,
		},
	}
}

// Thresholds resolves the gate thresholds for a bucket
func (g Gate) Thresholds(bucket contracts.MarketCapBucket) contracts.GateThresholds {
	th := contracts.GateThresholds{
		MinGrade:      contracts.Grade(g.MinGrade),
		MinConfidence: g.MinConfidence,
	}
	if o, ok := g.BucketOverrides[string(bucket)]; ok {
		if o.MinGrade != "" {
			th.MinGrade = contracts.Grade(o.MinGrade)
		}
		if o.MinConfidence > 0 {
			th.MinConfidence = o.MinConfidence
		}
	}
	return th
}

// CalibrationConfig converts the policy section to calibrator parameters
func (c Calibration) CalibrationConfig() calibration.Config {
	return calibration.Config{
		Horizons:         append([]int(nil), c.Horizons...),
		LookbackYears:    c.LookbackYears,
		MinBarsPerStock:  c.MinBarsPerStock,
		MinPairs:         c.MinPairs,
		MinPooledSamples: c.MinPooledSamples,
		RollingWindow:    c.RollingWindow,
		RecentWindow:     time.Duration(c.RecentDays) * 24 * time.Hour,
		Blend:            c.Blend,
		TCritical:        c.TCritical,
		MinStocks:        c.MinStocks,
	}
}

// Detector builds a regime detector from the policy section
func (r Regime) Detector() regime.Detector {
	return regime.Detector{
		LookbackBars: r.LookbackBars,
		MinBars:      r.MinBars,
		BullLine:     r.BullLine,
		BearLine:     r.BearLine,
	}
}

// Snapshot 정책 스냅샷 (재현성용)
type Snapshot struct {
	PolicyHash string    `json:"policy_hash"`
	PolicyID   string    `json:"policy_id"`
	Version    string    `json:"version"`
	Source     string    `json:"source"` // 파일 경로 또는 "default"
	CreatedAt  time.Time `json:"created_at"`
}
