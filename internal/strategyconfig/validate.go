package strategyconfig

import (
	"errors"
	"fmt"
	"sort"

	"github.com/wonny/scout/backend/internal/contracts"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.PolicyID == "" {
		return ValidationError{"meta.policy_id", "required"}
	}

	// === Gate ===
	if _, err := contracts.ParseGateMode(cfg.Gate.Mode); err != nil {
		return ValidationError{"gate.mode", "must be enforce, shadow or off"}
	}
	if _, err := contracts.ParseGrade(cfg.Gate.MinGrade); err != nil {
		return ValidationError{"gate.min_grade", "must be one of S, A, B, C, D"}
	}
	if err := validateConfidence(cfg.Gate.MinConfidence); err != nil {
		return ValidationError{"gate.min_confidence", err.Error()}
	}

	// 버킷 오버라이드는 기준을 강화만 할 수 있음
	buckets := make([]string, 0, len(cfg.Gate.BucketOverrides))
	for b := range cfg.Gate.BucketOverrides {
		buckets = append(buckets, b)
	}
	sort.Strings(buckets)
	for _, b := range buckets {
		o := cfg.Gate.BucketOverrides[b]
		field := fmt.Sprintf("gate.bucket_overrides.%s", b)
		switch contracts.MarketCapBucket(b) {
		case contracts.BucketLarge, contracts.BucketMid, contracts.BucketSmall, contracts.BucketUnknown:
		default:
			return ValidationError{field, "unknown bucket"}
		}
		if o.MinGrade != "" {
			g, err := contracts.ParseGrade(o.MinGrade)
			if err != nil {
				return ValidationError{field + ".min_grade", "must be one of S, A, B, C, D"}
			}
			if !g.AtLeast(contracts.Grade(cfg.Gate.MinGrade)) {
				return ValidationError{field + ".min_grade", "must not be looser than gate.min_grade"}
			}
		}
		if o.MinConfidence != 0 {
			if err := validateConfidence(o.MinConfidence); err != nil {
				return ValidationError{field + ".min_confidence", err.Error()}
			}
			if o.MinConfidence < cfg.Gate.MinConfidence {
				return ValidationError{field + ".min_confidence", "must not be looser than gate.min_confidence"}
			}
		}
	}

	// === Debate ===
	switch cfg.Debate.TiePolicy {
	case TiePolicyConservative, TiePolicyMajorityHalf:
	default:
		return ValidationError{"debate.tie_policy", "must be conservative or majority_half"}
	}
	if cfg.Debate.PersonaTimeout <= 0 {
		return ValidationError{"debate.persona_timeout", "must be > 0"}
	}

	// === Engine ===
	if cfg.Engine.HighWeightThreshold <= 0 || cfg.Engine.HighWeightThreshold > 1 {
		return ValidationError{"engine.high_weight_threshold", "must be in (0, 1]"}
	}
	if cfg.Engine.WeightsMaxAge <= 0 {
		return ValidationError{"engine.weights_max_age", "must be > 0"}
	}
	if cfg.Engine.HistoryDays <= 0 {
		return ValidationError{"engine.history_days", "must be > 0"}
	}

	// === Regime ===
	r := cfg.Regime
	if r.LookbackBars < 2 {
		return ValidationError{"regime.lookback_bars", "must be >= 2"}
	}
	if r.MinBars < 2 || r.MinBars > r.LookbackBars {
		return ValidationError{"regime.min_bars", "must be in [2, lookback_bars]"}
	}
	if r.BearLine >= 0 || r.BullLine <= 0 {
		return ValidationError{"regime", "bear_line must be < 0 < bull_line"}
	}

	// === Calibration ===
	if err := validateCalibration(cfg.Calibration); err != nil {
		return err
	}

	// === Batch ===
	if cfg.Batch.WeeklyDays <= 0 || cfg.Batch.FullRefreshDays < cfg.Batch.WeeklyDays {
		return ValidationError{"batch", "must satisfy 0 < weekly_days <= full_refresh_days"}
	}
	if cfg.Batch.TagExtraDays < 0 {
		return ValidationError{"batch.tag_extra_days", "must be >= 0"}
	}

	return nil
}

func validateCalibration(c Calibration) error {
	if len(c.Horizons) == 0 {
		return ValidationError{"calibration.horizons", "must not be empty"}
	}
	for i, h := range c.Horizons {
		if h <= 0 {
			return ValidationError{fmt.Sprintf("calibration.horizons[%d]", i), "must be > 0"}
		}
	}
	if c.LookbackYears <= 0 {
		return ValidationError{"calibration.lookback_years", "must be > 0"}
	}
	if c.MinPairs < 3 {
		return ValidationError{"calibration.min_pairs", "must be >= 3"}
	}
	if c.MinPooledSamples < c.MinPairs {
		return ValidationError{"calibration.min_pooled_samples", "must be >= min_pairs"}
	}
	if c.RollingWindow < 3 {
		return ValidationError{"calibration.rolling_window", "must be >= 3"}
	}
	if c.RecentDays <= 0 {
		return ValidationError{"calibration.recent_days", "must be > 0"}
	}
	if c.Blend < 0 || c.Blend > 1 {
		return ValidationError{"calibration.blend", "must be in range [0, 1]"}
	}
	if c.TCritical <= 0 {
		return ValidationError{"calibration.t_critical", "must be > 0"}
	}
	if c.MinStocks < 1 {
		return ValidationError{"calibration.min_stocks", "must be >= 1"}
	}
	if c.MinBarsPerStock <= 0 {
		return ValidationError{"calibration.min_bars_per_stock", "must be > 0"}
	}
	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	if cfg.Gate.Mode == string(contracts.GateModeOff) {
		warnings = append(warnings, Warning{
			Code:    "GATE_OFF",
			Message: "게이트 비활성: 판정은 기록만 하고 실행 계층에 전달하지 않음",
		})
	}

	// 느슨한 기준 경고
	if cfg.Gate.MinConfidence < 70 {
		warnings = append(warnings, Warning{
			Code:    "LOW_MIN_CONFIDENCE",
			Message: "min_confidence < 70: 저신뢰 판단 통과 우려",
		})
	}

	if cfg.Calibration.TCritical < 1.645 {
		warnings = append(warnings, Warning{
			Code:    "WEAK_SIGNIFICANCE",
			Message: "t_critical < 1.645: 90% 미만 유의수준",
		})
	}

	return warnings
}

// === Helper Functions ===

func validateConfidence(v int) error {
	if v < 0 || v > 100 {
		return errors.New("must be in range [0, 100]")
	}
	return nil
}
