package contracts

import (
	"fmt"
	"time"
)

// Grade is the reasoning layer's letter grade. Lower rank is better (S < A < B < C < D).
type Grade string

const (
	GradeS Grade = "S"
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
)

// AllGrades lists grades best-first
var AllGrades = []Grade{GradeS, GradeA, GradeB, GradeC, GradeD}

// ParseGrade parses a closed-set grade. Unknown values are rejected.
func ParseGrade(s string) (Grade, error) {
	switch Grade(s) {
	case GradeS, GradeA, GradeB, GradeC, GradeD:
		return Grade(s), nil
	default:
		return "", fmt.Errorf("unknown grade %q", s)
	}
}

// Rank returns 0 for S through 4 for D, -1 for an invalid grade
func (g Grade) Rank() int {
	switch g {
	case GradeS:
		return 0
	case GradeA:
		return 1
	case GradeB:
		return 2
	case GradeC:
		return 3
	case GradeD:
		return 4
	default:
		return -1
	}
}

// AtLeast reports whether g is as good as or better than min
func (g Grade) AtLeast(min Grade) bool {
	r := g.Rank()
	return r >= 0 && r <= min.Rank()
}

// Decision is the strategy's trade decision
type Decision string

const (
	DecisionTradable Decision = "TRADABLE"
	DecisionSkip     Decision = "SKIP"
)

// ParseDecision parses a closed-set decision
func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionTradable, DecisionSkip:
		return Decision(s), nil
	default:
		return "", fmt.Errorf("unknown decision %q", s)
	}
}

// StrategyType is the recommended entry style
type StrategyType string

const (
	StrategySnipeDip         StrategyType = "SNIPE_DIP"
	StrategyMomentumBreakout StrategyType = "MOMENTUM_BREAKOUT"
	StrategyDoNotTrade       StrategyType = "DO_NOT_TRADE"
)

// AllStrategyTypes lists the closed strategy set, default first
var AllStrategyTypes = []StrategyType{StrategyDoNotTrade, StrategySnipeDip, StrategyMomentumBreakout}

// ParseStrategyType parses a closed-set strategy type
func ParseStrategyType(s string) (StrategyType, error) {
	switch StrategyType(s) {
	case StrategySnipeDip, StrategyMomentumBreakout, StrategyDoNotTrade:
		return StrategyType(s), nil
	default:
		return "", fmt.Errorf("unknown strategy type %q", s)
	}
}

// RiskLevel is a three-step risk scale
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// ParseRiskLevel parses a closed-set risk level
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium, RiskHigh:
		return RiskLevel(s), nil
	default:
		return "", fmt.Errorf("unknown risk level %q", s)
	}
}

// Severity orders risk levels (LOW=1, MEDIUM=2, HIGH=3)
func (r RiskLevel) Severity() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	default:
		return 0
	}
}

// MaxRisk returns the more severe of two levels
func MaxRisk(a, b RiskLevel) RiskLevel {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// Strategy is the regime-conditioned strategy block
type Strategy struct {
	Decision   Decision     `json:"decision"`
	Type       StrategyType `json:"strategy_type"`
	Rationale  string       `json:"rationale"`
	Confidence int          `json:"confidence_score"` // 0..100
}

// RiskAssessment holds the two risk axes
type RiskAssessment struct {
	Volatility  RiskLevel `json:"volatility_risk"`
	Fundamental RiskLevel `json:"fundamental_risk"`
}

// StructuredDecision is the validated reasoning output
// ⭐ SSOT: LLM 응답 계약은 이 구조체만 사용
type StructuredDecision struct {
	Symbol              string         `json:"symbol"`
	LLMGrade            Grade          `json:"llm_grade"`
	Strategy            Strategy       `json:"market_regime_strategy"`
	Risk                RiskAssessment `json:"risk_assessment"`
	SuggestedEntryFocus string         `json:"suggested_entry_focus,omitempty"`
}

// GateMode controls how gate failures are applied
type GateMode string

const (
	GateModeEnforce GateMode = "enforce" // 차단
	GateModeShadow  GateMode = "shadow"  // 판정·로그만, 실행 전달 없음
	GateModeOff     GateMode = "off"     // 판정만 기록, 실행 전달 없음
)

// ParseGateMode parses a closed-set gate mode
func ParseGateMode(s string) (GateMode, error) {
	switch GateMode(s) {
	case GateModeEnforce, GateModeShadow, GateModeOff:
		return GateMode(s), nil
	default:
		return "", fmt.Errorf("unknown gate mode %q", s)
	}
}

// GateThresholds are the thresholds applied to one decision
type GateThresholds struct {
	MinGrade      Grade `json:"min_grade"`
	MinConfidence int   `json:"min_confidence"`
}

// GateResult is the final, explainable gate outcome.
// Tradable is always the four-condition rule; the mode only decides whether it is acted on.
type GateResult struct {
	Tradable   bool            `json:"tradable"`
	Enforced   bool            `json:"enforced"`    // enforce 모드일 때만 true
	WouldBlock bool            `json:"would_block"` // 규칙 불통과
	Reasons    []string        `json:"reasons"`     // never empty
	Mode       GateMode        `json:"mode"`
	Bucket     MarketCapBucket `json:"bucket"`
	Thresholds GateThresholds  `json:"thresholds"`
	CheckedAt  time.Time       `json:"checked_at"`
}

// Actionable reports whether the result may reach the execution layer
func (r GateResult) Actionable() bool {
	return r.Enforced && r.Tradable
}

// Handoff is the finalized tuple passed to the execution layer
type Handoff struct {
	RunID      string             `json:"run_id"`
	Symbol     string             `json:"symbol"`
	Regime     RegimeLabel        `json:"regime"`
	QuantScore float64            `json:"quant_score"`
	Gate       GateResult         `json:"gate"`
	Decision   StructuredDecision `json:"decision"`
	EntryFocus string             `json:"entry_focus,omitempty"`
	PolicyHash string             `json:"policy_hash"`
}
