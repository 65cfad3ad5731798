package gate

import (
	"fmt"
	"time"

	"github.com/wonny/scout/backend/internal/contracts"
	"github.com/wonny/scout/backend/internal/strategyconfig"
	"github.com/wonny/scout/backend/pkg/logger"
)

// =============================================================================
// DecisionGate - 최종 매매 가능 판정
// =============================================================================

// Reason prefixes. Every reason starts with one of these followed by ": ".
const (
	ReasonGrade      = "grade"
	ReasonConfidence = "confidence"
	ReasonStrategy   = "strategy_type"
	ReasonDecision   = "decision"
	ReasonPass       = "pass"
)

// Gate applies the decision policy to validated reasoning output
// ⭐ SSOT: TRADABLE 최종 판정은 여기서만
type Gate struct {
	policy strategyconfig.Gate
	mode   contracts.GateMode
	logger *logger.Logger
	now    func() time.Time
}

// New creates a gate from the policy section. The policy must already be validated.
func New(policy strategyconfig.Gate, log *logger.Logger) *Gate {
	mode, err := contracts.ParseGateMode(policy.Mode)
	if err != nil {
		mode = contracts.GateModeEnforce
	}
	return &Gate{
		policy: policy,
		mode:   mode,
		logger: log.WithComponent("gate"),
		now:    time.Now,
	}
}

// Mode returns the configured gate mode
func (g *Gate) Mode() contracts.GateMode {
	return g.mode
}

// Check evaluates one decision and logs blocks. Off mode evaluates silently.
func (g *Gate) Check(d *contracts.StructuredDecision, bucket contracts.MarketCapBucket) contracts.GateResult {
	result := Evaluate(d, g.policy.Thresholds(bucket), g.mode, bucket)
	result.CheckedAt = g.now()

	if !result.WouldBlock || result.Mode == contracts.GateModeOff {
		return result
	}

	fields := map[string]interface{}{
		"symbol":         d.Symbol,
		"mode":           result.Mode,
		"bucket":         bucket,
		"grade":          d.LLMGrade,
		"confidence":     d.Strategy.Confidence,
		"min_grade":      result.Thresholds.MinGrade,
		"min_confidence": result.Thresholds.MinConfidence,
		"reasons":        result.Reasons,
	}
	if result.Mode == contracts.GateModeShadow {
		g.logger.WithFields(fields).Warn("SHADOW BLOCK: would have blocked decision")
	} else {
		g.logger.WithFields(fields).Info("decision blocked by gate")
	}
	return result
}

// Evaluate is the pure gate rule. The returned reasons are never empty.
//
// TRADABLE requires all of:
//   - grade at least thresholds.MinGrade
//   - confidence >= thresholds.MinConfidence
//   - strategy type != DO_NOT_TRADE
//   - decision == TRADABLE
//
// The mode never changes Tradable. Only enforce mode marks the result Enforced.
func Evaluate(d *contracts.StructuredDecision, th contracts.GateThresholds, mode contracts.GateMode, bucket contracts.MarketCapBucket) contracts.GateResult {
	result := contracts.GateResult{
		Mode:       mode,
		Enforced:   mode == contracts.GateModeEnforce,
		Bucket:     bucket,
		Thresholds: th,
	}

	var reasons []string
	if !d.LLMGrade.AtLeast(th.MinGrade) {
		reasons = append(reasons, fmt.Sprintf("%s: %s is below minimum %s", ReasonGrade, d.LLMGrade, th.MinGrade))
	}
	if d.Strategy.Confidence < th.MinConfidence {
		reasons = append(reasons, fmt.Sprintf("%s: %d is below minimum %d", ReasonConfidence, d.Strategy.Confidence, th.MinConfidence))
	}
	if d.Strategy.Type == contracts.StrategyDoNotTrade {
		reasons = append(reasons, fmt.Sprintf("%s: %s", ReasonStrategy, d.Strategy.Type))
	}
	if d.Strategy.Decision != contracts.DecisionTradable {
		reasons = append(reasons, fmt.Sprintf("%s: %s", ReasonDecision, d.Strategy.Decision))
	}

	if len(reasons) == 0 {
		result.Tradable = true
		result.Reasons = []string{fmt.Sprintf("%s: grade %s, confidence %d, %s",
			ReasonPass, d.LLMGrade, d.Strategy.Confidence, d.Strategy.Type)}
		return result
	}

	result.WouldBlock = true
	result.Reasons = reasons
	return result
}
