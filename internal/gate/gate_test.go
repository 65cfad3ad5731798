package gate

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/scout/backend/internal/contracts"
	"github.com/wonny/scout/backend/internal/strategyconfig"
	"github.com/wonny/scout/backend/pkg/config"
	"github.com/wonny/scout/backend/pkg/logger"
)

func decision(grade contracts.Grade, confidence int) *contracts.StructuredDecision {
	return &contracts.StructuredDecision{
		Symbol:   "005930",
		LLMGrade: grade,
		Strategy: contracts.Strategy{
			Decision:   contracts.DecisionTradable,
			Type:       contracts.StrategySnipeDip,
			Rationale:  "test",
			Confidence: confidence,
		},
		Risk: contracts.RiskAssessment{Volatility: contracts.RiskLow, Fundamental: contracts.RiskLow},
	}
}

func hasPrefix(reasons []string, prefix string) bool {
	for _, r := range reasons {
		if strings.HasPrefix(r, prefix+":") {
			return true
		}
	}
	return false
}

func TestEvaluate(t *testing.T) {
	th := contracts.GateThresholds{MinGrade: contracts.GradeB, MinConfidence: 80}

	tests := []struct {
		name         string
		d            *contracts.StructuredDecision
		wantTradable bool
		wantReasons  []string
	}{
		{"A/85 passes", decision(contracts.GradeA, 85), true, []string{ReasonPass}},
		{"A/79 fails on confidence", decision(contracts.GradeA, 79), false, []string{ReasonConfidence}},
		{"C/95 fails on grade", decision(contracts.GradeC, 95), false, []string{ReasonGrade}},
		{"B/80 passes at the boundary", decision(contracts.GradeB, 80), true, []string{ReasonPass}},
		{"DO_NOT_TRADE fails", func() *contracts.StructuredDecision {
			d := decision(contracts.GradeS, 99)
			d.Strategy.Type = contracts.StrategyDoNotTrade
			return d
		}(), false, []string{ReasonStrategy}},
		{"SKIP with low grade collects every reason", func() *contracts.StructuredDecision {
			d := decision(contracts.GradeD, 10)
			d.Strategy.Decision = contracts.DecisionSkip
			d.Strategy.Type = contracts.StrategyDoNotTrade
			return d
		}(), false, []string{ReasonGrade, ReasonConfidence, ReasonStrategy, ReasonDecision}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Evaluate(tt.d, th, contracts.GateModeEnforce, contracts.BucketLarge)
			assert.Equal(t, tt.wantTradable, res.Tradable)
			assert.Equal(t, !tt.wantTradable, res.WouldBlock)
			require.Len(t, res.Reasons, len(tt.wantReasons))
			for _, p := range tt.wantReasons {
				assert.True(t, hasPrefix(res.Reasons, p), "missing %s reason in %v", p, res.Reasons)
			}
		})
	}
}

func TestEvaluate_Modes(t *testing.T) {
	th := contracts.GateThresholds{MinGrade: contracts.GradeB, MinConfidence: 80}

	rejected := decision(contracts.GradeD, 5)
	rejected.Strategy.Decision = contracts.DecisionSkip
	rejected.Strategy.Type = contracts.StrategyDoNotTrade

	tests := []struct {
		name           string
		d              *contracts.StructuredDecision
		mode           contracts.GateMode
		wantTradable   bool
		wantEnforced   bool
		wantActionable bool
	}{
		{"enforce pass", decision(contracts.GradeA, 85), contracts.GateModeEnforce, true, true, true},
		{"enforce block", rejected, contracts.GateModeEnforce, false, true, false},
		{"shadow pass is not acted on", decision(contracts.GradeA, 85), contracts.GateModeShadow, true, false, false},
		{"shadow block stays blocked", rejected, contracts.GateModeShadow, false, false, false},
		{"off pass is not acted on", decision(contracts.GradeA, 85), contracts.GateModeOff, true, false, false},
		{"off block stays blocked", rejected, contracts.GateModeOff, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Evaluate(tt.d, th, tt.mode, contracts.BucketMid)
			assert.Equal(t, tt.wantTradable, res.Tradable)
			assert.Equal(t, !tt.wantTradable, res.WouldBlock)
			assert.Equal(t, tt.wantEnforced, res.Enforced)
			assert.Equal(t, tt.wantActionable, res.Actionable())
			assert.NotEmpty(t, res.Reasons)
		})
	}

	off := Evaluate(rejected, th, contracts.GateModeOff, contracts.BucketMid)
	assert.True(t, hasPrefix(off.Reasons, ReasonDecision))
	assert.True(t, hasPrefix(off.Reasons, ReasonGrade))
}

func TestGate_Check_BucketOverride(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&config.Config{LogLevel: "debug", LogFormat: "json", Env: "development"}, &buf)
	g := New(strategyconfig.Default().Gate, log)

	// 대형주는 80 통과, 소형주는 85 필요
	large := g.Check(decision(contracts.GradeA, 82), contracts.BucketLarge)
	assert.True(t, large.Tradable)
	assert.False(t, large.CheckedAt.IsZero())

	small := g.Check(decision(contracts.GradeA, 82), contracts.BucketSmall)
	assert.False(t, small.Tradable)
	assert.Equal(t, 85, small.Thresholds.MinConfidence)
	assert.True(t, hasPrefix(small.Reasons, ReasonConfidence))
	assert.Contains(t, buf.String(), "blocked")
}

func TestGate_Check_ShadowLogs(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&config.Config{LogLevel: "debug", LogFormat: "json", Env: "development"}, &buf)

	policy := strategyconfig.Default().Gate
	policy.Mode = "shadow"
	g := New(policy, log)
	assert.Equal(t, contracts.GateModeShadow, g.Mode())

	res := g.Check(decision(contracts.GradeC, 95), contracts.BucketLarge)
	assert.False(t, res.Tradable)
	assert.False(t, res.Actionable())
	assert.True(t, res.WouldBlock)
	assert.Contains(t, buf.String(), "SHADOW BLOCK")
}
