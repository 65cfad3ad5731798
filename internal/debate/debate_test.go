package debate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/scout/backend/internal/contracts"
	"github.com/wonny/scout/backend/internal/prompt"
	"github.com/wonny/scout/backend/internal/reasoning"
	"github.com/wonny/scout/backend/internal/strategyconfig"
	"github.com/wonny/scout/backend/pkg/logger"
)

func opinion(name string, grade contracts.Grade, decision contracts.Decision, typ contracts.StrategyType, confidence int, vol contracts.RiskLevel) Opinion {
	return Opinion{
		PersonaKey:  strings.ToLower(name),
		PersonaName: name,
		Stance:      "Bull",
		Decision: contracts.StructuredDecision{
			Symbol:   "005930",
			LLMGrade: grade,
			Strategy: contracts.Strategy{
				Decision:   decision,
				Type:       typ,
				Rationale:  name + " view",
				Confidence: confidence,
			},
			Risk: contracts.RiskAssessment{Volatility: vol, Fundamental: contracts.RiskLow},
		},
	}
}

func TestReconcile_TradableTakesMinimumConfidence(t *testing.T) {
	ops := []Opinion{
		opinion("a", contracts.GradeA, contracts.DecisionTradable, contracts.StrategyMomentumBreakout, 70, contracts.RiskLow),
		opinion("b", contracts.GradeA, contracts.DecisionTradable, contracts.StrategySnipeDip, 60, contracts.RiskMedium),
		opinion("c", contracts.GradeC, contracts.DecisionSkip, contracts.StrategyDoNotTrade, 90, contracts.RiskHigh),
	}

	d, err := Reconcile("005930", ops, strategyconfig.TiePolicyConservative)
	require.NoError(t, err)
	assert.Equal(t, contracts.DecisionTradable, d.Strategy.Decision)
	assert.Equal(t, 60, d.Strategy.Confidence)
	assert.Equal(t, contracts.StrategySnipeDip, d.Strategy.Type)
	assert.Equal(t, contracts.GradeA, d.LLMGrade) // 2/3 agree on A
	assert.Equal(t, contracts.RiskHigh, d.Risk.Volatility)
	assert.Equal(t, contracts.RiskLow, d.Risk.Fundamental)
	assert.Contains(t, d.Strategy.Rationale, "a(Bull): a view")
}

func TestReconcile_AllSkip(t *testing.T) {
	ops := []Opinion{
		opinion("a", contracts.GradeB, contracts.DecisionSkip, contracts.StrategySnipeDip, 40, contracts.RiskLow),
		opinion("b", contracts.GradeC, contracts.DecisionSkip, contracts.StrategyDoNotTrade, 90, contracts.RiskLow),
	}

	d, err := Reconcile("005930", ops, strategyconfig.TiePolicyConservative)
	require.NoError(t, err)
	assert.Equal(t, contracts.DecisionSkip, d.Strategy.Decision)
	assert.Equal(t, contracts.StrategyDoNotTrade, d.Strategy.Type)
	assert.Equal(t, 0, d.Strategy.Confidence)
}

func TestReconcile_Grade(t *testing.T) {
	tests := []struct {
		name   string
		grades []contracts.Grade
		policy string
		want   contracts.Grade
	}{
		{"lowest without majority", []contracts.Grade{"S", "A", "C"}, strategyconfig.TiePolicyConservative, "C"},
		{"strict majority wins", []contracts.Grade{"A", "A", "C"}, strategyconfig.TiePolicyConservative, "A"},
		{"half is lowest when conservative", []contracts.Grade{"A", "C"}, strategyconfig.TiePolicyConservative, "C"},
		{"half accepted with majority_half", []contracts.Grade{"A", "C"}, strategyconfig.TiePolicyMajorityHalf, "A"},
		{"unanimous", []contracts.Grade{"B", "B"}, strategyconfig.TiePolicyConservative, "B"},
		{"single", []contracts.Grade{"D"}, strategyconfig.TiePolicyConservative, "D"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops := make([]Opinion, 0, len(tt.grades))
			for i, g := range tt.grades {
				ops = append(ops, opinion(fmt.Sprintf("p%d", i), g, contracts.DecisionSkip, contracts.StrategyDoNotTrade, 0, contracts.RiskLow))
			}
			d, err := Reconcile("005930", ops, tt.policy)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.LLMGrade)
		})
	}
}

func TestReconcile_Empty(t *testing.T) {
	_, err := Reconcile("005930", nil, strategyconfig.TiePolicyConservative)
	assert.Error(t, err)
}

// personaProvider answers by persona stance found in the prompt
type personaProvider struct {
	answers map[string]string // stance → raw response
	delay   map[string]time.Duration
	calls   int32

	mu      sync.Mutex
	prompts []string
}

func (p *personaProvider) Name() string  { return "stub" }
func (p *personaProvider) Model() string { return "stub-1" }

func (p *personaProvider) Generate(ctx context.Context, req *contracts.ReasoningRequest) (*contracts.ReasoningResponse, error) {
	atomic.AddInt32(&p.calls, 1)
	stance := prompt.StanceBear
	switch {
	case strings.Contains(req.Prompt, "(Bull) 입니다"):
		stance = prompt.StanceBull
	case strings.Contains(req.Prompt, "(Quant) 입니다"):
		stance = prompt.StanceQuant
	}
	p.mu.Lock()
	p.prompts = append(p.prompts, req.Prompt)
	p.mu.Unlock()
	if d := p.delay[stance]; d > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
		}
	}
	return &contracts.ReasoningResponse{Text: p.answers[stance], Model: "stub-1", Provider: "stub"}, nil
}

func answer(grade string, decision string, typ string, confidence int) string {
	return fmt.Sprintf("```json\n{\"symbol\":\"005930\",\"llm_grade\":%q,\"market_regime_strategy\":{\"decision\":%q,\"strategy_type\":%q,\"rationale\":\"r\",\"confidence_score\":%d},\"risk_assessment\":{\"volatility_risk\":\"LOW\",\"fundamental_risk\":\"MEDIUM\"}}\n```",
		grade, decision, typ, confidence)
}

func newOrchestrator(p contracts.ReasoningProvider, timeout time.Duration) *Orchestrator {
	return NewOrchestrator(p, prompt.NewComposer(), reasoning.NewValidator(), strategyconfig.TiePolicyConservative, timeout, logger.Nop())
}

var snapshot = contracts.StockSnapshot{Code: "005930", Name: "삼성전자", Sector: "반도체"}

func TestOrchestrator_Run(t *testing.T) {
	p := &personaProvider{answers: map[string]string{
		"Bull":  answer("A", "TRADABLE", "MOMENTUM_BREAKOUT", 85),
		"Bear":  answer("C", "SKIP", "DO_NOT_TRADE", 70),
		"Quant": answer("B", "TRADABLE", "SNIPE_DIP", 88),
	}}

	out, err := newOrchestrator(p, time.Second).Run(context.Background(), snapshot, contracts.RegimeBull, 72, []string{"반도체"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&p.calls))
	require.Len(t, out.Opinions, 3)
	assert.Empty(t, out.Absent)

	assert.Equal(t, contracts.GradeC, out.Decision.LLMGrade)
	assert.Equal(t, contracts.DecisionTradable, out.Decision.Strategy.Decision)
	assert.Equal(t, 85, out.Decision.Strategy.Confidence)
	assert.Equal(t, contracts.StrategyMomentumBreakout, out.Decision.Strategy.Type)
	assert.Equal(t, contracts.RiskMedium, out.Decision.Risk.Fundamental)
}

func TestOrchestrator_PromptsCarryRegime(t *testing.T) {
	for _, regime := range []contracts.RegimeLabel{contracts.RegimeBull, contracts.RegimeBear, contracts.RegimeSideways} {
		t.Run(string(regime), func(t *testing.T) {
			p := &personaProvider{answers: map[string]string{
				"Bull":  answer("B", "SKIP", "DO_NOT_TRADE", 40),
				"Bear":  answer("B", "SKIP", "DO_NOT_TRADE", 40),
				"Quant": answer("B", "SKIP", "DO_NOT_TRADE", 40),
			}}
			_, err := newOrchestrator(p, time.Second).Run(context.Background(), snapshot, regime, 55, nil)
			require.NoError(t, err)

			require.Len(t, p.prompts, 3)
			for _, pr := range p.prompts {
				assert.Contains(t, pr, "'"+string(regime)+"'")
			}
		})
	}
}

func TestOrchestrator_QuantMajority(t *testing.T) {
	p := &personaProvider{answers: map[string]string{
		"Bull":  answer("A", "TRADABLE", "MOMENTUM_BREAKOUT", 90),
		"Bear":  answer("C", "SKIP", "DO_NOT_TRADE", 60),
		"Quant": answer("A", "TRADABLE", "MOMENTUM_BREAKOUT", 84),
	}}

	out, err := newOrchestrator(p, time.Second).Run(context.Background(), snapshot, contracts.RegimeBull, 70, nil)
	require.NoError(t, err)
	assert.Equal(t, contracts.GradeA, out.Decision.LLMGrade, "2 of 3 personas agree on A")
	assert.Equal(t, 84, out.Decision.Strategy.Confidence)
}

func TestOrchestrator_InvalidPersonaIsAbsent(t *testing.T) {
	p := &personaProvider{answers: map[string]string{
		"Bull":  answer("X", "TRADABLE", "SNIPE_DIP", 90),
		"Bear":  answer("B", "SKIP", "DO_NOT_TRADE", 50),
		"Quant": answer("B", "SKIP", "DO_NOT_TRADE", 45),
	}}

	out, err := newOrchestrator(p, time.Second).Run(context.Background(), snapshot, contracts.RegimeSideways, 30, nil)
	require.NoError(t, err)
	require.Len(t, out.Opinions, 2)
	assert.Equal(t, []string{prompt.ValueBull.Key}, out.Absent)
	assert.Equal(t, contracts.DecisionSkip, out.Decision.Strategy.Decision)
}

func TestOrchestrator_AllAbsent(t *testing.T) {
	t.Run("all timed out", func(t *testing.T) {
		tradable := answer("A", "TRADABLE", "SNIPE_DIP", 90)
		p := &personaProvider{
			answers: map[string]string{"Bull": tradable, "Bear": tradable, "Quant": tradable},
			delay:   map[string]time.Duration{"Bull": time.Second, "Bear": time.Second, "Quant": time.Second},
		}
		_, err := newOrchestrator(p, 20*time.Millisecond).Run(context.Background(), snapshot, contracts.RegimeBull, 60, nil)
		var te *contracts.TimeoutError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "debate", te.Stage)
	})

	t.Run("mixed failures are a validation error", func(t *testing.T) {
		p := &personaProvider{
			answers: map[string]string{"Bull": "not json", "Bear": answer("A", "TRADABLE", "SNIPE_DIP", 90), "Quant": "{}"},
			delay:   map[string]time.Duration{"Bear": time.Second},
		}
		_, err := newOrchestrator(p, 20*time.Millisecond).Run(context.Background(), snapshot, contracts.RegimeBull, 60, nil)
		var ve *contracts.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "005930", ve.Code)
	})
}
