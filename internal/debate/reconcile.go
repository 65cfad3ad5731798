package debate

import (
	"fmt"
	"strings"

	"github.com/wonny/scout/backend/internal/contracts"
	"github.com/wonny/scout/backend/internal/strategyconfig"
)

// Opinion is one persona's validated decision
type Opinion struct {
	PersonaKey  string                       `json:"persona_key"`
	PersonaName string                       `json:"persona_name"`
	Stance      string                       `json:"stance"`
	Decision    contracts.StructuredDecision `json:"decision"`
}

// Reconcile merges persona opinions into one decision.
//
//   - grade: the lowest grade, unless more than half agree on one higher grade
//     (exactly half follows tiePolicy)
//   - any TRADABLE: TRADABLE with the minimum confidence among TRADABLE opinions
//     and that opinion's strategy type
//   - no TRADABLE: SKIP / DO_NOT_TRADE / 0
//   - risk: the most severe level per axis
func Reconcile(symbol string, opinions []Opinion, tiePolicy string) (*contracts.StructuredDecision, error) {
	if len(opinions) == 0 {
		return nil, fmt.Errorf("reconcile %s: no opinions", symbol)
	}

	out := &contracts.StructuredDecision{
		Symbol:   symbol,
		LLMGrade: reconcileGrade(opinions, tiePolicy),
	}

	// 가장 보수적인 TRADABLE 의견 선택
	var chosen *Opinion
	for i := range opinions {
		o := &opinions[i]
		if o.Decision.Strategy.Decision != contracts.DecisionTradable {
			continue
		}
		if chosen == nil || o.Decision.Strategy.Confidence < chosen.Decision.Strategy.Confidence {
			chosen = o
		}
	}

	if chosen != nil {
		out.Strategy = contracts.Strategy{
			Decision:   contracts.DecisionTradable,
			Type:       chosen.Decision.Strategy.Type,
			Confidence: chosen.Decision.Strategy.Confidence,
		}
		out.SuggestedEntryFocus = chosen.Decision.SuggestedEntryFocus
	} else {
		out.Strategy = contracts.Strategy{
			Decision:   contracts.DecisionSkip,
			Type:       contracts.StrategyDoNotTrade,
			Confidence: 0,
		}
	}
	out.Strategy.Rationale = joinRationales(opinions)

	for _, o := range opinions {
		out.Risk.Volatility = contracts.MaxRisk(out.Risk.Volatility, o.Decision.Risk.Volatility)
		out.Risk.Fundamental = contracts.MaxRisk(out.Risk.Fundamental, o.Decision.Risk.Fundamental)
	}

	return out, nil
}

func reconcileGrade(opinions []Opinion, tiePolicy string) contracts.Grade {
	n := len(opinions)
	counts := make(map[contracts.Grade]int, len(contracts.AllGrades))
	lowest := opinions[0].Decision.LLMGrade
	for _, o := range opinions {
		counts[o.Decision.LLMGrade]++
		if o.Decision.LLMGrade.Rank() > lowest.Rank() {
			lowest = o.Decision.LLMGrade
		}
	}

	// AllGrades는 좋은 등급 순
	for _, g := range contracts.AllGrades {
		if g.Rank() >= lowest.Rank() {
			break
		}
		c := counts[g]
		if 2*c > n {
			return g
		}
		if 2*c == n && tiePolicy == strategyconfig.TiePolicyMajorityHalf {
			return g
		}
	}
	return lowest
}

func joinRationales(opinions []Opinion) string {
	parts := make([]string, 0, len(opinions))
	for _, o := range opinions {
		r := strings.TrimSpace(o.Decision.Strategy.Rationale)
		if r == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s(%s): %s", o.PersonaName, o.Stance, r))
	}
	return strings.Join(parts, " / ")
}
