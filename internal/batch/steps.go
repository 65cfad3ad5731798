package batch

import (
	"fmt"
	"strings"

	"github.com/wonny/scout/backend/internal/strategyconfig"
)

// Step is one stage of the calibration batch
type Step string

const (
	StepNews       Step = "news"
	StepTag        Step = "tag"
	StepDart       Step = "dart"
	StepTrading    Step = "trading"
	StepFinancials Step = "financials"
	StepAnalysis   Step = "analysis"
)

// stepPolicy describes how one step runs
type stepPolicy struct {
	Step            Step
	Collect         bool // 외부 수집기 호출 여부
	FullRefreshOnly bool
	// Days returns the collection window for the run
	Days func(b strategyconfig.Batch, days int) int
}

func sameDays(_ strategyconfig.Batch, days int) int { return days }

// policyTable is the fixed step order
// ⭐ SSOT: 배치 단계 순서와 정책은 이 테이블에서만
var policyTable = []stepPolicy{
	{Step: StepNews, Collect: true, Days: sameDays},
	{Step: StepTag, Collect: true, Days: func(b strategyconfig.Batch, days int) int { return days + b.TagExtraDays }},
	{Step: StepDart, Collect: true, Days: sameDays},
	{Step: StepTrading, Collect: true, Days: sameDays},
	{Step: StepFinancials, Collect: true, FullRefreshOnly: true, Days: sameDays},
	// 분석은 항상 전체 기간으로
	{Step: StepAnalysis, Days: func(b strategyconfig.Batch, _ int) int { return b.FullRefreshDays }},
}

// AllSteps returns every step in run order
func AllSteps() []Step {
	out := make([]Step, len(policyTable))
	for i, p := range policyTable {
		out[i] = p.Step
	}
	return out
}

// ParseStep parses a step name
func ParseStep(s string) (Step, error) {
	switch Step(strings.ToLower(strings.TrimSpace(s))) {
	case StepNews:
		return StepNews, nil
	case StepTag:
		return StepTag, nil
	case StepDart:
		return StepDart, nil
	case StepTrading:
		return StepTrading, nil
	case StepFinancials:
		return StepFinancials, nil
	case StepAnalysis:
		return StepAnalysis, nil
	default:
		return "", fmt.Errorf("unknown step %q (available: %s)", s, joinSteps(AllSteps()))
	}
}

func policyFor(step Step) stepPolicy {
	for _, p := range policyTable {
		if p.Step == step {
			return p
		}
	}
	// ParseStep guards every entry point
	panic(fmt.Sprintf("no policy for step %q", step))
}

func joinSteps(steps []Step) string {
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
