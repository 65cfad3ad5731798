package factors

import (
	"fmt"

	"github.com/wonny/scout/backend/internal/contracts"
)

// Definition describes one registered factor
type Definition struct {
	Key        string
	Name       string
	Category   contracts.FactorCategory
	MinBars    int // 값 계산에 필요한 최소 봉 수
	Calculator Calculator
}

// registry is fixed at process start and never mutated afterwards
// ⭐ SSOT: 팩터 목록은 이 테이블에서만 정의
var registry = []Definition{
	{contracts.FactorMomentum6M, "6개월 모멘텀", contracts.CategoryMomentum, 121, MomentumCalculator{Period: 120}},
	{contracts.FactorMomentum1M, "1개월 모멘텀", contracts.CategoryMomentum, 21, MomentumCalculator{Period: 20}},
	{contracts.FactorValuePER, "저PER", contracts.CategoryValue, 1, FundamentalCalculator{Metric: MetricPER, Negate: true}},
	{contracts.FactorValuePBR, "저PBR", contracts.CategoryValue, 1, FundamentalCalculator{Metric: MetricPBR, Negate: true}},
	{contracts.FactorQualityROE, "고ROE", contracts.CategoryQuality, 1, FundamentalCalculator{Metric: MetricROE}},
	{contracts.FactorTechnicalRSI, "RSI 과매도", contracts.CategoryTechnical, 15, RSIOversoldCalculator{Period: 14}},
	{contracts.FactorSupplyForeignBuy, "외국인 순매수", contracts.CategorySupply, 20, ForeignFlowCalculator{Window: 20}},
}

var registryIndex = func() map[string]int {
	m := make(map[string]int, len(registry))
	for i, d := range registry {
		if _, dup := m[d.Key]; dup {
			panic(fmt.Sprintf("duplicate factor key %q", d.Key))
		}
		m[d.Key] = i
	}
	return m
}()

// Library returns a copy of the registered factor definitions in registration order
func Library() []Definition {
	return append([]Definition(nil), registry...)
}

// Keys returns the registered factor keys in registration order
func Keys() []string {
	keys := make([]string, len(registry))
	for i, d := range registry {
		keys[i] = d.Key
	}
	return keys
}

// Lookup returns the definition for key
func Lookup(key string) (Definition, bool) {
	i, ok := registryIndex[key]
	if !ok {
		return Definition{}, false
	}
	return registry[i], true
}

// MinBars returns the lookback a factor needs, 0 for unknown keys
func MinBars(key string) int {
	d, ok := Lookup(key)
	if !ok {
		return 0
	}
	return d.MinBars
}
