package reasoning

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/scout/backend/internal/contracts"
)

const validResponse = `{
  "symbol": "005930",
  "llm_grade": "A",
  "market_regime_strategy": {
    "decision": "TRADABLE",
    "strategy_type": "SNIPE_DIP",
    "rationale": "과매도 구간의 우량주",
    "confidence_score": 85
  },
  "risk_assessment": {
    "volatility_risk": "MEDIUM",
    "fundamental_risk": "LOW"
  }
}`

func requireValidationError(t *testing.T, err error) *contracts.ValidationError {
	t.Helper()
	var verr *contracts.ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	return verr
}

func TestValidate_RoundTrip(t *testing.T) {
	d, err := NewValidator().Validate(validResponse)
	require.NoError(t, err)

	want := &contracts.StructuredDecision{
		Symbol:   "005930",
		LLMGrade: contracts.GradeA,
		Strategy: contracts.Strategy{
			Decision:   contracts.DecisionTradable,
			Type:       contracts.StrategySnipeDip,
			Rationale:  "과매도 구간의 우량주",
			Confidence: 85,
		},
		Risk: contracts.RiskAssessment{Volatility: contracts.RiskMedium, Fundamental: contracts.RiskLow},
	}
	assert.Equal(t, want, d)

	// 재직렬화 후 다시 검증해도 동일
	encoded, err := json.Marshal(d)
	require.NoError(t, err)
	again, err := NewValidator().Validate(string(encoded))
	require.NoError(t, err)
	assert.Equal(t, d, again)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string
	}{
		{"unknown grade", strings.Replace(validResponse, `"llm_grade": "A"`, `"llm_grade": "X"`, 1), "llm_grade"},
		{"confidence above range", strings.Replace(validResponse, `85`, `101`, 1), "market_regime_strategy.confidence_score"},
		{"confidence below range", strings.Replace(validResponse, `85`, `-1`, 1), "market_regime_strategy.confidence_score"},
		{"empty symbol", strings.Replace(validResponse, `"005930"`, `""`, 1), "symbol"},
		{"missing risk", strings.Replace(validResponse, `"risk_assessment"`, `"risk"`, 1), "risk_assessment"},
		{"unknown decision", strings.Replace(validResponse, `"TRADABLE"`, `"BUY"`, 1), "market_regime_strategy.decision"},
		{"lowercase strategy", strings.Replace(validResponse, `"SNIPE_DIP"`, `"snipe_dip"`, 1), "market_regime_strategy.strategy_type"},
		{"fractional confidence", strings.Replace(validResponse, `85`, `85.5`, 1), "market_regime_strategy.confidence_score"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewValidator().Validate(tt.raw)
			assert.Nil(t, d)
			verr := requireValidationError(t, err)
			assert.True(t, verr.HasField(tt.field), "fields: %+v", verr.Fields)
		})
	}
}

func TestValidate_ListsAllFailures(t *testing.T) {
	raw := `{"symbol": "", "llm_grade": "Z", "market_regime_strategy": {"decision": "TRADABLE", "strategy_type": "SNIPE_DIP", "rationale": "r", "confidence_score": 200}}`

	_, err := NewValidator().Validate(raw)
	verr := requireValidationError(t, err)
	for _, f := range []string{"symbol", "llm_grade", "market_regime_strategy.confidence_score", "risk_assessment"} {
		assert.True(t, verr.HasField(f), "missing %s in %+v", f, verr.Fields)
	}
}

func TestValidate_CodeFencesAndProse(t *testing.T) {
	raw := "분석 결과입니다.\n```json\n" + validResponse + "\n```\n감사합니다 {not json}"
	d, err := NewValidator().Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, "005930", d.Symbol)
}

func TestValidate_SkipsBracedProse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"braced note before object", "see {note} below\n" + validResponse},
		{"placeholder object before answer", "template: {symbol: ...}\n```json\n" + validResponse + "\n```"},
		{"unrelated JSON before answer", `{"status": "thinking"}` + "\n" + validResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewValidator().Validate(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, "005930", d.Symbol)
		})
	}
}

func TestValidate_OnlyBracedProse(t *testing.T) {
	_, err := NewValidator().Validate("see {note} and {another}")
	verr := requireValidationError(t, err)
	assert.Equal(t, "malformed JSON", verr.Message)
}

func TestValidate_NoJSON(t *testing.T) {
	_, err := NewValidator().Validate("I cannot answer that.")
	requireValidationError(t, err)
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{`x {"a": "}"} y`, `{"a": "}"}`, true},
		{`{"a": {"b": 1}} {"c": 2}`, `{"a": {"b": 1}}`, true},
		{`{"a": "\"{"}`, `{"a": "\"{"}`, true},
		{`{"a": 1`, "", false},
		{`see {note} {"c": 2}`, `{"c": 2}`, true},
		{`{"outer": {bad}, "x": {"c": 2}}`, `{"c": 2}`, true},
		{`{note} {other}`, "", false},
		{`none`, "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractJSONObject(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
