package contracts

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGrade(t *testing.T) {
	for _, g := range AllGrades {
		parsed, err := ParseGrade(string(g))
		require.NoError(t, err)
		assert.Equal(t, g, parsed)
	}

	for _, bad := range []string{"X", "", "a", "B+"} {
		_, err := ParseGrade(bad)
		assert.Error(t, err, bad)
	}
}

func TestGrade_AtLeast(t *testing.T) {
	tests := []struct {
		grade Grade
		min   Grade
		want  bool
	}{
		{GradeS, GradeB, true},
		{GradeA, GradeB, true},
		{GradeB, GradeB, true},
		{GradeC, GradeB, false},
		{GradeD, GradeS, false},
		{Grade("X"), GradeD, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_vs_%s", tt.grade, tt.min), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.grade.AtLeast(tt.min))
		})
	}
}

func TestParseEnums(t *testing.T) {
	_, err := ParseDecision("BUY")
	assert.Error(t, err)
	_, err = ParseStrategyType("SCALP")
	assert.Error(t, err)
	_, err = ParseRiskLevel("EXTREME")
	assert.Error(t, err)
	_, err = ParseGateMode("audit")
	assert.Error(t, err)
	_, err = ParseRegimeLabel("CRASH")
	assert.Error(t, err)

	d, err := ParseDecision("TRADABLE")
	require.NoError(t, err)
	assert.Equal(t, DecisionTradable, d)
}

func TestMaxRisk(t *testing.T) {
	assert.Equal(t, RiskHigh, MaxRisk(RiskLow, RiskHigh))
	assert.Equal(t, RiskMedium, MaxRisk(RiskMedium, RiskLow))
	assert.Equal(t, RiskLow, MaxRisk(RiskLow, RiskLow))
}

func TestConfidenceForSamples(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, ConfidenceForSamples(30))
	assert.Equal(t, ConfidenceMid, ConfidenceForSamples(29))
	assert.Equal(t, ConfidenceMid, ConfidenceForSamples(15))
	assert.Equal(t, ConfidenceLow, ConfidenceForSamples(14))
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&DataError{Code: "005930", Message: "short history"}, "data"},
		{fmt.Errorf("wrapped: %w", &ValidationError{Message: "bad"}), "validation"},
		{&TimeoutError{Code: "005930", Stage: "reasoning"}, "timeout"},
		{&CalibrationError{Stage: "analysis"}, "calibration"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorKind(tt.err))
	}
}

func TestValidationError_ListsEveryField(t *testing.T) {
	err := &ValidationError{Fields: []FieldError{
		{Field: "symbol", Message: "required"},
		{Field: "llm_grade", Message: "unknown grade \"X\""},
	}}
	assert.True(t, err.HasField("symbol"))
	assert.True(t, err.HasField("llm_grade"))
	assert.False(t, err.HasField("risk_assessment"))
	assert.Contains(t, err.Error(), "symbol: required")
	assert.Contains(t, err.Error(), "llm_grade")
}

func TestWeightGeneration_WeightMap(t *testing.T) {
	gen := &WeightGeneration{Weights: []FactorWeight{
		{Key: FactorMomentum6M, Weight: 0.6},
		{Key: FactorValuePER, Weight: 0.4},
	}}
	m := gen.WeightMap()
	assert.InDelta(t, 0.6, m[FactorMomentum6M], 1e-12)
	assert.Len(t, m, 2)
}
