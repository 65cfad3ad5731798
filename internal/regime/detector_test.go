package regime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/scout/backend/internal/contracts"
)

func indexSeries(n int, first, last float64) []contracts.Bar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]contracts.Bar, n)
	for i := range bars {
		bars[i] = contracts.Bar{Date: start.AddDate(0, 0, i), Close: first}
	}
	bars[n-1].Close = last
	return bars
}

func TestClassify_Boundaries(t *testing.T) {
	d := NewDetector()
	tests := []struct {
		ret  float64
		want contracts.RegimeLabel
	}{
		{0.10, contracts.RegimeBull},
		{-0.10, contracts.RegimeBear},
		{0.0999, contracts.RegimeSideways},
		{-0.0999, contracts.RegimeSideways},
		{0.35, contracts.RegimeBull},
		{-0.5, contracts.RegimeBear},
		{0, contracts.RegimeSideways},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, d.Classify(tt.ret), "return %v", tt.ret)
	}
}

func TestDetect(t *testing.T) {
	d := NewDetector()
	tests := []struct {
		name         string
		bars         []contracts.Bar
		want         contracts.RegimeLabel
		insufficient bool
	}{
		{"exact +10% over window", indexSeries(120, 100, 110), contracts.RegimeBull, false},
		{"exact -10% over window", indexSeries(120, 100, 90), contracts.RegimeBear, false},
		{"+9.99%", indexSeries(120, 1000, 1099.9), contracts.RegimeSideways, false},
		{"short but usable", indexSeries(30, 100, 120), contracts.RegimeBull, false},
		{"too short", indexSeries(29, 100, 200), contracts.RegimeSideways, true},
		{"empty", nil, contracts.RegimeSideways, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := d.Detect(tt.bars)
			assert.Equal(t, tt.want, state.Label)
			assert.Equal(t, tt.insufficient, state.Insufficient)
		})
	}
}

func TestDetect_UsesTrailingWindow(t *testing.T) {
	bars := indexSeries(200, 100, 100)
	// 윈도우 밖의 급락은 무시
	bars[0].Close = 50
	bars[80].Close = 100
	bars[199].Close = 112

	state := NewDetector().Detect(bars)
	assert.Equal(t, contracts.RegimeBull, state.Label)
	assert.InDelta(t, 0.12, state.TrailingReturn, 1e-9)
	assert.Equal(t, bars[199].Date, state.AsOf)
}
