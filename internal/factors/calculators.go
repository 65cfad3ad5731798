package factors

import (
	"math"
)

// Calculator computes one factor value at bar i of a series.
// ok=false means the value is undefined at i (not enough data, missing input).
type Calculator interface {
	Calculate(s *Series, i int) (value float64, ok bool)
}

// MomentumCalculator is the percent change over Period bars
// ⭐ SSOT: 모멘텀 팩터 계산은 여기서만
type MomentumCalculator struct {
	Period int
}

// Calculate returns (close[i]/close[i-Period] - 1) * 100
func (c MomentumCalculator) Calculate(s *Series, i int) (float64, bool) {
	if i < c.Period || i >= s.Len() {
		return 0, false
	}
	past := s.Close(i - c.Period)
	if past <= 0 {
		return 0, false
	}
	return (s.Close(i)/past - 1) * 100, true
}

// ValueMetric selects a fundamentals field
type ValueMetric int

const (
	MetricPER ValueMetric = iota
	MetricPBR
	MetricROE
)

// FundamentalCalculator reads a fundamentals field as-of bar i.
// Negate flips lower-is-better metrics (PER, PBR) so that higher is always better.
type FundamentalCalculator struct {
	Metric ValueMetric
	Negate bool
}

// Calculate returns the as-of metric, optionally negated
func (c FundamentalCalculator) Calculate(s *Series, i int) (float64, bool) {
	f, ok := s.FundamentalAt(i)
	if !ok {
		return 0, false
	}

	var v float64
	switch c.Metric {
	case MetricPER:
		v = f.PER
	case MetricPBR:
		v = f.PBR
	case MetricROE:
		v = f.ROE
	default:
		return 0, false
	}
	// 0은 미수집 값으로 취급
	if v == 0 || math.IsNaN(v) {
		return 0, false
	}
	if c.Negate {
		v = -v
	}
	return v, true
}

// RSIOversoldCalculator returns 100 - RSI(Period) using simple rolling means
type RSIOversoldCalculator struct {
	Period int
}

// Calculate returns 100 - RSI; higher means more oversold
func (c RSIOversoldCalculator) Calculate(s *Series, i int) (float64, bool) {
	if i < c.Period || i >= s.Len() {
		return 0, false
	}

	var gains, losses float64
	for k := i - c.Period + 1; k <= i; k++ {
		change := s.Close(k) - s.Close(k-1)
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	if gains == 0 && losses == 0 {
		return 0, false
	}
	if losses == 0 {
		return 0, true // RSI 100
	}

	rs := gains / losses
	rsi := 100 - 100/(1+rs)
	return 100 - rsi, true
}

// ForeignFlowCalculator is foreign net-buy value over Window days divided by
// average traded value over the same window
type ForeignFlowCalculator struct {
	Window int
}

// Calculate returns the window's net-buy intensity
func (c ForeignFlowCalculator) Calculate(s *Series, i int) (float64, bool) {
	if i+1 < c.Window || i >= s.Len() {
		return 0, false
	}

	var netSum float64
	var tradedSum float64
	days := 0
	for k := i - c.Window + 1; k <= i; k++ {
		b := s.Bars[k]
		tradedSum += b.Close * float64(b.Volume)
		if v, ok := s.ForeignNetAt(k); ok {
			netSum += float64(v)
			days++
		}
	}

	if days == 0 || tradedSum <= 0 {
		return 0, false
	}
	avgTraded := tradedSum / float64(c.Window)
	return netSum / avgTraded, true
}
