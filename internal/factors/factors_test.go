package factors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/scout/backend/internal/contracts"
	"github.com/wonny/scout/backend/pkg/logger"
)

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func makeHistory(code string, closes []float64) contracts.StockHistory {
	h := contracts.StockHistory{Code: code}
	for i, c := range closes {
		h.Bars = append(h.Bars, contracts.Bar{
			Date:   day0.AddDate(0, 0, i),
			Close:  c,
			Volume: 1000,
		})
	}
	return h
}

func linear(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func TestMomentumCalculator(t *testing.T) {
	s := NewSeries(makeHistory("A", linear(21, 100, 1)))

	v, ok := MomentumCalculator{Period: 20}.Calculate(s, 20)
	require.True(t, ok)
	assert.InDelta(t, 20.0, v, 1e-9) // 120/100 - 1

	_, ok = MomentumCalculator{Period: 20}.Calculate(s, 19)
	assert.False(t, ok)
}

func TestRSIOversoldCalculator(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		want   float64
		ok     bool
	}{
		{"only gains", linear(15, 100, 1), 0, true},
		{"only losses", linear(15, 100, -1), 100, true},
		{"flat", linear(15, 100, 0), 0, false},
		{"too short", linear(10, 100, 1), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSeries(makeHistory("A", tt.closes))
			v, ok := RSIOversoldCalculator{Period: 14}.Calculate(s, s.Len()-1)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, v, 1e-9)
			}
		})
	}

	// equal gains and losses -> RSI 50
	closes := []float64{100}
	for i := 0; i < 14; i++ {
		if i%2 == 0 {
			closes = append(closes, 101)
		} else {
			closes = append(closes, 100)
		}
	}
	s := NewSeries(makeHistory("A", closes))
	v, ok := RSIOversoldCalculator{Period: 14}.Calculate(s, 14)
	require.True(t, ok)
	assert.InDelta(t, 50.0, v, 1e-9)
}

func TestFundamentalCalculator_AsOf(t *testing.T) {
	h := makeHistory("A", linear(10, 100, 0))
	h.Fundamentals = []contracts.Fundamental{
		{ReportDate: day0.AddDate(0, 0, 5), PER: 12, PBR: 1.5, ROE: 9},
		{ReportDate: day0.AddDate(0, 0, 2), PER: 8, PBR: 1.1, ROE: 11},
	}
	s := NewSeries(h)

	per := FundamentalCalculator{Metric: MetricPER, Negate: true}
	_, ok := per.Calculate(s, 1)
	assert.False(t, ok, "no report before day 2")

	v, ok := per.Calculate(s, 3)
	require.True(t, ok)
	assert.Equal(t, -8.0, v)

	v, ok = per.Calculate(s, 9)
	require.True(t, ok)
	assert.Equal(t, -12.0, v)

	v, ok = FundamentalCalculator{Metric: MetricROE}.Calculate(s, 9)
	require.True(t, ok)
	assert.Equal(t, 9.0, v)
}

func TestForeignFlowCalculator(t *testing.T) {
	h := makeHistory("A", linear(20, 100, 0))
	for i := 0; i < 20; i++ {
		h.Flows = append(h.Flows, contracts.Flow{Date: day0.AddDate(0, 0, i), ForeignNet: 5000})
	}
	s := NewSeries(h)

	v, ok := ForeignFlowCalculator{Window: 20}.Calculate(s, 19)
	require.True(t, ok)
	// net 100,000 over average traded value 100,000
	assert.InDelta(t, 1.0, v, 1e-9)

	_, ok = ForeignFlowCalculator{Window: 20}.Calculate(s, 18)
	assert.False(t, ok)
}

func TestLibrary(t *testing.T) {
	keys := Keys()
	assert.Len(t, keys, 7)
	assert.Equal(t, contracts.FactorMomentum6M, keys[0])

	lib := Library()
	lib[0].Key = "mutated"
	assert.Equal(t, contracts.FactorMomentum6M, Keys()[0], "library copy must not alias the registry")

	assert.Equal(t, 121, MinBars(contracts.FactorMomentum6M))
	assert.Equal(t, 0, MinBars("unknown"))
}

func TestEngine_Score(t *testing.T) {
	engine := NewEngine(logger.Nop())
	snap := &contracts.FactorSnapshot{
		StockCode: "A",
		Bars:      200,
		Values: map[string]float64{
			contracts.FactorMomentum6M: 10,
			contracts.FactorValuePER:   -8,
		},
	}
	weights := map[string]float64{
		contracts.FactorMomentum6M: 0.5,
		contracts.FactorValuePER:   0.25,
		contracts.FactorQualityROE: 0.25, // missing value contributes 0
	}

	composite, breakdown, err := engine.Score(snap, weights)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, composite, 1e-12)
	assert.InDelta(t, 5.0, breakdown[contracts.FactorMomentum6M], 1e-12)
	assert.NotContains(t, breakdown, contracts.FactorQualityROE)
	assert.Equal(t, []string{contracts.FactorMomentum6M}, Tags(breakdown))
}

func TestEngine_Score_HighWeightShortHistory(t *testing.T) {
	engine := NewEngine(logger.Nop())
	snap := &contracts.FactorSnapshot{StockCode: "A", Bars: 50, Values: map[string]float64{}}

	_, _, err := engine.Score(snap, map[string]float64{contracts.FactorMomentum6M: 0.4})
	var dataErr *contracts.DataError
	require.True(t, errors.As(err, &dataErr))
	assert.Equal(t, contracts.FactorMomentum6M, dataErr.Field)

	// below the threshold the factor is simply skipped
	_, _, err = engine.Score(snap, map[string]float64{contracts.FactorMomentum6M: 0.05})
	assert.NoError(t, err)
}

func TestEngine_Snapshot(t *testing.T) {
	engine := NewEngine(logger.Nop())

	_, err := engine.Snapshot(NewSeries(contracts.StockHistory{Code: "EMPTY"}))
	var dataErr *contracts.DataError
	assert.True(t, errors.As(err, &dataErr))

	snap, err := engine.Snapshot(NewSeries(makeHistory("A", linear(130, 100, 1))))
	require.NoError(t, err)
	assert.Equal(t, 130, snap.Bars)
	assert.Contains(t, snap.Values, contracts.FactorMomentum6M)
	assert.Contains(t, snap.Values, contracts.FactorMomentum1M)
	assert.NotContains(t, snap.Values, contracts.FactorValuePER)
}

func TestBucketFor(t *testing.T) {
	tests := []struct {
		name string
		cap  *float64
		want contracts.MarketCapBucket
	}{
		{"nil", nil, contracts.BucketUnknown},
		{"zero", contracts.Float(0), contracts.BucketUnknown},
		{"large boundary", contracts.Float(10e12), contracts.BucketLarge},
		{"mid boundary", contracts.Float(1e12), contracts.BucketMid},
		{"just under mid", contracts.Float(1e12 - 1), contracts.BucketSmall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BucketFor(tt.cap))
		})
	}
}

type fakeStore struct {
	gen *contracts.WeightGeneration
	err error
}

func (f *fakeStore) PublishGeneration(ctx context.Context, gen *contracts.WeightGeneration) error {
	f.gen = gen
	return nil
}

func (f *fakeStore) LatestGeneration(ctx context.Context) (*contracts.WeightGeneration, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.gen == nil {
		return nil, contracts.ErrNoGeneration
	}
	return f.gen, nil
}

func (f *fakeStore) ListGenerations(ctx context.Context, limit int) ([]*contracts.WeightGeneration, error) {
	return nil, nil
}

func TestWeightSource(t *testing.T) {
	store := &fakeStore{}
	ws := NewWeightSource(store, logger.Nop())
	ctx := context.Background()

	gen, err := ws.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultGenerationID, gen.ID)
	assert.True(t, ws.Stale(time.Now(), time.Hour))

	sum := 0.0
	for _, w := range gen.Weights {
		sum += w.Weight
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	store.gen = &contracts.WeightGeneration{ID: "g1", ComputedAt: time.Now()}
	gen, err = ws.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "g1", gen.ID)
	assert.False(t, ws.Stale(time.Now(), time.Hour))

	store.err = errors.New("db down")
	gen, err = ws.Refresh(ctx)
	assert.Error(t, err)
	assert.Equal(t, "g1", gen.ID)
	assert.Equal(t, "g1", ws.Current().ID)
}

func TestNormalizeScore(t *testing.T) {
	assert.Equal(t, 50.0, NormalizeScore(0))
	assert.Greater(t, NormalizeScore(5), 50.0)
	assert.Less(t, NormalizeScore(-5), 50.0)
	assert.LessOrEqual(t, NormalizeScore(1e6), 100.0)
	assert.GreaterOrEqual(t, NormalizeScore(-1e6), 0.0)
}
