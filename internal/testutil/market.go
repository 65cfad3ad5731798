// Package testutil holds in-memory fakes shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/wonny/scout/backend/internal/contracts"
)

// Market is an in-memory contracts.MarketDataProvider
type Market struct {
	mu         sync.RWMutex
	Stocks     map[string]contracts.StockInfo
	Bars       map[string][]contracts.Bar
	Funds      map[string][]contracts.Fundamental
	Flows      map[string][]contracts.Flow
	MarketCaps map[string]float64
	IndexErr   error
}

// NewMarket creates an empty market
func NewMarket() *Market {
	return &Market{
		Stocks:     make(map[string]contracts.StockInfo),
		Bars:       make(map[string][]contracts.Bar),
		Funds:      make(map[string][]contracts.Fundamental),
		Flows:      make(map[string][]contracts.Flow),
		MarketCaps: make(map[string]float64),
	}
}

// AddStock registers a stock with a price path and one fundamentals row
func (m *Market) AddStock(info contracts.StockInfo, bars []contracts.Bar, fund contracts.Fundamental, marketCap float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stocks[info.Code] = info
	m.Bars[info.Code] = bars
	m.Funds[info.Code] = []contracts.Fundamental{fund}
	m.MarketCaps[info.Code] = marketCap

	flows := make([]contracts.Flow, len(bars))
	for i, b := range bars {
		flows[i] = contracts.Flow{Date: b.Date, ForeignNet: int64(b.Close) * 100}
	}
	m.Flows[info.Code] = flows
}

// AddIndex registers index bars
func (m *Market) AddIndex(code string, bars []contracts.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Bars[code] = bars
}

func (m *Market) ListActiveStocks(ctx context.Context) ([]contracts.StockInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]contracts.StockInfo, 0, len(m.Stocks))
	for _, s := range m.Stocks {
		out = append(out, s)
	}
	sortStocks(out)
	return out, nil
}

func (m *Market) GetStock(ctx context.Context, code string) (*contracts.StockInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.Stocks[code]
	if !ok {
		return nil, &contracts.DataError{Code: code, Message: "stock not found"}
	}
	return &s, nil
}

func (m *Market) GetBars(ctx context.Context, code string, from, to time.Time) ([]contracts.Bar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []contracts.Bar
	for _, b := range m.Bars[code] {
		if !b.Date.Before(from) && !b.Date.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *Market) GetFundamentals(ctx context.Context, code string, from, to time.Time) ([]contracts.Fundamental, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []contracts.Fundamental
	for _, f := range m.Funds[code] {
		if !f.ReportDate.Before(from) && !f.ReportDate.After(to) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *Market) GetFlows(ctx context.Context, code string, from, to time.Time) ([]contracts.Flow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []contracts.Flow
	for _, f := range m.Flows[code] {
		if !f.Date.Before(from) && !f.Date.After(to) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *Market) GetMarketCap(ctx context.Context, code string, asOf time.Time) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.MarketCaps[code], nil
}

func (m *Market) GetIndexBars(ctx context.Context, indexCode string, from, to time.Time) ([]contracts.Bar, error) {
	if m.IndexErr != nil {
		return nil, m.IndexErr
	}
	return m.GetBars(ctx, indexCode, from, to)
}

// TrendBars returns n daily bars ending at end whose close moves linearly
// from start by step per bar
func TrendBars(end time.Time, n int, start, step float64) []contracts.Bar {
	bars := make([]contracts.Bar, n)
	for i := 0; i < n; i++ {
		c := start + step*float64(i)
		bars[i] = contracts.Bar{
			Date:   end.AddDate(0, 0, i-n+1),
			Open:   c,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1_000_000,
		}
	}
	return bars
}

// Date is a UTC calendar date
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sortStocks(s []contracts.StockInfo) {
	sort.Slice(s, func(i, j int) bool { return s[i].Code < s[j].Code })
}

// WeightStore is an in-memory contracts.WeightStore and PerformanceStore
type WeightStore struct {
	mu          sync.Mutex
	Generations []*contracts.WeightGeneration
	Performance []contracts.FactorPerformance
	LatestErr   error
}

func (w *WeightStore) PublishGeneration(ctx context.Context, gen *contracts.WeightGeneration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, g := range w.Generations {
		if g.ID == gen.ID {
			return fmt.Errorf("duplicate generation %s", gen.ID)
		}
	}
	if n := len(w.Generations); n > 0 && !gen.ComputedAt.After(w.Generations[n-1].ComputedAt) {
		return contracts.ErrStaleGeneration
	}
	w.Generations = append(w.Generations, gen)
	return nil
}

func (w *WeightStore) LatestGeneration(ctx context.Context) (*contracts.WeightGeneration, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.LatestErr != nil {
		return nil, w.LatestErr
	}
	if len(w.Generations) == 0 {
		return nil, contracts.ErrNoGeneration
	}
	return w.Generations[len(w.Generations)-1], nil
}

func (w *WeightStore) ListGenerations(ctx context.Context, limit int) ([]*contracts.WeightGeneration, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []*contracts.WeightGeneration
	for i := len(w.Generations) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, w.Generations[i])
	}
	return out, nil
}

func (w *WeightStore) AppendPerformance(ctx context.Context, records []contracts.FactorPerformance) ([]int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]int64, len(records))
	for i, r := range records {
		r.ID = int64(len(w.Performance) + 1)
		w.Performance = append(w.Performance, r)
		ids[i] = r.ID
	}
	return ids, nil
}

func (w *WeightStore) ListPerformance(ctx context.Context, generationID string) ([]contracts.FactorPerformance, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []contracts.FactorPerformance
	for _, r := range w.Performance {
		if r.GenerationID == generationID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (w *WeightStore) MarkApplied(ctx context.Context, id int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.Performance {
		if w.Performance[i].ID != id {
			continue
		}
		if w.Performance[i].Applied {
			return contracts.ErrAlreadyApplied
		}
		now := time.Now()
		w.Performance[i].Applied = true
		w.Performance[i].AppliedAt = &now
		return nil
	}
	return fmt.Errorf("performance record %d not found", id)
}

// SyntheticUniverse builds stocks whose daily drift rises with ROE, so that
// quality_roe carries a significant forward-return signal
func SyntheticUniverse(stocks, bars int) []contracts.StockHistory {
	rng := rand.New(rand.NewSource(42))
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

	var out []contracts.StockHistory
	for s := 0; s < stocks; s++ {
		roe := float64(s + 1)
		drift := -0.002 + 0.0002*roe
		h := contracts.StockHistory{
			Code:         string(rune('A'+s%26)) + string(rune('0'+s/26)),
			Fundamentals: []contracts.Fundamental{{ReportDate: start, ROE: roe}},
		}
		price := 10000.0
		for i := 0; i < bars; i++ {
			price *= 1 + drift + rng.NormFloat64()*0.01
			h.Bars = append(h.Bars, contracts.Bar{
				Date:   start.AddDate(0, 0, i),
				Close:  price,
				Volume: 1000,
			})
		}
		out = append(out, h)
	}
	return out
}

// AddHistory registers a stock from a prepared history
func (m *Market) AddHistory(h contracts.StockHistory, marketCap float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stocks[h.Code] = contracts.StockInfo{Code: h.Code, Name: h.Code}
	m.Bars[h.Code] = h.Bars
	m.Funds[h.Code] = h.Fundamentals
	m.Flows[h.Code] = h.Flows
	m.MarketCaps[h.Code] = marketCap
}
