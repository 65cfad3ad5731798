package factors

import (
	"sort"
	"time"

	"github.com/wonny/scout/backend/internal/contracts"
)

// Series is one stock's aligned history, oldest-first.
// Fundamentals and flows are resolved as-of each bar date.
type Series struct {
	Code string
	Bars []contracts.Bar

	fundamentals []contracts.Fundamental
	fundIdx      []int // bar index -> latest fundamental index (-1: none)
	flowByDate   map[time.Time]int64
}

// NewSeries sorts and aligns a stock history
func NewSeries(h contracts.StockHistory) *Series {
	bars := append([]contracts.Bar(nil), h.Bars...)
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	funds := append([]contracts.Fundamental(nil), h.Fundamentals...)
	sort.Slice(funds, func(i, j int) bool { return funds[i].ReportDate.Before(funds[j].ReportDate) })

	s := &Series{
		Code:         h.Code,
		Bars:         bars,
		fundamentals: funds,
		fundIdx:      make([]int, len(bars)),
		flowByDate:   make(map[time.Time]int64, len(h.Flows)),
	}

	j := -1
	for i, b := range bars {
		for j+1 < len(funds) && !funds[j+1].ReportDate.After(b.Date) {
			j++
		}
		s.fundIdx[i] = j
	}

	for _, f := range h.Flows {
		s.flowByDate[dateKey(f.Date)] = f.ForeignNet
	}
	return s
}

// Len returns the number of bars
func (s *Series) Len() int {
	return len(s.Bars)
}

// Close returns the close at bar i
func (s *Series) Close(i int) float64 {
	return s.Bars[i].Close
}

// FundamentalAt returns the latest fundamental reported on or before bar i
func (s *Series) FundamentalAt(i int) (contracts.Fundamental, bool) {
	if i < 0 || i >= len(s.fundIdx) || s.fundIdx[i] < 0 {
		return contracts.Fundamental{}, false
	}
	return s.fundamentals[s.fundIdx[i]], true
}

// ForeignNetAt returns foreign net-buy on bar i's date
func (s *Series) ForeignNetAt(i int) (int64, bool) {
	v, ok := s.flowByDate[dateKey(s.Bars[i].Date)]
	return v, ok
}

// ForwardReturn returns close[i+h]/close[i]-1
func (s *Series) ForwardReturn(i, h int) (float64, bool) {
	if i+h >= len(s.Bars) || s.Bars[i].Close <= 0 {
		return 0, false
	}
	return s.Bars[i+h].Close/s.Bars[i].Close - 1, true
}

func dateKey(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
