package repos

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/scout/backend/internal/contracts"
)

// LoadHistory assembles one stock's bars, fundamentals and flows for [from, to]
func LoadHistory(ctx context.Context, md contracts.MarketDataProvider, code string, from, to time.Time) (contracts.StockHistory, error) {
	h := contracts.StockHistory{Code: code}

	bars, err := md.GetBars(ctx, code, from, to)
	if err != nil {
		return h, err
	}
	// 분기 재무는 윈도우 시작 이전 최신 보고서도 필요
	funds, err := md.GetFundamentals(ctx, code, from.AddDate(0, -6, 0), to)
	if err != nil {
		return h, err
	}
	flows, err := md.GetFlows(ctx, code, from, to)
	if err != nil {
		return h, err
	}

	h.Bars, h.Fundamentals, h.Flows = bars, funds, flows
	return h, nil
}

// LoadHistories loads many stocks with at most workers concurrent loads.
// Per-stock failures are returned in the map and do not stop the others.
func LoadHistories(ctx context.Context, md contracts.MarketDataProvider, codes []string, from, to time.Time, workers int) ([]contracts.StockHistory, map[string]error) {
	if workers < 1 {
		workers = 1
	}

	out := make([]contracts.StockHistory, len(codes))
	ok := make([]bool, len(codes))
	failed := make(map[string]error)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, code := range codes {
		g.Go(func() error {
			h, err := LoadHistory(gctx, md, code, from, to)
			if err != nil {
				mu.Lock()
				failed[code] = fmt.Errorf("load history: %w", err)
				mu.Unlock()
				return nil
			}
			out[i], ok[i] = h, true
			return nil
		})
	}
	_ = g.Wait()

	histories := make([]contracts.StockHistory, 0, len(codes))
	for i := range out {
		if ok[i] {
			histories = append(histories, out[i])
		}
	}
	return histories, failed
}
