package calibration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/scout/backend/internal/contracts"
	"github.com/wonny/scout/backend/internal/factors"
	"github.com/wonny/scout/backend/pkg/logger"
)

// Config holds calibration parameters
type Config struct {
	Horizons         []int // 미래 수익률 기간 (거래일)
	LookbackYears    int
	MinBarsPerStock  int
	MinPairs         int // IC 계산 최소 쌍
	MinPooledSamples int // 팩터별 최소 표본
	RollingWindow    int // IR 윈도우당 거래일 수
	RecentWindow     time.Duration
	Blend            float64 // IR 비중 (나머지는 최근 IC)
	TCritical        float64
	MinStocks        int
}

// DefaultConfig returns the production calibration parameters
func DefaultConfig() Config {
	return Config{
		Horizons:         []int{5, 10, 20},
		LookbackYears:    2,
		MinBarsPerStock:  150,
		MinPairs:         30,
		MinPooledSamples: 100,
		RollingWindow:    60,
		RecentWindow:     90 * 24 * time.Hour,
		Blend:            0.5,
		TCritical:        1.96,
		MinStocks:        20,
	}
}

// HorizonStat is one factor's evidence at one forward horizon
type HorizonStat struct {
	Horizon   int
	IC        float64
	IR        float64
	RecentIC  float64
	HitRate   float64
	TopAvgRet float64
	TopCount  int
	Pairs     int
}

// FactorResult is one factor's aggregated backtest
type FactorResult struct {
	Key      string
	Horizons []HorizonStat
	Weight   contracts.FactorWeight
}

// Result is a successful calibration run
type Result struct {
	Generation  *contracts.WeightGeneration
	Factors     []FactorResult
	Performance []contracts.FactorPerformance
}

// Calibrator recomputes factor weights and publishes them write-then-swap
// ⭐ SSOT: 팩터 가중치 재계산은 여기서만
type Calibrator struct {
	cfg    Config
	store  contracts.WeightStore
	perf   contracts.PerformanceStore // nil이면 성과 기록 생략
	logger *logger.Logger
	mu     sync.Mutex
	now    func() time.Time

	runLock    contracts.RunLock // 프로세스 간 단일 실행 (선택)
	policyHash string
}

// RunLockName is the cross-process lock held for a whole calibration run
const RunLockName = "scout:calibration"

// NewCalibrator creates a calibrator
func NewCalibrator(cfg Config, store contracts.WeightStore, perf contracts.PerformanceStore, log *logger.Logger) *Calibrator {
	return &Calibrator{
		cfg:    cfg,
		store:  store,
		perf:   perf,
		logger: log.WithComponent("calibration"),
		now:    time.Now,
	}
}

// WithPolicyHash stamps published generations with the decision policy hash
func (c *Calibrator) WithPolicyHash(hash string) *Calibrator {
	c.policyHash = hash
	return c
}

// WithRunLock serializes runs across processes sharing the store
func (c *Calibrator) WithRunLock(lock contracts.RunLock) *Calibrator {
	c.runLock = lock
	return c
}

// Calibrate backtests every factor over the histories and publishes a new generation.
// Any CalibrationError leaves the store untouched.
func (c *Calibrator) Calibrate(ctx context.Context, histories []contracts.StockHistory, regime contracts.RegimeLabel) (*Result, error) {
	if !c.mu.TryLock() {
		return nil, &contracts.CalibrationError{Stage: "lock", Message: "calibration already running"}
	}
	defer c.mu.Unlock()

	if c.runLock != nil {
		release, ok, err := c.runLock.TryAcquire(ctx, RunLockName)
		if err != nil {
			return nil, &contracts.CalibrationError{Stage: "lock", Message: "acquire run lock", Err: err}
		}
		if !ok {
			return nil, &contracts.CalibrationError{Stage: "lock", Message: "calibration already running in another process"}
		}
		defer release()
	}

	result, err := c.compute(ctx, histories, regime)
	if err != nil {
		return nil, err
	}

	if err := c.publish(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// compute runs the backtests without touching any store
func (c *Calibrator) compute(ctx context.Context, histories []contracts.StockHistory, regime contracts.RegimeLabel) (*Result, error) {
	var eligible []*factors.Series
	for _, h := range histories {
		s := factors.NewSeries(h)
		if s.Len() < c.cfg.MinBarsPerStock {
			continue
		}
		eligible = append(eligible, s)
	}

	if len(eligible) < c.cfg.MinStocks {
		return nil, &contracts.CalibrationError{
			Stage:   "sample",
			Message: fmt.Sprintf("%d eligible stocks, need %d", len(eligible), c.cfg.MinStocks),
		}
	}

	defs := factors.Library()
	results := make([]FactorResult, len(defs))

	g, gctx := errgroup.WithContext(ctx)
	for i, def := range defs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = c.backtestFactor(def, eligible)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &contracts.CalibrationError{Stage: "backtest", Message: "factor backtest aborted", Err: err}
	}

	if err := c.assignWeights(results); err != nil {
		return nil, err
	}

	gen := &contracts.WeightGeneration{
		ID:            uuid.NewString(),
		ComputedAt:    c.now().UTC(),
		LookbackYears: c.cfg.LookbackYears,
		Regime:        regime,
		SampleStocks:  len(eligible),
		PolicyHash:    c.policyHash,
	}
	for _, r := range results {
		gen.Weights = append(gen.Weights, r.Weight)
	}

	return &Result{
		Generation:  gen,
		Factors:     results,
		Performance: c.performanceRecords(gen.ID, results),
	}, nil
}

type pair struct {
	date  time.Time
	value float64
	ret   float64
}

// backtestFactor pools (factor, forward return) pairs across stocks for every horizon
func (c *Calibrator) backtestFactor(def factors.Definition, series []*factors.Series) FactorResult {
	res := FactorResult{Key: def.Key}

	for _, h := range c.cfg.Horizons {
		pairs := c.pool(def, series, h)
		res.Horizons = append(res.Horizons, c.horizonStat(h, pairs))
	}

	var ics, irs, recents, hits []float64
	minPairs := math.MaxInt
	for _, hs := range res.Horizons {
		ics = append(ics, hs.IC)
		irs = append(irs, hs.IR)
		recents = append(recents, hs.RecentIC)
		hits = append(hits, hs.HitRate)
		if hs.Pairs < minPairs {
			minPairs = hs.Pairs
		}
	}
	if minPairs == math.MaxInt {
		minPairs = 0
	}

	ic := mean(ics)
	res.Weight = contracts.FactorWeight{
		Key:         def.Key,
		IC:          ic,
		IR:          mean(irs),
		RecentIC:    mean(recents),
		HitRate:     mean(hits),
		SampleCount: minPairs,
	}
	res.Weight.Significant = minPairs >= c.cfg.MinPooledSamples &&
		ic > 0 &&
		math.Abs(TStat(ic, minPairs)) >= c.cfg.TCritical

	c.logger.WithFields(map[string]interface{}{
		"factor":      def.Key,
		"ic":          res.Weight.IC,
		"ir":          res.Weight.IR,
		"recent_ic":   res.Weight.RecentIC,
		"hit_rate":    res.Weight.HitRate,
		"samples":     minPairs,
		"significant": res.Weight.Significant,
	}).Info("factor backtest complete")

	return res
}

// pool collects time-ordered pairs within the lookback window
func (c *Calibrator) pool(def factors.Definition, series []*factors.Series, horizon int) []pair {
	var pairs []pair
	var latest time.Time

	for _, s := range series {
		for i := 0; i+horizon < s.Len(); i++ {
			v, ok := def.Calculator.Calculate(s, i)
			if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			r, ok := s.ForwardReturn(i, horizon)
			if !ok {
				continue
			}
			d := s.Bars[i].Date
			if d.After(latest) {
				latest = d
			}
			pairs = append(pairs, pair{date: d, value: v, ret: r})
		}
	}

	cutoff := latest.AddDate(-c.cfg.LookbackYears, 0, 0)
	kept := pairs[:0]
	for _, p := range pairs {
		if !p.date.Before(cutoff) {
			kept = append(kept, p)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].date.Before(kept[j].date) })
	return kept
}

func (c *Calibrator) horizonStat(h int, pairs []pair) HorizonStat {
	hs := HorizonStat{Horizon: h, Pairs: len(pairs)}
	if len(pairs) == 0 {
		return hs
	}

	hs.IC = c.ic(pairs)

	// 비중첩 롤링 기간 IC의 평균/표준편차
	var windowICs []float64
	for _, w := range dateWindows(pairs, c.cfg.RollingWindow) {
		if len(w) < c.cfg.MinPairs {
			continue
		}
		if ic, ok := spearmanPairs(w); ok {
			windowICs = append(windowICs, ic)
		}
	}
	if sd := stddev(windowICs); sd > 0 {
		hs.IR = mean(windowICs) / sd
	}

	cutoff := pairs[len(pairs)-1].date.Add(-c.cfg.RecentWindow)
	recentStart := sort.Search(len(pairs), func(i int) bool { return !pairs[i].date.Before(cutoff) })
	hs.RecentIC = c.ic(pairs[recentStart:])

	values := make([]float64, len(pairs))
	for i, p := range pairs {
		values[i] = p.value
	}
	threshold := quantile(values, 0.8)
	var wins int
	var sum float64
	for _, p := range pairs {
		if p.value < threshold {
			continue
		}
		hs.TopCount++
		sum += p.ret
		if p.ret > 0 {
			wins++
		}
	}
	if hs.TopCount > 0 {
		hs.HitRate = float64(wins) / float64(hs.TopCount)
		hs.TopAvgRet = sum / float64(hs.TopCount)
	}
	return hs
}

// dateWindows splits date-sorted pairs into consecutive non-overlapping windows
// of size distinct dates. A trailing partial window is dropped.
func dateWindows(pairs []pair, size int) [][]pair {
	if size <= 0 {
		return nil
	}

	var windows [][]pair
	start, dates := 0, 0
	for i := range pairs {
		if i > 0 && pairs[i].date.Equal(pairs[i-1].date) {
			continue
		}
		if dates == size {
			windows = append(windows, pairs[start:i])
			start, dates = i, 0
		}
		dates++
	}
	if dates == size {
		windows = append(windows, pairs[start:])
	}
	return windows
}

// ic is 0 below MinPairs or for a constant factor
func (c *Calibrator) ic(pairs []pair) float64 {
	if len(pairs) < c.cfg.MinPairs {
		return 0
	}
	ic, ok := spearmanPairs(pairs)
	if !ok {
		return 0
	}
	return ic
}

func spearmanPairs(pairs []pair) (float64, bool) {
	x := make([]float64, len(pairs))
	y := make([]float64, len(pairs))
	for i, p := range pairs {
		x[i] = p.value
		y[i] = p.ret
	}
	return Spearman(x, y)
}

// assignWeights normalizes significant raw scores to sum to 1; everything else is 0
func (c *Calibrator) assignWeights(results []FactorResult) error {
	raw := make([]float64, len(results))
	total := 0.0
	for i, r := range results {
		if !r.Weight.Significant {
			continue
		}
		raw[i] = c.cfg.Blend*math.Max(r.Weight.IR, 0) + (1-c.cfg.Blend)*math.Max(r.Weight.RecentIC, 0)
		total += raw[i]
	}

	if total <= 0 {
		return &contracts.CalibrationError{Stage: "weights", Message: "no significant factor with positive score"}
	}

	for i := range results {
		results[i].Weight.Weight = raw[i] / total
	}
	return nil
}

func (c *Calibrator) performanceRecords(generationID string, results []FactorResult) []contracts.FactorPerformance {
	var records []contracts.FactorPerformance
	for _, r := range results {
		for _, hs := range r.Horizons {
			if hs.TopCount == 0 {
				continue
			}
			records = append(records, contracts.FactorPerformance{
				GenerationID:    generationID,
				ConditionKey:    r.Key + ":top_quintile",
				HorizonDays:     hs.Horizon,
				WinRate:         hs.HitRate,
				AvgReturn:       hs.TopAvgRet,
				SampleCount:     hs.TopCount,
				ConfidenceLevel: contracts.ConfidenceForSamples(hs.TopCount),
			})
		}
	}
	return records
}

// publish appends performance history, swaps the active generation, then marks
// the history applied. A publish failure leaves the records unapplied.
func (c *Calibrator) publish(ctx context.Context, result *Result) error {
	var ids []int64
	if c.perf != nil && len(result.Performance) > 0 {
		var err error
		ids, err = c.perf.AppendPerformance(ctx, result.Performance)
		if err != nil {
			return fmt.Errorf("append performance: %w", err)
		}
		for i := range result.Performance {
			result.Performance[i].ID = ids[i]
		}
	}

	if err := c.store.PublishGeneration(ctx, result.Generation); err != nil {
		if errors.Is(err, contracts.ErrStaleGeneration) {
			return &contracts.CalibrationError{Stage: "publish", Message: "a newer generation is already active", Err: err}
		}
		return fmt.Errorf("publish generation: %w", err)
	}

	for _, id := range ids {
		if err := c.perf.MarkApplied(ctx, id); err != nil {
			c.logger.WithError(err).WithField("performance_id", id).Warn("mark applied failed")
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"generation_id": result.Generation.ID,
		"regime":        result.Generation.Regime,
		"stocks":        result.Generation.SampleStocks,
	}).Info("weight generation published")
	return nil
}
