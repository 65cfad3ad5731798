package brain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/scout/backend/internal/contracts"
	"github.com/wonny/scout/backend/internal/data/repos"
	"github.com/wonny/scout/backend/internal/debate"
	"github.com/wonny/scout/backend/internal/factors"
	"github.com/wonny/scout/backend/internal/gate"
	"github.com/wonny/scout/backend/internal/prompt"
	"github.com/wonny/scout/backend/internal/reasoning"
	"github.com/wonny/scout/backend/internal/regime"
	"github.com/wonny/scout/backend/internal/strategyconfig"
	"github.com/wonny/scout/backend/pkg/logger"
)

// Failure stages
const (
	StageData      = "data"
	StageFactors   = "factors"
	StageReasoning = "reasoning"
	StageValidate  = "validate"
	StageDebate    = "debate"
	StageHandoff   = "handoff"
)

// FailureRecord is one stock that could not be evaluated. Never aborts the batch.
type FailureRecord struct {
	Code   string `json:"code"`
	Stage  string `json:"stage"`
	Kind   string `json:"kind"` // data, validation, timeout, internal
	Reason string `json:"reason"`
}

func newFailure(code, stage string, err error) FailureRecord {
	return FailureRecord{
		Code:   code,
		Stage:  stage,
		Kind:   contracts.ErrorKind(err),
		Reason: err.Error(),
	}
}

// Evaluation is the full result for one stock
type Evaluation struct {
	Code       string                        `json:"code"`
	Name       string                        `json:"name"`
	Composite  float64                       `json:"composite"`
	QuantScore float64                       `json:"quant_score"`
	Breakdown  map[string]float64            `json:"breakdown"`
	Bucket     contracts.MarketCapBucket     `json:"bucket"`
	Decision   *contracts.StructuredDecision `json:"decision"`
	Gate       contracts.GateResult          `json:"gate"`
	Debate     *debate.Outcome               `json:"debate,omitempty"`
	HandedOff  bool                          `json:"handed_off"`
}

// RunConfig holds configuration for an evaluation run
type RunConfig struct {
	RunID  string
	AsOf   time.Time
	Codes  []string // 비어 있으면 활성 종목 전체
	Debate bool
}

// RunResult holds the results of one evaluation run
type RunResult struct {
	RunID        string                `json:"run_id"`
	AsOf         time.Time             `json:"as_of"`
	Regime       contracts.RegimeState `json:"regime"`
	GenerationID string                `json:"generation_id"`
	WeightsStale bool                  `json:"weights_stale"`
	PolicyHash   string                `json:"policy_hash"`
	Evaluations  []Evaluation          `json:"evaluations"`
	Failures     []FailureRecord       `json:"failures"`
	Duration     time.Duration         `json:"duration"`
}

// Dependencies wires an Evaluator. Debate and Handoff are optional.
type Dependencies struct {
	Market     contracts.MarketDataProvider
	Weights    *factors.WeightSource
	Provider   contracts.ReasoningProvider
	Debate     *debate.Orchestrator
	Handoff    contracts.ExecutionHandoff
	Policy     *strategyconfig.Config
	PolicyHash string
	IndexCode  string
	Workers    int
	// CallTimeout applies per single-view reasoning call
	CallTimeout time.Duration
}

// Evaluator scores, reasons about, gates and hands off a batch of stocks
// ⭐ SSOT: 평가 파이프라인 조율은 여기서만
type Evaluator struct {
	market      contracts.MarketDataProvider
	weights     *factors.WeightSource
	engine      *factors.Engine
	detector    regime.Detector
	composer    *prompt.Composer
	validator   *reasoning.Validator
	provider    contracts.ReasoningProvider
	debate      *debate.Orchestrator
	gate        *gate.Gate
	handoff     contracts.ExecutionHandoff
	policy      *strategyconfig.Config
	policyHash  string
	indexCode   string
	workers     int
	callTimeout time.Duration
	logger      *logger.Logger
}

// NewEvaluator creates an evaluator
func NewEvaluator(deps Dependencies, log *logger.Logger) *Evaluator {
	policy := deps.Policy
	if policy == nil {
		policy = strategyconfig.Default()
	}
	workers := deps.Workers
	if workers < 1 {
		workers = 1
	}

	return &Evaluator{
		market:      deps.Market,
		weights:     deps.Weights,
		engine:      factors.NewEngine(log).WithHighWeightThreshold(policy.Engine.HighWeightThreshold),
		detector:    policy.Regime.Detector(),
		composer:    prompt.NewComposer(),
		validator:   reasoning.NewValidator(),
		provider:    deps.Provider,
		debate:      deps.Debate,
		gate:        gate.New(policy.Gate, log),
		handoff:     deps.Handoff,
		policy:      policy,
		policyHash:  deps.PolicyHash,
		indexCode:   deps.IndexCode,
		workers:     workers,
		callTimeout: deps.CallTimeout,
		logger:      log.WithComponent("evaluator"),
	}
}

// DebateEnabled reports whether a debate orchestrator is wired
func (e *Evaluator) DebateEnabled() bool {
	return e.debate != nil
}

// NewRunID returns a run identifier for t
func NewRunID(t time.Time) string {
	return "run_" + t.Format("20060102_150405")
}

// DetectRegime classifies the market from the configured index series.
// Missing index data yields the SIDEWAYS default with Insufficient set.
func (e *Evaluator) DetectRegime(ctx context.Context, asOf time.Time) contracts.RegimeState {
	from := asOf.AddDate(0, 0, -e.policy.Engine.HistoryDays)
	bars, err := e.market.GetIndexBars(ctx, e.indexCode, from, asOf)
	if err != nil {
		e.logger.WithError(err).WithField("index", e.indexCode).Warn("index series unavailable, regime defaults to SIDEWAYS")
		bars = nil
	}
	state := e.detector.Detect(bars)
	if state.AsOf.IsZero() {
		state.AsOf = asOf
	}
	return state
}

// Run evaluates every requested stock with a bounded worker pool
func (e *Evaluator) Run(ctx context.Context, cfg RunConfig) (*RunResult, error) {
	startTime := time.Now()
	if cfg.AsOf.IsZero() {
		cfg.AsOf = startTime
	}
	if cfg.RunID == "" {
		cfg.RunID = NewRunID(cfg.AsOf)
	}
	if cfg.Debate && e.debate == nil {
		return nil, fmt.Errorf("debate requested but no debate orchestrator configured")
	}

	stocks, err := e.resolveStocks(ctx, cfg.Codes)
	if err != nil {
		return nil, err
	}

	gen, err := e.weights.Refresh(ctx)
	if err != nil {
		e.logger.WithError(err).Warn("weight refresh failed, using cached generation")
	}
	stale := e.weights.Stale(cfg.AsOf, e.policy.Engine.WeightsMaxAge)
	if stale {
		e.logger.WithFields(map[string]interface{}{
			"weights_stale":  true,
			"generation_id":  gen.ID,
			"generation_age": gen.Age(cfg.AsOf).String(),
		}).Warn("evaluating with stale weights")
	}

	state := e.DetectRegime(ctx, cfg.AsOf)

	result := &RunResult{
		RunID:        cfg.RunID,
		AsOf:         cfg.AsOf,
		Regime:       state,
		GenerationID: gen.ID,
		WeightsStale: stale,
		PolicyHash:   e.policyHash,
	}

	e.logger.WithFields(map[string]interface{}{
		"run_id":        cfg.RunID,
		"stocks":        len(stocks),
		"regime":        state.Label,
		"generation_id": gen.ID,
		"policy_hash":   e.policyHash,
		"debate":        cfg.Debate,
		"workers":       e.workers,
	}).Info("Starting evaluation run")

	type outcome struct {
		eval    *Evaluation
		failure *FailureRecord
	}
	outcomes := make([]outcome, len(stocks))
	weights := gen.WeightMap()

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, stock := range stocks {
		g.Go(func() error {
			eval, failure := e.evaluate(ctx, cfg, stock, state, weights)
			outcomes[i] = outcome{eval: eval, failure: failure}
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		if o.eval != nil {
			result.Evaluations = append(result.Evaluations, *o.eval)
		}
		if o.failure != nil {
			result.Failures = append(result.Failures, *o.failure)
		}
	}

	result.Duration = time.Since(startTime)

	tradable := 0
	for _, ev := range result.Evaluations {
		if ev.Gate.Tradable {
			tradable++
		}
	}
	e.logger.WithFields(map[string]interface{}{
		"run_id":    cfg.RunID,
		"evaluated": len(result.Evaluations),
		"tradable":  tradable,
		"failures":  len(result.Failures),
		"duration":  result.Duration.Seconds(),
	}).Info("Evaluation run completed")

	return result, nil
}

func (e *Evaluator) resolveStocks(ctx context.Context, codes []string) ([]contracts.StockInfo, error) {
	if len(codes) == 0 {
		stocks, err := e.market.ListActiveStocks(ctx)
		if err != nil {
			return nil, fmt.Errorf("list active stocks: %w", err)
		}
		return stocks, nil
	}

	stocks := make([]contracts.StockInfo, 0, len(codes))
	for _, code := range codes {
		info, err := e.market.GetStock(ctx, code)
		if err != nil {
			var dataErr *contracts.DataError
			if !errors.As(err, &dataErr) {
				return nil, fmt.Errorf("get stock %s: %w", code, err)
			}
			// 알 수 없는 종목도 평가 단계에서 실패 기록으로 남김
			stocks = append(stocks, contracts.StockInfo{Code: code})
			continue
		}
		stocks = append(stocks, *info)
	}
	return stocks, nil
}

// evaluate runs the per-stock pipeline. Exactly one of the returns is non-nil,
// except a failed handoff which returns both.
func (e *Evaluator) evaluate(ctx context.Context, cfg RunConfig, stock contracts.StockInfo, state contracts.RegimeState, weights map[string]float64) (*Evaluation, *FailureRecord) {
	code := stock.Code
	from := cfg.AsOf.AddDate(0, 0, -e.policy.Engine.HistoryDays)

	history, err := repos.LoadHistory(ctx, e.market, code, from, cfg.AsOf)
	if err != nil {
		f := newFailure(code, StageData, err)
		return nil, &f
	}

	series := factors.NewSeries(history)
	snap, err := e.engine.Snapshot(series)
	if err != nil {
		f := newFailure(code, StageFactors, err)
		return nil, &f
	}
	composite, breakdown, err := e.engine.Score(snap, weights)
	if err != nil {
		f := newFailure(code, StageFactors, err)
		return nil, &f
	}
	quant := factors.NormalizeScore(composite)

	marketCap, err := e.market.GetMarketCap(ctx, code, cfg.AsOf)
	if err != nil {
		f := newFailure(code, StageData, err)
		return nil, &f
	}

	stockSnap := BuildSnapshot(stock, history, snap, quant, breakdown, marketCap)

	eval := &Evaluation{
		Code:       code,
		Name:       stock.Name,
		Composite:  composite,
		QuantScore: quant,
		Breakdown:  breakdown,
		Bucket:     factors.BucketFor(stockSnap.Fundamentals.MarketCap),
	}

	if cfg.Debate {
		out, err := e.debate.Run(ctx, stockSnap, state.Label, quant, stockSnap.Keywords)
		if err != nil {
			f := newFailure(code, StageDebate, err)
			return nil, &f
		}
		eval.Debate = out
		eval.Decision = out.Decision
	} else {
		d, stage, err := e.reason(ctx, stockSnap, state.Label)
		if err != nil {
			f := newFailure(code, stage, err)
			return nil, &f
		}
		eval.Decision = d
	}

	eval.Gate = e.gate.Check(eval.Decision, eval.Bucket)
	if !eval.Gate.Actionable() || eval.Decision.Strategy.Decision != contracts.DecisionTradable || e.handoff == nil {
		return eval, nil
	}

	h := contracts.Handoff{
		RunID:      cfg.RunID,
		Symbol:     code,
		Regime:     state.Label,
		QuantScore: quant,
		Gate:       eval.Gate,
		Decision:   *eval.Decision,
		EntryFocus: eval.Decision.SuggestedEntryFocus,
		PolicyHash: e.policyHash,
	}
	if err := e.handoff.Handoff(ctx, h); err != nil {
		f := newFailure(code, StageHandoff, err)
		return eval, &f
	}
	eval.HandedOff = true
	return eval, nil
}

// reason runs the single-view prompt and validates the reply
func (e *Evaluator) reason(ctx context.Context, snap contracts.StockSnapshot, label contracts.RegimeLabel) (*contracts.StructuredDecision, string, error) {
	req := &contracts.ReasoningRequest{
		Prompt:       e.composer.Compose(snap, label, nil),
		OutputSchema: prompt.OutputSchema(snap.Code),
	}

	resp, err := reasoning.Call(ctx, e.provider, req, e.callTimeout, snap.Code, StageReasoning)
	if err != nil {
		return nil, StageReasoning, err
	}

	d, err := e.validator.Validate(resp.Text)
	if err != nil {
		var ve *contracts.ValidationError
		if errors.As(err, &ve) {
			ve.Code = snap.Code
		}
		if inv, ok := e.provider.(reasoning.Invalidator); ok {
			if invErr := inv.Invalidate(ctx, req); invErr != nil {
				e.logger.WithError(invErr).WithField("code", snap.Code).Warn("failed to invalidate cached response")
			}
		}
		return nil, StageValidate, err
	}
	return d, "", nil
}

// BuildSnapshot freezes the prompt input for one stock.
// Fundamentals come from the latest report; a zero market cap is unknown.
func BuildSnapshot(stock contracts.StockInfo, h contracts.StockHistory, snap *contracts.FactorSnapshot, quant float64, breakdown map[string]float64, marketCap float64) contracts.StockSnapshot {
	s := contracts.StockSnapshot{
		Code:       stock.Code,
		Name:       stock.Name,
		Sector:     stock.Sector,
		QuantScore: contracts.Float(quant),
		Breakdown:  breakdown,
	}

	if n := len(h.Fundamentals); n > 0 {
		latest := h.Fundamentals[n-1]
		s.Fundamentals.PER = reported(latest.PER)
		s.Fundamentals.PBR = reported(latest.PBR)
		s.Fundamentals.ROE = reported(latest.ROE)
	}
	if marketCap > 0 {
		s.Fundamentals.MarketCap = contracts.Float(marketCap)
	}

	if v, ok := snap.Values[contracts.FactorMomentum6M]; ok {
		s.MomentumScore = contracts.Float(v)
	}
	s.TechnicalSummary = technicalSummary(snap.Values)

	keywords := factors.Tags(breakdown)
	if stock.Sector != "" {
		keywords = append(keywords, stock.Sector)
	}
	s.Keywords = keywords
	return s
}

// reported treats 0 as a missing value. A negative PER is a real loss and is kept.
func reported(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return contracts.Float(v)
}

// technicalSummary renders the technical factors in a fixed order
func technicalSummary(values map[string]float64) string {
	labels := []struct {
		key    string
		format string
	}{
		{contracts.FactorMomentum1M, "1개월 수익률 %.1f%%"},
		{contracts.FactorMomentum6M, "6개월 수익률 %.1f%%"},
		{contracts.FactorTechnicalRSI, "RSI14 %.0f"},
		{contracts.FactorSupplyForeignBuy, "외국인 순매수 강도 %.2f"},
	}

	var parts []string
	for _, l := range labels {
		v, ok := values[l.key]
		if !ok {
			continue
		}
		if l.key == contracts.FactorTechnicalRSI {
			v = 100 - v // 과매도 점수 → RSI
		}
		parts = append(parts, fmt.Sprintf(l.format, v))
	}
	return strings.Join(parts, ", ")
}

// SortByQuantScore orders evaluations best first, code as tiebreak
func SortByQuantScore(evals []Evaluation) {
	sort.SliceStable(evals, func(i, j int) bool {
		if evals[i].QuantScore != evals[j].QuantScore {
			return evals[i].QuantScore > evals[j].QuantScore
		}
		return evals[i].Code < evals[j].Code
	})
}
