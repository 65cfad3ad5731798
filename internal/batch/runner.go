package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/scout/backend/internal/calibration"
	"github.com/wonny/scout/backend/internal/contracts"
	"github.com/wonny/scout/backend/internal/data/repos"
	"github.com/wonny/scout/backend/internal/regime"
	"github.com/wonny/scout/backend/internal/strategyconfig"
	"github.com/wonny/scout/backend/pkg/logger"
)

// Options selects what one batch run does
type Options struct {
	Steps        []Step // 비어 있으면 전체
	FullRefresh  bool
	AnalysisOnly bool
}

// Mode labels the run window
func (o Options) Mode() string {
	switch {
	case o.AnalysisOnly:
		return "analysis-only"
	case o.FullRefresh:
		return "full"
	default:
		return "weekly"
	}
}

// StepResult is the outcome of one step
type StepResult struct {
	Step     Step          `json:"step"`
	Success  bool          `json:"success"`
	Skipped  bool          `json:"skipped"`
	Days     int           `json:"days"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report is the outcome of one batch run
type Report struct {
	Mode       string                      `json:"mode"`
	StartedAt  time.Time                   `json:"started_at"`
	Results    []StepResult                `json:"results"`
	Regime     *contracts.RegimeState      `json:"regime,omitempty"`
	Generation *contracts.WeightGeneration `json:"generation,omitempty"`
	Failures   map[string]string           `json:"failures,omitempty"` // 분석 제외 종목
}

// Succeeded reports whether every invoked step succeeded
func (r *Report) Succeeded() bool {
	for _, res := range r.Results {
		if !res.Success {
			return false
		}
	}
	return true
}

// FailedSteps lists the steps that failed
func (r *Report) FailedSteps() []Step {
	var out []Step
	for _, res := range r.Results {
		if !res.Success {
			out = append(out, res.Step)
		}
	}
	return out
}

// Dependencies wires a Runner. Collector may be nil for analysis-only use.
type Dependencies struct {
	Collector   Collector
	Market      contracts.MarketDataProvider
	Calibrator  *calibration.Calibrator
	Policy      *strategyconfig.Config
	IndexCode   string
	Workers     int
	StepTimeout time.Duration
}

// Runner executes the calibration batch step by step
// ⭐ SSOT: 주간 가중치 재계산 배치는 여기서만
type Runner struct {
	collector   Collector
	market      contracts.MarketDataProvider
	calibrator  *calibration.Calibrator
	policy      *strategyconfig.Config
	detector    regime.Detector
	indexCode   string
	workers     int
	stepTimeout time.Duration
	logger      *logger.Logger
	now         func() time.Time
}

// NewRunner creates a batch runner
func NewRunner(deps Dependencies, log *logger.Logger) *Runner {
	policy := deps.Policy
	if policy == nil {
		policy = strategyconfig.Default()
	}
	workers := deps.Workers
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		collector:   deps.Collector,
		market:      deps.Market,
		calibrator:  deps.Calibrator,
		policy:      policy,
		detector:    policy.Regime.Detector(),
		indexCode:   deps.IndexCode,
		workers:     workers,
		stepTimeout: deps.StepTimeout,
		logger:      log.WithComponent("batch"),
		now:         time.Now,
	}
}

// Plan returns the steps a run would execute, in table order
func Plan(opts Options) []Step {
	if opts.AnalysisOnly {
		return []Step{StepAnalysis}
	}
	if len(opts.Steps) == 0 {
		return AllSteps()
	}

	want := make(map[Step]bool, len(opts.Steps))
	for _, s := range opts.Steps {
		want[s] = true
	}
	var out []Step
	for _, p := range policyTable {
		if want[p.Step] {
			out = append(out, p.Step)
		}
	}
	return out
}

// Run executes the planned steps. A failed step is recorded and the run
// continues; the returned error is non-nil only if ctx was cancelled.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	days := r.policy.Batch.WeeklyDays
	if opts.FullRefresh {
		days = r.policy.Batch.FullRefreshDays
	}

	report := &Report{Mode: opts.Mode(), StartedAt: r.now()}
	steps := Plan(opts)

	r.logger.WithFields(map[string]interface{}{
		"mode":  report.Mode,
		"days":  days,
		"steps": joinSteps(steps),
	}).Info("Starting calibration batch")

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		policy := policyFor(step)
		res := StepResult{Step: step, Days: policy.Days(r.policy.Batch, days)}

		if policy.FullRefreshOnly && !opts.FullRefresh {
			res.Success, res.Skipped = true, true
			r.logger.Infof("step %s skipped (full refresh only)", step)
			report.Results = append(report.Results, res)
			continue
		}

		start := time.Now()
		err := r.runStep(ctx, step, res.Days, report)
		res.Duration = time.Since(start)
		if err != nil {
			res.Error = err.Error()
			r.logger.WithError(err).WithField("step", step).Error("step failed")
		} else {
			res.Success = true
			r.logger.WithFields(map[string]interface{}{
				"step":     step,
				"duration": res.Duration.Seconds(),
			}).Info("step completed")
		}
		report.Results = append(report.Results, res)
	}

	r.logger.WithFields(map[string]interface{}{
		"mode":      report.Mode,
		"succeeded": report.Succeeded(),
		"failed":    joinSteps(report.FailedSteps()),
	}).Info("Calibration batch finished")

	return report, nil
}

func (r *Runner) runStep(ctx context.Context, step Step, days int, report *Report) error {
	if r.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.stepTimeout)
		defer cancel()
	}

	if step == StepAnalysis {
		return r.analyze(ctx, days, report)
	}
	if r.collector == nil {
		return errors.New("no collector configured")
	}
	return r.collector.Collect(ctx, step, days)
}

// analyze detects the regime, loads histories and recalibrates. A
// CalibrationError leaves the previous generation active.
func (r *Runner) analyze(ctx context.Context, days int, report *Report) error {
	if r.market == nil || r.calibrator == nil {
		return errors.New("analysis requires market data and a calibrator")
	}

	to := r.now()
	from := to.AddDate(0, 0, -days)

	index, err := r.market.GetIndexBars(ctx, r.indexCode, from, to)
	if err != nil {
		r.logger.WithError(err).WithField("index", r.indexCode).Warn("index series unavailable, regime defaults to SIDEWAYS")
		index = nil
	}
	state := r.detector.Detect(index)
	report.Regime = &state

	stocks, err := r.market.ListActiveStocks(ctx)
	if err != nil {
		return fmt.Errorf("list active stocks: %w", err)
	}
	codes := make([]string, len(stocks))
	for i, s := range stocks {
		codes[i] = s.Code
	}

	histories, failed := repos.LoadHistories(ctx, r.market, codes, from, to, r.workers)
	if len(failed) > 0 {
		report.Failures = make(map[string]string, len(failed))
		for code, err := range failed {
			report.Failures[code] = err.Error()
		}
		r.logger.Warnf("%d of %d histories could not be loaded", len(failed), len(codes))
	}

	r.logger.WithFields(map[string]interface{}{
		"regime": state.Label,
		"stocks": len(histories),
		"from":   from.Format("2006-01-02"),
		"to":     to.Format("2006-01-02"),
	}).Info("running factor calibration")

	result, err := r.calibrator.Calibrate(ctx, histories, state.Label)
	if err != nil {
		var calErr *contracts.CalibrationError
		if errors.As(err, &calErr) {
			r.logger.WithError(err).Warn("calibration aborted, previous generation stays active")
		}
		return err
	}
	report.Generation = result.Generation
	return nil
}
