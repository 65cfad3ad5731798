package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/wonny/scout/backend/internal/batch"
	"github.com/wonny/scout/backend/internal/brain"
	"github.com/wonny/scout/backend/internal/calibration"
	"github.com/wonny/scout/backend/internal/contracts"
	"github.com/wonny/scout/backend/internal/data/repos"
	"github.com/wonny/scout/backend/internal/data/sqlitestore"
	"github.com/wonny/scout/backend/internal/debate"
	"github.com/wonny/scout/backend/internal/execution"
	"github.com/wonny/scout/backend/internal/external/llm"
	"github.com/wonny/scout/backend/internal/factors"
	"github.com/wonny/scout/backend/internal/prompt"
	"github.com/wonny/scout/backend/internal/reasoning"
	"github.com/wonny/scout/backend/internal/strategyconfig"
	"github.com/wonny/scout/backend/pkg/config"
	"github.com/wonny/scout/backend/pkg/database"
	"github.com/wonny/scout/backend/pkg/logger"
	"github.com/wonny/scout/backend/pkg/redis"
)

const llmCachePrefix = "scout:llm"

var errNoMarketData = errors.New("market data requires DATABASE_URL")

// app holds the wired dependencies shared by every command
// ⭐ SSOT: 커맨드 의존성 조립은 여기서만
type app struct {
	cfg          *config.Config
	log          *logger.Logger
	policy       *strategyconfig.Config
	policySource string
	policyHash   string

	db     *database.DB // sqlite 저장소에서 DATABASE_URL이 없으면 nil
	sqlite *sqlitestore.Store
	redis  *redis.Client

	market  contracts.MarketDataProvider
	store   contracts.WeightStore
	perf    contracts.PerformanceStore
	runLock contracts.RunLock
	weights *factors.WeightSource
	outbox  *execution.Outbox
}

// newApp loads config and policy, then opens the stores
func newApp(ctx context.Context) (*app, error) {
	if env != "" {
		os.Setenv("ENV", env)
	}

	cfg, err := config.LoadFrom(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	log := logger.New(cfg)

	policy, source, err := strategyconfig.LoadOrDefault(cfg.Engine.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	hash, err := strategyconfig.Hash(policy)
	if err != nil {
		return nil, fmt.Errorf("hash policy: %w", err)
	}
	for _, w := range strategyconfig.Warn(policy) {
		log.WithField("code", w.Code).Warn(w.Message)
	}

	a := &app{
		cfg:          cfg,
		log:          log,
		policy:       policy,
		policySource: source,
		policyHash:   hash,
	}

	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.weights = factors.NewWeightSource(a.store, log)

	log.WithFields(map[string]interface{}{
		"env":         cfg.Env,
		"store":       cfg.Store.Backend,
		"policy":      source,
		"policy_hash": hash,
	}).Debug("app initialized")

	return a, nil
}

func (a *app) openStores(ctx context.Context) error {
	if a.cfg.Database.URL != "" {
		db, err := database.New(ctx, a.cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		a.db = db
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		a.market = repos.NewMarketRepository(db.Pool)
	}

	switch a.cfg.Store.Backend {
	case "sqlite":
		s, err := sqlitestore.Open(a.cfg.Store.SQLitePath, a.log)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		a.sqlite = s
		a.store = s
		a.perf = s
		a.runLock = s
	default:
		a.store = repos.NewWeightRepository(a.db.Pool)
		a.perf = repos.NewPerformanceRepository(a.db.Pool)
		a.runLock = repos.NewAdvisoryLock(a.db.Pool)
	}

	if a.cfg.Execution.Handoff == "outbox" {
		a.outbox = execution.NewOutbox(a.db.Pool, a.cfg.Execution.PollInterval, a.cfg.Execution.MaxAttempts, a.log)
	}
	return nil
}

// Close releases every open connection
func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.sqlite != nil {
		if err := a.sqlite.Close(); err != nil {
			a.log.WithError(err).Warn("close sqlite store")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

func (a *app) requireMarket() error {
	if a.market == nil {
		return errNoMarketData
	}
	return nil
}

// provider builds vendor -> rate limit -> cache. The cache is outermost so hits skip the limiter.
func (a *app) provider(ctx context.Context) (contracts.ReasoningProvider, error) {
	base, err := llm.NewProvider(ctx, a.cfg.LLM, a.log)
	if err != nil {
		return nil, fmt.Errorf("create reasoning provider: %w", err)
	}

	if a.redis == nil {
		client, err := redis.New(ctx, a.cfg)
		if err != nil {
			a.log.WithError(err).Warn("redis unavailable, reasoning cache disabled")
			client = redis.Disabled()
		}
		a.redis = client
	}

	limited := reasoning.NewRateLimitedProvider(base, a.cfg.LLM.RequestsPerSecond, 1)
	return reasoning.NewCachedProvider(limited, redis.NewCache(a.redis, llmCachePrefix), a.cfg.LLM.CacheTTL, a.log), nil
}

// handoff returns the configured execution handoff, nil for dry runs
func (a *app) handoff(dryRun bool) contracts.ExecutionHandoff {
	if dryRun {
		return nil
	}
	if a.outbox != nil {
		return a.outbox
	}
	return execution.NewLogHandoff(a.log)
}

// dispatcher returns the outbox relay target
func (a *app) dispatcher() (execution.Dispatcher, error) {
	if a.cfg.Execution.WebhookURL == "" {
		return execution.NewLogHandoff(a.log), nil
	}
	return execution.NewWebhookDispatcher(a.cfg.Execution.WebhookURL, a.cfg.LLM.Timeout, a.log)
}

type evaluatorOptions struct {
	reasoning bool // false면 국면 조회만 가능
	debate    bool
	dryRun    bool
}

func (a *app) evaluator(ctx context.Context, opts evaluatorOptions) (*brain.Evaluator, error) {
	if err := a.requireMarket(); err != nil {
		return nil, err
	}

	deps := brain.Dependencies{
		Market:      a.market,
		Weights:     a.weights,
		Handoff:     a.handoff(opts.dryRun),
		Policy:      a.policy,
		PolicyHash:  a.policyHash,
		IndexCode:   a.cfg.Engine.IndexCode,
		Workers:     a.cfg.Engine.Workers,
		CallTimeout: a.cfg.LLM.Timeout,
	}

	if opts.reasoning {
		p, err := a.provider(ctx)
		if err != nil {
			return nil, err
		}
		deps.Provider = p

		if opts.debate {
			if !a.policy.Debate.Enabled {
				return nil, fmt.Errorf("debate is disabled by policy %s", a.policySource)
			}
			deps.Debate = debate.NewOrchestrator(
				p,
				prompt.NewComposer(),
				reasoning.NewValidator(),
				a.policy.Debate.TiePolicy,
				a.policy.Debate.PersonaTimeout,
				a.log,
			)
		}
	}

	return brain.NewEvaluator(deps, a.log), nil
}

func (a *app) batchRunner() (*batch.Runner, error) {
	if err := a.requireMarket(); err != nil {
		return nil, err
	}

	var collector batch.Collector
	if a.cfg.Batch.CollectorBaseURL != "" {
		collector = batch.NewHTTPCollector(a.cfg.Batch.CollectorBaseURL, a.cfg.Batch.StepTimeout, a.log)
	}

	calibrator := calibration.NewCalibrator(a.policy.Calibration.CalibrationConfig(), a.store, a.perf, a.log).
		WithPolicyHash(a.policyHash).
		WithRunLock(a.runLock)

	return batch.NewRunner(batch.Dependencies{
		Collector:   collector,
		Market:      a.market,
		Calibrator:  calibrator,
		Policy:      a.policy,
		IndexCode:   a.cfg.Engine.IndexCode,
		Workers:     a.cfg.Engine.Workers,
		StepTimeout: a.cfg.Batch.StepTimeout,
	}, a.log), nil
}
