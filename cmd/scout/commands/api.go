package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/scout/backend/internal/api"
	"github.com/wonny/scout/backend/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

Endpoints:
  GET  /health                            - Health check
  GET  /api/regime                        - 현재 시장 국면
  GET  /api/weights/latest                - 활성 가중치 세대
  GET  /api/weights                       - 가중치 세대 목록
  GET  /api/weights/{id}/performance      - 세대별 팩터 성과
  POST /api/evaluate                      - 종목 평가 (dry-run)
  GET  /api/scheduler/jobs                - 작업 통계 (--scheduler)
  POST /api/scheduler/jobs/{name}/run     - 작업 즉시 실행 (--scheduler)

Example:
  go run ./cmd/scout api
  go run ./cmd/scout api --port 8080 --scheduler`,
	RunE: runAPIServer,
}

var (
	apiPort      string
	apiScheduler bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
	apiCmd.Flags().BoolVar(&apiScheduler, "scheduler", false, "스케줄러를 같은 프로세스에서 실행")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Scout API Server ===")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	// API 평가는 항상 dry-run (실행 계층 전달은 CLI/스케줄러만)
	evaluator, err := a.evaluator(ctx, evaluatorOptions{
		reasoning: true,
		debate:    a.policy.Debate.Enabled,
		dryRun:    true,
	})
	if err != nil {
		return err
	}

	if _, err := a.weights.Refresh(ctx); err != nil {
		a.log.WithError(err).Warn("initial weight refresh failed")
	}

	engineHandler := handlers.NewEngineHandler(evaluator, a.weights, a.store, a.perf, a.policy.Engine.WeightsMaxAge, a.log)

	var schedulerHandler *handlers.SchedulerHandler
	if apiScheduler {
		sched, err := newScheduler(a)
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		stopRelay, err := startRelay(ctx, a)
		if err != nil {
			return fmt.Errorf("start outbox relay: %w", err)
		}
		defer stopRelay()

		sched.Start()
		defer sched.Stop()
		schedulerHandler = handlers.NewSchedulerHandler(sched, a.log)
	}

	router := api.NewRouter(engineHandler, schedulerHandler, a.log)
	server := api.New(a.cfg, a.log, router)

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	if err := server.Run(ctx, 30*time.Second); err != nil {
		return err
	}

	a.log.Info("Server stopped")
	return nil
}
