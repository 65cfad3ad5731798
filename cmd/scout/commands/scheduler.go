package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/scout/backend/internal/scheduler"
	"github.com/wonny/scout/backend/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작 (outbox 모드면 전달 릴레이도 함께 실행)
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행

Example:
  go run ./cmd/scout scheduler start
  go run ./cmd/scout scheduler list
  go run ./cmd/scout scheduler run weekly_calibration`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- weekly_calibration: 매주 일요일 06:00 (BATCH_SCHEDULE로 변경 가능)
- weight_refresh: 15분마다 (활성 가중치 세대 재로딩)

스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

// newScheduler registers the engine jobs. A failed calibration is retried once.
func newScheduler(a *app) (*scheduler.Scheduler, error) {
	runner, err := a.batchRunner()
	if err != nil {
		return nil, err
	}

	sched := scheduler.New(a.log).WithRetry(1, 5*time.Minute)
	for _, job := range []scheduler.Job{
		jobs.NewCalibrationJob(runner, a.cfg.Batch.Schedule, a.log),
		jobs.NewWeightRefreshJob(a.weights, a.log),
	} {
		if err := sched.AddJob(job); err != nil {
			return nil, fmt.Errorf("add job: %w", err)
		}
	}
	return sched, nil
}

// startRelay runs the outbox relay in the background when the outbox handoff is configured
func startRelay(ctx context.Context, a *app) (stop func(), err error) {
	if a.outbox == nil {
		return func() {}, nil
	}
	d, err := a.dispatcher()
	if err != nil {
		return nil, err
	}
	go a.outbox.Start(ctx, d)
	return a.outbox.Stop, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Scout Scheduler ===")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := newScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	// 시작 시 최신 가중치 로딩
	if _, err := a.weights.Refresh(ctx); err != nil {
		a.log.WithError(err).Warn("initial weight refresh failed")
	}

	stopRelay, err := startRelay(ctx, a)
	if err != nil {
		return fmt.Errorf("start outbox relay: %w", err)
	}
	defer stopRelay()

	sched.Start()

	PrintSuccess("Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	stats := sched.GetJobStats()
	for _, name := range sched.GetAllJobs() {
		fmt.Printf("  - %-20s %s\n", name, stats[name].Schedule)
	}
	if a.outbox != nil {
		fmt.Println("\nOutbox relay running")
	}
	fmt.Println("\nPress Ctrl+C to stop")

	<-ctx.Done()

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := newScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	stats := sched.GetJobStats()
	widths := []int{20, 16}
	PrintTableHeader([]string{"JOB", "SCHEDULE"}, widths)
	for _, name := range sched.GetAllJobs() {
		PrintTableRow([]string{name, stats[name].Schedule}, widths)
	}
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := newScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	// 수동 실행은 재시도 없이 즉시 결과 반환
	sched.WithRetry(0, 0)

	fmt.Printf("Running job: %s\n", jobName)
	result, err := sched.RunJobSync(ctx, jobName)
	if err != nil {
		PrintError(err.Error())
		return err
	}

	PrintSuccess(fmt.Sprintf("Job %s completed in %s", jobName, result.Duration.Round(time.Millisecond)))
	return nil
}
