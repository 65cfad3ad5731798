package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/scout/backend/internal/batch"
)

// calibrateCmd represents the calibrate command
var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "주간 가중치 보정 배치 실행",
	Long: `수집 단계와 팩터 분석을 순서대로 실행하고 새 가중치 세대를 게시합니다.

Steps (표 순서대로 실행):
  news, tag, dart, trading  - 수집 (기본 7일, tag는 +30일)
  financials                - 재무 수집 (--full-refresh 에서만)
  analysis                  - 730일 이력으로 IC 기반 가중치 재계산

실패한 단계가 있어도 나머지 단계는 계속 실행되며,
모든 단계가 성공했을 때만 종료 코드 0을 반환합니다.

Example:
  go run ./cmd/scout calibrate
  go run ./cmd/scout calibrate --full-refresh
  go run ./cmd/scout calibrate --analysis-only
  go run ./cmd/scout calibrate --step news --step analysis`,
	RunE: runCalibrate,
}

var (
	calibrateSteps        []string
	calibrateFullRefresh  bool
	calibrateAnalysisOnly bool
)

func init() {
	rootCmd.AddCommand(calibrateCmd)

	calibrateCmd.Flags().StringArrayVar(&calibrateSteps, "step", nil, "실행할 단계 (반복 가능)")
	calibrateCmd.Flags().BoolVar(&calibrateFullRefresh, "full-refresh", false, "730일 전체 재수집 (financials 포함)")
	calibrateCmd.Flags().BoolVar(&calibrateAnalysisOnly, "analysis-only", false, "수집 없이 분석만 실행")
}

func parseSteps(raw []string) ([]batch.Step, error) {
	steps := make([]batch.Step, 0, len(raw))
	for _, r := range raw {
		// --step news,tag 형태도 허용
		for _, part := range strings.Split(r, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			s, err := batch.ParseStep(part)
			if err != nil {
				return nil, err
			}
			steps = append(steps, s)
		}
	}
	return steps, nil
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	steps, err := parseSteps(calibrateSteps)
	if err != nil {
		return err
	}
	opts := batch.Options{
		Steps:        steps,
		FullRefresh:  calibrateFullRefresh,
		AnalysisOnly: calibrateAnalysisOnly,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	runner, err := a.batchRunner()
	if err != nil {
		return err
	}

	PrintRunHeader(RunHeader{
		Title:      "Scout Calibration Batch",
		Mode:       opts.Mode(),
		PolicyHash: a.policyHash,
		AsOf:       time.Now(),
	})

	planned := batch.Plan(opts)
	names := make([]string, len(planned))
	for i, s := range planned {
		names[i] = string(s)
	}
	PrintKeyValue("Steps", strings.Join(names, " → "), 8)
	fmt.Println()

	report, err := runner.Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("calibration batch: %w", err)
	}

	printBatchReport(report)

	if !report.Succeeded() {
		failed := report.FailedSteps()
		PrintError(fmt.Sprintf("%d step(s) failed", len(failed)))
		return fmt.Errorf("failed steps: %v", failed)
	}
	PrintSuccess("All steps succeeded")
	return nil
}

func printBatchReport(report *batch.Report) {
	widths := []int{18, 8, 6, 10, 40}
	PrintTableHeader([]string{"STEP", "STATUS", "DAYS", "DURATION", "ERROR"}, widths)
	for i, res := range report.Results {
		status := "ok"
		switch {
		case res.Skipped:
			status = "skipped"
		case !res.Success:
			status = "failed"
		}
		PrintTableRow([]string{
			fmt.Sprintf("[%d/%d] %s", i+1, len(report.Results), res.Step),
			status,
			fmt.Sprintf("%d", res.Days),
			res.Duration.Round(time.Millisecond).String(),
			res.Error,
		}, widths)
	}
	fmt.Println()

	if report.Regime != nil {
		PrintRegime(*report.Regime)
	}
	if report.Generation != nil {
		PrintKeyValue("Generation", report.Generation.ID, 12)
		PrintKeyValue("Stocks", fmt.Sprintf("%d", report.Generation.SampleStocks), 12)
		fmt.Println()
		printWeights(report.Generation.Weights)
	}
	if len(report.Failures) > 0 {
		PrintWarning(fmt.Sprintf("%d stock(s) excluded from analysis", len(report.Failures)))
	}
}
