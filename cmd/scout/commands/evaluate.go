package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/scout/backend/internal/brain"
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:   "evaluate [codes...]",
	Short: "종목 평가 실행",
	Long: `팩터 점수 → LLM 추론 → 국면 게이트 순서로 종목을 평가합니다.
게이트를 통과한 결정은 실행 계층으로 넘겨집니다.

종목 코드를 생략하면 활성 종목 전체를 평가합니다.

Example:
  go run ./cmd/scout evaluate 005930 000660
  go run ./cmd/scout evaluate 005930 --debate
  go run ./cmd/scout evaluate --dry-run --json`,
	RunE: runEvaluate,
}

var (
	evaluateDryRun bool
	evaluateDebate bool
	evaluateJSON   bool
)

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().BoolVar(&evaluateDryRun, "dry-run", false, "실행 계층으로 넘기지 않음")
	evaluateCmd.Flags().BoolVar(&evaluateDebate, "debate", false, "다중 페르소나 토론 사용")
	evaluateCmd.Flags().BoolVar(&evaluateJSON, "json", false, "JSON으로 출력")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	evaluator, err := a.evaluator(ctx, evaluatorOptions{
		reasoning: true,
		debate:    evaluateDebate,
		dryRun:    evaluateDryRun,
	})
	if err != nil {
		return err
	}

	now := time.Now()
	result, err := evaluator.Run(ctx, brain.RunConfig{
		RunID:  brain.NewRunID(now),
		AsOf:   now,
		Codes:  args,
		Debate: evaluateDebate,
	})
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	brain.SortByQuantScore(result.Evaluations)

	if evaluateJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	mode := "live"
	if evaluateDryRun {
		mode = "dry-run"
	}
	if evaluateDebate {
		mode += " + debate"
	}
	PrintRunHeader(RunHeader{
		Title:      "Scout Evaluation",
		RunID:      result.RunID,
		Mode:       mode,
		PolicyHash: result.PolicyHash,
		AsOf:       result.AsOf,
	})
	PrintRegime(result.Regime)
	PrintKeyValue("Weights", result.GenerationID, 12)
	if result.WeightsStale {
		PrintWarning("weights are stale, run calibrate")
	}
	fmt.Println()

	printEvaluations(result.Evaluations)
	printFailures(result.Failures)

	fmt.Println()
	fmt.Printf("✅ Run %s completed in %.2fs\n", result.RunID, result.Duration.Seconds())
	return nil
}

func printEvaluations(evals []brain.Evaluation) {
	if len(evals) == 0 {
		PrintInfo("No evaluations")
		return
	}

	widths := []int{8, 14, 6, 5, 18, 4, 8, 8, 30}
	PrintTableHeader([]string{"CODE", "NAME", "QUANT", "GRADE", "STRATEGY", "CONF", "BUCKET", "GATE", "REASON"}, widths)
	for _, ev := range evals {
		gate := "blocked"
		switch {
		case ev.HandedOff:
			gate = "sent"
		case ev.Gate.Tradable && !ev.Gate.Enforced:
			gate = "shadow"
		case ev.Gate.Tradable:
			gate = "pass"
		}
		PrintTableRow([]string{
			ev.Code,
			truncate(ev.Name, 14),
			fmt.Sprintf("%.1f", ev.QuantScore),
			string(ev.Decision.LLMGrade),
			string(ev.Decision.Strategy.Type),
			fmt.Sprintf("%d", ev.Decision.Strategy.Confidence),
			string(ev.Bucket),
			gate,
			strings.Join(ev.Gate.Reasons, "; "),
		}, widths)
	}
}

func printFailures(failures []brain.FailureRecord) {
	if len(failures) == 0 {
		return
	}
	PrintWarning(fmt.Sprintf("%d stock(s) failed", len(failures)))
	widths := []int{8, 10, 11, 50}
	PrintTableHeader([]string{"CODE", "STAGE", "KIND", "REASON"}, widths)
	for _, f := range failures {
		PrintTableRow([]string{f.Code, f.Stage, f.Kind, f.Reason}, widths)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
