package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// regimeCmd represents the regime command
var regimeCmd = &cobra.Command{
	Use:   "regime",
	Short: "현재 시장 국면 조회",
	Long: `지수 추세로 현재 시장 국면(BULL/BEAR/SIDEWAYS)을 판정합니다.
지수 데이터가 부족하면 SIDEWAYS로 간주합니다.

Example:
  go run ./cmd/scout regime`,
	RunE: runRegime,
}

func init() {
	rootCmd.AddCommand(regimeCmd)
}

func runRegime(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	evaluator, err := a.evaluator(ctx, evaluatorOptions{dryRun: true})
	if err != nil {
		return err
	}

	now := time.Now()
	state := evaluator.DetectRegime(ctx, now)

	PrintRunHeader(RunHeader{
		Title:      "Market Regime · " + a.cfg.Engine.IndexCode,
		PolicyHash: a.policyHash,
		AsOf:       now,
	})
	PrintRegime(state)
	return nil
}
