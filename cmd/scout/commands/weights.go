package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/scout/backend/internal/contracts"
)

// weightsCmd represents the weights command
var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "팩터 가중치 세대 조회",
	Long: `게시된 가중치 세대를 조회합니다.

Subcommands:
  list  - 최근 세대 목록 (최신순)
  show  - 활성 세대 또는 지정 세대의 가중치와 성과 기록

Example:
  go run ./cmd/scout weights list --limit 5
  go run ./cmd/scout weights show
  go run ./cmd/scout weights show 9f1c2e4a-5b7d-4c1e-8a3f-2d6b0e9c7a51`,
}

var (
	weightsListCmd = &cobra.Command{
		Use:   "list",
		Short: "최근 세대 목록",
		RunE:  listWeights,
	}

	weightsShowCmd = &cobra.Command{
		Use:   "show [generation_id]",
		Short: "세대 상세 조회",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showWeights,
	}
)

var weightsLimit int

func init() {
	rootCmd.AddCommand(weightsCmd)
	weightsCmd.AddCommand(weightsListCmd)
	weightsCmd.AddCommand(weightsShowCmd)

	weightsListCmd.Flags().IntVar(&weightsLimit, "limit", 10, "조회할 세대 수")
}

func listWeights(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	gens, err := a.store.ListGenerations(ctx, weightsLimit)
	if err != nil {
		return fmt.Errorf("list generations: %w", err)
	}
	if len(gens) == 0 {
		PrintInfo("No generation published yet, engine uses equal default weights")
		return nil
	}

	active, err := a.store.LatestGeneration(ctx)
	if err != nil && !errors.Is(err, contracts.ErrNoGeneration) {
		return fmt.Errorf("latest generation: %w", err)
	}

	widths := []int{2, 36, 16, 10, 6, 12}
	PrintTableHeader([]string{"", "ID", "COMPUTED", "REGIME", "STOCKS", "POLICY"}, widths)
	for _, g := range gens {
		marker := ""
		if active != nil && active.ID == g.ID {
			marker = "*"
		}
		PrintTableRow([]string{
			marker,
			g.ID,
			g.ComputedAt.Local().Format("2006-01-02 15:04"),
			string(g.Regime),
			fmt.Sprintf("%d", g.SampleStocks),
			shortHash(g.PolicyHash),
		}, widths)
	}
	return nil
}

func showWeights(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var gen *contracts.WeightGeneration
	if len(args) == 0 {
		gen, err = a.weights.Refresh(ctx)
		if err != nil {
			PrintWarning(fmt.Sprintf("weight store unavailable: %v", err))
		}
	} else {
		gen, err = findGeneration(ctx, a.store, args[0])
		if err != nil {
			return err
		}
	}

	now := time.Now()
	PrintDoubleSeparator()
	PrintKeyValue("Generation", gen.ID, 12)
	if !gen.ComputedAt.IsZero() {
		PrintKeyValue("Computed", gen.ComputedAt.Local().Format("2006-01-02 15:04:05"), 12)
		PrintKeyValue("Age", gen.Age(now).Round(time.Minute).String(), 12)
	}
	PrintKeyValue("Regime", string(gen.Regime), 12)
	PrintKeyValue("Lookback", fmt.Sprintf("%dy", gen.LookbackYears), 12)
	PrintKeyValue("Stocks", fmt.Sprintf("%d", gen.SampleStocks), 12)
	if gen.PolicyHash != "" {
		PrintKeyValue("Policy", shortHash(gen.PolicyHash), 12)
	}
	if len(args) == 0 {
		PrintKeyValue("Stale", yesNo(a.weights.Stale(now, a.policy.Engine.WeightsMaxAge)), 12)
	}
	PrintSeparator()
	printWeights(gen.Weights)

	records, err := a.perf.ListPerformance(ctx, gen.ID)
	if err != nil {
		return fmt.Errorf("list performance: %w", err)
	}
	if len(records) > 0 {
		fmt.Println()
		printPerformance(records)
	}
	return nil
}

// findGeneration scans recent generations. The store has no point lookup.
func findGeneration(ctx context.Context, store contracts.WeightStore, id string) (*contracts.WeightGeneration, error) {
	gens, err := store.ListGenerations(ctx, 100)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	for _, g := range gens {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, fmt.Errorf("generation %s not found", id)
}

func printWeights(weights []contracts.FactorWeight) {
	sorted := make([]contracts.FactorWeight, len(weights))
	copy(sorted, weights)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Weight > sorted[j].Weight })

	widths := []int{24, 8, 8, 8, 8, 8, 4}
	PrintTableHeader([]string{"FACTOR", "WEIGHT", "IC", "IR", "RECENT", "HIT", "SIG"}, widths)
	for _, w := range sorted {
		sig := ""
		if w.Significant {
			sig = "✓"
		}
		PrintTableRow([]string{
			w.Key,
			fmt.Sprintf("%.3f", w.Weight),
			fmt.Sprintf("%+.3f", w.IC),
			fmt.Sprintf("%+.2f", w.IR),
			fmt.Sprintf("%+.3f", w.RecentIC),
			fmt.Sprintf("%.1f%%", w.HitRate*100),
			sig,
		}, widths)
	}
}

func printPerformance(records []contracts.FactorPerformance) {
	widths := []int{36, 4, 8, 9, 7, 6, 7}
	PrintTableHeader([]string{"CONDITION", "H", "WIN", "AVG RET", "N", "CONF", "APPLIED"}, widths)
	for _, r := range records {
		PrintTableRow([]string{
			r.ConditionKey,
			fmt.Sprintf("%d", r.HorizonDays),
			fmt.Sprintf("%.1f%%", r.WinRate*100),
			fmt.Sprintf("%+.2f%%", r.AvgReturn*100),
			fmt.Sprintf("%d", r.SampleCount),
			string(r.ConfidenceLevel),
			yesNo(r.Applied),
		}, widths)
	}
}
