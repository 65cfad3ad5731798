package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errNoOutbox = errors.New("outbox handoff is not configured (EXECUTION_HANDOFF=outbox)")

// outboxCmd represents the outbox command
var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "실행 전달 outbox 관리",
	Long: `게이트를 통과해 outbox에 적재된 결정의 전달 상태를 관리합니다.

Subcommands:
  stats  - 상태별 건수
  relay  - 대기 중인 항목을 한 번 전달

Example:
  go run ./cmd/scout outbox stats
  go run ./cmd/scout outbox relay`,
}

var (
	outboxStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "상태별 건수",
		RunE:  outboxStats,
	}

	outboxRelayCmd = &cobra.Command{
		Use:   "relay",
		Short: "대기 항목 1회 전달",
		RunE:  outboxRelay,
	}
)

func init() {
	rootCmd.AddCommand(outboxCmd)
	outboxCmd.AddCommand(outboxStatsCmd)
	outboxCmd.AddCommand(outboxRelayCmd)
}

func outboxStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.outbox == nil {
		return errNoOutbox
	}

	stats, err := a.outbox.Stats(ctx)
	if err != nil {
		return fmt.Errorf("outbox stats: %w", err)
	}

	PrintKeyValue("Pending", fmt.Sprintf("%d", stats.Pending), 8)
	PrintKeyValue("Sent", fmt.Sprintf("%d", stats.Sent), 8)
	PrintKeyValue("Failed", fmt.Sprintf("%d", stats.Failed), 8)
	PrintKeyValue("Total", fmt.Sprintf("%d", stats.Total), 8)
	return nil
}

func outboxRelay(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.outbox == nil {
		return errNoOutbox
	}

	d, err := a.dispatcher()
	if err != nil {
		return err
	}

	sent, err := a.outbox.Relay(ctx, d)
	if err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	PrintSuccess(fmt.Sprintf("Relayed %d handoff(s)", sent))
	return nil
}
