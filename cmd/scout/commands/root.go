package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scout",
	Short: "Scout - 팩터 + LLM 하이브리드 종목 평가 엔진",
	Long: `Scout Engine CLI

팩터 점수와 LLM 추론을 결합하고 시장 국면에 따라 매매 가능 여부를 판정합니다.
주간 배치로 팩터 가중치를 재보정하고, 통과한 결정만 실행 계층으로 넘깁니다.

Usage:
  go run ./cmd/scout [command]

Examples:
  go run ./cmd/scout calibrate
  go run ./cmd/scout evaluate 005930 000660 --dry-run
  go run ./cmd/scout regime
  go run ./cmd/scout weights list
  go run ./cmd/scout api`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "env file (default: search .env)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
