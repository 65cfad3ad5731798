package commands

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/scout/backend/internal/batch"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "연결 및 엔진 상태 점검",
	Long: `설정, 정책, 저장소 연결과 활성 가중치 상태를 점검합니다.

이 명령어는:
- config와 정책 YAML 로드 (정책 해시 표시)
- PostgreSQL Health Check 및 풀 통계
- 가중치 저장소(postgres/sqlite)와 활성 세대 신선도
- 수집 서비스 Health Check (COLLECTOR_BASE_URL 설정 시)
- Redis 추론 캐시 연결

Example:
  go run ./cmd/scout status
  go run ./cmd/scout status --config .env.production`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Scout Engine Status ===")
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		PrintError(err.Error())
		return err
	}
	defer a.Close()

	PrintSuccess(fmt.Sprintf("Config loaded (ENV: %s)", a.cfg.Env))
	PrintKeyValue("Policy", fmt.Sprintf("%s (%s)", a.policySource, shortHash(a.policyHash)), 12)
	PrintKeyValue("LLM", fmt.Sprintf("%s %s", a.cfg.LLM.Provider, a.cfg.LLM.Model), 12)
	PrintKeyValue("Handoff", a.cfg.Execution.Handoff, 12)
	fmt.Println()

	if a.db != nil {
		PrintKeyValue("Database", maskPassword(a.cfg.Database.URL), 12)
		status, err := a.db.HealthCheck(ctx)
		if err != nil {
			PrintError(fmt.Sprintf("Database health check failed: %v", err))
			return err
		}
		PrintSuccess(fmt.Sprintf("Database healthy (%v)", status.ResponseTime.Round(time.Microsecond)))
		PrintKeyValue("Pool", fmt.Sprintf("%d/%d conns, %d idle", status.Stats.TotalConns, status.Stats.MaxConns, status.Stats.IdleConns), 12)
	} else {
		PrintWarning("DATABASE_URL not set, market data unavailable")
	}

	gen, err := a.weights.Refresh(ctx)
	if err != nil {
		PrintError(fmt.Sprintf("Weight store (%s): %v", a.cfg.Store.Backend, err))
		return err
	}
	PrintSuccess(fmt.Sprintf("Weight store (%s) reachable", a.cfg.Store.Backend))
	PrintKeyValue("Generation", gen.ID, 12)
	if a.weights.Stale(time.Now(), a.policy.Engine.WeightsMaxAge) {
		PrintWarning("weights are stale, run calibrate")
	}

	if a.outbox != nil {
		st, err := a.outbox.Stats(ctx)
		if err != nil {
			PrintError(fmt.Sprintf("Outbox: %v", err))
			return err
		}
		PrintKeyValue("Outbox", fmt.Sprintf("%d pending, %d failed", st.Pending, st.Failed), 12)
	}

	if base := a.cfg.Batch.CollectorBaseURL; base != "" {
		// 수집 서비스 없이도 분석 전용 배치는 가능
		if h, err := batch.NewHTTPCollector(base, 5*time.Second, a.log).Health(ctx); err != nil {
			PrintWarning(fmt.Sprintf("%v (collection steps will fail)", err))
		} else {
			PrintSuccess(fmt.Sprintf("Collector healthy (%s)", h.Version))
		}
	}

	if _, err := a.provider(ctx); err != nil {
		PrintError(err.Error())
		return err
	}
	if a.redis.Enabled() {
		PrintSuccess("Redis reasoning cache connected")
	} else {
		PrintInfo("Redis reasoning cache disabled")
	}

	fmt.Println("\n✅ All checks passed!")
	return nil
}

// maskPassword hides the password in a connection URL for display
func maskPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
