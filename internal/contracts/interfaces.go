package contracts

import (
	"context"
	"time"
)

// MarketDataProvider supplies read-only market series keyed by stock code and range.
// ⭐ SSOT: 시장 데이터 읽기 인터페이스 (쓰기 없음)
type MarketDataProvider interface {
	ListActiveStocks(ctx context.Context) ([]StockInfo, error)
	GetStock(ctx context.Context, code string) (*StockInfo, error)
	GetBars(ctx context.Context, code string, from, to time.Time) ([]Bar, error)
	GetFundamentals(ctx context.Context, code string, from, to time.Time) ([]Fundamental, error)
	GetFlows(ctx context.Context, code string, from, to time.Time) ([]Flow, error)
	GetMarketCap(ctx context.Context, code string, asOf time.Time) (float64, error)
	GetIndexBars(ctx context.Context, indexCode string, from, to time.Time) ([]Bar, error)
}

// ReasoningRequest is one text-generation call
type ReasoningRequest struct {
	System       string
	Prompt       string
	OutputSchema string // JSON 예시 힌트 (선택)
	Temperature  *float64
	MaxTokens    int
}

// ReasoningResponse is the raw provider output
type ReasoningResponse struct {
	Text     string
	Model    string
	Provider string
	Cached   bool
}

// ReasoningProvider accepts text and returns text
// ⭐ SSOT: LLM 벤더 추상화
type ReasoningProvider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, req *ReasoningRequest) (*ReasoningResponse, error)
}

// ExecutionHandoff receives finalized decisions. The engine's responsibility ends here.
type ExecutionHandoff interface {
	Handoff(ctx context.Context, h Handoff) error
}

// WeightStore is the append-only weight generation log with an active pointer
type WeightStore interface {
	// PublishGeneration writes every row of gen and then makes it active, atomically.
	// A gen whose ComputedAt is not after the active one's fails with
	// ErrStaleGeneration and writes nothing.
	PublishGeneration(ctx context.Context, gen *WeightGeneration) error
	// LatestGeneration returns the active generation or ErrNoGeneration
	LatestGeneration(ctx context.Context) (*WeightGeneration, error)
	ListGenerations(ctx context.Context, limit int) ([]*WeightGeneration, error)
}

// PerformanceStore is the append-only performance history
type PerformanceStore interface {
	// AppendPerformance inserts records with applied=false and returns their IDs in order
	AppendPerformance(ctx context.Context, records []FactorPerformance) ([]int64, error)
	ListPerformance(ctx context.Context, generationID string) ([]FactorPerformance, error)
	// MarkApplied sets the applied flag exactly once; a second call returns ErrAlreadyApplied
	MarkApplied(ctx context.Context, id int64) error
}

// RunLock is a named mutual-exclusion lock shared between processes
type RunLock interface {
	// TryAcquire never blocks. ok=false means another holder has the lock.
	TryAcquire(ctx context.Context, name string) (release func(), ok bool, err error)
}
