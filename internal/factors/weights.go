package factors

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/wonny/scout/backend/internal/contracts"
	"github.com/wonny/scout/backend/pkg/logger"
)

// DefaultGenerationID identifies the built-in equal-weight generation
const DefaultGenerationID = "default"

// DefaultGeneration spreads weight equally over every registered factor.
// Used until the first calibration publishes a generation.
func DefaultGeneration() *contracts.WeightGeneration {
	keys := Keys()
	gen := &contracts.WeightGeneration{
		ID:     DefaultGenerationID,
		Regime: contracts.RegimeSideways,
	}
	for _, k := range keys {
		gen.Weights = append(gen.Weights, contracts.FactorWeight{Key: k, Weight: 1 / float64(len(keys))})
	}
	return gen
}

// WeightSource caches the active generation behind an atomic pointer.
// Readers never block; Refresh swaps in whatever the store reports as latest.
type WeightSource struct {
	store   contracts.WeightStore
	current atomic.Pointer[contracts.WeightGeneration]
	logger  *logger.Logger
}

// NewWeightSource creates a source seeded with the default generation
func NewWeightSource(store contracts.WeightStore, log *logger.Logger) *WeightSource {
	ws := &WeightSource{store: store, logger: log.WithComponent("weights")}
	ws.current.Store(DefaultGeneration())
	return ws
}

// Refresh loads the latest generation. On failure the previous one stays in place.
func (ws *WeightSource) Refresh(ctx context.Context) (*contracts.WeightGeneration, error) {
	gen, err := ws.store.LatestGeneration(ctx)
	if errors.Is(err, contracts.ErrNoGeneration) {
		return ws.current.Load(), nil
	}
	if err != nil {
		return ws.current.Load(), fmt.Errorf("load latest generation: %w", err)
	}
	ws.current.Store(gen)
	return gen, nil
}

// Current returns the cached generation
func (ws *WeightSource) Current() *contracts.WeightGeneration {
	return ws.current.Load()
}

// Stale reports whether the cached generation is older than maxAge or is the default
func (ws *WeightSource) Stale(now time.Time, maxAge time.Duration) bool {
	gen := ws.current.Load()
	return gen.ID == DefaultGenerationID || gen.Age(now) > maxAge
}
