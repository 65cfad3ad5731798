package repos

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/scout/backend/internal/contracts"
	"github.com/wonny/scout/backend/pkg/config"
	"github.com/wonny/scout/backend/pkg/database"
)

func testDB(t *testing.T) *database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.New(ctx, &config.Config{Database: config.DatabaseConfig{
		URL:             url,
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: time.Minute,
	}})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))
	t.Cleanup(db.Close)
	return db
}

func TestWeightRepository_PublishAndLatest(t *testing.T) {
	db := testDB(t)
	repo := NewWeightRepository(db.Pool)
	ctx := context.Background()

	gen := &contracts.WeightGeneration{
		ID:            uuid.NewString(),
		ComputedAt:    time.Now().UTC().Truncate(time.Microsecond),
		LookbackYears: 2,
		Regime:        contracts.RegimeBull,
		SampleStocks:  42,
		PolicyHash:    "abc",
		Weights: []contracts.FactorWeight{
			{Key: contracts.FactorMomentum6M, Weight: 0.6, IC: 0.05, IR: 0.8, Significant: true, SampleCount: 500},
			{Key: contracts.FactorValuePER, Weight: 0.4, IC: 0.03, IR: 0.5, Significant: true, SampleCount: 400},
		},
	}
	require.NoError(t, repo.PublishGeneration(ctx, gen))

	latest, err := repo.LatestGeneration(ctx)
	require.NoError(t, err)
	assert.Equal(t, gen.ID, latest.ID)
	assert.Equal(t, contracts.RegimeBull, latest.Regime)
	assert.InDelta(t, 0.6, latest.WeightMap()[contracts.FactorMomentum6M], 1e-12)

	list, err := repo.ListGenerations(ctx, 5)
	require.NoError(t, err)
	require.NotEmpty(t, list)
	assert.Equal(t, gen.ID, list[0].ID)
}

func TestWeightRepository_DuplicatePublishKeepsActive(t *testing.T) {
	db := testDB(t)
	repo := NewWeightRepository(db.Pool)
	ctx := context.Background()

	gen := &contracts.WeightGeneration{ID: uuid.NewString(), ComputedAt: time.Now(), LookbackYears: 2, Regime: contracts.RegimeSideways}
	require.NoError(t, repo.PublishGeneration(ctx, gen))

	// 같은 ID 재발행은 실패하고 활성 세대는 그대로
	require.Error(t, repo.PublishGeneration(ctx, gen))
	latest, err := repo.LatestGeneration(ctx)
	require.NoError(t, err)
	assert.Equal(t, gen.ID, latest.ID)
}

func TestWeightRepository_OlderPublishKeepsNewerActive(t *testing.T) {
	db := testDB(t)
	repo := NewWeightRepository(db.Pool)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	newer := &contracts.WeightGeneration{ID: uuid.NewString(), ComputedAt: now, LookbackYears: 2, Regime: contracts.RegimeBull}
	older := &contracts.WeightGeneration{ID: uuid.NewString(), ComputedAt: now.Add(-time.Hour), LookbackYears: 2, Regime: contracts.RegimeBear}

	require.NoError(t, repo.PublishGeneration(ctx, newer))
	require.ErrorIs(t, repo.PublishGeneration(ctx, older), contracts.ErrStaleGeneration)

	latest, err := repo.LatestGeneration(ctx)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)
}

func TestAdvisoryLock_TryAcquire(t *testing.T) {
	db := testDB(t)
	lock := NewAdvisoryLock(db.Pool)
	ctx := context.Background()
	name := "scout:test:" + uuid.NewString()

	release, ok, err := lock.TryAcquire(ctx, name)
	require.NoError(t, err)
	require.True(t, ok)

	// 다른 세션에서는 획득 불가
	_, ok, err = lock.TryAcquire(ctx, name)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	again, ok, err := lock.TryAcquire(ctx, name)
	require.NoError(t, err)
	assert.True(t, ok)
	again()
}

func TestPerformanceRepository_MarkAppliedOnce(t *testing.T) {
	db := testDB(t)
	repo := NewPerformanceRepository(db.Pool)
	ctx := context.Background()

	genID := uuid.NewString()
	ids, err := repo.AppendPerformance(ctx, []contracts.FactorPerformance{
		{GenerationID: genID, ConditionKey: "momentum_6m:top_quintile", HorizonDays: 10, WinRate: 0.6, AvgReturn: 0.01, SampleCount: 40, ConfidenceLevel: contracts.ConfidenceHigh},
		{GenerationID: genID, ConditionKey: "value_per:top_quintile", HorizonDays: 10, WinRate: 0.5, AvgReturn: 0.0, SampleCount: 10, ConfidenceLevel: contracts.ConfidenceLow},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	require.NoError(t, repo.MarkApplied(ctx, ids[0]))
	assert.ErrorIs(t, repo.MarkApplied(ctx, ids[0]), contracts.ErrAlreadyApplied)
	assert.Error(t, repo.MarkApplied(ctx, -1))

	records, err := repo.ListPerformance(ctx, genID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.True(t, records[0].Applied)
	assert.NotNil(t, records[0].AppliedAt)
	assert.False(t, records[1].Applied)
}
