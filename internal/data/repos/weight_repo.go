package repos

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/scout/backend/internal/contracts"
)

// WeightRepository implements contracts.WeightStore on PostgreSQL
// ⭐ SSOT: 팩터 가중치 세대 저장/조회는 여기서만
type WeightRepository struct {
	pool *pgxpool.Pool
}

// NewWeightRepository creates a new weight repository
func NewWeightRepository(pool *pgxpool.Pool) *WeightRepository {
	return &WeightRepository{pool: pool}
}

// publishLockKey serializes publishers across processes
const publishLockKey = "scout:weight_generations:publish"

// PublishGeneration appends the generation and moves the active pointer in one transaction.
// The pointer only moves forward in computed_at; an older generation rolls back with ErrStaleGeneration.
func (r *WeightRepository) PublishGeneration(ctx context.Context, gen *contracts.WeightGeneration) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, publishLockKey); err != nil {
		return fmt.Errorf("lock publish: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO analytics.weight_generations
			(id, computed_at, lookback_years, regime, sample_stocks, policy_hash)
		VALUES ($1::uuid, $2, $3, $4, $5, $6)
	`, gen.ID, gen.ComputedAt, gen.LookbackYears, string(gen.Regime), gen.SampleStocks, gen.PolicyHash)
	if err != nil {
		return fmt.Errorf("insert generation %s: %w", gen.ID, err)
	}

	batch := &pgx.Batch{}
	for _, w := range gen.Weights {
		batch.Queue(`
			INSERT INTO analytics.factor_weights
				(generation_id, factor_key, weight, ic, ir, recent_ic, hit_rate, sample_count, significant)
			VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9)
		`, gen.ID, w.Key, w.Weight, w.IC, w.IR, w.RecentIC, w.HitRate, w.SampleCount, w.Significant)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert factor weights: %w", err)
	}

	// 커밋 시점에만 활성 세대가 바뀜. 더 최신 세대만 활성화
	tag, err := tx.Exec(ctx, `
		INSERT INTO analytics.active_generation AS a (singleton, generation_id, updated_at)
		VALUES (TRUE, $1::uuid, NOW())
		ON CONFLICT (singleton) DO UPDATE SET
			generation_id = EXCLUDED.generation_id,
			updated_at = NOW()
		WHERE (SELECT g.computed_at FROM analytics.weight_generations g WHERE g.id = a.generation_id) < $2
	`, gen.ID, gen.ComputedAt)
	if err != nil {
		return fmt.Errorf("swap active generation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("publish generation %s: %w", gen.ID, contracts.ErrStaleGeneration)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LatestGeneration returns the active generation or contracts.ErrNoGeneration
func (r *WeightRepository) LatestGeneration(ctx context.Context) (*contracts.WeightGeneration, error) {
	query := `
		SELECT g.id::text, g.computed_at, g.lookback_years, g.regime, g.sample_stocks, g.policy_hash
		FROM analytics.active_generation a
		JOIN analytics.weight_generations g ON g.id = a.generation_id
		WHERE a.singleton
	`

	gen, err := scanGeneration(r.pool.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNoGeneration
	}
	if err != nil {
		return nil, fmt.Errorf("get active generation: %w", err)
	}

	if err := r.loadWeights(ctx, []*contracts.WeightGeneration{gen}); err != nil {
		return nil, err
	}
	return gen, nil
}

// ListGenerations returns the newest generations first
func (r *WeightRepository) ListGenerations(ctx context.Context, limit int) ([]*contracts.WeightGeneration, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id::text, computed_at, lookback_years, regime, sample_stocks, policy_hash
		FROM analytics.weight_generations
		ORDER BY computed_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query generations: %w", err)
	}
	defer rows.Close()

	var gens []*contracts.WeightGeneration
	for rows.Next() {
		gen, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		gens = append(gens, gen)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	if err := r.loadWeights(ctx, gens); err != nil {
		return nil, err
	}
	return gens, nil
}

func (r *WeightRepository) loadWeights(ctx context.Context, gens []*contracts.WeightGeneration) error {
	if len(gens) == 0 {
		return nil
	}

	byID := make(map[string]*contracts.WeightGeneration, len(gens))
	ids := make([]string, 0, len(gens))
	for _, g := range gens {
		byID[g.ID] = g
		ids = append(ids, g.ID)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT generation_id::text, factor_key, weight, ic, ir, recent_ic, hit_rate, sample_count, significant
		FROM analytics.factor_weights
		WHERE generation_id = ANY($1::uuid[])
		ORDER BY generation_id, factor_key
	`, ids)
	if err != nil {
		return fmt.Errorf("query factor weights: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var genID string
		var w contracts.FactorWeight
		if err := rows.Scan(&genID, &w.Key, &w.Weight, &w.IC, &w.IR, &w.RecentIC, &w.HitRate, &w.SampleCount, &w.Significant); err != nil {
			return fmt.Errorf("scan factor weight: %w", err)
		}
		if g, ok := byID[genID]; ok {
			g.Weights = append(g.Weights, w)
		}
	}
	return rows.Err()
}

func scanGeneration(row pgx.Row) (*contracts.WeightGeneration, error) {
	var g contracts.WeightGeneration
	var regime string
	if err := row.Scan(&g.ID, &g.ComputedAt, &g.LookbackYears, &regime, &g.SampleStocks, &g.PolicyHash); err != nil {
		return nil, err
	}
	g.Regime = contracts.RegimeLabel(regime)
	return &g, nil
}
