package repos

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/scout/backend/internal/contracts"
)

// PerformanceRepository implements contracts.PerformanceStore on PostgreSQL
type PerformanceRepository struct {
	pool *pgxpool.Pool
}

// NewPerformanceRepository creates a new performance repository
func NewPerformanceRepository(pool *pgxpool.Pool) *PerformanceRepository {
	return &PerformanceRepository{pool: pool}
}

// AppendPerformance inserts records with applied=false in one transaction
func (r *PerformanceRepository) AppendPerformance(ctx context.Context, records []contracts.FactorPerformance) ([]int64, error) {
	if len(records) == 0 {
		return nil, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO analytics.factor_performance
				(generation_id, condition_key, horizon_days, win_rate, avg_return, sample_count, confidence_level, applied)
			VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, FALSE)
			RETURNING id
		`, rec.GenerationID, rec.ConditionKey, rec.HorizonDays, rec.WinRate, rec.AvgReturn,
			rec.SampleCount, string(rec.ConfidenceLevel)).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("insert performance %s: %w", rec.ConditionKey, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return ids, nil
}

// ListPerformance returns a generation's records in insertion order
func (r *PerformanceRepository) ListPerformance(ctx context.Context, generationID string) ([]contracts.FactorPerformance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, generation_id::text, condition_key, horizon_days, win_rate, avg_return,
		       sample_count, confidence_level, applied, applied_at, created_at
		FROM analytics.factor_performance
		WHERE generation_id = $1::uuid
		ORDER BY id
	`, generationID)
	if err != nil {
		return nil, fmt.Errorf("query performance: %w", err)
	}
	defer rows.Close()

	var out []contracts.FactorPerformance
	for rows.Next() {
		var p contracts.FactorPerformance
		var level string
		if err := rows.Scan(&p.ID, &p.GenerationID, &p.ConditionKey, &p.HorizonDays, &p.WinRate, &p.AvgReturn,
			&p.SampleCount, &level, &p.Applied, &p.AppliedAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan performance: %w", err)
		}
		p.ConfidenceLevel = contracts.ConfidenceLevel(level)
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkApplied flips applied exactly once. A second call returns contracts.ErrAlreadyApplied.
func (r *PerformanceRepository) MarkApplied(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE analytics.factor_performance
		SET applied = TRUE, applied_at = NOW()
		WHERE id = $1 AND applied = FALSE
	`, id)
	if err != nil {
		return fmt.Errorf("mark applied %d: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM analytics.factor_performance WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check performance %d: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("performance record %d not found", id)
	}
	return contracts.ErrAlreadyApplied
}
