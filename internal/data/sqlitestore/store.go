package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wonny/scout/backend/internal/contracts"
	"github.com/wonny/scout/backend/pkg/logger"
)

// Store implements contracts.WeightStore and contracts.PerformanceStore on a local SQLite file
type Store struct {
	db     *sql.DB
	logger *logger.Logger
}

// Open opens (or creates) the SQLite database and runs migrations
func Open(path string, log *logger.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// modernc.org/sqlite 드라이버 이름은 "sqlite"
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// 단일 writer로 트랜잭션 직렬화
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: log.WithComponent("sqlitestore")}
	if err := s.configure(); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure: %w", err)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.logger.WithField("path", path).Info("sqlite store opened")
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS weight_generations (
			id             TEXT PRIMARY KEY,
			computed_at    INTEGER NOT NULL,
			lookback_years INTEGER NOT NULL,
			regime         TEXT NOT NULL,
			sample_stocks  INTEGER NOT NULL DEFAULT 0,
			policy_hash    TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_generations_computed ON weight_generations(computed_at)`,

		`CREATE TABLE IF NOT EXISTS factor_weights (
			generation_id TEXT NOT NULL REFERENCES weight_generations(id),
			factor_key    TEXT NOT NULL,
			weight        REAL NOT NULL,
			ic            REAL NOT NULL,
			ir            REAL NOT NULL,
			recent_ic     REAL NOT NULL,
			hit_rate      REAL NOT NULL,
			sample_count  INTEGER NOT NULL,
			significant   INTEGER NOT NULL,
			PRIMARY KEY (generation_id, factor_key)
		)`,

		`CREATE TABLE IF NOT EXISTS active_generation (
			singleton     INTEGER PRIMARY KEY CHECK (singleton = 1),
			generation_id TEXT NOT NULL REFERENCES weight_generations(id),
			updated_at    INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS factor_performance (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			generation_id    TEXT NOT NULL,
			condition_key    TEXT NOT NULL,
			horizon_days     INTEGER NOT NULL,
			win_rate         REAL NOT NULL,
			avg_return       REAL NOT NULL,
			sample_count     INTEGER NOT NULL,
			confidence_level TEXT NOT NULL,
			applied          INTEGER NOT NULL DEFAULT 0,
			applied_at       INTEGER,
			created_at       INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_performance_generation ON factor_performance(generation_id)`,

		`CREATE TABLE IF NOT EXISTS run_locks (
			name       TEXT PRIMARY KEY,
			holder     TEXT NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// PublishGeneration appends the generation and moves the active pointer in one transaction.
// The pointer only moves forward in computed_at; an older generation rolls back with ErrStaleGeneration.
func (s *Store) PublishGeneration(ctx context.Context, gen *contracts.WeightGeneration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO weight_generations (id, computed_at, lookback_years, regime, sample_stocks, policy_hash)
		VALUES (?, ?, ?, ?, ?, ?)
	`, gen.ID, gen.ComputedAt.UnixNano(), gen.LookbackYears, string(gen.Regime), gen.SampleStocks, gen.PolicyHash)
	if err != nil {
		return fmt.Errorf("insert generation %s: %w", gen.ID, err)
	}

	for _, w := range gen.Weights {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO factor_weights
				(generation_id, factor_key, weight, ic, ir, recent_ic, hit_rate, sample_count, significant)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, gen.ID, w.Key, w.Weight, w.IC, w.IR, w.RecentIC, w.HitRate, w.SampleCount, w.Significant)
		if err != nil {
			return fmt.Errorf("insert factor weight %s: %w", w.Key, err)
		}
	}

	// 더 최신 세대만 활성화
	res, err := tx.ExecContext(ctx, `
		INSERT INTO active_generation (singleton, generation_id, updated_at) VALUES (1, ?, ?)
		ON CONFLICT (singleton) DO UPDATE SET generation_id = excluded.generation_id, updated_at = excluded.updated_at
		WHERE (SELECT g.computed_at FROM weight_generations g WHERE g.id = active_generation.generation_id) < ?
	`, gen.ID, time.Now().UnixNano(), gen.ComputedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("swap active generation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("swap active generation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("publish generation %s: %w", gen.ID, contracts.ErrStaleGeneration)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LatestGeneration returns the active generation or contracts.ErrNoGeneration
func (s *Store) LatestGeneration(ctx context.Context) (*contracts.WeightGeneration, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT g.id, g.computed_at, g.lookback_years, g.regime, g.sample_stocks, g.policy_hash
		FROM active_generation a
		JOIN weight_generations g ON g.id = a.generation_id
		WHERE a.singleton = 1
	`)
	gen, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contracts.ErrNoGeneration
	}
	if err != nil {
		return nil, fmt.Errorf("get active generation: %w", err)
	}

	if err := s.loadWeights(ctx, gen); err != nil {
		return nil, err
	}
	return gen, nil
}

// ListGenerations returns the newest generations first
func (s *Store) ListGenerations(ctx context.Context, limit int) ([]*contracts.WeightGeneration, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, computed_at, lookback_years, regime, sample_stocks, policy_hash
		FROM weight_generations
		ORDER BY computed_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query generations: %w", err)
	}

	var gens []*contracts.WeightGeneration
	for rows.Next() {
		gen, err := scanGeneration(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		gens = append(gens, gen)
	}
	// 단일 연결이므로 가중치 조회 전에 커서를 닫아야 함
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, g := range gens {
		if err := s.loadWeights(ctx, g); err != nil {
			return nil, err
		}
	}
	return gens, nil
}

func (s *Store) loadWeights(ctx context.Context, gen *contracts.WeightGeneration) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT factor_key, weight, ic, ir, recent_ic, hit_rate, sample_count, significant
		FROM factor_weights
		WHERE generation_id = ?
		ORDER BY factor_key
	`, gen.ID)
	if err != nil {
		return fmt.Errorf("query factor weights: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var w contracts.FactorWeight
		if err := rows.Scan(&w.Key, &w.Weight, &w.IC, &w.IR, &w.RecentIC, &w.HitRate, &w.SampleCount, &w.Significant); err != nil {
			return fmt.Errorf("scan factor weight: %w", err)
		}
		gen.Weights = append(gen.Weights, w)
	}
	return rows.Err()
}

// AppendPerformance inserts records with applied=false in one transaction
func (s *Store) AppendPerformance(ctx context.Context, records []contracts.FactorPerformance) ([]int64, error) {
	if len(records) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixNano()
	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO factor_performance
				(generation_id, condition_key, horizon_days, win_rate, avg_return, sample_count, confidence_level, applied, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
		`, rec.GenerationID, rec.ConditionKey, rec.HorizonDays, rec.WinRate, rec.AvgReturn,
			rec.SampleCount, string(rec.ConfidenceLevel), now)
		if err != nil {
			return nil, fmt.Errorf("insert performance %s: %w", rec.ConditionKey, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("last insert id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

// ListPerformance returns a generation's records in insertion order
func (s *Store) ListPerformance(ctx context.Context, generationID string) ([]contracts.FactorPerformance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, generation_id, condition_key, horizon_days, win_rate, avg_return,
		       sample_count, confidence_level, applied, applied_at, created_at
		FROM factor_performance
		WHERE generation_id = ?
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
		var appliedAt sql.NullInt64
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.GenerationID, &p.ConditionKey, &p.HorizonDays, &p.WinRate, &p.AvgReturn,
			&p.SampleCount, &level, &p.Applied, &appliedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan performance: %w", err)
		}
		p.ConfidenceLevel = contracts.ConfidenceLevel(level)
		p.CreatedAt = time.Unix(0, createdAt).UTC()
		if appliedAt.Valid {
			t := time.Unix(0, appliedAt.Int64).UTC()
			p.AppliedAt = &t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkApplied flips applied exactly once. A second call returns contracts.ErrAlreadyApplied.
func (s *Store) MarkApplied(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE factor_performance SET applied = 1, applied_at = ? WHERE id = ? AND applied = 0
	`, time.Now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("mark applied %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM factor_performance WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check performance %d: %w", id, err)
	}
	if exists == 0 {
		return fmt.Errorf("performance record %d not found", id)
	}
	return contracts.ErrAlreadyApplied
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGeneration(row scanner) (*contracts.WeightGeneration, error) {
	var g contracts.WeightGeneration
	var computedAt int64
	var regime string
	if err := row.Scan(&g.ID, &computedAt, &g.LookbackYears, &regime, &g.SampleStocks, &g.PolicyHash); err != nil {
		return nil, err
	}
	g.ComputedAt = time.Unix(0, computedAt).UTC()
	g.Regime = contracts.RegimeLabel(regime)
	return &g, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
