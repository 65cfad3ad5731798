package repos

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AdvisoryLock implements contracts.RunLock with PostgreSQL session advisory locks.
// The lock lives on one pooled connection until released.
type AdvisoryLock struct {
	pool *pgxpool.Pool
}

// NewAdvisoryLock creates an advisory lock backed by the pool
func NewAdvisoryLock(pool *pgxpool.Pool) *AdvisoryLock {
	return &AdvisoryLock{pool: pool}
}

// TryAcquire takes pg_try_advisory_lock on a dedicated connection
func (l *AdvisoryLock) TryAcquire(ctx context.Context, name string) (func(), bool, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, name).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock %s: %w", name, err)
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}

	release := func() {
		// 호출자 ctx가 취소돼도 잠금은 풀어야 함
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, name); err != nil {
			// 세션 잠금이 남지 않도록 연결을 버림
			_ = conn.Conn().Close(ctx)
		}
		conn.Release()
	}
	return release, true, nil
}
