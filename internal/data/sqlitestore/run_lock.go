package sqlitestore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunLockLease bounds how long a crashed holder can keep a run lock
const RunLockLease = 6 * time.Hour

// TryAcquire implements contracts.RunLock with a leased row in run_locks.
// An expired lease is taken over.
func (s *Store) TryAcquire(ctx context.Context, name string) (func(), bool, error) {
	holder := uuid.NewString()
	now := time.Now()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO run_locks (name, holder, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET holder = excluded.holder, expires_at = excluded.expires_at
		WHERE run_locks.expires_at < ?
	`, name, holder, now.Add(RunLockLease).UnixNano(), now.UnixNano())
	if err != nil {
		return nil, false, fmt.Errorf("acquire run lock %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("acquire run lock %s: %w", name, err)
	}
	if n == 0 {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// 만료 후 다른 holder가 가져간 잠금은 건드리지 않음
		if _, err := s.db.ExecContext(ctx, `DELETE FROM run_locks WHERE name = ? AND holder = ?`, name, holder); err != nil {
			s.logger.WithError(err).WithField("lock", name).Warn("release run lock failed")
		}
	}
	return release, true, nil
}
