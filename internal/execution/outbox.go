package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/scout/backend/internal/contracts"
	"github.com/wonny/scout/backend/pkg/logger"
)

// Outbox statuses
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Dispatcher delivers one handoff to the execution layer
type Dispatcher interface {
	Dispatch(ctx context.Context, h contracts.Handoff) error
}

// OutboxEntry is one queued handoff
type OutboxEntry struct {
	ID        string            `json:"id"`
	RunID     string            `json:"run_id"`
	Symbol    string            `json:"symbol"`
	Handoff   contracts.Handoff `json:"handoff"`
	Attempts  int               `json:"attempts"`
	CreatedAt time.Time         `json:"created_at"`
}

// Outbox persists finalized decisions and relays them to a Dispatcher
// ⭐ SSOT: 실행 계층 전달은 이 구조체에서만 (pending → sent)
type Outbox struct {
	db          *pgxpool.Pool
	batchSize   int
	interval    time.Duration
	maxAttempts int
	logger      *logger.Logger
	stopCh      chan struct{}
}

// NewOutbox creates a new outbox
func NewOutbox(db *pgxpool.Pool, interval time.Duration, maxAttempts int, log *logger.Logger) *Outbox {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Outbox{
		db:          db,
		batchSize:   100,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      log.WithComponent("outbox"),
		stopCh:      make(chan struct{}),
	}
}

// Handoff implements contracts.ExecutionHandoff by enqueueing a pending row
func (o *Outbox) Handoff(ctx context.Context, h contracts.Handoff) error {
	return o.HandoffBatch(ctx, []contracts.Handoff{h})
}

// HandoffBatch enqueues multiple handoffs in one transaction
func (o *Outbox) HandoffBatch(ctx context.Context, hs []contracts.Handoff) error {
	if len(hs) == 0 {
		return nil
	}

	tx, err := o.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO execution.handoff_outbox (id, run_id, symbol, payload, status, attempts, created_at)
		VALUES ($1::uuid, $2, $3, $4, 'pending', 0, NOW())
	`

	for _, h := range hs {
		payload, err := json.Marshal(h)
		if err != nil {
			return fmt.Errorf("marshal handoff for %s: %w", h.Symbol, err)
		}
		if _, err := tx.Exec(ctx, query, uuid.NewString(), h.RunID, h.Symbol, payload); err != nil {
			return fmt.Errorf("enqueue handoff for %s: %w", h.Symbol, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	o.logger.WithField("count", len(hs)).Debug("Enqueued handoffs")
	return nil
}

// Start relays pending rows until ctx is cancelled or Stop is called
func (o *Outbox) Start(ctx context.Context, d Dispatcher) {
	o.logger.Info("Starting outbox relay")

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("Outbox relay stopped (context cancelled)")
			return
		case <-o.stopCh:
			o.logger.Info("Outbox relay stopped")
			return
		case <-ticker.C:
			if _, err := o.Relay(ctx, d); err != nil {
				o.logger.WithError(err).Error("Failed to relay outbox batch")
			}
		}
	}
}

// Stop stops the relay
func (o *Outbox) Stop() {
	close(o.stopCh)
}

// Relay dispatches one batch of pending rows and returns how many were sent
func (o *Outbox) Relay(ctx context.Context, d Dispatcher) (int, error) {
	entries, err := o.pending(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, e := range entries {
		if err := d.Dispatch(ctx, e.Handoff); err != nil {
			o.logger.WithError(err).WithFields(map[string]interface{}{
				"outbox_id": e.ID,
				"symbol":    e.Symbol,
				"attempts":  e.Attempts + 1,
			}).Warn("Failed to dispatch handoff")

			if err := o.recordFailure(ctx, e, err); err != nil {
				return sent, err
			}
			continue
		}

		if err := o.markSent(ctx, e.ID); err != nil {
			return sent, err
		}
		sent++
	}

	if len(entries) > 0 {
		o.logger.WithFields(map[string]interface{}{
			"count": len(entries),
			"sent":  sent,
		}).Debug("Relayed outbox batch")
	}
	return sent, nil
}

func (o *Outbox) pending(ctx context.Context) ([]OutboxEntry, error) {
	query := `
		SELECT id::text, run_id, symbol, payload, attempts, created_at
		FROM execution.handoff_outbox
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`

	rows, err := o.db.Query(ctx, query, o.batchSize)
	if err != nil {
		return nil, fmt.Errorf("query pending handoffs: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		var payload []byte
		if err := rows.Scan(&e.ID, &e.RunID, &e.Symbol, &payload, &e.Attempts, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan handoff: %w", err)
		}
		if err := json.Unmarshal(payload, &e.Handoff); err != nil {
			return nil, fmt.Errorf("decode handoff %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return entries, nil
}

func (o *Outbox) markSent(ctx context.Context, id string) error {
	_, err := o.db.Exec(ctx, `
		UPDATE execution.handoff_outbox
		SET status = 'sent', sent_at = NOW(), attempts = attempts + 1
		WHERE id = $1::uuid AND status = 'pending'
	`, id)
	if err != nil {
		return fmt.Errorf("mark sent %s: %w", id, err)
	}
	return nil
}

// recordFailure increments attempts and parks the row as failed after maxAttempts
func (o *Outbox) recordFailure(ctx context.Context, e OutboxEntry, cause error) error {
	status := StatusPending
	if e.Attempts+1 >= o.maxAttempts {
		status = StatusFailed
	}
	_, err := o.db.Exec(ctx, `
		UPDATE execution.handoff_outbox
		SET attempts = attempts + 1, last_error = $2, status = $3
		WHERE id = $1::uuid
	`, e.ID, cause.Error(), status)
	if err != nil {
		return fmt.Errorf("record failure %s: %w", e.ID, err)
	}
	return nil
}

// Stats returns outbox counts by status
func (o *Outbox) Stats(ctx context.Context) (*OutboxStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending') as pending,
			COUNT(*) FILTER (WHERE status = 'sent') as sent,
			COUNT(*) FILTER (WHERE status = 'failed') as failed,
			COUNT(*) as total
		FROM execution.handoff_outbox
	`

	var stats OutboxStats
	if err := o.db.QueryRow(ctx, query).Scan(&stats.Pending, &stats.Sent, &stats.Failed, &stats.Total); err != nil {
		return nil, fmt.Errorf("get outbox stats: %w", err)
	}
	return &stats, nil
}

// OutboxStats represents outbox statistics
type OutboxStats struct {
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
}
