package execution

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wonny/scout/backend/internal/contracts"
	"github.com/wonny/scout/backend/pkg/httputil"
	"github.com/wonny/scout/backend/pkg/logger"
)

// LogHandoff records handoffs in memory and logs them. Used for dry runs.
type LogHandoff struct {
	mu       sync.Mutex
	handoffs []contracts.Handoff
	logger   *logger.Logger
}

// NewLogHandoff creates a dry-run handoff
func NewLogHandoff(log *logger.Logger) *LogHandoff {
	return &LogHandoff{logger: log.WithComponent("handoff")}
}

// Handoff implements contracts.ExecutionHandoff
func (l *LogHandoff) Handoff(ctx context.Context, h contracts.Handoff) error {
	l.mu.Lock()
	l.handoffs = append(l.handoffs, h)
	l.mu.Unlock()

	l.logger.WithFields(map[string]interface{}{
		"run_id":      h.RunID,
		"symbol":      h.Symbol,
		"regime":      h.Regime,
		"quant_score": h.QuantScore,
		"tradable":    h.Gate.Tradable,
		"strategy":    h.Decision.Strategy.Type,
		"confidence":  h.Decision.Strategy.Confidence,
		"entry_focus": h.EntryFocus,
	}).Info("handoff (dry run)")
	return nil
}

// Dispatch lets LogHandoff serve as an outbox dispatcher when no webhook is set
func (l *LogHandoff) Dispatch(ctx context.Context, h contracts.Handoff) error {
	return l.Handoff(ctx, h)
}

// Handoffs returns a copy of everything handed off so far
func (l *LogHandoff) Handoffs() []contracts.Handoff {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]contracts.Handoff, len(l.handoffs))
	copy(out, l.handoffs)
	return out
}

// WebhookDispatcher POSTs each handoff as JSON to the execution service
type WebhookDispatcher struct {
	client *httputil.Client
	url    string
}

// NewWebhookDispatcher creates a dispatcher for url
func NewWebhookDispatcher(url string, timeout time.Duration, log *logger.Logger) (*WebhookDispatcher, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("invalid webhook url %q", url)
	}
	return &WebhookDispatcher{
		client: httputil.New(log.WithComponent("webhook"), timeout).WithRetry(2, 500*time.Millisecond),
		url:    url,
	}, nil
}

// Dispatch implements Dispatcher
func (w *WebhookDispatcher) Dispatch(ctx context.Context, h contracts.Handoff) error {
	if err := w.client.PostJSON(ctx, w.url, h, nil); err != nil {
		return fmt.Errorf("dispatch %s: %w", h.Symbol, err)
	}
	return nil
}
