package batch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/scout/backend/pkg/httputil"
	"github.com/wonny/scout/backend/pkg/logger"
)

// Collector triggers one external collection step. Crawling itself lives
// behind this interface.
type Collector interface {
	Collect(ctx context.Context, step Step, days int) error
}

// CollectRequest is the body sent to the collector service
type CollectRequest struct {
	Step Step `json:"step"`
	Days int  `json:"days"`
}

// CollectResponse is the collector service reply
type CollectResponse struct {
	Success bool   `json:"success"`
	Records int    `json:"records"`
	Message string `json:"message,omitempty"`
}

// CollectorHealth is the collector service health reply
type CollectorHealth struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// HTTPCollector posts collection requests to the collector service
type HTTPCollector struct {
	client  *httputil.Client
	baseURL string
	logger  *logger.Logger
}

// NewHTTPCollector creates a collector client. timeout bounds one step.
func NewHTTPCollector(baseURL string, timeout time.Duration, log *logger.Logger) *HTTPCollector {
	return &HTTPCollector{
		// 수집은 멱등이 아니므로 재시도하지 않음
		client:  httputil.New(log.WithComponent("collector"), timeout).DisableRetry(),
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  log.WithComponent("collector"),
	}
}

// Collect implements Collector
func (c *HTTPCollector) Collect(ctx context.Context, step Step, days int) error {
	url := fmt.Sprintf("%s/collect/%s", c.baseURL, step)

	var resp CollectResponse
	if err := c.client.PostJSON(ctx, url, CollectRequest{Step: step, Days: days}, &resp); err != nil {
		return fmt.Errorf("collect %s: %w", step, err)
	}
	if !resp.Success {
		return fmt.Errorf("collect %s: collector reported failure: %s", step, resp.Message)
	}

	c.logger.WithFields(map[string]interface{}{
		"step":    step,
		"days":    days,
		"records": resp.Records,
	}).Info("collection step completed")
	return nil
}

// Health checks that the collector service is reachable and reports ok
func (c *HTTPCollector) Health(ctx context.Context) (*CollectorHealth, error) {
	var h CollectorHealth
	if err := c.client.GetJSON(ctx, c.baseURL+"/health", &h); err != nil {
		return nil, fmt.Errorf("collector health: %w", err)
	}
	if h.Status != "ok" {
		return &h, fmt.Errorf("collector health: status %q", h.Status)
	}
	return &h, nil
}
