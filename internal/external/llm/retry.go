package llm

import (
	"context"
	"strings"
	"time"

	"github.com/wonny/scout/backend/pkg/logger"
)

// IsRateLimitError reports vendor throttling responses
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "429") ||
		strings.Contains(s, "RESOURCE_EXHAUSTED") ||
		strings.Contains(s, "quota") ||
		strings.Contains(s, "rate_limit")
}

// withRetry retries rate-limited calls with exponential backoff. Other errors return immediately.
func withRetry(ctx context.Context, log *logger.Logger, vendor string, maxRetries int, base time.Duration, fn func() error) error {
	var err error
	backoff := base
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = fn()
		if err == nil || !IsRateLimitError(err) || attempt == maxRetries {
			return err
		}

		log.WithFields(map[string]interface{}{
			"vendor":  vendor,
			"attempt": attempt + 1,
			"backoff": backoff,
		}).WithError(err).Warn("rate limited, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
