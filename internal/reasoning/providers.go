package reasoning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/scout/backend/internal/contracts"
	"github.com/wonny/scout/backend/pkg/logger"
	"github.com/wonny/scout/backend/pkg/redis"
)

// CachedProvider serves repeated prompts from Redis. Prompts are deterministic,
// so identical inputs hit the same entry.
type CachedProvider struct {
	next   contracts.ReasoningProvider
	cache  *redis.Cache
	ttl    time.Duration
	logger *logger.Logger
}

// NewCachedProvider wraps next with a response cache
func NewCachedProvider(next contracts.ReasoningProvider, cache *redis.Cache, ttl time.Duration, log *logger.Logger) *CachedProvider {
	return &CachedProvider{next: next, cache: cache, ttl: ttl, logger: log.WithComponent("reasoning_cache")}
}

func (p *CachedProvider) Name() string  { return p.next.Name() }
func (p *CachedProvider) Model() string { return p.next.Model() }

// Generate returns a cached response when present, otherwise calls through and stores it
func (p *CachedProvider) Generate(ctx context.Context, req *contracts.ReasoningRequest) (*contracts.ReasoningResponse, error) {
	key := p.key(req)

	var cached contracts.ReasoningResponse
	found, err := p.cache.Get(ctx, key, &cached)
	if err != nil {
		p.logger.WithError(err).Warn("cache read failed")
	}
	if found {
		cached.Cached = true
		return &cached, nil
	}

	resp, err := p.next.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := p.cache.Set(ctx, key, resp, p.ttl); err != nil {
		p.logger.WithError(err).Warn("cache write failed")
	}
	return resp, nil
}

// Invalidate drops the entry for req (used when a cached answer fails validation)
func (p *CachedProvider) Invalidate(ctx context.Context, req *contracts.ReasoningRequest) error {
	return p.cache.Delete(ctx, p.key(req))
}

func (p *CachedProvider) key(req *contracts.ReasoningRequest) string {
	return redis.PromptKey(p.next.Name()+"/"+p.next.Model(), req.System, req.Prompt+"\x00"+req.OutputSchema)
}

// RateLimitedProvider caps outgoing calls with a token bucket
type RateLimitedProvider struct {
	next    contracts.ReasoningProvider
	limiter *rate.Limiter
}

// NewRateLimitedProvider allows rps calls per second with the given burst
func NewRateLimitedProvider(next contracts.ReasoningProvider, rps float64, burst int) *RateLimitedProvider {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedProvider{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (p *RateLimitedProvider) Name() string  { return p.next.Name() }
func (p *RateLimitedProvider) Model() string { return p.next.Model() }

// Generate waits for a token, then calls through
func (p *RateLimitedProvider) Generate(ctx context.Context, req *contracts.ReasoningRequest) (*contracts.ReasoningResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return p.next.Generate(ctx, req)
}

// Invalidator is implemented by providers that cache responses
type Invalidator interface {
	Invalidate(ctx context.Context, req *contracts.ReasoningRequest) error
}

// Invalidate drops a cached response, looking through wrappers
func (p *RateLimitedProvider) Invalidate(ctx context.Context, req *contracts.ReasoningRequest) error {
	if inv, ok := p.next.(Invalidator); ok {
		return inv.Invalidate(ctx, req)
	}
	return nil
}

// Call runs one provider call under its own timeout. A deadline hit becomes a TimeoutError.
func Call(ctx context.Context, provider contracts.ReasoningProvider, req *contracts.ReasoningRequest, timeout time.Duration, code, stage string) (*contracts.ReasoningResponse, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := provider.Generate(callCtx, req)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return nil, &contracts.TimeoutError{
			Code:    code,
			Stage:   stage,
			Message: fmt.Sprintf("provider %s exceeded %s", provider.Name(), timeout),
			Err:     err,
		}
	}
	return nil, fmt.Errorf("%s call for %s: %w", stage, code, err)
}
