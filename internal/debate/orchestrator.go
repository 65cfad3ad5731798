package debate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/scout/backend/internal/contracts"
	"github.com/wonny/scout/backend/internal/prompt"
	"github.com/wonny/scout/backend/internal/reasoning"
	"github.com/wonny/scout/backend/pkg/logger"
)

// Outcome is a reconciled debate plus the opinions it was built from
type Outcome struct {
	Decision *contracts.StructuredDecision `json:"decision"`
	Opinions []Opinion                    `json:"opinions"`
	Absent   []string                     `json:"absent,omitempty"` // 응답 없는 페르소나 키
}

// Orchestrator runs persona calls concurrently and reconciles them
// ⭐ SSOT: 멀티 페르소나 토론은 여기서만
type Orchestrator struct {
	provider  contracts.ReasoningProvider
	composer  *prompt.Composer
	validator *reasoning.Validator
	tiePolicy string
	timeout   time.Duration
	logger    *logger.Logger
}

// NewOrchestrator creates a debate orchestrator. timeout applies per persona call.
func NewOrchestrator(provider contracts.ReasoningProvider, composer *prompt.Composer, validator *reasoning.Validator, tiePolicy string, timeout time.Duration, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		provider:  provider,
		composer:  composer,
		validator: validator,
		tiePolicy: tiePolicy,
		timeout:   timeout,
		logger:    log.WithComponent("debate"),
	}
}

type personaResult struct {
	opinion *Opinion
	err     error
}

// Run debates one stock under a regime. Personas that time out or answer
// invalid JSON are absent. If every persona is absent the error is a
// TimeoutError when all of them timed out, otherwise a ValidationError.
func (o *Orchestrator) Run(ctx context.Context, snap contracts.StockSnapshot, regime contracts.RegimeLabel, quantScore float64, keywords []string) (*Outcome, error) {
	personas := prompt.SelectPersonas(quantScore)
	shared := o.composer.ComposeDebate(snap, regime, quantScore, keywords, personas)

	results := make([]personaResult, len(personas))
	var g errgroup.Group
	for i, p := range personas {
		g.Go(func() error {
			op, err := o.ask(ctx, shared, snap, p)
			results[i] = personaResult{opinion: op, err: err}
			return nil
		})
	}
	_ = g.Wait()

	out := &Outcome{}
	timeouts := 0
	var lastErr error
	for i, r := range results {
		if r.err == nil {
			out.Opinions = append(out.Opinions, *r.opinion)
			continue
		}

		out.Absent = append(out.Absent, personas[i].Key)
		lastErr = r.err
		var te *contracts.TimeoutError
		if errors.As(r.err, &te) {
			timeouts++
		}
		o.logger.WithFields(map[string]interface{}{
			"symbol":  snap.Code,
			"persona": personas[i].Key,
			"kind":    contracts.ErrorKind(r.err),
		}).WithError(r.err).Warn("persona absent from debate")
	}

	if len(out.Opinions) == 0 {
		if timeouts == len(personas) {
			return nil, &contracts.TimeoutError{
				Code:    snap.Code,
				Stage:   "debate",
				Message: fmt.Sprintf("all %d personas timed out", len(personas)),
				Err:     lastErr,
			}
		}
		return nil, &contracts.ValidationError{
			Code:    snap.Code,
			Message: fmt.Sprintf("no valid persona response (%d absent)", len(out.Absent)),
			Err:     lastErr,
		}
	}

	decision, err := Reconcile(snap.Code, out.Opinions, o.tiePolicy)
	if err != nil {
		return nil, err
	}
	out.Decision = decision
	return out, nil
}

func (o *Orchestrator) ask(ctx context.Context, shared string, snap contracts.StockSnapshot, p prompt.Persona) (*Opinion, error) {
	req := &contracts.ReasoningRequest{
		Prompt:       o.composer.ForPersona(shared, snap, p),
		OutputSchema: prompt.OutputSchema(snap.Code),
	}

	resp, err := reasoning.Call(ctx, o.provider, req, o.timeout, snap.Code, "debate:"+p.Key)
	if err != nil {
		return nil, err
	}

	d, err := o.validator.Validate(resp.Text)
	if err != nil {
		var ve *contracts.ValidationError
		if errors.As(err, &ve) {
			ve.Code = snap.Code
		}
		// 잘못된 응답이 캐시에 남지 않도록
		if inv, ok := o.provider.(reasoning.Invalidator); ok {
			_ = inv.Invalidate(ctx, req)
		}
		return nil, err
	}

	return &Opinion{
		PersonaKey:  p.Key,
		PersonaName: p.Name,
		Stance:      p.Stance,
		Decision:    *d,
	}, nil
}
