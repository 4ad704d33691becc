package application

import (
	"context"
	"errors"
	"time"

	"rategate/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
//
// Se o limiter da chave souber esperar (domain.Waiter, ex: RateGate) e
// WaitTimeout > 0, a requisição aguarda uma vaga até esse prazo em vez de ser
// rejeitada na hora.
type Service struct {
	Store       domain.LimiterStore
	RetryAfter  time.Duration
	WaitTimeout time.Duration
}

func (s Service) Decide(ctx context.Context, key domain.Key) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}

	lim := s.Store.Get(key)
	if lim == nil {
		return domain.Decision{Allowed: true}
	}

	allowed, err := s.admit(ctx, lim)
	if errors.Is(err, domain.ErrDisposed) {
		return domain.Decision{Allowed: false, RetryAfter: s.RetryAfter, Reason: domain.ReasonDisposed}
	}
	if allowed {
		return domain.Decision{Allowed: true}
	}

	retry := s.RetryAfter
	if h, ok := lim.(domain.RetryHinter); ok {
		if d := h.RetryAfter(); d > 0 {
			retry = d
		}
	}
	return domain.Decision{Allowed: false, RetryAfter: retry, Reason: domain.ReasonLimit}
}

func (s Service) admit(ctx context.Context, lim domain.Limiter) (bool, error) {
	if s.WaitTimeout <= 0 {
		return lim.Allow(), nil
	}

	// com contexto a espera também acaba se o cliente desistir
	if g, ok := lim.(domain.ContextWaiter); ok && ctx != nil {
		waitCtx, cancel := context.WithTimeout(ctx, s.WaitTimeout)
		defer cancel()
		return g.WaitContext(waitCtx)
	}
	if w, ok := lim.(domain.Waiter); ok {
		return w.WaitToProceed(s.WaitTimeout)
	}
	return lim.Allow(), nil
}
