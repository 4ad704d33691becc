package application

import (
	"context"
	"time"

	"rategate/middleware/ratelimit/domain"
)

// ConcurrencyService limita quantas requisições ficam em andamento ao mesmo
// tempo. Complementa o Service: a janela limita a taxa, aqui limitamos a
// simultaneidade. Não sabe nada sobre HTTP.
type ConcurrencyService struct {
	Pool domain.SlotPool
	// AcquireTimeout <= 0 espera até o ctx encerrar.
	AcquireTimeout time.Duration
	// RetryAfter sugerido quando não há vaga. 0 = sem recomendação.
	RetryAfter time.Duration
}

// Acquire tenta ocupar uma vaga. Quando permitido, `release` deve ser chamado
// exatamente uma vez; quando bloqueado, `release` é nil e Decision.Reason diz
// se faltou vaga (ReasonSaturated) ou se o cliente desistiu (ReasonCanceled).
func (s ConcurrencyService) Acquire(ctx context.Context) (release func(), dec domain.Decision) {
	if s.Pool == nil {
		return func() {}, domain.Decision{Allowed: true}
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.Pool.Acquire(acqCtx)
	if ok {
		return release, domain.Decision{Allowed: true}
	}
	if ctx.Err() != nil {
		return nil, domain.Decision{Reason: domain.ReasonCanceled}
	}
	return nil, domain.Decision{RetryAfter: s.RetryAfter, Reason: domain.ReasonSaturated}
}

// Available repassa a quantidade de vagas livres; -1 quando não há pool
// (sem limite).
func (s ConcurrencyService) Available() int {
	if s.Pool == nil {
		return -1
	}
	return s.Pool.Available()
}
