package infra

import (
	"context"

	"rategate/middleware/ratelimit/domain"
)

// chanPool é um semáforo baseado em channel: cada vaga ocupada é um elemento
// no buffer. Serve tanto ao ConcurrencyMiddleware quanto como recurso de
// contagem do RateGate.
type chanPool struct {
	sem chan struct{}
}

// NewChanPool cria um pool simples baseado em channel com capacidade `max`.
func NewChanPool(max int) domain.SlotPool {
	return newChanPool(max)
}

func newChanPool(max int) *chanPool {
	return &chanPool{sem: make(chan struct{}, max)}
}

func (p *chanPool) Acquire(ctx context.Context) (func(), bool) {
	if !p.acquire(ctx, nil) {
		return nil, false
	}
	return p.release, true
}

func (p *chanPool) Available() int { return cap(p.sem) - len(p.sem) }

// acquire espera uma vaga até o ctx encerrar ou `abort` fechar.
// Um `abort` nil nunca dispara.
func (p *chanPool) acquire(ctx context.Context, abort <-chan struct{}) bool {
	select {
	case p.sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	case <-abort:
		return false
	}
}

// tryAcquire não bloqueia: ou pega a vaga agora ou retorna false.
func (p *chanPool) tryAcquire() bool {
	select {
	case p.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (p *chanPool) release() {
	select {
	case <-p.sem:
	default:
		// release sem acquire correspondente: ignora em vez de travar.
	}
}
