package infra

import (
	"errors"
	"sync/atomic"
	"time"

	"rategate/middleware/ratelimit/domain"
)

// GateStore mantém um RateGate por chave (IP, API key, ...).
//
// Gates inativos são encerrados pelo janitor. Um gate nunca é descartado
// enquanto tiver admissões dentro da janela ou callers esperando: descartar
// zeraria a contagem e deixaria passar mais do que `occurrences` na janela.
//
// Depois do Close todas as chaves recebem um gate já encerrado.
type GateStore struct {
	cache        *keyedCache[*RateGate]
	occurrences  int
	window       time.Duration
	cleanupEvery time.Duration
	gateOpts     []GateOption

	closedGate atomic.Pointer[RateGate]
}

var _ domain.LimiterStore = (*GateStore)(nil)

func NewGateStore(occurrences int, window time.Duration, opts ...StoreOption) (*GateStore, error) {
	if err := ValidateGate(occurrences, window); err != nil {
		return nil, err
	}

	cfg := newStoreConfig(opts)
	idleTTL := cfg.idleTTL
	if idleTTL < window {
		idleTTL = window
	}

	return &GateStore{
		cache:        newKeyedCache(idleTTL, gateInUse, func(g *RateGate) { _ = g.Close() }),
		occurrences:  occurrences,
		window:       window,
		cleanupEvery: cfg.cleanupEvery,
		gateOpts:     cfg.gateOpts,
	}, nil
}

func (s *GateStore) Occurrences() int { return s.occurrences }
func (s *GateStore) Window() time.Duration { return s.window }
func (s *GateStore) Len() int { return s.cache.size() }

// Get implementa domain.LimiterStore.
func (s *GateStore) Get(key domain.Key) domain.Limiter {
	g := s.Gate(string(key))
	if g == nil {
		return nil
	}
	return g
}

// Gate devolve o gate da chave, criando se preciso.
func (s *GateStore) Gate(key string) *RateGate {
	g, err := s.cache.get(key, func() (*RateGate, error) {
		return NewRateGate(s.occurrences, s.window, s.gateOpts...)
	})
	if errors.Is(err, errCacheClosed) {
		return s.closedGate.Load()
	}
	if err != nil {
		// parâmetros já validados em NewGateStore
		return nil
	}
	return g
}

// gateInUse: ainda há vaga ocupada (admissão na janela ou caller esperando).
func gateInUse(g *RateGate) bool {
	return g.Pending() > 0 || g.Available() < g.Occurrences()
}

// Cleanup encerra e remove gates sem uso há mais de idleTTL. Retorna quantos saíram.
func (s *GateStore) Cleanup() int { return s.cache.cleanup() }

func (s *GateStore) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, s.cleanupEvery, func() { s.Cleanup() })
}

// Close encerra todos os gates. Callers bloqueados acordam com ErrDisposed e
// chamadas posteriores a Gate recebem um gate encerrado, sem timer ativo.
func (s *GateStore) Close() error {
	if s.closedGate.Load() == nil {
		if dead, err := NewRateGate(s.occurrences, s.window); err == nil {
			_ = dead.Close()
			s.closedGate.CompareAndSwap(nil, dead)
		}
	}
	for _, g := range s.cache.drain() {
		_ = g.Close()
	}
	return nil
}
