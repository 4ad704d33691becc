package infra

import (
	"context"
	"sync"
	"time"

	"rategate/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed  int64
	Denied   int64
	Disposed int64
	// Saturated conta rejeições do limite de concorrência.
	Saturated int64
	// Waited é a soma do tempo de espera no gate das requisições contadas.
	Waited time.Duration
}

func (c *Counters) add(ev domain.StatsEvent) {
	switch outcomeOf(ev) {
	case domain.OutcomeAllowed:
		c.Allowed++
	case domain.OutcomeDisposed:
		c.Disposed++
	case domain.OutcomeSaturated:
		c.Saturated++
	default:
		c.Denied++
	}
	c.Waited += ev.Waited
}

// outcomeOf completa eventos antigos que só preenchem Allowed.
func outcomeOf(ev domain.StatsEvent) domain.Outcome {
	if ev.Outcome != "" {
		return ev.Outcome
	}
	if ev.Allowed {
		return domain.OutcomeAllowed
	}
	return domain.OutcomeDenied
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes, para o comando `rategate probe` e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   Counters
	byRoute map[string]Counters
	byKey   map[string]Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute: make(map[string]Counters),
		byKey:   make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev)

	c := s.byRoute[route]
	c.add(ev)
	s.byRoute[route] = c

	if s.trackKeys {
		k := s.byKey[string(ev.Key)]
		k.add(ev)
		s.byKey[string(ev.Key)] = k
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounters(s.byRoute)
}

func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounters(s.byKey)
}

func copyCounters(in map[string]Counters) map[string]Counters {
	out := make(map[string]Counters, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
