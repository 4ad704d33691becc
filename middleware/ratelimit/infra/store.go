package infra

import (
	"errors"
	"sync"
	"time"

	"rategate/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// storeConfig é compartilhado pelo Store (token bucket) e pelo GateStore
// (janela deslizante).
type storeConfig struct {
	idleTTL      time.Duration
	cleanupEvery time.Duration
	gateOpts     []GateOption
}

type StoreOption func(*storeConfig)

func WithIdleTTL(d time.Duration) StoreOption {
	return func(c *storeConfig) { c.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(c *storeConfig) { c.cleanupEvery = d }
}

// WithGateOptions repassa opções para cada RateGate criado pelo GateStore.
// O Store de token bucket ignora.
func WithGateOptions(opts ...GateOption) StoreOption {
	return func(c *storeConfig) { c.gateOpts = append(c.gateOpts, opts...) }
}

func newStoreConfig(opts []StoreOption) storeConfig {
	cfg := storeConfig{
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

var errCacheClosed = errors.New("limiter cache closed")

// keyedCache guarda um limiter por chave e descarta os inativos.
// `keep` (opcional) segura entradas ociosas que ainda estão em uso; `evict` é
// chamado fora do lock para cada entrada removida. Depois de drain o cache
// não cria mais entradas.
type keyedCache[L any] struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry[L]
	idleTTL time.Duration
	keep    func(L) bool
	evict   func(L)
	closed  bool
}

type cacheEntry[L any] struct {
	lim      L
	lastSeen time.Time
}

func newKeyedCache[L any](idleTTL time.Duration, keep func(L) bool, evict func(L)) *keyedCache[L] {
	return &keyedCache[L]{
		entries: make(map[string]*cacheEntry[L]),
		idleTTL: idleTTL,
		keep:    keep,
		evict:   evict,
	}
}

func (c *keyedCache[L]) get(key string, create func() (L, error)) (L, error) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim, nil
	}
	if c.closed {
		var zero L
		return zero, errCacheClosed
	}

	lim, err := create()
	if err != nil {
		return lim, err
	}
	c.entries[key] = &cacheEntry[L]{lim: lim, lastSeen: now}
	return lim, nil
}

func (c *keyedCache[L]) cleanup() int {
	cutoff := time.Now().Add(-c.idleTTL)

	c.mu.Lock()
	var removed []L
	for k, ent := range c.entries {
		if ent.lastSeen.Before(cutoff) {
			if c.keep != nil && c.keep(ent.lim) {
				continue
			}
			removed = append(removed, ent.lim)
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()

	if c.evict != nil {
		for _, lim := range removed {
			c.evict(lim)
		}
	}
	return len(removed)
}

func (c *keyedCache[L]) drain() []L {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	out := make([]L, 0, len(c.entries))
	for k, ent := range c.entries {
		out = append(out, ent.lim)
		delete(c.entries, k)
	}
	return out
}

func (c *keyedCache[L]) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// startJanitor roda cleanup a cada `every` até o ctx encerrar.
func startJanitor(ctx DoneContext, every time.Duration, cleanup func()) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				cleanup()
			}
		}
	}()
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
// (Permite reuso em libs sem acoplar.)
type DoneContext interface {
	Done() <-chan struct{}
}

// Store é a estratégia token-bucket (x/time/rate) com cache por chave e
// limpeza periódica. Fica disponível ao lado do GateStore via RATE_ALGORITHM.
type Store struct {
	cache        *keyedCache[*rate.Limiter]
	rps          rate.Limit
	burst        int
	cleanupEvery time.Duration
}

func NewStore(rps float64, burst int, opts ...StoreOption) *Store {
	cfg := newStoreConfig(opts)
	return &Store{
		cache:        newKeyedCache[*rate.Limiter](cfg.idleTTL, nil, nil),
		rps:          rate.Limit(rps),
		burst:        burst,
		cleanupEvery: cfg.cleanupEvery,
	}
}

func (s *Store) RPS() float64 { return float64(s.rps) }
func (s *Store) Burst() int { return s.burst }
func (s *Store) CleanupEvery() time.Duration { return s.cleanupEvery }

// Get implementa domain.LimiterStore.
func (s *Store) Get(key domain.Key) domain.Limiter {
	return s.GetString(string(key))
}

func (s *Store) GetString(key string) *rate.Limiter {
	lim, _ := s.cache.get(key, func() (*rate.Limiter, error) {
		return rate.NewLimiter(s.rps, s.burst), nil
	})
	return lim
}

func (s *Store) Cleanup() { s.cache.cleanup() }

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *Store) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, s.cleanupEvery, s.Cleanup)
}
