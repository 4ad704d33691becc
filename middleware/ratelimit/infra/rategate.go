package infra

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"rategate/middleware/ratelimit/domain"
)

const (
	// Infinite faz WaitToProceed esperar sem prazo.
	Infinite time.Duration = -1
	// InfiniteMillis é o equivalente de Infinite para WaitToProceedMillis.
	InfiniteMillis = -1

	// MaxTimeUnit é a maior janela aceita: cabe num tick de 32 bits em ms.
	MaxTimeUnit = time.Duration(math.MaxInt32) * time.Millisecond
)

const (
	gateActive int32 = iota
	gateDisposed
)

// RateGate limita a no máximo `occurrences` entradas dentro de qualquer janela
// móvel de `timeUnit`.
//
// Cada entrada ocupa uma vaga do chanPool e deixa um vencimento (agora+janela)
// na fila. Um único timer devolve as vagas vencidas e se reagenda para o
// próximo vencimento, ou para uma janela inteira se a fila estiver vazia.
type RateGate struct {
	occurrences int
	timeUnit    time.Duration

	pool    *chanPool
	pending *expiryQueue

	// mu serializa drenagem+reagendamento do timer com o Close.
	mu    sync.Mutex
	timer *time.Timer

	state atomic.Int32
	done  chan struct{}

	// admitMu: admissões (RLock) terminam o push antes do Close contar a fila.
	admitMu sync.RWMutex

	observer domain.GateObserver
	logger   *slog.Logger
}

var (
	_ domain.Gate        = (*RateGate)(nil)
	_ domain.RetryHinter = (*RateGate)(nil)
)

type GateOption func(*RateGate)

// WithGateObserver registra quem deve ser notificado de entradas, timeouts,
// liberações e do encerramento do gate.
func WithGateObserver(o domain.GateObserver) GateOption {
	return func(g *RateGate) {
		if o != nil {
			g.observer = o
		}
	}
}

func WithGateLogger(l *slog.Logger) GateOption {
	return func(g *RateGate) {
		if l != nil {
			g.logger = l
		}
	}
}

// ValidateGate confere os parâmetros de construção sem criar o gate.
func ValidateGate(occurrences int, timeUnit time.Duration) error {
	if occurrences <= 0 {
		return fmt.Errorf("%w: occurrences must be > 0, got %d", domain.ErrInvalidArgument, occurrences)
	}
	if timeUnit <= 0 {
		return fmt.Errorf("%w: time unit must be > 0, got %s", domain.ErrInvalidArgument, timeUnit)
	}
	if timeUnit > MaxTimeUnit {
		return fmt.Errorf("%w: time unit must be <= %s, got %s", domain.ErrInvalidArgument, MaxTimeUnit, timeUnit)
	}
	return nil
}

// NewRateGate cria o gate com todas as vagas livres e arma o timer para daqui
// a uma janela (nada pode vencer antes disso).
func NewRateGate(occurrences int, timeUnit time.Duration, opts ...GateOption) (*RateGate, error) {
	if err := ValidateGate(occurrences, timeUnit); err != nil {
		return nil, err
	}

	g := &RateGate{
		occurrences: occurrences,
		timeUnit:    timeUnit,
		pool:        newChanPool(occurrences),
		pending:     newExpiryQueue(occurrences),
		done:        make(chan struct{}),
		observer:    nopObserver{},
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.mu.Lock()
	g.timer = time.AfterFunc(timeUnit, g.releaseDue)
	g.mu.Unlock()

	return g, nil
}

func (g *RateGate) Occurrences() int { return g.occurrences }
func (g *RateGate) TimeUnit() time.Duration { return g.timeUnit }
func (g *RateGate) TimeUnitMillis() int64 { return g.timeUnit.Milliseconds() }
func (g *RateGate) Available() int { return g.pool.Available() }
func (g *RateGate) Pending() int { return g.pending.size() }
func (g *RateGate) Done() <-chan struct{} { return g.done }
func (g *RateGate) disposed() bool { return g.state.Load() == gateDisposed }

// Allow implementa domain.Limiter: tenta entrar sem esperar.
func (g *RateGate) Allow() bool {
	ok, _ := g.WaitToProceed(0)
	return ok
}

// Wait bloqueia até ser admitido. Só retorna erro se o gate for encerrado.
func (g *RateGate) Wait() error {
	_, err := g.WaitToProceed(Infinite)
	return err
}

// WaitToProceedMillis aceita o timeout em milissegundos; InfiniteMillis espera
// sem prazo.
func (g *RateGate) WaitToProceedMillis(timeoutMillis int) (bool, error) {
	if timeoutMillis == InfiniteMillis {
		return g.WaitToProceed(Infinite)
	}
	if timeoutMillis < 0 {
		if g.disposed() {
			return false, domain.ErrDisposed
		}
		return false, fmt.Errorf("%w: timeout must be >= 0 or InfiniteMillis, got %dms", domain.ErrInvalidArgument, timeoutMillis)
	}
	return g.WaitToProceed(time.Duration(timeoutMillis) * time.Millisecond)
}

// WaitToProceed tenta entrar esperando no máximo `timeout`.
//
//   - timeout == 0: tenta uma vez, sem bloquear.
//   - timeout == Infinite: espera até liberar vaga ou o gate ser encerrado.
//
// Retorna (false, nil) quando o prazo acaba; nesse caso nada muda no gate.
func (g *RateGate) WaitToProceed(timeout time.Duration) (bool, error) {
	if g.disposed() {
		return false, domain.ErrDisposed
	}
	if timeout < 0 && timeout != Infinite {
		return false, fmt.Errorf("%w: timeout must be >= 0 or Infinite, got %s", domain.ErrInvalidArgument, timeout)
	}

	switch timeout {
	case 0:
		return g.admit(g.pool.tryAcquire())
	case Infinite:
		return g.admit(g.pool.acquire(context.Background(), g.done))
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.admit(g.pool.acquire(ctx, g.done))
}

// WaitContext espera até o ctx encerrar. Cancelamento não é erro: retorna
// (false, nil) como um timeout.
func (g *RateGate) WaitContext(ctx context.Context) (bool, error) {
	if g.disposed() {
		return false, domain.ErrDisposed
	}
	if ctx.Err() != nil {
		return g.admit(g.pool.tryAcquire())
	}
	return g.admit(g.pool.acquire(ctx, g.done))
}

func (g *RateGate) admit(acquired bool) (bool, error) {
	if !acquired {
		if g.disposed() {
			return false, domain.ErrDisposed
		}
		g.observer.OnTimeout()
		return false, nil
	}

	g.admitMu.RLock()
	defer g.admitMu.RUnlock()

	// Close pode ter corrido junto com o acquire: devolve a vaga.
	if g.disposed() {
		g.pool.release()
		return false, domain.ErrDisposed
	}

	g.pending.push(time.Now().Add(g.timeUnit))
	g.observer.OnAdmit()
	return true, nil
}

// releaseDue é o callback do timer. Nunca roda em paralelo consigo mesmo:
// só rearma o timer no final.
func (g *RateGate) releaseDue() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.disposed() {
		return
	}

	now := time.Now()
	n := g.pending.popDue(now)
	for i := 0; i < n; i++ {
		g.pool.release()
	}
	if n > 0 {
		g.observer.OnRelease(n)
		g.logger.Debug("rate gate released occurrences",
			slog.Int("released", n),
			slog.Int("available", g.pool.Available()),
		)
	}

	next := g.timeUnit
	if front, ok := g.pending.front(); ok {
		next = front.Sub(now)
		if next < 0 {
			next = 0
		}
	}
	g.timer.Reset(next)
}

// RetryAfter estima quanto falta para a próxima vaga: zero se já houver vaga,
// senão o tempo até o vencimento mais antigo.
func (g *RateGate) RetryAfter() time.Duration {
	if g.disposed() || g.pool.Available() > 0 {
		return 0
	}
	front, ok := g.pending.front()
	if !ok {
		return g.timeUnit
	}
	if d := time.Until(front); d > 0 {
		return d
	}
	return 0
}

// Close encerra o gate. É idempotente e pode ser chamado com callers
// bloqueados: eles acordam com ErrDisposed.
func (g *RateGate) Close() error {
	if !g.state.CompareAndSwap(gateActive, gateDisposed) {
		return nil
	}

	g.mu.Lock()
	g.timer.Stop()
	g.mu.Unlock()

	close(g.done)

	g.admitMu.Lock()
	pending := g.pending.size()
	g.admitMu.Unlock()

	g.observer.OnDispose(pending)
	g.logger.Debug("rate gate disposed",
		slog.Int("occurrences", g.occurrences),
		slog.Duration("time_unit", g.timeUnit),
		slog.Int("pending", pending),
	)
	return nil
}

type nopObserver struct{}

func (nopObserver) OnAdmit() {}
func (nopObserver) OnTimeout() {}
func (nopObserver) OnRelease(int) {}
func (nopObserver) OnDispose(int) {}
