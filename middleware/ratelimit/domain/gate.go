package domain

import (
	"context"
	"time"
)

// Gate é a catraca de janela deslizante: no máximo N entradas dentro de
// qualquer janela móvel de duração TimeUnit.
//
// WaitToProceed retorna (false, nil) quando o timeout expira; isso não é erro.
// Depois de Close, todas as operações retornam ErrDisposed.
type Gate interface {
	Limiter
	Waiter
	ContextWaiter

	Occurrences() int
	TimeUnit() time.Duration
	Wait() error
	Close() error
	Done() <-chan struct{}
}

// Waiter é um limiter que sabe esperar por uma vaga até um timeout.
type Waiter interface {
	WaitToProceed(timeout time.Duration) (bool, error)
}

// ContextWaiter espera por uma vaga até o ctx encerrar. Cancelamento não é
// erro: retorna (false, nil).
type ContextWaiter interface {
	WaitContext(ctx context.Context) (bool, error)
}

// RetryHinter sabe estimar quanto tempo falta até a próxima vaga liberar.
type RetryHinter interface {
	RetryAfter() time.Duration
}

// GateObserver recebe notificações do ciclo de vida do gate.
//
// As chamadas acontecem fora do caminho crítico de decisão, mas podem vir de
// goroutines diferentes (callers e timer); implementações devem ser seguras
// para uso concorrente.
type GateObserver interface {
	OnAdmit()
	OnTimeout()
	OnRelease(n int)
	OnDispose(pending int)
}
