package domain

import "context"

// SlotPool representa um recurso com capacidade finita: conexões concorrentes
// no ConcurrencyMiddleware ou as ocorrências de um RateGate.
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar. Ao adquirir,
// retorna uma função de release que deve ser chamada exatamente uma vez.
// Available informa quantas vagas podem ser adquiridas agora sem esperar.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
	Available() int
}
