package domain

import (
	"context"
	"time"
)

// Outcome classifica o resultado de uma decisão registrada em StatsEvent.
type Outcome string

const (
	OutcomeAllowed  Outcome = "allowed"
	OutcomeDenied   Outcome = "denied"
	OutcomeDisposed Outcome = "disposed"
	// OutcomeSaturated: rejeitado pelo limite de concorrência, não pela janela.
	OutcomeSaturated Outcome = "saturated"
)

// StatsEvent representa um evento de decisão do rate limit.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas
// e podem ser usadas para web, gRPC, etc.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
type StatsEvent struct {
	Key     Key
	Allowed bool
	Outcome Outcome

	RequestID string
	Method    string
	Path      string

	// Waited é quanto tempo a requisição ficou esperando vaga no gate.
	Waited time.Duration
	At     time.Time
}

// StatsStore é a estratégia de persistência para estatísticas do rate limit.
//
// Implementações podem armazenar em Redis, Prometheus, memória, etc.
// O middleware deve tratar erro como best-effort (não derrubar request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
