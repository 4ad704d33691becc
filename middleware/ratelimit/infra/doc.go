// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RateGate: janela deslizante com fila de vencimentos e timer de liberação
//   - GateStore: um RateGate por chave, com janitor para gates inativos
//   - LimitSeq: aplica um RateGate a um iter.Seq
//   - Store: token bucket por chave usando golang.org/x/time/rate
//   - ChanPool: semáforo simples para limite de concorrência (e recurso de contagem do RateGate)
//   - MemoryStatsStore, RedisStatsStore, GateMetrics: estatísticas das decisões
package infra
