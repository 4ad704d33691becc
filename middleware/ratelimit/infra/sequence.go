package infra

import (
	"iter"
	"time"
)

// LimitSeq devolve uma sequência que entrega os mesmos elementos de `seq`,
// mas no máximo `occurrences` por janela de `timeUnit`.
//
// Cada iteração cria o seu próprio RateGate e o encerra ao terminar, inclusive
// em break antecipado. Os argumentos são validados já aqui; `opts` vale para
// cada gate criado.
func LimitSeq[T any](seq iter.Seq[T], occurrences int, timeUnit time.Duration, opts ...GateOption) (iter.Seq[T], error) {
	if err := ValidateGate(occurrences, timeUnit); err != nil {
		return nil, err
	}
	return func(yield func(T) bool) {
		gate, err := NewRateGate(occurrences, timeUnit, opts...)
		if err != nil {
			return
		}
		defer gate.Close()

		for v := range seq {
			if gate.Wait() != nil {
				return
			}
			if !yield(v) {
				return
			}
		}
	}, nil
}

// LimitSeq2 é o LimitSeq para pares chave/valor.
func LimitSeq2[K, V any](seq iter.Seq2[K, V], occurrences int, timeUnit time.Duration, opts ...GateOption) (iter.Seq2[K, V], error) {
	if err := ValidateGate(occurrences, timeUnit); err != nil {
		return nil, err
	}
	return func(yield func(K, V) bool) {
		gate, err := NewRateGate(occurrences, timeUnit, opts...)
		if err != nil {
			return
		}
		defer gate.Close()

		for k, v := range seq {
			if gate.Wait() != nil {
				return
			}
			if !yield(k, v) {
				return
			}
		}
	}, nil
}
