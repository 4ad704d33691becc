// utilitário pequeno para formatação rápida/consistente de valores numéricos em headers.
// Sem fmt e sem notação científica para valores comuns.

package ratelimit

import (
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatRetryAfter arredonda para cima: o cliente nunca é mandado voltar antes
// da vaga realmente liberar.
func formatRetryAfter(d time.Duration) string {
	if d <= 0 {
		return "0"
	}
	return strconv.FormatInt(int64((d+time.Second-1)/time.Second), 10)
}

func formatMillis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}
