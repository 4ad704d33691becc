package infra

import (
	"sync"
	"time"
)

// expiryQueue é a fila FIFO de vencimentos pendentes do RateGate.
//
// Push vem dos callers admitidos; popDue só é chamado pelo timer. Todo
// vencimento é "agora + janela", então a fila fica praticamente ordenada; dois
// pushes concorrentes fora de ordem só atrasam a liberação, nunca a adiantam.
type expiryQueue struct {
	mu    sync.Mutex
	items []time.Time
	head  int
}

func newExpiryQueue(capacity int) *expiryQueue {
	// não reserva tudo: capacidades enormes não devem alocar de cara.
	if capacity > 1024 {
		capacity = 1024
	}
	return &expiryQueue{items: make([]time.Time, 0, capacity)}
}

func (q *expiryQueue) push(at time.Time) {
	q.mu.Lock()
	q.items = append(q.items, at)
	q.mu.Unlock()
}

// popDue remove da frente todos os vencimentos <= now e retorna quantos saíram.
func (q *expiryQueue) popDue(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for q.head < len(q.items) && !q.items[q.head].After(now) {
		q.items[q.head] = time.Time{}
		q.head++
		n++
	}

	// compacta quando metade do slice já foi consumida
	if q.head > 0 && q.head*2 >= len(q.items) {
		q.items = append(q.items[:0], q.items[q.head:]...)
		q.head = 0
	}
	return n
}

func (q *expiryQueue) front() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == len(q.items) {
		return time.Time{}, false
	}
	return q.items[q.head], true
}

func (q *expiryQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
