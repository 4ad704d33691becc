// Upstream "burro" para validar o gateway na mão: responde tudo e imprime
// quantas requisições chegaram em cada segundo, para conferir que o gateway
// nunca deixa passar mais que RATE_OCCURRENCES por RATE_WINDOW.
package main

import (
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"
)

type perSecond struct {
	mu     sync.Mutex
	second time.Time
	count  int
}

func (p *perSecond) hit(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := now.Truncate(time.Second)
	if !s.Equal(p.second) {
		p.second = s
		p.count = 0
	}
	p.count++
	return p.count
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	counter := &perSecond{}

	http.HandleFunc("/showTela", func(w http.ResponseWriter, r *http.Request) {
		n := counter.hit(time.Now())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<h1>Tela do Sistema</h1><p>Requisição recebida com sucesso!</p>"))
		logger.Info("showTela",
			slog.String("request_id", r.Header.Get("X-Request-ID")),
			slog.Int("this_second", n),
		)
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	logger.Info("upstream de teste rodando", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Error("erro ao subir o servidor", slog.Any("error", err))
		os.Exit(1)
	}
}
