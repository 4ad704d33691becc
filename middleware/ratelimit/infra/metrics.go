package infra

import (
	"context"

	"rategate/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GateMetrics exporta métricas Prometheus dos gates e das decisões do middleware.
//
// Implementa domain.GateObserver (passe com WithGateObserver) e
// domain.StatsStore (passe em Options.Stats). Todos os gates de um GateStore
// compartilham as mesmas séries: não há label por chave para evitar
// explosão de cardinalidade.
type GateMetrics struct {
	admitted  prometheus.Counter
	timedOut  prometheus.Counter
	released  prometheus.Counter
	disposed  prometheus.Counter
	inWindow  prometheus.Gauge
	decisions *prometheus.CounterVec
	waited    prometheus.Histogram
}

var (
	_ domain.GateObserver = (*GateMetrics)(nil)
	_ domain.StatsStore   = (*GateMetrics)(nil)
)

// NewGateMetrics registra os coletores em `reg`. Com reg nil usa o registry
// padrão do Prometheus.
func NewGateMetrics(reg prometheus.Registerer) *GateMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &GateMetrics{
		admitted: f.NewCounter(prometheus.CounterOpts{
			Name: "rategate_admissions_total",
			Help: "Total number of occurrences admitted by rate gates",
		}),
		timedOut: f.NewCounter(prometheus.CounterOpts{
			Name: "rategate_timeouts_total",
			Help: "Total number of wait attempts that timed out without admission",
		}),
		released: f.NewCounter(prometheus.CounterOpts{
			Name: "rategate_releases_total",
			Help: "Total number of occurrences returned to the pool after their window expired",
		}),
		disposed: f.NewCounter(prometheus.CounterOpts{
			Name: "rategate_disposed_total",
			Help: "Total number of rate gates disposed",
		}),
		inWindow: f.NewGauge(prometheus.GaugeOpts{
			Name: "rategate_occurrences_in_window",
			Help: "Occurrences admitted and not yet expired, summed over all gates",
		}),
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rategate_decisions_total",
				Help: "Total number of middleware decisions by outcome",
			},
			[]string{"outcome"},
		),
		waited: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rategate_wait_duration_seconds",
			Help:    "Time requests spent waiting for a rate gate slot",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		}),
	}
}

func (m *GateMetrics) OnAdmit() {
	m.admitted.Inc()
	m.inWindow.Inc()
}

func (m *GateMetrics) OnTimeout() { m.timedOut.Inc() }

func (m *GateMetrics) OnRelease(n int) {
	m.released.Add(float64(n))
	m.inWindow.Sub(float64(n))
}

// OnDispose desconta do gauge o que o gate encerrado ainda tinha na janela.
func (m *GateMetrics) OnDispose(pending int) {
	m.disposed.Inc()
	m.inWindow.Sub(float64(pending))
}

// Record implementa domain.StatsStore.
func (m *GateMetrics) Record(_ context.Context, ev domain.StatsEvent) error {
	outcome := ev.Outcome
	if outcome == "" {
		outcome = domain.OutcomeDenied
		if ev.Allowed {
			outcome = domain.OutcomeAllowed
		}
	}
	m.decisions.WithLabelValues(string(outcome)).Inc()
	if ev.Waited > 0 {
		m.waited.Observe(ev.Waited.Seconds())
	}
	return nil
}
