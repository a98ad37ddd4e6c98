package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BetMetrics agrupa os coletores do fluxo de colocação de apostas
type BetMetrics struct {
	Placements *prometheus.CounterVec
	Rollbacks  prometheus.Counter
	Duration   prometheus.Histogram
}

// NewBetMetrics cria e registra os coletores no registry informado
func NewBetMetrics(reg prometheus.Registerer) *BetMetrics {
	m := &BetMetrics{
		Placements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bet_placements_total",
			Help: "apostas processadas por resultado",
		}, []string{"outcome"}),
		Rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bet_rollbacks_total",
			Help: "reservas de saldo desfeitas após falha",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bet_placement_duration_seconds",
			Help:    "latência do fluxo de colocação de aposta",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.Placements, m.Rollbacks, m.Duration)
	return m
}

func (m *BetMetrics) Placed() { m.Placements.WithLabelValues("confirmed").Inc() }

func (m *BetMetrics) Rejected(kind string) { m.Placements.WithLabelValues(kind).Inc() }

func (m *BetMetrics) RolledBack() { m.Rollbacks.Inc() }

func (m *BetMetrics) Observe(d time.Duration) { m.Duration.Observe(d.Seconds()) }
