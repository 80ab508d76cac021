package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bridge"

// Stats exposes current registry state for gauge collection.
type Stats interface {
	Stats() (rooms, conns int)
}

// Metrics holds the relay's instrumentation. A nil *Metrics is valid and
// records nothing, so components can be constructed without it in tests.
type Metrics struct {
	publishes *prometheus.CounterVec
	delivered prometheus.Counter
	evictions prometheus.Counter
}

func New(reg prometheus.Registerer, stats Stats) *Metrics {
	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rooms",
		Help:      "Number of active rooms.",
	}, func() float64 {
		rooms, _ := stats.Stats()
		return float64(rooms)
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "joined_connections",
		Help:      "Number of connections currently joined to a room.",
	}, func() float64 {
		_, conns := stats.Stats()
		return float64(conns)
	})

	return &Metrics{
		publishes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Publish requests by method and outcome.",
		}, []string{"method", "outcome"}),
		delivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_delivered_total",
			Help:      "Broadcast frames delivered to connections.",
		}),
		evictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_evicted_total",
			Help:      "Connections evicted by the health monitor.",
		}),
	}
}

func (m *Metrics) Publish(method, outcome string) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) FramesDelivered(n int) {
	if m == nil {
		return
	}
	m.delivered.Add(float64(n))
}

func (m *Metrics) ConnectionEvicted() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}
