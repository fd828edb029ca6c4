package relay

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Routing miss reasons used as metric label values.
const (
	MissUnresolved   = "unresolved"
	MissNoSubscriber = "no_subscriber"
)

// Metrics exposes Prometheus collectors that report relay activity. The
// design deliberately makes silent drops countable: the routing-miss counter
// is the only external evidence of an event that found no subscriber.
type Metrics struct {
	eventsRouted        *prometheus.CounterVec
	routingMisses       *prometheus.CounterVec
	droppedWrites       prometheus.Counter
	subscriptionsActive prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// defaultMetrics returns the package-level metrics instance registered with
// the global Prometheus registry. Created once to avoid duplicate
// registration panics when multiple relay components are instantiated.
func defaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Callers supply a fresh registry when isolated collectors are required (for
// example in tests). Registration errors other than AlreadyRegistered panic,
// surfacing configuration bugs early.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	eventsRouted := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobrelay",
			Subsystem: "relay",
			Name:      "events_routed_total",
			Help:      "Progress events delivered to a live subscription, by event type.",
		},
		[]string{"type"},
	)
	routingMisses := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobrelay",
			Subsystem: "relay",
			Name:      "routing_misses_total",
			Help:      "Ingested events dropped because no live subscription was found.",
		},
		[]string{"reason"},
	)
	droppedWrites := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jobrelay",
			Subsystem: "relay",
			Name:      "dropped_writes_total",
			Help:      "Events discarded because a subscriber buffer was full.",
		},
	)
	subscriptionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jobrelay",
			Subsystem: "relay",
			Name:      "subscriptions_active",
			Help:      "Number of currently open progress subscriptions.",
		},
	)

	collectors := []prometheus.Collector{eventsRouted, routingMisses, droppedWrites, subscriptionsActive}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch target := collector.(type) {
				case *prometheus.CounterVec:
					switch target { //nolint:exhaustive
					case eventsRouted:
						eventsRouted = already.ExistingCollector.(*prometheus.CounterVec)
					case routingMisses:
						routingMisses = already.ExistingCollector.(*prometheus.CounterVec)
					}
				case prometheus.Gauge:
					subscriptionsActive = already.ExistingCollector.(prometheus.Gauge)
				case prometheus.Counter:
					droppedWrites = already.ExistingCollector.(prometheus.Counter)
				}
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		eventsRouted:        eventsRouted,
		routingMisses:       routingMisses,
		droppedWrites:       droppedWrites,
		subscriptionsActive: subscriptionsActive,
	}
}

// IncRouted records a successful delivery of the given event type.
func (m *Metrics) IncRouted(eventType string) {
	if m == nil || m.eventsRouted == nil {
		return
	}
	m.eventsRouted.WithLabelValues(eventType).Inc()
}

// IncRoutingMiss records a dropped event with the given reason.
func (m *Metrics) IncRoutingMiss(reason string) {
	if m == nil || m.routingMisses == nil {
		return
	}
	m.routingMisses.WithLabelValues(reason).Inc()
}

// IncDroppedWrite records an event lost to a saturated subscriber buffer.
func (m *Metrics) IncDroppedWrite() {
	if m == nil || m.droppedWrites == nil {
		return
	}
	m.droppedWrites.Inc()
}

// SetActiveSubscriptions sets the live subscription gauge.
func (m *Metrics) SetActiveSubscriptions(n int) {
	if m == nil || m.subscriptionsActive == nil {
		return
	}
	m.subscriptionsActive.Set(float64(n))
}
