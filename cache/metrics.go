package cache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports image cache activity to Prometheus. A nil *Metrics records
// nothing.
type Metrics struct {
	requests     *prometheus.CounterVec
	fetches      *prometheus.CounterVec
	evictions    *prometheus.CounterVec
	discards     prometheus.Counter
	entries      prometheus.Gauge
	bytes        prometheus.Gauge
	fetchSeconds prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_cache_requests_total",
			Help:      "Image requests by outcome: hit, miss (new fetch) or join (in-flight fetch reused).",
		}, []string{"result"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_cache_fetches_total",
			Help:      "Underlying image fetches by outcome.",
		}, []string{"outcome"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_cache_evictions_total",
			Help:      "Resolved images released, by reason.",
		}, []string{"reason"}),
		discards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_cache_discards_total",
			Help:      "Fetch results dropped because their entry was evicted before they arrived.",
		}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "image_cache_entries",
			Help:      "Resolved images currently held.",
		}),
		bytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "image_cache_bytes",
			Help:      "Estimated bytes held by resolved images.",
		}),
		fetchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "image_cache_fetch_seconds",
			Help:      "Duration of fetch plus decode.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
	}

	// Register all or nothing so a failed call can be retried on reg.
	var registered []prometheus.Collector
	for _, c := range []prometheus.Collector{m.requests, m.fetches, m.evictions, m.discards, m.entries, m.bytes, m.fetchSeconds} {
		if err := reg.Register(c); err != nil {
			for _, r := range registered {
				reg.Unregister(r)
			}
			return nil, err
		}
		registered = append(registered, c)
	}
	return m, nil
}

func (m *Metrics) request(result string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(result).Inc()
}

func (m *Metrics) fetched(d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.fetches.WithLabelValues(outcome).Inc()
	m.fetchSeconds.Observe(d.Seconds())
}

func (m *Metrics) evicted(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.evictions.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) discarded() {
	if m == nil {
		return
	}
	m.discards.Inc()
}

func (m *Metrics) size(entries int, bytes int64) {
	if m == nil {
		return
	}
	m.entries.Set(float64(entries))
	m.bytes.Set(float64(bytes))
}
