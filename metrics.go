package modelstore

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the optional instrumentation. A nil *metrics or one
// built without a registerer makes every method a no-op, so the hot
// paths never branch on configuration.
type metrics struct {
	uploads     *prometheus.CounterVec
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	liveHandles prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}

	m := &metrics{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modelstore",
			Name:      "uploads_total",
			Help:      "Uploads by result: success, rejected or failed.",
		}, []string{"result"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "modelstore",
			Name:      "handle_cache_hits_total",
			Help:      "Handle lookups served from the cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "modelstore",
			Name:      "handle_cache_misses_total",
			Help:      "Handle lookups that required materialization.",
		}),
		liveHandles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "modelstore",
			Name:      "live_handles",
			Help:      "Handles currently materialized and not yet released.",
		}),
	}

	reg.MustRegister(m.uploads, m.cacheHits, m.cacheMisses, m.liveHandles)
	return m
}

func (m *metrics) uploadFinished(result string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(result).Inc()
}

func (m *metrics) cacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *metrics) cacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

func (m *metrics) handleMaterialized() {
	if m == nil {
		return
	}
	m.liveHandles.Inc()
}

func (m *metrics) handleReleased() {
	if m == nil {
		return
	}
	m.liveHandles.Dec()
}
