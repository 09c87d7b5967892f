package secure

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the secure data engine.
type Metrics struct {
	WritesTotal          prometheus.Counter
	ReadsTotal           prometheus.Counter
	DeletesTotal         prometheus.Counter
	DecryptFailuresTotal prometheus.Counter
	PayloadSizeBytes     prometheus.Histogram
}

// NewMetrics creates and registers engine metrics.
// Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		WritesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cerberus",
			Subsystem: "secure_data",
			Name:      "writes_total",
			Help:      "Total secret writes committed.",
		}),
		ReadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cerberus",
			Subsystem: "secure_data",
			Name:      "reads_total",
			Help:      "Total secret reads that decrypted successfully.",
		}),
		DeletesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cerberus",
			Subsystem: "secure_data",
			Name:      "deletes_total",
			Help:      "Total per-secret deletes committed (bulk purges excluded).",
		}),
		DecryptFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cerberus",
			Subsystem: "secure_data",
			Name:      "decrypt_failures_total",
			Help:      "Total reads that failed decryption (wrong binding or corruption).",
		}),
		PayloadSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cerberus",
			Subsystem: "secure_data",
			Name:      "payload_size_bytes",
			Help:      "Plaintext payload size of written secrets.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		}),
	}

	reg.MustRegister(
		m.WritesTotal,
		m.ReadsTotal,
		m.DeletesTotal,
		m.DecryptFailuresTotal,
		m.PayloadSizeBytes,
	)

	return m
}

func (m *Metrics) observeWrite(sizeInBytes int) {
	if m == nil {
		return
	}
	m.WritesTotal.Inc()
	m.PayloadSizeBytes.Observe(float64(sizeInBytes))
}

func (m *Metrics) observeRead() {
	if m == nil {
		return
	}
	m.ReadsTotal.Inc()
}

func (m *Metrics) observeDelete() {
	if m == nil {
		return
	}
	m.DeletesTotal.Inc()
}

func (m *Metrics) observeDecryptFailure() {
	if m == nil {
		return
	}
	m.DecryptFailuresTotal.Inc()
}
