package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit publisher.
type Metrics struct {
	// Queue metrics
	QueueDepth      prometheus.Gauge
	RecordsDropped  prometheus.Counter
	RecordsEnqueued prometheus.Counter

	// Processing metrics
	PersistDuration prometheus.Histogram
	PersistFailures prometheus.Counter
	SinkFailures    prometheus.Counter
	RecordsWritten  *prometheus.CounterVec
	DrainedOnClose  prometheus.Counter
}

// New registers the audit metrics on reg. Passing nil uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "medfayda_audit_queue_depth",
			Help: "Current number of records waiting in the audit queue",
		}),
		RecordsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "medfayda_audit_records_dropped_total",
			Help: "Total number of audit records dropped because the queue was full or closed",
		}),
		RecordsEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "medfayda_audit_records_enqueued_total",
			Help: "Total number of audit records accepted into the queue",
		}),
		PersistDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "medfayda_audit_persist_duration_seconds",
			Help:    "Time taken to seal and persist one audit record",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "medfayda_audit_persist_failures_total",
			Help: "Total number of audit records that could not be persisted",
		}),
		SinkFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "medfayda_audit_sink_failures_total",
			Help: "Total number of stored audit records the downstream sink rejected",
		}),
		RecordsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medfayda_audit_records_written_total",
			Help: "Total number of audit records persisted, by action and outcome",
		}, []string{"action", "success"}),
		DrainedOnClose: factory.NewCounter(prometheus.CounterOpts{
			Name: "medfayda_audit_records_drained_total",
			Help: "Total number of audit records persisted during graceful shutdown",
		}),
	}
}

func (m *Metrics) IncQueueDepth()      { m.QueueDepth.Inc() }
func (m *Metrics) DecQueueDepth()      { m.QueueDepth.Dec() }
func (m *Metrics) IncRecordsDropped()  { m.RecordsDropped.Inc() }
func (m *Metrics) IncRecordsEnqueued() { m.RecordsEnqueued.Inc() }
func (m *Metrics) IncPersistFailures() { m.PersistFailures.Inc() }
func (m *Metrics) IncSinkFailures()    { m.SinkFailures.Inc() }
func (m *Metrics) IncDrainedOnClose()  { m.DrainedOnClose.Inc() }

// ObservePersistDuration records the persist latency in seconds.
func (m *Metrics) ObservePersistDuration(seconds float64) {
	m.PersistDuration.Observe(seconds)
}

// IncRecordsWritten counts a persisted record.
func (m *Metrics) IncRecordsWritten(action string, success bool) {
	outcome := "false"
	if success {
		outcome = "true"
	}
	m.RecordsWritten.WithLabelValues(action, outcome).Inc()
}
