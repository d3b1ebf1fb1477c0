package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var PromNamespace = "archive"

// RPC holds transport metrics, labelled by JSON-RPC method
type RPC struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	Retries  *prometheus.CounterVec
}

// Archive holds archiver progress metrics
type Archive struct {
	BlocksArchived       prometheus.Counter
	TransactionsArchived prometheus.Counter
	LogsArchived         prometheus.Counter
	ContractEvents       prometheus.Counter
	LastArchivedBlock    prometheus.Gauge
	PublishFailures      prometheus.Counter
}

// NewRPC creates the transport metrics and registers them with reg when it is not nil.
func NewRPC(reg prometheus.Registerer) *RPC {
	m := &RPC{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: PromNamespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Number of JSON-RPC requests by method and outcome.",
		}, []string{"method", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: PromNamespace,
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "JSON-RPC request latency, including retries.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: PromNamespace,
			Subsystem: "rpc",
			Name:      "retries_total",
			Help:      "Number of retried JSON-RPC requests.",
		}, []string{"method"}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Duration, m.Retries)
	}
	return m
}

// NewArchive creates the archiver metrics and registers them with reg when it is not nil.
func NewArchive(reg prometheus.Registerer) *Archive {
	m := &Archive{
		BlocksArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: PromNamespace,
			Subsystem: "archiver",
			Name:      "blocks_total",
			Help:      "Number of archived blocks.",
		}),
		TransactionsArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: PromNamespace,
			Subsystem: "archiver",
			Name:      "transactions_total",
			Help:      "Number of archived transactions.",
		}),
		LogsArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: PromNamespace,
			Subsystem: "archiver",
			Name:      "logs_total",
			Help:      "Number of archived logs.",
		}),
		ContractEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: PromNamespace,
			Subsystem: "archiver",
			Name:      "contract_events_total",
			Help:      "Number of decoded contract events.",
		}),
		LastArchivedBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: PromNamespace,
			Subsystem: "archiver",
			Name:      "last_block",
			Help:      "Number of the most recently archived block.",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: PromNamespace,
			Subsystem: "archiver",
			Name:      "publish_failures_total",
			Help:      "Number of events that could not be handed to the event bus.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.BlocksArchived,
			m.TransactionsArchived,
			m.LogsArchived,
			m.ContractEvents,
			m.LastArchivedBlock,
			m.PublishFailures,
		)
	}
	return m
}
