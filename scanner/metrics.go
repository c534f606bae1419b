package scanner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	tasks          *prometheus.CounterVec
	batches        prometheus.Counter
	rows           prometheus.Counter
	fragmentErrors prometheus.Counter
}

// newMetrics registers the scan metrics with reg. A nil reg leaves them
// unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		tasks: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "scan_tasks_total",
			Help: "Total number of executed scan tasks by result.",
		}, []string{"result"}),
		batches: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "scan_batches_total",
			Help: "Total number of batches yielded by scan tasks.",
		}),
		rows: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "scan_rows_total",
			Help: "Total number of rows yielded by scan tasks.",
		}),
		fragmentErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "scan_fragment_errors_total",
			Help: "Total number of fragments which could not be scanned.",
		}),
	}
}
