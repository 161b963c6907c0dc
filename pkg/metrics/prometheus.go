package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	checksTotal   *prometheus.CounterVec
	fetchLatency  *prometheus.HistogramVec
	trainRows     prometheus.Gauge
	trainAUC      prometheus.Gauge
	trainPrec10   prometheus.Gauge
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		checksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dropwatch_checks_total",
				Help: "Candidate check outcomes per retailer",
			},
			[]string{"retailer", "counter"},
		),
		fetchLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dropwatch_fetch_duration_seconds",
				Help:    "Duration of candidate page fetches in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"retailer"},
		),
		trainRows: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dropwatch_trainer_rows",
			Help: "Sample count of the last calibrator training run",
		}),
		trainAUC: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dropwatch_trainer_auc",
			Help: "AUC of the last calibrator training run",
		}),
		trainPrec10: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "dropwatch_trainer_precision_at_10",
			Help: "Precision at the top decile of the last training run",
		}),
	}
}

// RecordCheck increments a per-retailer check counter
// (requests|blocked|valid|invalid|live|errors).
func (r *Recorder) RecordCheck(retailer, counter string) {
	r.checksTotal.WithLabelValues(retailer, counter).Inc()
}

// RecordFetchLatency records fetch latency in seconds.
func (r *Recorder) RecordFetchLatency(retailer string, seconds float64) {
	r.fetchLatency.WithLabelValues(retailer).Observe(seconds)
}

// RecordTraining records quality metrics of a training run.
func (r *Recorder) RecordTraining(rows int, auc, precisionAt10 float64) {
	r.trainRows.Set(float64(rows))
	r.trainAUC.Set(auc)
	r.trainPrec10.Set(precisionAt10)
}
