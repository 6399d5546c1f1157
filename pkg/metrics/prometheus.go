package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	syncTotal           *prometheus.CounterVec
	syncDuration        *prometheus.HistogramVec
	fetchTotal          *prometheus.CounterVec
	fetchDuration       *prometheus.HistogramVec
	leaseRenewals       *prometheus.CounterVec
	datasetRecords      *prometheus.GaugeVec
	datasetNotes        *prometheus.GaugeVec
	consecutiveFailures prometheus.Gauge
	retriesTotal        *prometheus.CounterVec
	errorsTotal         *prometheus.CounterVec
}

// New creates a recorder registered on reg. Pass prometheus.DefaultRegisterer
// to expose it on the process /metrics endpoint.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		syncTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gopredict_sync_attempts_total",
				Help: "Dataset pipeline attempts by outcome",
			},
			[]string{"dataset", "outcome"},
		),
		syncDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gopredict_sync_duration_seconds",
				Help:    "Duration of dataset pipeline attempts",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"dataset"},
		),
		fetchTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gopredict_fetch_total",
				Help: "Upstream fetches by url key and result",
			},
			[]string{"url_key", "result"},
		),
		fetchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gopredict_fetch_duration_seconds",
				Help:    "Upstream fetch latency",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"url_key"},
		),
		leaseRenewals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gopredict_lease_renewals_total",
				Help: "Credential lease renewals by result",
			},
			[]string{"result"},
		),
		datasetRecords: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gopredict_dataset_records",
				Help: "Records in the latest cached snapshot",
			},
			[]string{"dataset"},
		),
		datasetNotes: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gopredict_dataset_notifications",
				Help: "Pending notifications in the latest cached snapshot",
			},
			[]string{"dataset"},
		),
		consecutiveFailures: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "gopredict_consecutive_failures",
				Help: "Consecutive upstream failures since the last success",
			},
		),
		retriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gopredict_retries_total",
				Help: "Retry coordinator decisions",
			},
			[]string{"dataset", "result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gopredict_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

// RecordSync records one pipeline attempt.
func (r *Recorder) RecordSync(dataset, outcome string, seconds float64) {
	r.syncTotal.WithLabelValues(dataset, outcome).Inc()
	r.syncDuration.WithLabelValues(dataset).Observe(seconds)
}

// RecordFetch records one upstream GET.
func (r *Recorder) RecordFetch(urlKey, result string, seconds float64) {
	r.fetchTotal.WithLabelValues(urlKey, result).Inc()
	r.fetchDuration.WithLabelValues(urlKey).Observe(seconds)
}

func (r *Recorder) RecordLeaseRenewal(result string) {
	r.leaseRenewals.WithLabelValues(result).Inc()
}

// RecordDataset records the size of an accepted snapshot.
func (r *Recorder) RecordDataset(dataset string, records, notifications int) {
	r.datasetRecords.WithLabelValues(dataset).Set(float64(records))
	r.datasetNotes.WithLabelValues(dataset).Set(float64(notifications))
}

func (r *Recorder) RecordConsecutiveFailures(n int64) {
	r.consecutiveFailures.Set(float64(n))
}

func (r *Recorder) RecordRetry(dataset, result string) {
	r.retriesTotal.WithLabelValues(dataset, result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
