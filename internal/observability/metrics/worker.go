package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	messagesTotal   *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec
	pagesExtracted  *prometheus.HistogramVec
	summariesTotal  *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	messagesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dms",
			Subsystem: "worker",
			Name:      "messages_total",
			Help:      "Consumed queue messages by outcome (acked, nacked, ignored).",
		},
		[]string{"service", "outcome"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dms",
			Subsystem: "worker",
			Name:      "ocr_duration_seconds",
			Help:      "End-to-end OCR message processing duration by outcome.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "outcome"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dms",
			Subsystem: "worker",
			Name:      "ocr_in_flight",
			Help:      "In-flight OCR jobs (prefetch is 1, so 0 or 1 per instance).",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dms",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between event publication and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	pagesExtracted := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dms",
			Subsystem: "worker",
			Name:      "pages_per_document",
			Help:      "Rasterized pages per processed document.",
			Buckets:   []float64{1, 2, 3, 5, 10, 20, 50, 100},
		},
		[]string{"service"},
	)
	summariesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dms",
			Subsystem: "worker",
			Name:      "summaries_total",
			Help:      "Summarization attempts by result (stored, empty, failed).",
		},
		[]string{"service", "result"},
	)

	registry.MustRegister(messagesTotal, processDuration, processInFlight, queueLag, pagesExtracted, summariesTotal)

	return &WorkerMetrics{
		registry:        registry,
		messagesTotal:   messagesTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		queueLag:        queueLag,
		pagesExtracted:  pagesExtracted,
		summariesTotal:  summariesTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartMessage() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishMessage(service, outcome string, duration time.Duration) {
	m.processInFlight.Dec()
	m.messagesTotal.WithLabelValues(service, outcome).Inc()
	m.processDuration.WithLabelValues(service, outcome).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) ObservePages(service string, pages int) {
	if pages <= 0 {
		return
	}
	m.pagesExtracted.WithLabelValues(service).Observe(float64(pages))
}

func (m *WorkerMetrics) CountSummary(service, result string) {
	m.summariesTotal.WithLabelValues(service, result).Inc()
}
