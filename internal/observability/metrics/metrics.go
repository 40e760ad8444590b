// Package metrics - Prometheus-метрики сервиса идентификации
package metrics

import (
	"errors"
	"fmt"
	"time"

	"face-identification/internal/recognition"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "faceid"

// Исходы идентификации
const (
	OutcomeMatch      = "match"
	OutcomeNoMatch    = "no_match"
	OutcomeNoFace     = "no_face"
	OutcomeNotTrained = "not_trained"
	OutcomeBadImage   = "bad_image"
	OutcomeError      = "error"
)

// RecognitionMetrics - метрики ядра распознавания и HTTP-слоя
type RecognitionMetrics struct {
	IdentifyTotal    *prometheus.CounterVec
	IdentifyDuration prometheus.Histogram
	MatchDistance    prometheus.Histogram

	RebuildTotal    *prometheus.CounterVec
	RebuildDuration prometheus.Histogram
	SkippedFiles    prometheus.Counter

	SamplesGauge    prometheus.Gauge
	IdentitiesGauge prometheus.Gauge
	ModelTrained    prometheus.Gauge
	Generation      prometheus.Gauge

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewRecognitionMetrics создает метрики и регистрирует их в registry
func NewRecognitionMetrics(registry prometheus.Registerer) (*RecognitionMetrics, error) {
	m := &RecognitionMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register recognition metrics: %w", err)
	}
	return m, nil
}

func (m *RecognitionMetrics) initMetrics() {
	m.IdentifyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identify_total",
			Help:      "Total number of identification requests partitioned by outcome",
		},
		[]string{"outcome"},
	)
	m.IdentifyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "identify_duration_seconds",
			Help:      "Time taken to identify a probe image",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		},
	)
	m.MatchDistance = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "identify_distance",
			Help:      "Distance of the nearest training sample for identified faces",
			Buckets:   prometheus.LinearBuckets(10, 10, 15),
		},
	)

	m.RebuildTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_rebuild_total",
			Help:      "Total number of model rebuilds partitioned by status",
		},
		[]string{"status"},
	)
	m.RebuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_rebuild_duration_seconds",
			Help:      "Time taken to rebuild the model from the corpus",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
	)
	m.SkippedFiles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corpus_skipped_files_total",
			Help:      "Corpus files skipped during rebuilds",
		},
	)

	m.SamplesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "model_samples",
		Help:      "Number of face samples in the live model",
	})
	m.IdentitiesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "model_identities",
		Help:      "Number of identities known to the live model",
	})
	m.ModelTrained = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "model_trained",
		Help:      "Whether a trained model is live (1) or not (0)",
	})
	m.Generation = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "model_generation",
		Help:      "Generation counter of the live model",
	})

	m.HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "code"},
	)
	m.HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
}

// Outcome классифицирует результат идентификации
func Outcome(result recognition.Result, err error) string {
	switch {
	case err == nil && result.Accepted:
		return OutcomeMatch
	case err == nil:
		return OutcomeNoMatch
	case errors.Is(err, recognition.ErrNoFaceDetected):
		return OutcomeNoFace
	case errors.Is(err, recognition.ErrModelNotTrained):
		return OutcomeNotTrained
	case errors.Is(err, recognition.ErrImageLoad):
		return OutcomeBadImage
	default:
		return OutcomeError
	}
}

// ObserveIdentify реализует recognition.Observer
func (m *RecognitionMetrics) ObserveIdentify(result recognition.Result, err error, elapsed time.Duration) {
	outcome := Outcome(result, err)
	m.IdentifyTotal.WithLabelValues(outcome).Inc()
	m.IdentifyDuration.Observe(elapsed.Seconds())
	if outcome == OutcomeMatch {
		m.MatchDistance.Observe(result.Distance)
	}
}

// ObserveRebuild реализует recognition.Observer
func (m *RecognitionMetrics) ObserveRebuild(stats recognition.RebuildStats, err error) {
	m.RebuildDuration.Observe(stats.Duration.Seconds())
	m.SkippedFiles.Add(float64(stats.Skipped))

	switch {
	case err != nil:
		m.RebuildTotal.WithLabelValues("error").Inc()
	case stats.Replaced:
		m.RebuildTotal.WithLabelValues("replaced").Inc()
		m.SamplesGauge.Set(float64(stats.Samples))
		m.IdentitiesGauge.Set(float64(stats.Identities))
		m.Generation.Set(float64(stats.Generation))
		m.ModelTrained.Set(1)
	default:
		m.RebuildTotal.WithLabelValues("unchanged").Inc()
	}
}

// RecordHTTPRequest учитывает один обработанный HTTP-запрос
func (m *RecognitionMetrics) RecordHTTPRequest(method, route string, code int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, fmt.Sprint(code)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Describe implements the prometheus.Collector interface.
func (m *RecognitionMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.IdentifyTotal.Describe(ch)
	ch <- m.IdentifyDuration.Desc()
	ch <- m.MatchDistance.Desc()

	m.RebuildTotal.Describe(ch)
	ch <- m.RebuildDuration.Desc()
	ch <- m.SkippedFiles.Desc()

	ch <- m.SamplesGauge.Desc()
	ch <- m.IdentitiesGauge.Desc()
	ch <- m.ModelTrained.Desc()
	ch <- m.Generation.Desc()

	m.HTTPRequests.Describe(ch)
	m.HTTPDuration.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *RecognitionMetrics) Collect(ch chan<- prometheus.Metric) {
	m.IdentifyTotal.Collect(ch)
	ch <- m.IdentifyDuration
	ch <- m.MatchDistance

	m.RebuildTotal.Collect(ch)
	ch <- m.RebuildDuration
	ch <- m.SkippedFiles

	ch <- m.SamplesGauge
	ch <- m.IdentitiesGauge
	ch <- m.ModelTrained
	ch <- m.Generation

	m.HTTPRequests.Collect(ch)
	m.HTTPDuration.Collect(ch)
}
