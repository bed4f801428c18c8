// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "behavioralsignals_sdk"

// Metrics holds all Prometheus metrics for the SDK.
type Metrics struct {
	// HTTP (batch) metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPInFlight        prometheus.Gauge
	APIErrors           *prometheus.CounterVec

	// Polling metrics
	PollsTotal *prometheus.CounterVec

	// Stream metrics
	StreamsTotal   prometheus.Counter
	StreamsActive  prometheus.Gauge
	StreamsSuccess prometheus.Counter
	StreamsFailed  prometheus.Counter
	StreamDuration prometheus.Histogram

	// Frame metrics
	FramesSent          *prometheus.CounterVec
	AudioBytesSent      prometheus.Counter
	ResultFramesRecv    prometheus.Counter
	ResultItemsReceived prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests sent to the batch API",
		}, []string{"code", "method"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Batch API round-trip latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method"}),
		HTTPInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of batch API requests currently in flight",
		}),
		APIErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_errors_total",
			Help:      "Total number of failed SDK operations by kind",
		}, []string{"operation", "kind"}),

		PollsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Total number of process status observations",
		}, []string{"status"}),

		StreamsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Total number of gRPC streams opened",
		}),
		StreamsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of currently open gRPC streams",
		}),
		StreamsSuccess: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_success_total",
			Help:      "Total number of streams that ended cleanly",
		}),
		StreamsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_failed_total",
			Help:      "Total number of streams that ended with an error",
		}),
		StreamDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Duration of gRPC streams in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),

		FramesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Total stream frames sent by type",
		}, []string{"type"}),
		AudioBytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_sent_total",
			Help:      "Total audio bytes sent over streams",
		}),
		ResultFramesRecv: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_frames_received_total",
			Help:      "Total result frames received over streams",
		}),
		ResultItemsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_items_received_total",
			Help:      "Total result items received over streams",
		}),

		KafkaPublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// InstrumentRoundTripper wraps next with request count, latency and
// in-flight instrumentation.
func (m *Metrics) InstrumentRoundTripper(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return promhttp.InstrumentRoundTripperInFlight(m.HTTPInFlight,
		promhttp.InstrumentRoundTripperCounter(m.HTTPRequestsTotal,
			promhttp.InstrumentRoundTripperDuration(m.HTTPRequestDuration, next),
		),
	)
}

// RecordAPIError records a failed SDK operation.
func (m *Metrics) RecordAPIError(operation, kind string) {
	m.APIErrors.WithLabelValues(operation, kind).Inc()
}

// RecordPoll records one process status observation.
func (m *Metrics) RecordPoll(status string) {
	m.PollsTotal.WithLabelValues(status).Inc()
}

// RecordStreamStart records a new stream starting.
func (m *Metrics) RecordStreamStart() {
	m.StreamsTotal.Inc()
	m.StreamsActive.Inc()
}

// RecordStreamEnd records a stream ending.
func (m *Metrics) RecordStreamEnd(success bool, durationSeconds float64) {
	m.StreamsActive.Dec()
	m.StreamDuration.Observe(durationSeconds)
	if success {
		m.StreamsSuccess.Inc()
	} else {
		m.StreamsFailed.Inc()
	}
}

// RecordFrameSent records one outgoing frame. audioBytes is zero for the
// handshake.
func (m *Metrics) RecordFrameSent(frameType string, audioBytes int) {
	m.FramesSent.WithLabelValues(frameType).Inc()
	if audioBytes > 0 {
		m.AudioBytesSent.Add(float64(audioBytes))
	}
}

// RecordResultFrame records one incoming result frame.
func (m *Metrics) RecordResultFrame(items int) {
	m.ResultFramesRecv.Inc()
	m.ResultItemsReceived.Add(float64(items))
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
