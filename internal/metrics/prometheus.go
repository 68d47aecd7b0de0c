package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the dictation service
type Metrics struct {
	// Capture metrics
	ChunksSubmitted prometheus.Counter
	ChunksDropped   prometheus.Counter
	ChunkQueueSize  prometheus.Gauge

	// VAD metrics
	FramesProcessed   prometheus.Counter
	SpeechFrames      prometheus.Counter
	VADProcessingTime prometheus.Histogram
	VADErrors         prometheus.Counter

	// Segment metrics
	SegmentsFinalized prometheus.Counter
	SegmentsDiscarded prometheus.Counter
	SegmentsDropped   prometheus.Counter
	SegmentDuration   prometheus.Histogram
	SegmentConfidence prometheus.Histogram
	SegmentQueueSize  prometheus.Gauge

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionEmpty     prometheus.Counter
	TranscriptionDuration  prometheus.Histogram

	// Delivery metrics
	DeliverySuccesses prometheus.Counter
	DeliveryFailures  prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all Prometheus metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Capture metrics
		ChunksSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictate_chunks_submitted_total",
			Help: "Total number of audio chunks accepted from the capture device",
		}),
		ChunksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictate_chunks_dropped_total",
			Help: "Total number of audio chunks dropped due to a full queue",
		}),
		ChunkQueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dictate_chunk_queue_size",
			Help: "Current number of audio chunks waiting for segmentation",
		}),

		// VAD metrics
		FramesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictate_frames_processed_total",
			Help: "Total number of fixed-size frames scored by VAD",
		}),
		SpeechFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictate_speech_frames_total",
			Help: "Total number of frames classified as speech",
		}),
		VADProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dictate_vad_processing_duration_seconds",
			Help:    "Time spent scoring frames",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 10), // 100us to ~100ms
		}),
		VADErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictate_vad_errors_total",
			Help: "Total number of frames the VAD scorer failed on",
		}),

		// Segment metrics
		SegmentsFinalized: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictate_segments_finalized_total",
			Help: "Total number of utterance segments finalized",
		}),
		SegmentsDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictate_segments_discarded_total",
			Help: "Total number of segments discarded for insufficient speech",
		}),
		SegmentsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictate_segments_dropped_total",
			Help: "Total number of finalized segments dropped due to a full queue",
		}),
		SegmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dictate_segment_duration_seconds",
			Help:    "Duration of finalized segments",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~2 minutes
		}),
		SegmentConfidence: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dictate_segment_confidence",
			Help:    "Average VAD confidence of finalized segments",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		}),
		SegmentQueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dictate_segment_queue_size",
			Help: "Current number of segments waiting for transcription",
		}),

		// Transcription metrics
		TranscriptionRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictate_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictate_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictate_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionEmpty: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictate_transcription_empty_total",
			Help: "Total number of transcriptions that returned no text",
		}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dictate_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		// Delivery metrics
		DeliverySuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictate_delivery_successes_total",
			Help: "Total number of transcripts delivered to the clipboard",
		}),
		DeliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictate_delivery_failures_total",
			Help: "Total number of clipboard delivery failures",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dictate_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dictate_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dictate_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordChunkSubmitted increments the submitted chunks counter
func (m *Metrics) RecordChunkSubmitted() {
	m.ChunksSubmitted.Inc()
}

// RecordChunkDropped increments the dropped chunks counter
func (m *Metrics) RecordChunkDropped() {
	m.ChunksDropped.Inc()
}

// SetChunkQueueSize sets the current chunk queue size
func (m *Metrics) SetChunkQueueSize(size int) {
	m.ChunkQueueSize.Set(float64(size))
}

// RecordFrame increments frames processed and records scoring time
func (m *Metrics) RecordFrame(processingTimeSeconds float64) {
	m.FramesProcessed.Inc()
	m.VADProcessingTime.Observe(processingTimeSeconds)
}

// AddSpeechFrames adds n to the speech frames counter
func (m *Metrics) AddSpeechFrames(n uint64) {
	m.SpeechFrames.Add(float64(n))
}

// RecordVADError increments the VAD errors counter
func (m *Metrics) RecordVADError() {
	m.VADErrors.Inc()
}

// RecordSegmentFinalized records a finalized segment
func (m *Metrics) RecordSegmentFinalized(durationSeconds float64, confidence float64) {
	m.SegmentsFinalized.Inc()
	m.SegmentDuration.Observe(durationSeconds)
	m.SegmentConfidence.Observe(confidence)
}

// RecordSegmentDiscarded increments the discarded segments counter
func (m *Metrics) RecordSegmentDiscarded() {
	m.SegmentsDiscarded.Inc()
}

// RecordSegmentDropped increments the dropped segments counter
func (m *Metrics) RecordSegmentDropped() {
	m.SegmentsDropped.Inc()
}

// SetSegmentQueueSize sets the current segment queue size
func (m *Metrics) SetSegmentQueueSize(size int) {
	m.SegmentQueueSize.Set(float64(size))
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionEmpty increments the empty transcriptions counter
func (m *Metrics) RecordTranscriptionEmpty() {
	m.TranscriptionEmpty.Inc()
}

// RecordDeliverySuccess increments the delivery successes counter
func (m *Metrics) RecordDeliverySuccess() {
	m.DeliverySuccesses.Inc()
}

// RecordDeliveryFailure increments the delivery failures counter
func (m *Metrics) RecordDeliveryFailure() {
	m.DeliveryFailures.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
