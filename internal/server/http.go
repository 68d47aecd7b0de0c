package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/casperarmani/voicedictate/internal/config"
	"github.com/casperarmani/voicedictate/internal/metrics"
	"github.com/casperarmani/voicedictate/internal/pipeline"
	"github.com/casperarmani/voicedictate/internal/transcription"
)

// HTTPServer provides HTTP API endpoints for monitoring and control
type HTTPServer struct {
	server      *http.Server
	logger      *slog.Logger
	config      *config.Config
	pipeline    *pipeline.Pipeline
	transcriber *transcription.Client
	metrics     *metrics.Metrics
	registry    *prometheus.Registry

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, p *pipeline.Pipeline, t *transcription.Client,
	m *metrics.Metrics, registry *prometheus.Registry) *HTTPServer {

	h := &HTTPServer{
		logger:      logger,
		config:      appConfig,
		pipeline:    p,
		transcriber: t,
		metrics:     m,
		registry:    registry,
		startTime:   time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Statistics endpoints
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/stats/transcription", h.withMetrics("/stats/transcription", h.handleTranscriptionStats))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Dictation control
	mux.HandleFunc("/pause", h.withMetrics("/pause", h.handlePause))
	mux.HandleFunc("/resume", h.withMetrics("/resume", h.handleResume))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	pipelineStats := h.pipeline.Stats()
	transcriptionStats := h.transcriber.GetStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "voicedictate",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"pipeline": map[string]interface{}{
				"status":               "running",
				"paused":               pipelineStats.Paused,
				"chunks_submitted":     pipelineStats.ChunksSubmitted,
				"chunks_dropped":       pipelineStats.ChunksDropped,
				"segments_transcribed": pipelineStats.SegmentsTranscribed,
			},
			"segmenter": map[string]interface{}{
				"state":              pipelineStats.Segmenter.State,
				"frames_processed":   pipelineStats.Segmenter.FramesProcessed,
				"segments_finalized": pipelineStats.Segmenter.SegmentsFinalized,
			},
			"transcription": map[string]interface{}{
				"status":         "running",
				"total_requests": transcriptionStats.TotalRequests,
				"success_rate":   transcriptionStats.SuccessRate,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)

	stats := map[string]interface{}{
		"uptime":        uptime.String(),
		"timestamp":     time.Now().UTC(),
		"pipeline":      h.pipeline.Stats(),
		"transcription": h.transcriber.GetStats(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleTranscriptionStats implements the /stats/transcription endpoint
func (h *HTTPServer) handleTranscriptionStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.transcriber.GetStats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"audio": map[string]interface{}{
			"sample_rate": h.config.Audio.SampleRate,
			"frame_size":  h.config.Audio.FrameSize,
			"device":      h.config.Audio.Device,
			"block_size":  h.config.Audio.BlockSize,
		},
		"vad": map[string]interface{}{
			"engine":              h.config.VAD.Engine,
			"model_path":          h.config.VAD.ModelPath,
			"threshold":           h.config.VAD.Threshold,
			"silence_timeout":     h.config.VAD.SilenceTimeout,
			"min_speech_duration": h.config.VAD.MinSpeechDuration,
			"pre_speech_buffer":   h.config.VAD.PreSpeechBuffer,
		},
		"transcription": map[string]interface{}{
			"model":    h.config.Transcription.Model,
			"language": h.config.Transcription.Language,
			"timeout":  h.config.Transcription.Timeout,
			// Note: API key is intentionally omitted for security
		},
		"pipeline": map[string]interface{}{
			"chunk_queue_size":   h.config.Pipeline.ChunkQueueSize,
			"segment_queue_size": h.config.Pipeline.SegmentQueueSize,
			"cleanup_interval":   h.config.Pipeline.CleanupInterval,
			"keep_recordings":    h.config.Pipeline.KeepRecordings,
		},
		"sink": map[string]interface{}{
			"auto_paste": h.config.Sink.AutoPaste,
			"temp_dir":   h.config.Sink.TempDir,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handlePause implements the /pause endpoint
func (h *HTTPServer) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.pipeline.Pause()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"paused":    true,
		"timestamp": time.Now().UTC(),
	})
}

// handleResume implements the /resume endpoint
func (h *HTTPServer) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.pipeline.Resume()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"paused":    false,
		"timestamp": time.Now().UTC(),
	})
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Voice Dictation Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                    "API documentation",
			"GET /health":              "Service health check",
			"GET /stats":               "Get service statistics",
			"GET /stats/transcription": "Get transcription statistics",
			"GET /config":              "Get service configuration",
			"POST /pause":              "Pause audio intake",
			"POST /resume":             "Resume audio intake",
			"GET /metrics":             "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
