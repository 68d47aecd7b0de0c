package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/casperarmani/voicedictate/internal/capture"
	"github.com/casperarmani/voicedictate/internal/config"
	"github.com/casperarmani/voicedictate/internal/metrics"
	"github.com/casperarmani/voicedictate/internal/pipeline"
	"github.com/casperarmani/voicedictate/internal/segment"
	"github.com/casperarmani/voicedictate/internal/server"
	"github.com/casperarmani/voicedictate/internal/sink"
	"github.com/casperarmani/voicedictate/internal/transcription"
	"github.com/casperarmani/voicedictate/internal/vad"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "voicedictate"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Pick up OPENAI_API_KEY from a local .env when present
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("frame_size", cfg.Audio.FrameSize),
		slog.String("vad_engine", cfg.VAD.Engine),
		slog.Float64("vad_threshold", float64(cfg.VAD.Threshold)),
		slog.Float64("silence_timeout", cfg.VAD.SilenceTimeout),
		slog.String("transcription_model", cfg.Transcription.Model),
		slog.Bool("auto_paste", cfg.Sink.AutoPaste),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	registry := prometheus.NewRegistry()
	appMetrics := metrics.NewMetrics(registry)
	logger.Info("Prometheus metrics initialized")

	// Initialize VAD scorer
	scorer, err := vad.New(vad.Config{
		Engine:      cfg.VAD.Engine,
		ModelPath:   cfg.VAD.ModelPath,
		OnnxLibPath: cfg.VAD.OnnxLibPath,
		FrameSize:   cfg.Audio.FrameSize,
		SampleRate:  cfg.Audio.SampleRate,
	})
	if err != nil {
		logger.Error("Failed to create VAD scorer", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer scorer.Close()
	logger.Info("VAD scorer initialized", slog.String("engine", cfg.VAD.Engine))

	// Initialize segmenter
	segmenter, err := segment.NewSegmenter(segment.Config{
		Threshold:         cfg.VAD.Threshold,
		SilenceTimeout:    cfg.VAD.GetSilenceTimeout(),
		MinSpeechDuration: cfg.VAD.GetMinSpeechDuration(),
		PreSpeechBuffer:   cfg.VAD.GetPreSpeechBuffer(),
		FrameSize:         cfg.Audio.FrameSize,
		SampleRate:        cfg.Audio.SampleRate,
	}, scorer)
	if err != nil {
		logger.Error("Failed to create segmenter", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize transcription client
	transcriber, err := transcription.NewClient(transcription.Config{
		APIKey:   cfg.Transcription.APIKey,
		Model:    cfg.Transcription.Model,
		Language: cfg.Transcription.Language,
		Prompt:   cfg.Transcription.Prompt,
		Timeout:  cfg.Transcription.GetTimeoutDuration(),
	})
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Transcription client initialized",
		slog.String("model", transcriber.Model()),
	)

	// Initialize sinks
	clipboard := sink.NewClipboard(cfg.Sink.AutoPaste)
	storage, err := sink.NewStorage(cfg.Sink.TempDir, cfg.Audio.SampleRate)
	if err != nil {
		logger.Error("Failed to create recording storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Recording storage initialized", slog.String("dir", storage.Dir()))

	// Initialize pipeline
	p, err := pipeline.New(pipeline.Config{
		ChunkQueueSize:   cfg.Pipeline.ChunkQueueSize,
		SegmentQueueSize: cfg.Pipeline.SegmentQueueSize,
		CleanupInterval:  cfg.Pipeline.CleanupInterval,
		KeepRecordings:   cfg.Pipeline.KeepRecordings,
		JoinTimeout:      cfg.Pipeline.GetJoinTimeout(),
	}, pipeline.Deps{
		Segmenter:   segmenter,
		Transcriber: transcriber,
		Clipboard:   clipboard,
		Storage:     storage,
		Logger:      logger,
		Metrics:     appMetrics,
	})
	if err != nil {
		logger.Error("Failed to create pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}
	p.Start()

	// Initialize audio capture
	source, err := capture.NewFFmpegSource(cfg.Audio.Device, cfg.Audio.SampleRate, cfg.Audio.BlockSize, logger)
	if err != nil {
		logger.Error("Failed to create capture source", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, p, transcriber, appMetrics, registry)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Start audio capture
	if err := source.Start(p.Submit); err != nil {
		logger.Error("Failed to start audio capture", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start HTTP server (if enabled)
	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Dictation started, listening for speech...")

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop capture first (no new audio enters the pipeline)
	if err := source.Stop(); err != nil {
		logger.Error("Error stopping audio capture", slog.String("error", err.Error()))
	}

	// Drain and stop the pipeline
	if err := p.Shutdown(); err != nil {
		logger.Error("Error stopping pipeline", slog.String("error", err.Error()))
	}

	// Stop HTTP server last so /stats stays reachable during drain
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Get final statistics
	stats := p.Stats()
	transcriptionStats := transcriber.GetStats()
	logger.Info("Final statistics",
		slog.Uint64("chunks_submitted", stats.ChunksSubmitted),
		slog.Uint64("chunks_dropped", stats.ChunksDropped),
		slog.Uint64("segments_finalized", stats.Segmenter.SegmentsFinalized),
		slog.Uint64("segments_transcribed", stats.SegmentsTranscribed),
		slog.Uint64("transcription_requests", transcriptionStats.TotalRequests),
		slog.Float64("transcription_success_rate", transcriptionStats.SuccessRate),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
