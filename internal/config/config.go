package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/casperarmani/voicedictate/internal/vad"
)

// Config represents the complete service configuration
type Config struct {
	Audio         AudioConfig         `yaml:"audio"`
	VAD           VADConfig           `yaml:"vad"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Sink          SinkConfig          `yaml:"sink"`
	HTTP          HTTPConfig          `yaml:"http"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// AudioConfig contains capture and framing parameters
type AudioConfig struct {
	SampleRate int    `yaml:"sample_rate"`
	FrameSize  int    `yaml:"frame_size"` // samples per VAD frame
	Device     string `yaml:"device"`     // capture device, empty for platform default
	BlockSize  int    `yaml:"block_size"` // samples per capture chunk
}

// VADConfig contains voice activity detection configuration
type VADConfig struct {
	Engine            string  `yaml:"engine"` // "silero" or "energy"
	ModelPath         string  `yaml:"model_path"`
	OnnxLibPath       string  `yaml:"onnx_lib_path"`
	Threshold         float32 `yaml:"threshold"`           // 0 means unset and selects the default
	SilenceTimeout    float64 `yaml:"silence_timeout"`     // seconds
	MinSpeechDuration float64 `yaml:"min_speech_duration"` // seconds
	PreSpeechBuffer   float64 `yaml:"pre_speech_buffer"`   // seconds; 0 means unset and selects the default
}

// TranscriptionConfig contains transcription API configuration
type TranscriptionConfig struct {
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
	Prompt   string `yaml:"prompt"`
	Timeout  int    `yaml:"timeout"` // seconds
}

// PipelineConfig contains queue and worker tuning
type PipelineConfig struct {
	ChunkQueueSize   int `yaml:"chunk_queue_size"`
	SegmentQueueSize int `yaml:"segment_queue_size"`
	CleanupInterval  int `yaml:"cleanup_interval"` // segments between recording sweeps
	KeepRecordings   int `yaml:"keep_recordings"`
	JoinTimeout      int `yaml:"join_timeout"` // seconds
}

// SinkConfig contains delivery and storage configuration
type SinkConfig struct {
	AutoPaste bool   `yaml:"auto_paste"`
	TempDir   string `yaml:"temp_dir"` // empty uses the system temp directory
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file. A missing API key in the
// file falls back to the OPENAI_API_KEY environment variable.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.applyDefaults()

	if config.Transcription.APIKey == "" {
		config.Transcription.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyDefaults fills unset fields. Zero is indistinguishable from unset
// for the numeric fields, so an explicit 0 also selects the default; a
// near-zero threshold must be given as a small positive value.
func (c *Config) applyDefaults() {
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.FrameSize == 0 {
		c.Audio.FrameSize = 512
	}
	if c.Audio.BlockSize == 0 {
		c.Audio.BlockSize = c.Audio.FrameSize
	}
	if c.VAD.Engine == "" {
		c.VAD.Engine = vad.EngineSilero
	}
	if c.VAD.Threshold == 0 {
		c.VAD.Threshold = 0.5
	}
	if c.VAD.SilenceTimeout == 0 {
		c.VAD.SilenceTimeout = 1.5
	}
	if c.VAD.MinSpeechDuration == 0 {
		c.VAD.MinSpeechDuration = 0.5
	}
	if c.VAD.PreSpeechBuffer == 0 {
		c.VAD.PreSpeechBuffer = 0.5
	}
	if c.Transcription.Model == "" {
		c.Transcription.Model = "gpt-4o-mini-transcribe"
	}
	if c.Transcription.Timeout == 0 {
		c.Transcription.Timeout = 30
	}
	if c.Pipeline.ChunkQueueSize == 0 {
		c.Pipeline.ChunkQueueSize = 200
	}
	if c.Pipeline.SegmentQueueSize == 0 {
		c.Pipeline.SegmentQueueSize = 10
	}
	if c.Pipeline.CleanupInterval == 0 {
		c.Pipeline.CleanupInterval = 5
	}
	if c.Pipeline.KeepRecordings == 0 {
		c.Pipeline.KeepRecordings = 10
	}
	if c.Pipeline.JoinTimeout == 0 {
		c.Pipeline.JoinTimeout = 3
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 8000 && a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 8000 or 16000 Hz, got %d", a.SampleRate)
	}

	if a.FrameSize < 256 || a.FrameSize > 2048 {
		return fmt.Errorf("frame_size must be between 256 and 2048 samples, got %d", a.FrameSize)
	}

	if a.BlockSize < 1 {
		return fmt.Errorf("block_size must be positive, got %d", a.BlockSize)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if v.Engine != vad.EngineSilero && v.Engine != vad.EngineEnergy {
		return fmt.Errorf("engine must be '%s' or '%s', got '%s'",
			vad.EngineSilero, vad.EngineEnergy, v.Engine)
	}

	if v.Engine == vad.EngineSilero && v.ModelPath == "" {
		return fmt.Errorf("model_path cannot be empty for the silero engine")
	}

	if v.Threshold < 0 || v.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", v.Threshold)
	}

	if v.SilenceTimeout <= 0 {
		return fmt.Errorf("silence_timeout must be positive, got %f", v.SilenceTimeout)
	}

	if v.MinSpeechDuration <= 0 {
		return fmt.Errorf("min_speech_duration must be positive, got %f", v.MinSpeechDuration)
	}

	if v.PreSpeechBuffer < 0 {
		return fmt.Errorf("pre_speech_buffer cannot be negative, got %f", v.PreSpeechBuffer)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty (set it in the config or via OPENAI_API_KEY)")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	return nil
}

// Validate validates pipeline configuration
func (p *PipelineConfig) Validate() error {
	if p.ChunkQueueSize < 1 {
		return fmt.Errorf("chunk_queue_size must be at least 1, got %d", p.ChunkQueueSize)
	}

	if p.SegmentQueueSize < 1 {
		return fmt.Errorf("segment_queue_size must be at least 1, got %d", p.SegmentQueueSize)
	}

	if p.CleanupInterval < 1 {
		return fmt.Errorf("cleanup_interval must be at least 1, got %d", p.CleanupInterval)
	}

	if p.KeepRecordings < 1 {
		return fmt.Errorf("keep_recordings must be at least 1, got %d", p.KeepRecordings)
	}

	if p.JoinTimeout < 1 {
		return fmt.Errorf("join_timeout must be at least 1 second, got %d", p.JoinTimeout)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetSilenceTimeout returns the silence timeout as a time.Duration
func (v *VADConfig) GetSilenceTimeout() time.Duration {
	return time.Duration(v.SilenceTimeout * float64(time.Second))
}

// GetMinSpeechDuration returns the minimum speech duration as a time.Duration
func (v *VADConfig) GetMinSpeechDuration() time.Duration {
	return time.Duration(v.MinSpeechDuration * float64(time.Second))
}

// GetPreSpeechBuffer returns the pre-speech lookback as a time.Duration
func (v *VADConfig) GetPreSpeechBuffer() time.Duration {
	return time.Duration(v.PreSpeechBuffer * float64(time.Second))
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetJoinTimeout returns the pipeline join timeout as a time.Duration
func (p *PipelineConfig) GetJoinTimeout() time.Duration {
	return time.Duration(p.JoinTimeout) * time.Second
}
