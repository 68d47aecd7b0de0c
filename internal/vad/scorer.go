package vad

import "fmt"

// Supported scorer engines.
const (
	EngineSilero = "silero"
	EngineEnergy = "energy"
)

// Scorer produces a speech confidence score in [0, 1] for fixed-size audio
// frames. Implementations may keep recurrent state across calls within one
// utterance; the segmenter calls Reset at every utterance boundary so that
// state never leaks between utterances. Score must be called with exactly
// the configured frame size.
//
// Scorers are used from a single goroutine.
type Scorer interface {
	Score(frame []float32) (float32, error)
	Reset()
	Close() error
}

// Config selects and configures a scorer implementation.
type Config struct {
	Engine      string
	ModelPath   string // Path to the Silero ONNX model
	OnnxLibPath string // Path to the ONNX runtime shared library
	FrameSize   int    // Samples per frame (512 at 16kHz)
	SampleRate  int
}

// New creates the scorer selected by cfg.Engine.
func New(cfg Config) (Scorer, error) {
	switch cfg.Engine {
	case EngineSilero:
		return NewSileroScorer(cfg)
	case EngineEnergy:
		return NewEnergyScorer(cfg.FrameSize)
	default:
		return nil, fmt.Errorf("unknown vad engine %q (must be %q or %q)",
			cfg.Engine, EngineSilero, EngineEnergy)
	}
}
