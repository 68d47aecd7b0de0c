package vad

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// onnxEnvOnce ensures the ONNX runtime environment is initialized exactly
// once for the process lifetime. The runtime leaks internal state when torn
// down and re-created, so the environment is never destroyed.
var onnxEnvOnce sync.Once

// SileroScorer runs the Silero VAD ONNX model. The model is recurrent: a
// hidden state tensor and a short context window carry over between frames,
// which is what makes scores utterance-aware. Reset zeroes both so that no
// state leaks across utterance boundaries.
type SileroScorer struct {
	cfg         Config
	contextSize int

	// ONNX session and tensors, created once and reused for every inference.
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	srTensor     *ort.Tensor[int64]
	stateTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	stateNTensor *ort.Tensor[float32]

	state     []float32 // Hidden state [2, 1, 128], backing memory of stateTensor
	context   []float32 // Last contextSize samples of the previous frame
	fullInput []float32 // Scratch: context + frame

	closed bool
}

// NewSileroScorer loads the Silero model and builds the inference session.
// Fails fast on an unsupported sample rate or a frame size the model does
// not accept, so configuration errors surface before the pipeline starts.
func NewSileroScorer(cfg Config) (*SileroScorer, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("silero model path cannot be empty")
	}

	var contextSize int
	var wantFrame int
	switch cfg.SampleRate {
	case 8000:
		wantFrame, contextSize = 256, 32
	case 16000:
		wantFrame, contextSize = 512, 64
	default:
		return nil, fmt.Errorf("unsupported sample rate: %d (must be 8000 or 16000)", cfg.SampleRate)
	}

	if cfg.FrameSize != wantFrame {
		return nil, fmt.Errorf("silero requires %d-sample frames at %d Hz, got %d",
			wantFrame, cfg.SampleRate, cfg.FrameSize)
	}

	var envErr error
	onnxEnvOnce.Do(func() {
		if cfg.OnnxLibPath != "" {
			ort.SetSharedLibraryPath(cfg.OnnxLibPath)
		}
		envErr = ort.InitializeEnvironment()
	})
	if envErr != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", envErr)
	}

	s := &SileroScorer{
		cfg:         cfg,
		contextSize: contextSize,
		state:       make([]float32, 2*1*128), // [2, 1, 128]
		context:     make([]float32, contextSize),
		fullInput:   make([]float32, contextSize+cfg.FrameSize),
	}

	if err := s.createTensors(); err != nil {
		s.destroyTensors()
		return nil, err
	}

	return s, nil
}

// Score runs one inference over the frame and returns the model's speech
// probability.
func (s *SileroScorer) Score(frame []float32) (float32, error) {
	if s.closed {
		return 0, fmt.Errorf("scorer is closed")
	}

	if len(frame) != s.cfg.FrameSize {
		return 0, fmt.Errorf("expected %d samples, got %d", s.cfg.FrameSize, len(frame))
	}

	copy(s.fullInput[:s.contextSize], s.context)
	copy(s.fullInput[s.contextSize:], frame)

	// The tensors are bound to the session once; only their contents
	// change. s.state is the state tensor's backing memory, so writes to
	// it (the stateN feedback below, Reset) reach the session directly.
	copy(s.inputTensor.GetData(), s.fullInput)

	if err := s.session.Run(); err != nil {
		return 0, fmt.Errorf("inference failed: %w", err)
	}

	confidence := s.outputTensor.GetData()[0]

	copy(s.state, s.stateNTensor.GetData())
	copy(s.context, s.fullInput[len(s.fullInput)-s.contextSize:])

	return confidence, nil
}

// Reset zeroes the recurrent model state and the context window.
func (s *SileroScorer) Reset() {
	for i := range s.state {
		s.state[i] = 0
	}
	for i := range s.context {
		s.context[i] = 0
	}
}

// Close releases the session and tensors. The global ONNX environment is
// intentionally left intact for reuse by later sessions.
func (s *SileroScorer) Close() error {
	if s.closed {
		return nil
	}

	s.destroyTensors()
	s.closed = true
	return nil
}

// createTensors creates the ONNX tensors and session, called once.
func (s *SileroScorer) createTensors() error {
	totalInputSize := int64(s.contextSize + s.cfg.FrameSize)

	inputTensor, err := ort.NewTensor(ort.NewShape(1, totalInputSize), make([]float32, totalInputSize))
	if err != nil {
		return fmt.Errorf("failed to create input tensor: %w", err)
	}
	s.inputTensor = inputTensor

	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(s.cfg.SampleRate)})
	if err != nil {
		return fmt.Errorf("failed to create sr tensor: %w", err)
	}
	s.srTensor = srTensor

	// Uses s.state as backing memory so Reset is visible to the session.
	stateTensor, err := ort.NewTensor(ort.NewShape(2, 1, 128), s.state)
	if err != nil {
		return fmt.Errorf("failed to create state tensor: %w", err)
	}
	s.stateTensor = stateTensor

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return fmt.Errorf("failed to create output tensor: %w", err)
	}
	s.outputTensor = outputTensor

	stateNTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 128))
	if err != nil {
		return fmt.Errorf("failed to create stateN tensor: %w", err)
	}
	s.stateNTensor = stateNTensor

	session, err := ort.NewAdvancedSession(
		s.cfg.ModelPath,
		[]string{"input", "sr", "state"},
		[]string{"output", "stateN"},
		[]ort.Value{s.inputTensor, s.srTensor, s.stateTensor},
		[]ort.Value{s.outputTensor, s.stateNTensor},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create ONNX session: %w", err)
	}
	s.session = session

	return nil
}

func (s *SileroScorer) destroyTensors() {
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
		s.inputTensor = nil
	}
	if s.srTensor != nil {
		s.srTensor.Destroy()
		s.srTensor = nil
	}
	if s.stateTensor != nil {
		s.stateTensor.Destroy()
		s.stateTensor = nil
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
		s.outputTensor = nil
	}
	if s.stateNTensor != nil {
		s.stateNTensor.Destroy()
		s.stateNTensor = nil
	}
}
