package segment

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/casperarmani/voicedictate/internal/audio"
	"github.com/casperarmani/voicedictate/internal/vad"
)

// State represents the current state of the segmenter
type State int

const (
	StateIdle State = iota
	StateSpeaking
)

// Segment is one finalized utterance: every frame from speech onset through
// confirmed silence, including the pre-speech lookback. Immutable once
// returned.
type Segment struct {
	ID             string
	Samples        []float32
	SampleRate     int
	FrameCount     int
	Duration       time.Duration // audio length of Samples
	SpeechDuration time.Duration // onset through last speech frame
	AvgConfidence  float32
}

// Config contains segmenter tuning parameters.
type Config struct {
	Threshold         float32       // VAD confidence at or above which a frame counts as speech
	SilenceTimeout    time.Duration // continuous non-speech required to end an utterance
	MinSpeechDuration time.Duration // shorter utterances (onset to finalization) are discarded
	PreSpeechBuffer   time.Duration // lookback prepended at speech onset
	FrameSize         int           // samples per analysis frame
	SampleRate        int
}

// Stats represents segmenter statistics
type Stats struct {
	State             string `json:"state"`
	FramesProcessed   uint64 `json:"frames_processed"`
	SpeechFrames      uint64 `json:"speech_frames"`
	SegmentsFinalized uint64 `json:"segments_finalized"`
	SegmentsDiscarded uint64 `json:"segments_discarded_short"`
}

// Segmenter tracks speech/idle state across a frame stream and emits
// finalized segments. It owns the scorer, the pre-speech ring buffer, and
// the in-progress utterance; none of that state is shared with other
// goroutines. Time is derived from the count of consumed samples rather
// than the wall clock, so segmentation is a deterministic function of the
// frame/confidence sequence.
type Segmenter struct {
	cfg    Config
	scorer vad.Scorer

	frameDuration time.Duration

	state  State
	ring   *audio.Ring
	frames [][]float32

	clock        time.Duration // stream time at the end of the last frame
	speechStart  time.Duration // stream time of utterance onset (start of onset frame)
	lastSpeech   time.Duration // stream time at the end of the last speech frame
	silenceStart time.Duration
	inSilence    bool

	confidenceSum   float32
	confidenceCount int

	framesProcessed   uint64
	speechFrames      uint64
	segmentsFinalized uint64
	segmentsDiscarded uint64

	mu sync.Mutex
}

// NewSegmenter creates a segmenter using scorer for per-frame confidence.
func NewSegmenter(cfg Config, scorer vad.Scorer) (*Segmenter, error) {
	if scorer == nil {
		return nil, fmt.Errorf("scorer cannot be nil")
	}

	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", cfg.Threshold)
	}

	if cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", cfg.FrameSize)
	}

	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}

	if cfg.SilenceTimeout <= 0 {
		return nil, fmt.Errorf("silence timeout must be positive, got %v", cfg.SilenceTimeout)
	}

	if cfg.MinSpeechDuration <= 0 {
		return nil, fmt.Errorf("min speech duration must be positive, got %v", cfg.MinSpeechDuration)
	}

	if cfg.PreSpeechBuffer < 0 {
		return nil, fmt.Errorf("pre-speech buffer cannot be negative, got %v", cfg.PreSpeechBuffer)
	}

	// Lookback capacity in whole frames, at least one.
	capacity := int(cfg.PreSpeechBuffer.Seconds() * float64(cfg.SampleRate) / float64(cfg.FrameSize))
	if capacity < 1 {
		capacity = 1
	}

	ring, err := audio.NewRing(capacity)
	if err != nil {
		return nil, err
	}

	return &Segmenter{
		cfg:           cfg,
		scorer:        scorer,
		frameDuration: time.Duration(cfg.FrameSize) * time.Second / time.Duration(cfg.SampleRate),
		state:         StateIdle,
		ring:          ring,
	}, nil
}

// ProcessFrame scores one analysis frame and advances the state machine.
// It returns a finalized segment when an utterance ends and passes the
// minimum-duration filter, otherwise nil. The frame must be exactly the
// configured frame size.
func (s *Segmenter) ProcessFrame(frame []float32) (*Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(frame) != s.cfg.FrameSize {
		return nil, fmt.Errorf("expected %d samples, got %d", s.cfg.FrameSize, len(frame))
	}

	s.clock += s.frameDuration
	now := s.clock
	s.framesProcessed++

	confidence, err := s.scorer.Score(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to score frame: %w", err)
	}

	isSpeech := confidence >= s.cfg.Threshold
	if isSpeech {
		s.speechFrames++
	}

	switch s.state {
	case StateIdle:
		s.ring.Push(frame)

		if isSpeech {
			// Speech onset: the utterance starts as the lookback followed by
			// the onset frame.
			s.state = StateSpeaking
			s.frames = append(s.ring.Drain(), frame)
			s.speechStart = now - s.frameDuration
			s.lastSpeech = now
			s.inSilence = false
			s.confidenceSum = confidence
			s.confidenceCount = 1
		}

	case StateSpeaking:
		s.frames = append(s.frames, frame)
		s.confidenceSum += confidence
		s.confidenceCount++

		if isSpeech {
			// Speech continues or resumes; restart the silence timer.
			s.lastSpeech = now
			s.inSilence = false
			break
		}

		if !s.inSilence {
			s.inSilence = true
			s.silenceStart = now
			break
		}

		if now-s.silenceStart >= s.cfg.SilenceTimeout {
			seg := s.finalize()
			s.reset()
			return seg, nil
		}
	}

	return nil, nil
}

// Flush finalizes any in-progress utterance, subject to the same
// minimum-duration filter, and returns the segmenter to idle. Used at
// shutdown so a half-spoken utterance is still accounted for.
func (s *Segmenter) Flush() *Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateSpeaking {
		return nil
	}

	seg := s.finalize()
	s.reset()
	return seg
}

// finalize applies the minimum-duration filter and builds the segment.
// The filtered duration runs from onset to the current stream time,
// trailing silence included. Caller holds s.mu.
func (s *Segmenter) finalize() *Segment {
	if s.clock-s.speechStart < s.cfg.MinSpeechDuration {
		s.segmentsDiscarded++
		return nil
	}
	speechDuration := s.lastSpeech - s.speechStart

	samples := make([]float32, 0, len(s.frames)*s.cfg.FrameSize)
	for _, f := range s.frames {
		samples = append(samples, f...)
	}

	avgConfidence := float32(0)
	if s.confidenceCount > 0 {
		avgConfidence = s.confidenceSum / float32(s.confidenceCount)
	}

	s.segmentsFinalized++

	return &Segment{
		ID:             uuid.NewString(),
		Samples:        samples,
		SampleRate:     s.cfg.SampleRate,
		FrameCount:     len(s.frames),
		Duration:       time.Duration(len(samples)) * time.Second / time.Duration(s.cfg.SampleRate),
		SpeechDuration: speechDuration,
		AvgConfidence:  avgConfidence,
	}
}

// reset returns the segmenter to idle and clears the scorer's recurrent
// state so it cannot leak into the next utterance. Caller holds s.mu.
func (s *Segmenter) reset() {
	s.state = StateIdle
	s.frames = nil
	s.speechStart = 0
	s.lastSpeech = 0
	s.silenceStart = 0
	s.inSilence = false
	s.confidenceSum = 0
	s.confidenceCount = 0
	s.scorer.Reset()
}

// State returns the current segmentation state.
func (s *Segmenter) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FrameDuration returns the stream-time length of one analysis frame.
func (s *Segmenter) FrameDuration() time.Duration {
	return s.frameDuration
}

// FrameSize returns the number of samples per analysis frame.
func (s *Segmenter) FrameSize() int {
	return s.cfg.FrameSize
}

// Stats returns current segmenter statistics.
func (s *Segmenter) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stateStr := "idle"
	if s.state == StateSpeaking {
		stateStr = "speaking"
	}

	return Stats{
		State:             stateStr,
		FramesProcessed:   s.framesProcessed,
		SpeechFrames:      s.speechFrames,
		SegmentsFinalized: s.segmentsFinalized,
		SegmentsDiscarded: s.segmentsDiscarded,
	}
}
