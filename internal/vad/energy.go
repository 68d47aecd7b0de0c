package vad

import (
	"fmt"
	"math"
)

// referenceRMS is the RMS level mapped to full confidence. Normal speech on
// a consumer microphone sits around 0.05-0.2 RMS in float32 terms.
const referenceRMS = 0.1

// EnergyScorer is a pure-Go fallback scorer based on RMS energy with light
// exponential smoothing. It needs no model files but is far less robust to
// background noise than the Silero scorer.
type EnergyScorer struct {
	frameSize int
	smoothing float32

	last   float32
	primed bool
}

// NewEnergyScorer creates an energy scorer for frames of frameSize samples.
func NewEnergyScorer(frameSize int) (*EnergyScorer, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", frameSize)
	}

	return &EnergyScorer{
		frameSize: frameSize,
		smoothing: 0.3,
	}, nil
}

// Score returns a confidence derived from the frame's RMS energy, smoothed
// against the previous score so single noisy frames do not flip the result.
func (e *EnergyScorer) Score(frame []float32) (float32, error) {
	if len(frame) != e.frameSize {
		return 0, fmt.Errorf("expected %d samples, got %d", e.frameSize, len(frame))
	}

	var energy float64
	for _, s := range frame {
		energy += float64(s) * float64(s)
	}
	rms := math.Sqrt(energy / float64(len(frame)))

	confidence := float32(rms / referenceRMS)
	if confidence > 1 {
		confidence = 1
	}

	if e.primed {
		confidence = e.smoothing*confidence + (1-e.smoothing)*e.last
	}
	e.last = confidence
	e.primed = true

	return confidence, nil
}

// Reset clears the smoothing state.
func (e *EnergyScorer) Reset() {
	e.last = 0
	e.primed = false
}

// Close is a no-op; the energy scorer holds no resources.
func (e *EnergyScorer) Close() error {
	return nil
}
