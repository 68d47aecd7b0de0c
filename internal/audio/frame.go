package audio

import "fmt"

// FrameAligner re-buffers arbitrarily sized capture chunks into fixed-size
// analysis frames. Samples that do not yet form a complete frame are retained
// as a residual for the next push; no samples are lost, duplicated, or
// reordered across chunk boundaries.
//
// FrameAligner is not safe for concurrent use. It is owned by the single
// segmentation goroutine.
type FrameAligner struct {
	frameSize int
	residual  []float32
}

// NewFrameAligner creates an aligner producing frames of frameSize samples.
func NewFrameAligner(frameSize int) (*FrameAligner, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", frameSize)
	}

	return &FrameAligner{
		frameSize: frameSize,
		residual:  make([]float32, 0, frameSize*2),
	}, nil
}

// Push appends a capture chunk and returns every complete frame now
// available, oldest first. Returned frames are fresh copies and remain valid
// after subsequent pushes. A nil or empty chunk yields no frames.
func (a *FrameAligner) Push(chunk []float32) [][]float32 {
	a.residual = append(a.residual, chunk...)

	if len(a.residual) < a.frameSize {
		return nil
	}

	frames := make([][]float32, 0, len(a.residual)/a.frameSize)
	offset := 0
	for len(a.residual)-offset >= a.frameSize {
		frame := make([]float32, a.frameSize)
		copy(frame, a.residual[offset:offset+a.frameSize])
		frames = append(frames, frame)
		offset += a.frameSize
	}

	// Compact the remainder to the front so the backing array never grows
	// beyond roughly one chunk plus one frame.
	remaining := copy(a.residual, a.residual[offset:])
	a.residual = a.residual[:remaining]

	return frames
}

// Residual returns a copy of the samples held back waiting for a full frame.
func (a *FrameAligner) Residual() []float32 {
	out := make([]float32, len(a.residual))
	copy(out, a.residual)
	return out
}

// FrameSize returns the configured frame size in samples.
func (a *FrameAligner) FrameSize() int {
	return a.frameSize
}

// Reset discards the residual.
func (a *FrameAligner) Reset() {
	a.residual = a.residual[:0]
}
