package audio

import "fmt"

// Ring is a bounded buffer of the most recent analysis frames, used as the
// pre-speech lookback while the segmenter is idle. When full, pushing a new
// frame evicts the oldest one.
//
// Ring is not safe for concurrent use; it is owned by the segmenter.
type Ring struct {
	frames [][]float32
	head   int // index of the oldest frame
	count  int
}

// NewRing creates a ring holding at most capacity frames.
func NewRing(capacity int) (*Ring, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("ring capacity must be at least 1, got %d", capacity)
	}

	return &Ring{
		frames: make([][]float32, capacity),
	}, nil
}

// Push appends a frame, evicting the oldest frame if the ring is full.
// The ring stores the slice as-is; callers must not mutate pushed frames.
func (r *Ring) Push(frame []float32) {
	tail := (r.head + r.count) % len(r.frames)
	r.frames[tail] = frame

	if r.count == len(r.frames) {
		r.head = (r.head + 1) % len(r.frames)
	} else {
		r.count++
	}
}

// Drain returns the buffered frames oldest-first and empties the ring.
func (r *Ring) Drain() [][]float32 {
	out := make([][]float32, 0, r.count)
	for i := 0; i < r.count; i++ {
		idx := (r.head + i) % len(r.frames)
		out = append(out, r.frames[idx])
		r.frames[idx] = nil
	}

	r.head = 0
	r.count = 0
	return out
}

// Len returns the number of frames currently buffered.
func (r *Ring) Len() int {
	return r.count
}

// Cap returns the maximum number of frames the ring can hold.
func (r *Ring) Cap() int {
	return len(r.frames)
}
