// Package pipeline connects audio capture to segmentation, transcription,
// and clipboard delivery through bounded queues.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/casperarmani/voicedictate/internal/audio"
	"github.com/casperarmani/voicedictate/internal/metrics"
	"github.com/casperarmani/voicedictate/internal/segment"
	"github.com/casperarmani/voicedictate/internal/transcription"
)

// Transcriber converts a WAV file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Deliverer hands a finished transcript to the user.
type Deliverer interface {
	Deliver(text string) error
}

// Store persists segment audio and prunes old recordings.
type Store interface {
	Persist(samples []float32) (string, error)
	Cleanup(keepLast int) (int, error)
}

// Config contains pipeline configuration
type Config struct {
	ChunkQueueSize   int
	SegmentQueueSize int
	CleanupInterval  int // run storage cleanup every N transcribed segments
	KeepRecordings   int
	JoinTimeout      time.Duration
}

// Deps bundles the collaborators the pipeline drives.
type Deps struct {
	Segmenter   *segment.Segmenter
	Transcriber Transcriber
	Clipboard   Deliverer
	Storage     Store
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Stats represents pipeline statistics
type Stats struct {
	ChunksSubmitted     uint64        `json:"chunks_submitted"`
	ChunksDropped       uint64        `json:"chunks_dropped"`
	SegmentsQueued      uint64        `json:"segments_queued"`
	SegmentsDropped     uint64        `json:"segments_dropped"`
	SegmentsTranscribed uint64        `json:"segments_transcribed"`
	EmptyTranscripts    uint64        `json:"empty_transcripts"`
	DeliveryFailures    uint64        `json:"delivery_failures"`
	Paused              bool          `json:"paused"`
	Segmenter           segment.Stats `json:"segmenter"`
}

// Pipeline runs two stages behind bounded queues: a segmentation loop that
// turns raw capture chunks into utterance segments, and a worker that
// persists, transcribes, and delivers them. Submit never blocks; overload
// sheds audio at the capture edge rather than stalling the device callback.
type Pipeline struct {
	cfg  Config
	deps Deps

	aligner *audio.FrameAligner

	// Only touched by the segmentation goroutine.
	speechFramesSeen uint64

	chunks   chan []float32
	segments chan *segment.Segment

	shutdown atomic.Bool
	paused   atomic.Bool
	stopOnce sync.Once

	segmentationDone chan struct{}
	workerDone       chan struct{}

	// Statistics
	chunksSubmitted     atomic.Uint64
	chunksDropped       atomic.Uint64
	segmentsQueued      atomic.Uint64
	segmentsDropped     atomic.Uint64
	segmentsTranscribed atomic.Uint64
	emptyTranscripts    atomic.Uint64
	deliveryFailures    atomic.Uint64
}

// New creates a pipeline. Start must be called before Submit delivers audio
// anywhere.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if deps.Segmenter == nil {
		return nil, fmt.Errorf("segmenter cannot be nil")
	}
	if deps.Transcriber == nil {
		return nil, fmt.Errorf("transcriber cannot be nil")
	}
	if deps.Clipboard == nil {
		return nil, fmt.Errorf("clipboard cannot be nil")
	}
	if deps.Storage == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		return nil, fmt.Errorf("metrics cannot be nil")
	}

	if cfg.ChunkQueueSize <= 0 {
		cfg.ChunkQueueSize = 200
	}
	if cfg.SegmentQueueSize <= 0 {
		cfg.SegmentQueueSize = 10
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5
	}
	if cfg.KeepRecordings <= 0 {
		cfg.KeepRecordings = 10
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 3 * time.Second
	}

	aligner, err := audio.NewFrameAligner(deps.Segmenter.FrameSize())
	if err != nil {
		return nil, fmt.Errorf("failed to create frame aligner: %w", err)
	}

	return &Pipeline{
		cfg:              cfg,
		deps:             deps,
		aligner:          aligner,
		chunks:           make(chan []float32, cfg.ChunkQueueSize),
		segments:         make(chan *segment.Segment, cfg.SegmentQueueSize),
		segmentationDone: make(chan struct{}),
		workerDone:       make(chan struct{}),
	}, nil
}

// Start launches the segmentation and transcription goroutines.
func (p *Pipeline) Start() {
	go p.segmentationLoop()
	go p.workerLoop()

	p.deps.Logger.Info("Pipeline started",
		slog.Int("chunk_queue_size", p.cfg.ChunkQueueSize),
		slog.Int("segment_queue_size", p.cfg.SegmentQueueSize),
	)
}

// Submit enqueues a chunk of capture samples. It never blocks: when the
// queue is full or the pipeline is paused or shutting down, the chunk is
// dropped and only a counter records the loss. This runs on the capture
// path, so no logging or allocation beyond the counter bump.
func (p *Pipeline) Submit(samples []float32) {
	if p.shutdown.Load() || p.paused.Load() || len(samples) == 0 {
		return
	}

	select {
	case p.chunks <- samples:
		p.chunksSubmitted.Add(1)
		p.deps.Metrics.RecordChunkSubmitted()
	default:
		p.chunksDropped.Add(1)
		p.deps.Metrics.RecordChunkDropped()
	}
}

// Pause stops accepting new audio; queued work continues to drain.
func (p *Pipeline) Pause() {
	p.paused.Store(true)
	p.deps.Logger.Info("Pipeline paused")
}

// Resume re-enables audio intake.
func (p *Pipeline) Resume() {
	p.paused.Store(false)
	p.deps.Logger.Info("Pipeline resumed")
}

// Paused reports whether intake is currently paused.
func (p *Pipeline) Paused() bool {
	return p.paused.Load()
}

// segmentationLoop is the sole consumer of the chunk queue and the sole
// producer of the segment queue. A nil chunk is the shutdown sentinel.
func (p *Pipeline) segmentationLoop() {
	defer close(p.segmentationDone)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case chunk := <-p.chunks:
			if chunk == nil {
				p.finishSegmentation()
				return
			}
			p.processChunk(chunk)
			p.deps.Metrics.SetChunkQueueSize(len(p.chunks))

		case <-ticker.C:
			if p.shutdown.Load() {
				// Sentinel may have been lost to a full queue; drain
				// whatever is left and stop.
				p.drainChunks()
				p.finishSegmentation()
				return
			}
		}
	}
}

func (p *Pipeline) drainChunks() {
	for {
		select {
		case chunk := <-p.chunks:
			if chunk != nil {
				p.processChunk(chunk)
			}
		default:
			return
		}
	}
}

func (p *Pipeline) processChunk(chunk []float32) {
	for _, frame := range p.aligner.Push(chunk) {
		start := time.Now()
		seg, err := p.deps.Segmenter.ProcessFrame(frame)
		p.deps.Metrics.RecordFrame(time.Since(start).Seconds())

		if err != nil {
			p.deps.Metrics.RecordVADError()
			p.deps.Logger.Warn("Frame scoring failed",
				slog.String("error", err.Error()),
			)
			continue
		}

		if seg != nil {
			p.enqueueSegment(seg)
		}
	}

	// Speech frames are counted inside the segmenter; mirror the delta
	// into Prometheus.
	st := p.deps.Segmenter.Stats()
	if st.SpeechFrames > p.speechFramesSeen {
		p.deps.Metrics.AddSpeechFrames(st.SpeechFrames - p.speechFramesSeen)
		p.speechFramesSeen = st.SpeechFrames
	}
}

func (p *Pipeline) enqueueSegment(seg *segment.Segment) {
	p.deps.Metrics.RecordSegmentFinalized(seg.Duration.Seconds(), float64(seg.AvgConfidence))

	select {
	case p.segments <- seg:
		p.segmentsQueued.Add(1)
		p.deps.Metrics.SetSegmentQueueSize(len(p.segments))
		p.deps.Logger.Info("Segment queued for transcription",
			slog.String("segment_id", seg.ID),
			slog.Float64("duration", seg.Duration.Seconds()),
			slog.Float64("speech_duration", seg.SpeechDuration.Seconds()),
			slog.Float64("confidence", float64(seg.AvgConfidence)),
			slog.Int("samples", len(seg.Samples)),
		)
	default:
		p.segmentsDropped.Add(1)
		p.deps.Metrics.RecordSegmentDropped()
		p.deps.Logger.Warn("Segment queue full, dropping segment",
			slog.String("segment_id", seg.ID),
			slog.Float64("duration", seg.Duration.Seconds()),
		)
	}
}

// finishSegmentation flushes any in-progress utterance and closes out the
// segment queue with a sentinel. A segment cut short by shutdown is logged
// but not transcribed; no new work starts once the stop signal is seen.
func (p *Pipeline) finishSegmentation() {
	if seg := p.deps.Segmenter.Flush(); seg != nil {
		p.deps.Logger.Info("Discarding in-progress segment at shutdown",
			slog.String("segment_id", seg.ID),
			slog.Float64("duration", seg.Duration.Seconds()),
		)
	}

	select {
	case p.segments <- nil:
	default:
		// Worker also watches the shutdown flag, so a full queue here is
		// not fatal.
	}
}

// workerLoop consumes finalized segments one at a time: persist to WAV,
// transcribe, deliver. A nil segment is the shutdown sentinel.
func (p *Pipeline) workerLoop() {
	defer close(p.workerDone)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	processed := 0

	for {
		if p.shutdown.Load() {
			return
		}

		select {
		case seg := <-p.segments:
			if seg == nil {
				return
			}
			p.deps.Metrics.SetSegmentQueueSize(len(p.segments))
			if p.handleSegment(seg) {
				processed++
				if processed%p.cfg.CleanupInterval == 0 {
					p.runCleanup()
				}
			}

		case <-ticker.C:
		}
	}
}

// handleSegment runs one segment through persist/transcribe/deliver.
// Returns true when a transcript was produced, empty or not. Errors are
// logged and the worker moves on; one bad segment never stops dictation.
func (p *Pipeline) handleSegment(seg *segment.Segment) bool {
	path, err := p.deps.Storage.Persist(seg.Samples)
	if err != nil {
		p.deps.Logger.Error("Failed to persist segment audio",
			slog.String("segment_id", seg.ID),
			slog.String("error", err.Error()),
		)
		return false
	}

	p.deps.Metrics.RecordTranscriptionRequest()

	startTime := time.Now()
	text, err := p.deps.Transcriber.Transcribe(context.Background(), path)
	duration := time.Since(startTime)

	if err != nil {
		p.deps.Metrics.RecordTranscriptionFailure(duration.Seconds())
		p.deps.Logger.Error("Transcription failed",
			slog.String("segment_id", seg.ID),
			slog.String("error", err.Error()),
			slog.Bool("retryable", transcription.Retryable(err)),
			slog.Float64("request_duration", duration.Seconds()),
		)
		return false
	}

	p.deps.Metrics.RecordTranscriptionSuccess(duration.Seconds())
	p.segmentsTranscribed.Add(1)

	if text == "" {
		p.emptyTranscripts.Add(1)
		p.deps.Metrics.RecordTranscriptionEmpty()
		p.deps.Logger.Info("Transcription returned no text",
			slog.String("segment_id", seg.ID),
			slog.Float64("duration", seg.Duration.Seconds()),
		)
		return true
	}

	// Trailing space so consecutive utterances paste as separate words.
	if err := p.deps.Clipboard.Deliver(text + " "); err != nil {
		p.deliveryFailures.Add(1)
		p.deps.Metrics.RecordDeliveryFailure()
		p.deps.Logger.Error("Clipboard delivery failed",
			slog.String("segment_id", seg.ID),
			slog.String("error", err.Error()),
		)
		return true
	}

	p.deps.Metrics.RecordDeliverySuccess()
	p.deps.Logger.Info("Transcript delivered",
		slog.String("segment_id", seg.ID),
		slog.String("text", text),
		slog.Float64("request_duration", duration.Seconds()),
	)

	return true
}

func (p *Pipeline) runCleanup() {
	removed, err := p.deps.Storage.Cleanup(p.cfg.KeepRecordings)
	if err != nil {
		p.deps.Logger.Warn("Recording cleanup failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if removed > 0 {
		p.deps.Logger.Debug("Old recordings removed",
			slog.Int("removed", removed),
		)
	}
}

// Shutdown stops both stages and waits for them to finish, bounded by the
// configured join timeout per stage. Safe to call more than once.
func (p *Pipeline) Shutdown() error {
	var err error

	p.stopOnce.Do(func() {
		p.deps.Logger.Info("Pipeline shutting down...")
		p.shutdown.Store(true)

		// Wake the segmentation loop; a full queue is fine, the ticker
		// path notices the flag.
		select {
		case p.chunks <- nil:
		default:
		}

		if joinErr := waitOrTimeout(p.segmentationDone, p.cfg.JoinTimeout); joinErr != nil {
			err = fmt.Errorf("segmentation loop did not stop: %w", joinErr)
			return
		}

		if joinErr := waitOrTimeout(p.workerDone, p.cfg.JoinTimeout); joinErr != nil {
			err = fmt.Errorf("transcription worker did not stop: %w", joinErr)
			return
		}

		p.deps.Logger.Info("Pipeline stopped",
			slog.Uint64("chunks_submitted", p.chunksSubmitted.Load()),
			slog.Uint64("chunks_dropped", p.chunksDropped.Load()),
			slog.Uint64("segments_transcribed", p.segmentsTranscribed.Load()),
		)
	})

	return err
}

func waitOrTimeout(done <-chan struct{}, timeout time.Duration) error {
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timed out after %v", timeout)
	}
}

// Stats returns a snapshot of pipeline statistics.
func (p *Pipeline) Stats() Stats {
	return Stats{
		ChunksSubmitted:     p.chunksSubmitted.Load(),
		ChunksDropped:       p.chunksDropped.Load(),
		SegmentsQueued:      p.segmentsQueued.Load(),
		SegmentsDropped:     p.segmentsDropped.Load(),
		SegmentsTranscribed: p.segmentsTranscribed.Load(),
		EmptyTranscripts:    p.emptyTranscripts.Load(),
		DeliveryFailures:    p.deliveryFailures.Load(),
		Paused:              p.paused.Load(),
		Segmenter:           p.deps.Segmenter.Stats(),
	}
}
