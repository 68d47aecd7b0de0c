package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/casperarmani/voicedictate/internal/metrics"
	"github.com/casperarmani/voicedictate/internal/segment"
)

// stubScorer flags the first speechFrames frames as speech, the rest as
// silence.
type stubScorer struct {
	speechFrames int
	seen         int
}

func (s *stubScorer) Score(frame []float32) (float32, error) {
	s.seen++
	if s.seen <= s.speechFrames {
		return 0.9, nil
	}
	return 0.0, nil
}

func (s *stubScorer) Reset()       {}
func (s *stubScorer) Close() error { return nil }

type fakeTranscriber struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.text, f.err
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeClipboard struct {
	mu        sync.Mutex
	delivered []string
}

func (f *fakeClipboard) Deliver(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, text)
	return nil
}

func (f *fakeClipboard) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.delivered))
	copy(out, f.delivered)
	return out
}

type fakeStore struct {
	mu       sync.Mutex
	persists int
	cleanups int
}

func (f *fakeStore) Persist(samples []float32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persists++
	return fmt.Sprintf("/tmp/fake_segment_%d.wav", f.persists), nil
}

func (f *fakeStore) Cleanup(keepLast int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanups++
	return 0, nil
}

func (f *fakeStore) persistCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.persists
}

func (f *fakeStore) cleanupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleanups
}

// newTestSegmenter uses a short silence timeout so a handful of frames
// completes an utterance.
func newTestSegmenter(t *testing.T, scorer *stubScorer) *segment.Segmenter {
	t.Helper()
	s, err := segment.NewSegmenter(segment.Config{
		Threshold:         0.5,
		SilenceTimeout:    100 * time.Millisecond,
		MinSpeechDuration: 100 * time.Millisecond,
		PreSpeechBuffer:   100 * time.Millisecond,
		FrameSize:         512,
		SampleRate:        16000,
	}, scorer)
	if err != nil {
		t.Fatalf("NewSegmenter failed: %v", err)
	}
	return s
}

func newTestPipeline(t *testing.T, cfg Config, scorer *stubScorer,
	transcriber *fakeTranscriber, clipboard *fakeClipboard, store *fakeStore) *Pipeline {
	t.Helper()

	p, err := New(cfg, Deps{
		Segmenter:   newTestSegmenter(t, scorer),
		Transcriber: transcriber,
		Clipboard:   clipboard,
		Storage:     store,
		Metrics:     metrics.NewMetrics(prometheus.NewRegistry()),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

// submitUtterance pushes enough frames for one utterance: speech followed
// by silence past the timeout.
func submitUtterance(p *Pipeline, speechFrames, silenceFrames int) {
	for i := 0; i < speechFrames+silenceFrames; i++ {
		p.Submit(make([]float32, 512))
	}
}

func TestNewValidation(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	seg := newTestSegmenter(t, &stubScorer{})

	deps := Deps{
		Segmenter:   seg,
		Transcriber: &fakeTranscriber{},
		Clipboard:   &fakeClipboard{},
		Storage:     &fakeStore{},
		Metrics:     m,
	}

	tests := []struct {
		name   string
		mutate func(*Deps)
	}{
		{"nil segmenter", func(d *Deps) { d.Segmenter = nil }},
		{"nil transcriber", func(d *Deps) { d.Transcriber = nil }},
		{"nil clipboard", func(d *Deps) { d.Clipboard = nil }},
		{"nil storage", func(d *Deps) { d.Storage = nil }},
		{"nil metrics", func(d *Deps) { d.Metrics = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := deps
			tt.mutate(&d)
			if _, err := New(Config{}, d); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	scorer := &stubScorer{speechFrames: 10}
	transcriber := &fakeTranscriber{text: "hello world"}
	clipboard := &fakeClipboard{}
	store := &fakeStore{}

	p := newTestPipeline(t, Config{}, scorer, transcriber, clipboard, store)
	p.Start()
	defer p.Shutdown()

	// 10 speech frames, then plenty of silence to trip the 100ms timeout.
	submitUtterance(p, 10, 20)

	waitFor(t, 2*time.Second, func() bool {
		return len(clipboard.texts()) == 1
	}, "transcript was never delivered")

	texts := clipboard.texts()
	if texts[0] != "hello world " {
		t.Errorf("Expected 'hello world ' with trailing space, got %q", texts[0])
	}

	if store.persistCount() != 1 {
		t.Errorf("Expected 1 persisted recording, got %d", store.persistCount())
	}

	stats := p.Stats()
	if stats.SegmentsTranscribed != 1 {
		t.Errorf("Expected 1 transcribed segment, got %d", stats.SegmentsTranscribed)
	}
	if stats.ChunksDropped != 0 {
		t.Errorf("Expected no dropped chunks, got %d", stats.ChunksDropped)
	}
}

func TestPipelineEmptyTranscriptSkipsDelivery(t *testing.T) {
	scorer := &stubScorer{speechFrames: 10}
	transcriber := &fakeTranscriber{text: ""}
	clipboard := &fakeClipboard{}

	p := newTestPipeline(t, Config{}, scorer, transcriber, clipboard, &fakeStore{})
	p.Start()
	defer p.Shutdown()

	submitUtterance(p, 10, 20)

	waitFor(t, 2*time.Second, func() bool {
		return p.Stats().EmptyTranscripts == 1
	}, "empty transcript was never recorded")

	if len(clipboard.texts()) != 0 {
		t.Errorf("Expected no clipboard delivery for empty transcript, got %d", len(clipboard.texts()))
	}
}

func TestPipelineTranscriptionErrorContinues(t *testing.T) {
	scorer := &stubScorer{speechFrames: 10}
	transcriber := &fakeTranscriber{err: fmt.Errorf("api unreachable")}
	clipboard := &fakeClipboard{}

	p := newTestPipeline(t, Config{}, scorer, transcriber, clipboard, &fakeStore{})
	p.Start()
	defer p.Shutdown()

	submitUtterance(p, 10, 20)

	waitFor(t, 2*time.Second, func() bool {
		return transcriber.callCount() == 1
	}, "transcription was never attempted")

	if len(clipboard.texts()) != 0 {
		t.Errorf("Expected no delivery after failed transcription, got %d", len(clipboard.texts()))
	}

	// Shutdown still completes cleanly after the failure.
	if err := p.Shutdown(); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

// A failed transcription is logged with its retryable classification so
// operators can tell transient API errors from permanent ones.
func TestTranscriptionFailureLogsRetryable(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	scorer := &stubScorer{speechFrames: 10}
	transcriber := &fakeTranscriber{err: fmt.Errorf("request timed out: %w", context.DeadlineExceeded)}

	p, err := New(Config{}, Deps{
		Segmenter:   newTestSegmenter(t, scorer),
		Transcriber: transcriber,
		Clipboard:   &fakeClipboard{},
		Storage:     &fakeStore{},
		Logger:      logger,
		Metrics:     metrics.NewMetrics(prometheus.NewRegistry()),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	p.Start()

	submitUtterance(p, 10, 20)

	waitFor(t, 2*time.Second, func() bool {
		return transcriber.callCount() == 1
	}, "transcription was never attempted")

	if err := p.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if !strings.Contains(buf.String(), "retryable=true") {
		t.Errorf("Expected failure log to carry retryable=true, log output:\n%s", buf.String())
	}
}

func TestSubmitNeverBlocks(t *testing.T) {
	scorer := &stubScorer{}
	p := newTestPipeline(t, Config{ChunkQueueSize: 2}, scorer, &fakeTranscriber{}, &fakeClipboard{}, &fakeStore{})

	// Pipeline is not started, so nothing drains the queue. A flood of
	// submissions must return promptly and shed the overflow.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			p.Submit(make([]float32, 512))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a full queue")
	}

	stats := p.Stats()
	if stats.ChunksSubmitted != 2 {
		t.Errorf("Expected 2 accepted chunks, got %d", stats.ChunksSubmitted)
	}
	if stats.ChunksDropped != 998 {
		t.Errorf("Expected 998 dropped chunks, got %d", stats.ChunksDropped)
	}
}

func TestSubmitIgnoresEmptyChunk(t *testing.T) {
	p := newTestPipeline(t, Config{}, &stubScorer{}, &fakeTranscriber{}, &fakeClipboard{}, &fakeStore{})

	p.Submit(nil)
	p.Submit([]float32{})

	if stats := p.Stats(); stats.ChunksSubmitted != 0 {
		t.Errorf("Expected empty chunks to be ignored, got %d submitted", stats.ChunksSubmitted)
	}
}

func TestPauseStopsIntake(t *testing.T) {
	p := newTestPipeline(t, Config{}, &stubScorer{}, &fakeTranscriber{}, &fakeClipboard{}, &fakeStore{})
	p.Start()
	defer p.Shutdown()

	p.Pause()
	if !p.Paused() {
		t.Error("Expected pipeline to report paused")
	}

	p.Submit(make([]float32, 512))
	if stats := p.Stats(); stats.ChunksSubmitted != 0 {
		t.Errorf("Expected no chunks accepted while paused, got %d", stats.ChunksSubmitted)
	}

	p.Resume()
	if p.Paused() {
		t.Error("Expected pipeline to report resumed")
	}

	p.Submit(make([]float32, 512))
	waitFor(t, time.Second, func() bool {
		return p.Stats().ChunksSubmitted == 1
	}, "chunk was not accepted after resume")
}

func TestShutdownCompletes(t *testing.T) {
	scorer := &stubScorer{speechFrames: 10}
	p := newTestPipeline(t, Config{}, scorer, &fakeTranscriber{text: "ok"}, &fakeClipboard{}, &fakeStore{})
	p.Start()

	submitUtterance(p, 10, 20)

	if err := p.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	// Second call is a no-op.
	if err := p.Shutdown(); err != nil {
		t.Errorf("Repeated shutdown failed: %v", err)
	}

	// Submissions after shutdown are silently ignored.
	p.Submit(make([]float32, 512))
}

func TestShutdownFlushesInProgressUtterance(t *testing.T) {
	// Only speech frames: the utterance is still open when shutdown hits.
	scorer := &stubScorer{speechFrames: 1000}
	clipboard := &fakeClipboard{}

	p := newTestPipeline(t, Config{}, scorer, &fakeTranscriber{text: "partial"}, clipboard, &fakeStore{})
	p.Start()

	for i := 0; i < 20; i++ {
		p.Submit(make([]float32, 512))
	}

	waitFor(t, time.Second, func() bool {
		return p.Stats().Segmenter.State == "speaking"
	}, "segmenter never entered speaking state")

	if err := p.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	// The flushed utterance is accounted for but not transcribed.
	stats := p.Stats()
	if stats.Segmenter.State != "idle" {
		t.Errorf("Expected idle segmenter after shutdown, got %s", stats.Segmenter.State)
	}
	if len(clipboard.texts()) != 0 {
		t.Errorf("Expected no delivery for the flushed utterance, got %d", len(clipboard.texts()))
	}
}

// cycleScorer alternates bursts of speech and silence so one test can
// drive several utterances through the pipeline.
type cycleScorer struct {
	speech int
	period int
	seen   int
}

func (c *cycleScorer) Score(frame []float32) (float32, error) {
	pos := c.seen % c.period
	c.seen++
	if pos < c.speech {
		return 0.9, nil
	}
	return 0.0, nil
}

func (c *cycleScorer) Reset()       {}
func (c *cycleScorer) Close() error { return nil }

func TestCleanupRunsPeriodically(t *testing.T) {
	store := &fakeStore{}

	// 10 speech frames then 10 silence per cycle; each cycle yields one
	// segment, and cleanup fires every second segment.
	scorer := &cycleScorer{speech: 10, period: 20}
	seg, err := segment.NewSegmenter(segment.Config{
		Threshold:         0.5,
		SilenceTimeout:    100 * time.Millisecond,
		MinSpeechDuration: 100 * time.Millisecond,
		PreSpeechBuffer:   100 * time.Millisecond,
		FrameSize:         512,
		SampleRate:        16000,
	}, scorer)
	if err != nil {
		t.Fatalf("NewSegmenter failed: %v", err)
	}

	p, err := New(Config{CleanupInterval: 2}, Deps{
		Segmenter:   seg,
		Transcriber: &fakeTranscriber{text: "x"},
		Clipboard:   &fakeClipboard{},
		Storage:     store,
		Metrics:     metrics.NewMetrics(prometheus.NewRegistry()),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	p.Start()
	defer p.Shutdown()

	for i := 0; i < 40; i++ {
		p.Submit(make([]float32, 512))
	}

	waitFor(t, 2*time.Second, func() bool {
		return p.Stats().SegmentsTranscribed == 2
	}, "both utterances were never transcribed")

	if store.cleanupCount() != 1 {
		t.Errorf("Expected 1 cleanup after 2 segments, got %d", store.cleanupCount())
	}
}
