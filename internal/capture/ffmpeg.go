package capture

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"runtime"
	"sync"
)

// FFmpegSource captures microphone audio by running ffmpeg and reading
// raw little-endian float32 PCM from its stdout. It avoids a cgo audio
// dependency at the cost of requiring ffmpeg on the PATH.
type FFmpegSource struct {
	device     string
	sampleRate int
	blockSize  int
	logger     *slog.Logger

	cmd    *exec.Cmd
	stdout io.ReadCloser

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// NewFFmpegSource creates a capture source for the given input device.
// An empty device picks the platform default. blockSize is the number of
// samples delivered per chunk.
func NewFFmpegSource(device string, sampleRate, blockSize int, logger *slog.Logger) (*FFmpegSource, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", blockSize)
	}
	if logger == nil {
		logger = slog.Default()
	}

	if device == "" {
		switch runtime.GOOS {
		case "darwin":
			device = ":0" // default avfoundation audio input
		default:
			device = "default"
		}
	}

	return &FFmpegSource{
		device:     device,
		sampleRate: sampleRate,
		blockSize:  blockSize,
		logger:     logger,
	}, nil
}

func (f *FFmpegSource) args() []string {
	var inputFormat string
	switch runtime.GOOS {
	case "darwin":
		inputFormat = "avfoundation"
	default:
		inputFormat = "alsa"
	}

	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", inputFormat,
		"-i", f.device,
		"-ar", fmt.Sprintf("%d", f.sampleRate),
		"-ac", "1",
		"-f", "f32le",
		"-",
	}
}

// Start launches ffmpeg and begins delivering chunks to submit from a
// background goroutine. It returns an error if ffmpeg cannot be started.
func (f *FFmpegSource) Start(submit func(samples []float32)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.started {
		return fmt.Errorf("capture already started")
	}

	cmd := exec.Command("ffmpeg", f.args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	f.cmd = cmd
	f.stdout = stdout
	f.started = true
	f.done = make(chan struct{})

	f.logger.Info("Audio capture started",
		slog.String("device", f.device),
		slog.Int("sample_rate", f.sampleRate),
		slog.Int("block_size", f.blockSize),
	)

	go f.readLoop(submit)

	return nil
}

func (f *FFmpegSource) readLoop(submit func(samples []float32)) {
	defer close(f.done)

	buf := make([]byte, f.blockSize*4)
	for {
		if _, err := io.ReadFull(f.stdout, buf); err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				f.logger.Error("Audio capture read failed", slog.String("error", err.Error()))
			}
			return
		}

		samples := make([]float32, f.blockSize)
		for i := range samples {
			bits := binary.LittleEndian.Uint32(buf[i*4:])
			samples[i] = math.Float32frombits(bits)
		}

		submit(samples)
	}
}

// Stop terminates ffmpeg and waits for the read loop to drain.
func (f *FFmpegSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.started {
		return nil
	}

	// Killing the process closes stdout, which unblocks the read loop.
	if err := f.cmd.Process.Kill(); err != nil {
		f.logger.Warn("Failed to kill capture process", slog.String("error", err.Error()))
	}
	_ = f.cmd.Wait()

	<-f.done
	f.started = false

	f.logger.Info("Audio capture stopped")
	return nil
}
