package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/casperarmani/voicedictate/internal/audio"
)

// Storage writes segment audio to WAV files in a spool directory and
// prunes old recordings so the directory stays bounded.
type Storage struct {
	dir        string
	sampleRate int
}

// NewStorage creates the spool directory if needed. An empty dir defaults
// to a voicedictate folder under the system temp directory.
func NewStorage(dir string, sampleRate int) (*Storage, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "voicedictate")
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}

	return &Storage{
		dir:        dir,
		sampleRate: sampleRate,
	}, nil
}

// Dir returns the spool directory path.
func (s *Storage) Dir() string {
	return s.dir
}

// Persist encodes samples as WAV and writes them to a timestamped file,
// returning the file path.
func (s *Storage) Persist(samples []float32) (string, error) {
	if len(samples) == 0 {
		return "", fmt.Errorf("no samples to persist")
	}

	data, err := audio.EncodeWAV(samples, s.sampleRate)
	if err != nil {
		return "", fmt.Errorf("failed to encode WAV: %w", err)
	}

	name := fmt.Sprintf("segment_%d.wav", time.Now().UnixNano())
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write recording: %w", err)
	}

	return path, nil
}

// Cleanup removes recordings beyond the keepLast most recent ones.
// It returns the number of files removed.
func (s *Storage) Cleanup(keepLast int) (int, error) {
	if keepLast < 0 {
		keepLast = 0
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read recording directory: %w", err)
	}

	type recording struct {
		path    string
		modTime time.Time
	}

	var recordings []recording
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".wav" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		recordings = append(recordings, recording{
			path:    filepath.Join(s.dir, entry.Name()),
			modTime: info.ModTime(),
		})
	}

	if len(recordings) <= keepLast {
		return 0, nil
	}

	// Newest first; everything past keepLast goes.
	sort.Slice(recordings, func(i, j int) bool {
		return recordings[i].modTime.After(recordings[j].modTime)
	})

	removed := 0
	for _, rec := range recordings[keepLast:] {
		if err := os.Remove(rec.path); err != nil {
			continue
		}
		removed++
	}

	return removed, nil
}
