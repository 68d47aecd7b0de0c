package transcription

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/casperarmani/voicedictate/internal/audio"
)

// writeTestWAV puts a short silent WAV file in a temp dir and returns its
// path.
func writeTestWAV(t *testing.T) string {
	t.Helper()

	data, err := audio.EncodeWAV(make([]float32, 1600), 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "test.wav")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write test WAV: %v", err)
	}
	return path
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("Expected error for missing API key")
	}
}

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient(Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if client.Model() != "gpt-4o-mini-transcribe" {
		t.Errorf("Expected default model, got %s", client.Model())
	}
	if client.cfg.Timeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", client.cfg.Timeout)
	}
}

func TestTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
		}
		if model := r.FormValue("model"); model != "gpt-4o-mini-transcribe" {
			t.Errorf("Expected model field, got %q", model)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "  hello there  "}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	text, err := client.Transcribe(context.Background(), writeTestWAV(t))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if text != "hello there" {
		t.Errorf("Expected trimmed text 'hello there', got %q", text)
	}

	stats := client.GetStats()
	if stats.TotalRequests != 1 || stats.SuccessRequests != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if stats.SuccessRate != 100 {
		t.Errorf("Expected 100%% success rate, got %v", stats.SuccessRate)
	}
}

func TestTranscribeEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "   "}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	text, err := client.Transcribe(context.Background(), writeTestWAV(t))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "" {
		t.Errorf("Expected empty text, got %q", text)
	}

	if stats := client.GetStats(); stats.EmptyResults != 1 {
		t.Errorf("Expected 1 empty result, got %d", stats.EmptyResults)
	}
}

func TestTranscribeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": {"message": "boom", "type": "server_error"}}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Transcribe(context.Background(), writeTestWAV(t))
	if err == nil {
		t.Fatal("Expected error from server failure")
	}

	if !Retryable(err) {
		t.Errorf("Expected 500 response to be classified retryable: %v", err)
	}

	if stats := client.GetStats(); stats.FailedRequests != 1 {
		t.Errorf("Expected 1 failed request, got %d", stats.FailedRequests)
	}
}

func TestTranscribeMissingFile(t *testing.T) {
	client, err := NewClient(Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if _, err := client.Transcribe(context.Background(), "/nonexistent/audio.wav"); err == nil {
		t.Error("Expected error for missing audio file")
	}
}

func TestRetryableClassification(t *testing.T) {
	if Retryable(nil) {
		t.Error("nil error must not be retryable")
	}
	if !Retryable(context.DeadlineExceeded) {
		t.Error("deadline exceeded should be retryable")
	}
	if Retryable(os.ErrNotExist) {
		t.Error("plain file errors must not be retryable")
	}
}
