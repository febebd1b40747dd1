package streaming

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testConfig() TimeoutWriterConfig {
	return TimeoutWriterConfig{
		WriteTimeout: time.Second,
		IdleTimeout:  2 * time.Second,
		ChunkSize:    8,
	}
}

func TestStreamWithTimeout(t *testing.T) {
	w := httptest.NewRecorder()
	data := strings.Repeat("sticker!", 100)

	err := StreamWithTimeout(context.Background(), w, strings.NewReader(data), testConfig())
	if err != nil {
		t.Fatalf("Expected stream to succeed, got %v", err)
	}

	if w.Body.String() != data {
		t.Errorf("Expected %d bytes streamed, got %d", len(data), w.Body.Len())
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("Expected nosniff header to be set")
	}
}

func TestTimeoutWriterTracksBytes(t *testing.T) {
	w := httptest.NewRecorder()
	tw := NewTimeoutWriter(context.Background(), w, testConfig())
	defer tw.Close()

	payload := []byte("0123456789abcdef0123")
	n, err := tw.Write(payload)
	if err != nil {
		t.Fatalf("Expected write to succeed, got %v", err)
	}
	if n != len(payload) {
		t.Errorf("Expected %d bytes written, got %d", len(payload), n)
	}

	bytesWritten, _ := tw.Stats()
	if bytesWritten != int64(len(payload)) {
		t.Errorf("Expected stats to report %d bytes, got %d", len(payload), bytesWritten)
	}
	if !bytes.Equal(w.Body.Bytes(), payload) {
		t.Error("Expected chunked writes to preserve payload")
	}
}

func TestTimeoutWriterRejectsAfterClose(t *testing.T) {
	w := httptest.NewRecorder()
	tw := NewTimeoutWriter(context.Background(), w, testConfig())

	if err := tw.Close(); err != nil {
		t.Fatalf("Expected close to succeed, got %v", err)
	}

	if _, err := tw.Write([]byte("late")); err != ErrStreamCanceled {
		t.Errorf("Expected ErrStreamCanceled, got %v", err)
	}

	// Close is idempotent
	if err := tw.Close(); err != nil {
		t.Errorf("Expected second close to succeed, got %v", err)
	}
}

func TestStreamStopsWhenClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := httptest.NewRecorder()
	tw := NewTimeoutWriter(ctx, w, testConfig())
	defer tw.Close()

	if _, err := tw.Write([]byte("data")); err != ErrClientGone {
		t.Errorf("Expected ErrClientGone, got %v", err)
	}
}
