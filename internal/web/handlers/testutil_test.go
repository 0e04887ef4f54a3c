package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/publisher"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// fakeRecognizer records calls and returns configured errors
type fakeRecognizer struct {
	mu            sync.Mutex
	running       bool
	startErr      error
	lastStart     recognition.StartOptions
	blinks        int
	delayMinutes  int
	setBlinkCalls int
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{blinks: 5, delayMinutes: 2}
}

func (f *fakeRecognizer) Start(ctx context.Context, opts recognition.StartOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastStart = opts
	if f.running {
		return recognition.ErrAlreadyRunning
	}
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeRecognizer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return recognition.ErrNotRunning
	}
	f.running = false
	return nil
}

func (f *fakeRecognizer) Status() recognition.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return recognition.Status{
		Running:              f.running,
		IdentitiesLoaded:     3,
		LivenessThreshold:    f.blinks,
		CheckoutDelayMinutes: f.delayMinutes,
	}
}

func (f *fakeRecognizer) SetBlinkThreshold(ctx context.Context, n int) error {
	if err := config.ValidateBlinkThreshold(n); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blinks = n
	f.setBlinkCalls++
	return nil
}

func (f *fakeRecognizer) SetCheckoutDelay(minutes int) error {
	if err := config.ValidateCheckoutDelay(minutes); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delayMinutes = minutes
	return nil
}

// scriptedFrames returns frames from a script, then nothing
type scriptedFrames struct {
	mu     sync.Mutex
	frames []publisher.Frame
	reads  int
}

func (s *scriptedFrames) Latest() (publisher.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if len(s.frames) == 0 {
		return publisher.Frame{}, false
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, true
}

func testFrame(n uint64) publisher.Frame {
	return publisher.Frame{
		JPEG:        []byte{0xFF, 0xD8, byte(n), 0xFF, 0xD9},
		Width:       640,
		Height:      480,
		Timestamp:   time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		FrameNumber: n,
		FPS:         29.5,
		BlinkCounts: map[string]int{"Alice": int(n)},
	}
}

// decodeJSON decodes the recorder body into T
func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return v
}
