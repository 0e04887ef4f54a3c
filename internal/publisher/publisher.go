// Package publisher holds the most recent annotated frame for preview consumers.
package publisher

import (
	"maps"
	"sync"
	"time"
)

// Frame is one encoded preview frame with the loop state at the time it was produced.
type Frame struct {
	JPEG        []byte
	Width       int
	Height      int
	Timestamp   time.Time
	FrameNumber uint64
	FPS         float64
	BlinkCounts map[string]int
	Faces       int
}

// Clone returns a deep copy.
func (f *Frame) Clone() Frame {
	c := *f
	c.JPEG = append([]byte(nil), f.JPEG...)
	c.BlinkCounts = maps.Clone(f.BlinkCounts)
	return c
}

// Publisher is a single-slot mailbox. The producer overwrites the slot and
// readers always get an independent copy, so a slow reader never blocks the
// producer for longer than one copy.
type Publisher struct {
	mu    sync.Mutex
	frame *Frame
}

// New creates an empty publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish replaces the current frame. The publisher takes ownership of f's
// buffers; the caller must not modify them afterwards.
func (p *Publisher) Publish(f Frame) {
	p.mu.Lock()
	p.frame = &f
	p.mu.Unlock()
}

// Latest returns a copy of the current frame, or false if nothing was published.
func (p *Publisher) Latest() (Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frame == nil {
		return Frame{}, false
	}
	return p.frame.Clone(), true
}

// Clear drops the current frame.
func (p *Publisher) Clear() {
	p.mu.Lock()
	p.frame = nil
	p.mu.Unlock()
}
