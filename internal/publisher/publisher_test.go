package publisher

import (
	"sync"
	"testing"
	"time"
)

func TestLatest_Empty(t *testing.T) {
	p := New()
	if _, ok := p.Latest(); ok {
		t.Error("expected no frame on a fresh publisher")
	}
}

func TestLatest_ReturnsIndependentCopy(t *testing.T) {
	p := New()
	p.Publish(Frame{
		JPEG:        []byte{1, 2, 3},
		FrameNumber: 7,
		BlinkCounts: map[string]int{"Alice": 2},
		Timestamp:   time.Now(),
	})

	first, ok := p.Latest()
	if !ok {
		t.Fatal("expected a frame")
	}
	first.JPEG[0] = 99
	first.BlinkCounts["Alice"] = 42

	second, _ := p.Latest()
	if second.JPEG[0] != 1 {
		t.Errorf("JPEG mutated through a copy: got %d", second.JPEG[0])
	}
	if second.BlinkCounts["Alice"] != 2 {
		t.Errorf("blink counts mutated through a copy: got %d", second.BlinkCounts["Alice"])
	}
	if second.FrameNumber != 7 {
		t.Errorf("FrameNumber = %d, want 7", second.FrameNumber)
	}
}

func TestPublish_Overwrites(t *testing.T) {
	p := New()
	for i := uint64(1); i <= 3; i++ {
		p.Publish(Frame{FrameNumber: i})
	}

	f, _ := p.Latest()
	if f.FrameNumber != 3 {
		t.Errorf("FrameNumber = %d, want 3", f.FrameNumber)
	}
}

func TestClear(t *testing.T) {
	p := New()
	p.Publish(Frame{FrameNumber: 1})
	p.Clear()

	if _, ok := p.Latest(); ok {
		t.Error("expected no frame after Clear")
	}
	p.Publish(Frame{FrameNumber: 2})
	if f, ok := p.Latest(); !ok || f.FrameNumber != 2 {
		t.Errorf("expected frame 2 after publishing again, got %+v (ok=%v)", f, ok)
	}
}

func TestConcurrentReaders(t *testing.T) {
	p := New()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(1); i <= 500; i++ {
			p.Publish(Frame{JPEG: []byte{byte(i)}, FrameNumber: i, BlinkCounts: map[string]int{"a": int(i)}})
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for i := 0; i < 500; i++ {
				f, ok := p.Latest()
				if !ok {
					continue
				}
				if f.FrameNumber < last {
					t.Errorf("frame number went backwards: %d after %d", f.FrameNumber, last)
					return
				}
				last = f.FrameNumber
			}
		}()
	}
	wg.Wait()
}
