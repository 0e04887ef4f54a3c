package liveness

import "sync/atomic"

// Defaults for the blink detector.
const (
	DefaultEARThreshold   = 0.25
	DefaultBlinkFrames    = 3
	DefaultBlinkThreshold = 5
)

// State is the per-identity blink state.
type State struct {
	ClosedFrames int
	Blinks       int
}

// Tracker is the per-identity blink state machine. Observe, Reset and Counts
// are meant to be called from the capture loop only; the blink threshold may be
// changed from any goroutine.
type Tracker struct {
	earThreshold   float64
	blinkFrames    int
	blinkThreshold atomic.Int32
	states         map[string]*State
}

// NewTracker creates a tracker. Non-positive arguments select the defaults.
func NewTracker(earThreshold float64, blinkFrames, blinkThreshold int) *Tracker {
	if earThreshold <= 0 {
		earThreshold = DefaultEARThreshold
	}
	if blinkFrames <= 0 {
		blinkFrames = DefaultBlinkFrames
	}
	if blinkThreshold <= 0 {
		blinkThreshold = DefaultBlinkThreshold
	}
	t := &Tracker{
		earThreshold: earThreshold,
		blinkFrames:  blinkFrames,
		states:       make(map[string]*State),
	}
	t.blinkThreshold.Store(int32(blinkThreshold))
	return t
}

// SetBlinkThreshold changes the number of blinks required for liveness.
// Validation is the caller's job.
func (t *Tracker) SetBlinkThreshold(n int) {
	t.blinkThreshold.Store(int32(n))
}

// BlinkThreshold returns the number of blinks required for liveness.
func (t *Tracker) BlinkThreshold() int {
	return int(t.blinkThreshold.Load())
}

func (t *Tracker) state(identity string) *State {
	s, ok := t.states[identity]
	if !ok {
		s = &State{}
		t.states[identity] = s
	}
	return s
}

// Observe feeds one frame's eye aspect ratio for identity and reports whether
// the identity is now considered live.
//
// A closed eye run of 1..blinkFrames frames followed by an open frame counts as
// one blink. Longer runs are discarded. The closed counter resets on every open frame.
func (t *Tracker) Observe(identity string, ear float64) bool {
	s := t.state(identity)

	if ear < t.earThreshold {
		s.ClosedFrames++
	} else {
		if s.ClosedFrames >= 1 && s.ClosedFrames <= t.blinkFrames {
			s.Blinks++
		}
		s.ClosedFrames = 0
	}

	return s.Blinks >= t.BlinkThreshold()
}

// IsLive reports whether identity has blinked at least the threshold number of times.
func (t *Tracker) IsLive(identity string) bool {
	s, ok := t.states[identity]
	if !ok {
		return false
	}
	return s.Blinks >= t.BlinkThreshold()
}

// Blinks returns the blink count of identity.
func (t *Tracker) Blinks(identity string) int {
	if s, ok := t.states[identity]; ok {
		return s.Blinks
	}
	return 0
}

// Reset clears the blink count of identity so the next transition needs a
// fresh confirmation. The closed-eye run is kept.
func (t *Tracker) Reset(identity string) {
	if s, ok := t.states[identity]; ok {
		s.Blinks = 0
	}
}

// Counts returns a copy of all blink counts.
func (t *Tracker) Counts() map[string]int {
	counts := make(map[string]int, len(t.states))
	for id, s := range t.states {
		counts[id] = s.Blinks
	}
	return counts
}
