package deployagent

import (
	"sync"
	"time"
)

const (
	defaultThrottleInterval = 100 * time.Millisecond
	defaultMinChangePercent = 1.0
)

// ProgressThrottle rate-limits a high-frequency progress producer into a
// lower-frequency sink without losing the final event of a sequence.
//
// Stage changes, progress jumps of at least MinChangePercent, and events
// arriving after MinInterval of silence pass through immediately. Everything
// else is coalesced: the latest event is parked and delivered when a deferred
// timer fires, or on Flush.
//
// A throttle instance is owned by exactly one sequencer invocation and must
// not be reused across devices. Callers must Flush after the last raw event
// so terminal events are never dropped.
type ProgressThrottle struct {
	fn          ProgressFunc
	minInterval time.Duration
	minChange   float64

	mu           sync.Mutex
	started      bool
	lastCallTime time.Time
	lastProgress float64
	lastStage    Stage
	pending      *StageEvent
	timer        *time.Timer

	clock func() time.Time
}

// NewProgressThrottle wraps fn. Non-positive parameters fall back to the
// defaults (100ms, 1 percent).
func NewProgressThrottle(fn ProgressFunc, minInterval time.Duration, minChangePercent float64) *ProgressThrottle {
	if minInterval <= 0 {
		minInterval = defaultThrottleInterval
	}
	if minChangePercent <= 0 {
		minChangePercent = defaultMinChangePercent
	}
	return &ProgressThrottle{
		fn:          fn,
		minInterval: minInterval,
		minChange:   minChangePercent,
		clock:       time.Now,
	}
}

// Call feeds one raw event into the throttle. Safe to call repeatedly in
// quick succession from whatever goroutine delivers backend notifications.
func (t *ProgressThrottle) Call(event StageEvent) {
	if t == nil || t.fn == nil {
		return
	}
	t.mu.Lock()

	now := t.clock()
	stageChanged := !t.started || event.Stage != t.lastStage
	progressDelta := event.Progress - t.lastProgress
	if progressDelta < 0 {
		progressDelta = -progressDelta
	}
	elapsed := !t.started || now.Sub(t.lastCallTime) >= t.minInterval

	if stageChanged || progressDelta >= t.minChange || elapsed {
		t.forwardLocked(event, now)
		t.mu.Unlock()
		return
	}

	// Park the latest event; arm the deferred timer only once.
	ev := event
	t.pending = &ev
	if t.timer == nil {
		t.timer = time.AfterFunc(t.minInterval, t.fire)
	}
	t.mu.Unlock()
}

// Flush cancels any armed timer and delivers the pending event, if one
// exists. Must be called after the last raw event of a sequence.
func (t *ProgressThrottle) Flush() {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	pending := t.pending
	t.pending = nil
	if pending != nil {
		t.forwardLocked(*pending, t.clock())
	}
	t.mu.Unlock()
}

func (t *ProgressThrottle) fire() {
	t.mu.Lock()
	t.timer = nil
	pending := t.pending
	t.pending = nil
	if pending != nil {
		t.forwardLocked(*pending, t.clock())
	}
	t.mu.Unlock()
}

// forwardLocked delivers the event and records it as the last forwarded one.
// The sink runs under the lock, which keeps delivery ordered with respect to
// concurrent Call/Flush.
func (t *ProgressThrottle) forwardLocked(event StageEvent, now time.Time) {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = nil
	t.started = true
	t.lastCallTime = now
	t.lastProgress = event.Progress
	t.lastStage = event.Stage
	t.fn(event)
}
