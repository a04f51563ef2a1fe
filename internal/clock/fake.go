package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced Clock for tests. Timers fire synchronously
// inside Advance, ordered by deadline then by scheduling order. Callbacks may
// schedule further timers; those fire too if they fall inside the advanced
// window.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	f       *Fake
	at      time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

// NewFake returns a Fake clock pinned at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the current virtual time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// AfterFunc schedules fn to run when the virtual clock reaches now+d.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTimer{f: f, at: f.now.Add(d), seq: f.seq, fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves the virtual clock forward by d, running every due timer in
// deadline order. The callback runs without the clock lock held, so it may
// call back into the clock.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	for {
		t := f.popDueLocked(target)
		if t == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		f.now = t.at
		f.mu.Unlock()
		t.fn()
		f.mu.Lock()
	}
}

// popDueLocked removes and returns the earliest pending timer at or before
// target, or nil when none is due.
func (f *Fake) popDueLocked(target time.Time) *fakeTimer {
	var best *fakeTimer
	idx := -1
	for i, t := range f.timers {
		if t.stopped || t.at.After(target) {
			continue
		}
		if best == nil || t.at.Before(best.at) || (t.at.Equal(best.at) && t.seq < best.seq) {
			best = t
			idx = i
		}
	}
	if best == nil {
		return nil
	}
	best.fired = true
	f.timers = append(f.timers[:idx], f.timers[idx+1:]...)
	return best
}

// Pending reports how many timers are armed.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (t *fakeTimer) Stop() bool {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}
