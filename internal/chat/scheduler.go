package chat

import (
	"sync"
	"time"
)

// DefaultFrameInterval is the refresh cycle Frames coalesces scheduled renders onto.
const DefaultFrameInterval = 16 * time.Millisecond

// Scheduler decides when scheduled re-render work runs, relative to the arrival of stream deltas.
type Scheduler interface {
	// Schedule queues fn to run on the next refresh.
	Schedule(fn func())
	// Stop discards queued work and returns once no scheduled fn is running or will run.
	Stop()
}

// Immediate runs scheduled work inline. It suits headless use and tests.
type Immediate struct{}

// Schedule runs fn right away.
func (Immediate) Schedule(fn func()) {
	fn()
}

// Stop does nothing.
func (Immediate) Stop() {}

// Frames runs scheduled work on its own goroutine once per frame. Work scheduled within one frame
// is coalesced: only the most recent fn runs.
type Frames struct {
	mu      sync.Mutex
	pending func()

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewFrames starts a frame loop ticking at interval. Callers must Stop it.
func NewFrames(interval time.Duration) *Frames {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}

	f := &Frames{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go f.loop(interval)
	return f
}

func (f *Frames) loop(interval time.Duration) {
	defer close(f.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			f.mu.Lock()
			fn := f.pending
			f.pending = nil
			f.mu.Unlock()

			if fn != nil {
				fn()
			}
		}
	}
}

// Schedule replaces any work still waiting for the next frame with fn.
func (f *Frames) Schedule(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = fn
}

// Stop ends the frame loop, dropping work that has not run yet. It is safe to call more than once.
func (f *Frames) Stop() {
	f.stopOnce.Do(func() {
		close(f.stop)
	})
	<-f.done

	f.mu.Lock()
	f.pending = nil
	f.mu.Unlock()
}
