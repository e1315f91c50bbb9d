package chat

import "time"

// DefaultDisplayInterval is the minimum time between two renders of a growing response.
const DefaultDisplayInterval = 8 * time.Millisecond

// Throttle is the render state of one streamed response. It lets bursts of deltas collapse into a
// single render while an isolated delta still renders promptly.
//
// A Throttle is not safe for concurrent use. Only one goroutine may call Notify, and Flush may only
// run once that goroutine is done with it.
type Throttle struct {
	interval time.Duration
	now      func() time.Time

	lastRendered string
	lastRenderAt time.Time
	rendered     bool
}

// NewThrottle creates a Throttle. A nil clock means time.Now; a non-positive interval disables
// throttling but still skips renders of unchanged text.
func NewThrottle(interval time.Duration, now func() time.Time) *Throttle {
	if now == nil {
		now = time.Now
	}
	return &Throttle{
		interval: interval,
		now:      now,
	}
}

// Notify renders text if at least the interval has passed since the previous render and text
// differs from what was last rendered. It reports whether render was called.
func (t *Throttle) Notify(text string, render func(string)) bool {
	now := t.now()
	if t.rendered && now.Sub(t.lastRenderAt) < t.interval {
		return false
	}
	if text == t.lastRendered {
		return false
	}

	render(text)
	t.lastRendered = text
	t.lastRenderAt = now
	t.rendered = true
	return true
}

// Flush renders text unconditionally. It is used once the stream has ended, so the display
// always finishes on the complete text even if the last delta landed inside an interval.
func (t *Throttle) Flush(text string, render func(string)) {
	render(text)
	t.lastRendered = text
	t.lastRenderAt = t.now()
	t.rendered = true
}
