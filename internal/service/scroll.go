package service

import (
	"sync"
	"time"

	"chatsync/internal/constants"

	"github.com/benbjohnson/clock"
)

// Viewport is the rendered surface a pagination merge must keep visually
// still. The engine never renders; it only measures and compensates.
type Viewport interface {
	ContentExtent() float64
	ScrollOffset() float64
	SetScrollOffset(offset float64)
}

// ScrollAnchor captures the content extent before a pagination merge and
// restores the scroll position afterwards by applying the extent delta.
// The ordering is a hard requirement: measure, then mutate, then
// compensate. The compensation must run synchronously with the layout
// update that follows insertion, never before it.
type ScrollAnchor struct {
	viewport Viewport
	extent   float64
	offset   float64
}

// CaptureScroll measures the viewport ahead of a merge. A nil viewport
// yields a no-op anchor for headless callers.
func CaptureScroll(vp Viewport) *ScrollAnchor {
	if vp == nil {
		return &ScrollAnchor{}
	}
	return &ScrollAnchor{
		viewport: vp,
		extent:   vp.ContentExtent(),
		offset:   vp.ScrollOffset(),
	}
}

// Compensate shifts the scroll offset by the growth in content extent, so
// the content the user was looking at stays put across the prepend.
func (a *ScrollAnchor) Compensate() {
	if a.viewport == nil {
		return
	}
	delta := a.viewport.ContentExtent() - a.extent
	a.viewport.SetScrollOffset(a.offset + delta)
}

// ScrollThrottle rate-limits scroll-position computation, independent of
// the message pipeline. UI callers ask Allow before recomputing.
type ScrollThrottle struct {
	clk      clock.Clock
	interval time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewScrollThrottle creates a throttle with the given minimum interval.
func NewScrollThrottle(clk clock.Clock, interval time.Duration) *ScrollThrottle {
	if interval <= 0 {
		interval = constants.DefaultScrollThrottleMs * time.Millisecond
	}
	return &ScrollThrottle{clk: clk, interval: interval}
}

// Allow reports whether enough time has passed since the last permitted
// computation, and marks the attempt if so.
func (t *ScrollThrottle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clk.Now()
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}
