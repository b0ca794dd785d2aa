package service

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestScrollAnchorCompensatesExtentGrowth(t *testing.T) {
	vp := &mockViewport{extent: 1000, offset: 120}

	anchor := CaptureScroll(vp)
	vp.grow(400)
	anchor.Compensate()

	assert.Equal(t, 520.0, vp.ScrollOffset())
}

func TestScrollAnchorNoGrowthNoJump(t *testing.T) {
	vp := &mockViewport{extent: 1000, offset: 120}

	anchor := CaptureScroll(vp)
	anchor.Compensate()

	assert.Equal(t, 120.0, vp.ScrollOffset())
}

func TestScrollAnchorNilViewport(t *testing.T) {
	anchor := CaptureScroll(nil)
	// Headless callers get a no-op anchor
	assert.NotPanics(t, anchor.Compensate)
}

func TestScrollThrottle(t *testing.T) {
	mock := clock.NewMock()
	throttle := NewScrollThrottle(mock, 300*time.Millisecond)

	assert.True(t, throttle.Allow())
	assert.False(t, throttle.Allow())

	mock.Add(100 * time.Millisecond)
	assert.False(t, throttle.Allow())

	mock.Add(200 * time.Millisecond)
	assert.True(t, throttle.Allow())
	assert.False(t, throttle.Allow())
}
