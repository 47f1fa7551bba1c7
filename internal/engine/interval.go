package engine

import (
	"sync/atomic"
	"time"
)

// IntervalSource supplies the poll interval, re-read before every tick
type IntervalSource interface {
	CurrentInterval() time.Duration
}

// StaticInterval is a fixed poll interval
type StaticInterval time.Duration

func (s StaticInterval) CurrentInterval() time.Duration {
	return time.Duration(s)
}

// AdaptiveInterval polls faster while a user is active. Touch marks
// activity; after idleAfter without a touch the idle interval applies.
type AdaptiveInterval struct {
	active    time.Duration
	idle      time.Duration
	idleAfter time.Duration
	now       func() time.Time

	lastTouch atomic.Int64 // unix nanos, 0 when never touched
}

// NewAdaptiveInterval creates an adaptive interval that starts idle
func NewAdaptiveInterval(active, idle, idleAfter time.Duration) *AdaptiveInterval {
	return &AdaptiveInterval{
		active:    active,
		idle:      idle,
		idleAfter: idleAfter,
		now:       time.Now,
	}
}

// Touch records user activity
func (a *AdaptiveInterval) Touch() {
	a.lastTouch.Store(a.now().UnixNano())
}

// Active reports whether a touch happened within idleAfter
func (a *AdaptiveInterval) Active() bool {
	last := a.lastTouch.Load()
	if last == 0 {
		return false
	}
	return a.now().Sub(time.Unix(0, last)) < a.idleAfter
}

func (a *AdaptiveInterval) CurrentInterval() time.Duration {
	if a.Active() {
		return a.active
	}
	return a.idle
}
