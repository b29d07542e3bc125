// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package calendar

import (
	"sync"
	"time"
)

// Clock abstracts time.Now so version stamps can be controlled in tests.
type Clock interface {
	Now() time.Time
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// FakeClock stands still until Advance or Set is called. Safe for
// concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
}

func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

// Stamp truncates t to the millisecond precision timestamps are stored at.
func Stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// Version truncates t to the whole second. HTTP dates carry seconds, so a
// version survives a Last-Modified / If-Modified-Since round trip exactly.
func Version(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// NextVersion returns a version strictly newer than prior, normally the
// current second. Writes landing in the same second step one second past
// prior.
func NextVersion(c Clock, prior time.Time) time.Time {
	next := Version(c.Now())
	if !next.After(prior) {
		next = Version(prior).Add(time.Second)
	}
	return next
}
