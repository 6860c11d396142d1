// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package debounce implements a leading-edge debounce gate.
package debounce

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultWindow is the quiet period that separates two bursts.
const DefaultWindow = time.Millisecond * 400

// Gate lets the first event of a burst pass and suppresses every following event until no event
// has been seen for the length of the window. Every event, suppressed or not, extends the burst.
type Gate struct {
	clock  clockwork.Clock
	window time.Duration

	mu   sync.Mutex
	last time.Time
	seen bool
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock sets the clock used by the Gate.
func WithClock(clock clockwork.Clock) Option {
	return func(g *Gate) {
		g.clock = clock
	}
}

// New returns a Gate with the given window. A non-positive window selects DefaultWindow.
func New(window time.Duration, opts ...Option) *Gate {
	if window <= 0 {
		window = DefaultWindow
	}
	gate := &Gate{
		clock:  clockwork.NewRealClock(),
		window: window,
	}
	for _, opt := range opts {
		opt(gate)
	}
	return gate
}

// Allow reports whether the event that happens now starts a new burst.
func (g *Gate) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	allowed := !g.seen || now.Sub(g.last) >= g.window
	g.last = now
	g.seen = true
	return allowed
}

// Window returns the configured window.
func (g *Gate) Window() time.Duration {
	return g.window
}
