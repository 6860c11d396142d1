// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Orchestrator coordinates the tracking and publication of geolocation results from multiple
// providers through a GeoBus.
type Orchestrator struct {
	Bus       *GeoBus
	Providers []Provider
}

// Track initiates concurrent geolocation tracking for a given key across multiple providers in the Orchestrator.
// It returns once ctx is done and all providers stopped.
func (o *Orchestrator) Track(ctx context.Context, key string) {
	var wg sync.WaitGroup
	for _, p := range o.Providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			o.trackProvider(ctx, p, key)
		}(p)
	}
	<-ctx.Done()
	wg.Wait()
}

// Acquire determines the location for key once. A known, unexpired result is returned right
// away, otherwise all providers are tracked until the first result arrives or timeout elapses.
// Tracking stops before Acquire returns, there is no retry.
func (o *Orchestrator) Acquire(ctx context.Context, key string, timeout time.Duration) (Coordinate, error) {
	if len(o.Providers) == 0 {
		return Coordinate{}, fmt.Errorf("%w: %w", ErrNoLocation, ErrNoProviders)
	}
	if best, ok := o.Bus.Best(key); ok {
		return best.Coordinate(), nil
	}

	sub, unsub := o.Bus.Subscribe(key, 1)
	defer unsub()

	trackCtx, cancel := context.WithTimeout(ctx, timeout)
	done := make(chan struct{})
	go func() {
		defer close(done)
		o.Track(trackCtx, key)
	}()
	defer func() {
		cancel()
		<-done
	}()

	select {
	case r := <-sub:
		return r.Coordinate(), nil
	case <-trackCtx.Done():
		return Coordinate{}, fmt.Errorf("%w: %w", ErrNoLocation, trackCtx.Err())
	}
}

// trackProvider continuously tracks a Provider for geolocation data, publishing results to
// the GeoBus and implementing backoff.
func (o *Orchestrator) trackProvider(ctx context.Context, p Provider, key string) {
	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		lookupChan := o.safeLookup(ctx, p, key)
		if lookupChan == nil {
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		o.drain(ctx, lookupChan, &backoff)
		if !sleepOrDone(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

// drain publishes every result of lookupChan until it is closed or ctx is done.
func (o *Orchestrator) drain(ctx context.Context, lookupChan <-chan Result, backoff *time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-lookupChan:
			if !ok {
				return
			}
			o.Bus.Publish(r)
			*backoff = initialBackoff
		}
	}
}

// safeLookup safely invokes the LookupStream method on a Provider and recovers from potential panics.
// Returns a read-only channel of Result or nil if the operation fails.
func (o *Orchestrator) safeLookup(ctx context.Context, provider Provider, key string) (ch <-chan Result) {
	defer func() { _ = recover() }()
	return provider.LookupStream(ctx, key)
}
