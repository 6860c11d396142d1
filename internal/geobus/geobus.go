// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/wneessen/waybar-prayertimes/internal/logger"
)

const (
	accuracyEpsilon = 1e-6
	initialBackoff  = time.Second
	maxBackoff      = 30 * time.Second
)

const (
	AccuracyCountry = 300000
	AccuracyRegion  = 100000
	AccuracyCity    = 15000
	AccuracyZip     = 3000
	AccuracyUnknown = 1000000
	TruncPrecision  = 4
)

var (
	// ErrNoLocation is returned when no provider determined a location in time.
	ErrNoLocation = errors.New("device location is not available")
	// ErrNoProviders is returned when a location is requested without any enabled provider.
	ErrNoProviders = errors.New("no geolocation providers enabled")
)

// Provider defines an interface for geolocation service providers.
// It supports retrieving streamed results for a given key.
type Provider interface {
	Name() string
	LookupStream(ctx context.Context, key string) <-chan Result
}

// GeoBus coordinates the publishing and subscribing of geolocation results between providers and consumers.
type GeoBus struct {
	mu          sync.RWMutex
	logger      *logger.Logger
	best        map[string]Result
	subscribers map[string]map[chan Result]struct{}
}

// Result represents a geolocation result with associated metadata.
type Result struct {
	Key            string
	Lat, Lon       float64
	AccuracyMeters float64
	Source         string
	At             time.Time
	TTL            time.Duration
}

// NewResult composes a Result for key from a coordinate reported by source.
func NewResult(key, source string, coord Coordinate, ttl time.Duration) Result {
	return Result{
		Key:            key,
		Lat:            coord.Lat,
		Lon:            coord.Lon,
		AccuracyMeters: coord.Acc,
		Source:         source,
		At:             time.Now(),
		TTL:            ttl,
	}
}

// Coordinate returns the position of the Result.
func (r Result) Coordinate() Coordinate {
	return Coordinate{Lat: r.Lat, Lon: r.Lon, Acc: r.AccuracyMeters, Found: true}
}

// BetterThan reports whether r is more accurate than prev. Older results never win.
func (r Result) BetterThan(prev Result) bool {
	if prev.Key == "" {
		return true
	}
	if r.At.Before(prev.At) {
		return false
	}
	return r.AccuracyMeters < prev.AccuracyMeters-accuracyEpsilon
}

// IsExpired checks if the Result has exceeded its time-to-live (TTL) based on the current time and the timestamp.
func (r Result) IsExpired() bool {
	return r.TTL > 0 && time.Since(r.At) > r.TTL
}

// New initializes and returns a new instance of GeoBus to handle geolocation result coordination.
func New(log *logger.Logger) (*GeoBus, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	return &GeoBus{
		logger:      log,
		best:        make(map[string]Result),
		subscribers: make(map[string]map[chan Result]struct{}),
	}, nil
}

// NewOrchestrator returns an Orchestrator that publishes the results of the given providers to the bus.
func (b *GeoBus) NewOrchestrator(provider []Provider) *Orchestrator {
	return &Orchestrator{
		Bus:       b,
		Providers: provider,
	}
}

// Subscribe adds a subscriber for updates associated with the given key and buffer size, returning a result
// channel and an unsubscribe function. A known, unexpired result is delivered right away.
func (b *GeoBus) Subscribe(key string, size int) (<-chan Result, func()) {
	if size < 1 {
		size = 1
	}
	resultChan := make(chan Result, size)
	b.mu.Lock()
	if _, ok := b.subscribers[key]; !ok {
		b.subscribers[key] = make(map[chan Result]struct{})
	}

	b.subscribers[key][resultChan] = struct{}{}
	if best, ok := b.best[key]; ok && !best.IsExpired() {
		resultChan <- best
	}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			if subs, ok := b.subscribers[key]; ok {
				delete(subs, resultChan)
				if len(subs) == 0 {
					delete(b.subscribers, key)
				}
			}
			b.mu.Unlock()
			close(resultChan)
		})
	}

	return resultChan, unsub
}

// Publish stores r if it improves on the known result for its key and broadcasts it to the
// subscribers of that key. Results without accuracy are ignored.
func (b *GeoBus) Publish(r Result) {
	if r.AccuracyMeters == 0 {
		return
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	prev, have := b.best[r.Key]

	// Update/broadcast the result if it's better than the previous one, expired or if the coordinate has
	// changed significantly
	if !have || prev.IsExpired() || r.BetterThan(prev) && r.Coordinate().PosHasSignificantChange(prev.Coordinate()) {
		b.best[r.Key] = r
		b.broadcastResult(r)
		b.logger.Debug("published geolocation result", slog.String("source", r.Source),
			slog.Float64("lat", r.Lat), slog.Float64("lon", r.Lon), slog.Float64("accuracy", r.AccuracyMeters))
		return
	}

	// Refresh the TTL if the source has not changed
	if prev.Source == r.Source {
		prev.At = r.At
		b.best[r.Key] = prev
	}
}

func (b *GeoBus) broadcastResult(r Result) {
	for ch := range b.subscribers[r.Key] {
		select {
		case ch <- r:
		default:
		}
	}
}

// Best returns the best known, unexpired result for key.
func (b *GeoBus) Best(key string) (Result, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.best[key]
	return r, ok && !r.IsExpired()
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d *= 2; d > maxBackoff {
		return maxBackoff
	}
	return d
}

// Truncate cuts x to the given number of decimal places.
func Truncate(x float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Trunc(x*p) / p
}

// PlaceAccuracy estimates the accuracy of an IP based lookup from the most specific place
// component the lookup resolved.
func PlaceAccuracy(country, region, city, zip string) float64 {
	switch {
	case zip != "":
		return AccuracyZip
	case city != "":
		return AccuracyCity
	case region != "":
		return AccuracyRegion
	case country != "":
		return AccuracyCountry
	default:
		return AccuracyUnknown
	}
}
