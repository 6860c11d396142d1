// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package widget implements the prayer times widget: it takes the location input, dispatches
// debounced timings requests and folds every outcome into its state through prayer.Reduce.
package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wneessen/waybar-prayertimes/internal/debounce"
	"github.com/wneessen/waybar-prayertimes/internal/geobus"
	"github.com/wneessen/waybar-prayertimes/internal/i18n"
	"github.com/wneessen/waybar-prayertimes/internal/logger"
	"github.com/wneessen/waybar-prayertimes/internal/prayer"
)

// ErrGeolocationDisabled is returned by AcquireLocation on widgets built without a Locator.
var ErrGeolocationDisabled = errors.New("geolocation is disabled")

// Locator determines the device location once.
type Locator interface {
	Locate(ctx context.Context) (geobus.Coordinate, error)
}

// OrchestratorLocator acquires the device location through a geobus orchestrator.
type OrchestratorLocator struct {
	Orchestrator *geobus.Orchestrator
	Key          string
	Timeout      time.Duration
}

func (l OrchestratorLocator) Locate(ctx context.Context) (geobus.Coordinate, error) {
	return l.Orchestrator.Acquire(ctx, l.Key, l.Timeout)
}

// Widget holds the state of one prayer times widget. All state transitions are serialized.
type Widget struct {
	provider prayer.Provider
	resolver i18n.Resolver
	logger   *logger.Logger
	gate     *debounce.Gate
	locator  Locator

	mu    sync.Mutex
	state prayer.State
	subs  map[chan struct{}]struct{}
}

// View is the state of the widget with all messages resolved for display.
type View struct {
	Location      prayer.Location
	Timings       prayer.Timings
	Meta          prayer.Meta
	Loading       bool
	Error         string
	LocationError string
}

// Option configures a Widget.
type Option func(*Widget)

// WithLocator enables geolocation through l.
func WithLocator(l Locator) Option {
	return func(w *Widget) {
		w.locator = l
	}
}

// WithGate replaces the default debounce gate.
func WithGate(g *debounce.Gate) Option {
	return func(w *Widget) {
		w.gate = g
	}
}

// WithLocation sets the initial location.
func WithLocation(loc prayer.Location) Option {
	return func(w *Widget) {
		w.state.Location = loc
	}
}

// New returns a Widget fetching from provider. Messages are resolved through resolver.
func New(provider prayer.Provider, resolver i18n.Resolver, log *logger.Logger, opts ...Option) (*Widget, error) {
	if provider == nil {
		return nil, errors.New("prayer times provider is required")
	}
	if resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}

	w := &Widget{
		provider: provider,
		resolver: resolver,
		logger:   log,
		gate:     debounce.New(debounce.DefaultWindow),
		subs:     make(map[chan struct{}]struct{}),
	}
	w.state.Location.Method = prayer.MethodCity
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start performs the initial fetch. In current location mode the device location is acquired
// first. When it cannot be determined the timings of the configured city are fetched instead.
func (w *Widget) Start(ctx context.Context) {
	if w.State().Location.Method == prayer.MethodCurrentLocation {
		if err := w.AcquireLocation(ctx); err == nil {
			return
		}
	}
	w.FetchTimings(ctx)
}

// FetchTimings requests the timings for the current location. Calls within the debounce window
// of a previous dispatch are suppressed: they leave the state untouched and return the current
// result with false.
func (w *Widget) FetchTimings(ctx context.Context) (prayer.Result, bool) {
	if !w.gate.Allow() {
		w.logger.Debug("suppressed timings request within debounce window")
		return w.State().Timings, false
	}

	w.mu.Lock()
	seq := w.state.Sequence + 1
	w.state = prayer.Reduce(w.state, prayer.SubmitTriggered{Seq: seq})
	loc := w.state.Location
	w.mu.Unlock()
	w.notify()

	data, err := w.provider.GetTimings(ctx, loc)
	if err != nil {
		w.logger.Error("failed to fetch prayer times", logger.Err(err),
			slog.String("provider", w.provider.Name()))
	}

	s := w.apply(prayer.RequestSettled{Seq: seq, Data: data, Err: err})
	return s.Timings, true
}

// AcquireLocation determines the device location. On success the coordinates are stored and
// the timings are fetched for them.
func (w *Widget) AcquireLocation(ctx context.Context) error {
	if w.locator == nil {
		w.apply(prayer.GeolocationDenied{})
		return ErrGeolocationDisabled
	}

	coord, err := w.locator.Locate(ctx)
	if err != nil {
		w.logger.Warn("device location is not available", logger.Err(err))
		w.apply(prayer.GeolocationDenied{})
		return fmt.Errorf("failed to acquire device location: %w", err)
	}
	w.logger.Debug("device location acquired", slog.Float64("lat", coord.Lat), slog.Float64("lon", coord.Lon))

	w.apply(prayer.GeolocationGranted{Lat: coord.Lat, Lon: coord.Lon})
	w.FetchTimings(ctx)
	return nil
}

// SetCity sets the city used in city mode.
func (w *Widget) SetCity(city string) {
	w.apply(prayer.CityEdited{City: city})
}

// SetCountry sets the country used in city mode.
func (w *Widget) SetCountry(country string) {
	w.apply(prayer.CountryEdited{Country: country})
}

// SwitchLocationMethod selects the location mode. Switching to current location mode acquires
// the device location, which fetches the timings once it is known.
func (w *Widget) SwitchLocationMethod(ctx context.Context, method prayer.LocationMethod) error {
	w.apply(prayer.LocationMethodSwitched{Method: method})
	if method != prayer.MethodCurrentLocation {
		return nil
	}
	return w.AcquireLocation(ctx)
}

// DebounceWindow returns the window in which repeated fetches are suppressed.
func (w *Widget) DebounceWindow() time.Duration {
	return w.gate.Window()
}

// State returns a copy of the current state.
func (w *Widget) State() prayer.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// View returns the current state with all messages resolved. The location message is only
// part of the view in current location mode.
func (w *Widget) View() View {
	s := w.State()
	view := View{
		Location: s.Location,
		Timings:  s.Timings.Data,
		Meta:     s.Timings.Meta,
		Loading:  s.Timings.Loading,
	}
	if s.Timings.Error != "" {
		view.Error = w.resolver.Get(s.Timings.Error)
	}
	if s.LocationError != "" && s.Location.Method == prayer.MethodCurrentLocation {
		view.LocationError = w.resolver.Get(s.LocationError)
	}
	return view
}

// Subscribe returns a channel that receives a signal after every state change. Signals are
// coalesced when the receiver falls behind.
func (w *Widget) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	w.mu.Lock()
	w.subs[ch] = struct{}{}
	w.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.subs, ch)
			w.mu.Unlock()
		})
	}
}

func (w *Widget) apply(ev prayer.Event) prayer.State {
	w.mu.Lock()
	w.state = prayer.Reduce(w.state, ev)
	s := w.state
	w.mu.Unlock()
	w.notify()
	return s
}

func (w *Widget) notify() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for ch := range w.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
