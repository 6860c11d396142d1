// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/godbus/dbus/v5"
	"github.com/jonboulle/clockwork"

	"github.com/wneessen/waybar-prayertimes/internal/config"
	"github.com/wneessen/waybar-prayertimes/internal/debounce"
	"github.com/wneessen/waybar-prayertimes/internal/geobus"
	"github.com/wneessen/waybar-prayertimes/internal/geocode"
	"github.com/wneessen/waybar-prayertimes/internal/i18n"
	"github.com/wneessen/waybar-prayertimes/internal/job"
	"github.com/wneessen/waybar-prayertimes/internal/logger"
	"github.com/wneessen/waybar-prayertimes/internal/prayer"
	"github.com/wneessen/waybar-prayertimes/internal/presenter"
	"github.com/wneessen/waybar-prayertimes/internal/template"
	"github.com/wneessen/waybar-prayertimes/internal/widget"
)

const (
	OutputClass        = "waybar-prayertimes"
	LoadingOutputClass = "loading"
	ErrorOutputClass   = "error"
	DesktopID          = "waybar-prayertimes"

	cacheHitTTL  = time.Hour * 24
	cacheMissTTL = time.Minute * 10

	// dailyRefreshHour and dailyRefreshMinute set when the timings of the new day are fetched.
	dailyRefreshHour   = 0
	dailyRefreshMinute = 1
)

type outputData struct {
	Text    string   `json:"text"`
	Alt     string   `json:"alt"`
	Tooltip string   `json:"tooltip"`
	Classes []string `json:"class"`
}

type Service struct {
	clock        clockwork.Clock
	config       *config.Config
	connectBus   func() (*dbus.Conn, error)
	geobus       *geobus.GeoBus
	geocoder     geocode.Geocoder
	loadConfig   func() (*config.Config, error)
	logger       *logger.Logger
	orchestrator *geobus.Orchestrator
	output       io.Writer
	presenter    *presenter.Presenter
	scheduler    gocron.Scheduler
	signals      signalSource
	templates    *template.Templates
	widget       *widget.Widget

	displayAltLock sync.RWMutex
	displayAltText bool

	addressLock  sync.RWMutex
	address      geocode.Address
	addressCoord geobus.Coordinate

	outputLock sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithConfigLoader sets the function that re-reads the configuration when the service receives
// SIGHUP.
func WithConfigLoader(fn func() (*config.Config, error)) Option {
	return func(s *Service) {
		s.loadConfig = fn
	}
}

func New(conf *config.Config, log *logger.Logger, resolver i18n.Resolver, opts ...Option) (*Service, error) {
	if conf == nil {
		return nil, fmt.Errorf("config is required")
	}
	bus, err := geobus.New(log)
	if err != nil {
		return nil, fmt.Errorf("failed to create geobus: %w", err)
	}

	clock := clockwork.NewRealClock()
	scheduler, err := gocron.NewScheduler(gocron.WithClock(clock), gocron.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	tag := i18n.Tag(conf.Locale)
	humanizer, err := i18n.NewHumanizer(tag)
	if err != nil {
		return nil, fmt.Errorf("failed to create humanizer: %w", err)
	}
	tpls, err := template.New(conf, resolver, humanizer)
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	service := &Service{
		clock:      clock,
		config:     conf,
		connectBus: func() (*dbus.Conn, error) { return dbus.ConnectSystemBus() },
		geobus:     bus,
		logger:     log,
		output:     os.Stdout,
		presenter:  &presenter.Presenter{},
		scheduler:  scheduler,
		signals:    stdLibSignalSource{},
		templates:  tpls,
	}

	service.geocoder, err = service.selectGeocoder(tag)
	if err != nil {
		return nil, fmt.Errorf("failed to create geocode provider: %w", err)
	}

	method, err := prayer.ParseLocationMethod(conf.Location.Method)
	if err != nil {
		return nil, err
	}
	provider, err := service.selectTimingsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to create prayer times provider: %w", err)
	}
	widgetOpts := []widget.Option{
		widget.WithGate(debounce.New(conf.Timings.DebounceWindow, debounce.WithClock(clock))),
		widget.WithLocation(prayer.Location{Method: method, City: conf.Location.City, Country: conf.Location.Country}),
	}
	if conf.GeolocationEnabled() {
		providers, err := service.selectGeobusProviders()
		if err != nil {
			return nil, fmt.Errorf("failed to create geobus orchestrator: %w", err)
		}
		service.orchestrator = bus.NewOrchestrator(providers)
		widgetOpts = append(widgetOpts, widget.WithLocator(widget.OrchestratorLocator{
			Orchestrator: service.orchestrator,
			Key:          DesktopID,
			Timeout:      conf.Intervals.GeolocationTimeout,
		}))
	}

	service.widget, err = widget.New(provider, resolver, log, widgetOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create prayer times widget: %w", err)
	}
	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

func (s *Service) Run(ctx context.Context) error {
	// Start scheduled jobs
	if err := s.createScheduledJob(ctx, gocron.DurationJob(s.config.Intervals.Refresh), s.refresh,
		"prayertimes_refresh_job"); err != nil {
		return err
	}
	daily := gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(dailyRefreshHour, dailyRefreshMinute, 0)))
	if err := s.createScheduledJob(ctx, daily, s.refresh, "prayertimes_daily_job"); err != nil {
		return err
	}
	s.scheduler.Start()

	// Print on every state change of the widget
	sub, unsub := s.widget.Subscribe()
	defer unsub()
	go s.processStateUpdates(ctx, sub)

	// Re-print periodically so that relative times advance
	go job.New(s.config.Intervals.Output, s.printTimings, job.WithClock(s.clock)).Start(ctx)

	// Signal handling
	altChan := make(chan os.Signal, 1)
	s.signals.Notify(altChan, syscall.SIGUSR1)
	defer s.signals.Stop(altChan)
	go s.HandleAltTextToggleSignal(ctx, altChan)

	refreshChan := make(chan os.Signal, 1)
	s.signals.Notify(refreshChan, syscall.SIGUSR2)
	defer s.signals.Stop(refreshChan)
	go s.HandleRefreshSignal(ctx, refreshChan)

	reloadChan := make(chan os.Signal, 1)
	s.signals.Notify(reloadChan, syscall.SIGHUP)
	defer s.signals.Stop(reloadChan)
	go s.HandleReloadSignal(ctx, reloadChan)

	toggleChan := make(chan os.Signal, 1)
	s.signals.Notify(toggleChan, SigToggleLocation)
	defer s.signals.Stop(toggleChan)
	go s.HandleLocationToggleSignal(ctx, toggleChan)

	go s.monitorSleepResume(ctx)

	// Initial output and fetch
	s.printTimings(ctx)
	go s.widget.Start(ctx)

	// Wait for the context to cancel
	<-ctx.Done()
	return s.scheduler.Shutdown()
}

func (s *Service) createScheduledJob(ctx context.Context, definition gocron.JobDefinition,
	task func(context.Context), jobName string,
) error {
	_, err := s.scheduler.NewJob(
		definition,
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	return nil
}

// refresh fetches the prayer times for the current location.
func (s *Service) refresh(ctx context.Context) {
	if _, ok := s.widget.FetchTimings(ctx); !ok {
		s.logger.Debug("prayer times refresh suppressed", slog.Duration("window", s.widget.DebounceWindow()))
	}
}

// reloadLocation re-reads the configuration and applies its location to the widget.
func (s *Service) reloadLocation(ctx context.Context) {
	if s.loadConfig == nil {
		s.logger.Warn("configuration reload is not supported")
		return
	}
	conf, err := s.loadConfig()
	if err != nil {
		s.logger.Error("failed to reload configuration", logger.Err(err))
		return
	}
	method, err := prayer.ParseLocationMethod(conf.Location.Method)
	if err != nil {
		s.logger.Error("failed to reload configuration", logger.Err(err))
		return
	}

	s.widget.SetCity(conf.Location.City)
	s.widget.SetCountry(conf.Location.Country)
	s.logger.Info("location reloaded", slog.String("city", conf.Location.City),
		slog.String("country", conf.Location.Country), slog.String("method", string(method)))

	if method != s.widget.State().Location.Method {
		s.switchLocationMethod(ctx, method)
		return
	}
	s.refresh(ctx)
}

// toggleLocationMethod switches between city and current location mode.
func (s *Service) toggleLocationMethod(ctx context.Context) {
	method := prayer.MethodCurrentLocation
	if s.widget.State().Location.Method == prayer.MethodCurrentLocation {
		method = prayer.MethodCity
	}
	s.switchLocationMethod(ctx, method)
}

// switchLocationMethod selects method on the widget. The configured city is fetched when the
// device location cannot be acquired.
func (s *Service) switchLocationMethod(ctx context.Context, method prayer.LocationMethod) {
	s.logger.Debug("switching location method", slog.String("method", string(method)))
	err := s.widget.SwitchLocationMethod(ctx, method)
	if err == nil && method == prayer.MethodCurrentLocation {
		return
	}
	if err != nil {
		s.logger.Warn("using the configured city instead of the device location", logger.Err(err))
	}
	s.refresh(ctx)
}

// processStateUpdates prints the widget on every state change. When the device location changed
// it is reverse geocoded and the widget is printed again with the resolved address.
func (s *Service) processStateUpdates(ctx context.Context, sub <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub:
			if !ok {
				return
			}
			s.printTimings(ctx)
			if s.updateAddress(ctx) {
				s.printTimings(ctx)
			}
		}
	}
}

// updateAddress reverse geocodes the device location if it changed since the last lookup. It
// reports whether a new address was stored.
func (s *Service) updateAddress(ctx context.Context) bool {
	if s.geocoder == nil {
		return false
	}
	loc := s.widget.State().Location
	if !loc.UseCoordinates() {
		return false
	}
	coord := geobus.Coordinate{Lat: loc.Latitude.Value(), Lon: loc.Longitude.Value(), Found: true}

	s.addressLock.RLock()
	known := s.addressCoord
	s.addressLock.RUnlock()
	if known.Found && !known.PosHasSignificantChange(coord) {
		return false
	}

	address, err := s.geocoder.Reverse(ctx, coord)
	if err != nil {
		s.logger.Error("failed to reverse geocode coordinates", logger.Err(err),
			slog.String("source", s.geocoder.Name()))
		return false
	}

	s.addressLock.Lock()
	s.address = address
	s.addressCoord = coord
	s.addressLock.Unlock()
	s.logger.Debug("address successfully resolved", slog.String("address", address.DisplayName),
		slog.Bool("cache_hit", address.CacheHit))
	return true
}

// printTimings renders the widget and writes a single line of waybar JSON output.
func (s *Service) printTimings(context.Context) {
	view := s.widget.View()

	s.addressLock.RLock()
	address := s.address
	s.addressLock.RUnlock()

	tplCtx := s.presenter.BuildContext(view, address, s.clock.Now())
	rendered, err := s.templates.Render(tplCtx)
	if err != nil {
		s.logger.Error("failed to render prayer times template", logger.Err(err))
		return
	}

	s.displayAltLock.RLock()
	text := rendered.Text
	if s.displayAltText {
		text = rendered.AltText
	}
	s.displayAltLock.RUnlock()

	output := outputData{
		Text:    text,
		Alt:     strings.ToLower(tplCtx.Next.Name),
		Tooltip: rendered.Tooltip,
		Classes: []string{OutputClass},
	}
	if view.Loading {
		output.Classes = append(output.Classes, LoadingOutputClass)
	}
	if view.Error != "" || view.LocationError != "" {
		output.Classes = append(output.Classes, ErrorOutputClass)
	}

	s.outputLock.Lock()
	defer s.outputLock.Unlock()
	if err = json.NewEncoder(s.output).Encode(output); err != nil {
		s.logger.Error("failed to encode prayer times output", logger.Err(err))
	}
}
