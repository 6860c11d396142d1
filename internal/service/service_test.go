// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"testing/synctest"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/google/go-cmp/cmp"

	"github.com/wneessen/waybar-prayertimes/internal/config"
	"github.com/wneessen/waybar-prayertimes/internal/geobus"
	"github.com/wneessen/waybar-prayertimes/internal/geocode"
	"github.com/wneessen/waybar-prayertimes/internal/i18n"
	"github.com/wneessen/waybar-prayertimes/internal/logger"
	"github.com/wneessen/waybar-prayertimes/internal/prayer"
	"github.com/wneessen/waybar-prayertimes/internal/template"
	"github.com/wneessen/waybar-prayertimes/internal/widget"
)

var testTimings = &prayer.Data{
	Timings: prayer.Timings{
		Imsak:    "04:50",
		Fajr:     "05:00",
		Sunrise:  "06:41",
		Dhuhr:    "12:00",
		Asr:      "15:30",
		Sunset:   "18:40",
		Maghrib:  "18:45",
		Isha:     "20:15",
		Midnight: "00:10",
	},
	Meta: prayer.Meta{Timezone: "UTC", Date: "01 Jan 2000", Method: "Gulf Region"},
}

func TestNew(t *testing.T) {
	t.Run("new service succeeds", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		if serv.orchestrator == nil {
			t.Error("expected geobus orchestrator to be set")
		}
		if serv.geocoder == nil {
			t.Fatal("expected geocoder to be set")
		}
		want := "geocoder cache using osm-nominatim"
		if serv.geocoder.Name() != want {
			t.Errorf("expected geocoder name to be %q, got %q", want, serv.geocoder.Name())
		}
	})
	t.Run("configured location is used by the widget", func(t *testing.T) {
		serv, err := testService(t, false, func(c *config.Config) {
			c.Location.Method = "city"
			c.Location.City = "London"
			c.Location.Country = "UK"
		})
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		loc := serv.widget.State().Location
		if loc.Method != prayer.MethodCity || loc.City != "London" || loc.Country != "UK" {
			t.Errorf("unexpected widget location: %+v", loc)
		}
	})
	t.Run("disabled geocoder is not created", func(t *testing.T) {
		serv, err := testService(t, false, func(c *config.Config) {
			c.GeoCoder.Disable = true
		})
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		if serv.geocoder != nil {
			t.Errorf("expected geocoder to be nil, got %s", serv.geocoder.Name())
		}
	})
	t.Run("disabled geolocation builds a widget without locator", func(t *testing.T) {
		serv, err := testService(t, false, disableGeolocation)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		if serv.orchestrator != nil {
			t.Error("expected geobus orchestrator to be nil")
		}
		if err = serv.widget.AcquireLocation(t.Context()); !errors.Is(err, widget.ErrGeolocationDisabled) {
			t.Errorf("expected error to be %s, got %s", widget.ErrGeolocationDisabled, err)
		}
	})
	t.Run("invalid template configuration should fail", func(t *testing.T) {
		t.Setenv("WAYBARPRAYER_TEMPLATES_TEXT", "{{")
		_, err := testService(t, false)
		if err == nil {
			t.Fatal("expected service creation to fail")
		}
		wantErr := "failed to parse template"
		if !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %q", wantErr, err)
		}
	})
	t.Run("nil logger fails the geobus initialization", func(t *testing.T) {
		_, err := testService(t, true)
		if err == nil {
			t.Fatal("expected service creation to fail")
		}
		wantErr := "logger is required"
		if !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %q", wantErr, err)
		}
	})
	t.Run("unsupported prayer times provider fails", func(t *testing.T) {
		_, err := testService(t, false, func(c *config.Config) {
			c.Timings.Provider = "invalid"
		})
		if err == nil {
			t.Fatal("expected service creation to fail")
		}
		wantErr := "failed to create prayer times provider: unsupported prayer times provider: invalid"
		if !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %q", wantErr, err)
		}
	})
	t.Run("unsupported location method fails", func(t *testing.T) {
		_, err := testService(t, false, func(c *config.Config) {
			c.Location.Method = "invalid"
		})
		if err == nil {
			t.Fatal("expected service creation to fail")
		}
		wantErr := `unsupported location method: "invalid"`
		if !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %q", wantErr, err)
		}
	})
	t.Run("nil config fails", func(t *testing.T) {
		if _, err := New(nil, logger.NewLogger(slog.LevelError, io.Discard), nil); err == nil {
			t.Fatal("expected service creation to fail")
		}
	})
}

func TestService_Run(t *testing.T) {
	t.Run("start the service and gracefully shut it down", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			afterFuncCalled := false
			context.AfterFunc(ctx, func() {
				afterFuncCalled = true
			})

			serv, err := testService(t, false, cityOnly)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			provider := &mockProvider{data: testTimings}
			useWidget(t, serv, provider, widget.WithLocation(prayer.Location{
				Method: prayer.MethodCity, City: "London", Country: "UK",
			}))
			buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
			serv.output = buf

			go func() {
				if err := serv.Run(ctx); err != nil {
					t.Errorf("failed to run service: %s", err)
				}
			}()

			synctest.Wait()
			if provider.Calls() != 1 {
				t.Errorf("expected one prayer times request, got %d", provider.Calls())
			}
			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			var output outputData
			if err = json.Unmarshal([]byte(lines[len(lines)-1]), &output); err != nil {
				t.Fatalf("failed to unmarshal JSON: %s", err)
			}
			if output.Text != "Fajr 05:00" {
				t.Errorf("expected text to be %q, got %q", "Fajr 05:00", output.Text)
			}
			if output.Alt != "fajr" {
				t.Errorf("expected alt to be %q, got %q", "fajr", output.Alt)
			}

			cancel()
			synctest.Wait()
			if !afterFuncCalled {
				t.Fatalf("before context is canceled: AfterFunc not called")
			}
		})
	})
	t.Run("the output is re-printed periodically", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			serv, err := testService(t, false, cityOnly)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			useWidget(t, serv, &mockProvider{data: testTimings})
			buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
			serv.output = buf

			go func() {
				_ = serv.Run(ctx)
			}()
			synctest.Wait()
			before := strings.Count(buf.String(), "\n")

			time.Sleep(serv.config.Intervals.Output + time.Millisecond)
			synctest.Wait()
			after := strings.Count(buf.String(), "\n")
			if after != before+1 {
				t.Errorf("expected one more line of output, got %d before and %d after", before, after)
			}
			cancel()
			synctest.Wait()
		})
	})
}

func TestService_printTimings(t *testing.T) {
	t.Run("print prayer times to a buffer", func(t *testing.T) {
		t.Setenv("WAYBARPRAYER_TEMPLATES_TEXT", "text")
		t.Setenv("WAYBARPRAYER_TEMPLATES_TOOLTIP", "tooltip")

		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := bytes.NewBuffer(nil)
		serv.output = buf

		serv.printTimings(t.Context())

		var output outputData
		if err = json.Unmarshal(buf.Bytes(), &output); err != nil {
			t.Fatalf("failed to unmarshal JSON: %s", err)
		}
		if output.Text != "text" {
			t.Errorf("expected Text to be %q, got %q", "text", output.Text)
		}
		if output.Tooltip != "tooltip" {
			t.Errorf("expected Tooltip to be %q, got %q", "tooltip", output.Tooltip)
		}
		if len(output.Classes) != 1 || output.Classes[0] != OutputClass {
			t.Errorf("expected classes to be %q, got %#v", OutputClass, output.Classes)
		}
	})
	t.Run("print alt_text to a buffer", func(t *testing.T) {
		t.Setenv("WAYBARPRAYER_TEMPLATES_ALT_TEXT", "alt_text")

		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := bytes.NewBuffer(nil)
		serv.output = buf
		serv.displayAltText = true

		serv.printTimings(t.Context())

		var output outputData
		if err = json.Unmarshal(buf.Bytes(), &output); err != nil {
			t.Fatalf("failed to unmarshal JSON: %s", err)
		}
		if output.Text != "alt_text" {
			t.Errorf("expected Text to be %q, got %q", "alt_text", output.Text)
		}
	})
	t.Run("output is empty on failing writer", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		logBuf := bytes.NewBuffer(nil)
		serv.logger = logger.NewLogger(slog.LevelError, logBuf)
		serv.output = &failWriter{}
		serv.printTimings(t.Context())
		wantErr := `msg="failed to encode prayer times output" error="failed to write"`
		if !strings.Contains(logBuf.String(), wantErr) {
			t.Errorf("expected log to contain %q, got %q", wantErr, logBuf.String())
		}
	})
	t.Run("printing prayer times fails on template rendering", func(t *testing.T) {
		tests := []struct {
			name    string
			confFn  func(*config.Config)
			wantErr string
		}{
			{
				name: "text template",
				confFn: func(c *config.Config) {
					c.Templates.Text = "{{.AbsolutelyInvalid}}"
				},
				wantErr: "text template",
			},
			{
				name: "alternative text template",
				confFn: func(c *config.Config) {
					c.Templates.AltText = "{{.AbsolutelyInvalid}}"
				},
				wantErr: "alt_text template",
			},
			{
				name: "tooltip template",
				confFn: func(c *config.Config) {
					c.Templates.Tooltip = "{{.AbsolutelyInvalid}}"
				},
				wantErr: "tooltip template",
			},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				serv, err := testService(t, false)
				if err != nil {
					t.Fatalf("failed to create service: %s", err)
				}
				tc.confFn(serv.config)
				localizer, err := i18n.New("en")
				if err != nil {
					t.Fatalf("failed to create localizer: %s", err)
				}
				serv.templates, err = template.New(serv.config, localizer, mockHumanizer{})
				if err != nil {
					t.Fatalf("failed to parse templates: %s", err)
				}

				logBuf := bytes.NewBuffer(nil)
				serv.logger = logger.NewLogger(slog.LevelError, logBuf)
				buf := bytes.NewBuffer(nil)
				serv.output = buf
				serv.printTimings(t.Context())

				if buf.Len() != 0 {
					t.Errorf("expected no output, got %q", buf.String())
				}
				wantErr1 := `msg="failed to render prayer times template" error="failed to render ` + tc.wantErr
				wantErr2 := `can't evaluate field AbsolutelyInvalid in type presenter.TemplateContext`
				if !strings.Contains(logBuf.String(), wantErr1) || !strings.Contains(logBuf.String(), wantErr2) {
					t.Errorf("expected error to contain %q and %q, got %q", wantErr1, wantErr2, logBuf.String())
				}
			})
		}
	})
	t.Run("failed request adds the error class", func(t *testing.T) {
		serv, err := testService(t, false, cityOnly)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		useWidget(t, serv, &mockProvider{err: prayer.ErrRateLimited})
		serv.widget.FetchTimings(t.Context())

		buf := bytes.NewBuffer(nil)
		serv.output = buf
		serv.printTimings(t.Context())

		var output outputData
		if err = json.Unmarshal(buf.Bytes(), &output); err != nil {
			t.Fatalf("failed to unmarshal JSON: %s", err)
		}
		if !hasClass(output.Classes, ErrorOutputClass) {
			t.Errorf("expected output class %q, got %#v", ErrorOutputClass, output.Classes)
		}
		if !strings.Contains(output.Tooltip, string(prayer.MsgTooManyRequests)) {
			t.Errorf("expected tooltip to contain the throttling message, got %q", output.Tooltip)
		}
	})
	t.Run("pending request adds the loading class", func(t *testing.T) {
		serv, err := testService(t, false, cityOnly)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		started := make(chan struct{})
		release := make(chan struct{})
		useWidget(t, serv, &mockProvider{fn: func() (*prayer.Data, error) {
			close(started)
			<-release
			return testTimings, nil
		}})
		done := make(chan struct{})
		go func() {
			defer close(done)
			serv.widget.FetchTimings(t.Context())
		}()
		<-started

		buf := bytes.NewBuffer(nil)
		serv.output = buf
		serv.printTimings(t.Context())
		close(release)
		<-done

		var output outputData
		if err = json.Unmarshal(buf.Bytes(), &output); err != nil {
			t.Fatalf("failed to unmarshal JSON: %s", err)
		}
		if !hasClass(output.Classes, LoadingOutputClass) {
			t.Errorf("expected output class %q, got %#v", LoadingOutputClass, output.Classes)
		}
	})
}

func TestService_updateAddress(t *testing.T) {
	granted := func(t *testing.T, serv *Service, coder geocode.Geocoder, coord geobus.Coordinate) {
		t.Helper()
		useWidget(t, serv, &mockProvider{data: testTimings},
			widget.WithLocation(prayer.Location{Method: prayer.MethodCurrentLocation}),
			widget.WithLocator(&mockLocator{coord: coord}))
		if err := serv.widget.AcquireLocation(t.Context()); err != nil {
			t.Fatalf("failed to acquire location: %s", err)
		}
		serv.geocoder = coder
	}

	t.Run("address is resolved once per location", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		coder := &mockGeocoder{}
		granted(t, serv, coder, geobus.Coordinate{Lat: 21.4225, Lon: 39.8262, Found: true})

		if !serv.updateAddress(t.Context()) {
			t.Fatal("expected address to be updated")
		}
		if serv.updateAddress(t.Context()) {
			t.Error("expected address to not be updated for the same location")
		}
		if coder.Calls() != 1 {
			t.Errorf("expected one reverse geocoding request, got %d", coder.Calls())
		}
		want := "Test Location 21.422500,39.826200"
		if serv.address.DisplayName != want {
			t.Errorf("expected address to be %q, got %q", want, serv.address.DisplayName)
		}
	})
	t.Run("geocoder fails", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		granted(t, serv, &mockGeocoder{shouldFail: true}, geobus.Coordinate{Lat: 44.4375, Lon: 26.125, Found: true})
		logBuf := bytes.NewBuffer(nil)
		serv.logger = logger.NewLogger(slog.LevelError, logBuf)

		if serv.updateAddress(t.Context()) {
			t.Error("expected address to not be updated")
		}
		wantErr := `msg="failed to reverse geocode coordinates" error="intentionally failing" source="mock geocoder"`
		if !strings.Contains(logBuf.String(), wantErr) {
			t.Errorf("expected log to contain %q, got %q", wantErr, logBuf.String())
		}
	})
	t.Run("city mode is not geocoded", func(t *testing.T) {
		serv, err := testService(t, false, cityOnly)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		coder := &mockGeocoder{}
		serv.geocoder = coder
		if serv.updateAddress(t.Context()) {
			t.Error("expected address to not be updated")
		}
		if coder.Calls() != 0 {
			t.Errorf("expected no reverse geocoding request, got %d", coder.Calls())
		}
	})
	t.Run("disabled geocoder is skipped", func(t *testing.T) {
		serv, err := testService(t, false, func(c *config.Config) {
			c.GeoCoder.Disable = true
		})
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		if serv.updateAddress(t.Context()) {
			t.Error("expected address to not be updated")
		}
	})
}

func TestService_HandleSignals(t *testing.T) {
	t.Run("USR1 signal toggles the alt text", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			serv, err := testService(t, false, cityOnly)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
			serv.output = buf
			sigChan := make(chan os.Signal, 1)
			go serv.HandleAltTextToggleSignal(ctx, sigChan)

			sigChan <- syscall.SIGUSR1
			synctest.Wait()
			serv.displayAltLock.RLock()
			if !serv.displayAltText {
				t.Errorf("expected alt mode to be enabled, got %t", serv.displayAltText)
			}
			serv.displayAltLock.RUnlock()
			if buf.String() == "" {
				t.Error("expected output to be printed after toggle")
			}

			sigChan <- syscall.SIGUSR1
			synctest.Wait()
			serv.displayAltLock.RLock()
			if serv.displayAltText {
				t.Errorf("expected alt mode to be disabled, got %t", serv.displayAltText)
			}
			serv.displayAltLock.RUnlock()
			cancel()
			synctest.Wait()
		})
	})
	t.Run("USR2 signal refreshes the prayer times", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			serv, err := testService(t, false, cityOnly)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			provider := &mockProvider{data: testTimings}
			useWidget(t, serv, provider)
			sigChan := make(chan os.Signal, 1)
			go serv.HandleRefreshSignal(ctx, sigChan)

			sigChan <- syscall.SIGUSR2
			synctest.Wait()
			if provider.Calls() != 1 {
				t.Errorf("expected one prayer times request, got %d", provider.Calls())
			}

			// a second signal within the debounce window is suppressed
			sigChan <- syscall.SIGUSR2
			synctest.Wait()
			if provider.Calls() != 1 {
				t.Errorf("expected one prayer times request, got %d", provider.Calls())
			}

			time.Sleep(time.Second)
			sigChan <- syscall.SIGUSR2
			synctest.Wait()
			if provider.Calls() != 2 {
				t.Errorf("expected two prayer times requests, got %d", provider.Calls())
			}
			cancel()
			synctest.Wait()
		})
	})
	t.Run("signals are registered with the signal source", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			serv, err := testService(t, false, cityOnly)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			useWidget(t, serv, &mockProvider{data: testTimings})
			serv.output = io.Discard
			signals := &mockSignalSource{}
			serv.signals = signals

			go func() {
				_ = serv.Run(ctx)
			}()
			synctest.Wait()
			want := []os.Signal{syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGHUP, SigToggleLocation}
			if diff := cmp.Diff(want, signals.Registered()); diff != "" {
				t.Errorf("unexpected registered signals (-want +got):\n%s", diff)
			}
			cancel()
			synctest.Wait()
			if signals.Stopped() != len(want) {
				t.Errorf("expected %d signal channels to be stopped, got %d", len(want), signals.Stopped())
			}
		})
	})
}

func TestService_reloadLocation(t *testing.T) {
	makkah := func() (*config.Config, error) {
		conf, err := config.New()
		if err != nil {
			return nil, err
		}
		conf.Location.Method = "city"
		conf.Location.City = "Makkah"
		conf.Location.Country = "SA"
		return conf, nil
	}
	t.Run("SIGHUP applies the city of the reloaded config", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			serv, err := testService(t, false, cityOnly)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			WithConfigLoader(makkah)(serv)
			provider := &mockProvider{data: testTimings}
			useWidget(t, serv, provider, widget.WithLocation(prayer.Location{
				Method: prayer.MethodCity, City: "London", Country: "UK",
			}))
			sigChan := make(chan os.Signal, 1)
			go serv.HandleReloadSignal(ctx, sigChan)

			sigChan <- syscall.SIGHUP
			synctest.Wait()
			loc := serv.widget.State().Location
			if loc.City != "Makkah" || loc.Country != "SA" {
				t.Errorf("expected location to be Makkah, SA, got %s, %s", loc.City, loc.Country)
			}
			if provider.Calls() != 1 {
				t.Errorf("expected one prayer times request, got %d", provider.Calls())
			}
			cancel()
			synctest.Wait()
		})
	})
	t.Run("reload switching to current location acquires the device location", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			serv, err := testService(t, false, cityOnly)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			WithConfigLoader(func() (*config.Config, error) {
				conf, err := makkah()
				if err != nil {
					return nil, err
				}
				conf.Location.Method = "current_location"
				return conf, nil
			})(serv)
			provider := &mockProvider{data: testTimings}
			useWidget(t, serv, provider,
				widget.WithLocation(prayer.Location{Method: prayer.MethodCity, City: "London", Country: "UK"}),
				widget.WithLocator(&mockLocator{coord: geobus.Coordinate{Lat: 21.4225, Lon: 39.8262, Found: true}}),
			)

			serv.reloadLocation(t.Context())
			loc := serv.widget.State().Location
			if loc.Method != prayer.MethodCurrentLocation {
				t.Errorf("expected method to be %s, got %s", prayer.MethodCurrentLocation, loc.Method)
			}
			if !loc.UseCoordinates() || loc.Latitude.Value() != 21.4225 || loc.Longitude.Value() != 39.8262 {
				t.Errorf("expected device coordinates to be stored, got %+v", loc)
			}
			if provider.Calls() != 1 {
				t.Errorf("expected one prayer times request, got %d", provider.Calls())
			}
		})
	})
	t.Run("failing config loader leaves the location untouched", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			serv, err := testService(t, false, cityOnly)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			WithConfigLoader(func() (*config.Config, error) {
				return nil, errors.New("intentionally failing")
			})(serv)
			provider := &mockProvider{data: testTimings}
			useWidget(t, serv, provider, widget.WithLocation(prayer.Location{
				Method: prayer.MethodCity, City: "London", Country: "UK",
			}))

			serv.reloadLocation(t.Context())
			if loc := serv.widget.State().Location; loc.City != "London" {
				t.Errorf("expected city to stay London, got %s", loc.City)
			}
			if provider.Calls() != 0 {
				t.Errorf("expected no prayer times request, got %d", provider.Calls())
			}
		})
	})
	t.Run("reload without config loader is ignored", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			serv, err := testService(t, false, cityOnly)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			provider := &mockProvider{data: testTimings}
			useWidget(t, serv, provider)

			serv.reloadLocation(t.Context())
			if provider.Calls() != 0 {
				t.Errorf("expected no prayer times request, got %d", provider.Calls())
			}
		})
	})
}

func TestService_toggleLocationMethod(t *testing.T) {
	t.Run("toggle to current location and back to the city", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			serv, err := testService(t, false, cityOnly)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			provider := &mockProvider{data: testTimings}
			useWidget(t, serv, provider,
				widget.WithLocation(prayer.Location{Method: prayer.MethodCity, City: "London", Country: "UK"}),
				widget.WithLocator(&mockLocator{coord: geobus.Coordinate{Lat: 51.5072, Lon: -0.1276, Found: true}}),
			)
			sigChan := make(chan os.Signal, 1)
			go serv.HandleLocationToggleSignal(ctx, sigChan)

			sigChan <- SigToggleLocation
			synctest.Wait()
			loc := serv.widget.State().Location
			if loc.Method != prayer.MethodCurrentLocation || !loc.UseCoordinates() {
				t.Errorf("expected current location mode with coordinates, got %+v", loc)
			}
			if provider.Calls() != 1 {
				t.Errorf("expected one prayer times request, got %d", provider.Calls())
			}

			time.Sleep(time.Second)
			sigChan <- SigToggleLocation
			synctest.Wait()
			if method := serv.widget.State().Location.Method; method != prayer.MethodCity {
				t.Errorf("expected method to be %s, got %s", prayer.MethodCity, method)
			}
			if provider.Calls() != 2 {
				t.Errorf("expected two prayer times requests, got %d", provider.Calls())
			}
			cancel()
			synctest.Wait()
		})
	})
	t.Run("without geolocation the configured city is fetched", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			serv, err := testService(t, false, cityOnly)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			provider := &mockProvider{data: testTimings}
			useWidget(t, serv, provider, widget.WithLocation(prayer.Location{
				Method: prayer.MethodCity, City: "London", Country: "UK",
			}))
			buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
			serv.output = buf

			serv.toggleLocationMethod(t.Context())
			if provider.Calls() != 1 {
				t.Errorf("expected one prayer times request, got %d", provider.Calls())
			}
			serv.printTimings(t.Context())
			var output outputData
			if err = json.Unmarshal([]byte(buf.String()), &output); err != nil {
				t.Fatalf("failed to unmarshal JSON: %s", err)
			}
			if !hasClass(output.Classes, ErrorOutputClass) {
				t.Errorf("expected output to carry the %s class, got %v", ErrorOutputClass, output.Classes)
			}
		})
	})
}

func TestService_processSleepSignal(t *testing.T) {
	tests := []struct {
		name      string
		signal    *dbus.Signal
		wantCalls int
	}{
		{"resume triggers a refresh", &dbus.Signal{Body: []any{false}}, 1},
		{"suspend is ignored", &dbus.Signal{Body: []any{true}}, 0},
		{"unexpected body type is ignored", &dbus.Signal{Body: []any{"false"}}, 0},
		{"empty body is ignored", &dbus.Signal{}, 0},
		{"nil signal is ignored", nil, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			synctest.Test(t, func(t *testing.T) {
				serv, err := testService(t, false, cityOnly)
				if err != nil {
					t.Fatalf("failed to create service: %s", err)
				}
				provider := &mockProvider{data: testTimings}
				useWidget(t, serv, provider)

				var lastResume int64
				go serv.processSleepSignal(t.Context(), tc.signal, &lastResume)
				time.Sleep(networkWakeupDelay + time.Second)
				synctest.Wait()
				if provider.Calls() != tc.wantCalls {
					t.Errorf("expected %d prayer times requests, got %d", tc.wantCalls, provider.Calls())
				}
			})
		})
	}
	t.Run("consecutive resume events are debounced", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			serv, err := testService(t, false, cityOnly)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			logBuf := &syncBuffer{buf: bytes.NewBuffer(nil)}
			serv.logger = logger.NewLogger(slog.LevelDebug, logBuf)
			useWidget(t, serv, &mockProvider{data: testTimings})

			var lastResume int64
			resume := &dbus.Signal{Body: []any{false}}
			go serv.processSleepSignal(t.Context(), resume, &lastResume)
			go serv.processSleepSignal(t.Context(), resume, &lastResume)
			time.Sleep(networkWakeupDelay + time.Second)
			synctest.Wait()
			if got := strings.Count(logBuf.String(), "resuming from sleep"); got != 1 {
				t.Errorf("expected one resume to be handled, got %d", got)
			}
		})
	})
	t.Run("sleep monitor exits when the system bus is unavailable", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			serv, err := testService(t, false, cityOnly)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			attempts := 0
			serv.connectBus = func() (*dbus.Conn, error) {
				attempts++
				return nil, errors.New("no system bus")
			}
			done := make(chan struct{})
			go func() {
				defer close(done)
				serv.monitorSleepResume(ctx)
			}()

			time.Sleep(busReconnectDelay*2 + time.Second)
			synctest.Wait()
			if attempts != 3 {
				t.Errorf("expected 3 connection attempts, got %d", attempts)
			}
			cancel()
			<-done
		})
	})
}

func TestService_selectGeobusProviders(t *testing.T) {
	tests := []struct {
		name       string
		confFn     func(*config.Config)
		want       int
		shouldFail bool
	}{
		{
			name:   "all providers enabled",
			confFn: func(*config.Config) {},
			want:   5,
		},
		{
			name: "only geo api",
			confFn: func(c *config.Config) {
				disableGeolocation(c)
				c.GeoLocation.DisableGeoAPI = false
			},
			want: 1,
		},
		{
			name: "only geo ip",
			confFn: func(c *config.Config) {
				disableGeolocation(c)
				c.GeoLocation.DisableGeoIP = false
			},
			want: 1,
		},
		{
			name: "only geolocation file",
			confFn: func(c *config.Config) {
				disableGeolocation(c)
				c.GeoLocation.DisableGeolocationFile = false
			},
			want: 1,
		},
		{
			name: "only gpsd",
			confFn: func(c *config.Config) {
				disableGeolocation(c)
				c.GeoLocation.DisableGPSD = false
			},
			want: 1,
		},
		{
			name:       "no provider fails",
			confFn:     disableGeolocation,
			shouldFail: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			serv, err := testService(t, false)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			tc.confFn(serv.config)

			providers, err := serv.selectGeobusProviders()
			if !tc.shouldFail && err != nil {
				t.Fatalf("failed to select provider: %s", err)
			}
			if tc.shouldFail {
				if err == nil {
					t.Fatal("expected select provider to fail")
				}
				return
			}
			if len(providers) != tc.want {
				t.Errorf("expected %d providers, got %d", tc.want, len(providers))
			}
		})
	}
}

func testService(t *testing.T, nilLogger bool, confFns ...func(*config.Config)) (*Service, error) {
	t.Helper()
	conf, err := config.New()
	if err != nil {
		return nil, err
	}
	for _, fn := range confFns {
		fn(conf)
	}

	var log *logger.Logger
	if !nilLogger {
		log = logger.NewLogger(conf.LogLevel, io.Discard)
	}

	lang, err := i18n.New(conf.Locale)
	if err != nil {
		return nil, err
	}
	serv, err := New(conf, log, lang)
	if err != nil {
		return nil, err
	}
	serv.connectBus = func() (*dbus.Conn, error) {
		return nil, errors.New("system bus not available in tests")
	}
	serv.signals = &mockSignalSource{}
	t.Cleanup(func() {
		_ = serv.scheduler.Shutdown()
	})

	return serv, nil
}

// useWidget replaces the widget of the service with one that fetches from provider.
func useWidget(t *testing.T, serv *Service, provider prayer.Provider, opts ...widget.Option) {
	t.Helper()
	localizer, err := i18n.New("en")
	if err != nil {
		t.Fatalf("failed to create localizer: %s", err)
	}
	w, err := widget.New(provider, localizer, serv.logger, opts...)
	if err != nil {
		t.Fatalf("failed to create widget: %s", err)
	}
	serv.widget = w
}

func cityOnly(c *config.Config) {
	c.Locale = "en"
	c.Location.Method = "city"
	c.Location.City = "London"
	c.Location.Country = "UK"
	c.GeoCoder.Disable = true
	disableGeolocation(c)
}

func disableGeolocation(c *config.Config) {
	c.GeoLocation.DisableGeoAPI = true
	c.GeoLocation.DisableGeoIP = true
	c.GeoLocation.DisableGPSD = true
	c.GeoLocation.DisableGeolocationFile = true
	c.GeoLocation.DisableICHNAEA = true
}

func hasClass(classes []string, want string) bool {
	for _, class := range classes {
		if class == want {
			return true
		}
	}
	return false
}

type (
	failWriter     struct{}
	mockHumanizer  struct{}
	mockLocator    struct{ coord geobus.Coordinate }
	mockGeocoder   struct {
		mu         sync.Mutex
		calls      int
		shouldFail bool
	}
	mockProvider struct {
		mu    sync.Mutex
		calls int
		data  *prayer.Data
		err   error
		fn    func() (*prayer.Data, error)
	}
	mockSignalSource struct {
		mu         sync.Mutex
		registered []os.Signal
		stopped    int
	}
	syncBuffer struct {
		mu  sync.Mutex
		buf *bytes.Buffer
	}
)

func (f failWriter) Write([]byte) (int, error) { return 0, fmt.Errorf("failed to write") }

func (mockHumanizer) NaturalTime(any) string { return "soon" }

func (m *mockLocator) Locate(context.Context) (geobus.Coordinate, error) {
	return m.coord, nil
}

func (m *mockGeocoder) Name() string {
	return "mock geocoder"
}

func (m *mockGeocoder) Reverse(_ context.Context, coords geobus.Coordinate) (geocode.Address, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.shouldFail {
		return geocode.Address{}, errors.New("intentionally failing")
	}
	return geocode.Address{
		AddressFound: true,
		Latitude:     coords.Lat,
		Longitude:    coords.Lon,
		DisplayName:  fmt.Sprintf("Test Location %.6f,%.6f", coords.Lat, coords.Lon),
	}, nil
}

func (m *mockGeocoder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockProvider) Name() string {
	return "mock prayer times provider"
}

func (m *mockProvider) GetTimings(context.Context, prayer.Location) (*prayer.Data, error) {
	m.mu.Lock()
	m.calls++
	fn := m.fn
	m.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return m.data, m.err
}

func (m *mockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockSignalSource) Notify(_ chan<- os.Signal, sig ...os.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered = append(m.registered, sig...)
}

func (m *mockSignalSource) Stop(chan<- os.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped++
}

func (m *mockSignalSource) Registered() []os.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]os.Signal(nil), m.registered...)
}

func (m *mockSignalSource) Stopped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}
