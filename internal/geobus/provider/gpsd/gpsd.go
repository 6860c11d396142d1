// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"context"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/waybar-prayertimes/internal/geobus"
)

const (
	name        = "gpsd"
	defaultHost = "localhost"
	defaultPort = "2947"
)

// watchFunc streams fixes into the given channel until the connection ends or ctx is done.
type watchFunc func(ctx context.Context, fixes chan<- geobus.Coordinate) error

// GeolocationGPSDProvider reads position reports from a local gpsd daemon.
type GeolocationGPSDProvider struct {
	name    string
	addr    string
	period  time.Duration
	ttl     time.Duration
	watchFn watchFunc
}

func NewGeolocationGPSDProvider() *GeolocationGPSDProvider {
	provider := &GeolocationGPSDProvider{
		name:   name,
		addr:   net.JoinHostPort(defaultHost, defaultPort),
		period: time.Second * 30,
		ttl:    time.Minute * 10,
	}
	provider.watchFn = provider.watch
	return provider
}

func (p *GeolocationGPSDProvider) Name() string {
	return p.name
}

// LookupStream emits a result for the first fix and for every fix that moved significantly.
// Lost connections to gpsd are re-established once per period.
func (p *GeolocationGPSDProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)
	fixes := make(chan geobus.Coordinate, 1)

	go func() {
		for {
			_ = p.watchFn(ctx, fixes)
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.period):
			}
		}
	}()

	go func() {
		defer close(out)
		state := geobus.GeolocationState{}
		for {
			select {
			case <-ctx.Done():
				return
			case coord := <-fixes:
				if !state.HasChanged(coord) {
					continue
				}
				state.Update(coord)
				select {
				case <-ctx.Done():
					return
				case out <- geobus.NewResult(key, p.name, coord, p.ttl):
				}
			}
		}
	}()
	return out
}

func (p *GeolocationGPSDProvider) watch(ctx context.Context, fixes chan<- geobus.Coordinate) error {
	session, err := gpsd.Dial(p.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to gpsd at %q: %w", p.addr, err)
	}
	session.AddFilter("TPV", func(r interface{}) {
		tpv, ok := r.(*gpsd.TPVReport)
		if !ok {
			return
		}
		coord, ok := coordinateFromTPV(tpv)
		if !ok {
			return
		}
		select {
		case fixes <- coord:
		default:
		}
	})

	done := session.Watch()
	select {
	case <-ctx.Done():
	case <-done:
	}
	return nil
}

// coordinateFromTPV converts a TPV report into a coordinate. Reports without at least a 2D
// fix are rejected. The accuracy is the larger of the horizontal error estimates.
func coordinateFromTPV(tpv *gpsd.TPVReport) (geobus.Coordinate, bool) {
	if tpv == nil || tpv.Mode < gpsd.Mode2D {
		return geobus.Coordinate{}, false
	}
	coord := geobus.Coordinate{
		Lat:   geobus.Truncate(tpv.Lat, geobus.TruncPrecision),
		Lon:   geobus.Truncate(tpv.Lon, geobus.TruncPrecision),
		Acc:   math.Max(tpv.Epx, tpv.Epy),
		Found: true,
	}
	if coord.Acc <= 0 {
		coord.Acc = geobus.AccuracyZip
	}
	return coord, coord.Valid()
}
