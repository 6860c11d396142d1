// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/waybar-prayertimes/internal/geobus"
	"github.com/wneessen/waybar-prayertimes/internal/http"
)

const (
	apiEndpoint   = "https://reallyfreegeoip.org/json/"
	lookupTimeout = time.Second * 5
	name          = "geoip"
)

// GeolocationGeoIPProvider locates the device by its public IP address.
type GeolocationGeoIPProvider struct {
	name     string
	endpoint string
	http     *http.Client
	period   time.Duration
	ttl      time.Duration
	locateFn geobus.LocateFunc
}

type APIResult struct {
	IP          string  `json:"ip"`
	CountryCode string  `json:"country_code"`
	Country     string  `json:"country_name"`
	RegionCode  string  `json:"region_code,omitempty"`
	Region      string  `json:"region_name,omitempty"`
	City        string  `json:"city,omitempty"`
	ZipCode     string  `json:"zip_code,omitempty"`
	TimeZone    string  `json:"time_zone"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

func NewGeolocationGeoIPProvider(client *http.Client) (*GeolocationGeoIPProvider, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	provider := &GeolocationGeoIPProvider{
		name:     name,
		endpoint: apiEndpoint,
		http:     client,
		period:   time.Minute * 30,
		ttl:      time.Hour,
	}
	provider.locateFn = provider.locate
	return provider, nil
}

func (p *GeolocationGeoIPProvider) Name() string {
	return p.name
}

func (p *GeolocationGeoIPProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	return geobus.PollStream(ctx, key, p.name, p.period, p.ttl, p.locateFn)
}

func (p *GeolocationGeoIPProvider) locate(ctx context.Context) (geobus.Coordinate, error) {
	ctxHttp, cancelHttp := context.WithTimeout(ctx, lookupTimeout)
	defer cancelHttp()

	result := new(APIResult)
	if _, err := p.http.Get(ctxHttp, p.endpoint, result, nil, nil); err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}
	if result.Latitude == 0 && result.Longitude == 0 {
		return geobus.Coordinate{}, geobus.ErrNoLocation
	}

	return geobus.Coordinate{
		Lat:   geobus.Truncate(result.Latitude, geobus.TruncPrecision),
		Lon:   geobus.Truncate(result.Longitude, geobus.TruncPrecision),
		Acc:   geobus.PlaceAccuracy(result.CountryCode, result.RegionCode, result.City, result.ZipCode),
		Found: true,
	}, nil
}
