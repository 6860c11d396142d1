// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoapi

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/wneessen/waybar-prayertimes/internal/geobus"
	"github.com/wneessen/waybar-prayertimes/internal/http"
)

const (
	apiEndpoint   = "https://geoapi.info/api/geo"
	lookupTimeout = time.Second * 5
	name          = "geoapi"
)

// GeolocationGeoAPIProvider locates the device through the geoapi.info IP lookup.
type GeolocationGeoAPIProvider struct {
	name     string
	endpoint string
	http     *http.Client
	period   time.Duration
	ttl      time.Duration
	locateFn geobus.LocateFunc
}

// APIResult is the geoapi.info response. Coordinates are sent as strings.
type APIResult struct {
	IP       string `json:"ip"`
	Location struct {
		CountryCode string `json:"country,omitempty"`
		Country     string `json:"countryName,omitempty"`
		Region      string `json:"region,omitempty"`
		City        string `json:"city,omitempty"`
		ZipCode     string `json:"postalCode,omitempty"`
		TimeZone    string `json:"timezone"`
		Coordinates struct {
			Latitude  string `json:"latitude"`
			Longitude string `json:"longitude"`
		} `json:"coordinates"`
	} `json:"location"`
}

func NewGeolocationGeoAPIProvider(client *http.Client) (*GeolocationGeoAPIProvider, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	provider := &GeolocationGeoAPIProvider{
		name:     name,
		endpoint: apiEndpoint,
		http:     client,
		period:   time.Minute * 10,
		ttl:      time.Hour * 2,
	}
	provider.locateFn = provider.locate
	return provider, nil
}

func (p *GeolocationGeoAPIProvider) Name() string {
	return p.name
}

func (p *GeolocationGeoAPIProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	return geobus.PollStream(ctx, key, p.name, p.period, p.ttl, p.locateFn)
}

func (p *GeolocationGeoAPIProvider) locate(ctx context.Context) (geobus.Coordinate, error) {
	ctxHttp, cancelHttp := context.WithTimeout(ctx, lookupTimeout)
	defer cancelHttp()

	result := new(APIResult)
	if _, err := p.http.Get(ctxHttp, p.endpoint, result, nil, nil); err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}

	loc := result.Location
	lat, err := strconv.ParseFloat(loc.Coordinates.Latitude, 64)
	if err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to parse latitude from API response: %w", err)
	}
	lon, err := strconv.ParseFloat(loc.Coordinates.Longitude, 64)
	if err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to parse longitude from API response: %w", err)
	}

	return geobus.Coordinate{
		Lat:   geobus.Truncate(lat, geobus.TruncPrecision),
		Lon:   geobus.Truncate(lon, geobus.TruncPrecision),
		Acc:   geobus.PlaceAccuracy(loc.CountryCode, loc.Region, loc.City, loc.ZipCode),
		Found: true,
	}, nil
}
