// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package nominatim

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/text/language"

	"github.com/wneessen/waybar-prayertimes/internal/geobus"
	"github.com/wneessen/waybar-prayertimes/internal/geocode"
	"github.com/wneessen/waybar-prayertimes/internal/http"
)

const (
	APIReverseEndpoint = "https://nominatim.openstreetmap.org/reverse"
	APITimeout         = time.Second * 10
	name               = "osm-nominatim"
)

type Nominatim struct {
	http     *http.Client
	lang     language.Tag
	endpoint string
}

type ReverseResult struct {
	APILat      string  `json:"lat"`
	APILon      string  `json:"lon"`
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Error       string  `json:"error"`
	Address     Address `json:"address"`
}

type Address struct {
	Suburb      string `json:"suburb"`
	City        string `json:"city"`
	Town        string `json:"town"`
	Village     string `json:"village"`
	State       string `json:"state"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
}

func New(client *http.Client, lang language.Tag) (*Nominatim, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	return &Nominatim{
		http:     client,
		lang:     lang,
		endpoint: APIReverseEndpoint,
	}, nil
}

func (n *Nominatim) Name() string {
	return name
}

// Reverse looks up the address of coords. Nominatim answers coordinates it cannot resolve
// (e.g. in the open sea) with an error message, which yields an Address that is not found.
func (n *Nominatim) Reverse(ctx context.Context, coords geobus.Coordinate) (geocode.Address, error) {
	var result ReverseResult
	var err error

	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("lat", strconv.FormatFloat(coords.Lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(coords.Lon, 'f', -1, 64))
	query.Set("zoom", "14")
	query.Set("accept-language", n.lang.String())

	if _, err = n.http.GetWithTimeout(ctx, n.endpoint, &result, query, nil, APITimeout); err != nil {
		return geocode.Address{}, fmt.Errorf("failed to fetch reverse address details from Nominatim API: %w", err)
	}
	if result.Error != "" {
		return geocode.Address{Latitude: coords.Lat, Longitude: coords.Lon}, nil
	}

	address := geocode.Address{
		AddressFound: true,
		DisplayName:  result.DisplayName,
		Country:      result.Address.Country,
		CountryCode:  result.Address.CountryCode,
		State:        result.Address.State,
		City:         result.Address.City,
		Suburb:       result.Address.Suburb,
	}
	if address.City == "" {
		address.City = result.Address.Town
	}
	if address.City == "" {
		address.City = result.Address.Village
	}
	if address.Latitude, err = strconv.ParseFloat(result.APILat, 64); err != nil {
		return geocode.Address{}, fmt.Errorf("failed to parse latitude from Nominatim API response: %w", err)
	}
	if address.Longitude, err = strconv.ParseFloat(result.APILon, 64); err != nil {
		return geocode.Address{}, fmt.Errorf("failed to parse longitude from Nominatim API response: %w", err)
	}

	return address, nil
}
