// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package aladhan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/waybar-prayertimes/internal/logger"
	"github.com/wneessen/waybar-prayertimes/internal/prayer"

	httpclient "github.com/wneessen/waybar-prayertimes/internal/http"
)

const (
	name = "aladhan"

	// DefaultEndpoint is the base URL of the public Aladhan API.
	DefaultEndpoint = "https://api.aladhan.com"
	// DefaultMethod is the calculation method used for all requests (8 = Gulf Region).
	DefaultMethod = 8

	pathByCity        = "/v1/timingsByCity"
	pathByCoordinates = "/v1/timings"
	apiTimeout        = time.Second * 10
)

// Aladhan is a prayer.Provider for the api.aladhan.com timings API.
type Aladhan struct {
	endpoint string
	method   int
	http     *httpclient.Client
	log      *logger.Logger
}

type response struct {
	Code   int             `json:"code"`
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type responseData struct {
	Timings prayer.Timings `json:"timings"`
	Date    struct {
		Readable string `json:"readable"`
		Hijri    struct {
			Day   string `json:"day"`
			Month struct {
				En string `json:"en"`
			} `json:"month"`
			Year        string `json:"year"`
			Designation struct {
				Abbreviated string `json:"abbreviated"`
			} `json:"designation"`
		} `json:"hijri"`
	} `json:"date"`
	Meta struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Timezone  string  `json:"timezone"`
		Method    struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		} `json:"method"`
	} `json:"meta"`
}

// New returns an Aladhan provider. An empty endpoint selects DefaultEndpoint.
func New(client *httpclient.Client, log *logger.Logger, endpoint string, method int) (*Aladhan, error) {
	if client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid API endpoint %q: %w", endpoint, err)
	}

	return &Aladhan{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		method:   method,
		http:     client,
		log:      log,
	}, nil
}

func (a *Aladhan) Name() string {
	return name
}

// RequestURL returns the API URL for loc. Coordinates are used in current-location mode once
// they are known, the city/country pair otherwise.
func (a *Aladhan) RequestURL(loc prayer.Location) (string, url.Values) {
	query := url.Values{}
	query.Set("method", strconv.Itoa(a.method))
	if loc.UseCoordinates() {
		query.Set("latitude", strconv.FormatFloat(loc.Latitude.Value(), 'f', -1, 64))
		query.Set("longitude", strconv.FormatFloat(loc.Longitude.Value(), 'f', -1, 64))
		return a.endpoint + pathByCoordinates, query
	}
	query.Set("city", loc.City)
	query.Set("country", loc.Country)
	return a.endpoint + pathByCity, query
}

// GetTimings fetches today's timings for loc. Throttled requests return an error wrapping
// prayer.ErrRateLimited, every other failure wraps prayer.ErrRequestFailed.
func (a *Aladhan) GetTimings(ctx context.Context, loc prayer.Location) (*prayer.Data, error) {
	endpoint, query := a.RequestURL(loc)
	res := new(response)

	status, err := a.http.GetWithTimeout(ctx, endpoint, res, query, nil, apiTimeout)
	if status == http.StatusTooManyRequests || res.Code == http.StatusTooManyRequests {
		return nil, prayer.ErrRateLimited
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", prayer.ErrRequestFailed, err)
	}
	if status != http.StatusOK || res.Code != http.StatusOK {
		a.log.Debug("prayer times API returned an error", slog.Int("status", status),
			slog.Int("code", res.Code), slog.String("message", string(res.Data)))
		return nil, fmt.Errorf("%w: API returned status %d with code %d", prayer.ErrRequestFailed, status,
			res.Code)
	}

	var payload responseData
	if err = json.Unmarshal(res.Data, &payload); err != nil {
		return nil, fmt.Errorf("%w: failed to decode timings: %w", prayer.ErrRequestFailed, err)
	}

	return &prayer.Data{
		Timings: payload.Timings,
		Meta: prayer.Meta{
			Timezone:  payload.Meta.Timezone,
			Date:      payload.Date.Readable,
			HijriDate: hijriDate(payload),
			Method:    payload.Meta.Method.Name,
			Latitude:  payload.Meta.Latitude,
			Longitude: payload.Meta.Longitude,
		},
	}, nil
}

func hijriDate(data responseData) string {
	hijri := data.Date.Hijri
	if hijri.Day == "" || hijri.Month.En == "" || hijri.Year == "" {
		return ""
	}
	abbr := hijri.Designation.Abbreviated
	if abbr == "" {
		abbr = "AH"
	}
	return fmt.Sprintf("%s %s %s %s", hijri.Day, hijri.Month.En, hijri.Year, abbr)
}
