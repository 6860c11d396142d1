// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package prayer holds the domain types of the prayer times widget and the pure state reducer
// that drives it.
package prayer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vorlif/spreak/localize"

	"github.com/wneessen/waybar-prayertimes/internal/vartype"
)

// LocationMethod selects how the location for a timings request is determined.
type LocationMethod string

const (
	MethodCity            LocationMethod = "city"
	MethodCurrentLocation LocationMethod = "current_location"
)

// Names of the five daily prayers as returned by the timings API.
const (
	Fajr    = "Fajr"
	Dhuhr   = "Dhuhr"
	Asr     = "Asr"
	Maghrib = "Maghrib"
	Isha    = "Isha"
)

// User-facing messages. They are message IDs for the localizer, the widget resolves them.
const (
	MsgRequestFailed   localize.MsgID = "There was an error processing your request."
	MsgTooManyRequests localize.MsgID = "You have made too many requests. Please try again in a few minutes."
	MsgShareLocation   localize.MsgID = "Please share your location in order to use your current location for prayer times."
)

var (
	// ErrRateLimited is returned by a Provider when the remote API throttled the request.
	ErrRateLimited = errors.New("rate limited by prayer times API")
	// ErrRequestFailed is returned by a Provider for every other failed request.
	ErrRequestFailed = errors.New("prayer times request failed")
)

// Provider is implemented by each prayer times API backend.
type Provider interface {
	Name() string
	GetTimings(ctx context.Context, loc Location) (*Data, error)
}

// ParseLocationMethod parses a location method as used in the configuration.
func ParseLocationMethod(val string) (LocationMethod, error) {
	switch LocationMethod(strings.ToLower(val)) {
	case MethodCity:
		return MethodCity, nil
	case MethodCurrentLocation:
		return MethodCurrentLocation, nil
	default:
		return "", fmt.Errorf("unsupported location method: %q", val)
	}
}

// Location is either a city/country pair or a pair of device coordinates. Method selects which
// of them is active.
type Location struct {
	Method    LocationMethod
	City      string
	Country   string
	Latitude  vartype.VarFloat64
	Longitude vartype.VarFloat64
}

// UseCoordinates reports whether a request for this Location should be coordinate based.
func (l Location) UseCoordinates() bool {
	return l.Method == MethodCurrentLocation && l.Latitude.IsSet() && l.Longitude.IsSet()
}

// Timings are the times of a single day as "HH:MM" strings.
type Timings struct {
	Imsak    string `json:"Imsak"`
	Fajr     string `json:"Fajr"`
	Sunrise  string `json:"Sunrise"`
	Dhuhr    string `json:"Dhuhr"`
	Asr      string `json:"Asr"`
	Sunset   string `json:"Sunset"`
	Maghrib  string `json:"Maghrib"`
	Isha     string `json:"Isha"`
	Midnight string `json:"Midnight"`
}

// Prayer is a single named prayer time.
type Prayer struct {
	Name string
	Time string
}

// Prayers returns the five daily prayers in order.
func (t Timings) Prayers() []Prayer {
	return []Prayer{
		{Name: Fajr, Time: t.Fajr},
		{Name: Dhuhr, Time: t.Dhuhr},
		{Name: Asr, Time: t.Asr},
		{Name: Maghrib, Time: t.Maghrib},
		{Name: Isha, Time: t.Isha},
	}
}

// IsEmpty reports whether no prayer time is known.
func (t Timings) IsEmpty() bool {
	for _, p := range t.Prayers() {
		if p.Time != "" {
			return false
		}
	}
	return true
}

// Meta describes the day and place a set of Timings belongs to.
type Meta struct {
	Timezone  string
	Date      string
	HijriDate string
	Method    string
	Latitude  float64
	Longitude float64
}

// Data is what a Provider returns for a successful request.
type Data struct {
	Timings Timings
	Meta    Meta
}

// Result is the request state of the widget: the last fetched timings, the message of the last
// failure and whether a request is in flight.
type Result struct {
	Data    Timings
	Meta    Meta
	Error   localize.MsgID
	Loading bool
}

// ErrorMessage maps a Provider error onto the user-facing message.
func ErrorMessage(err error) localize.MsgID {
	if errors.Is(err, ErrRateLimited) {
		return MsgTooManyRequests
	}
	return MsgRequestFailed
}
