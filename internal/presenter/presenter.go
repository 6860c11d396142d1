// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"fmt"
	"strings"
	"time"

	"github.com/nathan-osman/go-sunrise"
	"github.com/wneessen/go-moonphase"

	"github.com/wneessen/waybar-prayertimes/internal/geocode"
	"github.com/wneessen/waybar-prayertimes/internal/prayer"
	"github.com/wneessen/waybar-prayertimes/internal/widget"
)

// PrayerView is a prayer with its time resolved to today in the timezone of the timings.
type PrayerView struct {
	Name string
	Time time.Time
	Next bool
}

// TemplateContext is what the text, alt text and tooltip templates are executed with.
type TemplateContext struct {
	Place     string
	Latitude  float64
	Longitude float64
	Address   geocode.Address

	Date      string
	HijriDate string
	Method    string
	Timezone  string

	Prayers []PrayerView
	Next    PrayerView

	SunriseTime   time.Time
	SunsetTime    time.Time
	MoonPhase     string
	MoonPhaseIcon string

	UpdateTime    time.Time
	Loading       bool
	Error         string
	LocationError string
}

type Presenter struct{}

// BuildContext projects the widget view onto the template context at time now.
func (p *Presenter) BuildContext(view widget.View, addr geocode.Address, now time.Time) TemplateContext {
	loc := timezone(view.Meta.Timezone, now.Location())
	today := now.In(loc)

	ctx := TemplateContext{
		Place:         place(view, addr),
		Latitude:      view.Meta.Latitude,
		Longitude:     view.Meta.Longitude,
		Address:       addr,
		Date:          view.Meta.Date,
		HijriDate:     view.Meta.HijriDate,
		Method:        view.Meta.Method,
		Timezone:      loc.String(),
		UpdateTime:    now,
		Loading:       view.Loading,
		Error:         view.Error,
		LocationError: view.LocationError,
	}

	for _, pr := range view.Timings.Prayers() {
		t, ok := clockTime(pr.Time, today)
		if !ok {
			continue
		}
		ctx.Prayers = append(ctx.Prayers, PrayerView{Name: pr.Name, Time: t})
	}
	ctx.Next = p.nextPrayer(ctx.Prayers, now)

	ctx.SunriseTime, ctx.SunsetTime = p.sunTimes(view, today)

	m := moonphase.New(now)
	ctx.MoonPhase = m.PhaseName()
	ctx.MoonPhaseIcon = MoonPhaseIcon[ctx.MoonPhase]

	return ctx
}

// nextPrayer marks and returns the first prayer after now. After Isha that is tomorrow's Fajr.
func (p *Presenter) nextPrayer(prayers []PrayerView, now time.Time) PrayerView {
	if len(prayers) == 0 {
		return PrayerView{}
	}
	for i := range prayers {
		if prayers[i].Time.After(now) {
			prayers[i].Next = true
			return prayers[i]
		}
	}
	prayers[0].Next = true
	next := prayers[0]
	next.Time = next.Time.AddDate(0, 0, 1)
	return next
}

// sunTimes computes sunrise and sunset for the coordinates the API resolved. Without coordinates
// the times reported by the API are used.
func (p *Presenter) sunTimes(view widget.View, today time.Time) (time.Time, time.Time) {
	if view.Meta.Latitude != 0 || view.Meta.Longitude != 0 {
		rise, set := sunrise.SunriseSunset(view.Meta.Latitude, view.Meta.Longitude, today.Year(), today.Month(),
			today.Day())
		if !rise.IsZero() && !set.IsZero() {
			return rise.In(today.Location()), set.In(today.Location())
		}
	}
	rise, _ := clockTime(view.Timings.Sunrise, today)
	set, _ := clockTime(view.Timings.Sunset, today)
	return rise, set
}

// clockTime parses an "HH:MM" time as returned by the API onto the day of ref. A trailing
// timezone abbreviation like " (BST)" is ignored.
func clockTime(val string, ref time.Time) (time.Time, bool) {
	val, _, _ = strings.Cut(strings.TrimSpace(val), " ")
	if val == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("15:04", val)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(ref.Year(), ref.Month(), ref.Day(), t.Hour(), t.Minute(), 0, 0, ref.Location()), true
}

func timezone(name string, fallback *time.Location) *time.Location {
	if name == "" {
		return fallback
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fallback
	}
	return loc
}

func place(view widget.View, addr geocode.Address) string {
	if view.Location.Method == prayer.MethodCurrentLocation {
		if p := addr.Place(); p != "" {
			return p
		}
		if view.Location.UseCoordinates() {
			return fmt.Sprintf("%.4f, %.4f", view.Location.Latitude.Value(), view.Location.Longitude.Value())
		}
	}
	parts := make([]string, 0, 2)
	for _, s := range []string{view.Location.City, view.Location.Country} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}
