// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package prayer

import (
	"github.com/vorlif/spreak/localize"
)

// State is the complete local state of a widget instance.
type State struct {
	Location      Location
	LocationError localize.MsgID
	Timings       Result

	// Sequence is the id of the most recently dispatched request.
	Sequence uint64
}

// Event is an input to Reduce.
type Event interface {
	event()
}

type (
	// CityEdited sets the city of the city/country pair.
	CityEdited struct{ City string }

	// CountryEdited sets the country of the city/country pair.
	CountryEdited struct{ Country string }

	// LocationMethodSwitched selects the active location mode.
	LocationMethodSwitched struct{ Method LocationMethod }

	// SubmitTriggered marks the dispatch of request Seq.
	SubmitTriggered struct{ Seq uint64 }

	// RequestSettled carries the outcome of request Seq. Data is only read if Err is nil.
	RequestSettled struct {
		Seq  uint64
		Data *Data
		Err  error
	}

	// GeolocationGranted stores the device coordinates.
	GeolocationGranted struct{ Lat, Lon float64 }

	// GeolocationDenied marks the device location as unavailable.
	GeolocationDenied struct{}
)

func (CityEdited) event()             {}
func (CountryEdited) event()          {}
func (LocationMethodSwitched) event() {}
func (SubmitTriggered) event()        {}
func (RequestSettled) event()         {}
func (GeolocationGranted) event()     {}
func (GeolocationDenied) event()      {}

// Reduce returns the state that follows s after ev. It has no side effects.
func Reduce(s State, ev Event) State {
	switch e := ev.(type) {
	case CityEdited:
		s.Location.City = e.City
	case CountryEdited:
		s.Location.Country = e.Country
	case LocationMethodSwitched:
		s.Location.Method = e.Method
	case SubmitTriggered:
		s.Sequence = e.Seq
		s.Timings = Result{
			Data:    s.Timings.Data,
			Meta:    s.Timings.Meta,
			Loading: true,
		}
	case RequestSettled:
		// A newer request has been dispatched, its outcome wins
		if e.Seq != s.Sequence {
			return s
		}
		if e.Err != nil || e.Data == nil {
			s.Timings.Error = ErrorMessage(e.Err)
			s.Timings.Loading = false
			return s
		}
		s.Timings = Result{
			Data: e.Data.Timings,
			Meta: e.Data.Meta,
		}
	case GeolocationGranted:
		s.Location.Latitude.Set(e.Lat)
		s.Location.Longitude.Set(e.Lon)
		s.LocationError = ""
	case GeolocationDenied:
		s.LocationError = MsgShareLocation
	}
	return s
}
