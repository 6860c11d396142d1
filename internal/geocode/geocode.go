// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"context"
	"strings"

	"github.com/wneessen/waybar-prayertimes/internal/geobus"
)

// Address is the place a coordinate resolved to.
type Address struct {
	AddressFound bool
	CacheHit     bool
	Latitude     float64
	Longitude    float64
	DisplayName  string
	Country      string
	CountryCode  string
	State        string
	City         string
	Suburb       string
}

// Geocoder resolves coordinates into an Address.
type Geocoder interface {
	Name() string
	Reverse(ctx context.Context, coords geobus.Coordinate) (Address, error)
}

// Place returns a short "City, Country" label. Missing parts are left out.
func (a Address) Place() string {
	if !a.AddressFound {
		return ""
	}
	parts := make([]string, 0, 2)
	switch {
	case a.City != "":
		parts = append(parts, a.City)
	case a.State != "":
		parts = append(parts, a.State)
	}
	if a.Country != "" {
		parts = append(parts, a.Country)
	}
	return strings.Join(parts, ", ")
}
