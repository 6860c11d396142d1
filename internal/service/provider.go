// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/wneessen/waybar-prayertimes/internal/config"
	"github.com/wneessen/waybar-prayertimes/internal/geobus"
	"github.com/wneessen/waybar-prayertimes/internal/geobus/provider/geoapi"
	"github.com/wneessen/waybar-prayertimes/internal/geobus/provider/geoip"
	"github.com/wneessen/waybar-prayertimes/internal/geobus/provider/geolocation_file"
	"github.com/wneessen/waybar-prayertimes/internal/geobus/provider/gpsd"
	"github.com/wneessen/waybar-prayertimes/internal/geobus/provider/ichnaea"
	"github.com/wneessen/waybar-prayertimes/internal/geocode"
	nominatim "github.com/wneessen/waybar-prayertimes/internal/geocode/provider/osm-nominatim"
	"github.com/wneessen/waybar-prayertimes/internal/http"
	"github.com/wneessen/waybar-prayertimes/internal/logger"
	"github.com/wneessen/waybar-prayertimes/internal/prayer"
	"github.com/wneessen/waybar-prayertimes/internal/prayer/provider/aladhan"
)

func (s *Service) selectGeobusProviders() ([]geobus.Provider, error) {
	httpClient := http.New(s.logger)
	var provider []geobus.Provider

	if !s.config.GeoLocation.DisableGeolocationFile {
		provider = append(provider, geolocation_file.NewGeolocationFileProvider(s.config.GeoLocation.File))
	}

	if !s.config.GeoLocation.DisableGPSD {
		provider = append(provider, gpsd.NewGeolocationGPSDProvider())
	}

	if !s.config.GeoLocation.DisableGeoIP {
		gip, err := geoip.NewGeolocationGeoIPProvider(httpClient)
		if err != nil {
			return nil, fmt.Errorf("failed to create GeoIP provider: %w", err)
		}
		provider = append(provider, gip)
	}

	if !s.config.GeoLocation.DisableGeoAPI {
		gap, err := geoapi.NewGeolocationGeoAPIProvider(httpClient)
		if err != nil {
			return nil, fmt.Errorf("failed to create GeoAPI provider: %w", err)
		}
		provider = append(provider, gap)
	}

	if !s.config.GeoLocation.DisableICHNAEA {
		mls, err := ichnaea.NewGeolocationICHNAEAProvider(httpClient)
		if err != nil {
			s.logger.Error("failed to create ICHNAEA provider", logger.Err(err))
		} else {
			provider = append(provider, mls)
		}
	}
	if len(provider) == 0 {
		return nil, fmt.Errorf("no geolocation providers enabled")
	}

	return provider, nil
}

// selectGeocoder returns the reverse geocoder for the resolved address in the tooltip. A
// disabled geocoder yields nil.
func (s *Service) selectGeocoder(lang language.Tag) (geocode.Geocoder, error) {
	if s.config.GeoCoder.Disable {
		return nil, nil
	}
	coder, err := nominatim.New(http.New(s.logger), lang)
	if err != nil {
		return nil, fmt.Errorf("failed to create Nominatim geocoder: %w", err)
	}
	return geocode.NewCachedGeocoder(coder, cacheHitTTL, cacheMissTTL), nil
}

func (s *Service) selectTimingsProvider() (provider prayer.Provider, err error) {
	switch strings.ToLower(s.config.Timings.Provider) {
	case config.ProviderAladhan:
		provider, err = aladhan.New(http.New(s.logger), s.logger, s.config.Timings.Endpoint,
			s.config.Timings.Method)
		if err != nil {
			return provider, fmt.Errorf("failed to create Aladhan prayer times provider: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported prayer times provider: %s", s.config.Timings.Provider)
	}
	return provider, nil
}
