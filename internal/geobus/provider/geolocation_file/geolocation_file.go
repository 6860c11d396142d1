// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geolocation_file

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/waybar-prayertimes/internal/geobus"
)

const name = "geolocation_file"

// Accuracy is the accuracy we assume for coordinates the user put into the file.
const Accuracy = 5

var ErrNoCoordinates = errors.New("no valid coordinates found in geolocation file")

// GeolocationFileProvider reads "lat,lon" from a local file. Empty lines and lines starting
// with "#" are skipped, the first valid line wins.
type GeolocationFileProvider struct {
	name     string
	path     string
	period   time.Duration
	ttl      time.Duration
	locateFn geobus.LocateFunc
}

func NewGeolocationFileProvider(path string) *GeolocationFileProvider {
	provider := &GeolocationFileProvider{
		name:   name,
		path:   path,
		period: time.Minute * 2,
		ttl:    time.Hour,
	}
	provider.locateFn = provider.locate
	return provider
}

func (p *GeolocationFileProvider) Name() string {
	return p.name
}

// LookupStream re-reads the file once per period and emits its coordinates whenever they change.
func (p *GeolocationFileProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	return geobus.PollStream(ctx, key, p.name, p.period, p.ttl, p.locateFn)
}

func (p *GeolocationFileProvider) locate(context.Context) (geobus.Coordinate, error) {
	lat, lon, err := p.readFile()
	if err != nil {
		return geobus.Coordinate{}, err
	}
	return geobus.Coordinate{Lat: lat, Lon: lon, Acc: Accuracy, Found: true}, nil
}

func (p *GeolocationFileProvider) readFile() (lat, lon float64, err error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read geolocation file %q: %w", p.path, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		latStr, lonStr, ok := strings.Cut(line, ",")
		if !ok {
			continue
		}
		if lat, err = strconv.ParseFloat(strings.TrimSpace(latStr), 64); err != nil {
			continue
		}
		if lon, err = strconv.ParseFloat(strings.TrimSpace(lonStr), 64); err != nil {
			continue
		}
		return lat, lon, nil
	}
	return 0, 0, ErrNoCoordinates
}
