// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package ichnaea

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mdlayher/wifi"

	"github.com/wneessen/waybar-prayertimes/internal/geobus"
	"github.com/wneessen/waybar-prayertimes/internal/http"
)

const (
	apiEndpoint   = "https://api.beacondb.net/v1/geolocate"
	lookupTimeout = time.Second * 5
	wifiScanTime  = time.Minute * 2
	name          = "ichnaea"
)

// scanner is the subset of the nl80211 client used to list nearby access points.
type scanner interface {
	Interfaces() ([]*wifi.Interface, error)
	AccessPoints(ifi *wifi.Interface) ([]*wifi.BSS, error)
}

// GeolocationICHNAEAProvider locates the device through an ICHNAEA compatible service
// (beaconDB by default). Nearby WiFi access points are sent along when a wireless interface
// is available, otherwise the service falls back to the IP address.
type GeolocationICHNAEAProvider struct {
	name     string
	endpoint string
	http     *http.Client
	wlan     scanner
	period   time.Duration
	ttl      time.Duration
	locateFn geobus.LocateFunc

	apLock sync.RWMutex
	aps    []WirelessNetwork
}

type APIResult struct {
	Location struct {
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
}

type WirelessNetwork struct {
	LastSeen       int64  `json:"age"`
	MACAddress     string `json:"macAddress"`
	SignalStrength int32  `json:"signalStrength"`
}

type request struct {
	ConsiderIP   bool              `json:"considerIp"`
	Accesspoints []WirelessNetwork `json:"wifiAccessPoints,omitempty"`
}

func NewGeolocationICHNAEAProvider(client *http.Client) (*GeolocationICHNAEAProvider, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	provider := &GeolocationICHNAEAProvider{
		name:     name,
		endpoint: apiEndpoint,
		http:     client,
		period:   time.Minute * 5,
		ttl:      time.Hour,
	}
	if wlan, err := wifi.New(); err == nil {
		provider.wlan = wlan
	}
	provider.locateFn = provider.locate
	return provider, nil
}

func (p *GeolocationICHNAEAProvider) Name() string {
	return p.name
}

func (p *GeolocationICHNAEAProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	if p.wlan != nil {
		go p.monitorWifiAccessPoints(ctx)
	}
	return geobus.PollStream(ctx, key, p.name, p.period, p.ttl, p.locateFn)
}

func (p *GeolocationICHNAEAProvider) monitorWifiAccessPoints(ctx context.Context) {
	for {
		if list, err := p.wifiAccessPoints(); err == nil {
			p.apLock.Lock()
			p.aps = list
			p.apLock.Unlock()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wifiScanTime):
		}
	}
}

// wifiAccessPoints lists the access points seen by all station interfaces. Hidden networks
// and networks that opted out of location services ("_nomap") are skipped.
func (p *GeolocationICHNAEAProvider) wifiAccessPoints() ([]WirelessNetwork, error) {
	ifaces, err := p.wlan.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	var list []WirelessNetwork
	for _, iface := range ifaces {
		if iface.Type != wifi.InterfaceTypeStation {
			continue
		}
		aps, err := p.wlan.AccessPoints(iface)
		if err != nil {
			continue
		}
		for _, ap := range aps {
			if ap.SSID == "" || ap.SSID[0] == '\x00' || strings.HasSuffix(ap.SSID, "_nomap") {
				continue
			}
			list = append(list, WirelessNetwork{
				SignalStrength: ap.Signal / 100,
				MACAddress:     ap.BSSID.String(),
				LastSeen:       ap.LastSeen.Milliseconds(),
			})
		}
	}
	return list, nil
}

func (p *GeolocationICHNAEAProvider) locate(ctx context.Context) (geobus.Coordinate, error) {
	p.apLock.RLock()
	req := request{ConsiderIP: true, Accesspoints: p.aps}
	p.apLock.RUnlock()

	body := bytes.NewBuffer(nil)
	if err := json.NewEncoder(body).Encode(req); err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to encode wifi list to JSON: %w", err)
	}

	ctxHttp, cancelHttp := context.WithTimeout(ctx, lookupTimeout)
	defer cancelHttp()
	result := new(APIResult)
	if _, err := p.http.Post(ctxHttp, p.endpoint, result, body,
		map[string]string{"Content-Type": "application/json"}); err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}

	acc := result.Accuracy
	if acc <= 0 {
		acc = geobus.AccuracyUnknown
	}
	return geobus.Coordinate{
		Lat:   geobus.Truncate(result.Location.Latitude, geobus.TruncPrecision),
		Lon:   geobus.Truncate(result.Location.Longitude, geobus.TruncPrecision),
		Acc:   acc,
		Found: true,
	}, nil
}
