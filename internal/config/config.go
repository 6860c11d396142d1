// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kkyr/fig"

	"github.com/wneessen/waybar-prayertimes/internal/prayer"
)

const (
	configEnv = "WAYBARPRAYER"

	LayoutList  = "list"
	LayoutTable = "table"

	ProviderAladhan = "aladhan"
)

// Default templates. The tooltip differs by layout only in how the prayers are rendered.
const (
	DefaultTextTpl    = `{{if .Next.Name}}{{loc .Next.Name}} {{timeFormat .Next.Time "15:04"}}{{else}}{{loc "Prayer times"}}{{end}}`
	DefaultAltTextTpl = `{{if .Next.Name}}{{loc .Next.Name}} {{humanTime .Next.Time}}{{else}}{{loc "Prayer times"}}{{end}}`
	tooltipHeaderTpl  = `{{loc "Prayer times for"}} {{.Place}}{{if .HijriDate}}` + "\n" + `{{.HijriDate}}{{end}}` +
		"\n\n"
	tooltipFooterTpl = "\n\n" + `{{loc "Sunrise"}}: {{timeFormat .SunriseTime "15:04"}}` + "\n" +
		`{{loc "Sunset"}}: {{timeFormat .SunsetTime "15:04"}}` + "\n" +
		`{{loc "Moon phase"}}: {{.MoonPhaseIcon}} {{loc .MoonPhase}}` +
		`{{if .Loading}}` + "\n\n" + `{{loc "Loading prayer times..."}}{{end}}` +
		`{{if .Error}}` + "\n\n" + `{{.Error}}{{end}}` +
		`{{if .LocationError}}` + "\n\n" + `{{.LocationError}}{{end}}`
	DefaultListTooltipTpl  = tooltipHeaderTpl + `{{list .Prayers}}` + tooltipFooterTpl
	DefaultTableTooltipTpl = tooltipHeaderTpl + `{{table .Prayers}}` + tooltipFooterTpl
)

// Config represents the application's configuration structure.
type Config struct {
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	Location struct {
		// Allowed values: city, current_location
		Method  string `fig:"method" default:"current_location"`
		City    string `fig:"city" default:"Dubai"`
		Country string `fig:"country" default:"UAE"`
	} `fig:"location"`

	Timings struct {
		// Allowed values: aladhan
		Provider string `fig:"provider" default:"aladhan"`
		Endpoint string `fig:"endpoint" default:"https://api.aladhan.com"`
		// Calculation method of the Aladhan API. Allowed values: 0 to 23
		Method         int           `fig:"method" default:"8"`
		DebounceWindow time.Duration `fig:"debounce_window" default:"400ms"`
	} `fig:"timings"`

	Intervals struct {
		Refresh            time.Duration `fig:"refresh" default:"6h"`
		Output             time.Duration `fig:"output" default:"30s"`
		GeolocationTimeout time.Duration `fig:"geolocation_timeout" default:"30s"`
	} `fig:"intervals"`

	Templates struct {
		// Allowed values: list, table
		Layout  string `fig:"layout" default:"list"`
		Text    string `fig:"text"`
		AltText string `fig:"alt_text"`
		Tooltip string `fig:"tooltip"`
	} `fig:"templates"`

	GeoLocation struct {
		File                   string `fig:"file"`
		DisableGeoIP           bool   `fig:"disable_geoip"`
		DisableGeoAPI          bool   `fig:"disable_geoapi"`
		DisableGeolocationFile bool   `fig:"disable_geolocation_file"`
		DisableICHNAEA         bool   `fig:"disable_ichnaea"`
		DisableGPSD            bool   `fig:"disable_gpsd"`
	} `fig:"geolocation"`

	GeoCoder struct {
		Disable bool `fig:"disable"`
	} `fig:"geocoder"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

// Validate checks the configuration and fills in the defaults that depend on other values.
func (c *Config) Validate() error {
	if c.Locale == "" {
		c.Locale = getLocale()
	}

	method, err := prayer.ParseLocationMethod(c.Location.Method)
	if err != nil {
		return err
	}
	c.Location.Method = string(method)
	if method == prayer.MethodCity && (c.Location.City == "" || c.Location.Country == "") {
		return errors.New("city and country are required for the city location method")
	}

	if c.Timings.Provider != ProviderAladhan {
		return fmt.Errorf("unsupported prayer times provider: %q", c.Timings.Provider)
	}
	if u, err := url.Parse(c.Timings.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid prayer times endpoint: %q", c.Timings.Endpoint)
	}
	if c.Timings.Method < 0 || c.Timings.Method > 23 {
		return fmt.Errorf("invalid calculation method: %d", c.Timings.Method)
	}
	if c.Timings.DebounceWindow < 0 {
		return fmt.Errorf("invalid debounce window: %s", c.Timings.DebounceWindow)
	}

	if c.Intervals.Refresh < time.Minute {
		return fmt.Errorf("refresh interval must be at least 1m, got %s", c.Intervals.Refresh)
	}
	if c.Intervals.Output < time.Second {
		return fmt.Errorf("output interval must be at least 1s, got %s", c.Intervals.Output)
	}
	if c.Intervals.GeolocationTimeout <= 0 {
		return fmt.Errorf("invalid geolocation timeout: %s", c.Intervals.GeolocationTimeout)
	}

	c.Templates.Layout = strings.ToLower(c.Templates.Layout)
	if c.Templates.Layout != LayoutList && c.Templates.Layout != LayoutTable {
		return fmt.Errorf("unsupported layout: %q", c.Templates.Layout)
	}
	if c.Templates.Text == "" {
		c.Templates.Text = DefaultTextTpl
	}
	if c.Templates.AltText == "" {
		c.Templates.AltText = DefaultAltTextTpl
	}
	if c.Templates.Tooltip == "" {
		c.Templates.Tooltip = DefaultListTooltipTpl
		if c.Templates.Layout == LayoutTable {
			c.Templates.Tooltip = DefaultTableTooltipTpl
		}
	}

	if c.GeoLocation.File == "" {
		home, _ := os.UserHomeDir()
		c.GeoLocation.File = filepath.Join(home, ".config", "waybar-prayertimes", "geolocation")
	}

	return nil
}

// GeolocationEnabled reports whether at least one geolocation provider is enabled.
func (c *Config) GeolocationEnabled() bool {
	g := c.GeoLocation
	return !g.DisableGeoIP || !g.DisableGeoAPI || !g.DisableGeolocationFile || !g.DisableICHNAEA ||
		!g.DisableGPSD
}

func getLocale() string {
	locale := os.Getenv("LC_MESSAGES")
	if idx := strings.Index(locale, "."); idx != -1 {
		lang := locale[:idx]
		return strings.ReplaceAll(lang, "_", "-")
	}
	return locale
}
