// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package i18n

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/Xuanwo/go-locale"
	"github.com/vorlif/humanize"
	"github.com/vorlif/humanize/locale/ar"
	"github.com/vorlif/humanize/locale/de"
	"github.com/vorlif/spreak"
	"golang.org/x/text/language"
)

//go:embed locale/*.po
var locales embed.FS

// Resolver resolves a message ID into the text of the active language. Unknown IDs resolve
// to themselves.
type Resolver interface {
	Get(id string) string
}

// Tag returns the language tag for loc. An empty loc detects the system locale and falls
// back to English.
func Tag(loc string) language.Tag {
	if loc != "" {
		return language.Make(loc)
	}
	tag, err := locale.Detect()
	if err != nil {
		return language.English
	}
	return tag
}

// New returns a localizer for loc backed by the embedded catalogs.
func New(loc string) (*spreak.Localizer, error) {
	tag := Tag(loc)

	localeFS, err := fs.Sub(locales, "locale")
	if err != nil {
		return nil, fmt.Errorf("failed to load locales: %w", err)
	}

	bundle, err := spreak.NewBundle(
		spreak.WithSourceLanguage(language.English),
		spreak.WithFallbackLanguage(language.English),
		spreak.WithDomainFs("", localeFS),
		spreak.WithLanguage(tag),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create i18n bundle: %w", err)
	}
	return spreak.NewLocalizer(bundle, tag), nil
}

// NewHumanizer returns a humanizer for tag. Languages without an embedded catalog fall back to
// English.
func NewHumanizer(tag language.Tag) (*humanize.Humanizer, error) {
	collection, err := humanize.New(humanize.WithLocale(ar.New(), de.New()))
	if err != nil {
		return nil, fmt.Errorf("failed to create humanizer collection: %w", err)
	}
	return collection.CreateHumanizer(tag), nil
}
