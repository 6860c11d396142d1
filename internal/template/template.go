// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package template

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/wneessen/waybar-prayertimes/internal/config"
	"github.com/wneessen/waybar-prayertimes/internal/i18n"
	"github.com/wneessen/waybar-prayertimes/internal/presenter"
)

const clockFormat = "15:04"

// Humanizer renders a point in time relative to now.
type Humanizer interface {
	NaturalTime(t any) string
}

type Templates struct {
	Text      *template.Template
	AltText   *template.Template
	Tooltip   *template.Template
	resolver  i18n.Resolver
	humanizer Humanizer
}

// Output is a rendered set of templates.
type Output struct {
	Text    string
	AltText string
	Tooltip string
}

func New(conf *config.Config, resolver i18n.Resolver, humanizer Humanizer) (*Templates, error) {
	if resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if humanizer == nil {
		return nil, errors.New("humanizer is required")
	}
	tpls := &Templates{resolver: resolver, humanizer: humanizer}

	tpl, err := template.New("text").Funcs(tpls.templateFuncMap()).Parse(conf.Templates.Text)
	if err != nil {
		return tpls, fmt.Errorf("failed to parse text template: %w", err)
	}
	tpls.Text = tpl

	tpl, err = template.New("alt_text").Funcs(tpls.templateFuncMap()).Parse(conf.Templates.AltText)
	if err != nil {
		return tpls, fmt.Errorf("failed to parse alt text template: %w", err)
	}
	tpls.AltText = tpl

	tpl, err = template.New("tooltip").Funcs(tpls.templateFuncMap()).Parse(conf.Templates.Tooltip)
	if err != nil {
		return tpls, fmt.Errorf("failed to parse tooltip template: %w", err)
	}
	tpls.Tooltip = tpl

	return tpls, nil
}

// Render executes all three templates with ctx.
func (t *Templates) Render(ctx presenter.TemplateContext) (Output, error) {
	var out Output
	var err error
	if out.Text, err = execute(t.Text, ctx); err != nil {
		return out, err
	}
	if out.AltText, err = execute(t.AltText, ctx); err != nil {
		return out, err
	}
	if out.Tooltip, err = execute(t.Tooltip, ctx); err != nil {
		return out, err
	}
	return out, nil
}

func execute(tpl *template.Template, ctx presenter.TemplateContext) (string, error) {
	buf := bytes.NewBuffer(nil)
	if err := tpl.Execute(buf, ctx); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", tpl.Name(), err)
	}
	return buf.String(), nil
}

func (t *Templates) templateFuncMap() template.FuncMap {
	return template.FuncMap{
		"timeFormat": timeFormat,
		"humanTime":  t.humanTime,
		"loc":        t.loc,
		"lc":         strings.ToLower,
		"uc":         strings.ToUpper,
		"list":       t.list,
		"table":      t.table,
	}
}

func (t *Templates) loc(val string) string {
	if val == "" {
		return ""
	}
	return t.resolver.Get(val)
}

func (t *Templates) humanTime(val time.Time) string {
	if val.IsZero() {
		return ""
	}
	return t.humanizer.NaturalTime(val)
}

// list renders one "Name: HH:MM" line per prayer. The next prayer is marked with an arrow.
func (t *Templates) list(prayers []presenter.PrayerView) string {
	lines := make([]string, 0, len(prayers))
	for _, p := range prayers {
		lines = append(lines, marker(p.Next)+t.loc(p.Name)+": "+p.Time.Format(clockFormat))
	}
	return strings.Join(lines, "\n")
}

// table renders the prayers as two aligned columns. Localized names can contain wide
// runes, so padding is based on the display width.
func (t *Templates) table(prayers []presenter.PrayerView) string {
	names := make([]string, len(prayers))
	width := 0
	for i, p := range prayers {
		names[i] = t.loc(p.Name)
		width = max(width, runewidth.StringWidth(names[i]))
	}

	lines := make([]string, 0, len(prayers))
	for i, p := range prayers {
		lines = append(lines, marker(p.Next)+runewidth.FillRight(names[i], width)+"  "+p.Time.Format(clockFormat))
	}
	return strings.Join(lines, "\n")
}

func marker(next bool) string {
	if next {
		return "▶ "
	}
	return "  "
}

func timeFormat(val time.Time, fmt string) string {
	if val.IsZero() {
		return "--:--"
	}
	return val.Format(fmt)
}
