// Package classify sorts the elements of a loaded page into the fixed report
// categories. A classifier only talks to a dom.Source, so the same rules run
// against static and rendered pages.
package classify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PentesterFlow/uiprobe/internal/dom"
	"github.com/PentesterFlow/uiprobe/internal/errors"
	"github.com/PentesterFlow/uiprobe/internal/logger"
	"github.com/PentesterFlow/uiprobe/internal/metrics"
	"github.com/PentesterFlow/uiprobe/internal/report"
)

// DefaultGenericSelectors are queried after the select, textarea and role passes.
var DefaultGenericSelectors = []string{"[onclick]", "[data-testid]"}

// Config controls the interactive passes.
type Config struct {
	// GenericSelectors replaces DefaultGenericSelectors when non-empty.
	GenericSelectors []string `json:"generic_selectors" yaml:"generic_selectors"`
	// DisableGeneric skips the generic selector pass.
	DisableGeneric bool `json:"disable_generic" yaml:"disable_generic"`
	// MaxOptions bounds the option labels kept per select.
	MaxOptions int `json:"max_options" yaml:"max_options"`
}

// DefaultConfig returns the default classifier configuration.
func DefaultConfig() Config {
	return Config{
		GenericSelectors: append([]string(nil), DefaultGenericSelectors...),
		MaxOptions:       report.MaxSelectOptions,
	}
}

// Classifier appends records for one page to a shared Elements value.
type Classifier struct {
	src     dom.Source
	out     *report.Elements
	log     *logger.Logger
	config  Config
	metrics *metrics.Collector
}

// New creates a classifier writing into out.
func New(src dom.Source, out *report.Elements, log *logger.Logger, config Config) *Classifier {
	if log == nil {
		log = logger.Nop()
	}
	if config.MaxOptions <= 0 {
		config.MaxOptions = report.MaxSelectOptions
	}
	if len(config.GenericSelectors) == 0 {
		config.GenericSelectors = DefaultGenericSelectors
	}
	return &Classifier{
		src:    src,
		out:    out,
		log:    log.WithComponent("classify"),
		config: config,
	}
}

// WithMetrics records per-category counts, timings and skips in m.
func (c *Classifier) WithMetrics(m *metrics.Collector) *Classifier {
	c.metrics = m
	return c
}

// Run executes every category in discovery order and stops at the first
// query failure.
func (c *Classifier) Run(ctx context.Context) error {
	steps := []struct {
		category report.Category
		fn       func(context.Context) (int, error)
	}{
		{report.Inputs, c.DiscoverInputs},
		{report.Buttons, c.DiscoverButtons},
		{report.Links, c.DiscoverLinks},
		{report.Forms, c.DiscoverForms},
		{report.Headings, c.DiscoverHeadings},
		{report.Images, c.DiscoverImages},
		{report.Interactive, c.DiscoverInteractive},
	}

	for _, step := range steps {
		start := time.Now()
		n, err := step.fn(ctx)
		if c.metrics != nil {
			c.metrics.RecordCategory(string(step.category), n, time.Since(start))
		}
		if err != nil {
			return fmt.Errorf("discover %s: %w", step.category, err)
		}
		c.log.Event(logger.InfoLevel).
			Str("category", string(step.category)).
			Int("count", n).
			Msg("Category done")
	}
	return nil
}

// DiscoverInputs records every <input>.
func (c *Classifier) DiscoverInputs(ctx context.Context) (int, error) {
	els, err := c.query(ctx, "input")
	if err != nil {
		return 0, err
	}

	added := 0
	for pos, el := range els {
		if err := ctx.Err(); err != nil {
			return added, err
		}

		f := reader{el: el}
		rec := report.InputRecord{
			Type:        f.attr("type"),
			Name:        f.attr("name"),
			ID:          f.attr("id"),
			Placeholder: f.attr("placeholder"),
			Class:       f.class(),
			Required:    f.has("required"),
			Value:       f.attr("value"),
			AriaLabel:   f.attr("aria-label"),
			Visible:     f.visible(),
		}
		if f.err != nil {
			c.skip(report.Inputs, pos, f.err)
			continue
		}
		if rec.Type == "" {
			rec.Type = "text"
		}

		rec.Index = len(c.out.Inputs)
		c.out.Inputs = append(c.out.Inputs, rec)
		added++
		c.log.ElementEvent(string(report.Inputs), rec.Index,
			fmt.Sprintf("Input %d: type='%s' name='%s' id='%s'", rec.Index, rec.Type, rec.Name, rec.ID))
	}
	return added, nil
}

// DiscoverButtons records every <button>.
func (c *Classifier) DiscoverButtons(ctx context.Context) (int, error) {
	els, err := c.query(ctx, "button")
	if err != nil {
		return 0, err
	}

	added := 0
	for pos, el := range els {
		if err := ctx.Err(); err != nil {
			return added, err
		}

		f := reader{el: el}
		rec := report.ButtonRecord{
			Text:      f.text(),
			Type:      f.attr("type"),
			ID:        f.attr("id"),
			Class:     f.class(),
			Disabled:  f.has("disabled"),
			AriaLabel: f.attr("aria-label"),
			TestID:    f.attr("data-testid"),
			Visible:   f.visible(),
		}
		if f.err != nil {
			c.skip(report.Buttons, pos, f.err)
			continue
		}

		rec.Index = len(c.out.Buttons)
		c.out.Buttons = append(c.out.Buttons, rec)
		added++
		c.log.ElementEvent(string(report.Buttons), rec.Index,
			fmt.Sprintf("Button %d: text='%s' type='%s'", rec.Index, rec.Text, rec.Type))
	}
	return added, nil
}

// DiscoverLinks records every <a>.
func (c *Classifier) DiscoverLinks(ctx context.Context) (int, error) {
	els, err := c.query(ctx, "a")
	if err != nil {
		return 0, err
	}

	added := 0
	for pos, el := range els {
		if err := ctx.Err(); err != nil {
			return added, err
		}

		f := reader{el: el}
		rec := report.LinkRecord{
			Text:      f.text(),
			Href:      f.attr("href"),
			ID:        f.attr("id"),
			Class:     f.class(),
			AriaLabel: f.attr("aria-label"),
			Target:    f.attr("target"),
			Visible:   f.visible(),
		}
		if f.err != nil {
			c.skip(report.Links, pos, f.err)
			continue
		}

		rec.Index = len(c.out.Links)
		c.out.Links = append(c.out.Links, rec)
		added++
		c.log.ElementEvent(string(report.Links), rec.Index,
			fmt.Sprintf("Link %d: text='%s' href='%s'", rec.Index, rec.Text, rec.Href))
	}
	return added, nil
}

// DiscoverForms records every <form>.
func (c *Classifier) DiscoverForms(ctx context.Context) (int, error) {
	els, err := c.query(ctx, "form")
	if err != nil {
		return 0, err
	}

	added := 0
	for pos, el := range els {
		if err := ctx.Err(); err != nil {
			return added, err
		}

		f := reader{el: el}
		rec := report.FormRecord{
			Action:  f.attr("action"),
			Method:  f.attr("method"),
			ID:      f.attr("id"),
			Class:   f.class(),
			Name:    f.attr("name"),
			Visible: f.visible(),
		}
		if f.err != nil {
			c.skip(report.Forms, pos, f.err)
			continue
		}

		rec.Index = len(c.out.Forms)
		c.out.Forms = append(c.out.Forms, rec)
		added++
		c.log.ElementEvent(string(report.Forms), rec.Index,
			fmt.Sprintf("Form %d: action='%s' method='%s'", rec.Index, rec.Action, rec.Method))
	}
	return added, nil
}

// DiscoverHeadings records h1 through h6, level by level.
func (c *Classifier) DiscoverHeadings(ctx context.Context) (int, error) {
	added := 0
	for level := 1; level <= 6; level++ {
		els, err := c.query(ctx, fmt.Sprintf("h%d", level))
		if err != nil {
			return added, err
		}

		levelIndex := 0
		for pos, el := range els {
			if err := ctx.Err(); err != nil {
				return added, err
			}

			f := reader{el: el}
			rec := report.HeadingRecord{
				Level:   level,
				Text:    f.text(),
				ID:      f.attr("id"),
				Class:   f.class(),
				Visible: f.visible(),
			}
			if f.err != nil {
				c.skip(report.Headings, pos, f.err)
				continue
			}

			rec.Index = len(c.out.Headings)
			rec.LevelIndex = levelIndex
			levelIndex++
			c.out.Headings = append(c.out.Headings, rec)
			added++
			c.log.ElementEvent(string(report.Headings), rec.Index,
				fmt.Sprintf("H%d %d: '%s'", level, rec.LevelIndex, rec.Text))
		}
	}
	return added, nil
}

// DiscoverImages records every <img>.
func (c *Classifier) DiscoverImages(ctx context.Context) (int, error) {
	els, err := c.query(ctx, "img")
	if err != nil {
		return 0, err
	}

	added := 0
	for pos, el := range els {
		if err := ctx.Err(); err != nil {
			return added, err
		}

		f := reader{el: el}
		rec := report.ImageRecord{
			Src:     f.attr("src"),
			Alt:     f.attr("alt"),
			ID:      f.attr("id"),
			Class:   f.class(),
			Width:   f.attr("width"),
			Height:  f.attr("height"),
			Visible: f.visible(),
		}
		if f.err != nil {
			c.skip(report.Images, pos, f.err)
			continue
		}

		rec.Index = len(c.out.Images)
		c.out.Images = append(c.out.Images, rec)
		added++
		c.log.ElementEvent(string(report.Images), rec.Index,
			fmt.Sprintf("Image %d: src='%s' alt='%s'", rec.Index, rec.Src, rec.Alt))
	}
	return added, nil
}

// DiscoverInteractive runs the select, textarea, role and generic passes in
// that order. An element matched by several passes is recorded once per pass.
func (c *Classifier) DiscoverInteractive(ctx context.Context) (int, error) {
	passes := []struct {
		kind     string
		selector string
	}{
		{report.KindSelect, "select"},
		{report.KindTextarea, "textarea"},
		{report.KindRole, "[role]"},
	}
	if !c.config.DisableGeneric {
		for _, sel := range c.config.GenericSelectors {
			passes = append(passes, struct {
				kind     string
				selector string
			}{report.KindSelector, sel})
		}
	}

	added := 0
	for _, pass := range passes {
		n, err := c.interactivePass(ctx, pass.kind, pass.selector)
		added += n
		if err != nil {
			return added, err
		}
	}
	return added, nil
}

func (c *Classifier) interactivePass(ctx context.Context, kind, selector string) (int, error) {
	els, err := c.query(ctx, selector)
	if err != nil {
		return 0, err
	}

	added := 0
	for pos, el := range els {
		if err := ctx.Err(); err != nil {
			return added, err
		}

		f := reader{el: el}
		rec := report.InteractiveRecord{
			Kind:      kind,
			Selector:  selector,
			Tag:       f.tag(),
			ID:        f.attr("id"),
			Name:      f.attr("name"),
			Class:     f.class(),
			Role:      f.attr("role"),
			AriaLabel: f.attr("aria-label"),
			TestID:    f.attr("data-testid"),
			Options:   make([]string, 0),
			Visible:   f.visible(),
		}

		switch kind {
		case report.KindSelect:
			rec.Options, rec.OptionsCount = f.options(c.config.MaxOptions)
		case report.KindTextarea:
			rec.Placeholder = f.attr("placeholder")
		default:
			rec.Text = f.text()
		}

		if f.err != nil {
			c.skip(report.Interactive, pos, f.err)
			continue
		}

		rec.Index = len(c.out.Interactive)
		c.out.Interactive = append(c.out.Interactive, rec)
		added++
		c.log.ElementEvent(string(report.Interactive), rec.Index,
			fmt.Sprintf("Interactive %d: %s <%s> id='%s'", rec.Index, kind, rec.Tag, rec.ID))
	}
	return added, nil
}

func (c *Classifier) query(ctx context.Context, selector string) ([]dom.Element, error) {
	els, err := c.src.Query(ctx, selector)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", selector, err)
	}
	return els, nil
}

func (c *Classifier) skip(category report.Category, position int, cause error) {
	if c.metrics != nil {
		c.metrics.RecordSkip(string(category))
	}
	c.log.SkipEvent(errors.NewExtractionError(string(category), position, cause), string(category), position)
}

// reader reads element fields and keeps the first failure, so a record is
// either read completely or dropped.
type reader struct {
	el  dom.Element
	err error
}

// attr returns the raw attribute value.
func (r *reader) attr(name string) string {
	if r.err != nil {
		return ""
	}
	v, err := dom.AttrOrEmpty(r.el, name)
	if err != nil {
		r.err = fmt.Errorf("attribute %s: %w", name, err)
		return ""
	}
	return v
}

// class returns the class attribute without surrounding whitespace.
func (r *reader) class() string {
	return strings.TrimSpace(r.attr("class"))
}

func (r *reader) has(name string) bool {
	if r.err != nil {
		return false
	}
	ok, err := dom.HasAttr(r.el, name)
	if err != nil {
		r.err = fmt.Errorf("attribute %s: %w", name, err)
		return false
	}
	return ok
}

func (r *reader) text() string {
	if r.err != nil {
		return ""
	}
	t, err := r.el.Text()
	if err != nil {
		r.err = fmt.Errorf("text: %w", err)
		return ""
	}
	return strings.TrimSpace(t)
}

func (r *reader) tag() string {
	if r.err != nil {
		return ""
	}
	t, err := r.el.Tag()
	if err != nil {
		r.err = fmt.Errorf("tag: %w", err)
		return ""
	}
	return strings.ToLower(t)
}

func (r *reader) visible() bool {
	if r.err != nil {
		return false
	}
	v, err := r.el.Visible()
	if err != nil {
		r.err = fmt.Errorf("visible: %w", err)
		return false
	}
	return v
}

func (r *reader) options(limit int) ([]string, int) {
	labels := make([]string, 0)
	if r.err != nil {
		return labels, 0
	}
	opts, err := r.el.Query("option")
	if err != nil {
		r.err = fmt.Errorf("options: %w", err)
		return labels, 0
	}
	for i, opt := range opts {
		if i >= limit {
			break
		}
		t, err := opt.Text()
		if err != nil {
			r.err = fmt.Errorf("option %d: %w", i, err)
			return make([]string, 0), 0
		}
		labels = append(labels, strings.TrimSpace(t))
	}
	return labels, len(opts)
}
