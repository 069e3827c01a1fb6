package dom

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/PentesterFlow/uiprobe/internal/errors"
)

// RenderedConfig configures the headless browser behind a RenderedSource.
type RenderedConfig struct {
	// ControlURL connects to an already running browser instead of launching one.
	ControlURL        string            `json:"control_url" yaml:"control_url"`
	Headless          bool              `json:"headless" yaml:"headless"`
	ViewportWidth     int               `json:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int               `json:"viewport_height" yaml:"viewport_height"`
	Locale            string            `json:"locale" yaml:"locale"`
	UserAgent         string            `json:"user_agent" yaml:"user_agent"`
	Headers           map[string]string `json:"headers" yaml:"headers"`
	IgnoreHTTPSErrors bool              `json:"ignore_https_errors" yaml:"ignore_https_errors"`
	// Timeout bounds navigation and load.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// IdleTimeout bounds the wait for network idle after load.
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	// IdleWindow is how long the network must stay quiet to count as idle.
	IdleWindow time.Duration `json:"idle_window" yaml:"idle_window"`
}

// DefaultRenderedConfig returns browser defaults.
func DefaultRenderedConfig() RenderedConfig {
	return RenderedConfig{
		Headless:          true,
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		Locale:            "pt-BR",
		IgnoreHTTPSErrors: true,
		Timeout:           30 * time.Second,
		IdleTimeout:       10 * time.Second,
		IdleWindow:        500 * time.Millisecond,
	}
}

// RenderedSource renders a page in a headless browser and queries the live DOM.
type RenderedSource struct {
	config   RenderedConfig
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	url      string
}

// NewRenderedSource launches or connects to a browser.
func NewRenderedSource(config RenderedConfig) (*RenderedSource, error) {
	defaults := DefaultRenderedConfig()
	if config.ViewportWidth <= 0 || config.ViewportHeight <= 0 {
		config.ViewportWidth = defaults.ViewportWidth
		config.ViewportHeight = defaults.ViewportHeight
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}
	if config.IdleWindow <= 0 {
		config.IdleWindow = defaults.IdleWindow
	}

	s := &RenderedSource{config: config}

	controlURL := config.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(config.Headless)
		if config.IgnoreHTTPSErrors {
			l = l.Set("ignore-certificate-errors", "true")
		}
		if config.Locale != "" {
			l = l.Set("lang", config.Locale)
		}

		u, err := l.Launch()
		if err != nil {
			return nil, errors.NewBrowserError("", "launch", err)
		}
		s.launcher = l
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		s.killLauncher()
		return nil, errors.NewBrowserError("", "connect", err)
	}
	s.browser = browser

	return s, nil
}

// Name returns the backend name.
func (s *RenderedSource) Name() string {
	return BackendRendered
}

// URL returns the loaded page URL.
func (s *RenderedSource) URL() string {
	return s.url
}

// Page returns the rod page of the last Load, or nil.
func (s *RenderedSource) Page() *rod.Page {
	return s.page
}

// Load opens url in a fresh tab, waits for load and then for network idle.
// A tab from a previous Load is closed first.
func (s *RenderedSource) Load(ctx context.Context, url string) error {
	if s.page != nil {
		_ = s.page.Close()
		s.page = nil
	}

	page, err := s.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return errors.NewBrowserError(url, "create_page", err)
	}
	page = page.Context(ctx)

	if err := s.prepare(page); err != nil {
		_ = page.Close()
		return errors.NewBrowserError(url, "prepare_page", err)
	}

	// Requests are tracked from before navigation so the ones issued
	// during load count towards idleness.
	idleCtx, stopIdle := context.WithCancel(ctx)
	defer stopIdle()
	waitIdle := page.Context(idleCtx).WaitRequestIdle(s.config.IdleWindow, nil, nil, nil)

	loadPage := page.Timeout(s.config.Timeout)
	if err := loadPage.Navigate(url); err != nil {
		_ = page.Close()
		return errors.NewAcquisitionError(url, "navigate", err, errors.Browser)
	}
	if err := loadPage.WaitLoad(); err != nil {
		_ = page.Close()
		return errors.NewAcquisitionError(url, "wait_load", err, errors.Browser)
	}

	// Pages that keep polling never go idle; the bounded wait just returns.
	idleTimer := time.AfterFunc(s.config.IdleTimeout, stopIdle)
	waitIdle()
	idleTimer.Stop()

	if err := ctx.Err(); err != nil {
		_ = page.Close()
		return errors.NewCancelledError(url, "load")
	}

	s.page = page
	s.url = url
	return nil
}

func (s *RenderedSource) prepare(page *rod.Page) error {
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  s.config.ViewportWidth,
		Height: s.config.ViewportHeight,
	}); err != nil {
		return fmt.Errorf("viewport: %w", err)
	}

	if s.config.Locale != "" {
		if err := (proto.EmulationSetLocaleOverride{Locale: s.config.Locale}).Call(page); err != nil {
			return fmt.Errorf("locale: %w", err)
		}
	}

	if s.config.UserAgent != "" {
		if err := (proto.NetworkSetUserAgentOverride{
			UserAgent:      s.config.UserAgent,
			AcceptLanguage: s.config.Locale,
		}).Call(page); err != nil {
			return fmt.Errorf("user agent: %w", err)
		}
	}

	headers := make(proto.NetworkHeaders)
	if s.config.Locale != "" {
		headers["Accept-Language"] = gson.New(s.config.Locale)
	}
	for k, v := range s.config.Headers {
		headers[k] = gson.New(v)
	}
	if len(headers) > 0 {
		if err := (proto.NetworkSetExtraHTTPHeaders{Headers: headers}).Call(page); err != nil {
			return fmt.Errorf("headers: %w", err)
		}
	}
	return nil
}

// Query returns every element matching selector in document order.
func (s *RenderedSource) Query(ctx context.Context, selector string) ([]Element, error) {
	if s.page == nil {
		return nil, fmt.Errorf("rendered source: no page loaded")
	}
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return wrapRod(els), nil
}

// Close closes the tab and the browser, killing it when this source launched it.
func (s *RenderedSource) Close() error {
	var lastErr error
	if s.page != nil {
		if err := s.page.Close(); err != nil {
			lastErr = err
		}
		s.page = nil
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			lastErr = err
		}
		s.browser = nil
	}
	s.killLauncher()
	return lastErr
}

func (s *RenderedSource) killLauncher() {
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
		s.launcher = nil
	}
}

type rodElement struct {
	el *rod.Element
}

func wrapRod(els rod.Elements) []Element {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out
}

func (e *rodElement) Tag() (string, error) {
	node, err := e.el.Describe(0, false)
	if err != nil {
		return "", err
	}
	return node.LocalName, nil
}

func (e *rodElement) Attribute(name string) (string, bool, error) {
	v, err := e.el.Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *rodElement) Text() (string, error) {
	text, err := e.el.Text()
	if err != nil {
		return "", err
	}
	return normalizeText(text), nil
}

func (e *rodElement) Visible() (bool, error) {
	return e.el.Visible()
}

func (e *rodElement) Query(selector string) ([]Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapRod(els), nil
}
