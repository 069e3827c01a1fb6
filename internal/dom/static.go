package dom

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/PentesterFlow/uiprobe/internal/errors"
)

// StaticConfig configures the HTTP fetch of a StaticSource.
type StaticConfig struct {
	Timeout        time.Duration     `json:"timeout" yaml:"timeout"`
	UserAgent      string            `json:"user_agent" yaml:"user_agent"`
	AcceptLanguage string            `json:"accept_language" yaml:"accept_language"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	SkipTLSVerify  bool              `json:"skip_tls_verify" yaml:"skip_tls_verify"`
}

// DefaultStaticConfig returns fetch defaults.
func DefaultStaticConfig() StaticConfig {
	return StaticConfig{
		Timeout:        10 * time.Second,
		UserAgent:      "uiprobe/1.0",
		AcceptLanguage: "pt-BR,pt;q=0.9,en;q=0.8",
		SkipTLSVerify:  true,
	}
}

// StaticSource fetches a page with a single GET and queries the parsed tree.
// No script runs, so only server-rendered markup is visible to it.
type StaticSource struct {
	client *http.Client
	config StaticConfig
	doc    *goquery.Document
	url    string
	size   int
}

// NewStaticSource creates a static source.
func NewStaticSource(config StaticConfig) *StaticSource {
	if config.Timeout <= 0 {
		config.Timeout = DefaultStaticConfig().Timeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.SkipTLSVerify,
		},
	}

	return &StaticSource{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
		config: config,
	}
}

// Name returns the backend name.
func (s *StaticSource) Name() string {
	return BackendStatic
}

// URL returns the loaded page URL.
func (s *StaticSource) URL() string {
	return s.url
}

// Size returns the number of body bytes read by the last Load.
func (s *StaticSource) Size() int {
	return s.size
}

// Load fetches url once and parses it. Non-2xx responses and transport
// failures are acquisition errors.
func (s *StaticSource) Load(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.NewProbeError(errors.Parse, url, "request_creation", "failed to create request", err)
	}

	if s.config.UserAgent != "" {
		req.Header.Set("User-Agent", s.config.UserAgent)
	}
	if s.config.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", s.config.AcceptLanguage)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	for k, v := range s.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.NewAcquisitionError(url, "fetch", err, errors.Network)
	}
	defer resp.Body.Close()

	if statusErr := errors.CategorizeHTTPStatus(resp.StatusCode, url); statusErr != nil {
		return statusErr
	}

	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return errors.NewParseError(url, "decode", err)
	}

	return s.Parse(url, body)
}

// Parse replaces the current document with the HTML read from r.
func (s *StaticSource) Parse(url string, r io.Reader) error {
	counter := &countingReader{r: r}
	doc, err := goquery.NewDocumentFromReader(counter)
	if err != nil {
		return errors.NewParseError(url, "parse", err)
	}

	s.doc = doc
	s.url = url
	s.size = counter.n
	return nil
}

// Query returns every element matching selector in document order.
func (s *StaticSource) Query(ctx context.Context, selector string) ([]Element, error) {
	if s.doc == nil {
		return nil, fmt.Errorf("static source: no page loaded")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return wrapSelection(s.doc.Find(selector)), nil
}

// Close releases the parsed document.
func (s *StaticSource) Close() error {
	s.doc = nil
	s.client.CloseIdleConnections()
	return nil
}

type staticElement struct {
	sel *goquery.Selection
}

func wrapSelection(sel *goquery.Selection) []Element {
	elements := make([]Element, 0, sel.Length())
	sel.Each(func(i int, s *goquery.Selection) {
		elements = append(elements, &staticElement{sel: s})
	})
	return elements
}

func (e *staticElement) Tag() (string, error) {
	return strings.ToLower(goquery.NodeName(e.sel)), nil
}

func (e *staticElement) Attribute(name string) (string, bool, error) {
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

func (e *staticElement) Text() (string, error) {
	return normalizeText(e.sel.Text()), nil
}

func (e *staticElement) Visible() (bool, error) {
	if len(e.sel.Nodes) == 0 {
		return false, nil
	}
	return staticVisible(e.sel.Nodes[0]), nil
}

func (e *staticElement) Query(selector string) ([]Element, error) {
	return wrapSelection(e.sel.Find(selector)), nil
}

// staticVisible approximates rendering: markup that hides the node or any
// ancestor makes it invisible.
func staticVisible(n *html.Node) bool {
	if n.Type == html.ElementNode && n.Data == "input" && strings.EqualFold(nodeAttr(n, "type"), "hidden") {
		return false
	}

	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		switch cur.Data {
		case "head", "template", "noscript", "script", "style":
			return false
		}
		if _, ok := lookupAttr(cur, "hidden"); ok {
			return false
		}
		if strings.EqualFold(nodeAttr(cur, "aria-hidden"), "true") {
			return false
		}
		if hiddenByStyle(nodeAttr(cur, "style")) {
			return false
		}
	}
	return true
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func nodeAttr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}
