// Package dom abstracts querying a page's DOM by CSS selector. A page can be
// fetched and parsed statically or rendered in a headless browser; both
// satisfy Source.
package dom

import (
	"context"
	"strings"
)

// Backend names.
const (
	BackendStatic   = "static"
	BackendRendered = "rendered"
)

// Element is one matched node.
type Element interface {
	// Tag returns the lower-case tag name.
	Tag() (string, error)
	// Attribute returns the attribute value and whether it is present.
	Attribute(name string) (string, bool, error)
	// Text returns the element's text content with surrounding whitespace
	// trimmed and inner whitespace runs collapsed to one space, so both
	// backends report the same string for the same markup.
	Text() (string, error)
	// Visible reports whether the element would be shown to a user.
	Visible() (bool, error)
	// Query returns descendants matching selector in document order.
	Query(selector string) ([]Element, error)
}

// Source loads a page and answers selector queries against it.
type Source interface {
	Name() string
	Load(ctx context.Context, url string) error
	Query(ctx context.Context, selector string) ([]Element, error)
	URL() string
	Close() error
}

// AttrOrEmpty returns the attribute value or "" when absent.
func AttrOrEmpty(el Element, name string) (string, error) {
	v, _, err := el.Attribute(name)
	return v, err
}

// HasAttr reports attribute presence regardless of its value.
func HasAttr(el Element, name string) (bool, error) {
	_, ok, err := el.Attribute(name)
	return ok, err
}

// hiddenByStyle reports whether an inline style hides the element.
func hiddenByStyle(style string) bool {
	s := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	return strings.Contains(s, "display:none") || strings.Contains(s, "visibility:hidden")
}

// normalizeText collapses runs of whitespace and trims the ends.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
