// Package errors provides error types and handling for uiprobe.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrorType categorizes errors for handling decisions.
type ErrorType int

const (
	// Unknown is an uncategorized error.
	Unknown ErrorType = iota
	// Network represents network-related errors (DNS, connection).
	Network
	// Timeout represents timeout errors.
	Timeout
	// HTTPStatus represents a non-2xx response while fetching a page.
	HTTPStatus
	// Parse represents HTML parsing errors.
	Parse
	// Browser represents browser/CDP errors.
	Browser
	// Extraction represents a failure reading fields of a single element.
	Extraction
	// Startup represents a dev server that failed to launch or become ready.
	Startup
	// Shutdown represents a failed graceful stop of the dev server.
	Shutdown
	// Cancelled represents context cancellation.
	Cancelled
)

// String returns the string representation of ErrorType.
func (t ErrorType) String() string {
	switch t {
	case Network:
		return "network"
	case Timeout:
		return "timeout"
	case HTTPStatus:
		return "http_status"
	case Parse:
		return "parse"
	case Browser:
		return "browser"
	case Extraction:
		return "extraction"
	case Startup:
		return "startup"
	case Shutdown:
		return "shutdown"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsAcquisition reports whether errors of this type mean the page could not be obtained.
func (t ErrorType) IsAcquisition() bool {
	switch t {
	case Network, Timeout, HTTPStatus, Parse, Browser:
		return true
	default:
		return false
	}
}

// ProbeError represents a categorized error.
type ProbeError struct {
	Type       ErrorType
	URL        string
	Operation  string
	Message    string
	Cause      error
	StatusCode int
}

// Error implements the error interface.
func (e *ProbeError) Error() string {
	target := e.URL
	if target == "" {
		target = "-"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s error during %s on %s: %s (caused by: %v)",
			e.Type.String(), e.Operation, target, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error during %s on %s: %s",
		e.Type.String(), e.Operation, target, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProbeError) Unwrap() error {
	return e.Cause
}

// Is matches another ProbeError of the same type.
func (e *ProbeError) Is(target error) bool {
	t, ok := target.(*ProbeError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// NewProbeError creates a new ProbeError.
func NewProbeError(errType ErrorType, url, operation, message string, cause error) *ProbeError {
	return &ProbeError{
		Type:      errType,
		URL:       url,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// NewNetworkError creates a network error.
func NewNetworkError(url, operation string, cause error) *ProbeError {
	return NewProbeError(Network, url, operation, "network failure", cause)
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(url, operation string, cause error) *ProbeError {
	return NewProbeError(Timeout, url, operation, "request timed out", cause)
}

// NewHTTPStatusError creates an error for a non-2xx response.
func NewHTTPStatusError(url string, statusCode int) *ProbeError {
	err := NewProbeError(HTTPStatus, url, "fetch", fmt.Sprintf("server returned %d", statusCode), nil)
	err.StatusCode = statusCode
	return err
}

// NewParseError creates a parse error.
func NewParseError(url, operation string, cause error) *ProbeError {
	return NewProbeError(Parse, url, operation, "parsing failed", cause)
}

// NewBrowserError creates a browser error.
func NewBrowserError(url, operation string, cause error) *ProbeError {
	return NewProbeError(Browser, url, operation, "browser operation failed", cause)
}

// NewExtractionError creates an error for one element whose fields could not be read.
func NewExtractionError(category string, position int, cause error) *ProbeError {
	return NewProbeError(Extraction, "", "extract_"+category,
		fmt.Sprintf("element %d could not be read", position), cause)
}

// NewStartupError creates a dev server startup error.
func NewStartupError(addr, message string, cause error) *ProbeError {
	return NewProbeError(Startup, addr, "start_server", message, cause)
}

// NewShutdownError creates a dev server shutdown error.
func NewShutdownError(addr string, cause error) *ProbeError {
	return NewProbeError(Shutdown, addr, "stop_server", "graceful stop failed", cause)
}

// NewCancelledError creates a cancelled error.
func NewCancelledError(url, operation string) *ProbeError {
	return NewProbeError(Cancelled, url, operation, "operation cancelled", context.Canceled)
}

// Categorize determines the error type from a generic error.
func Categorize(err error, url, operation string) *ProbeError {
	if err == nil {
		return nil
	}

	var probeErr *ProbeError
	if errors.As(err, &probeErr) {
		return probeErr
	}

	if errors.Is(err, context.Canceled) {
		return NewCancelledError(url, operation)
	}

	if isTimeout(err) {
		return NewTimeoutError(url, operation, err)
	}

	if isNetworkError(err) {
		return NewNetworkError(url, operation, err)
	}

	return NewProbeError(Unknown, url, operation, err.Error(), err)
}

// CategorizeHTTPStatus creates an error from an HTTP status code, or nil for 2xx.
func CategorizeHTTPStatus(statusCode int, url string) *ProbeError {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	return NewHTTPStatusError(url, statusCode)
}

// isTimeout checks if an error is a timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

// isNetworkError checks if an error is network-related.
func isNetworkError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "dial tcp")
}

// IsAcquisition reports whether err means a page could not be fetched or rendered.
func IsAcquisition(err error) bool {
	var probeErr *ProbeError
	if errors.As(err, &probeErr) {
		return probeErr.Type.IsAcquisition()
	}
	return false
}

// GetStatusCode extracts the status code from an error.
func GetStatusCode(err error) int {
	var probeErr *ProbeError
	if errors.As(err, &probeErr) {
		return probeErr.StatusCode
	}
	return 0
}

// GetErrorType extracts the error type from an error.
func GetErrorType(err error) ErrorType {
	var probeErr *ProbeError
	if errors.As(err, &probeErr) {
		return probeErr.Type
	}
	return Unknown
}

// NewAcquisitionError categorizes a page load failure. Failures that match no
// specific category are reported as fallback, which must be an acquisition type.
func NewAcquisitionError(url, operation string, cause error, fallback ErrorType) *ProbeError {
	pe := Categorize(cause, url, operation)
	if pe == nil || pe.Type != Unknown {
		return pe
	}
	if !fallback.IsAcquisition() {
		fallback = Network
	}
	return NewProbeError(fallback, url, operation, cause.Error(), cause)
}
