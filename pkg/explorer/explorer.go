// Package explorer loads one web page, classifies its elements and writes a
// discovery report.
//
// Usage:
//
//	ex, err := explorer.New(explorer.WithBaseURL("http://localhost:5173"))
//	if err != nil { ... }
//	defer ex.Close()
//	result, err := ex.DiscoverAll(ctx, "")
//	ex.PrintSummary(os.Stdout)
//	path, err := ex.SaveReport("")
package explorer

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-rod/rod"

	"github.com/PentesterFlow/uiprobe/internal/capture"
	"github.com/PentesterFlow/uiprobe/internal/classify"
	"github.com/PentesterFlow/uiprobe/internal/dom"
	"github.com/PentesterFlow/uiprobe/internal/errors"
	"github.com/PentesterFlow/uiprobe/internal/logger"
	"github.com/PentesterFlow/uiprobe/internal/metrics"
	"github.com/PentesterFlow/uiprobe/internal/report"
	"github.com/PentesterFlow/uiprobe/internal/store"
)

// pageSource is a source that can hand out its browser page.
type pageSource interface {
	dom.Source
	Page() *rod.Page
}

// sizedSource reports how many bytes the last load read.
type sizedSource interface {
	Size() int
}

// Explorer runs discovery for one page at a time. It is not safe for
// concurrent use.
type Explorer struct {
	config *Config
	logger *logger.Logger
	clock  func() time.Time
	out    io.Writer
	logOut io.Writer

	source     dom.Source
	ownsSource bool
	store      store.Store
	ownsStore  bool

	started   time.Time
	timestamp string
	result    *report.Result
	collector *metrics.Collector
	metrics   *metrics.Snapshot
}

// New creates an explorer. The run timestamp is taken here, once.
// WithConfig replaces earlier options, so pass it first.
func New(opts ...Option) (*Explorer, error) {
	e := &Explorer{
		config:     DefaultConfig(),
		clock:      time.Now,
		out:        os.Stdout,
		ownsSource: true,
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if e.logger == nil {
		e.logger = logger.New(logger.Config{
			Level:  e.config.LogLevel(),
			Pretty: true,
			Output: e.logOut,
		})
	}
	e.logger = e.logger.WithComponent("explorer")

	e.started = e.clock()
	e.timestamp = e.started.Format(time.RFC3339)
	e.collector = metrics.New()

	return e, nil
}

// Config returns a copy of the effective configuration.
func (e *Explorer) Config() *Config {
	return e.config.Clone()
}

// Logger returns the explorer's logger.
func (e *Explorer) Logger() *logger.Logger {
	return e.logger
}

// Timestamp returns the run timestamp stamped on every result.
func (e *Explorer) Timestamp() string {
	return e.timestamp
}

func (e *Explorer) openSource() (dom.Source, error) {
	if e.source != nil {
		return e.source, nil
	}

	switch e.config.Backend {
	case dom.BackendRendered:
		src, err := dom.NewRenderedSource(e.config.Browser)
		if err != nil {
			return nil, err
		}
		e.source = src
	default:
		e.source = dom.NewStaticSource(e.config.Static)
	}
	e.ownsSource = true
	return e.source, nil
}

// DiscoverAll loads url (BaseURL when empty) and classifies every category in
// order. On an acquisition failure it returns no result and clears any earlier
// one, so nothing can be saved.
func (e *Explorer) DiscoverAll(ctx context.Context, url string) (*report.Result, error) {
	if url == "" {
		url = e.config.BaseURL
	}
	log := e.logger.WithURL(url)
	e.result = nil

	src, err := e.openSource()
	if err != nil {
		log.WithError(err).Error("Failed to open page source")
		return nil, err
	}

	m := e.collector
	m.Reset()
	defer func() { e.metrics = m.Snapshot() }()

	log.Event(logger.InfoLevel).Str("backend", src.Name()).Msg("Loading page")
	loadStart := time.Now()
	if err := src.Load(ctx, url); err != nil {
		if !errors.IsAcquisition(err) && errors.GetErrorType(err) != errors.Cancelled {
			err = errors.NewAcquisitionError(url, "load", err, errors.Network)
		}
		m.RecordError(errors.GetErrorType(err).String())
		log.WithError(err).Error("Failed to load page")
		return nil, err
	}
	var size int64
	if ss, ok := src.(sizedSource); ok {
		size = int64(ss.Size())
	}
	m.RecordLoad(time.Since(loadStart), size)

	elements := report.NewElements()
	c := classify.New(src, &elements, e.logger, e.config.Classify).WithMetrics(m)
	if err := c.Run(ctx); err != nil {
		m.RecordError(errors.GetErrorType(err).String())
		log.WithError(err).Error("Discovery failed")
		return nil, err
	}

	result := &report.Result{
		Timestamp: e.timestamp,
		URL:       url,
		Backend:   src.Name(),
		Elements:  elements,
	}
	if e.config.Statistics {
		result.Statistics = elements.ComputeStatistics()
	}
	e.result = result

	log.Event(logger.InfoLevel).
		Fields(m.Snapshot().Summary()).
		Msg("Discovery complete")

	return result.Clone(), nil
}

// Result returns a copy of the last successful result, or nil.
func (e *Explorer) Result() *report.Result {
	return e.result.Clone()
}

// Metrics returns timings and counts of the last DiscoverAll call, or nil.
func (e *Explorer) Metrics() *metrics.Snapshot {
	return e.metrics
}

// PrintSummary writes per-category counts of the last result to w, or to
// the configured output when w is nil.
func (e *Explorer) PrintSummary(w io.Writer) {
	if w == nil {
		w = e.out
	}
	report.PrintSummary(w, e.result)
}

// SaveReport writes the last result to the reports directory and returns the
// file path. An empty filename uses report.DefaultFilename. The run is also
// recorded in the history store when one is configured.
func (e *Explorer) SaveReport(filename string) (string, error) {
	if e.result == nil {
		return "", fmt.Errorf("no discovery result to save")
	}
	if filename == "" {
		filename = report.DefaultFilename(e.started)
	}

	path, err := report.Save(e.config.ReportsDir, filename, e.result)
	if err != nil {
		return "", err
	}
	e.logger.Event(logger.InfoLevel).Str("path", path).Msg("Report saved")

	if s := e.historyStore(); s != nil {
		id, err := s.Put(&store.Run{
			ReportPath: path,
			Result:     e.result.Clone(),
		})
		if err != nil {
			e.logger.WithError(err).Warn("Failed to record run in history")
		} else {
			e.logger.Event(logger.DebugLevel).Str("run_id", id).Msg("Run recorded")
		}
	}

	return path, nil
}

// historyStore returns the injected store, or opens the configured history
// database on first use. Failures to open are logged and disable history.
func (e *Explorer) historyStore() store.Store {
	if e.store != nil {
		return e.store
	}
	path := e.config.HistoryFile()
	if path == "" {
		return nil
	}
	s, err := store.NewBoltStore(path)
	if err != nil {
		e.logger.WithError(err).Warn("Failed to open history")
		return nil
	}
	e.store = s
	e.ownsStore = true
	return s
}

// Screenshot captures the loaded page. Only the rendered backend can do this.
func (e *Explorer) Screenshot(ctx context.Context) (*capture.Capture, error) {
	ps, ok := e.source.(pageSource)
	if !ok || ps.Page() == nil {
		return nil, fmt.Errorf("screenshots need a page loaded with the %s backend", dom.BackendRendered)
	}

	cfg := e.config.Screenshot
	cfg.Dir = e.config.ScreenshotDir()

	c, err := capture.Save(ctx, ps.Page(), cfg, e.started)
	if err != nil {
		return nil, err
	}
	e.logger.Event(logger.InfoLevel).Str("path", c.Path).Msg("Screenshot saved")
	return c, nil
}

// Close releases the page source and history store the explorer opened.
func (e *Explorer) Close() error {
	var lastErr error
	if e.source != nil && e.ownsSource {
		if err := e.source.Close(); err != nil {
			lastErr = err
		}
		e.source = nil
	}
	if e.store != nil && e.ownsStore {
		if err := e.store.Close(); err != nil {
			lastErr = err
		}
		e.store = nil
	}
	return lastErr
}

// Compare reports whether two results found the same elements, ignoring
// timestamps.
func Compare(a, b *report.Result) bool {
	return report.SameElements(a, b)
}
