// Package metrics collects timings and counts for one discovery run.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector collects and aggregates metrics.
type Collector struct {
	mu sync.RWMutex

	// Counters
	found     atomic.Int64
	skipped   atomic.Int64
	errors    atomic.Int64
	pageBytes atomic.Int64

	// Timings
	loadTime atomic.Int64

	categories  map[string]*categoryCounters
	order       []string
	errorCounts map[string]int64

	startTime time.Time
	now       func() time.Time
}

type categoryCounters struct {
	found    int64
	skipped  int64
	duration time.Duration
}

// New creates a new metrics collector.
func New() *Collector {
	return NewWithClock(time.Now)
}

// NewWithClock creates a collector that reads time from now.
func NewWithClock(now func() time.Time) *Collector {
	return &Collector{
		categories:  make(map[string]*categoryCounters),
		errorCounts: make(map[string]int64),
		startTime:   now(),
		now:         now,
	}
}

func (c *Collector) category(name string) *categoryCounters {
	cc, ok := c.categories[name]
	if !ok {
		cc = &categoryCounters{}
		c.categories[name] = cc
		c.order = append(c.order, name)
	}
	return cc
}

// RecordLoad records how long acquiring the page took and its size, when known.
func (c *Collector) RecordLoad(d time.Duration, bytes int64) {
	c.loadTime.Store(int64(d))
	c.pageBytes.Store(bytes)
}

// RecordCategory records a finished category.
func (c *Collector) RecordCategory(name string, found int, d time.Duration) {
	c.found.Add(int64(found))

	c.mu.Lock()
	cc := c.category(name)
	cc.found += int64(found)
	cc.duration += d
	c.mu.Unlock()
}

// RecordSkip records an element dropped during extraction.
func (c *Collector) RecordSkip(name string) {
	c.skipped.Add(1)

	c.mu.Lock()
	c.category(name).skipped++
	c.mu.Unlock()
}

// RecordError records a run-level error by type.
func (c *Collector) RecordError(errorType string) {
	c.errors.Add(1)

	c.mu.Lock()
	c.errorCounts[errorType]++
	c.mu.Unlock()
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() *Snapshot {
	s := &Snapshot{
		Elapsed:      c.now().Sub(c.startTime),
		LoadDuration: time.Duration(c.loadTime.Load()),
		PageBytes:    c.pageBytes.Load(),
		FoundTotal:   c.found.Load(),
		SkippedTotal: c.skipped.Load(),
		ErrorsTotal:  c.errors.Load(),
		ErrorCounts:  make(map[string]int64),
	}

	c.mu.RLock()
	s.Categories = make([]CategoryMetrics, 0, len(c.order))
	for _, name := range c.order {
		cc := c.categories[name]
		s.Categories = append(s.Categories, CategoryMetrics{
			Name:     name,
			Found:    cc.found,
			Skipped:  cc.skipped,
			Duration: cc.duration,
		})
	}
	for k, v := range c.errorCounts {
		s.ErrorCounts[k] = v
	}
	c.mu.RUnlock()

	return s
}

// Reset clears all metrics and restarts the clock.
func (c *Collector) Reset() {
	c.found.Store(0)
	c.skipped.Store(0)
	c.errors.Store(0)
	c.pageBytes.Store(0)
	c.loadTime.Store(0)

	c.mu.Lock()
	c.categories = make(map[string]*categoryCounters)
	c.order = nil
	c.errorCounts = make(map[string]int64)
	c.startTime = c.now()
	c.mu.Unlock()
}

// CategoryMetrics is the per-category part of a Snapshot.
type CategoryMetrics struct {
	Name     string        `json:"name"`
	Found    int64         `json:"found"`
	Skipped  int64         `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// Snapshot represents a point-in-time view of metrics.
type Snapshot struct {
	Elapsed      time.Duration     `json:"elapsed"`
	LoadDuration time.Duration     `json:"load_duration"`
	PageBytes    int64             `json:"page_bytes"`
	FoundTotal   int64             `json:"found_total"`
	SkippedTotal int64             `json:"skipped_total"`
	ErrorsTotal  int64             `json:"errors_total"`
	Categories   []CategoryMetrics `json:"categories"`
	ErrorCounts  map[string]int64  `json:"error_counts"`
}

// SkipRate returns skipped / (found + skipped).
func (s *Snapshot) SkipRate() float64 {
	seen := s.FoundTotal + s.SkippedTotal
	if seen == 0 {
		return 0
	}
	return float64(s.SkippedTotal) / float64(seen)
}

// Summary returns the snapshot as log-friendly fields.
func (s *Snapshot) Summary() map[string]interface{} {
	return map[string]interface{}{
		"elapsed_ms": s.Elapsed.Milliseconds(),
		"load_ms":    s.LoadDuration.Milliseconds(),
		"page_bytes": s.PageBytes,
		"found":      s.FoundTotal,
		"skipped":    s.SkippedTotal,
		"skip_rate":  s.SkipRate(),
		"errors":     s.ErrorsTotal,
		"categories": len(s.Categories),
	}
}
