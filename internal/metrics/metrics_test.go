package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	c := New()
	if c == nil {
		t.Fatal("New() returned nil")
	}

	snap := c.Snapshot()
	if snap.FoundTotal != 0 || len(snap.Categories) != 0 {
		t.Errorf("new collector should be empty: %+v", snap)
	}
}

func TestCollector_RecordCategory(t *testing.T) {
	c := New()

	c.RecordCategory("inputs", 3, 10*time.Millisecond)
	c.RecordCategory("buttons", 1, 5*time.Millisecond)
	c.RecordCategory("inputs", 2, 5*time.Millisecond)

	snap := c.Snapshot()
	if snap.FoundTotal != 6 {
		t.Errorf("FoundTotal = %d, want 6", snap.FoundTotal)
	}
	if len(snap.Categories) != 2 {
		t.Fatalf("Categories = %d, want 2", len(snap.Categories))
	}
	if snap.Categories[0].Name != "inputs" || snap.Categories[1].Name != "buttons" {
		t.Errorf("categories should keep first-seen order: %+v", snap.Categories)
	}
	if snap.Categories[0].Found != 5 || snap.Categories[0].Duration != 15*time.Millisecond {
		t.Errorf("inputs = %+v", snap.Categories[0])
	}
}

func TestCollector_RecordSkip(t *testing.T) {
	c := New()

	c.RecordCategory("links", 3, 0)
	c.RecordSkip("links")

	snap := c.Snapshot()
	if snap.SkippedTotal != 1 || snap.Categories[0].Skipped != 1 {
		t.Errorf("skips = %d / %+v", snap.SkippedTotal, snap.Categories[0])
	}
	if rate := snap.SkipRate(); rate != 0.25 {
		t.Errorf("SkipRate() = %v, want 0.25", rate)
	}
}

func TestCollector_RecordError(t *testing.T) {
	c := New()

	c.RecordError("network")
	c.RecordError("network")
	c.RecordError("timeout")

	snap := c.Snapshot()
	if snap.ErrorsTotal != 3 {
		t.Errorf("ErrorsTotal = %d, want 3", snap.ErrorsTotal)
	}
	if snap.ErrorCounts["network"] != 2 {
		t.Errorf("ErrorCounts[network] = %d, want 2", snap.ErrorCounts["network"])
	}
	if snap.ErrorCounts["timeout"] != 1 {
		t.Errorf("ErrorCounts[timeout] = %d, want 1", snap.ErrorCounts["timeout"])
	}
}

func TestCollector_Elapsed(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	c := NewWithClock(func() time.Time { return now })

	c.RecordLoad(250*time.Millisecond, 4096)
	now = now.Add(2 * time.Second)

	snap := c.Snapshot()
	if snap.Elapsed != 2*time.Second {
		t.Errorf("Elapsed = %v, want 2s", snap.Elapsed)
	}
	if snap.LoadDuration != 250*time.Millisecond || snap.PageBytes != 4096 {
		t.Errorf("load = %v / %d", snap.LoadDuration, snap.PageBytes)
	}
}

func TestCollector_Reset(t *testing.T) {
	c := New()
	c.RecordLoad(time.Second, 10)
	c.RecordCategory("forms", 1, time.Millisecond)
	c.RecordSkip("forms")
	c.RecordError("parse")

	c.Reset()

	snap := c.Snapshot()
	if snap.FoundTotal != 0 || snap.SkippedTotal != 0 || snap.ErrorsTotal != 0 {
		t.Errorf("counters not reset: %+v", snap)
	}
	if len(snap.Categories) != 0 || len(snap.ErrorCounts) != 0 {
		t.Errorf("breakdowns not reset: %+v", snap)
	}
	if snap.LoadDuration != 0 {
		t.Errorf("LoadDuration = %v", snap.LoadDuration)
	}
}

func TestCollector_Concurrent(t *testing.T) {
	c := New()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordCategory("interactive", 1, time.Microsecond)
				c.RecordSkip("interactive")
				c.Snapshot()
			}
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	if snap.FoundTotal != 1000 || snap.SkippedTotal != 1000 {
		t.Errorf("found/skipped = %d/%d, want 1000/1000", snap.FoundTotal, snap.SkippedTotal)
	}
}

func TestSnapshot_Summary(t *testing.T) {
	snap := &Snapshot{FoundTotal: 9, SkippedTotal: 1, LoadDuration: 1500 * time.Millisecond}

	sum := snap.Summary()
	if sum["found"] != int64(9) || sum["load_ms"] != int64(1500) {
		t.Errorf("Summary() = %v", sum)
	}
	if sum["skip_rate"] != 0.1 {
		t.Errorf("skip_rate = %v, want 0.1", sum["skip_rate"])
	}
}
