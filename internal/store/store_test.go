package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/PentesterFlow/uiprobe/internal/report"
)

func sampleRun(url string, buttons int) *Run {
	e := report.NewElements()
	for i := 0; i < buttons; i++ {
		e.Buttons = append(e.Buttons, report.ButtonRecord{Index: i, Text: "Entrar", Visible: true})
	}
	return &Run{
		ReportPath: "reports/login_page_discovery.json",
		Result: &report.Result{
			Timestamp: "2026-10-17T10:00:00-03:00",
			URL:       url,
			Backend:   "static",
			Elements:  e,
		},
	}
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	bolt, err := NewBoltStore(filepath.Join(t.TempDir(), "db", "history.db"))
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { bolt.Close() })

	return map[string]Store{
		"bolt":   bolt,
		"memory": NewMemoryStore(),
	}
}

// =============================================================================
// Store Contract Tests
// =============================================================================

func TestStore_PutGet(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			run := sampleRun("http://localhost:5173/", 2)

			id, err := s.Put(run)
			if err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			if id == "" || run.ID != id {
				t.Fatalf("Put() id = %q, run.ID = %q", id, run.ID)
			}
			if run.SavedAt.IsZero() {
				t.Error("SavedAt should be set")
			}

			got, err := s.Get(id)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if !report.SameElements(run.Result, got.Result) {
				t.Error("stored elements differ")
			}
			if got.ReportPath != run.ReportPath || got.Result.URL != run.Result.URL {
				t.Errorf("metadata differs: %+v", got)
			}
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get("42"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get() error = %v, want ErrNotFound", err)
			}
			if _, err := s.Get("abc"); err == nil {
				t.Error("Get() should reject non-numeric ids")
			}
		})
	}
}

func TestStore_PutNil(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Put(&Run{}); err == nil {
				t.Error("Put() without a result should fail")
			}
		})
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)
			for i, url := range []string{"http://a/", "http://b/", "http://c/"} {
				run := sampleRun(url, i)
				run.SavedAt = base.Add(time.Duration(i) * time.Minute)
				if _, err := s.Put(run); err != nil {
					t.Fatal(err)
				}
			}

			all, err := s.List(0)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("List() returned %d, want 3", len(all))
			}
			if all[0].URL != "http://c/" || all[2].URL != "http://a/" {
				t.Errorf("order = %s, %s, %s", all[0].URL, all[1].URL, all[2].URL)
			}
			if all[0].Total != 2 {
				t.Errorf("Total = %d, want 2", all[0].Total)
			}

			limited, _ := s.List(2)
			if len(limited) != 2 || limited[0].URL != "http://c/" {
				t.Errorf("List(2) = %+v", limited)
			}
		})
	}
}

func TestBoltStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.Put(sampleRun("http://localhost:5173/", 1))
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	reopened, err := NewBoltStore(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(id)
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if len(got.Result.Elements.Buttons) != 1 {
		t.Errorf("buttons = %d, want 1", len(got.Result.Elements.Buttons))
	}

	next, _ := reopened.Put(sampleRun("http://x/", 0))
	if next == id {
		t.Error("sequence should continue after reopen")
	}
}

func TestMemoryStore_CopiesResults(t *testing.T) {
	s := NewMemoryStore()
	run := sampleRun("http://a/", 1)
	id, _ := s.Put(run)

	run.Result.Elements.Buttons[0].Text = "changed"

	got, _ := s.Get(id)
	if got.Result.Elements.Buttons[0].Text != "Entrar" {
		t.Error("store should keep its own copy")
	}
}
