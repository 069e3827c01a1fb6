package dom

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
)

func newRendered(t *testing.T) *RenderedSource {
	t.Helper()
	if _, ok := launcher.LookPath(); !ok {
		t.Skip("no browser binary found")
	}

	s, err := NewRenderedSource(DefaultRenderedConfig())
	if err != nil {
		t.Fatalf("NewRenderedSource() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRenderedSource_ScriptBuiltDOM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body>
<button id="static">Static</button>
<button id="hidden" style="display:none">Hidden</button>
<script>
  var b = document.createElement("button");
  b.id = "dynamic";
  b.textContent = "Entrar";
  document.body.appendChild(b);
</script>
</body></html>`))
	}))
	defer srv.Close()

	s := newRendered(t)
	ctx := context.Background()
	if err := s.Load(ctx, srv.URL); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Page() == nil {
		t.Fatal("Page() should be set after Load")
	}

	els, err := s.Query(ctx, "button")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(els) != 3 {
		t.Fatalf("got %d buttons, want 3", len(els))
	}

	id, _ := AttrOrEmpty(els[2], "id")
	if id != "dynamic" {
		t.Errorf("third button id = %s, want dynamic", id)
	}
	if tag, _ := els[2].Tag(); tag != "button" {
		t.Errorf("Tag() = %s, want button", tag)
	}
	if text, _ := els[2].Text(); text != "Entrar" {
		t.Errorf("Text() = %s, want Entrar", text)
	}
	if v, _ := els[1].Visible(); v {
		t.Error("display:none button should be invisible")
	}
	if v, _ := els[0].Visible(); !v {
		t.Error("plain button should be visible")
	}
}

func TestRenderedSource_WaitsForRequestsStartedDuringLoad(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body>
<script>
  fetch("/slow").then(function (r) { return r.text(); }).then(function () {
    var b = document.createElement("button");
    b.id = "late";
    document.body.appendChild(b);
  });
</script>
</body></html>`))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(1200 * time.Millisecond)
		w.Write([]byte("ok"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := newRendered(t)
	ctx := context.Background()
	if err := s.Load(ctx, srv.URL); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	els, err := s.Query(ctx, "button#late")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(els) != 1 {
		t.Error("Load returned before the request issued during page load finished")
	}
}

func TestRenderedSource_QueryBeforeLoad(t *testing.T) {
	s := newRendered(t)

	if _, err := s.Query(context.Background(), "a"); err == nil {
		t.Error("Query() before Load should fail")
	}
}
