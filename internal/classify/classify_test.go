package classify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/PentesterFlow/uiprobe/internal/dom"
	"github.com/PentesterFlow/uiprobe/internal/logger"
	"github.com/PentesterFlow/uiprobe/internal/metrics"
	"github.com/PentesterFlow/uiprobe/internal/report"
)

// =============================================================================
// Fakes
// =============================================================================

var errStale = errors.New("node is detached from document")

type fakeElement struct {
	tag      string
	attrs    map[string]string
	text     string
	hidden   bool
	stale    bool
	children map[string][]dom.Element
}

func (e *fakeElement) Tag() (string, error) {
	if e.stale {
		return "", errStale
	}
	return e.tag, nil
}

func (e *fakeElement) Attribute(name string) (string, bool, error) {
	if e.stale {
		return "", false, errStale
	}
	v, ok := e.attrs[name]
	return v, ok, nil
}

func (e *fakeElement) Text() (string, error) {
	if e.stale {
		return "", errStale
	}
	return e.text, nil
}

func (e *fakeElement) Visible() (bool, error) {
	if e.stale {
		return false, errStale
	}
	return !e.hidden, nil
}

func (e *fakeElement) Query(selector string) ([]dom.Element, error) {
	if e.stale {
		return nil, errStale
	}
	return e.children[selector], nil
}

type fakeSource struct {
	results map[string][]dom.Element
	fail    map[string]error
	queries []string
}

func (s *fakeSource) Name() string                               { return "fake" }
func (s *fakeSource) Load(ctx context.Context, url string) error { return nil }
func (s *fakeSource) URL() string                                { return "http://fake/" }
func (s *fakeSource) Close() error                               { return nil }

func (s *fakeSource) Query(ctx context.Context, selector string) ([]dom.Element, error) {
	s.queries = append(s.queries, selector)
	if err := s.fail[selector]; err != nil {
		return nil, err
	}
	return s.results[selector], nil
}

func newClassifier(src dom.Source, cfg Config) (*Classifier, *report.Elements) {
	out := report.NewElements()
	return New(src, &out, logger.Nop(), cfg), &out
}

// =============================================================================
// Field Policy Tests
// =============================================================================

func TestDiscoverInputs_FieldPolicy(t *testing.T) {
	src := &fakeSource{results: map[string][]dom.Element{
		"input": {
			&fakeElement{tag: "input", attrs: map[string]string{"type": "email", "id": "email", "required": ""}},
			&fakeElement{tag: "input", attrs: map[string]string{"name": "q", "class": "  a b  "}},
		},
	}}
	c, out := newClassifier(src, DefaultConfig())

	n, err := c.DiscoverInputs(context.Background())
	if err != nil {
		t.Fatalf("DiscoverInputs() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("n = %d, want 2", n)
	}

	first := out.Inputs[0]
	if first.Type != "email" || !first.Required || first.Placeholder != "" || !first.Visible {
		t.Errorf("unexpected first record: %+v", first)
	}

	second := out.Inputs[1]
	if second.Type != "text" {
		t.Errorf("missing type should default to text, got %q", second.Type)
	}
	if second.Required {
		t.Error("required should be false when absent")
	}
	if second.Class != "a b" {
		t.Errorf("class = %q, want trimmed raw string", second.Class)
	}
	if second.Index != 1 {
		t.Errorf("index = %d, want 1", second.Index)
	}
}

func TestDiscover_AttributesKeptRaw(t *testing.T) {
	src := &fakeSource{results: map[string][]dom.Element{
		"input": {
			&fakeElement{tag: "input", attrs: map[string]string{"placeholder": "  Senha  ", "class": " pw "}},
		},
		"a": {
			&fakeElement{tag: "a", text: "  Esqueceu a senha? ", attrs: map[string]string{"href": " /forgot "}},
		},
		"img": {
			&fakeElement{tag: "img", attrs: map[string]string{"src": "/logo.svg", "alt": " Logo "}},
		},
	}}
	c, out := newClassifier(src, DefaultConfig())
	ctx := context.Background()

	if _, err := c.DiscoverInputs(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.DiscoverLinks(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.DiscoverImages(ctx); err != nil {
		t.Fatal(err)
	}

	if in := out.Inputs[0]; in.Placeholder != "  Senha  " || in.Class != "pw" {
		t.Errorf("input = %+v, want raw placeholder and trimmed class", in)
	}
	if link := out.Links[0]; link.Href != " /forgot " || link.Text != "Esqueceu a senha?" {
		t.Errorf("link = %+v, want raw href and trimmed text", link)
	}
	if img := out.Images[0]; img.Alt != " Logo " {
		t.Errorf("alt = %q, want raw attribute", img.Alt)
	}
}

func TestDiscoverButtons_DisabledPresence(t *testing.T) {
	src := &fakeSource{results: map[string][]dom.Element{
		"button": {
			&fakeElement{tag: "button", text: "  Entrar \n", attrs: map[string]string{"disabled": "false", "type": "submit"}},
			&fakeElement{tag: "button", text: "Cancelar", hidden: true},
		},
	}}
	c, out := newClassifier(src, DefaultConfig())

	if _, err := c.DiscoverButtons(context.Background()); err != nil {
		t.Fatalf("DiscoverButtons() error = %v", err)
	}

	if !out.Buttons[0].Disabled {
		t.Error("disabled=\"false\" should be true by presence")
	}
	if out.Buttons[0].Text != "Entrar" {
		t.Errorf("text = %q, want trimmed", out.Buttons[0].Text)
	}
	if out.Buttons[1].Disabled || out.Buttons[1].Visible {
		t.Errorf("unexpected second button: %+v", out.Buttons[1])
	}
}

// =============================================================================
// Failure Isolation Tests
// =============================================================================

func TestDiscoverLinks_StaleElementSkipped(t *testing.T) {
	src := &fakeSource{results: map[string][]dom.Element{
		"a": {
			&fakeElement{tag: "a", text: "Um", attrs: map[string]string{"href": "/1"}},
			&fakeElement{tag: "a", stale: true},
			&fakeElement{tag: "a", text: "Três", attrs: map[string]string{"href": "/3"}},
		},
	}}

	var logs bytes.Buffer
	out := report.NewElements()
	c := New(src, &out, logger.NewJSON(&logs, logger.DebugLevel), DefaultConfig())

	n, err := c.DiscoverLinks(context.Background())
	if err != nil {
		t.Fatalf("DiscoverLinks() error = %v", err)
	}
	if n != 2 || len(out.Links) != 2 {
		t.Fatalf("n = %d, links = %d, want 2", n, len(out.Links))
	}
	if out.Links[1].Href != "/3" || out.Links[1].Index != 1 {
		t.Errorf("indices should stay contiguous after a skip: %+v", out.Links[1])
	}
	if !strings.Contains(logs.String(), `"position":1`) {
		t.Errorf("skip warning should carry the DOM position, logs:\n%s", logs.String())
	}
}

func TestRun_RecordsMetrics(t *testing.T) {
	src := &fakeSource{results: map[string][]dom.Element{
		"input": {&fakeElement{tag: "input"}, &fakeElement{tag: "input"}},
		"a": {
			&fakeElement{tag: "a", attrs: map[string]string{"href": "/"}},
			&fakeElement{tag: "a", stale: true},
		},
	}}
	out := report.NewElements()
	m := metrics.New()
	c := New(src, &out, logger.Nop(), DefaultConfig()).WithMetrics(m)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	snap := m.Snapshot()
	if len(snap.Categories) != len(report.Categories()) {
		t.Fatalf("categories = %d, want %d", len(snap.Categories), len(report.Categories()))
	}
	if snap.FoundTotal != 3 || snap.SkippedTotal != 1 {
		t.Errorf("found/skipped = %d/%d, want 3/1", snap.FoundTotal, snap.SkippedTotal)
	}
	if links := snap.Categories[2]; links.Name != "links" || links.Found != 1 || links.Skipped != 1 {
		t.Errorf("links = %+v", links)
	}
}

func TestRun_QueryFailurePropagates(t *testing.T) {
	src := &fakeSource{
		results: map[string][]dom.Element{},
		fail:    map[string]error{"form": errors.New("session closed")},
	}
	c, _ := newClassifier(src, DefaultConfig())

	err := c.Run(context.Background())
	if err == nil {
		t.Fatal("Run() should fail when a query fails")
	}
	if !strings.Contains(err.Error(), "forms") {
		t.Errorf("error should name the category: %v", err)
	}
	for _, q := range src.queries {
		if q == "img" {
			t.Error("categories after the failure should not run")
		}
	}
}

func TestRun_Order(t *testing.T) {
	src := &fakeSource{results: map[string][]dom.Element{}}
	c, out := newClassifier(src, DefaultConfig())

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"input", "button", "a", "form", "h1", "h2", "h3", "h4", "h5", "h6", "img",
		"select", "textarea", "[role]", "[onclick]", "[data-testid]"}
	if strings.Join(src.queries, ",") != strings.Join(want, ",") {
		t.Errorf("query order = %v, want %v", src.queries, want)
	}
	if out.Inputs == nil || out.Interactive == nil {
		t.Error("empty categories should stay non-nil")
	}
}

func TestRun_Cancelled(t *testing.T) {
	src := &fakeSource{results: map[string][]dom.Element{
		"input": {&fakeElement{tag: "input"}},
	}}
	c, _ := newClassifier(src, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

// =============================================================================
// Headings Tests
// =============================================================================

func TestDiscoverHeadings_LevelOrder(t *testing.T) {
	src := &fakeSource{results: map[string][]dom.Element{
		"h1": {&fakeElement{tag: "h1", text: "Login"}},
		"h2": {&fakeElement{tag: "h2", text: "A"}, &fakeElement{tag: "h2", text: "B"}},
		"h4": {&fakeElement{tag: "h4", text: "C"}},
	}}
	c, out := newClassifier(src, DefaultConfig())

	n, err := c.DiscoverHeadings(context.Background())
	if err != nil {
		t.Fatalf("DiscoverHeadings() error = %v", err)
	}
	if n != 4 {
		t.Fatalf("n = %d, want 4", n)
	}

	tests := []struct {
		level, index, levelIndex int
		text                     string
	}{
		{1, 0, 0, "Login"},
		{2, 1, 0, "A"},
		{2, 2, 1, "B"},
		{4, 3, 0, "C"},
	}
	for i, tt := range tests {
		h := out.Headings[i]
		if h.Level != tt.level || h.Index != tt.index || h.LevelIndex != tt.levelIndex || h.Text != tt.text {
			t.Errorf("heading %d = %+v, want %+v", i, h, tt)
		}
	}
}

// =============================================================================
// Interactive Tests
// =============================================================================

func TestDiscoverInteractive_SelectOptions(t *testing.T) {
	options := make([]dom.Element, 0, 12)
	for i := 0; i < 12; i++ {
		options = append(options, &fakeElement{tag: "option", text: string(rune('A' + i))})
	}
	src := &fakeSource{results: map[string][]dom.Element{
		"select": {&fakeElement{tag: "select", attrs: map[string]string{"name": "uf"},
			children: map[string][]dom.Element{"option": options}}},
	}}
	c, out := newClassifier(src, DefaultConfig())

	if _, err := c.DiscoverInteractive(context.Background()); err != nil {
		t.Fatalf("DiscoverInteractive() error = %v", err)
	}

	rec := out.Interactive[0]
	if rec.Kind != report.KindSelect || rec.Tag != "select" || rec.Name != "uf" {
		t.Errorf("unexpected select record: %+v", rec)
	}
	if rec.OptionsCount != 12 {
		t.Errorf("OptionsCount = %d, want 12", rec.OptionsCount)
	}
	if len(rec.Options) != report.MaxSelectOptions || rec.Options[9] != "J" {
		t.Errorf("Options = %v, want first 10", rec.Options)
	}
}

func TestDiscoverInteractive_Passes(t *testing.T) {
	shared := &fakeElement{tag: "div", text: "Menu", attrs: map[string]string{"role": "button", "data-testid": "menu"}}
	src := &fakeSource{results: map[string][]dom.Element{
		"textarea":      {&fakeElement{tag: "textarea", attrs: map[string]string{"placeholder": "Obs"}}},
		"[role]":        {shared},
		"[data-testid]": {shared},
	}}
	c, out := newClassifier(src, DefaultConfig())

	n, err := c.DiscoverInteractive(context.Background())
	if err != nil {
		t.Fatalf("DiscoverInteractive() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("n = %d, want 3", n)
	}

	kinds := []string{report.KindTextarea, report.KindRole, report.KindSelector}
	for i, kind := range kinds {
		rec := out.Interactive[i]
		if rec.Kind != kind || rec.Index != i {
			t.Errorf("record %d = %s/%d, want %s/%d", i, rec.Kind, rec.Index, kind, i)
		}
		if rec.Options == nil {
			t.Errorf("record %d options should be non-nil", i)
		}
	}
	if out.Interactive[0].Placeholder != "Obs" {
		t.Errorf("textarea placeholder = %q", out.Interactive[0].Placeholder)
	}
	if out.Interactive[1].Role != "button" || out.Interactive[1].Text != "Menu" {
		t.Errorf("role record = %+v", out.Interactive[1])
	}
	if out.Interactive[2].Selector != "[data-testid]" || out.Interactive[2].TestID != "menu" {
		t.Errorf("selector record = %+v", out.Interactive[2])
	}
}

func TestDiscoverInteractive_GenericDisabled(t *testing.T) {
	src := &fakeSource{results: map[string][]dom.Element{
		"[onclick]": {&fakeElement{tag: "span"}},
	}}
	cfg := DefaultConfig()
	cfg.DisableGeneric = true
	c, out := newClassifier(src, cfg)

	if _, err := c.DiscoverInteractive(context.Background()); err != nil {
		t.Fatalf("DiscoverInteractive() error = %v", err)
	}
	if len(out.Interactive) != 0 {
		t.Errorf("generic pass should not run, got %d records", len(out.Interactive))
	}
	for _, q := range src.queries {
		if q == "[onclick]" {
			t.Error("[onclick] was queried")
		}
	}
}

// =============================================================================
// Static Backend Tests
// =============================================================================

func TestClassifier_StaticPage(t *testing.T) {
	html := `<html><body>
<h1>Acesso</h1>
<form action="/login" method="post">
  <input type="email" name="email" required>
  <input type="password" name="senha">
  <button type="submit">Entrar</button>
</form>
<a href="/esqueci">Esqueci a senha</a>
<img src="/logo.png" alt="Logo" width="120">
<div role="alert" data-testid="banner">Aviso</div>
<span onclick="go()">Clique</span>
</body></html>`

	src := dom.NewStaticSource(dom.DefaultStaticConfig())
	if err := src.Parse("http://localhost:5173/", strings.NewReader(html)); err != nil {
		t.Fatal(err)
	}
	c, out := newClassifier(src, DefaultConfig())

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	stats := out.ComputeStatistics()
	want := report.Statistics{Inputs: 2, Buttons: 1, Links: 1, Forms: 1, Headings: 1, Images: 1, Interactive: 3, Total: 10}
	if *stats != want {
		t.Errorf("statistics = %+v, want %+v", *stats, want)
	}
	if out.Images[0].Width != "120" || out.Images[0].Height != "" {
		t.Errorf("image record = %+v", out.Images[0])
	}
	if out.Forms[0].Method != "post" {
		t.Errorf("form method = %q", out.Forms[0].Method)
	}
}
