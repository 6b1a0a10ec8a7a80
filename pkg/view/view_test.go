package view

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"home.html": {Data: []byte(`<main><h1>{{ .Title }}</h1>{{ pagelet "news" }}</main>`)},
		"list.tmpl": {Data: []byte(`<ul>{{ range . }}<li>{{ . }}</li>{{ end }}</ul>`)},
		"about.md":  {Data: []byte("# {{ .Title }}\n\n<div data-pagelet=\"team\"></div>\n\n<script>alert(1)</script>\n")},
		"broken.html":  {Data: []byte(`{{ if }}`)},
		"data.json":    {Data: []byte(`{}`)},
		"pages/a.html": {Data: []byte(`<p>{{ . }}</p>`)},
	}
}

func TestHTMLEngine(t *testing.T) {
	set := NewSet(testFS())

	out, err := set.Render("home.html", map[string]string{"Title": "<News>"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want := `<main><h1>&lt;News&gt;</h1><div data-pagelet="news"></div></main>`
	if out != want {
		t.Errorf("Render() = %q, want %q", out, want)
	}

	out, err = set.Render("list.tmpl", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "<ul><li>a</li><li>b</li></ul>" {
		t.Errorf("Render() = %q", out)
	}

	out, err = set.Render("pages/a.html", "nested")
	if err != nil || out != "<p>nested</p>" {
		t.Errorf("Render(pages/a.html) = %q, %v", out, err)
	}
}

func TestMarkdownEngine(t *testing.T) {
	set := NewSet(testFS())

	out, err := set.Render("about.md", map[string]string{"Title": "About us"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(out, "<h1>About us</h1>") {
		t.Errorf("missing heading in %q", out)
	}
	if !strings.Contains(out, `<div data-pagelet="team">`) {
		t.Errorf("placeholder was stripped from %q", out)
	}
	if strings.Contains(out, "<script>") {
		t.Errorf("script survived sanitizing: %q", out)
	}
}

func TestSetErrors(t *testing.T) {
	set := NewSet(testFS())

	if _, err := set.Compile("data.json"); !errors.Is(err, ErrUnsupportedView) {
		t.Errorf("Compile(data.json) error = %v, want ErrUnsupportedView", err)
	}
	if _, err := set.Compile("broken.html"); err == nil {
		t.Error("expected parse error")
	}
	if _, err := set.Compile("missing.html"); err == nil {
		t.Error("expected error for missing view")
	}
	if err := set.Preload("home.html", "missing.md"); err == nil {
		t.Error("Preload should fail on the first broken view")
	}
}

type countingEngine struct{ n int }

func (c *countingEngine) Compile(name string) (Renderer, error) {
	c.n++
	return func(any) (string, error) { return name, nil }, nil
}

func TestSetCache(t *testing.T) {
	eng := &countingEngine{}

	cached := NewSet(fstest.MapFS{}, WithEngine(".x", eng))
	cached.Render("a.x", nil)
	cached.Render("a.x", nil)
	if eng.n != 1 {
		t.Errorf("compiled %d times with cache, want 1", eng.n)
	}

	eng.n = 0
	uncached := NewSet(fstest.MapFS{}, WithEngine(".x", eng), WithCache(false))
	uncached.Render("a.x", nil)
	uncached.Render("a.x", nil)
	if eng.n != 2 {
		t.Errorf("compiled %d times without cache, want 2", eng.n)
	}
}
