package pagelet

import (
	"context"
	"testing"

	"github.com/vango-dev/bigpipe/internal/errors"
)

type staticRenderer string

func (s staticRenderer) Render(ctx context.Context, in *Instance) (string, error) {
	return string(s), nil
}

func TestNormalizeDefaults(t *testing.T) {
	def, err := Normalize(Module{Name: "home", Path: "/", View: "home.html"})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if def.ID() != "home" {
		t.Errorf("ID = %q, want home", def.ID())
	}
	if def.Mode() != ModeAsync {
		t.Errorf("Mode = %q, want async", def.Mode())
	}
	if def.StatusCode() != 200 {
		t.Errorf("StatusCode = %d, want 200", def.StatusCode())
	}
	if def.ContentType() != DefaultContentType {
		t.Errorf("ContentType = %q", def.ContentType())
	}
	if !def.Routable() {
		t.Error("expected definition with a path to be routable")
	}
	if !def.AcceptsMethod("DELETE") {
		t.Error("empty method set should accept any method")
	}
}

func TestNormalizeErrors(t *testing.T) {
	tests := []struct {
		name string
		mod  Module
		code string
	}{
		{"no name", Module{Path: "/", View: "a.html"}, "B101"},
		{"no view", Module{Name: "a", Path: "/"}, "B114"},
		{"bad mode", Module{Name: "a", View: "a.html", Mode: "eager"}, "B111"},
		{"bad path", Module{Name: "a", View: "a.html", Path: "relative"}, "B110"},
		{"bad method", Module{Name: "a", View: "a.html", Methods: []string{"GE T"}}, "B112"},
		{"duplicate child", Module{Name: "a", View: "a.html", Children: []Module{
			{Name: "c", View: "c.html"},
			{Name: "c", View: "c.html"},
		}}, "B102"},
		{"invalid child", Module{Name: "a", View: "a.html", Children: []Module{{View: "c.html"}}}, "B101"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.mod)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.HasCode(err, tt.code) {
				t.Errorf("error = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestNormalizeRendererWithoutView(t *testing.T) {
	if _, err := Normalize(Module{Name: "plain", Producer: staticRenderer("ok")}); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
}

func TestDefinitionMatches(t *testing.T) {
	def := MustNormalize(Module{Name: "post", Path: "/posts/:id:int", Methods: []string{"get", "HEAD"}, View: "post.html"})

	if !def.Matches("GET", "/posts/7") {
		t.Error("GET /posts/7 should match")
	}
	if def.Matches("POST", "/posts/7") {
		t.Error("POST should not be accepted")
	}
	if def.Matches("GET", "/posts/seven") {
		t.Error("non-integer id should not match")
	}

	child := MustNormalize(Module{Name: "aside", View: "aside.html"})
	if child.Routable() || child.Matches("GET", "/") {
		t.Error("definition without a path must never match")
	}
}

func TestDefinitionIsImmutable(t *testing.T) {
	css := []string{"a.css"}
	def := MustNormalize(Module{Name: "a", View: "a.html", CSS: css})
	css[0] = "changed.css"
	if got := def.CSS()[0]; got != "a.css" {
		t.Errorf("CSS()[0] = %q, want a.css", got)
	}

	out := def.CSS()
	out[0] = "other.css"
	if got := def.CSS()[0]; got != "a.css" {
		t.Errorf("CSS()[0] after caller mutation = %q", got)
	}
}

func TestDefinitionModuleRoundTrip(t *testing.T) {
	def := MustNormalize(Module{
		Name: "page", Path: "/", View: "page.html", Mode: ModePipeline,
		Children: []Module{{Name: "one", View: "one.html"}, {Name: "two", View: "two.html"}},
	})
	again := MustNormalize(def.Module())
	if again.Mode() != ModePipeline || len(again.Children()) != 2 || again.Children()[1].Name() != "two" {
		t.Errorf("round trip lost fields: %+v", again.Module())
	}
}

func TestWalk(t *testing.T) {
	def := MustNormalize(Module{Name: "root", View: "r.html", Children: []Module{
		{Name: "a", View: "a.html", Children: []Module{{Name: "a1", View: "a1.html"}}},
		{Name: "b", View: "b.html"},
	}})

	var names []string
	def.Walk(func(d *Definition) { names = append(names, d.Name()) })

	want := []string{"root", "a", "a1", "b"}
	if len(names) != len(want) {
		t.Fatalf("Walk visited %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"render", "sync", "async", "pipeline"} {
		if _, err := ParseMode(s); err != nil {
			t.Errorf("ParseMode(%q) error = %v", s, err)
		}
	}
	if m, _ := ParseMode(""); m != DefaultMode {
		t.Errorf("ParseMode(\"\") = %q, want %q", m, DefaultMode)
	}
	if _, err := ParseMode("stream"); err == nil {
		t.Error("expected error for unknown mode")
	}
	if ModeRender.Progressive() || ModeSync.Progressive() || !ModePipeline.Progressive() {
		t.Error("Progressive() returned wrong values")
	}
}
