package assets

import (
	"reflect"
	"testing"

	"github.com/vango-dev/bigpipe/internal/errors"
	"github.com/vango-dev/bigpipe/pkg/pagelet"
)

func TestCatalogPage(t *testing.T) {
	m := NewManifest()
	m.Set("base.css", "base.5f2e81c9.css")

	page := pagelet.MustNormalize(pagelet.Module{
		Name: "home", Path: "/", View: "home.html",
		CSS: []string{"base.css"},
		JS:  []string{"home.js"},
		Children: []pagelet.Module{
			{Name: "news", View: "news.html", CSS: []string{"news.css", "base.css"}},
			{Name: "weather", View: "weather.html", JS: []string{"weather.js", "home.js"}},
		},
	})

	c := NewCatalog(NewResolver(m, "/dist/"))
	c.AddLibrary("realtime.js")
	c.AddLibrary("realtime.js")
	if err := c.Catalog([]*pagelet.Definition{page}); err != nil {
		t.Fatalf("Catalog() error = %v", err)
	}

	got := c.Page(pagelet.NewInstance(page))
	want := pagelet.Dependencies{
		CSS: []string{"/dist/base.5f2e81c9.css", "/dist/news.css"},
		JS:  []string{"/dist/realtime.js", "/dist/home.js", "/dist/weather.js"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Page() = %+v, want %+v", got, want)
	}

	news := page.Children()[0]
	if own := c.Own(news); !reflect.DeepEqual(own.CSS, []string{"/dist/news.css", "/dist/base.5f2e81c9.css"}) {
		t.Errorf("Own(news) = %+v", own)
	}

	got.CSS[0] = "mutated"
	if c.Page(pagelet.NewInstance(page)).CSS[0] == "mutated" {
		t.Error("Page() exposed internal state")
	}
}

func TestCatalogUnknownDefinition(t *testing.T) {
	c := NewCatalog(nil)
	c.AddLibrary("/lib.js")
	other := pagelet.MustNormalize(pagelet.Module{Name: "x", View: "x.html", CSS: []string{"x.css"}})

	got := c.Page(pagelet.NewInstance(other))
	if len(got.CSS) != 0 || !reflect.DeepEqual(got.JS, []string{"/lib.js"}) {
		t.Errorf("Page() = %+v", got)
	}
}

func TestCatalogInvalidReference(t *testing.T) {
	for _, ref := range []string{"", "../secret.css", "a/../../b.js"} {
		def := pagelet.MustNormalize(pagelet.Module{Name: "p", View: "p.html", Children: []pagelet.Module{
			{Name: "c", View: "c.html", CSS: []string{ref}},
		}})
		err := NewCatalog(nil).Catalog([]*pagelet.Definition{def})
		if !errors.HasCode(err, "B161") {
			t.Errorf("Catalog(%q) error = %v, want B161", ref, err)
		}
	}
}
