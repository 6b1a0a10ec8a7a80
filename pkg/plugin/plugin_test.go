package plugin

import (
	"errors"
	"net/http"
	"reflect"
	"testing"

	bperrors "github.com/vango-dev/bigpipe/internal/errors"
	"github.com/vango-dev/bigpipe/pkg/middleware"
	"github.com/vango-dev/bigpipe/pkg/pipe"
)

type fakeApp struct {
	chain *middleware.Chain
	hooks *pipe.Hooks
	opts  *Options
}

func newFakeApp() *fakeApp {
	return &fakeApp{chain: middleware.NewChain(), hooks: &pipe.Hooks{}, opts: NewOptions(nil)}
}

func (a *fakeApp) Use(name string, l middleware.Layer) error { return a.chain.Use(name, l) }
func (a *fakeApp) Hooks() *pipe.Hooks                        { return a.hooks }
func (a *fakeApp) Options() *Options                         { return a.opts }

type libs struct{ added []string }

func (l *libs) AddLibrary(src string) { l.added = append(l.added, src) }

func TestRegisterRunsServerHook(t *testing.T) {
	app := newFakeApp()
	l := &libs{}
	h := NewHost(app, l, nil)

	calls := 0
	err := h.Register("analytics", Plugin{
		Options: map[string]any{"analytics.id": "UA-1"},
		Library: []string{"vendor/analytics.js"},
		Client:  "/dist/analytics-client.js",
		Server: func(a App, opts *Options) error {
			calls++
			if opts.String("analytics.id", "") != "UA-1" {
				t.Error("options were not merged before the server hook")
			}
			return a.Use("analytics", middleware.LayerFunc(func(w http.ResponseWriter, r *http.Request, next middleware.Next) error {
				return next(r)
			}))
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if calls != 1 {
		t.Errorf("server hook called %d times", calls)
	}
	if !reflect.DeepEqual(app.chain.Names(), []string{"analytics"}) {
		t.Errorf("layers = %v", app.chain.Names())
	}
	if !reflect.DeepEqual(l.added, []string{"vendor/analytics.js"}) {
		t.Errorf("libraries = %v", l.added)
	}
	if !reflect.DeepEqual(h.Scripts(), []string{"/dist/analytics-client.js"}) {
		t.Errorf("scripts = %v", h.Scripts())
	}
}

func TestRegisterClientOnly(t *testing.T) {
	h := NewHost(newFakeApp(), nil, nil)
	if err := h.Register("toast", Plugin{Client: "/dist/toast.js"}); err != nil {
		t.Fatal(err)
	}
	if err := h.Register("spinner", Plugin{Client: "/dist/spinner.js"}); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(h.Names(), []string{"toast", "spinner"}) {
		t.Errorf("names = %v", h.Names())
	}
	if !reflect.DeepEqual(h.Scripts(), []string{"/dist/toast.js", "/dist/spinner.js"}) {
		t.Errorf("scripts = %v", h.Scripts())
	}
}

func TestRegisterWithoutHooksChangesNothing(t *testing.T) {
	app := newFakeApp()
	l := &libs{}
	h := NewHost(app, l, nil)

	err := h.Register("empty", Plugin{
		Options: map[string]any{"leak": true},
		Library: []string{"vendor/leak.js"},
	})
	if !bperrors.HasCode(err, "B121") {
		t.Fatalf("err = %v, want B121", err)
	}
	if _, ok := h.Plugin("empty"); ok {
		t.Error("plugin was recorded")
	}
	if len(app.opts.Keys()) != 0 || len(l.added) != 0 || len(h.Names()) != 0 {
		t.Errorf("host mutated: options %v libraries %v", app.opts.Keys(), l.added)
	}
}

func TestRegisterDuplicateKeepsFirst(t *testing.T) {
	app := newFakeApp()
	h := NewHost(app, nil, nil)

	first := 0
	if err := h.Register("auth", Plugin{Server: func(App, *Options) error { first++; return nil }, Options: map[string]any{"auth.realm": "first"}}); err != nil {
		t.Fatal(err)
	}

	second := 0
	err := h.Register("auth", Plugin{
		Server:  func(App, *Options) error { second++; return nil },
		Client:  "/dist/second.js",
		Options: map[string]any{"auth.realm": "second"},
	})
	if !bperrors.HasCode(err, "B122") {
		t.Fatalf("err = %v, want B122", err)
	}
	if first != 1 || second != 0 {
		t.Errorf("server hooks: first %d second %d", first, second)
	}
	if got := app.opts.String("auth.realm", ""); got != "first" {
		t.Errorf("auth.realm = %q", got)
	}
	if p, _ := h.Plugin("auth"); p.Client != "" {
		t.Error("first plugin was replaced")
	}
	if len(h.Scripts()) != 0 {
		t.Errorf("scripts = %v", h.Scripts())
	}
}

func TestRegisterEmptyName(t *testing.T) {
	h := NewHost(newFakeApp(), nil, nil)
	if err := h.Register("", Plugin{Client: "/x.js"}); !bperrors.HasCode(err, "B120") {
		t.Errorf("err = %v, want B120", err)
	}
}

func TestRegisterServerFailure(t *testing.T) {
	boom := errors.New("boom")
	h := NewHost(newFakeApp(), nil, nil)

	err := h.Register("broken", Plugin{Server: func(App, *Options) error { return boom }})
	if !bperrors.HasCode(err, "B123") || !errors.Is(err, boom) {
		t.Errorf("err = %v, want B123 wrapping boom", err)
	}
}

func TestOptions(t *testing.T) {
	o := NewOptions(map[string]any{"title": "News", "debug": true})

	if o.Get("missing", 42) != 42 {
		t.Error("backup not returned")
	}
	if o.String("title", "") != "News" || o.String("debug", "x") != "x" {
		t.Error("String mismatch")
	}
	if !o.Bool("debug", false) || o.Bool("title", true) != true {
		t.Error("Bool mismatch")
	}

	o.Merge(map[string]any{"title": "Daily", "lang": "nl"})
	o.Set("port", 8080)
	if o.String("title", "") != "Daily" || o.Get("port", 0) != 8080 {
		t.Error("Merge or Set did not apply")
	}
	if !reflect.DeepEqual(o.Keys(), []string{"debug", "lang", "port", "title"}) {
		t.Errorf("Keys() = %v", o.Keys())
	}
}
