package pipe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"

	"github.com/vango-dev/bigpipe/pkg/pagelet"
	"github.com/vango-dev/bigpipe/pkg/render"
)

type markup string

func (m markup) Render(ctx context.Context, in *pagelet.Instance) (string, error) {
	return string(m), nil
}

// gated renders once its gate opens.
type gated struct {
	markup string
	gate   chan struct{}
	err    error
}

func newGated(markup string) *gated {
	return &gated{markup: markup, gate: make(chan struct{})}
}

func (g *gated) Render(ctx context.Context, in *pagelet.Instance) (string, error) {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return g.markup, g.err
}

// stubborn ignores cancellation.
type stubborn struct{ gate chan struct{} }

func (s stubborn) Render(ctx context.Context, in *pagelet.Instance) (string, error) {
	<-s.gate
	return "late", nil
}

type failing struct{ err error }

func (f failing) Render(ctx context.Context, in *pagelet.Instance) (string, error) {
	return "", f.err
}

type panicking struct{}

func (panicking) Render(ctx context.Context, in *pagelet.Instance) (string, error) {
	panic("nil template")
}

type rejecting struct{ markup }

func (rejecting) Authorize(ctx context.Context, r *http.Request, in *pagelet.Instance) (bool, error) {
	return false, nil
}

// progress reports rendering on channels.
type progress struct {
	rendered chan string
	written  chan string

	mu    sync.Mutex
	ended []EndResult
}

func newProgress() *progress {
	return &progress{rendered: make(chan string, 32), written: make(chan string, 32)}
}

func (p *progress) Rendered(name string, d time.Duration, err error) { p.rendered <- name }
func (p *progress) Written(name string, mode pagelet.Mode)           { p.written <- name }
func (p *progress) Ended(r EndResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ended = append(p.ended, r)
}

func waitFor(t *testing.T, ch <-chan string, name string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case got := <-ch:
			if got == name {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", name)
		}
	}
}

func errorPage() *pagelet.Definition {
	return pagelet.MustNormalize(pagelet.Module{
		Name:       "500",
		Path:       "/500",
		Mode:       pagelet.ModeRender,
		StatusCode: http.StatusInternalServerError,
		Producer:   markup("<h1>oops</h1>"),
	})
}

const parentMarkup = `<main><div data-pagelet="c1"></div><div data-pagelet="c2"></div><div data-pagelet="c3"></div></main>`

func page(mode pagelet.Mode, children ...pagelet.Module) *pagelet.Definition {
	return pagelet.MustNormalize(pagelet.Module{
		Name:     "page",
		Path:     "/",
		Mode:     mode,
		Producer: markup(parentMarkup),
		Children: children,
	})
}

func child(name string, producer any) pagelet.Module {
	return pagelet.Module{Name: name, Producer: producer}
}

// serve runs def for req through c, the way the dispatcher does.
func serve(c *Controller, def *pagelet.Definition, req *http.Request, w http.ResponseWriter) {
	in := c.pool.Acquire(def)
	in.Bind(req, w, nil)
	in.SetAuthorized(true)
	c.Serve(req.Context(), in)
	c.pool.Release(in)
}

func fragmentOrder(body string, names ...string) []int {
	var pos []int
	for _, n := range names {
		pos = append(pos, strings.Index(body, `<template data-pagelet-fragment="`+n+`">`))
	}
	return pos
}

func ascending(pos []int) bool {
	for i := range pos {
		if pos[i] < 0 || (i > 0 && pos[i] <= pos[i-1]) {
			return false
		}
	}
	return true
}

func TestAsyncWritesInCompletionOrder(t *testing.T) {
	defer leaktest.Check(t)()

	g1, g2, g3 := newGated("one"), newGated("two"), newGated("three")
	def := page(pagelet.ModeAsync, child("c1", g1), child("c2", g2), child("c3", g3))
	p := newProgress()
	c := NewController(Config{ErrorPage: errorPage(), Recorder: p})

	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		serve(c, def, httptest.NewRequest("GET", "/", nil), rec)
	}()

	close(g2.gate)
	waitFor(t, p.written, "c2")
	close(g1.gate)
	waitFor(t, p.written, "c1")
	close(g3.gate)
	<-done

	body := rec.Body.String()
	pos := fragmentOrder(body, "c2", "c1", "c3")
	if !ascending(pos) {
		t.Fatalf("fragments not in completion order 2,1,3: %v\n%s", pos, body)
	}
	if !strings.HasSuffix(body, render.CloseFrame) || strings.Count(body, render.CloseFrame) != 1 {
		t.Errorf("close frame missing or repeated:\n%s", body)
	}
	if strings.Index(body, parentMarkup) > pos[0] {
		t.Error("parent markup must be flushed before any child")
	}
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != pagelet.DefaultContentType {
		t.Errorf("status = %d content-type = %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if len(p.ended) != 1 || p.ended[0] != EndClosed {
		t.Errorf("end results = %v", p.ended)
	}
}

func TestPipelineWritesInDeclarationOrder(t *testing.T) {
	defer leaktest.Check(t)()

	g1, g2, g3 := newGated("one"), newGated("two"), newGated("three")
	def := page(pagelet.ModePipeline, child("c1", g1), child("c2", g2), child("c3", g3))
	p := newProgress()
	c := NewController(Config{ErrorPage: errorPage(), Recorder: p})

	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		serve(c, def, httptest.NewRequest("GET", "/", nil), rec)
	}()

	close(g3.gate)
	waitFor(t, p.rendered, "c3")
	close(g2.gate)
	waitFor(t, p.rendered, "c2")
	close(g1.gate)
	<-done

	body := rec.Body.String()
	if pos := fragmentOrder(body, "c1", "c2", "c3"); !ascending(pos) {
		t.Fatalf("fragments not in declaration order: %v\n%s", pos, body)
	}
	if !strings.HasSuffix(body, render.CloseFrame) {
		t.Error("missing close frame")
	}
}

func TestRenderModeInjectsChildren(t *testing.T) {
	defer leaktest.Check(t)()

	def := page(pagelet.ModeRender, child("c1", markup("one")), child("c2", markup("two")), child("c3", markup("three")))
	w := newCountingWriter()
	c := NewController(Config{ErrorPage: errorPage()})

	serve(c, def, httptest.NewRequest("GET", "/", nil), w)

	body := w.Body.String()
	want := `<main><div data-pagelet="c1">one</div><div data-pagelet="c2">two</div><div data-pagelet="c3">three</div></main>`
	if !strings.Contains(body, want) {
		t.Errorf("children not injected:\n%s", body)
	}
	if strings.Contains(body, "data-pagelet-fragment") {
		t.Error("render mode must not emit fragments")
	}
	if w.writes != 1 {
		t.Errorf("writes = %d, want a single write", w.writes)
	}
}

func TestForcedSync(t *testing.T) {
	def := page(pagelet.ModeAsync, child("c1", markup("one")))
	c := NewController(Config{ErrorPage: errorPage()})

	noJS := httptest.NewRequest("GET", "/?no_pagelet_js=1", nil)
	old := httptest.NewRequest("GET", "/", nil)
	old.Proto, old.ProtoMajor, old.ProtoMinor = "HTTP/1.0", 1, 0

	for name, req := range map[string]*http.Request{"no_pagelet_js": noJS, "http/1.0": old} {
		t.Run(name, func(t *testing.T) {
			w := newCountingWriter()
			serve(c, def, req, w)

			body := w.Body.String()
			if !strings.Contains(body, `<div data-pagelet="c1">one</div>`) || strings.Contains(body, "data-pagelet-fragment") {
				t.Errorf("expected a merged render:\n%s", body)
			}
			if !strings.Contains(body, `"mode":"sync"`) {
				t.Error("bootstrap does not report sync mode")
			}
			if w.writes != 1 {
				t.Errorf("writes = %d", w.writes)
			}
		})
	}
}

func TestRejectedChildIsSkipped(t *testing.T) {
	def := page(pagelet.ModeAsync, child("c1", markup("one")), child("c2", rejecting{markup("secret")}), child("c3", markup("three")))
	pool := pagelet.NewPool(4)
	c := NewController(Config{ErrorPage: errorPage(), Pool: pool})

	rec := httptest.NewRecorder()
	serve(c, def, httptest.NewRequest("GET", "/", nil), rec)

	body := rec.Body.String()
	if strings.Contains(body, "secret") {
		t.Error("rejected child was rendered")
	}
	if !strings.Contains(body, `"expected":2`) {
		t.Errorf("expected count should only include enabled children:\n%s", body)
	}
	if !strings.Contains(body, `"name":"c3","parent":"page","ordinal":1`) {
		t.Errorf("ordinals should count enabled children:\n%s", body)
	}
	if !strings.HasSuffix(body, render.CloseFrame) {
		t.Error("page did not close")
	}
	if pool.Idle(def.Children()[1]) != 1 {
		t.Error("rejected child was not released")
	}
}

func TestChildFailureBeforeFlushRendersErrorPage(t *testing.T) {
	defer leaktest.Check(t)()

	boom := errors.New("db down")
	def := page(pagelet.ModeRender, child("c1", markup("one")), child("c2", failing{boom}))
	hooks := &Hooks{}
	var ends []error
	var mu sync.Mutex
	hooks.OnEnd(func(in *pagelet.Instance, err error) {
		mu.Lock()
		defer mu.Unlock()
		if in.Name() == "page" {
			ends = append(ends, err)
		}
	})
	c := NewController(Config{ErrorPage: errorPage(), Hooks: hooks})

	rec := httptest.NewRecorder()
	serve(c, def, httptest.NewRequest("GET", "/", nil), rec)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<h1>oops</h1>") || strings.Contains(body, "<main>") {
		t.Errorf("expected only the error page:\n%s", body)
	}
	if strings.Contains(body, "db down") {
		t.Error("error details leaked to the client")
	}
	if len(ends) != 1 || !errors.Is(ends[0], boom) {
		t.Errorf("end hook errors = %v", ends)
	}
}

func TestChildFailureAfterFlushInjectsErrorPage(t *testing.T) {
	defer leaktest.Check(t)()

	g := newGated("")
	g.err = errors.New("timeout")
	def := page(pagelet.ModeAsync, child("c1", g))
	p := newProgress()
	c := NewController(Config{ErrorPage: errorPage(), Recorder: p})

	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		serve(c, def, httptest.NewRequest("GET", "/", nil), rec)
	}()
	waitFor(t, p.written, "page")
	close(g.gate)
	<-done

	body := rec.Body.String()
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, the header was already sent", rec.Code)
	}
	if !strings.Contains(body, parentMarkup) {
		t.Error("shell and parent markup missing")
	}
	if !strings.Contains(body, `<template data-pagelet-fragment="500"><h1>oops</h1></template>`) {
		t.Errorf("error pagelet not injected:\n%s", body)
	}
	if !strings.HasSuffix(body, render.CloseFrame) || strings.Count(body, render.CloseFrame) != 1 {
		t.Errorf("document not closed exactly once:\n%s", body)
	}
}

func TestErrorPageFailureFallsBackToPlainText(t *testing.T) {
	broken := pagelet.MustNormalize(pagelet.Module{
		Name: "500", Path: "/500", Mode: pagelet.ModeRender, StatusCode: 500,
		Producer: failing{errors.New("template missing")},
	})
	def := page(pagelet.ModeRender, child("c1", failing{errors.New("boom")}))
	c := NewController(Config{ErrorPage: broken})

	rec := httptest.NewRecorder()
	serve(c, def, httptest.NewRequest("GET", "/", nil), rec)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "Internal Server Error" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

type redirecting struct{ markup }

func (redirecting) Initialize(ctx context.Context, in *pagelet.Instance) error {
	Redirect(in, "/login", 0, true)
	return nil
}

func TestInitializerRedirect(t *testing.T) {
	def := pagelet.MustNormalize(pagelet.Module{Name: "account", Path: "/account", Producer: redirecting{markup("never")}})
	hooks := &Hooks{}
	ended := 0
	hooks.OnEnd(func(in *pagelet.Instance, err error) { ended++ })
	c := NewController(Config{ErrorPage: errorPage(), Hooks: hooks})

	rec := httptest.NewRecorder()
	serve(c, def, httptest.NewRequest("GET", "/account", nil), rec)

	if rec.Code != http.StatusMovedPermanently {
		t.Errorf("status = %d, want 301", rec.Code)
	}
	if rec.Header().Get("Location") != "/login" {
		t.Errorf("Location = %q", rec.Header().Get("Location"))
	}
	if rec.Header().Get("Pragma") != "no-cache" || !strings.Contains(rec.Header().Get("Cache-Control"), "no-store") {
		t.Error("no-cache headers missing")
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
	if ended != 1 {
		t.Errorf("end hook called %d times", ended)
	}
}

type newsData struct{}

func (newsData) Data(ctx context.Context, in *pagelet.Instance) (any, error) {
	return map[string]string{"Section": in.Param("section")}, nil
}

type viewMap map[string]func(any) string

func (v viewMap) Render(name string, data any) (string, error) {
	fn, ok := v[name]
	if !ok {
		return "", errors.New("no view " + name)
	}
	return fn(data), nil
}

func TestProviderFeedsView(t *testing.T) {
	def := pagelet.MustNormalize(pagelet.Module{
		Name: "news", Path: "/news/:section", View: "news.html", Mode: pagelet.ModeRender,
		Producer: newsData{},
	})
	views := viewMap{"news.html": func(d any) string { return "<h2>" + d.(map[string]string)["Section"] + "</h2>" }}
	c := NewController(Config{ErrorPage: errorPage(), Views: views})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/news/sport", nil)
	in := c.pool.Acquire(def)
	in.Bind(req, rec, map[string]string{"section": "sport"})
	c.Serve(req.Context(), in)

	if !strings.Contains(rec.Body.String(), "<h2>sport</h2>") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestNestedChildrenAreInjected(t *testing.T) {
	def := pagelet.MustNormalize(pagelet.Module{
		Name: "page", Path: "/", Mode: pagelet.ModeAsync, Producer: markup(`<div data-pagelet="outer"></div>`),
		Children: []pagelet.Module{{
			Name: "outer", Producer: markup(`<section data-pagelet="inner"></section>`),
			Children: []pagelet.Module{{Name: "inner", Producer: markup("deep")}},
		}},
	})
	c := NewController(Config{ErrorPage: errorPage()})

	rec := httptest.NewRecorder()
	serve(c, def, httptest.NewRequest("GET", "/", nil), rec)

	want := `<template data-pagelet-fragment="outer"><section data-pagelet="inner">deep</section></template>`
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("grandchild not injected:\n%s", rec.Body.String())
	}
}

type shellView struct{}

func (shellView) Render(ctx context.Context, in *pagelet.Instance) (string, error) {
	d := in.Data().(render.ShellData)
	return "<!doctype html><head>" + string(d.Head()) + "</head><body>", nil
}

type channels struct{}

func (channels) Open() string { return "chan-1" }

func TestCustomBootstrapAndChannel(t *testing.T) {
	bootstrap := pagelet.MustNormalize(pagelet.Module{Name: "bootstrap", Producer: shellView{}})
	def := page(pagelet.ModeAsync)
	c := NewController(Config{
		ErrorPage: errorPage(),
		Bootstrap: bootstrap,
		Channels:  channels{},
		Title:     "Daily",
		Scripts:   func() []string { return []string{"/dist/plugin.js"} },
	})

	rec := httptest.NewRecorder()
	serve(c, def, httptest.NewRequest("GET", "/", nil), rec)

	body := rec.Body.String()
	for _, want := range []string{"<!doctype html><head>", "<title>Daily</title>", `"channel":"chan-1"`, `src="/dist/plugin.js"`, `"expected":0`} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestClientGoneFiresOnClose(t *testing.T) {
	defer leaktest.Check(t)()

	gate := make(chan struct{})
	def := page(pagelet.ModeAsync, child("c1", stubborn{gate}))
	hooks := &Hooks{}
	closed := make(chan pagelet.State, 1)
	hooks.OnClose(func(in *pagelet.Instance) { closed <- in.State() })
	c := NewController(Config{ErrorPage: errorPage(), Hooks: hooks})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		serve(c, def, req, httptest.NewRecorder())
	}()

	cancel()
	close(gate)
	<-done

	select {
	case state := <-closed:
		if state != pagelet.StateEnded {
			t.Errorf("OnClose saw state %v, want the page ended", state)
		}
	default:
		t.Fatal("OnClose was not called")
	}
}

func TestCompletedPageDoesNotFireOnClose(t *testing.T) {
	def := page(pagelet.ModeAsync, child("c1", markup("one")))
	hooks := &Hooks{}
	calls := 0
	hooks.OnClose(func(in *pagelet.Instance) { calls++ })
	c := NewController(Config{ErrorPage: errorPage(), Hooks: hooks})

	ctx, cancel := context.WithCancel(context.Background())
	serve(c, def, httptest.NewRequest("GET", "/", nil).WithContext(ctx), httptest.NewRecorder())
	cancel()

	if calls != 0 {
		t.Errorf("OnClose called %d times for a completed page", calls)
	}
}

func TestFailureAfterClientGoneSkipsErrorPage(t *testing.T) {
	defer leaktest.Check(t)()

	g := newGated("")
	def := page(pagelet.ModeAsync, child("c1", g))
	p := newProgress()
	c := NewController(Config{ErrorPage: errorPage(), Recorder: p})

	ctx, cancel := context.WithCancel(context.Background())
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		serve(c, def, httptest.NewRequest("GET", "/", nil).WithContext(ctx), rec)
	}()
	waitFor(t, p.written, "page")
	cancel()
	<-done

	if strings.Contains(rec.Body.String(), "oops") {
		t.Errorf("error pagelet rendered for a client that left:\n%s", rec.Body.String())
	}
}

func TestChildPanicAfterFlushInjectsErrorPage(t *testing.T) {
	defer leaktest.Check(t)()

	def := page(pagelet.ModeAsync, child("c1", markup("one")), child("c2", panicking{}))
	hooks := &Hooks{}
	ends := make(chan error, 4)
	hooks.OnEnd(func(in *pagelet.Instance, err error) {
		if in.Name() == "page" {
			ends <- err
		}
	})
	c := NewController(Config{ErrorPage: errorPage(), Hooks: hooks})

	rec := httptest.NewRecorder()
	serve(c, def, httptest.NewRequest("GET", "/", nil), rec)

	body := rec.Body.String()
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, the header was already sent", rec.Code)
	}
	if !strings.Contains(body, `<template data-pagelet-fragment="500"><h1>oops</h1></template>`) {
		t.Errorf("error pagelet not injected:\n%s", body)
	}
	if !strings.HasSuffix(body, render.CloseFrame) {
		t.Errorf("document not closed:\n%s", body)
	}

	var perr *PanicError
	select {
	case err := <-ends:
		if !errors.As(err, &perr) || perr.Pagelet != "c2" {
			t.Errorf("end error = %v, want a panic of c2", err)
		}
	default:
		t.Fatal("end hook not called")
	}
}

func TestChildPanicInRenderModeRendersErrorPage(t *testing.T) {
	defer leaktest.Check(t)()

	def := page(pagelet.ModeRender, child("c1", markup("one")), child("c2", panicking{}))
	c := NewController(Config{ErrorPage: errorPage()})

	rec := httptest.NewRecorder()
	serve(c, def, httptest.NewRequest("GET", "/", nil), rec)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "<h1>oops</h1>") || strings.Contains(body, "<main>") {
		t.Errorf("expected only the error page:\n%s", body)
	}
}

func TestNestedPanicIsRecovered(t *testing.T) {
	def := pagelet.MustNormalize(pagelet.Module{
		Name: "page", Path: "/", Mode: pagelet.ModeRender, Producer: markup(`<div data-pagelet="outer"></div>`),
		Children: []pagelet.Module{{
			Name: "outer", Producer: markup(`<section data-pagelet="inner"></section>`),
			Children: []pagelet.Module{{Name: "inner", Producer: panicking{}}},
		}},
	})
	c := NewController(Config{ErrorPage: errorPage()})

	rec := httptest.NewRecorder()
	serve(c, def, httptest.NewRequest("GET", "/", nil), rec)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
