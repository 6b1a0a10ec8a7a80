package pipe

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/bigpipe/pkg/pagelet"
	"github.com/vango-dev/bigpipe/pkg/render"
)

// NoJSParam is the query parameter that forces a non-progressive render.
const NoJSParam = "no_pagelet_js"

// Views renders a named view with a template context.
type Views interface {
	Render(name string, data any) (string, error)
}

// Catalog supplies resolved asset dependencies.
type Catalog interface {
	Page(in *pagelet.Instance) pagelet.Dependencies
	Own(def *pagelet.Definition) pagelet.Dependencies
}

// Channels opens a realtime channel for a page session.
type Channels interface {
	Open() string
}

// Config wires a Controller.
type Config struct {
	Views     Views
	Catalog   Catalog
	Pool      *pagelet.Pool
	ErrorPage *pagelet.Definition
	Bootstrap *pagelet.Definition
	Channels  Channels
	Recorder  Recorder
	Hooks     *Hooks
	Logger    *slog.Logger

	// Title is the document title of every page.
	Title string

	// Scripts returns client scripts loaded before page dependencies.
	Scripts func() []string
}

// Controller renders routed pages.
type Controller struct {
	views     Views
	catalog   Catalog
	pool      *pagelet.Pool
	errorPage *pagelet.Definition
	bootstrap *pagelet.Definition
	channels  Channels
	recorder  Recorder
	hooks     *Hooks
	logger    *slog.Logger
	title     string
	scripts   func() []string
}

// NewController creates a controller from cfg.
func NewController(cfg Config) *Controller {
	c := &Controller{
		views:     cfg.Views,
		catalog:   cfg.Catalog,
		pool:      cfg.Pool,
		errorPage: cfg.ErrorPage,
		bootstrap: cfg.Bootstrap,
		channels:  cfg.Channels,
		recorder:  cfg.Recorder,
		hooks:     cfg.Hooks,
		logger:    cfg.Logger,
		title:     cfg.Title,
		scripts:   cfg.Scripts,
	}
	if c.pool == nil {
		c.pool = pagelet.NewPool(pagelet.DefaultPoolSize)
	}
	if c.hooks == nil {
		c.hooks = &Hooks{}
	}
	if c.logger == nil {
		c.logger = slog.Default().With("component", "pipe")
	}
	return c
}

// Hooks returns the lifecycle hooks.
func (c *Controller) Hooks() *Hooks {
	return c.hooks
}

// Serve renders the routed instance in and its children. The caller keeps
// ownership of in and releases it once Serve returns.
func (c *Controller) Serve(ctx context.Context, in *pagelet.Instance) {
	req := in.Request()
	res := NewResponse(in.Response())
	if in.Response() != http.ResponseWriter(res) {
		in.Bind(req, res, in.Params())
	}

	// An initializer of a previous dispatch may have answered already.
	if res.Finished() {
		return
	}

	def := in.Definition()
	log := c.logger.With("pagelet", def.Name(), "path", req.URL.Path)

	if in.Mode().Progressive() && forceSync(req) {
		log.Debug("forcing sync mode", "mode", in.Mode(), "proto", req.Proto)
		in.SetMode(pagelet.ModeSync)
	}

	bs := &pagelet.Bootstrap{
		Parent:    def.Name(),
		Mode:      in.Mode(),
		Params:    in.Params(),
		RequestID: uuid.NewString(),
	}
	in.SetBootstrap(bs)

	// gone is set when the page ends after the client left.
	var gone atomic.Bool
	stream := c.newStream(ctx, in, res, bs, &gone)
	defer func() {
		if gone.Load() || (ctx.Err() != nil && !stream.Ended() && !res.Finished()) {
			log.Debug("client went away before the page ended")
			c.hooks.fireClose(in)
		}
	}()

	children, err := c.children(ctx, in, res)
	defer c.release(children)
	if err != nil {
		stream.End(err)
		return
	}

	bs.Expected = len(children)
	if c.catalog != nil {
		bs.Dependencies = c.catalog.Page(in)
	}
	if c.channels != nil {
		bs.Channel = c.channels.Open()
	}
	in.Advance(pagelet.StateBootstrapped)

	res.Header().Set("Content-Type", def.ContentType())

	if init, ok := def.Producer().(pagelet.Initializer); ok {
		if err := init.Initialize(ctx, in); err != nil {
			stream.End(err)
			return
		}
		if res.Finished() {
			log.Debug("initializer answered the request")
			in.Advance(pagelet.StateEnded)
			c.hooks.fireEnd(in, nil)
			return
		}
	}

	if in.Mode().Progressive() {
		c.progressive(ctx, in, res, stream, children)
	} else {
		c.merged(ctx, in, res, stream, children)
	}
}

func (c *Controller) newStream(ctx context.Context, in *pagelet.Instance, res *Response, bs *pagelet.Bootstrap, gone *atomic.Bool) *Stream {
	return NewStream(res, bs,
		WithCloseFrame(render.CloseFrame),
		WithErrorHandler(func(err error) { c.recover(ctx, in, res, err) }),
		WithEndHook(func(err error) {
			gone.Store(ctx.Err() != nil)
			in.Advance(pagelet.StateEnded)
			c.hooks.fireEnd(in, err)
		}),
		WithStreamRecorder(c.recorder),
		WithStreamLogger(c.logger),
	)
}

// progressive flushes the shell and parent markup, then one fragment per child.
func (c *Controller) progressive(ctx context.Context, in *pagelet.Instance, res *Response, stream *Stream, children []*pagelet.Instance) {
	parent, err := c.renderPagelet(ctx, in)
	if err != nil {
		stream.End(err)
		return
	}
	shell, err := c.renderShell(ctx, in, res)
	if err != nil {
		stream.End(err)
		return
	}

	res.WriteHeader(in.Definition().StatusCode())
	stream.EnableFlush(true)
	if err := stream.Write(Fragment{Name: in.Name(), Markup: shell + parent}, nil); err != nil {
		stream.End(err)
		return
	}
	in.Advance(pagelet.StateWriting)
	if c.recorder != nil {
		c.recorder.Written(in.Name(), in.Mode())
	}

	if err := c.streamChildren(ctx, in, stream, children); err != nil {
		stream.End(err)
		return
	}
	stream.End(nil)
}

type result struct {
	in     *pagelet.Instance
	markup string
	err    error
}

// streamChildren renders children concurrently and writes them in completion
// order (async) or declaration order (pipeline).
func (c *Controller) streamChildren(ctx context.Context, parent *pagelet.Instance, stream *Stream, children []*pagelet.Instance) error {
	n := len(children)
	if n == 0 {
		return nil
	}

	// Buffered so renders never block once the loop below stops reading.
	results := make(chan result, n)
	g, gctx := errgroup.WithContext(ctx)
	defer func() { _ = g.Wait() }()

	for _, ch := range children {
		ch := ch
		g.Go(func() error {
			markup, err := c.renderTree(gctx, ch)
			results <- result{in: ch, markup: markup, err: err}
			return err
		})
	}

	pipeline := parent.Mode() == pagelet.ModePipeline
	pending := make([]*result, n)
	next := 0

	for i := 0; i < n; i++ {
		r := <-results
		if r.err != nil {
			return r.err
		}
		if !pipeline {
			if err := c.writeChild(parent, stream, r); err != nil {
				return err
			}
			continue
		}

		pending[r.in.Ordinal()] = &r
		for next < n && pending[next] != nil {
			if err := c.writeChild(parent, stream, *pending[next]); err != nil {
				return err
			}
			pending[next] = nil
			next++
		}
	}
	return nil
}

func (c *Controller) writeChild(parent *pagelet.Instance, stream *Stream, r result) error {
	data := render.FragmentData{
		Name:    r.in.Name(),
		Parent:  parent.Name(),
		Ordinal: r.in.Ordinal(),
	}
	if c.catalog != nil {
		deps := c.catalog.Own(r.in.Definition())
		data.CSS, data.JS = deps.CSS, deps.JS
	}

	frag, err := render.Fragment(data, r.markup)
	if err != nil {
		return err
	}
	if err := stream.Write(Fragment{Name: r.in.Name(), Markup: frag, Children: 1}, nil); err != nil {
		return err
	}
	r.in.Advance(pagelet.StateWriting)
	if c.recorder != nil {
		c.recorder.Written(r.in.Name(), parent.Mode())
	}
	return nil
}

// merged injects every child into the parent markup and writes the document
// with the final flush.
func (c *Controller) merged(ctx context.Context, in *pagelet.Instance, res *Response, stream *Stream, children []*pagelet.Instance) {
	parent, err := c.renderPagelet(ctx, in)
	if err != nil {
		stream.End(err)
		return
	}
	parts, err := c.renderAll(ctx, children)
	if err != nil {
		stream.End(err)
		return
	}
	for i, ch := range children {
		parent = render.Inject(parent, ch.Name(), parts[i])
		ch.Advance(pagelet.StateWriting)
	}

	shell, err := c.renderShell(ctx, in, res)
	if err != nil {
		stream.End(err)
		return
	}

	res.WriteHeader(in.Definition().StatusCode())
	if err := stream.Write(Fragment{Name: in.Name(), Markup: shell + parent, Children: len(children)}, nil); err != nil {
		stream.End(err)
		return
	}
	if c.recorder != nil {
		c.recorder.Written(in.Name(), in.Mode())
	}
	stream.End(nil)
}

// renderAll renders instances concurrently, returning markup by position.
func (c *Controller) renderAll(ctx context.Context, ins []*pagelet.Instance) ([]string, error) {
	out := make([]string, len(ins))
	g, gctx := errgroup.WithContext(ctx)
	for i, in := range ins {
		i, in := i, in
		g.Go(func() error {
			markup, err := c.renderTree(gctx, in)
			out[i] = markup
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// renderTree renders in with its own descendants injected. It runs on its own
// goroutine, so a panic below it is returned as a *PanicError.
func (c *Controller) renderTree(ctx context.Context, in *pagelet.Instance) (markup string, err error) {
	defer c.recoverPanic(in, &err)

	markup, err = c.renderPagelet(ctx, in)
	if err != nil || len(in.Definition().Children()) == 0 {
		return markup, err
	}

	kids, err := c.children(ctx, in, NewResponse(in.Response()))
	defer c.release(kids)
	if err != nil {
		return "", err
	}
	parts, err := c.renderAll(ctx, kids)
	if err != nil {
		return "", err
	}
	for i, k := range kids {
		markup = render.Inject(markup, k.Name(), parts[i])
	}
	return markup, nil
}

// children instantiates and authorizes the children of parent. Rejected
// children are released immediately; the ordinal counts enabled children only.
func (c *Controller) children(ctx context.Context, parent *pagelet.Instance, res *Response) ([]*pagelet.Instance, error) {
	var enabled []*pagelet.Instance
	for _, def := range parent.Definition().Children() {
		ch := c.pool.Acquire(def)
		ch.Bind(parent.Request(), res, parent.Params())

		if auth, ok := def.Producer().(pagelet.Authorizer); ok {
			admitted, err := auth.Authorize(ctx, parent.Request(), ch)
			if err != nil {
				c.pool.Release(ch)
				c.release(enabled)
				return nil, fmt.Errorf("pipe: authorize %s: %w", def.Name(), err)
			}
			if !admitted {
				c.logger.Debug("child rejected", "pagelet", def.Name(), "parent", parent.Name())
				c.pool.Release(ch)
				continue
			}
		}

		ch.SetAuthorized(true)
		ch.SetMode(parent.Mode())
		ch.SetOrdinal(len(enabled))
		ch.SetBootstrap(parent.Bootstrap())
		enabled = append(enabled, ch)
	}
	return enabled, nil
}

func (c *Controller) release(ins []*pagelet.Instance) {
	for _, in := range ins {
		c.pool.Release(in)
	}
}

func (c *Controller) renderPagelet(ctx context.Context, in *pagelet.Instance) (string, error) {
	in.Advance(pagelet.StateRendering)
	start := time.Now()
	markup, err := c.produce(ctx, in)
	if c.recorder != nil {
		c.recorder.Rendered(in.Name(), time.Since(start), err)
	}
	if err != nil {
		return "", &RenderError{Pagelet: in.Name(), Err: err}
	}
	return markup, nil
}

func (c *Controller) produce(ctx context.Context, in *pagelet.Instance) (markup string, err error) {
	defer c.recoverPanic(in, &err)

	def := in.Definition()
	if r, ok := def.Producer().(pagelet.Renderer); ok {
		return r.Render(ctx, in)
	}

	data := in.Data()
	if p, ok := def.Producer().(pagelet.Provider); ok {
		d, err := p.Data(ctx, in)
		if err != nil {
			return "", err
		}
		data = d
		in.SetData(d)
	}
	if c.views == nil {
		return "", ErrNoViews
	}
	return c.views.Render(def.View(), data)
}

// recoverPanic stores a panic raised by pagelet code in *err.
func (c *Controller) recoverPanic(in *pagelet.Instance, err *error) {
	if r := recover(); r != nil {
		stack := debug.Stack()
		c.logger.Error("pagelet panic",
			"pagelet", in.Name(),
			"panic", r,
			"stack", string(stack),
		)
		*err = &PanicError{Pagelet: in.Name(), Value: r, Stack: stack}
	}
}

func (c *Controller) shellData(bs *pagelet.Bootstrap) render.ShellData {
	d := render.ShellData{Title: c.title, Bootstrap: bs}
	if c.scripts != nil {
		d.Scripts = c.scripts()
	}
	return d
}

// renderShell renders the bootstrap pagelet for in.
func (c *Controller) renderShell(ctx context.Context, in *pagelet.Instance, res *Response) (string, error) {
	data := c.shellData(in.Bootstrap())
	if c.bootstrap == nil {
		var b strings.Builder
		if err := render.Shell(&b, data); err != nil {
			return "", err
		}
		return b.String(), nil
	}

	bi := c.pool.Acquire(c.bootstrap)
	defer c.pool.Release(bi)
	bi.Bind(in.Request(), res, in.Params())
	bi.SetAuthorized(true)
	bi.SetBootstrap(in.Bootstrap())
	bi.SetData(data)
	return c.renderPagelet(ctx, bi)
}

// recover is the stream's error handler: it re-dispatches the request to
// the error pagelet, or injects that pagelet's markup into a response whose
// headers already went out. Nobody reads the error page of a client that
// left, so then the response is only finished.
func (c *Controller) recover(ctx context.Context, in *pagelet.Instance, res *Response, cause error) {
	log := c.logger.With("pagelet", in.Name(), "path", in.Request().URL.Path)
	if ctx.Err() != nil {
		log.Debug("pagelet failed after the client went away", "error", cause)
		res.Finish()
		return
	}
	log.Error("pagelet failed", "error", cause)

	if c.errorPage == nil || in.Definition() == c.errorPage {
		c.plainError(res)
		return
	}

	ei := c.pool.Acquire(c.errorPage)
	defer c.pool.Release(ei)
	ei.Bind(in.Request(), res, in.Params())
	ei.SetAuthorized(true)
	ei.SetData(cause)

	if !res.Committed() {
		c.Serve(ctx, ei)
		return
	}

	log.Warn("error after partial flush, injecting error pagelet", "status", res.Status())
	markup, err := c.renderPagelet(ctx, ei)
	if err != nil {
		log.Error("error pagelet failed", "error", err)
		res.Finish()
		return
	}
	frag, err := render.Fragment(render.FragmentData{Name: ei.Name(), Parent: in.Name()}, markup)
	if err == nil {
		_, err = res.Write([]byte(frag + render.CloseFrame))
	}
	if err != nil {
		log.Warn("could not inject error pagelet", "error", err)
	}
	res.Finish()
}

func (c *Controller) plainError(res *Response) {
	if !res.Committed() {
		http.Error(res, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
	res.Finish()
}

func forceSync(r *http.Request) bool {
	return r.URL.Query().Get(NoJSParam) == "1" || !r.ProtoAtLeast(1, 1)
}

// Redirect answers the request of in with a redirect. A zero status means
// 301. With noCache the client is told not to cache the redirect.
func Redirect(in *pagelet.Instance, location string, status int, noCache bool) {
	w := in.Response()
	if status == 0 {
		status = http.StatusMovedPermanently
	}

	h := w.Header()
	h.Set("Location", location)
	if noCache {
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "Sat, 26 Jul 1997 05:00:00 GMT")
		h.Set("Cache-Control", "no-store, no-cache, must-revalidate, post-check=0, pre-check=0")
	}
	w.WriteHeader(status)

	if res, ok := w.(*Response); ok {
		res.Finish()
	}
}
