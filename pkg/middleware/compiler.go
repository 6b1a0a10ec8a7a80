package middleware

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/vango-dev/bigpipe/pkg/assets"
)

// CacheControl selects the Cache-Control policy for compiled assets.
type CacheControl int

const (
	// CacheControlDefault sets no Cache-Control header.
	CacheControlDefault CacheControl = iota

	// CacheControlNone disables caching, useful in development.
	CacheControlNone

	// CacheControlProduction caches fingerprinted files for a year and
	// everything else for an hour.
	CacheControlProduction
)

// DefaultStaticPrefix is the URL prefix compiled assets are served under.
const DefaultStaticPrefix = "/dist/"

// StaticConfig configures the compiler layer.
type StaticConfig struct {
	// Prefix is the URL prefix, DefaultStaticPrefix when empty.
	Prefix string

	CacheControl CacheControl

	// Headers are set on every asset response.
	Headers map[string]string
}

// Compiler serves compiled assets from src. Requests outside the prefix, for
// missing objects or with other methods than GET and HEAD continue down the
// chain so the page router can answer them.
func Compiler(src assets.Source, cfg StaticConfig) Layer {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultStaticPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return LayerFunc(func(w http.ResponseWriter, r *http.Request, next Next) error {
		if src == nil || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
			return next(r)
		}
		if !strings.HasPrefix(r.URL.Path, prefix) {
			return next(r)
		}
		rel, ok := assets.CleanPath(strings.TrimPrefix(r.URL.Path, prefix))
		if !ok {
			return next(r)
		}

		obj, err := src.Open(r.Context(), rel)
		if errors.Is(err, assets.ErrNotExist) {
			return next(r)
		}
		if err != nil {
			return err
		}
		defer obj.Body.Close()

		h := w.Header()
		applyCacheHeaders(h, cfg.CacheControl, rel)
		for k, v := range cfg.Headers {
			h.Set(k, v)
		}
		if obj.ContentType != "" {
			h.Set("Content-Type", obj.ContentType)
		}

		if rs, ok := obj.Body.(io.ReadSeeker); ok {
			http.ServeContent(w, r, rel, obj.ModTime, rs)
			return nil
		}

		if obj.Size >= 0 {
			h.Set("Content-Length", strconv.FormatInt(obj.Size, 10))
		}
		if !obj.ModTime.IsZero() {
			h.Set("Last-Modified", obj.ModTime.UTC().Format(http.TimeFormat))
		}
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return nil
		}
		_, err = io.Copy(w, obj.Body)
		return err
	})
}

func applyCacheHeaders(h http.Header, cc CacheControl, name string) {
	switch cc {
	case CacheControlNone:
		h.Set("Cache-Control", "no-store, no-cache, must-revalidate")
	case CacheControlProduction:
		if assets.IsFingerprinted(name) {
			h.Set("Cache-Control", "public, max-age=31536000, immutable")
		} else {
			h.Set("Cache-Control", "public, max-age=3600, must-revalidate")
		}
	}
}
