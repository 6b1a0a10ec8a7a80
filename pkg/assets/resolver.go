package assets

import "strings"

// Resolver turns a declared asset reference into the URL a page links to.
type Resolver interface {
	Asset(source string) string
}

type manifestResolver struct {
	manifest *Manifest
	prefix   string
}

// NewResolver resolves through m and prepends prefix.
//
//	resolver := assets.NewResolver(manifest, "/dist/")
//	resolver.Asset("app.css") // "/dist/app.5f2e81c9.css"
func NewResolver(m *Manifest, prefix string) Resolver {
	return &manifestResolver{manifest: m, prefix: prefix}
}

func (r *manifestResolver) Asset(source string) string {
	if isExternal(source) {
		return source
	}
	return r.prefix + r.manifest.Resolve(source)
}

type passthrough struct {
	prefix string
}

// NewPassthroughResolver only prepends prefix. It is used when no manifest
// exists, typically in development.
func NewPassthroughResolver(prefix string) Resolver {
	return &passthrough{prefix: prefix}
}

func (p *passthrough) Asset(source string) string {
	if isExternal(source) {
		return source
	}
	return p.prefix + source
}

// isExternal reports whether a reference is already a URL or rooted path.
func isExternal(s string) bool {
	return strings.HasPrefix(s, "/") ||
		strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "https://")
}
