package pagelet

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/vango-dev/bigpipe/internal/errors"
	"github.com/vango-dev/bigpipe/pkg/routepath"
)

// DefaultContentType is sent when a module does not declare one.
const DefaultContentType = "text/html; charset=utf-8"

// Module is the declaration of a pagelet, as written by an application.
type Module struct {
	// Name identifies the pagelet. It is the data-pagelet placeholder name
	// and must be unique among siblings.
	Name string

	// ID allows routing by identity. Defaults to Name.
	ID string

	// Path is the route pattern (see routepath). Empty for pagelets that
	// only appear as children.
	Path string

	// Methods lists accepted HTTP methods. Empty accepts any method.
	Methods []string

	// Mode is the rendering mode for the children. Defaults to async.
	Mode Mode

	// View is the template rendered for this pagelet.
	View string

	// StatusCode is the response status (default 200).
	StatusCode int

	// ContentType is the response content type.
	ContentType string

	// CSS and JS are the assets this pagelet depends on.
	CSS []string
	JS  []string

	// Children are rendered inside this pagelet's view.
	Children []Module

	// Producer carries the optional capabilities (Authorizer, Initializer,
	// Provider, Renderer).
	Producer any
}

// Definition is a normalized, immutable Module.
type Definition struct {
	name        string
	id          string
	path        string
	pattern     *routepath.Pattern
	methods     []string
	mode        Mode
	view        string
	status      int
	contentType string
	css         []string
	js          []string
	children    []*Definition
	producer    any
}

var methodToken = regexp.MustCompile(`^[A-Z]+$`)

// Normalize validates a module and freezes it into a Definition.
func Normalize(m Module) (*Definition, error) {
	if strings.TrimSpace(m.Name) == "" {
		return nil, errors.New("B101").WithDetailf("module with path %q", m.Path)
	}

	if m.View == "" {
		if _, ok := m.Producer.(Renderer); !ok {
			return nil, errors.New("B114").WithDetailf("pagelet %q", m.Name)
		}
	}

	mode, err := ParseMode(string(m.Mode))
	if err != nil {
		return nil, errors.New("B111").WithDetailf("pagelet %q declares mode %q", m.Name, m.Mode)
	}

	def := &Definition{
		name:        m.Name,
		id:          m.ID,
		path:        m.Path,
		mode:        mode,
		view:        m.View,
		status:      m.StatusCode,
		contentType: m.ContentType,
		css:         append([]string(nil), m.CSS...),
		js:          append([]string(nil), m.JS...),
		producer:    m.Producer,
	}
	if def.id == "" {
		def.id = def.name
	}
	if def.status == 0 {
		def.status = http.StatusOK
	}
	if def.contentType == "" {
		def.contentType = DefaultContentType
	}

	if m.Path != "" {
		pattern, err := routepath.Compile(m.Path)
		if err != nil {
			return nil, errors.New("B110").WithDetailf("pagelet %q", m.Name).Wrap(err)
		}
		def.pattern = pattern
	}

	for _, method := range m.Methods {
		method = strings.ToUpper(strings.TrimSpace(method))
		if !methodToken.MatchString(method) {
			return nil, errors.New("B112").WithDetailf("pagelet %q declares method %q", m.Name, method)
		}
		def.methods = append(def.methods, method)
	}

	seen := make(map[string]bool, len(m.Children))
	for _, child := range m.Children {
		cd, err := Normalize(child)
		if err != nil {
			return nil, err
		}
		if seen[cd.name] {
			return nil, errors.New("B102").WithDetailf("pagelet %q has two children named %q", m.Name, cd.name)
		}
		seen[cd.name] = true
		def.children = append(def.children, cd)
	}

	return def, nil
}

// MustNormalize is like Normalize but panics on error.
func MustNormalize(m Module) *Definition {
	def, err := Normalize(m)
	if err != nil {
		panic(err)
	}
	return def
}

// Module returns a copy of the declaration this definition was built from,
// so transform hooks can derive a modified definition.
func (d *Definition) Module() Module {
	m := Module{
		Name:        d.name,
		ID:          d.id,
		Path:        d.path,
		Methods:     append([]string(nil), d.methods...),
		Mode:        d.mode,
		View:        d.view,
		StatusCode:  d.status,
		ContentType: d.contentType,
		CSS:         append([]string(nil), d.css...),
		JS:          append([]string(nil), d.js...),
		Producer:    d.producer,
	}
	for _, c := range d.children {
		m.Children = append(m.Children, c.Module())
	}
	return m
}

func (d *Definition) Name() string { return d.name }
func (d *Definition) ID() string { return d.id }
func (d *Definition) Path() string { return d.path }
func (d *Definition) Pattern() *routepath.Pattern { return d.pattern }
func (d *Definition) Mode() Mode { return d.mode }
func (d *Definition) View() string { return d.view }
func (d *Definition) StatusCode() int { return d.status }
func (d *Definition) ContentType() string { return d.contentType }
func (d *Definition) Producer() any { return d.producer }

// Methods returns the accepted methods; empty means any.
func (d *Definition) Methods() []string { return append([]string(nil), d.methods...) }

// CSS returns the declared stylesheets.
func (d *Definition) CSS() []string { return append([]string(nil), d.css...) }

// JS returns the declared scripts.
func (d *Definition) JS() []string { return append([]string(nil), d.js...) }

// Children returns the child definitions in declaration order.
func (d *Definition) Children() []*Definition {
	return append([]*Definition(nil), d.children...)
}

// Routable reports whether the definition has a path.
func (d *Definition) Routable() bool {
	return d.pattern != nil
}

// AcceptsMethod reports whether method is in the method set (or the set is empty).
func (d *Definition) AcceptsMethod(method string) bool {
	if len(d.methods) == 0 {
		return true
	}
	for _, m := range d.methods {
		if m == method {
			return true
		}
	}
	return false
}

// Matches reports whether the definition routes method and path.
func (d *Definition) Matches(method, path string) bool {
	return d.pattern != nil && d.pattern.Test(path) && d.AcceptsMethod(method)
}

// Walk visits d and all descendants depth-first.
func (d *Definition) Walk(fn func(*Definition)) {
	fn(d)
	for _, c := range d.children {
		c.Walk(fn)
	}
}
