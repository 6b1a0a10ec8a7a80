package view

import (
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"strings"
)

// HTMLEngine compiles html/template views from a file system.
type HTMLEngine struct {
	fsys  fs.FS
	funcs template.FuncMap
}

// NewHTMLEngine creates an engine over fsys with the default helpers.
func NewHTMLEngine(fsys fs.FS, funcs ...template.FuncMap) *HTMLEngine {
	e := &HTMLEngine{fsys: fsys, funcs: defaultFuncs()}
	for _, fm := range funcs {
		for k, v := range fm {
			e.funcs[k] = v
		}
	}
	return e
}

// Compile parses the named view.
func (e *HTMLEngine) Compile(name string) (Renderer, error) {
	// ParseFS names templates after the file's base name.
	base := path.Base(name)
	tmpl, err := template.New(base).Funcs(e.funcs).ParseFS(e.fsys, name)
	if err != nil {
		return nil, fmt.Errorf("view: parse %s: %w", name, err)
	}

	return func(data any) (string, error) {
		var b strings.Builder
		if err := tmpl.ExecuteTemplate(&b, base, data); err != nil {
			return "", fmt.Errorf("view: execute %s: %w", name, err)
		}
		return b.String(), nil
	}, nil
}

func defaultFuncs() template.FuncMap {
	return template.FuncMap{
		// pagelet emits a placeholder for a child pagelet.
		"pagelet": func(name string) template.HTML {
			return template.HTML(`<div data-pagelet="` + template.HTMLEscapeString(name) + `"></div>`)
		},
		"join": strings.Join,
	}
}
