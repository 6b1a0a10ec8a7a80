package view

import (
	"bytes"
	"fmt"
	"io/fs"
	"text/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// MarkdownEngine renders Markdown views. The source is expanded with
// text/template, converted to HTML and then sanitized, so template data
// cannot smuggle scripts into the page.
type MarkdownEngine struct {
	fsys   fs.FS
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewMarkdownEngine creates an engine over fsys.
func NewMarkdownEngine(fsys fs.FS) *MarkdownEngine {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("data-pagelet").Globally()

	return &MarkdownEngine{
		fsys: fsys,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			// Raw HTML is allowed through goldmark so placeholders survive;
			// bluemonday decides what stays.
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
		policy: policy,
	}
}

// Compile parses the named view.
func (e *MarkdownEngine) Compile(name string) (Renderer, error) {
	src, err := fs.ReadFile(e.fsys, name)
	if err != nil {
		return nil, fmt.Errorf("view: read %s: %w", name, err)
	}
	tmpl, err := template.New(name).Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("view: parse %s: %w", name, err)
	}

	return func(data any) (string, error) {
		var expanded bytes.Buffer
		if err := tmpl.Execute(&expanded, data); err != nil {
			return "", fmt.Errorf("view: execute %s: %w", name, err)
		}
		var out bytes.Buffer
		if err := e.md.Convert(expanded.Bytes(), &out); err != nil {
			return "", fmt.Errorf("view: convert %s: %w", name, err)
		}
		return string(e.policy.SanitizeBytes(out.Bytes())), nil
	}, nil
}
