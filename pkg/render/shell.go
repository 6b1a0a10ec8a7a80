package render

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/vango-dev/bigpipe/pkg/pagelet"
)

// CloseFrame terminates a document opened by Shell.
const CloseFrame = "</body>\n</html>\n"

// BootstrapScriptID is the id of the script element holding the bootstrap state.
const BootstrapScriptID = "bigpipe-bootstrap"

// ShellData is what the bootstrap pagelet renders.
type ShellData struct {
	// Title is the document title.
	Title string

	// Lang defaults to "en".
	Lang string

	// Bootstrap is serialized into the head for the client.
	Bootstrap *pagelet.Bootstrap

	// Scripts are extra scripts loaded before the page dependencies,
	// typically client libraries contributed by plugins.
	Scripts []string
}

// Head renders the head contents. Custom bootstrap views embed it with
// {{ .Head }}.
func (d ShellData) Head() template.HTML {
	var b strings.Builder
	_ = writeHead(&b, d)
	return template.HTML(b.String())
}

// Shell writes the document up to and including the opening body tag.
func Shell(w io.Writer, d ShellData) error {
	lang := d.Lang
	if lang == "" {
		lang = "en"
	}

	if _, err := fmt.Fprintf(w, "<!DOCTYPE html>\n<html lang=\"%s\">\n<head>\n", escapeAttr(lang)); err != nil {
		return err
	}
	if err := writeHead(w, d); err != nil {
		return err
	}
	_, err := io.WriteString(w, "</head>\n<body>\n")
	return err
}

func writeHead(w io.Writer, d ShellData) error {
	if _, err := io.WriteString(w, `  <meta charset="utf-8">`+"\n"); err != nil {
		return err
	}
	if _, err := io.WriteString(w, `  <meta name="viewport" content="width=device-width, initial-scale=1">`+"\n"); err != nil {
		return err
	}

	if d.Title != "" {
		if _, err := fmt.Fprintf(w, "  <title>%s</title>\n", escapeText(d.Title)); err != nil {
			return err
		}
	}

	var deps pagelet.Dependencies
	if d.Bootstrap != nil {
		deps = d.Bootstrap.Dependencies
	}

	for _, href := range deps.CSS {
		if _, err := fmt.Fprintf(w, `  <link rel="stylesheet" href="%s">`+"\n", escapeAttr(href)); err != nil {
			return err
		}
	}
	for _, src := range d.Scripts {
		if _, err := fmt.Fprintf(w, `  <script src="%s"></script>`+"\n", escapeAttr(src)); err != nil {
			return err
		}
	}
	for _, src := range deps.JS {
		if _, err := fmt.Fprintf(w, `  <script src="%s" defer></script>`+"\n", escapeAttr(src)); err != nil {
			return err
		}
	}

	if d.Bootstrap == nil {
		return nil
	}

	// json.Marshal escapes <, > and &, so the payload cannot close the script.
	state, err := json.Marshal(d.Bootstrap)
	if err != nil {
		return fmt.Errorf("render: encode bootstrap: %w", err)
	}
	_, err = fmt.Fprintf(w, `  <script type="application/json" id="%s">%s</script>`+"\n", BootstrapScriptID, state)
	return err
}
