package render

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FragmentData describes a child pagelet written into a progressive response.
type FragmentData struct {
	Name    string   `json:"name"`
	Parent  string   `json:"parent"`
	Ordinal int      `json:"ordinal"`
	CSS     []string `json:"css,omitempty"`
	JS      []string `json:"js,omitempty"`
}

// Fragment wraps a child's markup in an inert template element followed by
// its metadata, so a client can move it into the matching placeholder.
func Fragment(d FragmentData, markup string) (string, error) {
	meta, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("render: encode fragment %s: %w", d.Name, err)
	}

	name := escapeAttr(d.Name)

	var b strings.Builder
	b.Grow(len(markup) + len(meta) + 2*len(name) + 128)
	b.WriteString(`<template data-pagelet-fragment="`)
	b.WriteString(name)
	b.WriteString(`">`)
	b.WriteString(markup)
	b.WriteString("</template>\n")
	b.WriteString(`<script type="application/json" data-pagelet-fragment="`)
	b.WriteString(name)
	b.WriteString(`">`)
	b.Write(meta)
	b.WriteString("</script>\n")
	return b.String(), nil
}
