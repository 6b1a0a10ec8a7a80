package render

import "strings"

var (
	textEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#39;",
	)

	// Quoted attribute values also keep line breaks and tabs as references,
	// so pagelet names and asset URLs survive verbatim in data-* lookups.
	attrEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#39;",
		"\n", "&#10;",
		"\r", "&#13;",
		"\t", "&#9;",
	)
)

// escapeText escapes s for element content such as the document title.
func escapeText(s string) string { return textEscaper.Replace(s) }

// escapeAttr escapes s for a double-quoted attribute value.
func escapeAttr(s string) string { return attrEscaper.Replace(s) }
