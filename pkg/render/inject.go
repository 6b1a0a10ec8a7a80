package render

import "strings"

// Inject places markup right after the opening tag of every element in base
// that carries data-pagelet=name, in any of the three attribute quotings.
func Inject(base, name, markup string) string {
	for _, attr := range []string{
		"data-pagelet='" + name + "'",
		`data-pagelet="` + name + `"`,
		"data-pagelet=" + name,
	} {
		base = injectAttr(base, attr, markup, !strings.HasSuffix(attr, `"`) && !strings.HasSuffix(attr, "'"))
	}
	return base
}

func injectAttr(base, attr, markup string, unquoted bool) string {
	from := 0
	for {
		i := strings.Index(base[from:], attr)
		if i < 0 {
			return base
		}
		i += from
		after := i + len(attr)

		// Unquoted values end at a boundary; name "a" must not match data-pagelet=ab.
		if unquoted && after < len(base) && !isAttrBoundary(base[after]) {
			from = after
			continue
		}

		end := strings.IndexByte(base[after:], '>')
		if end < 0 {
			return base
		}
		end += after + 1

		base = base[:end] + markup + base[end:]
		from = end + len(markup)
	}
}

func isAttrBoundary(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '>', '/':
		return true
	}
	return false
}
