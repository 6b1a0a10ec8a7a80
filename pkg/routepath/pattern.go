package routepath

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Param types understood by typed segments (":id:int").
const (
	TypeString = "string"
	TypeInt    = "int"
	TypeUUID   = "uuid"
)

// segment is one compiled piece of a segment pattern.
type segment struct {
	// literal is the exact text for static segments.
	literal string

	// isParam indicates a :name segment.
	isParam bool

	// isCatchAll indicates a *name segment.
	isCatchAll bool

	// paramName is the parameter name (without : or *).
	paramName string

	// paramType is the expected parameter type.
	paramType string
}

// Pattern is a compiled pagelet path.
type Pattern struct {
	raw      string
	segments []segment
	re       *regexp.Regexp
	names    []string
}

// Compile parses a path pattern.
func Compile(path string) (*Pattern, error) {
	if strings.HasPrefix(path, "^") {
		re, err := regexp.Compile(path)
		if err != nil {
			return nil, fmt.Errorf("routepath: %q: %w", path, err)
		}
		p := &Pattern{raw: path, re: re}
		for _, name := range re.SubexpNames() {
			if name != "" {
				p.names = append(p.names, name)
			}
		}
		return p, nil
	}

	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("routepath: %q: %w", path, ErrInvalidPath)
	}

	p := &Pattern{raw: path}
	parts := splitPath(path)
	for i, part := range parts {
		var seg segment
		switch {
		case strings.HasPrefix(part, "*"):
			if i != len(parts)-1 {
				return nil, fmt.Errorf("routepath: %q: catch-all must be the last segment", path)
			}
			seg = segment{isCatchAll: true, paramName: part[1:], paramType: "[]string"}
		case strings.HasPrefix(part, ":"):
			name, typ := parseParamSegment(part)
			switch typ {
			case TypeString, TypeInt, TypeUUID:
			default:
				return nil, fmt.Errorf("routepath: %q: unknown parameter type %q", path, typ)
			}
			seg = segment{isParam: true, paramName: name, paramType: typ}
		default:
			seg = segment{literal: part}
		}
		if (seg.isParam || seg.isCatchAll) && seg.paramName == "" {
			return nil, fmt.Errorf("routepath: %q: parameter without a name", path)
		}
		if seg.paramName != "" {
			for _, n := range p.names {
				if n == seg.paramName {
					return nil, fmt.Errorf("routepath: %q: duplicate parameter %q", path, n)
				}
			}
			p.names = append(p.names, seg.paramName)
		}
		p.segments = append(p.segments, seg)
	}
	return p, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(path string) *Pattern {
	p, err := Compile(path)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the source pattern.
func (p *Pattern) String() string {
	return p.raw
}

// Params returns the parameter names in declaration order.
func (p *Pattern) Params() []string {
	return append([]string(nil), p.names...)
}

// Test reports whether path matches.
func (p *Pattern) Test(path string) bool {
	_, ok := p.Match(path)
	return ok
}

// Match matches path and returns the extracted parameters.
// The returned map is never nil on success.
func (p *Pattern) Match(path string) (map[string]string, bool) {
	if p.re != nil {
		return p.matchRegexp(path)
	}

	parts := splitPath(path)
	params := make(map[string]string, len(p.names))

	for i, seg := range p.segments {
		if seg.isCatchAll {
			rest := parts[i:]
			if len(rest) == 0 {
				return nil, false
			}
			decoded, err := DecodeSegment(strings.Join(rest, "/"), true)
			if err != nil {
				return nil, false
			}
			params[seg.paramName] = decoded
			return params, true
		}
		if i >= len(parts) {
			return nil, false
		}
		if !seg.isParam {
			if parts[i] != seg.literal {
				return nil, false
			}
			continue
		}
		value, err := DecodeSegment(parts[i], false)
		if err != nil || !validParam(value, seg.paramType) {
			return nil, false
		}
		params[seg.paramName] = value
	}

	if len(parts) != len(p.segments) {
		return nil, false
	}
	return params, true
}

func (p *Pattern) matchRegexp(path string) (map[string]string, bool) {
	m := p.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	params := make(map[string]string, len(p.names))
	for i, name := range p.re.SubexpNames() {
		if name != "" && i < len(m) {
			params[name] = m[i]
		}
	}
	return params, true
}

func validParam(value, typ string) bool {
	switch typ {
	case TypeInt:
		_, err := strconv.Atoi(value)
		return err == nil
	case TypeUUID:
		_, err := uuid.Parse(value)
		return err == nil
	default:
		return value != ""
	}
}

// splitPath splits a path into segments.
func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// parseParamSegment extracts name and type from a parameter segment.
// Input: ":id" or ":id:int" -> name="id", type="string" or "int"
func parseParamSegment(seg string) (name, paramType string) {
	seg = seg[1:]
	if idx := strings.Index(seg, ":"); idx != -1 {
		return seg[:idx], seg[idx+1:]
	}
	return seg, TypeString
}
