package pagelet

import "fmt"

// Mode selects how a page's children are written to the response.
type Mode string

const (
	// ModeRender renders everything and writes one response, no partial flushes.
	ModeRender Mode = "render"

	// ModeSync is ModeRender forced by the client (no JavaScript, or HTTP/1.0).
	ModeSync Mode = "sync"

	// ModeAsync flushes every child the moment it is ready.
	ModeAsync Mode = "async"

	// ModePipeline flushes children as soon as possible, in declaration order.
	ModePipeline Mode = "pipeline"
)

// DefaultMode is used when a module does not declare one.
const DefaultMode = ModeAsync

// ParseMode validates a mode name. An empty name yields DefaultMode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return DefaultMode, nil
	case ModeRender, ModeSync, ModeAsync, ModePipeline:
		return m, nil
	default:
		return "", fmt.Errorf("pagelet: unknown mode %q", s)
	}
}

// Progressive reports whether the mode flushes before all children are done.
func (m Mode) Progressive() bool {
	return m == ModeAsync || m == ModePipeline
}

// String implements fmt.Stringer.
func (m Mode) String() string {
	return string(m)
}
