package pagelet

// State is a step in an instance's per-request lifecycle.
type State uint8

const (
	StateCreated State = iota
	StateParamsBound
	StateAuthorized
	StateBootstrapped
	StateRendering
	StateWriting
	StateFlushing
	StateEnded
)

var stateNames = [...]string{
	StateCreated:      "created",
	StateParamsBound:  "params-bound",
	StateAuthorized:   "authorized",
	StateBootstrapped: "bootstrapped",
	StateRendering:    "rendering",
	StateWriting:      "writing",
	StateFlushing:     "flushing",
	StateEnded:        "ended",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// canAdvance reports whether the lifecycle may move from s to next.
// Writing and flushing alternate freely; ended is terminal.
func (s State) canAdvance(next State) bool {
	if s == StateEnded {
		return false
	}
	if (s == StateWriting || s == StateFlushing) && (next == StateWriting || next == StateFlushing) {
		return true
	}
	return next > s
}
