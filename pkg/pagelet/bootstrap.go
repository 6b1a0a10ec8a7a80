package pagelet

import "encoding/json"

// Dependencies are the assets a page needs, in load order.
type Dependencies struct {
	CSS []string `json:"css"`
	JS  []string `json:"js"`
}

// MarshalJSON encodes missing lists as [] so clients always receive arrays.
func (d Dependencies) MarshalJSON() ([]byte, error) {
	type plain Dependencies
	out := plain(d)
	if out.CSS == nil {
		out.CSS = []string{}
	}
	if out.JS == nil {
		out.JS = []string{}
	}
	return json.Marshal(out)
}

// Bootstrap is the per-request state shared between a page and its children.
// It is serialized into the shell so the client knows what to expect.
type Bootstrap struct {
	Parent       string            `json:"name"`
	Mode         Mode              `json:"mode"`
	Params       map[string]string `json:"params,omitempty"`
	Expected     int               `json:"expected"`
	Dependencies Dependencies      `json:"dependencies"`
	Channel      string            `json:"channel,omitempty"`
	RequestID    string            `json:"id"`

	// Ended is set once the response was terminated, normally or not.
	Ended bool `json:"-"`
}
