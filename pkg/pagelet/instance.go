package pagelet

import (
	"context"
	"net/http"
)

// Instance is a definition activated for a single request. It is owned by
// exactly one request at a time and must not be retained after Release.
type Instance struct {
	def        *Definition
	req        *http.Request
	w          http.ResponseWriter
	params     map[string]string
	authorized bool
	mode       Mode
	ordinal    int
	data       any
	state      State
	bootstrap  *Bootstrap
	pooled     bool
}

func newInstance(def *Definition) *Instance {
	in := &Instance{def: def}
	in.reset()
	return in
}

// NewInstance creates an instance outside of any pool. Mostly useful in tests
// and for one-off renders.
func NewInstance(def *Definition) *Instance {
	return newInstance(def)
}

func (in *Instance) reset() {
	in.req = nil
	in.w = nil
	in.params = nil
	in.authorized = false
	in.mode = in.def.mode
	in.ordinal = 0
	in.data = nil
	in.state = StateCreated
	in.bootstrap = nil
}

// Bind attaches the request, response and extracted route params.
func (in *Instance) Bind(r *http.Request, w http.ResponseWriter, params map[string]string) {
	in.req = r
	in.w = w
	in.params = params
	in.Advance(StateParamsBound)
}

// Advance moves the lifecycle forward. It reports false when the transition
// is not allowed, which includes every transition out of StateEnded.
func (in *Instance) Advance(next State) bool {
	if !in.state.canAdvance(next) {
		return false
	}
	in.state = next
	return true
}

// Context returns the request context, or context.Background when unbound.
func (in *Instance) Context() context.Context {
	if in.req != nil {
		return in.req.Context()
	}
	return context.Background()
}

func (in *Instance) Definition() *Definition { return in.def }
func (in *Instance) Name() string { return in.def.name }
func (in *Instance) Request() *http.Request { return in.req }
func (in *Instance) Response() http.ResponseWriter { return in.w }
func (in *Instance) Params() map[string]string { return in.params }
func (in *Instance) Authorized() bool { return in.authorized }
func (in *Instance) Mode() Mode { return in.mode }
func (in *Instance) Ordinal() int { return in.ordinal }
func (in *Instance) Data() any { return in.data }
func (in *Instance) State() State { return in.state }
func (in *Instance) Bootstrap() *Bootstrap { return in.bootstrap }
func (in *Instance) SetMode(m Mode) { in.mode = m }
func (in *Instance) SetOrdinal(n int) { in.ordinal = n }
func (in *Instance) SetData(v any) { in.data = v }
func (in *Instance) SetBootstrap(b *Bootstrap) { in.bootstrap = b }

// Param returns a single route parameter.
func (in *Instance) Param(name string) string {
	return in.params[name]
}

// SetAuthorized records the authorization outcome.
func (in *Instance) SetAuthorized(ok bool) {
	in.authorized = ok
	if ok {
		in.Advance(StateAuthorized)
	}
}
