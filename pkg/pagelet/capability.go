package pagelet

import (
	"context"
	"net/http"
)

// Authorizer gates a pagelet per request. A rejected pagelet is skipped:
// the router moves on to the next candidate and a page drops the child.
// An error is not a rejection; it ends the request with a 500.
type Authorizer interface {
	Authorize(ctx context.Context, r *http.Request, in *Instance) (bool, error)
}

// Initializer runs once for the routed pagelet after the bootstrap state is
// created and before anything renders. It may answer the request itself
// (a redirect, for example); rendering is skipped when it does.
type Initializer interface {
	Initialize(ctx context.Context, in *Instance) error
}

// Provider supplies the template context for the pagelet's View.
type Provider interface {
	Data(ctx context.Context, in *Instance) (any, error)
}

// Renderer produces markup directly, bypassing the template engine.
type Renderer interface {
	Render(ctx context.Context, in *Instance) (string, error)
}
