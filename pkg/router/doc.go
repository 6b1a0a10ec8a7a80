// Package router resolves requests to pagelet definitions.
//
// Resolution is a linear scan of the discovered definitions in registration
// order. Results are memoized per METHOD@path (or per explicit pagelet id) in
// a Cache, so the scan runs once per distinct key for the life of the process.
// The not-found definition is appended to every result as a terminator and is
// never stored in the cache.
//
// Route then walks the candidates strictly in order, admitting the first one
// whose Authorizer accepts the request:
//
//	in, err := rt.Route(ctx, r, w, "")
//	if err != nil {
//	    // authorization failed with an error; render the 500 page
//	}
//	defer pool.Release(in)
package router
