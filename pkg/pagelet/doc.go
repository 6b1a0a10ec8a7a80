// Package pagelet defines the units a bigpipe page is composed of.
//
// A Module is what an application declares; Normalize turns it into an
// immutable Definition that is shared read-only by every request. Per
// request, a Definition is activated as an Instance taken from a Pool and
// handed back once the response is done.
//
// Optional behavior is expressed through small capability interfaces that a
// Module's Producer may implement:
//
//	type news struct{ db *sql.DB }
//
//	func (n *news) Authorize(ctx context.Context, r *http.Request, in *pagelet.Instance) (bool, error) {
//	    return r.Header.Get("X-User") != "", nil
//	}
//
//	func (n *news) Data(ctx context.Context, in *pagelet.Instance) (any, error) {
//	    return n.latest(ctx, in.Param("section"))
//	}
//
// Producers without any capability are rendered from their View with a nil
// template context.
package pagelet
