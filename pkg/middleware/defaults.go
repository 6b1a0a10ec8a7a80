package middleware

import (
	"net/http"

	"github.com/vango-dev/bigpipe/pkg/routepath"
)

// Defaults canonicalizes the request path and stamps X-Powered-By when
// poweredBy is set. Non-canonical paths get a 308 to the canonical form and
// paths that cannot be canonicalized are answered with 400.
func Defaults(poweredBy string) Layer {
	return LayerFunc(func(w http.ResponseWriter, r *http.Request, next Next) error {
		res, err := routepath.CanonicalizePath(r.URL.EscapedPath())
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return nil
		}

		if poweredBy != "" {
			w.Header().Set("X-Powered-By", poweredBy)
		}

		if res.Changed {
			target := res.Path
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, target, http.StatusPermanentRedirect)
			return nil
		}

		return next(r)
	})
}
