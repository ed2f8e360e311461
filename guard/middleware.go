package guard

import (
	"net/http"

	apperrors "github.com/jrsteele09/go-auth-client/internal/errors"
)

// Middleware guards a server-rendered console: requests for a guarded route,
// or any path beneath one, are redirected (303) to the decision's target.
// Public routes and paths outside the table reach next unchanged.
func (r *Router) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			result, err := r.Navigate(req.URL.Path)
			if err != nil {
				if !apperrors.Is(err, apperrors.ErrRouteNotFound) {
					r.logger.Err(err).Str("path", req.URL.Path).Msg("navigation check failed")
				}
				next.ServeHTTP(w, req)
				return
			}

			if !result.Allowed() {
				r.logger.Debug().Str("path", req.URL.Path).Stringer("decision", result.Decision).Msg("navigation redirected")
				http.Redirect(w, req, result.Target, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
