package policy

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/openchami/realmgate/pkg/claims"
	"github.com/openchami/realmgate/pkg/errors"
)

// Guard enforces the registry on routed requests. It must run after chi has
// matched the route, so mount it with Router.With or inside Router.Group
// rather than on the root router.
//
// Unregistered operations pass through. A registered operation with no
// Identity in the context is rejected with 401, a denied one with a uniform
// 403 that never names the missing permission or role.
func (e *Engine) Guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pattern := routePattern(r)
		if _, registered := e.registry.Lookup(r.Method, pattern); !registered {
			next.ServeHTTP(w, r)
			return
		}

		id, ok := claims.FromContext(r.Context())
		if !ok {
			errors.WriteHTTP(w, errors.NewUnauthorized("authentication required"))
			return
		}

		decision, _ := e.Authorize(r.Context(), id, r.Method, pattern)
		if !decision.Allowed {
			errors.WriteHTTP(w, errors.NewForbidden())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission guards a single handler with a permission, independent
// of the registry.
func (e *Engine) RequirePermission(name string) func(http.Handler) http.Handler {
	return e.require(Requirement{Kind: KindPermission, Name: name})
}

// RequireRole guards a single handler with a realm role, independent of the
// registry.
func (e *Engine) RequireRole(name string) func(http.Handler) http.Handler {
	return e.require(Requirement{Kind: KindRole, Name: name})
}

func (e *Engine) require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := claims.FromContext(r.Context())
			if !ok {
				errors.WriteHTTP(w, errors.NewUnauthorized("authentication required"))
				return
			}
			d := Evaluate(id, req)
			e.metrics.Decision(string(req.Kind), d.Allowed)
			e.logger.LogDecision(r.Context(), OperationID(r.Method, routePattern(r)), id, d, 0)
			if !d.Allowed {
				errors.WriteHTTP(w, errors.NewForbidden())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
