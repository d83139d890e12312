// Package rbac authorizes requests by the caller role supplied upstream.
package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

// Header names carrying the caller identity.
const (
	HeaderRole  = "X-Role"
	HeaderActor = "X-Actor-ID"
)

// Roles understood by the API.
const (
	RoleAdmin      = "admin"
	RoleAccountant = "accountant"
	RoleViewer     = "viewer"
)

var knownRoles = map[string]struct{}{
	RoleAdmin:      {},
	RoleAccountant: {},
	RoleViewer:     {},
}

// Middleware wires role authorization helpers for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// Identify copies the caller headers into the request context. Unknown roles
// are dropped so that later checks fail closed.
func (m Middleware) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderRole)))
		if _, ok := knownRoles[role]; !ok {
			if role != "" && m.Logger != nil {
				m.Logger.Warn("rbac unknown role", slog.String("role", role))
			}
			role = ""
		}
		actor := shared.Actor{
			ID:   strings.TrimSpace(r.Header.Get(HeaderActor)),
			Role: role,
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

// RequireAny ensures the current caller holds at least one of the roles.
func (m Middleware) RequireAny(roles ...string) func(http.Handler) http.Handler {
	normalized := normalizeRoles(roles)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actor := shared.ActorFromContext(r.Context())
			if _, ok := normalized[actor.Role]; ok {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Info("rbac denied", slog.String("role", actor.Role), slog.String("path", r.URL.Path))
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

func normalizeRoles(roles []string) map[string]struct{} {
	set := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(strings.ToLower(r))
		if r == "" {
			continue
		}
		set[r] = struct{}{}
	}
	return set
}
