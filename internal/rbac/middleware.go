// Package rbac resolves the calling actor and guards routes by role.
//
// Authentication happens upstream; the gateway forwards the verified identity
// in the X-Actor-ID and X-Actor-Role headers.
package rbac

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/sitekart/sitekart/internal/platform/httpx"
	"github.com/sitekart/sitekart/internal/shared"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// Middleware wires actor resolution and role checks for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// Authenticate resolves the actor from gateway headers.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := m.actorFromHeaders(r)
		if !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid actor headers")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

// RequireRole ensures the current actor has one of roles.
func (m Middleware) RequireRole(roles ...shared.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
				return
			}
			for _, role := range roles {
				if actor.Is(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "role "+string(actor.Role)+" may not access this resource")
		})
	}
}

// Actor returns the actor resolved by Authenticate.
func Actor(r *http.Request) shared.Actor {
	actor, _ := shared.ActorFromContext(r.Context())
	return actor
}

func (m Middleware) actorFromHeaders(r *http.Request) (shared.Actor, bool) {
	role := shared.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderActorRole))))
	if !role.Valid() || role == shared.RoleSystem {
		return shared.Actor{}, false
	}
	raw := strings.TrimSpace(r.Header.Get(HeaderActorID))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		if m.Logger != nil {
			m.Logger.Warn("rbac parse actor id", slog.String("value", raw))
		}
		return shared.Actor{}, false
	}
	return shared.Actor{ID: id, Role: role}, true
}
