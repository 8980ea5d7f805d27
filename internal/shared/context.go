package shared

import (
	"context"
	"strconv"
)

// Role identifies the marketplace party behind a request.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleSeller   Role = "seller"
	RoleDesigner Role = "designer"
	RoleSystem   Role = "system"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleSeller, RoleDesigner, RoleSystem:
		return true
	}
	return false
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   int64
	Role Role
}

// SystemActor is used by schedulers and background jobs.
var SystemActor = Actor{Role: RoleSystem}

// Is reports whether the actor has role r.
func (a Actor) Is(r Role) bool {
	return a.Role == r
}

func (a Actor) String() string {
	return string(a.Role) + ":" + strconv.FormatInt(a.ID, 10)
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
