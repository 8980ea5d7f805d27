package order

import (
	"fmt"

	"github.com/sitekart/sitekart/internal/shared"
)

var forward = map[Status]Status{
	StatusPending:    StatusConfirmed,
	StatusConfirmed:  StatusProcessing,
	StatusProcessing: StatusShipped,
	StatusShipped:    StatusDelivered,
}

var cancellable = map[Status]bool{
	StatusPending:    true,
	StatusConfirmed:  true,
	StatusProcessing: true,
}

// CanTransition reports whether role may move an order from one status to
// another.
func CanTransition(from, to Status, role shared.Role) error {
	var allowed []shared.Role
	switch {
	case !to.Valid():
		return fmt.Errorf("%w: unknown order status %q", shared.ErrInvalidTransition, to)
	case forward[from] == to:
		allowed = []shared.Role{shared.RoleSeller, shared.RoleSystem}
	case to == StatusCancelled && cancellable[from]:
		allowed = []shared.Role{shared.RoleCustomer, shared.RoleSeller}
	case to == StatusReturned && from == StatusShipped:
		allowed = []shared.Role{shared.RoleSeller}
	default:
		return fmt.Errorf("%w: order cannot move from %s to %s", shared.ErrInvalidTransition, from, to)
	}
	for _, r := range allowed {
		if r == role {
			return nil
		}
	}
	return fmt.Errorf("%w: %s may not move an order to %s", shared.ErrActorNotPermitted, role, to)
}
