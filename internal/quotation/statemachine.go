package quotation

import (
	"fmt"

	"github.com/sitekart/sitekart/internal/shared"
)

// Event is an action that may move a quotation between states.
type Event string

const (
	EventSend   Event = "send"
	EventView   Event = "view"
	EventAccept Event = "accept"
	EventReject Event = "reject"
	EventExpire Event = "expire"
	EventRevise Event = "revise"
)

type rule struct {
	actor shared.Role
	from  []Status
	to    Status
}

var rules = map[Event]rule{
	EventSend:   {actor: shared.RoleSeller, from: []Status{StatusDraft}, to: StatusSent},
	EventView:   {actor: shared.RoleCustomer, from: []Status{StatusSent}, to: StatusViewed},
	EventAccept: {actor: shared.RoleCustomer, from: []Status{StatusSent, StatusViewed}, to: StatusAccepted},
	EventReject: {actor: shared.RoleCustomer, from: []Status{StatusSent, StatusViewed}, to: StatusRejected},
	EventExpire: {actor: shared.RoleSystem, from: []Status{StatusSent, StatusViewed}, to: StatusExpired},
	EventRevise: {actor: shared.RoleSeller, from: []Status{StatusSent, StatusViewed}, to: StatusRevised},
}

// Transition returns the status reached when role triggers ev on a quotation
// in from. Viewing an already viewed quotation is a no-op.
func Transition(from Status, ev Event, role shared.Role) (Status, error) {
	r, ok := rules[ev]
	if !ok {
		return from, fmt.Errorf("%w: unknown event %q", shared.ErrInvalidTransition, ev)
	}
	if role != r.actor {
		return from, fmt.Errorf("%w: %s may not %s a quotation", shared.ErrActorNotPermitted, role, ev)
	}
	if ev == EventView && from == StatusViewed {
		return from, nil
	}
	for _, allowed := range r.from {
		if allowed == from {
			return r.to, nil
		}
	}
	if r.actor == shared.RoleCustomer {
		return from, fmt.Errorf("%w: cannot %s a %s quotation", shared.ErrQuotationNotViewable, ev, from)
	}
	return from, fmt.Errorf("%w: cannot %s a %s quotation", shared.ErrInvalidTransition, ev, from)
}
