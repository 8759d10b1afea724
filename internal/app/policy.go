package app

import "github.com/dkeye/Relay/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
)

func (a BackpressureAction) String() string {
	switch a {
	case KickMember:
		return "kick"
	default:
		return "none"
	}
}

// Policy decides what to do with a recipient that could not accept a frame.
type Policy interface {
	OnBackPressure(room domain.RoomID, conn domain.ConnID) BackpressureAction
}

// SimplePolicy applies the same action to every slow recipient.
type SimplePolicy struct {
	Action BackpressureAction
}

func (p SimplePolicy) OnBackPressure(domain.RoomID, domain.ConnID) BackpressureAction {
	return p.Action
}

// ParseBackpressureAction maps a config value to an action; unknown values
// mean NoAction.
func ParseBackpressureAction(s string) BackpressureAction {
	if s == "kick" {
		return KickMember
	}
	return NoAction
}
