// Package labour implements the Labour aggregate: a long-running
// real-world process with a lead actor (the mother), subscribers,
// contractions, updates, and a subscription token (spec.md §3).
package labour

import "fmt"

// Phase is the ordered labour phase. Transitions are monotonic in this
// ordinal order except an administrative reset (spec.md §3/§4.2).
type Phase int

const (
	PhasePlanned Phase = iota
	PhaseEarly
	PhaseActive
	PhaseTransition
	PhasePushing
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhasePlanned:
		return "PLANNED"
	case PhaseEarly:
		return "EARLY"
	case PhaseActive:
		return "ACTIVE"
	case PhaseTransition:
		return "TRANSITION"
	case PhasePushing:
		return "PUSHING"
	case PhaseComplete:
		return "COMPLETE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(p))
	}
}

// ParsePhase maps a wire tag back to a Phase.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "PLANNED":
		return PhasePlanned, nil
	case "EARLY":
		return PhaseEarly, nil
	case "ACTIVE":
		return PhaseActive, nil
	case "TRANSITION":
		return PhaseTransition, nil
	case "PUSHING":
		return PhasePushing, nil
	case "COMPLETE":
		return PhaseComplete, nil
	default:
		return 0, fmt.Errorf("unknown labour phase %q", s)
	}
}

// next returns the next ordinal phase after AdvanceLabourPhase, or
// false if already at the last pre-completion phase.
func (p Phase) next() (Phase, bool) {
	if p >= PhasePushing {
		return p, false
	}
	return p + 1, true
}

// SubscriberRole names a subscriber's relationship to the labour.
type SubscriberRole string

const (
	RolePartner SubscriberRole = "PARTNER"
	RoleFamily  SubscriberRole = "FAMILY"
	RoleFriend  SubscriberRole = "FRIEND"
	RoleDoula   SubscriberRole = "DOULA"
)

// SubscriberStatus is the subscription lifecycle state (SPEC_FULL.md §3):
// REQUESTED → SUBSCRIBED → {UNSUBSCRIBED, REMOVED, BLOCKED}, BLOCKED ⇄ REMOVED.
type SubscriberStatus string

const (
	StatusRequested   SubscriberStatus = "REQUESTED"
	StatusSubscribed  SubscriberStatus = "SUBSCRIBED"
	StatusUnsubscribed SubscriberStatus = "UNSUBSCRIBED"
	StatusRemoved     SubscriberStatus = "REMOVED"
	StatusBlocked     SubscriberStatus = "BLOCKED"
)

// ContactMethod is a channel a subscriber can be notified on.
type ContactMethod string

const (
	ContactEmail ContactMethod = "EMAIL"
	ContactSMS   ContactMethod = "SMS"
)

// LabourUpdateType distinguishes announcements (which trigger the
// notification policy) from other update kinds.
type LabourUpdateType string

const (
	UpdateTypeAnnouncement LabourUpdateType = "ANNOUNCEMENT"
	UpdateTypeStatus       LabourUpdateType = "STATUS"
	UpdateTypePrivate      LabourUpdateType = "PRIVATE"
)

// AccessLevel scopes which labour updates a subscriber may read.
type AccessLevel string

const (
	AccessBasic    AccessLevel = "BASIC"
	AccessFull     AccessLevel = "FULL"
)
