package authz

// Capability is an atomic permission required by an action.
type Capability string

const (
	CapManageLabour          Capability = "ManageLabour"
	CapReadLabour             Capability = "ReadLabour"
	CapManageSelfSubscription Capability = "ManageSelfSubscription"
	CapManageOtherSubscription Capability = "ManageOtherSubscription"
	CapReadOwnSubscription    Capability = "ReadOwnSubscription"
	CapAdminRebuild           Capability = "AdminRebuild"
)

// capabilitiesFor implements spec.md §4.3's capability decision matrix.
func capabilitiesFor(p Principal) map[Capability]bool {
	switch p.Kind {
	case PrincipalMother:
		return set(CapManageLabour, CapReadLabour, CapManageOtherSubscription, CapAdminRebuild)
	case PrincipalInternal:
		return set(CapManageLabour, CapReadLabour, CapManageSelfSubscription,
			CapManageOtherSubscription, CapReadOwnSubscription, CapAdminRebuild)
	case PrincipalSubscriber:
		switch p.Subscription.Status {
		case SubscriberStatusSubscribed:
			return set(CapReadLabour, CapManageSelfSubscription)
		case SubscriberStatusRequested:
			return set(CapReadOwnSubscription)
		default: // BLOCKED, REMOVED, UNSUBSCRIBED
			return set(CapReadOwnSubscription)
		}
	default: // Unassociated
		return map[Capability]bool{}
	}
}

func set(caps ...Capability) map[Capability]bool {
	m := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		m[c] = true
	}
	return m
}

func has(p Principal, cap Capability) bool {
	return capabilitiesFor(p)[cap]
}
