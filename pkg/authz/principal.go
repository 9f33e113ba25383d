// Package authz is the authorization kernel: principal resolution and
// capability checks against live aggregate state, run after rehydration and
// before the command handler (spec.md §4.3). It never triggers side
// effects and its result is binary: allow, or a specific DenyReason.
package authz

// internalServicePrefix identifies system-to-system callers, per spec.md
// §4.3 rule 2.
const internalServicePrefix = "fern-labour-internal"

// SubscriberRole names the relationship a subscriber has to the labour
// (e.g. "PARTNER", "DOULA", "FAMILY"). The authorization kernel treats it
// as an opaque string; only pkg/labour interprets its values.
type SubscriberRole string

// SubscriberStatus is the subscription lifecycle state, mirrored here so
// the authorization kernel can read it without importing pkg/labour.
type SubscriberStatus string

const (
	SubscriberStatusRequested   SubscriberStatus = "REQUESTED"
	SubscriberStatusSubscribed  SubscriberStatus = "SUBSCRIBED"
	SubscriberStatusUnsubscribed SubscriberStatus = "UNSUBSCRIBED"
	SubscriberStatusRemoved     SubscriberStatus = "REMOVED"
	SubscriberStatusBlocked     SubscriberStatus = "BLOCKED"
)

// Subscription is the minimal view of a labour subscription the
// authorization kernel needs.
type Subscription struct {
	SubscriptionID string
	SubscriberID   string
	Role           SubscriberRole
	Status         SubscriberStatus
}

// AggregateView is the minimal read-only view of a Labour aggregate the
// authorization kernel needs to resolve a principal. pkg/labour.Labour
// implements this directly so authz never imports the labour package
// (avoiding the import cycle command handlers would otherwise create).
type AggregateView interface {
	MotherID() string
	Subscriptions() []Subscription
}

// Principal is the resolved role of a caller relative to one aggregate.
type Principal struct {
	Kind         PrincipalKind
	UserID       string
	Subscription Subscription // populated only when Kind == PrincipalSubscriber
}

// PrincipalKind enumerates the possible resolved roles.
type PrincipalKind string

const (
	PrincipalMother       PrincipalKind = "MOTHER"
	PrincipalSubscriber   PrincipalKind = "SUBSCRIBER"
	PrincipalInternal     PrincipalKind = "INTERNAL"
	PrincipalUnassociated PrincipalKind = "UNASSOCIATED"
)

// ResolvePrincipal implements spec.md §4.3's resolution order: mother,
// then internal-service prefix, then matching subscription, else
// unassociated. A nil aggregate (command targets an aggregate that does
// not exist yet) always resolves to Unassociated.
func ResolvePrincipal(userID string, aggregate AggregateView) Principal {
	if aggregate == nil {
		return Principal{Kind: PrincipalUnassociated, UserID: userID}
	}

	if userID != "" && userID == aggregate.MotherID() {
		return Principal{Kind: PrincipalMother, UserID: userID}
	}

	if hasInternalPrefix(userID) {
		return Principal{Kind: PrincipalInternal, UserID: userID}
	}

	for _, sub := range aggregate.Subscriptions() {
		if sub.SubscriberID == userID {
			return Principal{Kind: PrincipalSubscriber, UserID: userID, Subscription: sub}
		}
	}

	return Principal{Kind: PrincipalUnassociated, UserID: userID}
}

func hasInternalPrefix(userID string) bool {
	return len(userID) >= len(internalServicePrefix) && userID[:len(internalServicePrefix)] == internalServicePrefix
}
