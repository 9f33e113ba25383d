package authz

import "context"

// Action describes what a caller is attempting: the capability it
// requires, and — for actions that mutate a specific subscription — which
// subscription it targets, so CannotTargetOthers can be checked.
type Action struct {
	RequiredCapability   Capability
	TargetSubscriptionID string // empty if the action has no single-subscription target
}

// Authorizer is the interface pkg/middleware.AuthorizationMiddleware
// expects. This package provides no implementation of it; pkg/labour's
// command handlers call Authorize below directly.
type Authorizer interface {
	Authorize(ctx context.Context, principalID string, commandType string, command interface{}) error
}

// Authorize runs the fixed-order check from spec.md §4.3:
// Unassociated → SubscriptionNotActive → CannotTargetOthers → MissingCapability(cap).
func Authorize(principal Principal, action Action) error {
	if principal.Kind == PrincipalUnassociated {
		return Unauthorised(DenyReason{Kind: DenyUnassociated})
	}

	if principal.Kind == PrincipalSubscriber &&
		principal.Subscription.Status != SubscriberStatusSubscribed &&
		action.RequiredCapability != CapReadOwnSubscription {
		return Unauthorised(DenyReason{Kind: DenySubscriptionNotActive})
	}

	if action.TargetSubscriptionID != "" &&
		principal.Kind == PrincipalSubscriber &&
		action.TargetSubscriptionID != principal.Subscription.SubscriptionID {
		return Unauthorised(DenyReason{Kind: DenyCannotTargetOthers})
	}

	if !has(principal, action.RequiredCapability) {
		return Unauthorised(DenyReason{Kind: DenyMissingCapability, Capability: action.RequiredCapability})
	}

	return nil
}
