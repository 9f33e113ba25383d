// Package process implements the process manager described in spec.md
// §4.5: a table of per-event-type policies that turn Labour (and
// Notification) domain events into side-effecting commands, dispatched
// either synchronously (priority effects) or via a queued, alarm-driven
// batch (everything else).
package process

import "fmt"

// EffectKind tags the Effect union (spec.md §4.5).
type EffectKind string

const (
	EffectSendNotification        EffectKind = "SendNotification"
	EffectGenerateSubscriptionToken EffectKind = "GenerateSubscriptionToken"
	EffectServiceCommand          EffectKind = "ServiceCommand"
)

// EffectStatus tracks an effect through the idempotency ledger.
type EffectStatus string

const (
	EffectPending    EffectStatus = "Pending"
	EffectDispatched EffectStatus = "Dispatched"
	EffectCompleted  EffectStatus = "Completed"
	EffectFailed     EffectStatus = "Failed"
)

// NotificationIntent is the payload of a SendNotification effect: enough to
// construct a notification.RequestNotification command without pkg/process
// importing pkg/notification (kept decoupled the way pkg/authz keeps
// pkg/labour at arm's length via AggregateView).
type NotificationIntent struct {
	Recipient string
	Channel   string
	Kind      string
	Payload   map[string]string
}

// Effect is produced by a Policy in response to one domain event. Exactly
// one of the payload fields is set, selected by Kind.
type Effect struct {
	Kind EffectKind

	// AggregateID and Sequence identify the event that produced this
	// effect; together with Kind and Discriminator they build the
	// idempotency key (spec.md §4.5).
	AggregateID   string
	Sequence      int64
	Discriminator string

	// Priority effects execute synchronously inline with event handling;
	// non-priority effects are enqueued for alarm-driven batch delivery
	// (spec.md §4.5/§5).
	Priority bool

	Notification *NotificationIntent
	TokenSeed    *TokenSeed
	ServiceCmd   *ServiceCommand
}

// TokenSeed carries what pkg/token needs to derive a subscription token,
// without pkg/process importing pkg/labour.
type TokenSeed struct {
	MotherID string
	LabourID string
}

// ServiceCommand names a follow-up command against an aggregate along
// with its dispatch parameters. No policy produces one, and the Manager
// rejects an effect of this kind with an error instead of dispatching it.
type ServiceCommand struct {
	CommandType   string
	AggregateID   string
	Payload       map[string]string
	IdempotencyKey string
}

// IdempotencyKey builds the ledger key spec.md §3 specifies:
// "{aggregate_id}:{sequence}:{kind}:{discriminator}", where kind is one of
// the two tags spec.md mandates, {cmd, notif} — not the raw EffectKind.
func IdempotencyKey(e Effect) string {
	return fmt.Sprintf("%s:%d:%s:%s", e.AggregateID, e.Sequence, idempotencyKindTag(e.Kind), e.Discriminator)
}

// idempotencyKindTag maps an EffectKind onto spec.md §3's {cmd, notif}
// idempotency-key vocabulary: notifications tag "notif", everything that
// issues a follow-up command (token generation, service commands) tags
// "cmd".
func idempotencyKindTag(kind EffectKind) string {
	if kind == EffectSendNotification {
		return "notif"
	}
	return "cmd"
}
