package process

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
	"github.com/kieran-gray/fern-labour-sub001/pkg/labour"
	"github.com/kieran-gray/fern-labour-sub001/pkg/notification"
)

// TokenGenerator derives a subscription token for a (mother, labour) pair.
// Implemented by pkg/token.GenerateToken with a process-configured salt.
type TokenGenerator func(motherID, labourID string) string

// Queue accepts non-priority effects for later, alarm-driven delivery
// (spec.md §4.5/§5). Priority effects bypass the queue entirely.
type Queue interface {
	Enqueue(effect Effect) error
}

// Manager is the process manager described in spec.md §4.5: it subscribes
// to domain events, evaluates the declared policy table, and turns the
// resulting effects into follow-up commands — synchronously for priority
// effects, via Queue for everything else.
type Manager struct {
	bus         eventsourcing.CommandBus
	labourRepo  eventsourcing.Repository[*labour.Labour]
	ledger      Ledger
	queue       Queue
	genToken    TokenGenerator
	backoff     BackoffConfig
}

func NewManager(
	bus eventsourcing.CommandBus,
	labourRepo eventsourcing.Repository[*labour.Labour],
	ledger Ledger,
	queue Queue,
	genToken TokenGenerator,
) *Manager {
	return &Manager{
		bus:        bus,
		labourRepo: labourRepo,
		ledger:     ledger,
		queue:      queue,
		genToken:   genToken,
		backoff:    DefaultBackoff(),
	}
}

// HandleEvent is wired as an eventsourcing.EventHandler (see pkg/nats) so
// the manager runs once per persisted event, after the command that
// produced it has already been applied and synchronously projected
// (spec.md §4.1's 6-step CommandProcessor flow).
func (m *Manager) HandleEvent(env *eventsourcing.EventEnvelope) error {
	return m.Handle(context.Background(), &env.Event)
}

// Handle evaluates the event against the declared policy table and
// dispatches any resulting effects.
func (m *Manager) Handle(ctx context.Context, event *eventsourcing.Event) error {
	if event.AggregateType != labour.AggregateType {
		return nil
	}
	policy, ok := LabourPolicies[event.EventType]
	if !ok {
		return nil
	}
	agg, err := m.labourRepo.Load(event.AggregateID)
	if err != nil {
		return fmt.Errorf("process: load labour %s: %w", event.AggregateID, err)
	}

	for _, effect := range policy(event, agg) {
		key := IdempotencyKey(effect)
		if status, ok := m.ledger.Status(key); ok && (status == EffectCompleted || status == EffectDispatched) {
			continue // already handled, re-delivery is a no-op (spec.md §4.5)
		}
		if effect.Priority {
			if err := m.dispatch(ctx, effect, key); err != nil {
				m.ledger.Record(key, EffectFailed)
				return err
			}
			continue
		}
		m.ledger.Record(key, EffectPending)
		if err := m.queue.Enqueue(effect); err != nil {
			m.ledger.Record(key, EffectFailed)
			return fmt.Errorf("process: enqueue effect %s: %w", key, err)
		}
	}
	return nil
}

// Dispatch executes a single effect (used both for the synchronous
// priority path and by the alarm-driven queue drain for queued effects).
func (m *Manager) Dispatch(ctx context.Context, effect Effect) error {
	return m.dispatch(ctx, effect, IdempotencyKey(effect))
}

func (m *Manager) dispatch(ctx context.Context, effect Effect, key string) error {
	var cmd eventsourcing.Command
	switch effect.Kind {
	case EffectGenerateSubscriptionToken:
		if effect.TokenSeed == nil {
			return fmt.Errorf("process: GenerateSubscriptionToken effect missing seed")
		}
		token := m.genToken(effect.TokenSeed.MotherID, effect.TokenSeed.LabourID)
		cmd = &labour.SetSubscriptionToken{ID_: effect.TokenSeed.LabourID, Token: token}

	case EffectSendNotification:
		if effect.Notification == nil {
			return fmt.Errorf("process: SendNotification effect missing intent")
		}
		n := effect.Notification
		cmd = &notification.RequestNotification{
			ID_: uuid.NewString(), Recipient: n.Recipient,
			Channel: notification.Channel(n.Channel), Kind: notification.Kind(n.Kind),
			Payload: n.Payload,
		}

	case EffectServiceCommand:
		// ServiceCommand is a generic escape hatch for future policies;
		// nothing in the current Labour policy table produces one.
		return fmt.Errorf("process: ServiceCommand dispatch not wired for %s", effect.ServiceCmd.CommandType)

	default:
		return fmt.Errorf("process: unknown effect kind %q", effect.Kind)
	}

	if err := m.bus.Send(ctx, &eventsourcing.CommandEnvelope{
		Command:  cmd,
		Metadata: eventsourcing.CommandMetadata{CommandID: key},
	}); err != nil {
		m.ledger.Record(key, EffectFailed)
		return err
	}
	m.ledger.Record(key, EffectCompleted)
	return nil
}
