package process

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
	"github.com/kieran-gray/fern-labour-sub001/pkg/labour"
)

// memoryStore mirrors pkg/labour's in-memory test double.
type memoryStore struct {
	mu         sync.Mutex
	events     map[string][]*eventsourcing.Event
	constraint map[string]string
	results    map[string]*eventsourcing.CommandResult
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		events:     make(map[string][]*eventsourcing.Event),
		constraint: make(map[string]string),
		results:    make(map[string]*eventsourcing.CommandResult),
	}
}

func (s *memoryStore) AppendEvents(aggregateID string, expectedVersion int64, events []*eventsourcing.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(aggregateID, expectedVersion, events)
}

func (s *memoryStore) appendLocked(aggregateID string, expectedVersion int64, events []*eventsourcing.Event) error {
	if int64(len(s.events[aggregateID])) != expectedVersion {
		return eventsourcing.ErrConcurrencyConflict
	}
	for _, e := range events {
		for _, c := range e.UniqueConstraints {
			key := c.IndexName + "|" + c.Value
			switch c.Operation {
			case eventsourcing.ConstraintClaim:
				s.constraint[key] = aggregateID
			case eventsourcing.ConstraintRelease:
				delete(s.constraint, key)
			}
		}
	}
	s.events[aggregateID] = append(s.events[aggregateID], events...)
	return nil
}

func (s *memoryStore) AppendEventsIdempotent(aggregateID string, expectedVersion int64, events []*eventsourcing.Event, commandID string, ttl time.Duration) (*eventsourcing.CommandResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.results[commandID]; ok {
		cached := *r
		cached.AlreadyProcessed = true
		return &cached, nil
	}
	if err := s.appendLocked(aggregateID, expectedVersion, events); err != nil {
		return nil, err
	}
	result := &eventsourcing.CommandResult{CommandID: commandID, Events: events}
	s.results[commandID] = result
	return result, nil
}

func (s *memoryStore) GetCommandResult(commandID string) (*eventsourcing.CommandResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results[commandID], nil
}

func (s *memoryStore) LoadEvents(aggregateID string, afterVersion int64) ([]*eventsourcing.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*eventsourcing.Event
	for _, e := range s.events[aggregateID] {
		if e.Version > afterVersion {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memoryStore) LoadAllEvents(fromPosition int64, limit int) ([]*eventsourcing.Event, error) {
	return nil, nil
}

func (s *memoryStore) GetAggregateVersion(aggregateID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.events[aggregateID])), nil
}

func (s *memoryStore) CheckUniqueness(indexName, value string) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.constraint[indexName+"|"+value]
	return !ok, owner, nil
}

func (s *memoryStore) GetConstraintOwner(indexName, value string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.constraint[indexName+"|"+value], nil
}

func (s *memoryStore) RebuildConstraints() error { return nil }
func (s *memoryStore) Close() error              { return nil }

// fakeQueue records enqueued effects instead of talking to NATS.
type fakeQueue struct {
	mu      sync.Mutex
	effects []Effect
}

func (q *fakeQueue) Enqueue(effect Effect) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.effects = append(q.effects, effect)
	return nil
}

func TestIdempotencyKey_Shape(t *testing.T) {
	notifKey := IdempotencyKey(Effect{AggregateID: "L1", Sequence: 3, Kind: EffectSendNotification, Discriminator: "S:announcement"})
	assert.Equal(t, "L1:3:notif:S:announcement", notifKey, "spec.md §8 Scenario 3")

	tokenKey := IdempotencyKey(Effect{AggregateID: "labour-1", Sequence: 0, Kind: EffectGenerateSubscriptionToken, Discriminator: "generate_subscription_token"})
	assert.Equal(t, "labour-1:0:cmd:generate_subscription_token", tokenKey, "spec.md §4.5")

	serviceKey := IdempotencyKey(Effect{AggregateID: "labour-1", Sequence: 1, Kind: EffectServiceCommand, Discriminator: "x"})
	assert.Equal(t, "labour-1:1:cmd:x", serviceKey)
}

func TestBackoff_DoublesAndCaps(t *testing.T) {
	b := DefaultBackoff()
	assert.Equal(t, time.Second, b.Delay(1))
	assert.Equal(t, 2*time.Second, b.Delay(2))
	assert.Equal(t, 4*time.Second, b.Delay(3))
	assert.Equal(t, 30*time.Second, b.Delay(10))
}

func TestManager_LabourPlanned_GeneratesTokenSynchronously(t *testing.T) {
	store := newMemoryStore()
	labourRepo := labour.NewRepository(store)
	labourHandlers := labour.NewHandlers(labourRepo)
	bus := eventsourcing.NewCommandBus()
	labourHandlers.Register(bus)

	queue := &fakeQueue{}
	ledger := NewMemoryLedger()
	mgr := NewManager(bus, labourRepo, ledger, queue, func(motherID, labourID string) string { return "12345" })

	ctx := context.Background()
	require.NoError(t, bus.Send(ctx, &eventsourcing.CommandEnvelope{
		Command:  &labour.PlanLabour{ID_: "labour-1", MotherID: "mother-1", DueDate: time.Now().Add(24 * time.Hour)},
		Metadata: eventsourcing.CommandMetadata{CommandID: "cmd-1", PrincipalID: "mother-1"},
	}))

	events, err := store.LoadEvents("labour-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)

	require.NoError(t, mgr.Handle(ctx, events[0]))

	agg, err := labourRepo.Load("labour-1")
	require.NoError(t, err)
	assert.Equal(t, "12345", agg.Token)
	assert.Empty(t, queue.effects, "GenerateSubscriptionToken is a priority effect; it must not be queued")
}

func TestManager_UnknownEventType_IsNoOp(t *testing.T) {
	store := newMemoryStore()
	labourRepo := labour.NewRepository(store)
	bus := eventsourcing.NewCommandBus()
	mgr := NewManager(bus, labourRepo, NewMemoryLedger(), &fakeQueue{}, func(string, string) string { return "" })

	err := mgr.Handle(context.Background(), &eventsourcing.Event{
		AggregateID: "labour-1", AggregateType: labour.AggregateType, EventType: "labour.unknown", Version: 1,
	})
	assert.NoError(t, err)
}
