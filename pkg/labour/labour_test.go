package labour

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
)

// memoryStore is a minimal in-memory eventsourcing.EventStore for
// exercising the Labour aggregate and its handlers without a database.
type memoryStore struct {
	mu         sync.Mutex
	events     map[string][]*eventsourcing.Event
	constraint map[string]string // indexName|value -> ownerID
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
	current := int64(len(s.events[aggregateID]))
	if current != expectedVersion {
		return eventsourcing.ErrConcurrencyConflict
	}
	for _, e := range events {
		for _, c := range e.UniqueConstraints {
			key := c.IndexName + "|" + c.Value
			switch c.Operation {
			case eventsourcing.ConstraintClaim:
				if owner, ok := s.constraint[key]; ok && owner != aggregateID {
					return eventsourcing.NewUniqueConstraintError(c.IndexName, c.Value, owner)
				}
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

func newTestHandlers() (*Handlers, eventsourcing.Repository[*Labour]) {
	store := newMemoryStore()
	repo := NewRepository(store)
	return NewHandlers(repo), repo
}

func TestPhase_NextOrdering(t *testing.T) {
	p, ok := PhasePlanned.next()
	require.True(t, ok)
	assert.Equal(t, PhaseEarly, p)

	_, ok = PhasePushing.next()
	assert.False(t, ok, "pushing has no next phase; completion is a distinct command")
}

func TestLabour_PlanBeginAdvance(t *testing.T) {
	h, repo := newTestHandlers()
	motherID := "mother-1"
	labourID := "labour-1"

	_, err := h.handlePlanLabour(context.Background(), &eventsourcing.CommandEnvelope{
		Command: &PlanLabour{ID_: labourID, MotherID: motherID, FirstLabour: true, DueDate: time.Now().Add(24 * time.Hour)},
		Metadata: eventsourcing.CommandMetadata{CommandID: "cmd-1", PrincipalID: motherID},
	})
	require.NoError(t, err)

	agg, err := repo.Load(labourID)
	require.NoError(t, err)
	assert.Equal(t, PhasePlanned, agg.Phase)
	assert.Equal(t, motherID, agg.MotherID())

	_, err = h.handleBeginLabour(context.Background(), &eventsourcing.CommandEnvelope{
		Command:  &BeginLabour{ID_: labourID},
		Metadata: eventsourcing.CommandMetadata{CommandID: "cmd-2", PrincipalID: motherID},
	})
	require.NoError(t, err)

	agg, err = repo.Load(labourID)
	require.NoError(t, err)
	assert.Equal(t, PhaseEarly, agg.Phase)
	require.NotNil(t, agg.BegunAt)

	_, err = h.handleAdvanceLabourPhase(context.Background(), &eventsourcing.CommandEnvelope{
		Command:  &AdvanceLabourPhase{ID_: labourID},
		Metadata: eventsourcing.CommandMetadata{CommandID: "cmd-3", PrincipalID: motherID},
	})
	require.NoError(t, err)

	agg, err = repo.Load(labourID)
	require.NoError(t, err)
	assert.Equal(t, PhaseActive, agg.Phase)
}

func TestLabour_BeginLabour_EmitsBegunThenPhaseChanged(t *testing.T) {
	store := newMemoryStore()
	repo := NewRepository(store)
	h := NewHandlers(repo)
	motherID := "mother-1"
	labourID := "labour-1"

	_, err := h.handlePlanLabour(context.Background(), &eventsourcing.CommandEnvelope{
		Command:  &PlanLabour{ID_: labourID, MotherID: motherID, FirstLabour: true, DueDate: time.Now().Add(24 * time.Hour)},
		Metadata: eventsourcing.CommandMetadata{CommandID: "cmd-1", PrincipalID: motherID},
	})
	require.NoError(t, err)

	_, err = h.handleBeginLabour(context.Background(), &eventsourcing.CommandEnvelope{
		Command:  &BeginLabour{ID_: labourID},
		Metadata: eventsourcing.CommandMetadata{CommandID: "cmd-2", PrincipalID: motherID},
	})
	require.NoError(t, err)

	events, err := store.LoadEvents(labourID, 1)
	require.NoError(t, err)
	require.Len(t, events, 2, "BeginLabour must emit LabourBegun then LabourPhaseChanged(EARLY), per spec.md §8 Scenario 1")
	assert.Equal(t, EventLabourBegun, events[0].EventType)
	assert.Equal(t, EventLabourPhaseChanged, events[1].EventType)

	var phaseChanged LabourPhaseChanged
	require.NoError(t, json.Unmarshal(events[1].Data, &phaseChanged))
	assert.Equal(t, PhasePlanned.String(), phaseChanged.FromTag)
	assert.Equal(t, PhaseEarly.String(), phaseChanged.ToTag)

	agg, err := repo.Load(labourID)
	require.NoError(t, err)
	assert.Equal(t, PhaseEarly, agg.Phase)
}

func TestLabour_BeginLabour_RejectsNonMother(t *testing.T) {
	h, _ := newTestHandlers()
	labourID := "labour-2"

	_, err := h.handlePlanLabour(context.Background(), &eventsourcing.CommandEnvelope{
		Command:  &PlanLabour{ID_: labourID, MotherID: "mother-2", DueDate: time.Now().Add(24 * time.Hour)},
		Metadata: eventsourcing.CommandMetadata{CommandID: "cmd-1", PrincipalID: "mother-2"},
	})
	require.NoError(t, err)

	_, err = h.handleBeginLabour(context.Background(), &eventsourcing.CommandEnvelope{
		Command:  &BeginLabour{ID_: labourID},
		Metadata: eventsourcing.CommandMetadata{CommandID: "cmd-2", PrincipalID: "stranger"},
	})
	require.Error(t, err)
}

func TestLabour_RequestAccessThenApprove(t *testing.T) {
	h, repo := newTestHandlers()
	motherID := "mother-3"
	labourID := "labour-3"
	subscriberID := "subscriber-1"

	_, err := h.handlePlanLabour(context.Background(), &eventsourcing.CommandEnvelope{
		Command:  &PlanLabour{ID_: labourID, MotherID: motherID, DueDate: time.Now().Add(24 * time.Hour)},
		Metadata: eventsourcing.CommandMetadata{CommandID: "cmd-1", PrincipalID: motherID},
	})
	require.NoError(t, err)

	events, err := h.handleRequestAccess(context.Background(), &eventsourcing.CommandEnvelope{
		Command:  &RequestAccess{ID_: labourID, SubscriberID: subscriberID, Role: RoleFriend},
		Metadata: eventsourcing.CommandMetadata{CommandID: "cmd-2", PrincipalID: subscriberID},
	})
	require.NoError(t, err)
	require.Len(t, events, 1)

	agg, err := repo.Load(labourID)
	require.NoError(t, err)
	require.Len(t, agg.SubscriptionsByID, 1)
	subscriptionID := agg.SubscriptionsByID[0].ID
	assert.Equal(t, StatusRequested, agg.SubscriptionsByID[0].Status)

	_, err = h.handleApproveSubscriber(context.Background(), &eventsourcing.CommandEnvelope{
		Command:  &ApproveSubscriber{ID_: labourID, SubscriptionID: subscriptionID},
		Metadata: eventsourcing.CommandMetadata{CommandID: "cmd-3", PrincipalID: motherID},
	})
	require.NoError(t, err)

	agg, err = repo.Load(labourID)
	require.NoError(t, err)
	assert.Equal(t, StatusSubscribed, agg.SubscriptionsByID[0].Status)
}

func TestLabour_DeleteReleasesMotherConstraint(t *testing.T) {
	h, _ := newTestHandlers()
	motherID := "mother-4"
	labourID := "labour-4"

	_, err := h.handlePlanLabour(context.Background(), &eventsourcing.CommandEnvelope{
		Command:  &PlanLabour{ID_: labourID, MotherID: motherID, DueDate: time.Now().Add(24 * time.Hour)},
		Metadata: eventsourcing.CommandMetadata{CommandID: "cmd-1", PrincipalID: motherID},
	})
	require.NoError(t, err)

	_, err = h.handleDeleteLabour(context.Background(), &eventsourcing.CommandEnvelope{
		Command:  &DeleteLabour{ID_: labourID},
		Metadata: eventsourcing.CommandMetadata{CommandID: "cmd-2", PrincipalID: motherID},
	})
	require.NoError(t, err)

	// Mother can now plan a new labour under a new ID, which claims the same
	// per-mother constraint key, proving DeleteLabour released the claim.
	_, err = h.handlePlanLabour(context.Background(), &eventsourcing.CommandEnvelope{
		Command:  &PlanLabour{ID_: "labour-4b", MotherID: motherID, DueDate: time.Now().Add(24 * time.Hour)},
		Metadata: eventsourcing.CommandMetadata{CommandID: "cmd-3", PrincipalID: motherID},
	})
	assert.NoError(t, err)
}
