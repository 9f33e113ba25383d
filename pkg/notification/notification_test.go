package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
)

// memoryStore is a minimal in-memory eventsourcing.EventStore, mirroring
// pkg/labour's test double, for exercising the Notification aggregate
// without a database.
type memoryStore struct {
	mu      sync.Mutex
	events  map[string][]*eventsourcing.Event
	results map[string]*eventsourcing.CommandResult
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		events:  make(map[string][]*eventsourcing.Event),
		results: make(map[string]*eventsourcing.CommandResult),
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

func (s *memoryStore) CheckUniqueness(indexName, value string) (bool, string, error) { return true, "", nil }
func (s *memoryStore) GetConstraintOwner(indexName, value string) (string, error)     { return "", nil }
func (s *memoryStore) RebuildConstraints() error                                     { return nil }
func (s *memoryStore) Close() error                                                   { return nil }

func newTestHandlers() (*Handlers, eventsourcing.Repository[*Notification]) {
	store := newMemoryStore()
	repo := NewRepository(store)
	return NewHandlers(repo), repo
}

func TestNotification_FullLifecycle(t *testing.T) {
	h, repo := newTestHandlers()
	id := "notif-1"

	_, err := h.handleRequestNotification(context.Background(), &eventsourcing.CommandEnvelope{
		Command:  &RequestNotification{ID_: id, Recipient: "mum@example.com", Channel: ChannelEmail, Kind: KindLabourStarted},
		Metadata: eventsourcing.CommandMetadata{CommandID: "cmd-1"},
	})
	require.NoError(t, err)

	agg, err := repo.Load(id)
	require.NoError(t, err)
	assert.Equal(t, StateRequested, agg.State)

	_, err = h.handleStoreRenderedContent(context.Background(), &eventsourcing.CommandEnvelope{
		Command:  &StoreRenderedContent{ID_: id, ContentRef: "notifications/notif-1.body"},
		Metadata: eventsourcing.CommandMetadata{CommandID: "cmd-2"},
	})
	require.NoError(t, err)

	agg, err = repo.Load(id)
	require.NoError(t, err)
	assert.Equal(t, StateRendered, agg.State)

	_, err = h.handleDispatchNotification(context.Background(), &eventsourcing.CommandEnvelope{
		Command:  &DispatchNotification{ID_: id, TransportRef: "smtp-1"},
		Metadata: eventsourcing.CommandMetadata{CommandID: "cmd-3"},
	})
	require.NoError(t, err)

	_, err = h.handleMarkDelivered(context.Background(), &eventsourcing.CommandEnvelope{
		Command:  &MarkDelivered{ID_: id},
		Metadata: eventsourcing.CommandMetadata{CommandID: "cmd-4"},
	})
	require.NoError(t, err)

	agg, err = repo.Load(id)
	require.NoError(t, err)
	assert.Equal(t, StateDelivered, agg.State)
}

func TestNotification_DispatchBeforeRenderRejected(t *testing.T) {
	h, _ := newTestHandlers()
	id := "notif-2"

	_, err := h.handleRequestNotification(context.Background(), &eventsourcing.CommandEnvelope{
		Command:  &RequestNotification{ID_: id, Recipient: "mum@example.com", Channel: ChannelSMS, Kind: KindLabourCompleted},
		Metadata: eventsourcing.CommandMetadata{CommandID: "cmd-1"},
	})
	require.NoError(t, err)

	_, err = h.handleDispatchNotification(context.Background(), &eventsourcing.CommandEnvelope{
		Command:  &DispatchNotification{ID_: id},
		Metadata: eventsourcing.CommandMetadata{CommandID: "cmd-2"},
	})
	assert.Error(t, err)
}

func TestNotification_MarkFailedAfterDispatch(t *testing.T) {
	h, repo := newTestHandlers()
	id := "notif-3"

	_, err := h.handleRequestNotification(context.Background(), &eventsourcing.CommandEnvelope{
		Command:  &RequestNotification{ID_: id, Recipient: "mum@example.com", Channel: ChannelEmail, Kind: KindLabourInvite},
		Metadata: eventsourcing.CommandMetadata{CommandID: "cmd-1"},
	})
	require.NoError(t, err)
	_, err = h.handleStoreRenderedContent(context.Background(), &eventsourcing.CommandEnvelope{
		Command:  &StoreRenderedContent{ID_: id, ContentRef: "ref"},
		Metadata: eventsourcing.CommandMetadata{CommandID: "cmd-2"},
	})
	require.NoError(t, err)
	_, err = h.handleDispatchNotification(context.Background(), &eventsourcing.CommandEnvelope{
		Command:  &DispatchNotification{ID_: id},
		Metadata: eventsourcing.CommandMetadata{CommandID: "cmd-3"},
	})
	require.NoError(t, err)

	_, err = h.handleMarkFailed(context.Background(), &eventsourcing.CommandEnvelope{
		Command:  &MarkFailed{ID_: id, Reason: "smtp timeout", Attempt: 1, At: time.Now()},
		Metadata: eventsourcing.CommandMetadata{CommandID: "cmd-4"},
	})
	require.NoError(t, err)

	agg, err := repo.Load(id)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, agg.State)
	assert.Equal(t, 1, agg.Attempts)
}
