package sqlite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
	"github.com/kieran-gray/fern-labour-sub001/pkg/store"
)

func newTestStore(t *testing.T) *EventStore {
	t.Helper()
	s, err := NewEventStore(WithMemoryDatabase(), WithAutoMigrate())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testEvent(aggregateID, eventType string, version int64) *eventsourcing.Event {
	return &eventsourcing.Event{
		ID: aggregateID + "-" + eventType, AggregateID: aggregateID, AggregateType: "Labour",
		EventType: eventType, Version: version, Timestamp: eventsourcing.Now(),
		Data: []byte(`{"ok":true}`),
	}
}

func TestEventStore_AppendAndLoadEvents(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AppendEvents("labour-1", 0, []*eventsourcing.Event{testEvent("labour-1", "LabourPlanned", 1)}))
	require.NoError(t, s.AppendEvents("labour-1", 1, []*eventsourcing.Event{testEvent("labour-1", "LabourBegun", 2)}))

	events, err := s.LoadEvents("labour-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "LabourPlanned", events[0].EventType)
	assert.Equal(t, "LabourBegun", events[1].EventType)

	version, err := s.GetAggregateVersion("labour-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
}

func TestEventStore_AppendEvents_ConcurrencyConflict(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AppendEvents("labour-1", 0, []*eventsourcing.Event{testEvent("labour-1", "LabourPlanned", 1)}))

	err := s.AppendEvents("labour-1", 0, []*eventsourcing.Event{testEvent("labour-1", "LabourBegun", 2)})
	assert.ErrorIs(t, err, eventsourcing.ErrConcurrencyConflict)
}

func TestEventStore_UniqueConstraints(t *testing.T) {
	s := newTestStore(t)

	claim := testEvent("labour-1", "LabourPlanned", 1)
	claim.UniqueConstraints = []eventsourcing.UniqueConstraint{
		{IndexName: "subscription_token", Value: "tok-1", Operation: eventsourcing.ConstraintClaim},
	}
	require.NoError(t, s.AppendEvents("labour-1", 0, []*eventsourcing.Event{claim}))

	available, owner, err := s.CheckUniqueness("subscription_token", "tok-1")
	require.NoError(t, err)
	assert.False(t, available)
	assert.Equal(t, "labour-1", owner)

	conflict := testEvent("labour-2", "LabourPlanned", 1)
	conflict.UniqueConstraints = []eventsourcing.UniqueConstraint{
		{IndexName: "subscription_token", Value: "tok-1", Operation: eventsourcing.ConstraintClaim},
	}
	err = s.AppendEvents("labour-2", 0, []*eventsourcing.Event{conflict})
	assert.Error(t, err)

	release := testEvent("labour-1", "SubscriptionTokenReleased", 2)
	release.UniqueConstraints = []eventsourcing.UniqueConstraint{
		{IndexName: "subscription_token", Value: "tok-1", Operation: eventsourcing.ConstraintRelease},
	}
	require.NoError(t, s.AppendEvents("labour-1", 1, []*eventsourcing.Event{release}))

	available, _, err = s.CheckUniqueness("subscription_token", "tok-1")
	require.NoError(t, err)
	assert.True(t, available)
}

func TestEventStore_AppendEventsIdempotent(t *testing.T) {
	s := newTestStore(t)

	result1, err := s.AppendEventsIdempotent("labour-1", 0, []*eventsourcing.Event{testEvent("labour-1", "LabourPlanned", 1)}, "cmd-1", time.Hour)
	require.NoError(t, err)
	assert.False(t, result1.AlreadyProcessed)

	result2, err := s.AppendEventsIdempotent("labour-1", 0, []*eventsourcing.Event{testEvent("labour-1", "LabourPlanned", 1)}, "cmd-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, result2.AlreadyProcessed)
	require.Len(t, result2.Events, 1)

	version, err := s.GetAggregateVersion("labour-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), version, "replayed command must not append twice")
}

func TestEventStore_LoadAllEvents_GlobalOrder(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AppendEvents("labour-1", 0, []*eventsourcing.Event{testEvent("labour-1", "LabourPlanned", 1)}))
	require.NoError(t, s.AppendEvents("labour-2", 0, []*eventsourcing.Event{testEvent("labour-2", "LabourPlanned", 1)}))

	events, err := s.LoadAllEvents(0, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[0].GlobalPosition < events[1].GlobalPosition)

	more, err := s.LoadAllEvents(events[0].GlobalPosition, 10)
	require.NoError(t, err)
	require.Len(t, more, 1)
	assert.Equal(t, "labour-2", more[0].AggregateID)
}

func TestEventStore_RebuildConstraints(t *testing.T) {
	s := newTestStore(t)
	claim := testEvent("labour-1", "LabourPlanned", 1)
	claim.UniqueConstraints = []eventsourcing.UniqueConstraint{
		{IndexName: "subscription_token", Value: "tok-1", Operation: eventsourcing.ConstraintClaim},
	}
	require.NoError(t, s.AppendEvents("labour-1", 0, []*eventsourcing.Event{claim}))

	_, err := s.db.Exec(`DELETE FROM unique_constraints`)
	require.NoError(t, err)

	require.NoError(t, s.RebuildConstraints())

	available, owner, err := s.CheckUniqueness("subscription_token", "tok-1")
	require.NoError(t, err)
	assert.False(t, available)
	assert.Equal(t, "labour-1", owner)
}

func TestCheckpointStore_SaveAndLoad(t *testing.T) {
	s := newTestStore(t)
	cs := NewCheckpointStore(s.DB())

	cp, err := cs.Load("labour_read_model")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cp.GlobalPosition)

	require.NoError(t, cs.Save(&store.ProjectionCheckpoint{
		ProjectionName: "labour_read_model", GlobalPosition: 42, Status: store.ProjectionStatusReady,
	}))

	cp, err = cs.Load("labour_read_model")
	require.NoError(t, err)
	assert.Equal(t, int64(42), cp.GlobalPosition)
	assert.Equal(t, store.ProjectionStatusReady, cp.Status)

	require.NoError(t, cs.Delete("labour_read_model"))
	cp, err = cs.Load("labour_read_model")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cp.GlobalPosition)
}

func TestEffectLedgerStore_ReserveIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ls := NewEffectLedgerStore(s.DB())

	created, err := ls.Reserve("key-1")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = ls.Reserve("key-1")
	require.NoError(t, err)
	assert.False(t, created, "second reservation of the same key must not recreate it")

	require.NoError(t, ls.MarkDispatched("key-1"))
	entry, err := ls.Get("key-1")
	require.NoError(t, err)
	assert.Equal(t, store.EffectStatusDispatched, entry.Status)

	require.NoError(t, ls.MarkFailed("key-1", "boom"))
	entry, err = ls.Get("key-1")
	require.NoError(t, err)
	assert.Equal(t, store.EffectStatusFailed, entry.Status)
	assert.Equal(t, 1, entry.Attempts)
}

func TestSnapshotStore_SaveAndRetrieve(t *testing.T) {
	s := newTestStore(t)
	ss := NewSnapshotStore(s.DB())

	require.NoError(t, ss.SaveSnapshot(&store.Snapshot{
		AggregateID: "labour-1", AggregateType: "Labour", Version: 5,
		Data: []byte(`{"phase":"EARLY"}`), CreatedAt: eventsourcing.Now(),
	}))
	require.NoError(t, ss.SaveSnapshot(&store.Snapshot{
		AggregateID: "labour-1", AggregateType: "Labour", Version: 10,
		Data: []byte(`{"phase":"COMPLETE"}`), CreatedAt: eventsourcing.Now(),
	}))

	latest, err := ss.GetLatestSnapshot("labour-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), latest.Version)

	before, err := ss.GetSnapshotBeforeVersion("labour-1", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(5), before.Version)

	_, err = ss.GetLatestSnapshot("no-such-aggregate")
	assert.ErrorIs(t, err, eventsourcing.ErrSnapshotNotFound)
}
