package nats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
)

func newTestBus(t *testing.T) (*EventBus, *EmbeddedServer) {
	t.Helper()
	srv, err := StartEmbeddedServer()
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)

	bus, err := NewEventBus(TestConfig(srv.URL()))
	require.NoError(t, err)
	t.Cleanup(func() { bus.Close() })

	return bus, srv
}

func TestEventBus_PublishAndSubscribe(t *testing.T) {
	bus, _ := newTestBus(t)

	received := make(chan *eventsourcing.Event, 1)
	sub, err := bus.Subscribe(eventsourcing.EventFilter{}, func(envelope *eventsourcing.EventEnvelope) error {
		received <- &envelope.Event
		return nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { sub.Unsubscribe() })

	event := &eventsourcing.Event{
		ID: "evt-1", AggregateID: "labour-1", AggregateType: "Labour",
		EventType: "LabourPlanned", Version: 1, Timestamp: eventsourcing.Now(),
		Data: []byte(`{"labour_id":"labour-1"}`),
	}
	require.NoError(t, bus.Publish([]*eventsourcing.Event{event}))

	select {
	case got := <-received:
		assert.Equal(t, event.ID, got.ID)
		assert.Equal(t, event.AggregateID, got.AggregateID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestEventBus_SubscribeFiltersByAggregateType(t *testing.T) {
	bus, _ := newTestBus(t)

	received := make(chan *eventsourcing.Event, 1)
	sub, err := bus.Subscribe(eventsourcing.EventFilter{AggregateTypes: []string{"Notification"}}, func(envelope *eventsourcing.EventEnvelope) error {
		received <- &envelope.Event
		return nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { sub.Unsubscribe() })

	require.NoError(t, bus.Publish([]*eventsourcing.Event{{
		ID: "evt-2", AggregateID: "notif-1", AggregateType: "Notification",
		EventType: "NotificationSent", Version: 1, Timestamp: eventsourcing.Now(),
		Data: []byte(`{}`),
	}}))

	select {
	case got := <-received:
		assert.Equal(t, "notif-1", got.AggregateID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestEventBus_PublishEmptyIsNoop(t *testing.T) {
	bus, _ := newTestBus(t)
	assert.NoError(t, bus.Publish(nil))
}
