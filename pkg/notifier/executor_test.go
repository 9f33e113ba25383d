package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
	"github.com/kieran-gray/fern-labour-sub001/pkg/notification"
	"github.com/kieran-gray/fern-labour-sub001/pkg/process"
	"github.com/kieran-gray/fern-labour-sub001/pkg/store/sqlite"
)

var fastBackoff = process.BackoffConfig{Base: time.Millisecond, Cap: time.Millisecond, MaxRetries: 3}

func newTestBus(t *testing.T) (eventsourcing.CommandBus, eventsourcing.Repository[*notification.Notification]) {
	t.Helper()
	es, err := sqlite.NewEventStore(sqlite.WithMemoryDatabase(), sqlite.WithAutoMigrate())
	require.NoError(t, err)
	t.Cleanup(func() { es.Close() })

	repo := notification.NewRepository(es)
	bus := eventsourcing.NewCommandBus()
	notification.NewHandlers(repo).Register(bus)
	return bus, repo
}

type stubRenderer struct{ err error }

func (r stubRenderer) Render(ctx context.Context, kind notification.Kind, payload map[string]string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "content-ref", nil
}

type stubSender struct {
	failUntil int
	calls     int
}

func (s *stubSender) Send(ctx context.Context, channel notification.Channel, recipient, contentRef string) (string, error) {
	s.calls++
	if s.calls <= s.failUntil {
		return "", errors.New("transport unavailable")
	}
	return "transport-ref", nil
}

func requestNotification(t *testing.T, bus eventsourcing.CommandBus, id string) *notification.NotificationRequested {
	t.Helper()
	req := &notification.NotificationRequested{
		NotificationID: id, Recipient: "mother@example.com",
		Channel: notification.ChannelEmail, Kind: notification.KindLabourStarted,
		Payload: map[string]string{"labour_id": "labour-1"},
	}
	require.NoError(t, bus.Send(context.Background(), &eventsourcing.CommandEnvelope{
		Command:  &notification.RequestNotification{ID_: id, Recipient: req.Recipient, Channel: req.Channel, Kind: req.Kind, Payload: req.Payload},
		Metadata: eventsourcing.CommandMetadata{CommandID: id + ":request"},
	}))
	return req
}

func TestExecutor_Run_DeliversOnFirstAttempt(t *testing.T) {
	bus, repo := newTestBus(t)
	req := requestNotification(t, bus, "notif-1")

	exec := NewExecutor(bus, stubRenderer{}, &stubSender{})
	require.NoError(t, exec.Run(context.Background(), "notif-1", req))

	agg, err := repo.Load("notif-1")
	require.NoError(t, err)
	assert.Equal(t, notification.StateDelivered, agg.State)
	assert.Equal(t, "content-ref", agg.ContentRef)
}

func TestExecutor_Run_RetriesThenDelivers(t *testing.T) {
	bus, repo := newTestBus(t)
	req := requestNotification(t, bus, "notif-2")

	exec := NewExecutor(bus, stubRenderer{}, &stubSender{failUntil: 1}, WithMaxRetries(3), WithBackoff(fastBackoff))
	require.NoError(t, exec.Run(context.Background(), "notif-2", req))

	agg, err := repo.Load("notif-2")
	require.NoError(t, err)
	assert.Equal(t, notification.StateDelivered, agg.State)
}

func TestExecutor_Run_MarksFailedAfterExhaustingRetries(t *testing.T) {
	bus, repo := newTestBus(t)
	req := requestNotification(t, bus, "notif-3")

	exec := NewExecutor(bus, stubRenderer{}, &stubSender{failUntil: 99}, WithMaxRetries(2), WithBackoff(fastBackoff))
	err := exec.Run(context.Background(), "notif-3", req)
	require.NoError(t, err)

	agg, loadErr := repo.Load("notif-3")
	require.NoError(t, loadErr)
	assert.Equal(t, notification.StateFailed, agg.State)
}

func TestExecutor_HandleEvent_IgnoresOtherEventTypes(t *testing.T) {
	bus, _ := newTestBus(t)
	exec := NewExecutor(bus, stubRenderer{}, &stubSender{})
	err := exec.HandleEvent(&eventsourcing.EventEnvelope{
		Event: eventsourcing.Event{EventType: notification.EventNotificationDelivered},
	})
	assert.NoError(t, err)
}
