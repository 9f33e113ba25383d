package readmodel

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
	"github.com/kieran-gray/fern-labour-sub001/pkg/labour"
)

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func event(t *testing.T, aggregateID, eventType string, version int64, ts time.Time, payload interface{}) *eventsourcing.Event {
	t.Helper()
	return &eventsourcing.Event{
		ID:            aggregateID + "-" + eventType,
		AggregateID:   aggregateID,
		AggregateType: labour.AggregateType,
		EventType:     eventType,
		Version:       version,
		Timestamp:     ts,
		Data:          mustJSON(t, payload),
	}
}

func TestStore_ProjectsLabourLifecycle(t *testing.T) {
	now := time.Now().UTC()
	s := NewStore()

	events := []*eventsourcing.Event{
		event(t, "labour-1", labour.EventLabourPlanned, 0, now, labour.LabourPlanned{
			LabourID: "labour-1", MotherID: "mother-1", LabourName: "Baby A",
		}),
		event(t, "labour-1", labour.EventLabourBegun, 1, now.Add(time.Minute), labour.LabourBegun{
			BegunAt: now.Add(time.Minute),
		}),
		event(t, "labour-1", labour.EventSubscriberRequested, 2, now.Add(2*time.Minute), labour.SubscriberRequested{
			SubscriptionID: "sub-1", SubscriberID: "friend-1", Role: labour.RoleFriend,
		}),
		event(t, "labour-1", labour.EventSubscriberApproved, 3, now.Add(3*time.Minute), labour.SubscriberApproved{
			SubscriptionID: "sub-1",
		}),
		event(t, "labour-1", labour.EventLabourUpdatePosted, 4, now.Add(4*time.Minute), labour.LabourUpdatePosted{
			UpdateID: "update-1", Type: labour.UpdateTypeStatus, Message: "doing great", PostedAt: now.Add(4 * time.Minute),
		}),
		event(t, "labour-1", labour.EventLabourCompleted, 5, now.Add(5*time.Minute), labour.LabourCompleted{
			CompletedAt: now.Add(5 * time.Minute),
		}),
	}

	require.NoError(t, s.Project(events))

	sum, ok := s.GetLabourSummary("labour-1")
	require.True(t, ok)
	assert.Equal(t, "mother-1", sum.MotherID)
	assert.Equal(t, "Baby A", sum.LabourName)
	assert.Equal(t, labour.PhaseComplete.String(), sum.Phase)
	assert.Equal(t, 1, sum.SubscriberCount)
	require.NotNil(t, sum.CompletedAt)

	updatesPage, err := s.ListLabourUpdates("labour-1", 10, "")
	require.NoError(t, err)
	require.Len(t, updatesPage.Items, 1)
	assert.Equal(t, "doing great", updatesPage.Items[0].Message)
	assert.False(t, updatesPage.HasMore)

	subsPage, err := s.ListSubscriptions("labour-1", 10, "")
	require.NoError(t, err)
	require.Len(t, subsPage.Items, 1)
	assert.Equal(t, string(labour.StatusSubscribed), subsPage.Items[0].Status)
}

func TestStore_ListLabourUpdates_Pagination(t *testing.T) {
	now := time.Now().UTC()
	s := NewStore()

	base := []*eventsourcing.Event{
		event(t, "labour-2", labour.EventLabourPlanned, 0, now, labour.LabourPlanned{LabourID: "labour-2", MotherID: "mother-2"}),
	}
	for i := 0; i < 5; i++ {
		base = append(base, event(t, "labour-2", labour.EventLabourUpdatePosted, int64(i+1), now.Add(time.Duration(i+1)*time.Minute), labour.LabourUpdatePosted{
			UpdateID: "update-" + string(rune('a'+i)), Type: labour.UpdateTypeStatus, Message: "msg", PostedAt: now.Add(time.Duration(i+1) * time.Minute),
		}))
	}
	require.NoError(t, s.Project(base))

	first, err := s.ListLabourUpdates("labour-2", 2, "")
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.True(t, first.HasMore)
	assert.NotEmpty(t, first.NextCursor)

	second, err := s.ListLabourUpdates("labour-2", 2, first.NextCursor)
	require.NoError(t, err)
	require.Len(t, second.Items, 2)
	assert.True(t, second.HasMore)

	third, err := s.ListLabourUpdates("labour-2", 2, second.NextCursor)
	require.NoError(t, err)
	require.Len(t, third.Items, 1)
	assert.False(t, third.HasMore)

	seen := map[string]bool{}
	for _, r := range append(append(first.Items, second.Items...), third.Items...) {
		seen[r.UpdateID] = true
	}
	assert.Len(t, seen, 5)
}

func TestStore_Reset(t *testing.T) {
	now := time.Now().UTC()
	s := NewStore()
	require.NoError(t, s.Project([]*eventsourcing.Event{
		event(t, "labour-3", labour.EventLabourPlanned, 0, now, labour.LabourPlanned{LabourID: "labour-3", MotherID: "mother-3"}),
	}))
	_, ok := s.GetLabourSummary("labour-3")
	require.True(t, ok)

	require.NoError(t, s.Reset())
	_, ok = s.GetLabourSummary("labour-3")
	assert.False(t, ok)
}

func TestStore_IgnoresNonLabourEvents(t *testing.T) {
	s := NewStore()
	evt := &eventsourcing.Event{
		ID: "notif-1", AggregateID: "notif-1", AggregateType: "Notification",
		EventType: "NotificationRequested", Timestamp: time.Now().UTC(), Data: []byte("{}"),
	}
	require.NoError(t, s.Project([]*eventsourcing.Event{evt}))
	_, ok := s.GetLabourSummary("notif-1")
	assert.False(t, ok)
}
