package readmodel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
	"github.com/kieran-gray/fern-labour-sub001/pkg/labour"
	"github.com/kieran-gray/fern-labour-sub001/pkg/store/sqlite"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	es, err := sqlite.NewEventStore(sqlite.WithMemoryDatabase(), sqlite.WithAutoMigrate())
	require.NoError(t, err)
	t.Cleanup(func() { es.Close() })
	return NewSQLiteStore(es.DB())
}

func TestSQLiteStore_ProjectsLabourLifecycle(t *testing.T) {
	now := time.Now().UTC()
	s := newTestSQLiteStore(t)

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

	updates, err := s.ListLabourUpdates("labour-1", 20, "")
	require.NoError(t, err)
	require.Len(t, updates.Items, 1)
	assert.Equal(t, "update-1", updates.Items[0].UpdateID)
	assert.False(t, updates.HasMore)

	subs, err := s.ListSubscriptions("labour-1", 20, "")
	require.NoError(t, err)
	require.Len(t, subs.Items, 1)
	assert.Equal(t, string(labour.StatusSubscribed), subs.Items[0].Status)
}

func TestSQLiteStore_ListLabourUpdates_Pagination(t *testing.T) {
	now := time.Now().UTC()
	s := newTestSQLiteStore(t)

	var events []*eventsourcing.Event
	events = append(events, event(t, "labour-2", labour.EventLabourPlanned, 0, now, labour.LabourPlanned{
		LabourID: "labour-2", MotherID: "mother-2", LabourName: "Baby B",
	}))
	for i := 0; i < 5; i++ {
		ts := now.Add(time.Duration(i+1) * time.Minute)
		events = append(events, event(t, "labour-2", labour.EventLabourUpdatePosted, int64(i+1), ts, labour.LabourUpdatePosted{
			UpdateID: "update-" + string(rune('a'+i)), Type: labour.UpdateTypeStatus, Message: "update", PostedAt: ts,
		}))
	}
	require.NoError(t, s.Project(events))

	seen := map[string]bool{}
	token := ""
	for i := 0; i < 3; i++ {
		page, err := s.ListLabourUpdates("labour-2", 2, token)
		require.NoError(t, err)
		for _, row := range page.Items {
			seen[row.UpdateID] = true
		}
		if !page.HasMore {
			break
		}
		token = page.NextCursor
	}
	assert.Len(t, seen, 5)
}

func TestSQLiteStore_Reset(t *testing.T) {
	now := time.Now().UTC()
	s := newTestSQLiteStore(t)

	require.NoError(t, s.Project([]*eventsourcing.Event{
		event(t, "labour-3", labour.EventLabourPlanned, 0, now, labour.LabourPlanned{
			LabourID: "labour-3", MotherID: "mother-3", LabourName: "Baby C",
		}),
	}))
	_, ok := s.GetLabourSummary("labour-3")
	require.True(t, ok)

	require.NoError(t, s.Reset())

	_, ok = s.GetLabourSummary("labour-3")
	assert.False(t, ok)
}
