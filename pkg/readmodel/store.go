package readmodel

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
	"github.com/kieran-gray/fern-labour-sub001/pkg/labour"
)

// Store is an in-process read model: a projection.Projector (and
// projection.Resettable) that folds Labour events into query-ready tables.
// SQLiteStore in this package is the sqlite-backed equivalent; this in-memory
// form is what the process keeps hot for serving queries and is what the
// test suite exercises directly.
type Store struct {
	mu            sync.RWMutex
	summaries     map[string]*LabourSummary
	updates       map[string][]LabourUpdateRow
	subscriptions map[string][]SubscriptionRow
}

func NewStore() *Store {
	return &Store{
		summaries:     make(map[string]*LabourSummary),
		updates:       make(map[string][]LabourUpdateRow),
		subscriptions: make(map[string][]SubscriptionRow),
	}
}

func (s *Store) Name() string { return "labour_read_model" }

func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = make(map[string]*LabourSummary)
	s.updates = make(map[string][]LabourUpdateRow)
	s.subscriptions = make(map[string][]SubscriptionRow)
	return nil
}

// Project folds a batch of events into the read model. Unknown event types
// (e.g. notification events, should this store ever be asked to project a
// mixed stream) are ignored rather than rejected.
func (s *Store) Project(events []*eventsourcing.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range events {
		if evt.AggregateType != labour.AggregateType {
			continue
		}
		if err := s.applyOne(evt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) summary(labourID string) *LabourSummary {
	sum, ok := s.summaries[labourID]
	if !ok {
		sum = &LabourSummary{LabourID: labourID}
		s.summaries[labourID] = sum
	}
	return sum
}

func (s *Store) applyOne(evt *eventsourcing.Event) error {
	sum := s.summary(evt.AggregateID)
	sum.UpdatedAt = evt.Timestamp

	switch evt.EventType {
	case labour.EventLabourPlanned:
		var e labour.LabourPlanned
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return err
		}
		sum.MotherID = e.MotherID
		sum.LabourName = e.LabourName
		sum.Phase = labour.PhasePlanned.String()

	case labour.EventLabourPlanUpdated:
		var e labour.LabourPlanUpdated
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return err
		}
		if e.LabourName != nil {
			sum.LabourName = *e.LabourName
		}

	case labour.EventLabourBegun:
		var e labour.LabourBegun
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return err
		}
		sum.BegunAt = &e.BegunAt
		sum.Phase = labour.PhaseEarly.String()

	case labour.EventLabourPhaseChanged:
		var e labour.LabourPhaseChanged
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return err
		}
		sum.Phase = e.ToTag

	case labour.EventLabourCompleted:
		var e labour.LabourCompleted
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return err
		}
		sum.CompletedAt = &e.CompletedAt
		sum.Phase = labour.PhaseComplete.String()

	case labour.EventLabourDeleted:
		sum.Deleted = true

	case labour.EventLabourUpdatePosted:
		var e labour.LabourUpdatePosted
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return err
		}
		s.updates[evt.AggregateID] = append(s.updates[evt.AggregateID], LabourUpdateRow{
			UpdateID: e.UpdateID, LabourID: evt.AggregateID, Type: string(e.Type),
			Message: e.Message, PostedAt: e.PostedAt, UpdatedAt: evt.Timestamp,
		})

	case labour.EventLabourUpdateMessageUpdated:
		var e labour.LabourUpdateMessageUpdated
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return err
		}
		s.mutateUpdate(evt.AggregateID, e.UpdateID, evt.Timestamp, func(r *LabourUpdateRow) { r.Message = e.Message })

	case labour.EventLabourUpdateDeleted:
		var e labour.LabourUpdateDeleted
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return err
		}
		s.mutateUpdate(evt.AggregateID, e.UpdateID, evt.Timestamp, func(r *LabourUpdateRow) { r.Deleted = true })

	case labour.EventSubscriberRequested:
		var e labour.SubscriberRequested
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return err
		}
		s.subscriptions[evt.AggregateID] = append(s.subscriptions[evt.AggregateID], SubscriptionRow{
			SubscriptionID: e.SubscriptionID, LabourID: evt.AggregateID, SubscriberID: e.SubscriberID,
			Role: string(e.Role), Status: string(labour.StatusRequested), UpdatedAt: evt.Timestamp,
		})

	case labour.EventSubscriberApproved:
		var e labour.SubscriberApproved
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return err
		}
		s.mutateSubscription(evt.AggregateID, e.SubscriptionID, evt.Timestamp, func(r *SubscriptionRow) {
			r.Status = string(labour.StatusSubscribed)
		})
		sum.SubscriberCount++

	case labour.EventSubscriberUnsubscribed:
		var e labour.SubscriberUnsubscribed
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return err
		}
		s.mutateSubscription(evt.AggregateID, e.SubscriptionID, evt.Timestamp, func(r *SubscriptionRow) {
			r.Status = string(labour.StatusUnsubscribed)
		})
		if sum.SubscriberCount > 0 {
			sum.SubscriberCount--
		}

	case labour.EventSubscriberRemoved:
		var e labour.SubscriberRemoved
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return err
		}
		s.mutateSubscription(evt.AggregateID, e.SubscriptionID, evt.Timestamp, func(r *SubscriptionRow) {
			r.Status = string(labour.StatusRemoved)
		})

	case labour.EventSubscriberBlocked:
		var e labour.SubscriberBlocked
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return err
		}
		s.mutateSubscription(evt.AggregateID, e.SubscriptionID, evt.Timestamp, func(r *SubscriptionRow) {
			r.Status = string(labour.StatusBlocked)
		})

	case labour.EventSubscriberUnblocked:
		var e labour.SubscriberUnblocked
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return err
		}
		s.mutateSubscription(evt.AggregateID, e.SubscriptionID, evt.Timestamp, func(r *SubscriptionRow) {
			r.Status = string(labour.StatusRemoved)
		})

	case labour.EventSubscriberRoleUpdated:
		var e labour.SubscriberRoleUpdated
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return err
		}
		s.mutateSubscription(evt.AggregateID, e.SubscriptionID, evt.Timestamp, func(r *SubscriptionRow) {
			r.Role = string(e.Role)
		})

	case labour.EventSubscriberAccessLevelUpdated:
		var e labour.SubscriberAccessLevelUpdated
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return err
		}
		s.mutateSubscription(evt.AggregateID, e.SubscriptionID, evt.Timestamp, func(r *SubscriptionRow) {
			r.AccessLevel = string(e.AccessLevel)
		})
	}
	return nil
}

func (s *Store) mutateUpdate(labourID, updateID string, updatedAt time.Time, mutate func(*LabourUpdateRow)) {
	rows := s.updates[labourID]
	for i := range rows {
		if rows[i].UpdateID == updateID {
			mutate(&rows[i])
			rows[i].UpdatedAt = updatedAt
			return
		}
	}
}

func (s *Store) mutateSubscription(labourID, subscriptionID string, updatedAt time.Time, mutate func(*SubscriptionRow)) {
	rows := s.subscriptions[labourID]
	for i := range rows {
		if rows[i].SubscriptionID == subscriptionID {
			mutate(&rows[i])
			rows[i].UpdatedAt = updatedAt
			return
		}
	}
}
