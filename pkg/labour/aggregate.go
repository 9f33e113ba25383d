package labour

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kieran-gray/fern-labour-sub001/pkg/authz"
	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
)

// AggregateType is the Type() value stored on every Labour event.
const AggregateType = "Labour"

// Labour is the write-side aggregate for a single labour: its plan, phase,
// contractions, updates, and subscribers (spec.md §3).
type Labour struct {
	eventsourcing.AggregateRoot

	Mother      string
	Plan        Plan
	Phase       Phase
	BegunAt     *time.Time
	CompletedAt *time.Time
	Deleted     bool
	Token       string
	InviteSent  bool

	Contractions      []Contraction
	Updates           []LabourUpdate
	SubscriptionsByID []Subscription
}

// NewLabour constructs an empty Labour ready for LoadFromHistory or command
// handling; Plan* commands populate it via PlanLabour.
func NewLabour(id string) *Labour {
	return &Labour{
		AggregateRoot: eventsourcing.NewAggregateRoot(id, AggregateType),
		Phase:         PhasePlanned,
	}
}

// MotherID and Subscriptions satisfy authz.AggregateView, letting command
// handlers call authz.Authorize without pkg/authz importing pkg/labour.
func (l *Labour) MotherID() string { return l.Mother }

func (l *Labour) Subscriptions() []authz.Subscription {
	out := make([]authz.Subscription, 0, len(l.SubscriptionsByID))
	for _, s := range l.SubscriptionsByID {
		out = append(out, authz.Subscription{
			SubscriptionID: s.ID,
			SubscriberID:   s.SubscriberID,
			Role:           authz.SubscriberRole(s.Role),
			Status:         authz.SubscriberStatus(s.Status),
		})
	}
	return out
}

// findSubscription returns a pointer to the subscription with the given ID,
// or nil.
func (l *Labour) findSubscription(id string) *Subscription {
	for i := range l.SubscriptionsByID {
		if l.SubscriptionsByID[i].ID == id {
			return &l.SubscriptionsByID[i]
		}
	}
	return nil
}

func (l *Labour) findContraction(id string) *Contraction {
	for i := range l.Contractions {
		if l.Contractions[i].ID == id {
			return &l.Contractions[i]
		}
	}
	return nil
}

func (l *Labour) findUpdate(id string) *LabourUpdate {
	for i := range l.Updates {
		if l.Updates[i].ID == id {
			return &l.Updates[i]
		}
	}
	return nil
}

// ApplyEvent decodes Data per EventType and mutates state. Called both when
// rehydrating from history and, via applyAndRecord (ApplyChange followed by
// ApplyEvent), right after a command produces a new event.
func (l *Labour) ApplyEvent(evt *eventsourcing.Event) error {
	switch evt.EventType {
	case EventLabourPlanned:
		var e LabourPlanned
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		l.Mother = e.MotherID
		l.Plan = Plan{FirstLabour: e.FirstLabour, DueDate: e.DueDate, LabourName: e.LabourName}
		l.Phase = PhasePlanned

	case EventLabourPlanUpdated:
		var e LabourPlanUpdated
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		if e.FirstLabour != nil {
			l.Plan.FirstLabour = *e.FirstLabour
		}
		if e.DueDate != nil {
			l.Plan.DueDate = *e.DueDate
		}
		if e.LabourName != nil {
			l.Plan.LabourName = *e.LabourName
		}

	case EventLabourBegun:
		var e LabourBegun
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		begunAt := e.BegunAt
		l.BegunAt = &begunAt

	case EventLabourPhaseChanged:
		var e LabourPhaseChanged
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		to, err := ParsePhase(e.ToTag)
		if err != nil {
			return err
		}
		l.Phase = to

	case EventLabourCompleted:
		var e LabourCompleted
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		completedAt := e.CompletedAt
		l.CompletedAt = &completedAt
		l.Phase = PhaseComplete

	case EventLabourDeleted:
		l.Deleted = true

	case EventLabourInviteSent:
		l.InviteSent = true

	case EventSubscriptionTokenSet:
		var e SubscriptionTokenSet
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		l.Token = e.Token

	case EventContractionAdded:
		var e ContractionAdded
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		l.Contractions = append(l.Contractions, Contraction{
			ID: e.ContractionID, Start: e.Start, End: e.End, Intensity: e.Intensity,
		})

	case EventContractionUpdated:
		var e ContractionUpdated
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		if c := l.findContraction(e.ContractionID); c != nil {
			if e.Start != nil {
				c.Start = *e.Start
			}
			if e.End != nil {
				c.End = *e.End
			}
			if e.Intensity != nil {
				c.Intensity = *e.Intensity
			}
		}

	case EventContractionDeleted:
		var e ContractionDeleted
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		if c := l.findContraction(e.ContractionID); c != nil {
			c.Deleted = true
		}

	case EventLabourUpdatePosted:
		var e LabourUpdatePosted
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		l.Updates = append(l.Updates, LabourUpdate{
			ID: e.UpdateID, Type: e.Type, Message: e.Message,
			ApplicationGenerated: e.ApplicationGenerated, PostedAt: e.PostedAt,
		})

	case EventLabourUpdateMessageUpdated:
		var e LabourUpdateMessageUpdated
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		if u := l.findUpdate(e.UpdateID); u != nil {
			u.Message = e.Message
			u.Edited = true
		}

	case EventLabourUpdateTypeUpdated:
		var e LabourUpdateTypeUpdated
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		if u := l.findUpdate(e.UpdateID); u != nil {
			u.Type = e.Type
			u.Edited = true
		}

	case EventLabourUpdateDeleted:
		var e LabourUpdateDeleted
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		if u := l.findUpdate(e.UpdateID); u != nil {
			u.Deleted = true
		}

	case EventSubscriberRequested:
		var e SubscriberRequested
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		l.SubscriptionsByID = append(l.SubscriptionsByID, Subscription{
			ID: e.SubscriptionID, SubscriberID: e.SubscriberID, Role: e.Role,
			Status: StatusRequested, AccessLevel: AccessBasic, RequestedAt: e.RequestedAt, UpdatedAt: e.RequestedAt,
		})

	case EventSubscriberApproved:
		var e SubscriberApproved
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		if s := l.findSubscription(e.SubscriptionID); s != nil {
			s.Status = StatusSubscribed
		}

	case EventSubscriberUnsubscribed:
		var e SubscriberUnsubscribed
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		if s := l.findSubscription(e.SubscriptionID); s != nil {
			s.Status = StatusUnsubscribed
		}

	case EventSubscriberRemoved:
		var e SubscriberRemoved
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		if s := l.findSubscription(e.SubscriptionID); s != nil {
			s.Status = StatusRemoved
		}

	case EventSubscriberBlocked:
		var e SubscriberBlocked
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		if s := l.findSubscription(e.SubscriptionID); s != nil {
			s.Status = StatusBlocked
		}

	case EventSubscriberUnblocked:
		var e SubscriberUnblocked
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		if s := l.findSubscription(e.SubscriptionID); s != nil {
			s.Status = StatusRemoved // unblock returns to REMOVED; re-subscribing requires a new RequestAccess
		}

	case EventSubscriberRoleUpdated:
		var e SubscriberRoleUpdated
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		if s := l.findSubscription(e.SubscriptionID); s != nil {
			s.Role = e.Role
		}

	case EventSubscriberAccessLevelUpdated:
		var e SubscriberAccessLevelUpdated
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		if s := l.findSubscription(e.SubscriptionID); s != nil {
			s.AccessLevel = e.AccessLevel
		}

	case EventSubscriberNotificationMethodsUpdated:
		var e SubscriberNotificationMethodsUpdated
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		if s := l.findSubscription(e.SubscriptionID); s != nil {
			s.NotificationMethods = e.Methods
		}

	default:
		return fmt.Errorf("labour: unknown event type %q", evt.EventType)
	}

	return nil
}
