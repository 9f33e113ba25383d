package notification

import (
	"encoding/json"
	"fmt"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
)

const AggregateType = "notification"

// Notification is the write-side aggregate backing the notification
// service's two-stage process manager (SPEC_FULL.md §3): request, render,
// dispatch, and terminal delivered/failed states.
type Notification struct {
	eventsourcing.AggregateRoot

	Recipient  string
	Channel    Channel
	Kind       Kind
	Payload    map[string]string
	State      State
	ContentRef string
	Attempts   int
	LastError  string
}

func NewNotification(id string) *Notification {
	return &Notification{
		AggregateRoot: eventsourcing.NewAggregateRoot(id, AggregateType),
		State:         StateRequested,
	}
}

func (n *Notification) ApplyEvent(evt *eventsourcing.Event) error {
	switch evt.EventType {
	case EventNotificationRequested:
		var e NotificationRequested
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return err
		}
		n.Recipient = e.Recipient
		n.Channel = e.Channel
		n.Kind = e.Kind
		n.Payload = e.Payload
		n.State = StateRequested

	case EventRenderedContentStored:
		var e RenderedContentStored
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return err
		}
		n.ContentRef = e.ContentRef
		n.State = StateRendered

	case EventNotificationDispatched:
		n.State = StateDispatched

	case EventNotificationDelivered:
		n.State = StateDelivered

	case EventNotificationFailed:
		var e NotificationFailed
		if err := json.Unmarshal(evt.Data, &e); err != nil {
			return err
		}
		n.Attempts = e.Attempt
		n.LastError = e.Reason
		n.State = StateFailed

	default:
		return fmt.Errorf("notification: unknown event type %q", evt.EventType)
	}
	return nil
}
