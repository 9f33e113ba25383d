package notification

import "github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"

func NewRepository(store eventsourcing.EventStore) eventsourcing.Repository[*Notification] {
	return eventsourcing.NewRepository[*Notification](
		store,
		AggregateType,
		NewNotification,
		func(aggregate *Notification, event *eventsourcing.Event) error {
			return aggregate.ApplyEvent(event)
		},
	)
}
