package labour

import "github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"

// NewRepository wires eventsourcing.BaseRepository against Labour's factory
// and event applier.
func NewRepository(store eventsourcing.EventStore) eventsourcing.Repository[*Labour] {
	return eventsourcing.NewRepository[*Labour](
		store,
		AggregateType,
		NewLabour,
		func(aggregate *Labour, event *eventsourcing.Event) error {
			return aggregate.ApplyEvent(event)
		},
	)
}
