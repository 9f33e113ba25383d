package projection

import (
	"context"
	"fmt"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
)

// SyncMiddleware runs engine against the events a command just produced,
// inline with the command itself, so synchronous read models (e.g. an
// in-memory read model serving immediate read-after-write queries) are
// never stale by the time the command returns (spec.md §4.6).
func SyncMiddleware(engine *SyncEngine) eventsourcing.CommandMiddleware {
	return func(next eventsourcing.CommandHandler) eventsourcing.CommandHandler {
		return eventsourcing.CommandHandlerFunc(func(ctx context.Context, cmd *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
			events, err := next.Handle(ctx, cmd)
			if err != nil {
				return events, err
			}
			if len(events) > 0 {
				if perr := engine.Project(events); perr != nil {
					return events, fmt.Errorf("sync projection: %w", perr)
				}
			}
			return events, nil
		})
	}
}
