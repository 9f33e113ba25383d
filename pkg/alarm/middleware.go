package alarm

import (
	"context"
	"time"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
)

// ScheduleMiddleware arms the per-aggregate alarm delay after the target
// aggregate's command, so the alarm-driven catch-up handler runs shortly
// after every command rather than only on Scheduler's own poll interval.
func ScheduleMiddleware(scheduler *Scheduler, delay time.Duration) eventsourcing.CommandMiddleware {
	return func(next eventsourcing.CommandHandler) eventsourcing.CommandHandler {
		return eventsourcing.CommandHandlerFunc(func(ctx context.Context, cmd *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
			events, err := next.Handle(ctx, cmd)
			if err == nil && len(events) > 0 {
				scheduler.Schedule(cmd.Command.AggregateID(), time.Now().Add(delay))
			}
			return events, err
		})
	}
}
