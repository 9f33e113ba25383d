package projection

import (
	"fmt"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
)

// SyncEngine runs every registered sync projector inline against the
// events a single command just produced (spec.md §4.6). Any projector
// failure fails the whole step — there is no checkpoint or retry on this
// path, unlike AsyncEngine.
type SyncEngine struct {
	projectors []SyncProjector
}

func NewSyncEngine(projectors ...SyncProjector) *SyncEngine {
	return &SyncEngine{projectors: projectors}
}

func (e *SyncEngine) Project(events []*eventsourcing.Event) error {
	for _, p := range e.projectors {
		if err := p.Project(events); err != nil {
			return fmt.Errorf("sync projection %s: %w", p.Name(), err)
		}
	}
	return nil
}
