// Package projection implements the read-side projection engine described
// in spec.md §4.6: synchronous per-command projection plus a
// checkpoint-driven asynchronous batch cycle, with a rebuild action that
// resets checkpoints and clears read models.
package projection

import "github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"

// Projector folds one or more event types into a read model. Name must be
// stable across deploys: it is the checkpoint key.
type Projector interface {
	Name() string
	Project(events []*eventsourcing.Event) error
}

// Resettable is implemented by projectors whose read model can be cleared
// in place, so RebuildReadModels (spec.md §4.6) can wipe and replay it
// without dropping and recreating tables out-of-band.
type Resettable interface {
	Reset() error
}

// SyncProjector runs inline, in the same logical step as the command that
// produced the event (spec.md §4.6's "sync projector" — no checkpoint, no
// batching, no retry: if it fails the command fails).
type SyncProjector = Projector
