// Package store defines the persistence interfaces shared by the write side
// (EventStore) and the read side (CheckpointStore, EffectLedger,
// SnapshotStore). Concrete implementations live in pkg/store/sqlite.
package store

import (
	"time"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
)

// EventStore is the write-side persistence contract. It re-exports the
// generic interface from pkg/eventsourcing so callers only need to import
// pkg/store to reach both the interface and its sqlite implementation.
type EventStore = eventsourcing.EventStore

// ProjectionCheckpoint tracks the progress of a projection against the
// global event position (see SPEC_FULL.md §5).
type ProjectionCheckpoint struct {
	ProjectionName  string
	GlobalPosition  int64
	LastEventID     string
	Status          ProjectionStatus
	ErrorMessage    string
	ErrorCount      int
	UpdatedAt       time.Time
}

// CheckpointStore persists projection checkpoints.
type CheckpointStore interface {
	// Save saves a checkpoint.
	Save(checkpoint *ProjectionCheckpoint) error

	// Load loads a checkpoint for a projection. Returns a zero-value
	// checkpoint (GlobalPosition 0) with no error if none exists yet.
	Load(projectionName string) (*ProjectionCheckpoint, error)

	// Delete deletes a checkpoint (for rebuilding).
	Delete(projectionName string) error
}
