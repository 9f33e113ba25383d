package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
	"github.com/kieran-gray/fern-labour-sub001/pkg/store"
)

// ProjectionStatusStore implements store.ProjectionStatusStore against
// the shared SQLite database, for monitoring projection health
// independently of the checkpoint used to drive replay.
type ProjectionStatusStore struct {
	db *sql.DB
}

func NewProjectionStatusStore(db *sql.DB) *ProjectionStatusStore {
	return &ProjectionStatusStore{db: db}
}

func (s *ProjectionStatusStore) Save(state *store.ProjectionState) error {
	var startedAt, estimatedETA sql.NullInt64
	var eventsProcessed, totalEvents int64
	if state.Progress != nil {
		eventsProcessed = state.Progress.EventsProcessed
		totalEvents = state.Progress.TotalEvents
		if !state.Progress.StartedAt.IsZero() {
			startedAt = sql.NullInt64{Int64: state.Progress.StartedAt.Unix(), Valid: true}
		}
		if state.Progress.EstimatedETA != nil {
			estimatedETA = sql.NullInt64{Int64: state.Progress.EstimatedETA.Unix(), Valid: true}
		}
	}

	_, err := s.db.Exec(
		`INSERT INTO projection_status (projection_name, status, message, updated_at, events_processed, total_events, started_at, estimated_eta)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (projection_name) DO UPDATE SET
		   status           = excluded.status,
		   message          = excluded.message,
		   updated_at       = excluded.updated_at,
		   events_processed = excluded.events_processed,
		   total_events     = excluded.total_events,
		   started_at       = excluded.started_at,
		   estimated_eta    = excluded.estimated_eta`,
		state.ProjectionName, string(state.Status), state.Message, eventsourcing.Now().Unix(),
		eventsProcessed, totalEvents, startedAt, estimatedETA,
	)
	if err != nil {
		return fmt.Errorf("failed to save projection status: %w", err)
	}
	return nil
}

func (s *ProjectionStatusStore) Load(projectionName string) (*store.ProjectionState, error) {
	var state store.ProjectionState
	var status string
	var updatedAt int64
	var eventsProcessed, totalEvents int64
	var startedAt, estimatedETA sql.NullInt64

	err := s.db.QueryRow(
		`SELECT projection_name, status, message, updated_at, events_processed, total_events, started_at, estimated_eta
		 FROM projection_status WHERE projection_name = ?`, projectionName,
	).Scan(&state.ProjectionName, &status, &state.Message, &updatedAt, &eventsProcessed, &totalEvents, &startedAt, &estimatedETA)
	if err == sql.ErrNoRows {
		return &store.ProjectionState{ProjectionName: projectionName}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load projection status: %w", err)
	}

	state.Status = store.ProjectionStatus(status)
	state.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if startedAt.Valid {
		progress := &store.RebuildProgress{
			EventsProcessed: eventsProcessed,
			TotalEvents:     totalEvents,
			StartedAt:       time.Unix(startedAt.Int64, 0).UTC(),
		}
		if estimatedETA.Valid {
			eta := time.Unix(estimatedETA.Int64, 0).UTC()
			progress.EstimatedETA = &eta
		}
		state.Progress = progress
	}
	return &state, nil
}

func (s *ProjectionStatusStore) UpdateProgress(projectionName string, progress *store.RebuildProgress) error {
	current, err := s.Load(projectionName)
	if err != nil {
		return err
	}
	current.Progress = progress
	return s.Save(current)
}
