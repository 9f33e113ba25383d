package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
	"github.com/kieran-gray/fern-labour-sub001/pkg/store"
)

// CheckpointStore implements store.CheckpointStore against the shared
// SQLite database.
type CheckpointStore struct {
	db *sql.DB
}

func NewCheckpointStore(db *sql.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

func (s *CheckpointStore) Save(checkpoint *store.ProjectionCheckpoint) error {
	_, err := s.db.Exec(
		`INSERT INTO projection_checkpoints (projection_name, global_position, last_event_id, status, error_message, error_count, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (projection_name) DO UPDATE SET
		   global_position = excluded.global_position,
		   last_event_id   = excluded.last_event_id,
		   status          = excluded.status,
		   error_message   = excluded.error_message,
		   error_count     = excluded.error_count,
		   updated_at      = excluded.updated_at`,
		checkpoint.ProjectionName, checkpoint.GlobalPosition, checkpoint.LastEventID,
		string(checkpoint.Status), checkpoint.ErrorMessage, checkpoint.ErrorCount,
		eventsourcing.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (s *CheckpointStore) Load(projectionName string) (*store.ProjectionCheckpoint, error) {
	var cp store.ProjectionCheckpoint
	var status string
	var updatedAt int64
	err := s.db.QueryRow(
		`SELECT projection_name, global_position, last_event_id, status, error_message, error_count, updated_at
		 FROM projection_checkpoints WHERE projection_name = ?`, projectionName,
	).Scan(&cp.ProjectionName, &cp.GlobalPosition, &cp.LastEventID, &status, &cp.ErrorMessage, &cp.ErrorCount, &updatedAt)
	if err == sql.ErrNoRows {
		return &store.ProjectionCheckpoint{ProjectionName: projectionName}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	cp.Status = store.ProjectionStatus(status)
	cp.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &cp, nil
}

func (s *CheckpointStore) Delete(projectionName string) error {
	_, err := s.db.Exec(`DELETE FROM projection_checkpoints WHERE projection_name = ?`, projectionName)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}
