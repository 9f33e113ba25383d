package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
	"github.com/kieran-gray/fern-labour-sub001/pkg/store"
)

// SnapshotStore implements store.SnapshotStore against the shared SQLite
// database, adapted from the teacher's sqlc-backed equivalent to use
// database/sql directly (no sqlc-generated query package is available
// in this module; see DESIGN.md).
type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

func (s *SnapshotStore) SaveSnapshot(snapshot *store.Snapshot) error {
	var metadata sql.NullString
	if snapshot.Metadata != nil {
		m, err := snapshot.Metadata.MarshalMetadata()
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = sql.NullString{String: m, Valid: m != ""}
	}

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO snapshots (aggregate_id, aggregate_type, version, data, created_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snapshot.AggregateID, snapshot.AggregateType, snapshot.Version, snapshot.Data,
		snapshot.CreatedAt.Unix(), metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) GetLatestSnapshot(aggregateID string) (*store.Snapshot, error) {
	row := s.db.QueryRow(
		`SELECT aggregate_id, aggregate_type, version, data, created_at, metadata
		 FROM snapshots WHERE aggregate_id = ? ORDER BY version DESC LIMIT 1`, aggregateID,
	)
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, eventsourcing.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	return snap, nil
}

func (s *SnapshotStore) GetSnapshotBeforeVersion(aggregateID string, version int64) (*store.Snapshot, error) {
	row := s.db.QueryRow(
		`SELECT aggregate_id, aggregate_type, version, data, created_at, metadata
		 FROM snapshots WHERE aggregate_id = ? AND version <= ? ORDER BY version DESC LIMIT 1`,
		aggregateID, version,
	)
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, eventsourcing.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot before version: %w", err)
	}
	return snap, nil
}

func (s *SnapshotStore) DeleteOldSnapshots(aggregateID string, olderThanVersion int64) error {
	_, err := s.db.Exec(
		`DELETE FROM snapshots WHERE aggregate_id = ? AND version < ?`, aggregateID, olderThanVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to delete old snapshots: %w", err)
	}
	return nil
}

func (s *SnapshotStore) GetSnapshotStats() (*store.SnapshotStats, error) {
	var stats store.SnapshotStats
	var totalSize, avgSize sql.NullFloat64
	var oldest, newest sql.NullInt64

	err := s.db.QueryRow(
		`SELECT COUNT(*), COUNT(DISTINCT aggregate_id), SUM(LENGTH(data)), AVG(LENGTH(data)), MIN(created_at), MAX(created_at)
		 FROM snapshots`,
	).Scan(&stats.TotalSnapshots, &stats.UniqueAggregates, &totalSize, &avgSize, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot stats: %w", err)
	}

	if totalSize.Valid {
		stats.TotalSizeBytes = int64(totalSize.Float64)
	}
	if avgSize.Valid {
		stats.AvgSizeBytes = int64(avgSize.Float64)
	}
	if oldest.Valid {
		stats.OldestSnapshot = time.Unix(oldest.Int64, 0).UTC()
	}
	if newest.Valid {
		stats.NewestSnapshot = time.Unix(newest.Int64, 0).UTC()
	}

	return &stats, nil
}

func scanSnapshot(row *sql.Row) (*store.Snapshot, error) {
	var snap store.Snapshot
	var createdAt int64
	var metadata sql.NullString

	err := row.Scan(&snap.AggregateID, &snap.AggregateType, &snap.Version, &snap.Data, &createdAt, &metadata)
	if err != nil {
		return nil, err
	}
	snap.CreatedAt = time.Unix(createdAt, 0).UTC()
	if metadata.Valid && metadata.String != "" {
		m, err := store.UnmarshalMetadata(metadata.String)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		snap.Metadata = m
	}
	return &snap, nil
}
