package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
	"github.com/kieran-gray/fern-labour-sub001/pkg/store"
)

// EffectLedgerStore implements store.EffectLedger against the shared
// SQLite database, replacing pkg/process.MemoryLedger in a durable
// single-node deployment.
type EffectLedgerStore struct {
	db *sql.DB
}

func NewEffectLedgerStore(db *sql.DB) *EffectLedgerStore {
	return &EffectLedgerStore{db: db}
}

func (s *EffectLedgerStore) Get(key string) (*store.LedgerEntry, error) {
	var entry store.LedgerEntry
	var status string
	var createdAt, updatedAt int64

	err := s.db.QueryRow(
		`SELECT idempotency_key, status, attempts, last_error, created_at, updated_at FROM effect_ledger WHERE idempotency_key = ?`, key,
	).Scan(&entry.IdempotencyKey, &status, &entry.Attempts, &entry.LastError, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}

	entry.Status = store.EffectStatus(status)
	entry.CreatedAt = time.Unix(createdAt, 0).UTC()
	entry.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &entry, nil
}

// Reserve inserts a PENDING entry for key if none exists. SQLite's
// INSERT OR IGNORE makes this atomic against concurrent reservers: at
// most one caller observes RowsAffected() == 1.
func (s *EffectLedgerStore) Reserve(key string) (bool, error) {
	now := eventsourcing.Now().Unix()
	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO effect_ledger (idempotency_key, status, attempts, last_error, created_at, updated_at)
		 VALUES (?, ?, 0, '', ?, ?)`,
		key, string(store.EffectStatusPending), now, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to reserve ledger entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

func (s *EffectLedgerStore) MarkDispatched(key string) error {
	return s.setStatus(key, store.EffectStatusDispatched, "")
}

func (s *EffectLedgerStore) MarkCompleted(key string) error {
	return s.setStatus(key, store.EffectStatusCompleted, "")
}

func (s *EffectLedgerStore) MarkFailed(key string, lastErr string) error {
	_, err := s.db.Exec(
		`UPDATE effect_ledger SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ? WHERE idempotency_key = ?`,
		string(store.EffectStatusFailed), lastErr, eventsourcing.Now().Unix(), key,
	)
	if err != nil {
		return fmt.Errorf("failed to mark ledger entry failed: %w", err)
	}
	return nil
}

func (s *EffectLedgerStore) setStatus(key string, status store.EffectStatus, lastErr string) error {
	_, err := s.db.Exec(
		`UPDATE effect_ledger SET status = ?, last_error = ?, updated_at = ? WHERE idempotency_key = ?`,
		string(status), lastErr, eventsourcing.Now().Unix(), key,
	)
	if err != nil {
		return fmt.Errorf("failed to update ledger entry: %w", err)
	}
	return nil
}
