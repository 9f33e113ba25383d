package store

import "time"

// EffectStatus is the lifecycle of a single process-manager effect,
// tracked by IdempotencyKey so a crash between "dispatched" and
// "completed" never re-delivers a notification (spec.md §3/§4.5).
type EffectStatus string

const (
	EffectStatusPending    EffectStatus = "PENDING"
	EffectStatusDispatched EffectStatus = "DISPATCHED"
	EffectStatusCompleted  EffectStatus = "COMPLETED"
	EffectStatusFailed     EffectStatus = "FAILED"
)

// LedgerEntry is a single idempotency-tracked effect execution.
type LedgerEntry struct {
	IdempotencyKey string
	Status         EffectStatus
	Attempts       int
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EffectLedger records the dispatch lifecycle of process-manager effects,
// keyed by the deterministic IdempotencyKey the process manager computes
// from (aggregate_id, event_sequence, discriminator). See pkg/process.
type EffectLedger interface {
	// Get returns the current entry for a key, or (nil, nil) if unseen.
	Get(key string) (*LedgerEntry, error)

	// Reserve atomically inserts a PENDING entry for key if (and only if)
	// none exists yet. It reports whether this call created the entry —
	// false means some prior attempt already owns this key.
	Reserve(key string) (created bool, err error)

	// MarkDispatched transitions a PENDING entry to DISPATCHED.
	MarkDispatched(key string) error

	// MarkCompleted transitions an entry to COMPLETED.
	MarkCompleted(key string) error

	// MarkFailed records a failed attempt, incrementing Attempts and
	// storing lastErr; the caller decides whether to retry or give up.
	MarkFailed(key string, lastErr string) error
}
