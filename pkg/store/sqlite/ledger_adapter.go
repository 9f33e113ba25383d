package sqlite

import (
	"github.com/kieran-gray/fern-labour-sub001/pkg/process"
	"github.com/kieran-gray/fern-labour-sub001/pkg/store"
)

// ProcessLedger adapts the durable EffectLedgerStore to pkg/process.Ledger,
// so Manager can use SQLite-backed idempotency tracking in place of
// process.MemoryLedger without process depending on pkg/store/sqlite.
type ProcessLedger struct {
	store *EffectLedgerStore
}

func NewProcessLedger(s *EffectLedgerStore) *ProcessLedger {
	return &ProcessLedger{store: s}
}

func (l *ProcessLedger) Status(key string) (process.EffectStatus, bool) {
	entry, err := l.store.Get(key)
	if err != nil || entry == nil {
		return "", false
	}
	return toProcessStatus(entry.Status), true
}

func (l *ProcessLedger) Record(key string, status process.EffectStatus) {
	storeStatus := toStoreStatus(status)
	if storeStatus == store.EffectStatusPending {
		_, _ = l.store.Reserve(key)
		return
	}
	switch storeStatus {
	case store.EffectStatusDispatched:
		_ = l.store.MarkDispatched(key)
	case store.EffectStatusCompleted:
		_ = l.store.MarkCompleted(key)
	case store.EffectStatusFailed:
		_ = l.store.MarkFailed(key, "")
	}
}

func toStoreStatus(s process.EffectStatus) store.EffectStatus {
	switch s {
	case process.EffectPending:
		return store.EffectStatusPending
	case process.EffectDispatched:
		return store.EffectStatusDispatched
	case process.EffectCompleted:
		return store.EffectStatusCompleted
	case process.EffectFailed:
		return store.EffectStatusFailed
	default:
		return store.EffectStatusPending
	}
}

func toProcessStatus(s store.EffectStatus) process.EffectStatus {
	switch s {
	case store.EffectStatusPending:
		return process.EffectPending
	case store.EffectStatusDispatched:
		return process.EffectDispatched
	case store.EffectStatusCompleted:
		return process.EffectCompleted
	case store.EffectStatusFailed:
		return process.EffectFailed
	default:
		return process.EffectPending
	}
}
