package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
)

// TxHandler applies a single event to a read model within an
// in-progress transaction. Returning an error aborts the whole batch —
// nothing the handler wrote is kept, and the batch's checkpoint (handled
// one level up, by pkg/projection.AsyncEngine) does not advance.
type TxHandler func(ctx context.Context, tx *sql.Tx, event *eventsourcing.Event) error

// ProjectionBuilder assembles a SQLite-backed projection.Projector: a
// fluent registration of one TxHandler per event type, sharing a single
// transaction across an entire Project() batch so a read model's tables
// are never observed half-updated.
type ProjectionBuilder struct {
	name      string
	db        *sql.DB
	handlers  map[string]TxHandler
	resetFunc func(ctx context.Context, tx *sql.Tx) error
}

func NewProjectionBuilder(name string, db *sql.DB) *ProjectionBuilder {
	return &ProjectionBuilder{name: name, db: db, handlers: make(map[string]TxHandler)}
}

// On registers the handler invoked for events of the given type. Event
// types with no registered handler are skipped.
func (b *ProjectionBuilder) On(eventType string, handler TxHandler) *ProjectionBuilder {
	b.handlers[eventType] = handler
	return b
}

// OnReset registers the function that clears this projection's tables
// during a rebuild. Without it, the built projection's Reset is a no-op.
func (b *ProjectionBuilder) OnReset(fn func(ctx context.Context, tx *sql.Tx) error) *ProjectionBuilder {
	b.resetFunc = fn
	return b
}

func (b *ProjectionBuilder) Build() *SQLiteProjection {
	return &SQLiteProjection{
		name:      b.name,
		db:        b.db,
		handlers:  b.handlers,
		resetFunc: b.resetFunc,
	}
}

// SQLiteProjection implements pkg/projection.Projector and
// pkg/projection.Resettable against a SQLite-backed read model.
type SQLiteProjection struct {
	name      string
	db        *sql.DB
	handlers  map[string]TxHandler
	resetFunc func(ctx context.Context, tx *sql.Tx) error
}

func (p *SQLiteProjection) Name() string { return p.name }

// Project applies an entire batch in one transaction: either every
// event in the batch is reflected in the read model, or none are.
func (p *SQLiteProjection) Project(events []*eventsourcing.Event) error {
	if len(events) == 0 {
		return nil
	}

	ctx := context.Background()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin projection transaction: %w", err)
	}
	defer tx.Rollback()

	for _, event := range events {
		handler, ok := p.handlers[event.EventType]
		if !ok {
			continue
		}
		if err := handler(ctx, tx, event); err != nil {
			return fmt.Errorf("projection %s: handler for %s failed: %w", p.name, event.EventType, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit projection batch: %w", err)
	}
	return nil
}

func (p *SQLiteProjection) Reset() error {
	if p.resetFunc == nil {
		return nil
	}

	ctx := context.Background()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reset transaction: %w", err)
	}
	defer tx.Rollback()

	if err := p.resetFunc(ctx, tx); err != nil {
		return fmt.Errorf("projection %s: reset failed: %w", p.name, err)
	}
	return tx.Commit()
}
