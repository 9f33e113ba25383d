package projection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
	"github.com/kieran-gray/fern-labour-sub001/pkg/store"
)

// DefaultBatchLimit is the events_since batch size spec.md §4.6 names.
const DefaultBatchLimit = 100

// AsyncEngine drives the checkpoint-recovery cycle for a set of async
// projectors: load checkpoint → events_since(last, batch_limit) →
// concurrent project_batch per projector → advance checkpoint on success /
// mark error+retry on failure.
type AsyncEngine struct {
	store       store.EventStore
	checkpoints store.CheckpointStore
	status      store.ProjectionStatusStore
	projectors  []Projector
	batchLimit  int
}

func NewAsyncEngine(es store.EventStore, checkpoints store.CheckpointStore, status store.ProjectionStatusStore, projectors ...Projector) *AsyncEngine {
	return &AsyncEngine{
		store:       es,
		checkpoints: checkpoints,
		status:      status,
		projectors:  projectors,
		batchLimit:  DefaultBatchLimit,
	}
}

// RunOnce advances every projector by at most one batch. Returns the number
// of events processed across all projectors (0 means fully caught up).
func (e *AsyncEngine) RunOnce(ctx context.Context) (int, error) {
	var wg sync.WaitGroup
	errs := make([]error, len(e.projectors))
	processed := make([]int, len(e.projectors))

	for i, p := range e.projectors {
		wg.Add(1)
		go func(i int, p Projector) {
			defer wg.Done()
			n, err := e.runProjector(p)
			processed[i] = n
			errs[i] = err
		}(i, p)
	}
	wg.Wait()

	total := 0
	for i, err := range errs {
		total += processed[i]
		if err != nil {
			return total, fmt.Errorf("projection %s: %w", e.projectors[i].Name(), err)
		}
	}
	return total, nil
}

func (e *AsyncEngine) runProjector(p Projector) (int, error) {
	cp, err := e.checkpoints.Load(p.Name())
	if err != nil {
		return 0, fmt.Errorf("load checkpoint: %w", err)
	}

	events, err := e.store.LoadAllEvents(cp.GlobalPosition, e.batchLimit)
	if err != nil {
		e.markFailed(p.Name(), cp, err)
		return 0, fmt.Errorf("load events since %d: %w", cp.GlobalPosition, err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	if err := p.Project(events); err != nil {
		e.markFailed(p.Name(), cp, err)
		return 0, fmt.Errorf("project batch: %w", err)
	}

	last := events[len(events)-1]
	cp.GlobalPosition = last.GlobalPosition
	cp.LastEventID = last.ID
	cp.Status = store.ProjectionStatusReady
	cp.ErrorMessage = ""
	cp.ErrorCount = 0
	cp.UpdatedAt = eventsourcing.Now()
	if err := e.checkpoints.Save(cp); err != nil {
		return len(events), fmt.Errorf("save checkpoint: %w", err)
	}
	return len(events), nil
}

func (e *AsyncEngine) markFailed(name string, cp *store.ProjectionCheckpoint, cause error) {
	cp.Status = store.ProjectionStatusFailed
	cp.ErrorMessage = cause.Error()
	cp.ErrorCount++
	cp.UpdatedAt = eventsourcing.Now()
	_ = e.checkpoints.Save(cp) // best-effort; the caller already has the real error to report
}

// Run drives RunOnce on a fixed interval, the alarm-driven equivalent of
// an always-on catch-up worker (spec.md §5). It returns ctx.Err() once ctx
// is cancelled, or the first RunOnce error, after which no further cycles
// run.
func (e *AsyncEngine) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.RunOnce(ctx); err != nil {
				return err
			}
		}
	}
}

// Rebuild resets every projector's checkpoint to zero and clears its read
// model (for Resettable projectors), then lets the normal async cycle
// replay the full event log from the beginning (spec.md §4.6).
func (e *AsyncEngine) Rebuild(ctx context.Context) error {
	for _, p := range e.projectors {
		if r, ok := p.(Resettable); ok {
			if err := r.Reset(); err != nil {
				return fmt.Errorf("reset %s: %w", p.Name(), err)
			}
		}
		if err := e.checkpoints.Delete(p.Name()); err != nil {
			return fmt.Errorf("delete checkpoint %s: %w", p.Name(), err)
		}
		if e.status != nil {
			_ = e.status.Save(&store.ProjectionState{
				ProjectionName: p.Name(),
				Status:         store.ProjectionStatusRebuilding,
				UpdatedAt:      eventsourcing.Now(),
			})
		}
	}
	return nil
}
