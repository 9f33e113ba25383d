package projection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
	"github.com/kieran-gray/fern-labour-sub001/pkg/store"
)

type fakeEventStore struct {
	mu     sync.Mutex
	events []*eventsourcing.Event
}

func (s *fakeEventStore) AppendEvents(string, int64, []*eventsourcing.Event) error { return nil }
func (s *fakeEventStore) AppendEventsIdempotent(string, int64, []*eventsourcing.Event, string, time.Duration) (*eventsourcing.CommandResult, error) {
	return nil, nil
}
func (s *fakeEventStore) GetCommandResult(string) (*eventsourcing.CommandResult, error) { return nil, nil }
func (s *fakeEventStore) LoadEvents(string, int64) ([]*eventsourcing.Event, error)       { return nil, nil }
func (s *fakeEventStore) LoadAllEvents(fromPosition int64, limit int) ([]*eventsourcing.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*eventsourcing.Event
	for _, e := range s.events {
		if e.GlobalPosition > fromPosition {
			out = append(out, e)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
func (s *fakeEventStore) GetAggregateVersion(string) (int64, error)            { return 0, nil }
func (s *fakeEventStore) CheckUniqueness(string, string) (bool, string, error) { return true, "", nil }
func (s *fakeEventStore) GetConstraintOwner(string, string) (string, error)    { return "", nil }
func (s *fakeEventStore) RebuildConstraints() error                           { return nil }
func (s *fakeEventStore) Close() error                                        { return nil }

type fakeCheckpointStore struct {
	mu          sync.Mutex
	checkpoints map[string]*store.ProjectionCheckpoint
}

func newFakeCheckpointStore() *fakeCheckpointStore {
	return &fakeCheckpointStore{checkpoints: make(map[string]*store.ProjectionCheckpoint)}
}

func (c *fakeCheckpointStore) Save(cp *store.ProjectionCheckpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *cp
	c.checkpoints[cp.ProjectionName] = &copied
	return nil
}

func (c *fakeCheckpointStore) Load(name string) (*store.ProjectionCheckpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cp, ok := c.checkpoints[name]; ok {
		copied := *cp
		return &copied, nil
	}
	return &store.ProjectionCheckpoint{ProjectionName: name}, nil
}

func (c *fakeCheckpointStore) Delete(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checkpoints, name)
	return nil
}

type countingProjector struct {
	mu    sync.Mutex
	seen  int
	reset int
}

func (p *countingProjector) Name() string { return "counting" }
func (p *countingProjector) Project(events []*eventsourcing.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen += len(events)
	return nil
}
func (p *countingProjector) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset++
	p.seen = 0
	return nil
}

func TestAsyncEngine_RunOnce_AdvancesCheckpoint(t *testing.T) {
	es := &fakeEventStore{events: []*eventsourcing.Event{
		{ID: "1", GlobalPosition: 1},
		{ID: "2", GlobalPosition: 2},
	}}
	checkpoints := newFakeCheckpointStore()
	p := &countingProjector{}
	engine := NewAsyncEngine(es, checkpoints, nil, p)

	n, err := engine.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, p.seen)

	cp, err := checkpoints.Load("counting")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cp.GlobalPosition)

	// Second run finds nothing new.
	n, err = engine.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAsyncEngine_Rebuild_ResetsProjectorsAndCheckpoints(t *testing.T) {
	es := &fakeEventStore{events: []*eventsourcing.Event{{ID: "1", GlobalPosition: 1}}}
	checkpoints := newFakeCheckpointStore()
	p := &countingProjector{}
	engine := NewAsyncEngine(es, checkpoints, nil, p)

	_, err := engine.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, p.seen)

	require.NoError(t, engine.Rebuild(context.Background()))
	assert.Equal(t, 1, p.reset)
	assert.Equal(t, 0, p.seen)

	cp, err := checkpoints.Load("counting")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cp.GlobalPosition)
}

func TestSyncEngine_Project(t *testing.T) {
	p := &countingProjector{}
	engine := NewSyncEngine(p)
	require.NoError(t, engine.Project([]*eventsourcing.Event{{ID: "1"}}))
	assert.Equal(t, 1, p.seen)
}
