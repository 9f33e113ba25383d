package alarm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kieran-gray/fern-labour-sub001/pkg/process"
)

func TestScheduler_FiresAtScheduledTime(t *testing.T) {
	fired := make(chan string, 1)
	s := NewScheduler(func(ctx context.Context, id string) error {
		fired <- id
		return nil
	}, WithPollInterval(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	defer s.Stop(context.Background())

	s.Schedule("labour-1", time.Now().Add(10*time.Millisecond))

	select {
	case id := <-fired:
		assert.Equal(t, "labour-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("alarm never fired")
	}
}

func TestScheduler_EarliestFireTimeWins(t *testing.T) {
	s := NewScheduler(func(ctx context.Context, id string) error { return nil })

	far := time.Now().Add(time.Hour)
	near := time.Now().Add(time.Minute)
	s.Schedule("labour-1", far)
	s.Schedule("labour-1", near)

	s.mu.Lock()
	got := s.pending["labour-1"]
	s.mu.Unlock()
	assert.True(t, got.Equal(near), "earliest scheduled time should win")

	// A later, larger time must not push the alarm back out.
	s.Schedule("labour-1", far)
	s.mu.Lock()
	got = s.pending["labour-1"]
	s.mu.Unlock()
	assert.True(t, got.Equal(near))
}

func TestScheduler_Cancel(t *testing.T) {
	s := NewScheduler(func(ctx context.Context, id string) error { return nil })
	s.Schedule("labour-1", time.Now().Add(time.Hour))
	s.Cancel("labour-1")

	s.mu.Lock()
	_, ok := s.pending["labour-1"]
	s.mu.Unlock()
	assert.False(t, ok)
}

func TestScheduler_RetriesWithBackoffOnHandlerError(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	s := NewScheduler(func(ctx context.Context, id string) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return assertErr
	}, WithPollInterval(10*time.Millisecond), WithBackoff(process.BackoffConfig{
		Base: 20 * time.Millisecond, Cap: 50 * time.Millisecond, MaxRetries: 2,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	defer s.Stop(context.Background())

	s.Schedule("labour-1", time.Now())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 3
	}, 2*time.Second, 10*time.Millisecond, "handler should be retried up to MaxRetries times")

	s.mu.Lock()
	_, stillPending := s.pending["labour-1"]
	s.mu.Unlock()
	assert.False(t, stillPending, "exhausted retries should not leave an alarm armed")
}

var assertErr = errFailed{}

type errFailed struct{}

func (errFailed) Error() string { return "handler failed" }
