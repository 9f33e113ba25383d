package projection

import (
	"context"
	"time"

	"github.com/kieran-gray/fern-labour-sub001/pkg/runner"
)

// EngineService adapts an AsyncEngine's catch-up loop into a runner.Service
// so it starts and stops alongside the rest of a deployment (spec.md §5's
// "a single alarm per aggregate drives async projection catch-up" is the
// per-aggregate path; this is the always-on fallback sweep that keeps
// projections advancing even if an alarm is never set, until a cycle
// fails: the sweep then stops and logs the error).
type EngineService struct {
	engine   *AsyncEngine
	interval time.Duration
	logger   runner.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewEngineService wraps engine to run RunOnce on a fixed interval until
// stopped.
func NewEngineService(engine *AsyncEngine, interval time.Duration, logger runner.Logger) *EngineService {
	if logger == nil {
		logger = runner.NewNoopLogger()
	}
	return &EngineService{engine: engine, interval: interval, logger: logger}
}

func (s *EngineService) Name() string { return "async-projection-engine" }

func (s *EngineService) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		if err := s.engine.Run(runCtx, s.interval); err != nil && runCtx.Err() == nil {
			s.logger.Error("async projection engine stopped", "error", err)
		}
	}()

	return nil
}

func (s *EngineService) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

var _ runner.Service = (*EngineService)(nil)
