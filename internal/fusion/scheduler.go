package fusion

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// scheduler drives periodic fusion cycles. It is deliberately decoupled
// from the cycle logic: tests call Engine.RunCycle synchronously and never
// need a ticker.
type scheduler struct {
	engine *Engine
	logger *slog.Logger

	isRunning  int32
	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

func newScheduler(e *Engine) *scheduler {
	return &scheduler{
		engine: e,
		logger: e.logger.With("component", "scheduler"),
	}
}

// start launches the periodic loop. Returns false when already running.
func (s *scheduler) start() bool {
	if !atomic.CompareAndSwapInt32(&s.isRunning, 0, 1) {
		return false
	}

	s.shutdownCh = make(chan struct{})
	s.wg.Add(1)
	go s.loop()

	s.logger.Info("real-time updates started",
		"interval", s.engine.config.FetchInterval,
	)
	return true
}

// stop signals the loop and waits for any in-flight cycle to finish.
// Returns false when not running.
func (s *scheduler) stop() bool {
	if !atomic.CompareAndSwapInt32(&s.isRunning, 1, 0) {
		return false
	}

	close(s.shutdownCh)
	s.wg.Wait()

	s.logger.Info("real-time updates stopped")
	return true
}

func (s *scheduler) loop() {
	defer s.wg.Done()

	// Immediate first cycle so fresh data is available before the first
	// tick elapses.
	s.runOnce()

	ticker := time.NewTicker(s.engine.config.FetchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdownCh:
			return
		case <-ticker.C:
			s.runOnce()
		}
	}
}

// runOnce executes a single cycle bounded to the fetch interval so a hung
// cycle can never overlap the next trigger.
func (s *scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.engine.config.FetchInterval)
	defer cancel()

	if err := s.engine.RunCycle(ctx); err != nil {
		s.logger.Error("scheduled fusion cycle failed", "error", err)
	}
}
