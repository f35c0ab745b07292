package engine

import (
	"context"
	"log"
	"time"

	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/types"
)

// Sweeper runs Engine.Sweep on a fixed period from a background
// goroutine.  It is safe to stop via its context or the Stop method.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	notify   func([]types.AttendanceEvent)
	logger   *log.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// SweeperConfig holds the parameters for NewSweeper.
type SweeperConfig struct {
	// Interval is the sweep period.  Defaults to 1 second.
	Interval time.Duration

	// Notify, if set, receives each non-empty batch of sweep events
	// after it has been appended to the log.
	Notify func([]types.AttendanceEvent)
}

// NewSweeper creates a sweeper but does not start it.  Call Start only
// after the engine has been restored; sweeping an unrestored engine
// would close presences that are still being replayed.
func NewSweeper(e *Engine, cfg SweeperConfig, logger *log.Logger) *Sweeper {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	return &Sweeper{
		engine:   e,
		interval: interval,
		notify:   cfg.Notify,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go s.loop(ctx)

	s.logger.Printf("sweeper started (interval=%s)", s.interval)
}

// Stop signals the sweeper to exit and waits for it to finish.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	events, err := s.engine.Sweep(ctx, s.engine.clk.Now())
	if err != nil {
		s.logger.Printf("sweep error: %v", err)
		return
	}
	if len(events) > 0 && s.notify != nil {
		s.notify(events)
	}
}
