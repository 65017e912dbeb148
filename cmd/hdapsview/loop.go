package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ============================================================================
// Sampling Loop - reducer-driven
// ============================================================================
//
// One goroutine runs Loop.Run. Each iteration:
//   - drains control events queued by other goroutines (non-blocking)
//   - reads one sensor sample (blocking open/read/close)
//   - reduces the sample into (state, commands, broadcasts)
//   - executes commands against the renderer
//   - yields for the poll interval
//
// The loop is the only owner of LoopState and the only caller of the renderer,
// so no iteration ever overlaps another and no locking is needed.
// ============================================================================

// Loop drives the sensor → rotation → renderer pipeline.
type Loop struct {
	source   SensorSource
	renderer Renderer
	state    *LoopState
	cfg      ReducerConfig
	interval time.Duration

	events     chan Event
	quit       chan string // pending RequestQuit reason; never dropped
	broadcasts chan<- StateBroadcast // optional
	metrics    *loopMetrics          // optional

	logger *slog.Logger
}

// LoopConfig bundles the Loop collaborators.
type LoopConfig struct {
	Source     SensorSource
	Renderer   Renderer
	State      *LoopState
	Reducer    ReducerConfig
	Interval   time.Duration
	Broadcasts chan<- StateBroadcast
	Metrics    *loopMetrics
	Logger     *slog.Logger
}

// NewLoop constructs a loop around an already-captured initial state.
func NewLoop(cfg LoopConfig) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		source:     cfg.Source,
		renderer:   cfg.Renderer,
		state:      cfg.State,
		cfg:        cfg.Reducer,
		interval:   cfg.Interval,
		events:     make(chan Event, eventQueueLen),
		quit:       make(chan string, 1),
		broadcasts: cfg.Broadcasts,
		metrics:    cfg.Metrics,
		logger:     logger,
	}
}

// Events returns the channel other goroutines use to reach the loop.
func (l *Loop) Events() chan<- Event { return l.events }

// RequestQuit asks the loop to stop at the start of its next iteration.
// Safe to call from any goroutine; never blocks. It does not share the
// event queue, so a full queue cannot lose it. When a request is already
// pending the first reason is kept.
func (l *Loop) RequestQuit(reason string) {
	select {
	case l.quit <- reason:
	default:
	}
}

// captureBaseline reads the rest position. Failure aborts startup.
func captureBaseline(src SensorSource) (Sample, error) {
	s, err := src.ReadSample()
	if err != nil {
		return Sample{}, fmt.Errorf("capture rest position: %w", err)
	}
	return s, nil
}

// Run draws the initial frame and iterates until a quit request, context
// cancellation (both return nil) or a sensor/renderer failure (returned).
// The loop cannot be restarted after an error.
func (l *Loop) Run(ctx context.Context) error {
	if l.state == nil {
		return fmt.Errorf("loop state is nil")
	}

	l.logger.Info("sampling loop starting",
		"baseline_x", l.state.Baseline.X,
		"baseline_y", l.state.Baseline.Y,
		"threshold", l.cfg.Threshold,
		"interval", l.interval)

	// Initial frame at (0,0).
	if err := runEffect(l.renderer, CmdDraw{Rotation: l.state.Rotation, At: time.Now()}, l.logger); err != nil {
		return err
	}

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		if err := l.drainEvents(); err != nil {
			return err
		}
		if err := l.takeQuit(); err != nil {
			return err
		}
		if l.state.QuitRequested {
			l.stop(l.state.QuitReason)
			return nil
		}

		sample, err := l.source.ReadSample()
		if err != nil {
			l.metrics.observeSensorError(err)
			l.stop("sensor_error")
			return fmt.Errorf("read sensor: %w", err)
		}

		if err := l.dispatch(SampleRead{Sample: sample, At: time.Now()}); err != nil {
			return err
		}
		l.metrics.observeSample(l.state.LastOffset)

		// Yield regardless of whether anything was drawn.
		timer.Reset(l.interval)
		select {
		case <-ctx.Done():
			l.stop("context_canceled")
			return nil
		case reason := <-l.quit:
			if err := l.dispatch(QuitRequested{Reason: reason}); err != nil {
				return err
			}
		case <-timer.C:
		}
	}
}

// drainEvents reduces every queued control event without blocking.
func (l *Loop) drainEvents() error {
	for {
		select {
		case ev := <-l.events:
			if err := l.dispatch(ev); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// takeQuit reduces a pending RequestQuit, if any.
func (l *Loop) takeQuit() error {
	select {
	case reason := <-l.quit:
		return l.dispatch(QuitRequested{Reason: reason})
	default:
		return nil
	}
}

// dispatch runs one event through the reducer and executes its commands.
func (l *Loop) dispatch(ev Event) error {
	rr := Reduce(l.state, ev, l.cfg)
	if rr.State != nil {
		l.state = rr.State
	}

	for _, b := range rr.Broadcasts {
		l.publish(b)
	}

	for _, cmd := range rr.Commands {
		l.logger.Debug("command", "cmd", cmd.String())
		if err := runEffect(l.renderer, cmd, l.logger); err != nil {
			l.stop("renderer_error")
			return err
		}
	}
	return nil
}

func (l *Loop) publish(b StateBroadcast) {
	if l.broadcasts == nil {
		return
	}
	select {
	case l.broadcasts <- b:
	default:
		l.logger.Warn("broadcast queue full, dropping state update")
	}
}

func (l *Loop) stop(reason string) {
	l.logger.Info("sampling loop stopping", "reason", reason,
		"samples", l.state.Stats.Samples, "redraws", l.state.Stats.Redraws)
	l.publish(BroadcastShutdown{Reason: reason, At: time.Now()})
}
