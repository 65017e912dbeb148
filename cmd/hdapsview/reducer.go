package main

import "time"

// This file implements the reducer half of the sampling loop:
//
//   - Events: sensor samples, key presses, resizes, quit and snapshot requests
//   - Commands: renderer calls and snapshot replies requested by the reducer
//   - Reduce(): computes next state + commands, without performing I/O
//
// The loop is responsible for executing Commands; the reducer never calls a
// renderer or touches a channel.

// ReducerConfig holds the policy knobs used by Reduce.
type ReducerConfig struct {
	// Threshold is the debounce band in raw sensor units.
	Threshold int

	// WindowWidth/WindowHeight is the viewport used when leaving fullscreen.
	WindowWidth  int
	WindowHeight int
}

// ReduceResult is the output of Reduce(): next state plus Commands to execute
// and Broadcasts for websocket clients.
type ReduceResult struct {
	State      *LoopState
	Commands   []Command
	Broadcasts []StateBroadcast
}

// Reduce is the pure reducer:
//
// Rules:
// - Must not perform I/O
// - Must not block
// - Must not mutate anything outside the returned state
func Reduce(s *LoopState, e Event, cfg ReducerConfig) ReduceResult {
	if s == nil {
		s = &LoopState{}
	}

	var cmds []Command
	var bcasts []StateBroadcast

	switch ev := e.(type) {
	case SampleRead:
		s.Stats.Samples++
		s.LastSample = ev.At

		ox, oy := s.Baseline.Offset(ev.Sample)
		s.LastOffset = Rotation{X: ox, Y: oy}

		next, changed := debounce(s.Rotation, ox, oy, cfg.Threshold)
		if !changed {
			break
		}
		s.Rotation = next
		s.Stats.Redraws++
		cmds = append(cmds, CmdDraw{Rotation: next, At: ev.At})
		bcasts = append(bcasts, BroadcastRotationChanged{
			Rotation: next,
			Offset:   s.LastOffset,
			At:       ev.At,
		})

	case KeyPressed:
		switch ev.Key {
		case keyToggleFullscreen:
			cmds = append(cmds, toggleFullscreen(s, cfg)...)
		case keyQuit, keyEscape:
			s.RequestQuit("key")
		}

	case ToggleFullscreen:
		cmds = append(cmds, toggleFullscreen(s, cfg)...)

	case Resized:
		h := ev.Height
		if h == 0 {
			h = 1
		}
		s.View.Width = ev.Width
		s.View.Height = h
		s.Stats.Redraws++
		cmds = append(cmds,
			CmdResize{Width: ev.Width, Height: h},
			CmdDraw{Rotation: s.Rotation, At: time.Now()},
		)

	case QuitRequested:
		s.RequestQuit(ev.Reason)

	case RequestStateSnapshot:
		cmds = append(cmds, CmdPublishStateSnapshot{
			Reply:    ev.Reply,
			Snapshot: s.Snapshot(),
		})

	default:
		// Unknown event type: no-op.
	}

	return ReduceResult{
		State:      s,
		Commands:   cmds,
		Broadcasts: bcasts,
	}
}

// toggleFullscreen flips the fullscreen flag and redraws.
func toggleFullscreen(s *LoopState, cfg ReducerConfig) []Command {
	s.View.Fullscreen = !s.View.Fullscreen
	s.Stats.Redraws++

	cmds := []Command{CmdSetFullscreen{Fullscreen: s.View.Fullscreen}}
	if !s.View.Fullscreen {
		s.View.Width = cfg.WindowWidth
		s.View.Height = cfg.WindowHeight
		cmds = append(cmds, CmdResize{Width: cfg.WindowWidth, Height: cfg.WindowHeight})
	}
	return append(cmds, CmdDraw{Rotation: s.Rotation, At: time.Now()})
}
