package main

import (
	"fmt"
	"log/slog"
)

// runEffect executes a single reducer-emitted Command against the renderer.
//
// Design rules:
// - This function is allowed to perform I/O.
// - It must never call Reduce() directly.
// - A non-nil error means the display can no longer be driven and the loop must stop.
func runEffect(r Renderer, cmd Command, logger *slog.Logger) error {
	switch c := cmd.(type) {
	case CmdDraw:
		if r == nil {
			return nil
		}
		if err := r.Draw(Frame{AngleX: c.Rotation.X, AngleY: c.Rotation.Y, At: c.At}); err != nil {
			return fmt.Errorf("draw: %w", err)
		}

	case CmdResize:
		if r == nil {
			return nil
		}
		if err := r.Resize(c.Width, c.Height); err != nil {
			return fmt.Errorf("resize: %w", err)
		}

	case CmdSetFullscreen:
		sh, ok := r.(Shell)
		if !ok {
			logger.Debug("renderer has no fullscreen mode", "fullscreen", c.Fullscreen)
			return nil
		}
		if err := sh.SetFullscreen(c.Fullscreen); err != nil {
			// Presentation-only; the loop keeps running.
			logger.Warn("set fullscreen failed", "fullscreen", c.Fullscreen, "error", err)
		}

	case CmdPublishStateSnapshot:
		if c.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			return nil
		}

		// Never block the loop on a slow requester.
		select {
		case c.Reply <- c.Snapshot:
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	default:
		logger.Warn("unknown command type", "command", cmd.String())
	}

	return nil
}
