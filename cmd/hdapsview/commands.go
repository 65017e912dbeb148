package main

import (
	"fmt"
	"time"
)

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect to be executed by the sampling loop.
// In this codebase, those are renderer calls and snapshot replies.
type Command interface {
	commandMarker()
	String() string
}

// CmdDraw requests a full clear-and-redraw at the given rotation.
type CmdDraw struct {
	Rotation Rotation
	At       time.Time
}

func (CmdDraw) commandMarker() {}
func (c CmdDraw) String() string {
	return fmt.Sprintf("CmdDraw(x=%d, y=%d)", c.Rotation.X, c.Rotation.Y)
}

// CmdResize tells the renderer about a new viewport.
type CmdResize struct {
	Width  int
	Height int
}

func (CmdResize) commandMarker() {}
func (c CmdResize) String() string {
	return fmt.Sprintf("CmdResize(w=%d, h=%d)", c.Width, c.Height)
}

// CmdSetFullscreen switches the shell between fullscreen and windowed.
type CmdSetFullscreen struct {
	Fullscreen bool
}

func (CmdSetFullscreen) commandMarker() {}
func (c CmdSetFullscreen) String() string {
	return fmt.Sprintf("CmdSetFullscreen(%v)", c.Fullscreen)
}

// CmdPublishStateSnapshot delivers a snapshot to a requester.
type CmdPublishStateSnapshot struct {
	Reply    chan StateSnapshot
	Snapshot StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }

// ==============================
// Broadcasts (state fan-out)
// ==============================

// StateBroadcast is a reducer-emitted notification for websocket clients.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastRotationChanged is emitted whenever the displayed rotation changes.
type BroadcastRotationChanged struct {
	Rotation Rotation
	Offset   Rotation
	At       time.Time
}

func (BroadcastRotationChanged) broadcastMarker() {}

// BroadcastShutdown is emitted once when the loop is about to stop.
type BroadcastShutdown struct {
	Reason string
	At     time.Time
}

func (BroadcastShutdown) broadcastMarker() {}
