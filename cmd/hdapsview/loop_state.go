package main

import "time"

// LoopState is the sampling loop's state container.
//
// It is owned by the loop goroutine: the reducer is the only code that
// mutates it, and other goroutines only ever see StateSnapshot copies.
type LoopState struct {
	// Baseline is fixed at construction and never reassigned.
	Baseline Baseline

	// Rotation is the displayed, debounced offset.
	Rotation Rotation

	// LastOffset is the raw offset of the most recent sample (not debounced).
	LastOffset Rotation
	LastSample time.Time

	// View is presentation state driven by the input shell.
	View ViewState

	Stats LoopStats

	// QuitRequested is set once any quit source fires; the loop stops after
	// the current iteration's commands have run.
	QuitRequested bool
	QuitReason    string
}

// ViewState tracks what the renderer was last told about the viewport.
type ViewState struct {
	Fullscreen bool
	Width      int
	Height     int
}

// LoopStats are monotonically increasing counters kept for snapshots.
type LoopStats struct {
	Samples uint64
	Redraws uint64
}

// NewLoopState creates the initial state from the baseline sample.
// Rotation starts at (0,0).
func NewLoopState(rest Sample, fullscreen bool) *LoopState {
	return &LoopState{
		Baseline: Baseline{X: rest.X, Y: rest.Y},
		View:     ViewState{Fullscreen: fullscreen},
	}
}

// StateSnapshot is a point-in-time copy of LoopState for readers outside the loop.
type StateSnapshot struct {
	Baseline   Baseline  `json:"baseline"`
	Rotation   Rotation  `json:"rotation"`
	LastOffset Rotation  `json:"last_offset"`
	LastSample time.Time `json:"last_sample"`
	Fullscreen bool      `json:"fullscreen"`
	Samples    uint64    `json:"samples"`
	Redraws    uint64    `json:"redraws"`
}

// Snapshot copies the fields exposed to other goroutines.
func (s *LoopState) Snapshot() StateSnapshot {
	return StateSnapshot{
		Baseline:   s.Baseline,
		Rotation:   s.Rotation,
		LastOffset: s.LastOffset,
		LastSample: s.LastSample,
		Fullscreen: s.View.Fullscreen,
		Samples:    s.Stats.Samples,
		Redraws:    s.Stats.Redraws,
	}
}

// RequestQuit records a quit request. Only the first reason is kept.
// This is intended to be called only by the loop goroutine (single-owner).
func (s *LoopState) RequestQuit(reason string) {
	if s.QuitRequested {
		return
	}
	s.QuitRequested = true
	s.QuitReason = reason
}
