package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Events - inputs to the reducer
// ============================================================================
// The sampling loop produces SampleRead itself. Everything else arrives from
// other goroutines (terminal shell, IPC, HTTP, signals) through the events
// channel and is drained by the loop between samples.
// ============================================================================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// SampleRead carries one successful sensor sample.
type SampleRead struct {
	Sample Sample
	At     time.Time
}

func (SampleRead) eventMarker() {}

// KeyPressed is a key event forwarded by the input shell.
type KeyPressed struct {
	Key rune `json:"key"`
}

func (KeyPressed) eventMarker() {}

// Resized reports a new viewport size from the windowing shell.
type Resized struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (Resized) eventMarker() {}

// ToggleFullscreen requests the same reaction as the fullscreen key.
type ToggleFullscreen struct{}

func (ToggleFullscreen) eventMarker() {}

// QuitRequested asks the loop to stop after the current iteration.
type QuitRequested struct {
	Reason string `json:"reason,omitempty"`
}

func (QuitRequested) eventMarker() {}

// RequestStateSnapshot asks the loop for a StateSnapshot delivered on Reply.
// Reply should be buffered (size 1); delivery never blocks the loop.
type RequestStateSnapshot struct {
	Reply chan StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support (IPC)
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event.
// Only events that make sense from outside the process are accepted.
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "quit":
		var e QuitRequested
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &e); err != nil {
				return nil, fmt.Errorf("unmarshal QuitRequested: %w", err)
			}
		}
		if e.Reason == "" {
			e.Reason = "ipc"
		}
		return e, nil

	case "toggle_fullscreen":
		return ToggleFullscreen{}, nil

	case "key":
		var e KeyPressed
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal KeyPressed: %w", err)
		}
		return e, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
	case QuitRequested:
		env.Type = "quit"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal QuitRequested: %w", err)
		}
		env.Data = data

	case ToggleFullscreen:
		env.Type = "toggle_fullscreen"

	case KeyPressed:
		env.Type = "key"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal KeyPressed: %w", err)
		}
		env.Data = data

	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	return json.Marshal(env)
}
