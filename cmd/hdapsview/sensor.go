package main

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
)

// Sample is one raw (x,y) tilt reading from the sensor.
type Sample struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// SensorSource performs one blocking read of the current tilt sample.
//
// Implementations must not keep the underlying source open between calls:
// every ReadSample acquires the source, reads once, and releases it.
// Any error returned is terminal for the sampling loop.
type SensorSource interface {
	ReadSample() (Sample, error)
}

// ============================================================================
// Error taxonomy
// ============================================================================

// SensorErrorKind classifies why a sample could not be produced.
type SensorErrorKind int

const (
	KindSourceUnavailable SensorErrorKind = iota + 1
	KindReadFailure
	KindParseFailure
)

func (k SensorErrorKind) String() string {
	switch k {
	case KindSourceUnavailable:
		return "source_unavailable"
	case KindReadFailure:
		return "read_failure"
	case KindParseFailure:
		return "parse_failure"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is checks against a *SensorError.
var (
	ErrSourceUnavailable = errors.New("sensor source unavailable")
	ErrReadFailure       = errors.New("sensor read failed")
	ErrParseFailure      = errors.New("sensor payload malformed")
)

// SensorError is returned by every SensorSource implementation in this package.
type SensorError struct {
	Kind SensorErrorKind
	Path string
	Err  error // underlying cause; may be nil for empty reads
}

func (e *SensorError) Error() string {
	msg := e.sentinel().Error()
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SensorError) Unwrap() error { return e.Err }

// Is matches the sentinel for this error's kind.
func (e *SensorError) Is(target error) bool {
	return target == e.sentinel()
}

// NotExist reports whether the source is unavailable because it does not exist
// (usually: the hdaps kernel module is not loaded).
func (e *SensorError) NotExist() bool {
	return e.Kind == KindSourceUnavailable && errors.Is(e.Err, fs.ErrNotExist)
}

func (e *SensorError) sentinel() error {
	switch e.Kind {
	case KindSourceUnavailable:
		return ErrSourceUnavailable
	case KindReadFailure:
		return ErrReadFailure
	default:
		return ErrParseFailure
	}
}

// errEmptyRead is the cause recorded when the source returns zero bytes.
var errEmptyRead = errors.New("unexpectedly read zero bytes")

// sensorDiagnostic returns the user-facing line printed when the loop stops
// because of err.
func sensorDiagnostic(err error) string {
	var se *SensorError
	if !errors.As(err, &se) {
		return err.Error()
	}
	if se.NotExist() {
		return fmt.Sprintf("file %s not found. Is the hdaps kernel module loaded?", se.Path)
	}
	return se.Error()
}

// ============================================================================
// Payload parsing
// ============================================================================

// parsePosition decodes the "(x,y)" text returned by the position file.
// One trailing newline is accepted; spaces around the numbers are tolerated.
func parsePosition(b []byte) (Sample, error) {
	b = bytes.TrimSuffix(b, []byte("\n"))
	if len(b) < 2 || b[0] != '(' || b[len(b)-1] != ')' {
		return Sample{}, fmt.Errorf("want \"(x,y)\", got %q", b)
	}

	fields := bytes.Split(b[1:len(b)-1], []byte(","))
	if len(fields) != 2 {
		return Sample{}, fmt.Errorf("want 2 fields, got %d in %q", len(fields), b)
	}

	x, err := strconv.Atoi(string(bytes.TrimSpace(fields[0])))
	if err != nil {
		return Sample{}, fmt.Errorf("x: %w", err)
	}
	y, err := strconv.Atoi(string(bytes.TrimSpace(fields[1])))
	if err != nil {
		return Sample{}, fmt.Errorf("y: %w", err)
	}

	return Sample{X: x, Y: y}, nil
}
