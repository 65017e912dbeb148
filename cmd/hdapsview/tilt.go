package main

// Baseline is the rest ("level") position captured from the first sample.
type Baseline struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rotation is the debounced offset from the baseline that drives the display.
type Rotation struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Offset returns the raw offsets of s from the baseline.
func (b Baseline) Offset(s Sample) (ox, oy int) {
	return s.X - b.X, s.Y - b.Y
}

// debounceAxis applies the per-axis update policy with threshold t.
//
// Two independent checks run in order:
//  1. |offset-prev| > t adopts the offset (real movement left the jitter band).
//  2. |offset| < t snaps to zero (near level is noise).
//
// When both hold, the zero-snap wins because it runs last. Values exactly at
// the threshold trigger neither rule and the axis keeps prev.
func debounceAxis(prev, offset, t int) int {
	next := prev
	if abs(offset-prev) > t {
		next = offset
	}
	if abs(offset) < t {
		next = 0
	}
	return next
}

// debounce applies debounceAxis to both axes and reports whether the
// displayed rotation changed.
func debounce(prev Rotation, ox, oy, t int) (Rotation, bool) {
	next := Rotation{
		X: debounceAxis(prev.X, ox, t),
		Y: debounceAxis(prev.Y, oy, t),
	}
	return next, next != prev
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
