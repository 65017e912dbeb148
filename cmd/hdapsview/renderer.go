package main

import (
	"errors"
	"log/slog"
	"time"
)

// Frame is the value handed to renderers on every draw.
// Renderers must not retain it beyond the call.
type Frame struct {
	AngleX int
	AngleY int
	At     time.Time
}

// Renderer is the display collaborator driven by the sampling loop.
//
// Draw must clear and redraw the whole scene from the frame's angles and
// present the result. There is no partial-update mode.
type Renderer interface {
	Resize(width, height int) error
	Draw(f Frame) error
}

// Shell is implemented by renderers that own a window or terminal and can
// switch between fullscreen and windowed presentation.
type Shell interface {
	SetFullscreen(on bool) error
}

// Sink is a secondary consumer of frames (network, metrics). Sink errors are
// logged and never stop the loop.
type Sink interface {
	Name() string
	Draw(f Frame) error
}

// fanoutRenderer drives one primary renderer plus any number of sinks.
// Errors from the primary are returned; sink errors are logged.
type fanoutRenderer struct {
	primary Renderer
	sinks   []Sink
	logger  *slog.Logger
}

func newFanoutRenderer(primary Renderer, sinks []Sink, logger *slog.Logger) *fanoutRenderer {
	return &fanoutRenderer{primary: primary, sinks: sinks, logger: logger}
}

func (r *fanoutRenderer) Resize(width, height int) error {
	if r.primary == nil {
		return nil
	}
	return r.primary.Resize(width, height)
}

func (r *fanoutRenderer) Draw(f Frame) error {
	var err error
	if r.primary != nil {
		err = r.primary.Draw(f)
	}
	for _, s := range r.sinks {
		if sErr := s.Draw(f); sErr != nil {
			r.logger.Warn("frame sink failed", "sink", s.Name(), "error", sErr)
		}
	}
	return err
}

func (r *fanoutRenderer) SetFullscreen(on bool) error {
	if sh, ok := r.primary.(Shell); ok {
		return sh.SetFullscreen(on)
	}
	return nil
}

// logRenderer is the headless primary renderer: it records each frame in the log.
type logRenderer struct {
	logger *slog.Logger
}

func (r logRenderer) Resize(width, height int) error {
	r.logger.Debug("resize", "width", width, "height", height)
	return nil
}

func (r logRenderer) Draw(f Frame) error {
	r.logger.Info("rotation", "x", f.AngleX, "y", f.AngleY)
	return nil
}

// errRendererClosed is returned by renderers used after shutdown.
var errRendererClosed = errors.New("renderer closed")
