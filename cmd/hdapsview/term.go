package main

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"sync"

	"github.com/gdamore/tcell/v2"
)

// ============================================================================
// Terminal renderer + input shell
// ============================================================================
//
// termRenderer owns the tcell screen:
//   - Draw rasterizes the projected laptop into character cells
//   - Resize/SetFullscreen change the drawing area
//   - pollInput turns key and resize events into loop events
//
// Only the sampling loop calls Draw/Resize/SetFullscreen. pollInput runs on
// its own goroutine and only ever sends on the loop's event channel.
// ============================================================================

type termRenderer struct {
	screen tcell.Screen
	logger *slog.Logger

	mu         sync.Mutex
	closed     bool
	fullscreen bool

	// Windowed size in pixels; converted to cells on draw.
	windowWidth  int
	windowHeight int
}

// newTermRenderer initializes the terminal. Call Close to restore it.
func newTermRenderer(fullscreen bool, windowWidth, windowHeight int, logger *slog.Logger) (*termRenderer, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("open terminal: %w", err)
	}
	return newTermRendererWithScreen(screen, fullscreen, windowWidth, windowHeight, logger)
}

func newTermRendererWithScreen(screen tcell.Screen, fullscreen bool, windowWidth, windowHeight int, logger *slog.Logger) (*termRenderer, error) {
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("init terminal: %w", err)
	}
	screen.HideCursor()
	screen.SetStyle(tcell.StyleDefault.Background(toTcellColor(colorBackground)))

	return &termRenderer{
		screen:       screen,
		logger:       logger,
		fullscreen:   fullscreen,
		windowWidth:  windowWidth,
		windowHeight: windowHeight,
	}, nil
}

// Close restores the terminal. Safe to call more than once.
func (t *termRenderer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.screen.Fini()
}

// Resize resynchronizes the screen after a size change. The terminal is
// resized by the user; the drawing area is recomputed on the next Draw.
func (t *termRenderer) Resize(width, height int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errRendererClosed
	}
	t.logger.Debug("terminal resize", "width", width, "height", height)
	t.screen.Sync()
	return nil
}

func (t *termRenderer) SetFullscreen(on bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errRendererClosed
	}
	t.fullscreen = on
	return nil
}

// drawArea returns the cell rectangle the scene occupies, anchored top-left.
func (t *termRenderer) drawArea() (cols, rows int) {
	cols, rows = t.screen.Size()
	if t.fullscreen {
		return cols, rows
	}
	wc := t.windowWidth / termCellWidthPx
	wr := t.windowHeight / termCellHeightPx
	return min(cols, max(wc, 1)), min(rows, max(wr, 1))
}

// Draw clears the screen and paints the whole scene for f.
func (t *termRenderer) Draw(f Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errRendererClosed
	}

	cols, rows := t.drawArea()
	t.screen.Clear()

	cells := rasterizeCells(f, cols, rows)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			style := tcell.StyleDefault.Background(toTcellColor(cells[y*cols+x]))
			t.screen.SetContent(x, y, ' ', nil, style)
		}
	}

	status := fmt.Sprintf(" x=%d y=%d  [f] fullscreen  [q] quit ", f.AngleX, f.AngleY)
	statusStyle := tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorBlack)
	for i, r := range status {
		if i >= cols {
			break
		}
		t.screen.SetContent(i, 0, r, nil, statusStyle)
	}

	t.screen.Show()
	return nil
}

// rasterizeCells paints the scene into a cols*rows grid by sampling each
// cell center in pixel space.
func rasterizeCells(f Frame, cols, rows int) []color.RGBA {
	cells := make([]color.RGBA, cols*rows)
	for i := range cells {
		cells[i] = colorBackground
	}
	if cols <= 0 || rows <= 0 {
		return cells
	}

	width := cols * termCellWidthPx
	height := rows * termCellHeightPx
	quads := ProjectScene(f.AngleX, f.AngleY, width, height)

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			p := Point2{
				X: (float64(x) + 0.5) * termCellWidthPx,
				Y: (float64(y) + 0.5) * termCellHeightPx,
			}
			// Back to front: the last quad containing p wins.
			for _, q := range quads {
				if q.Contains(p) {
					cells[y*cols+x] = q.Color
				}
			}
		}
	}
	return cells
}

func toTcellColor(c color.RGBA) tcell.Color {
	return tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B))
}

// pollInput forwards terminal input to the loop until the screen is closed
// or ctx is canceled.
func (t *termRenderer) pollInput(ctx context.Context, events chan<- Event) {
	for {
		ev := t.screen.PollEvent()
		if ev == nil {
			// Fini was called.
			return
		}

		var out Event
		switch e := ev.(type) {
		case *tcell.EventKey:
			out = keyEvent(e)
		case *tcell.EventResize:
			w, h := e.Size()
			out = Resized{Width: w * termCellWidthPx, Height: h * termCellHeightPx}
		}
		if out == nil {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case events <- out:
		}
	}
}

// keyEvent maps a tcell key to a loop event, or nil for keys the loop does
// not care about.
func keyEvent(e *tcell.EventKey) Event {
	switch e.Key() {
	case tcell.KeyEscape:
		return KeyPressed{Key: keyEscape}
	case tcell.KeyCtrlC:
		return QuitRequested{Reason: "interrupt"}
	case tcell.KeyRune:
		return KeyPressed{Key: e.Rune()}
	}
	return nil
}
