package main

import (
	"bytes"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

// renderFramePNG draws the scene for f into a width*height PNG.
func renderFramePNG(w io.Writer, f Frame, width, height int) error {
	c := gg.NewContext(width, height)

	c.SetColor(colorBackground)
	c.Clear()

	for _, q := range ProjectScene(f.AngleX, f.AngleY, width, height) {
		c.SetColor(q.Color)
		c.MoveTo(q.P[0].X, q.P[0].Y)
		for _, p := range q.P[1:] {
			c.LineTo(p.X, p.Y)
		}
		c.ClosePath()
		c.Fill()
	}

	c.SetFontFace(basicfont.Face7x13)
	c.SetRGB(1, 1, 1)
	c.DrawString(fmt.Sprintf("x=%d y=%d", f.AngleX, f.AngleY), 6, 16)

	return png.Encode(w, c.Image())
}

// frameHandler serves the current rotation as a PNG image.
//
// Query parameters w and h override the configured size (bounded).
type frameHandler struct {
	events chan<- Event
	width  int
	height int
	logger *slog.Logger
}

const maxFrameDim = 4096

func (h *frameHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	width, err := queryDim(r, "w", h.width)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	height, err := queryDim(r, "h", h.height)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	snap, err := requestSnapshot(r.Context(), h.events)
	if err != nil {
		h.logger.Warn("frame snapshot request failed", "error", err)
		http.Error(w, "state unavailable", http.StatusServiceUnavailable)
		return
	}

	var buf bytes.Buffer
	f := Frame{AngleX: snap.Rotation.X, AngleY: snap.Rotation.Y, At: snap.LastSample}
	if err := renderFramePNG(&buf, f, width, height); err != nil {
		h.logger.Warn("frame render failed", "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(buf.Bytes())
}

func queryDim(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > maxFrameDim {
		return 0, fmt.Errorf("%s must be an integer in 1..%d", key, maxFrameDim)
	}
	return n, nil
}
