//go:build !linux

package main

import (
	"errors"
	"io"
	"log/slog"
	"os"
)

// sysfsSource reads a position file with the same one-read-per-open contract
// as the Linux implementation. Useful for pointing at a fixture file.
type sysfsSource struct {
	path   string
	logger *slog.Logger
}

func newSysfsSource(path string, logger *slog.Logger) *sysfsSource {
	return &sysfsSource{path: path, logger: logger}
}

func (s *sysfsSource) ReadSample() (Sample, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return Sample{}, &SensorError{Kind: KindSourceUnavailable, Path: s.path, Err: err}
	}
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("sensor close failed", "path", s.path, "error", err)
		}
	}()

	buf := make([]byte, sensorReadBufLen)
	n, err := f.Read(buf)
	if n == 0 && (err == nil || errors.Is(err, io.EOF)) {
		err = errEmptyRead
	}
	if n == 0 {
		return Sample{}, &SensorError{Kind: KindReadFailure, Path: s.path, Err: err}
	}

	sample, err := parsePosition(buf[:n])
	if err != nil {
		return Sample{}, &SensorError{Kind: KindParseFailure, Path: s.path, Err: err}
	}
	return sample, nil
}
