//go:build linux

package main

import (
	"log/slog"
	"syscall"

	"golang.org/x/sys/unix"
)

// sysfsSource reads the hdaps position attribute.
//
// sysfs attributes are seekable, but seeking back to 0 and reading again does
// not return a fresh sample, so every call does open/read/close.
type sysfsSource struct {
	path   string
	logger *slog.Logger
}

func newSysfsSource(path string, logger *slog.Logger) *sysfsSource {
	return &sysfsSource{path: path, logger: logger}
}

// ReadSample performs exactly one read(2) of up to sensorReadBufLen bytes.
func (s *sysfsSource) ReadSample() (Sample, error) {
	fd, err := unix.Open(s.path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return Sample{}, &SensorError{Kind: KindSourceUnavailable, Path: s.path, Err: err}
	}
	defer func() {
		if err := unix.Close(fd); err != nil {
			s.logger.Warn("sensor close failed", "path", s.path, "error", err)
		}
	}()

	buf := make([]byte, sensorReadBufLen)
	var n int
	for {
		n, err = unix.Read(fd, buf)
		if err == syscall.EINTR {
			continue
		}
		break
	}
	if err != nil {
		return Sample{}, &SensorError{Kind: KindReadFailure, Path: s.path, Err: err}
	}
	if n == 0 {
		return Sample{}, &SensorError{Kind: KindReadFailure, Path: s.path, Err: errEmptyRead}
	}

	sample, err := parsePosition(buf[:n])
	if err != nil {
		return Sample{}, &SensorError{Kind: KindParseFailure, Path: s.path, Err: err}
	}
	return sample, nil
}
