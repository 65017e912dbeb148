package main

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParsePosition(t *testing.T) {
	tests := []struct {
		in      string
		want    Sample
		wantErr bool
	}{
		{in: "(512,498)\n", want: Sample{X: 512, Y: 498}},
		{in: "(512,498)", want: Sample{X: 512, Y: 498}},
		{in: "(-3,7)\n", want: Sample{X: -3, Y: 7}},
		{in: "( 10 , -20 )\n", want: Sample{X: 10, Y: -20}},
		{in: "(0,0)\n", want: Sample{}},

		{in: "", wantErr: true},
		{in: "\n", wantErr: true},
		{in: "512,498\n", wantErr: true},
		{in: "(512;498)\n", wantErr: true},
		{in: "(512,498,1)\n", wantErr: true},
		{in: "(a,1)\n", wantErr: true},
		{in: "(1,)\n", wantErr: true},
		{in: "(512,498)\n\n", wantErr: true},
		{in: "(512,4", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parsePosition([]byte(tt.in))
		if tt.wantErr {
			if err == nil {
				t.Errorf("parsePosition(%q) = %+v, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parsePosition(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parsePosition(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func writePositionFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "position")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return p
}

func TestSysfsSource_ReadsSample(t *testing.T) {
	src := newSysfsSource(writePositionFile(t, "(505,491)\n"), discardLogger())

	// Repeated reads reopen the file each time and keep working.
	for i := 0; i < 3; i++ {
		got, err := src.ReadSample()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if got != (Sample{X: 505, Y: 491}) {
			t.Fatalf("read %d: got %+v", i, got)
		}
	}
}

func TestSysfsSource_MissingFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "does-not-exist")
	_, err := newSysfsSource(p, discardLogger()).ReadSample()

	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
	var se *SensorError
	if !errors.As(err, &se) {
		t.Fatalf("err %T is not *SensorError", err)
	}
	if !se.NotExist() {
		t.Fatalf("NotExist() = false for missing file")
	}

	msg := sensorDiagnostic(err)
	if !strings.Contains(msg, p) || !strings.Contains(msg, "kernel module loaded") {
		t.Fatalf("diagnostic %q should name the path and the kernel module", msg)
	}
}

func TestSysfsSource_EmptyRead(t *testing.T) {
	_, err := newSysfsSource(writePositionFile(t, ""), discardLogger()).ReadSample()

	if !errors.Is(err, ErrReadFailure) {
		t.Fatalf("err = %v, want ErrReadFailure", err)
	}
	if !errors.Is(err, errEmptyRead) {
		t.Fatalf("err = %v, want cause errEmptyRead", err)
	}
}

func TestSysfsSource_Malformed(t *testing.T) {
	_, err := newSysfsSource(writePositionFile(t, "garbage\n"), discardLogger()).ReadSample()

	if !errors.Is(err, ErrParseFailure) {
		t.Fatalf("err = %v, want ErrParseFailure", err)
	}
	if errors.Is(err, ErrReadFailure) || errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("err %v matches the wrong kind", err)
	}
}

func TestSensorDiagnostic_GenericError(t *testing.T) {
	err := &SensorError{Kind: KindReadFailure, Path: "/x", Err: errors.New("boom")}
	msg := sensorDiagnostic(err)
	if strings.Contains(msg, "kernel module") {
		t.Fatalf("read failure diagnostic %q must not blame the module", msg)
	}
	if !strings.Contains(msg, "boom") {
		t.Fatalf("diagnostic %q should include the cause", msg)
	}
}

func TestSensorErrorKind_String(t *testing.T) {
	for k, want := range map[SensorErrorKind]string{
		KindSourceUnavailable: "source_unavailable",
		KindReadFailure:       "read_failure",
		KindParseFailure:      "parse_failure",
	} {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", k, got, want)
		}
	}
}
