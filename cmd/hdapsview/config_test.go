package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "hdapsview.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.PollInterval() != 50*time.Millisecond {
		t.Fatalf("PollInterval = %v, want 50ms", cfg.PollInterval())
	}
	rc := cfg.ToReducerConfig()
	if rc.Threshold != 4 || rc.WindowWidth != 640 || rc.WindowHeight != 480 {
		t.Fatalf("reducer config = %+v", rc)
	}
}

func TestLoadConfigFile_OverlaysDefaults(t *testing.T) {
	p := writeConfig(t, `
sensor:
  source: sim
  threshold: 6
display:
  mode: headless
http:
  enabled: true
  listen: 127.0.0.1:9999
`)
	cfg, err := LoadConfigFile(p)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.Sensor.Source != SensorSourceSim || cfg.Sensor.Threshold != 6 {
		t.Fatalf("sensor = %+v", cfg.Sensor)
	}
	// Unset fields keep their defaults.
	if cfg.Sensor.PollIntervalMS != defaultPollIntervalMS || cfg.Sensor.Path != defaultSensorPath {
		t.Fatalf("sensor defaults lost: %+v", cfg.Sensor)
	}
	if cfg.Display.Mode != DisplayModeHeadless || !cfg.Display.Fullscreen {
		t.Fatalf("display = %+v", cfg.Display)
	}
	if !cfg.HTTP.Enabled || cfg.HTTP.Listen != "127.0.0.1:9999" {
		t.Fatalf("http = %+v", cfg.HTTP)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadConfigFile_RejectsUnknownField(t *testing.T) {
	p := writeConfig(t, "sensor:\n  treshold: 4\n")
	if _, err := LoadConfigFile(p); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadConfigFile_RejectsTrailingDocument(t *testing.T) {
	p := writeConfig(t, "sensor:\n  threshold: 4\n---\nsensor:\n  threshold: 5\n")
	_, err := LoadConfigFile(p)
	if err == nil || !strings.Contains(err.Error(), "trailing document") {
		t.Fatalf("err = %v, want trailing document error", err)
	}
}

func TestLoadConfigFile_Missing(t *testing.T) {
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := LoadConfigFile(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestFlagOverrides_Apply(t *testing.T) {
	cfg := DefaultConfig()

	threshold := 0
	listen := "0.0.0.0:8091"
	level := "debug"
	FlagOverrides{
		Threshold:  &threshold,
		HTTPListen: &listen,
		LogLevel:   &level,
	}.Apply(&cfg)

	if cfg.Sensor.Threshold != 0 {
		t.Fatalf("zero-valued override not applied: %d", cfg.Sensor.Threshold)
	}
	if !cfg.HTTP.Enabled || cfg.HTTP.Listen != listen {
		t.Fatalf("http = %+v, want enabled on %s", cfg.HTTP, listen)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("log level = %q", cfg.Logging.Level)
	}
	// Untouched fields keep defaults.
	if cfg.Sensor.PollIntervalMS != defaultPollIntervalMS {
		t.Fatalf("poll interval changed: %d", cfg.Sensor.PollIntervalMS)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad source", func(c *Config) { c.Sensor.Source = "usb" }, "sensor.source"},
		{"empty path", func(c *Config) { c.Sensor.Path = "" }, "sensor.path"},
		{"zero interval", func(c *Config) { c.Sensor.PollIntervalMS = 0 }, "poll_interval_ms"},
		{"negative threshold", func(c *Config) { c.Sensor.Threshold = -1 }, "threshold"},
		{"bad display", func(c *Config) { c.Display.Mode = "gl" }, "display.mode"},
		{"bad window", func(c *Config) { c.Display.WindowHeight = 0 }, "window"},
		{"metrics without http", func(c *Config) { c.Metrics.Enabled = true }, "metrics.enabled"},
		{"ipc without socket", func(c *Config) { c.IPC.SocketPath = "" }, "ipc"},
		{"mqtt without topic", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Topic = "" }, "mqtt.topic"},
		{"mqtt bad qos", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() = nil, want error mentioning %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestConfigValidate_SimIgnoresPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sensor.Source = SensorSourceSim
	cfg.Sensor.Path = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandPath("~/x.yaml"); got != filepath.Join(home, "x.yaml") {
		t.Fatalf("ExpandPath(~/x.yaml) = %q", got)
	}
	if got := ExpandPath("/abs/x"); got != "/abs/x" {
		t.Fatalf("ExpandPath(/abs/x) = %q", got)
	}
	if got := ExpandPath(""); got != "" {
		t.Fatalf("ExpandPath(\"\") = %q", got)
	}
}
