package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for hdapsview.
//
// Keep defaults and validation centralized so the rest of the code can assume
// a well-formed config. Flags override individual fields (see FlagOverrides).
type Config struct {
	Sensor  SensorConfig  `yaml:"sensor"`
	Display DisplayConfig `yaml:"display"`
	HTTP    HTTPConfig    `yaml:"http"`
	IPC     IPCConfig     `yaml:"ipc"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

type SensorConfig struct {
	Source         string `yaml:"source"` // "sysfs" or "sim"
	Path           string `yaml:"path"`
	PollIntervalMS int    `yaml:"poll_interval_ms"`
	Threshold      int    `yaml:"threshold"`
}

type DisplayConfig struct {
	Mode       string `yaml:"mode"` // "terminal" or "headless"
	Fullscreen bool   `yaml:"fullscreen"`

	// Windowed size in pixels, used when leaving fullscreen.
	WindowWidth  int `yaml:"window_width"`
	WindowHeight int `yaml:"window_height"`

	// Size of images served at /frame.png.
	FrameWidth  int `yaml:"frame_width"`
	FrameHeight int `yaml:"frame_height"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type IPCConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SocketPath string `yaml:"socket_path"`
}

type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
	Retained bool   `yaml:"retained"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	// File receives logs in terminal mode (stdout belongs to the screen).
	File string `yaml:"file,omitempty"`
}

// Sensor sources
const (
	SensorSourceSysfs = "sysfs"
	SensorSourceSim   = "sim"
)

// Display modes
const (
	DisplayModeTerminal = "terminal"
	DisplayModeHeadless = "headless"
)

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		Sensor: SensorConfig{
			Source:         SensorSourceSysfs,
			Path:           defaultSensorPath,
			PollIntervalMS: defaultPollIntervalMS,
			Threshold:      defaultThreshold,
		},
		Display: DisplayConfig{
			Mode:         DisplayModeTerminal,
			Fullscreen:   true,
			WindowWidth:  defaultWindowWidth,
			WindowHeight: defaultWindowHeight,
			FrameWidth:   defaultFrameWidth,
			FrameHeight:  defaultFrameHeight,
		},
		HTTP: HTTPConfig{
			Enabled: false,
			Listen:  defaultHTTPListen,
		},
		IPC: IPCConfig{
			Enabled:    true,
			SocketPath: defaultIPCSocket,
		},
		MQTT: MQTTConfig{
			Enabled:  false,
			Broker:   defaultMQTTBroker,
			ClientID: defaultMQTTClient,
			Topic:    defaultMQTTTopic,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
//
// Unknown fields are rejected (helps catch typos) and only one YAML document
// is allowed.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds values from flags that were explicitly set on the
// command line. A nil pointer means "not set"; a non-nil pointer is applied
// even if it holds a zero value.
type FlagOverrides struct {
	SensorSource   *string
	SensorPath     *string
	PollIntervalMS *int
	Threshold      *int

	DisplayMode *string
	Fullscreen  *bool

	HTTPEnabled *bool
	HTTPListen  *string

	IPCEnabled    *bool
	IPCSocketPath *string

	MQTTEnabled *bool
	MQTTBroker  *string
	MQTTTopic   *string

	MetricsEnabled *bool

	LogLevel *string
	LogFile  *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}

	if o.SensorSource != nil {
		cfg.Sensor.Source = *o.SensorSource
	}
	if o.SensorPath != nil {
		cfg.Sensor.Path = *o.SensorPath
	}
	if o.PollIntervalMS != nil {
		cfg.Sensor.PollIntervalMS = *o.PollIntervalMS
	}
	if o.Threshold != nil {
		cfg.Sensor.Threshold = *o.Threshold
	}

	if o.DisplayMode != nil {
		cfg.Display.Mode = *o.DisplayMode
	}
	if o.Fullscreen != nil {
		cfg.Display.Fullscreen = *o.Fullscreen
	}

	if o.HTTPEnabled != nil {
		cfg.HTTP.Enabled = *o.HTTPEnabled
	}
	if o.HTTPListen != nil {
		cfg.HTTP.Listen = *o.HTTPListen
		// Giving a listen address implies wanting the server.
		cfg.HTTP.Enabled = true
	}

	if o.IPCEnabled != nil {
		cfg.IPC.Enabled = *o.IPCEnabled
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}

	if o.MQTTEnabled != nil {
		cfg.MQTT.Enabled = *o.MQTTEnabled
	}
	if o.MQTTBroker != nil {
		cfg.MQTT.Broker = *o.MQTTBroker
	}
	if o.MQTTTopic != nil {
		cfg.MQTT.Topic = *o.MQTTTopic
	}

	if o.MetricsEnabled != nil {
		cfg.Metrics.Enabled = *o.MetricsEnabled
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.LogFile != nil {
		cfg.Logging.File = *o.LogFile
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Sensor
	switch c.Sensor.Source {
	case SensorSourceSysfs:
		if c.Sensor.Path == "" {
			return errors.New("sensor.path must not be empty")
		}
	case SensorSourceSim:
	default:
		return fmt.Errorf("sensor.source must be %q or %q", SensorSourceSysfs, SensorSourceSim)
	}
	if c.Sensor.PollIntervalMS <= 0 || c.Sensor.PollIntervalMS > 10000 {
		return errors.New("sensor.poll_interval_ms must be between 1 and 10000")
	}
	if c.Sensor.Threshold < 0 {
		return errors.New("sensor.threshold must be >= 0")
	}

	// Display
	if c.Display.Mode != DisplayModeTerminal && c.Display.Mode != DisplayModeHeadless {
		return fmt.Errorf("display.mode must be %q or %q", DisplayModeTerminal, DisplayModeHeadless)
	}
	if c.Display.WindowWidth <= 0 || c.Display.WindowHeight <= 0 {
		return errors.New("display.window_width and display.window_height must be > 0")
	}
	if c.Display.FrameWidth <= 0 || c.Display.FrameHeight <= 0 {
		return errors.New("display.frame_width and display.frame_height must be > 0")
	}

	// HTTP
	if c.HTTP.Enabled && c.HTTP.Listen == "" {
		return errors.New("http.enabled is true but http.listen is empty")
	}
	if c.Metrics.Enabled && !c.HTTP.Enabled {
		return errors.New("metrics.enabled requires http.enabled")
	}

	// IPC
	if c.IPC.Enabled && c.IPC.SocketPath == "" {
		return errors.New("ipc.enabled is true but ipc.socket_path is empty")
	}

	// MQTT
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return errors.New("mqtt.enabled is true but mqtt.broker is empty")
		}
		if c.MQTT.Topic == "" {
			return errors.New("mqtt.enabled is true but mqtt.topic is empty")
		}
		if c.MQTT.QoS > 2 {
			return errors.New("mqtt.qos must be 0, 1 or 2")
		}
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// PollInterval returns the sensor yield interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Sensor.PollIntervalMS) * time.Millisecond
}

// ToReducerConfig converts file config into the reducer's policy knobs.
func (c *Config) ToReducerConfig() ReducerConfig {
	return ReducerConfig{
		Threshold:    c.Sensor.Threshold,
		WindowWidth:  c.Display.WindowWidth,
		WindowHeight: c.Display.WindowHeight,
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
