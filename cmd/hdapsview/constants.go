package main

// Sensor defaults
const (
	defaultSensorPath     = "/sys/devices/platform/hdaps/position"
	defaultPollIntervalMS = 50 // Yield between polls (ms)
	defaultThreshold      = 4  // Debounce band in raw sensor units

	// The position file is a short "(x,y)\n" line; one read of this size
	// always covers it.
	sensorReadBufLen = 32
)

// Display defaults
const (
	defaultWindowWidth  = 640
	defaultWindowHeight = 480

	// Terminal cells are roughly twice as tall as wide; the windowed viewport
	// in terminal mode is scaled down from the pixel size by these factors.
	termCellWidthPx  = 8
	termCellHeightPx = 16

	defaultFrameWidth  = 640
	defaultFrameHeight = 480
)

// Key codes delivered by the input shell
const (
	keyToggleFullscreen = 'f'
	keyQuit             = 'q'
	keyEscape           = 27
)

// Service defaults
const (
	defaultHTTPListen = "127.0.0.1:8091"
	defaultIPCSocket  = "/tmp/hdapsview.sock"
	defaultMQTTBroker = "tcp://localhost:1883"
	defaultMQTTTopic  = "hdaps/rotation"
	defaultMQTTClient = "hdapsview"

	// Events channel between producers (shell, IPC, HTTP) and the sampling loop.
	eventQueueLen = 64
)
