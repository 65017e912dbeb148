package main

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// loopMetrics exposes sampling loop counters to Prometheus.
// A nil *loopMetrics is valid and records nothing.
type loopMetrics struct {
	registry *prometheus.Registry

	samples      prometheus.Counter
	sensorErrors *prometheus.CounterVec
	redraws      prometheus.Counter
	rotation     *prometheus.GaugeVec
	offset       *prometheus.GaugeVec
}

func newLoopMetrics() *loopMetrics {
	m := &loopMetrics{
		registry: prometheus.NewRegistry(),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hdaps_samples_total",
			Help: "Sensor samples read successfully.",
		}),
		sensorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hdaps_sensor_errors_total",
			Help: "Sensor read errors by kind.",
		}, []string{"kind"}),
		redraws: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hdaps_redraws_total",
			Help: "Frames drawn by the primary renderer.",
		}),
		rotation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hdaps_rotation",
			Help: "Displayed (debounced) rotation per axis.",
		}, []string{"axis"}),
		offset: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hdaps_offset",
			Help: "Raw offset from the rest position per axis.",
		}, []string{"axis"}),
	}
	m.registry.MustRegister(m.samples, m.sensorErrors, m.redraws, m.rotation, m.offset)
	return m
}

// Handler serves the metrics registry.
func (m *loopMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *loopMetrics) observeSample(offset Rotation) {
	if m == nil {
		return
	}
	m.samples.Inc()
	m.offset.With(prometheus.Labels{"axis": "x"}).Set(float64(offset.X))
	m.offset.With(prometheus.Labels{"axis": "y"}).Set(float64(offset.Y))
}

func (m *loopMetrics) observeSensorError(err error) {
	if m == nil {
		return
	}
	kind := "other"
	var se *SensorError
	if errors.As(err, &se) {
		kind = se.Kind.String()
	}
	m.sensorErrors.With(prometheus.Labels{"kind": kind}).Inc()
}

// Name implements Sink; the metrics sink sees every drawn frame.
func (m *loopMetrics) Name() string { return "metrics" }

func (m *loopMetrics) Draw(f Frame) error {
	m.redraws.Inc()
	m.rotation.With(prometheus.Labels{"axis": "x"}).Set(float64(f.AngleX))
	m.rotation.With(prometheus.Labels{"axis": "y"}).Set(float64(f.AngleY))
	return nil
}
