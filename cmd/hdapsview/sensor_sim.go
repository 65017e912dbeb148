package main

import (
	"math"
	"time"
)

// simRest is the level reading reported by the simulated sensor.
const simRest = 500

// simSource is a SensorSource that produces a slow, smooth wobble around a
// rest position. It lets the viewer run on machines without hdaps.
type simSource struct {
	start time.Time
	now   func() time.Time
}

func newSimSource() *simSource {
	return &simSource{start: time.Now(), now: time.Now}
}

func (s *simSource) ReadSample() (Sample, error) {
	elapsed := s.now().Sub(s.start).Seconds()

	return Sample{
		X: simRest + int(math.Round(60*math.Sin(elapsed*0.8))),
		Y: simRest + int(math.Round(40*math.Sin(elapsed*0.5))),
	}, nil
}
