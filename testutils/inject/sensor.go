package inject

import (
	"context"

	"github.com/picarx-labs/rover/components/sensor/proximity"
)

// Sensor is an injected proximity sensor.
type Sensor struct {
	proximity.Sensor
	ReadingsFunc func(ctx context.Context) (proximity.Reading, error)
}

// NewSensor returns a new injected sensor wrapping an optional real sensor.
func NewSensor(s proximity.Sensor) *Sensor {
	return &Sensor{Sensor: s}
}

// Readings calls the injected Readings or the real version.
func (s *Sensor) Readings(ctx context.Context) (proximity.Reading, error) {
	if s.ReadingsFunc == nil {
		return s.Sensor.Readings(ctx)
	}
	return s.ReadingsFunc(ctx)
}
