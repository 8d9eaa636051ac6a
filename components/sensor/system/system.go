// Package system reports the health of the computer the rover runs on: CPU temperature and load
// from the host, battery level from a caller-supplied source.
package system

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/picarx-labs/rover/logging"
	"github.com/picarx-labs/rover/services/explore"
)

// BatteryFunc returns the battery level in percent.
type BatteryFunc func(ctx context.Context) (float64, error)

// ErrNoTemperature is returned when the host exposes no usable temperature sensor.
var ErrNoTemperature = errors.New("no temperature sensors found")

// cpuSensorKeys name the thermal zones that track the processor, in order of preference.
var cpuSensorKeys = []string{"cpu_thermal", "coretemp", "k10temp", "soc_thermal", "cpu"}

var _ explore.SystemSensor = (*Sensor)(nil)

// Sensor reads host temperature and CPU load through gopsutil.
type Sensor struct {
	battery BatteryFunc
	logger  logging.Logger

	// for testing
	temperatures func(ctx context.Context) ([]host.TemperatureStat, error)
	cpuPercent   func(ctx context.Context) ([]float64, error)
}

// NewSensor returns a host sensor. battery may be nil, in which case the battery always reads full.
func NewSensor(battery BatteryFunc, logger logging.Logger) *Sensor {
	return &Sensor{
		battery:      battery,
		logger:       logger,
		temperatures: host.SensorsTemperaturesWithContext,
		cpuPercent: func(ctx context.Context) ([]float64, error) {
			return cpu.PercentWithContext(ctx, 0, false)
		},
	}
}

// SystemStatus reads the processor temperature, the CPU load and the battery.
func (s *Sensor) SystemStatus(ctx context.Context) (explore.SystemStatus, error) {
	var status explore.SystemStatus

	temps, err := s.temperatures(ctx)
	// some hosts return partial results alongside a warning
	if err != nil && len(temps) > 0 {
		s.logger.Debugw("partial temperature readings", "error", err)
	}
	temp, ok := cpuTemperature(temps)
	if !ok {
		if err == nil {
			err = ErrNoTemperature
		}
		return status, errors.Wrap(err, "reading host temperature")
	}
	status.TemperatureC = temp

	if load, err := s.cpuPercent(ctx); err == nil && len(load) > 0 {
		status.CPUPct = load[0]
	}

	status.BatteryPct = 100
	if s.battery != nil {
		pct, err := s.battery(ctx)
		if err != nil {
			return status, errors.Wrap(err, "reading battery")
		}
		status.BatteryPct = pct
	}
	return status, nil
}

// cpuTemperature picks the first processor zone by preference, falling back to the hottest zone.
func cpuTemperature(temps []host.TemperatureStat) (float64, bool) {
	valid := lo.Filter(temps, func(t host.TemperatureStat, _ int) bool {
		return t.Temperature > 0
	})
	if len(valid) == 0 {
		return 0, false
	}
	for _, key := range cpuSensorKeys {
		if t, found := lo.Find(valid, func(t host.TemperatureStat) bool {
			return strings.HasPrefix(strings.ToLower(t.SensorKey), key)
		}); found {
			return t.Temperature, true
		}
	}
	hottest := lo.MaxBy(valid, func(a, b host.TemperatureStat) bool {
		return a.Temperature > b.Temperature
	})
	return hottest.Temperature, true
}
