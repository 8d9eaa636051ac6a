package explore

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/picarx-labs/rover/logging"
)

// SystemStatus is a reading of the rover's own health.
type SystemStatus struct {
	BatteryPct   float64 `json:"battery_pct"`
	TemperatureC float64 `json:"temperature_c"`
	// CPUPct is reported but never raises an event.
	CPUPct float64 `json:"cpu_pct"`
}

// A SystemSensor reports battery and temperature.
type SystemSensor interface {
	SystemStatus(ctx context.Context) (SystemStatus, error)
}

// Thresholds at which a system reading becomes a safety event.
type Thresholds struct {
	BatteryCriticalPct   float64
	TemperatureCriticalC float64
}

// Evaluate returns the safety event status calls for, if any. A low battery takes precedence.
func (t Thresholds) Evaluate(status SystemStatus) (SafetyEvent, bool) {
	switch {
	case status.BatteryPct <= t.BatteryCriticalPct:
		return SafetyEvent{Kind: SafetyBatteryCritical, Value: status.BatteryPct}, true
	case t.TemperatureCriticalC > 0 && status.TemperatureC >= t.TemperatureCriticalC:
		return SafetyEvent{Kind: SafetyTemperatureCritical, Value: status.TemperatureC}, true
	}
	return SafetyEvent{}, false
}

// CheckSafeToStart fails when the rover is already in a critical condition.
func CheckSafeToStart(ctx context.Context, sensor SystemSensor, t Thresholds) error {
	status, err := sensor.SystemStatus(ctx)
	if err != nil {
		return errors.Wrap(err, "reading system status")
	}
	if ev, critical := t.Evaluate(status); critical {
		return errors.Errorf("unsafe to start: %s", ev.reason())
	}
	return nil
}

// Monitor polls a SystemSensor and raises a safety event when a reading turns critical. It raises
// one event per excursion and rearms once readings are normal again.
type Monitor struct {
	sensor     SystemSensor
	thresholds Thresholds
	interval   time.Duration
	clock      clock.Clock
	sink       func(SafetyEvent)
	logger     logging.Logger
	errLog     rate.Sometimes

	tripped bool
}

// NewMonitor returns a monitor. A nil clock uses the wall clock.
func NewMonitor(
	sensor SystemSensor,
	t Thresholds,
	interval time.Duration,
	clk clock.Clock,
	sink func(SafetyEvent),
	logger logging.Logger,
) *Monitor {
	if clk == nil {
		clk = clock.New()
	}
	return &Monitor{
		sensor:     sensor,
		thresholds: t,
		interval:   interval,
		clock:      clk,
		sink:       sink,
		logger:     logger,
		errLog:     rate.Sometimes{Interval: 5 * time.Second},
	}
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.Ticker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Poll(ctx)
		}
	}
}

// Poll takes one reading.
func (m *Monitor) Poll(ctx context.Context) {
	status, err := m.sensor.SystemStatus(ctx)
	if err != nil {
		m.errLog.Do(func() {
			m.logger.Warnw("system status read failed", "error", err)
		})
		return
	}
	m.logger.Debugw("system status", "battery_pct", status.BatteryPct, "temperature_c", status.TemperatureC,
		"cpu_pct", status.CPUPct)
	ev, critical := m.thresholds.Evaluate(status)
	if !critical {
		if m.tripped {
			m.logger.Infow("system status back to normal", "battery_pct", status.BatteryPct,
				"temperature_c", status.TemperatureC)
		}
		m.tripped = false
		return
	}
	if m.tripped {
		return
	}
	m.tripped = true
	m.logger.Warnw("system critical", "event", ev.Kind, "value", ev.Value)
	m.sink(ev)
}
