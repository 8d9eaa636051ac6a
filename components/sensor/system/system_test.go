package system

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/host"
	"go.viam.com/test"

	"github.com/picarx-labs/rover/logging"
)

func newTestSensor(t *testing.T, temps []host.TemperatureStat, tempErr error, battery BatteryFunc) *Sensor {
	t.Helper()
	s := NewSensor(battery, logging.NewTestLogger(t))
	s.temperatures = func(context.Context) ([]host.TemperatureStat, error) { return temps, tempErr }
	s.cpuPercent = func(context.Context) ([]float64, error) { return []float64{37.5}, nil }
	return s
}

func TestSystemStatus(t *testing.T) {
	temps := []host.TemperatureStat{
		{SensorKey: "nvme_composite", Temperature: 71},
		{SensorKey: "cpu_thermal_input", Temperature: 52},
	}
	s := newTestSensor(t, temps, nil, func(context.Context) (float64, error) { return 64, nil })

	status, err := s.SystemStatus(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status.TemperatureC, test.ShouldEqual, 52)
	test.That(t, status.CPUPct, test.ShouldEqual, 37.5)
	test.That(t, status.BatteryPct, test.ShouldEqual, 64)
}

func TestSystemStatusWithoutBattery(t *testing.T) {
	temps := []host.TemperatureStat{
		{SensorKey: "acpitz", Temperature: 45},
		{SensorKey: "nvme_composite", Temperature: 61},
		{SensorKey: "broken", Temperature: 0},
	}
	// partial results still count
	s := newTestSensor(t, temps, errors.New("some sensors unreadable"), nil)

	status, err := s.SystemStatus(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status.TemperatureC, test.ShouldEqual, 61)
	test.That(t, status.BatteryPct, test.ShouldEqual, 100)
}

func TestSystemStatusErrors(t *testing.T) {
	s := newTestSensor(t, nil, nil, nil)
	_, err := s.SystemStatus(context.Background())
	test.That(t, errors.Is(err, ErrNoTemperature), test.ShouldBeTrue)

	s = newTestSensor(t, nil, errors.New("permission denied"), nil)
	_, err = s.SystemStatus(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "permission denied")

	temps := []host.TemperatureStat{{SensorKey: "coretemp_package_id_0", Temperature: 50}}
	s = newTestSensor(t, temps, nil, func(context.Context) (float64, error) {
		return 0, errors.New("adc not responding")
	})
	_, err = s.SystemStatus(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "reading battery")
}
