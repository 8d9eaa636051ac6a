package explore

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/picarx-labs/rover/logging"
)

type statusFunc func() (SystemStatus, error)

func (f statusFunc) SystemStatus(ctx context.Context) (SystemStatus, error) { return f() }

var thresholds = Thresholds{BatteryCriticalPct: 10, TemperatureCriticalC: 80}

func TestThresholds(t *testing.T) {
	_, critical := thresholds.Evaluate(SystemStatus{BatteryPct: 50, TemperatureC: 40})
	test.That(t, critical, test.ShouldBeFalse)

	ev, critical := thresholds.Evaluate(SystemStatus{BatteryPct: 10, TemperatureC: 90})
	test.That(t, critical, test.ShouldBeTrue)
	test.That(t, ev, test.ShouldResemble, SafetyEvent{Kind: SafetyBatteryCritical, Value: 10})

	ev, critical = thresholds.Evaluate(SystemStatus{BatteryPct: 60, TemperatureC: 85})
	test.That(t, critical, test.ShouldBeTrue)
	test.That(t, ev.Kind, test.ShouldEqual, SafetyTemperatureCritical)
}

func TestCheckSafeToStart(t *testing.T) {
	ok := statusFunc(func() (SystemStatus, error) { return SystemStatus{BatteryPct: 80, TemperatureC: 30}, nil })
	test.That(t, CheckSafeToStart(context.Background(), ok, thresholds), test.ShouldBeNil)

	low := statusFunc(func() (SystemStatus, error) { return SystemStatus{BatteryPct: 3, TemperatureC: 30}, nil })
	err := CheckSafeToStart(context.Background(), low, thresholds)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "battery critical")

	broken := statusFunc(func() (SystemStatus, error) { return SystemStatus{}, errors.New("i2c timeout") })
	err = CheckSafeToStart(context.Background(), broken, thresholds)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "i2c timeout")
}

func TestMonitorRaisesOncePerExcursion(t *testing.T) {
	status := SystemStatus{BatteryPct: 50, TemperatureC: 40}
	var events []SafetyEvent
	m := NewMonitor(statusFunc(func() (SystemStatus, error) { return status, nil }), thresholds, 0, nil,
		func(ev SafetyEvent) { events = append(events, ev) }, logging.NewTestLogger(t))

	m.Poll(context.Background())
	test.That(t, events, test.ShouldBeEmpty)

	status.TemperatureC = 81
	m.Poll(context.Background())
	m.Poll(context.Background())
	test.That(t, events, test.ShouldHaveLength, 1)
	test.That(t, events[0].Kind, test.ShouldEqual, SafetyTemperatureCritical)

	status.TemperatureC = 60
	m.Poll(context.Background())
	status.BatteryPct = 5
	m.Poll(context.Background())
	test.That(t, events, test.ShouldHaveLength, 2)
	test.That(t, events[1].Kind, test.ShouldEqual, SafetyBatteryCritical)
}
