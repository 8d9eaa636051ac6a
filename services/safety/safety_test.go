package safety

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/picarx-labs/rover/logging"
)

var (
	allStates = []State{Idle, Autonomous, Manual, Avoiding, EmergencyStopped}
	allEvents = []Event{
		Explore, Disengage, ManualInput, ObstacleBlocked, ReplanSucceeded, ExplorationComplete,
		ExplorationStalled, EmergencyStop, BatteryCritical, TemperatureCritical, Reset,
	}
)

func TestNext(t *testing.T) {
	for _, tc := range []struct {
		from  State
		event Event
		to    State
		ok    bool
	}{
		{Idle, Explore, Autonomous, true},
		{Idle, ManualInput, Manual, true},
		{Idle, ObstacleBlocked, Idle, false},
		{Idle, Reset, Idle, false},
		{Autonomous, ManualInput, Manual, true},
		{Autonomous, ObstacleBlocked, Avoiding, true},
		{Autonomous, ExplorationComplete, Idle, true},
		{Autonomous, ExplorationStalled, Idle, true},
		{Autonomous, Disengage, Idle, true},
		{Autonomous, Explore, Autonomous, false},
		{Manual, Explore, Autonomous, true},
		{Manual, ObstacleBlocked, Avoiding, true},
		{Manual, ExplorationComplete, Manual, false},
		{Avoiding, ReplanSucceeded, Autonomous, true},
		{Avoiding, ManualInput, Manual, true},
		{Avoiding, ExplorationStalled, Idle, true},
		{Avoiding, Explore, Avoiding, false},
		{EmergencyStopped, Reset, Idle, true},
		{EmergencyStopped, Explore, EmergencyStopped, false},
		{EmergencyStopped, ManualInput, EmergencyStopped, false},
	} {
		t.Run(tc.from.String()+"_"+tc.event.String(), func(t *testing.T) {
			to, ok := Next(tc.from, tc.event)
			test.That(t, to, test.ShouldEqual, tc.to)
			test.That(t, ok, test.ShouldEqual, tc.ok)
		})
	}
}

func TestNextIsTotal(t *testing.T) {
	for _, s := range allStates {
		for _, e := range allEvents {
			to, ok := Next(s, e)
			if !ok {
				test.That(t, to, test.ShouldEqual, s)
			}
			if e.Critical() {
				test.That(t, to, test.ShouldEqual, EmergencyStopped)
				test.That(t, ok, test.ShouldBeTrue)
			}
			if s == EmergencyStopped && e != Reset {
				test.That(t, to, test.ShouldEqual, EmergencyStopped)
			}
		}
	}
}

func TestArbiter(t *testing.T) {
	clk := clock.NewMock()
	logger, logs := logging.NewObservedTestLogger(t)
	a := NewArbiter(clk, logger)
	test.That(t, a.State(), test.ShouldEqual, Idle)
	test.That(t, a.Reason(), test.ShouldEqual, "startup")
	test.That(t, a.PermitsMotion(SourceAutonomous), test.ShouldBeFalse)
	test.That(t, a.PermitsMotion(SourceManual), test.ShouldBeFalse)

	clk.Add(time.Second)
	test.That(t, a.Handle(Explore, "user"), test.ShouldBeTrue)
	test.That(t, a.State(), test.ShouldEqual, Autonomous)
	test.That(t, a.ShouldPlan(), test.ShouldBeTrue)
	test.That(t, a.PermitsMotion(SourceAutonomous), test.ShouldBeTrue)
	test.That(t, a.PermitsMotion(SourceManual), test.ShouldBeFalse)
	test.That(t, a.LastTransition(), test.ShouldResemble, Transition{
		From: Idle, To: Autonomous, Event: Explore, Reason: "user", At: clk.Now(),
	})

	test.That(t, a.Handle(ObstacleBlocked, "front 5cm"), test.ShouldBeTrue)
	test.That(t, a.State(), test.ShouldEqual, Avoiding)
	test.That(t, a.ShouldPlan(), test.ShouldBeTrue)
	test.That(t, a.PermitsMotion(SourceAutonomous), test.ShouldBeFalse)
	test.That(t, a.Handle(ReplanSucceeded, "new path"), test.ShouldBeTrue)
	test.That(t, a.State(), test.ShouldEqual, Autonomous)

	test.That(t, a.Handle(ManualInput, "forward"), test.ShouldBeTrue)
	test.That(t, a.PermitsMotion(SourceManual), test.ShouldBeTrue)
	test.That(t, a.PermitsMotion(SourceAutonomous), test.ShouldBeFalse)
	err := a.CheckMotion(SourceAutonomous)
	test.That(t, errors.Is(err, ErrMotionRejected), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "manual")

	test.That(t, a.Handle(BatteryCritical, "battery 5%"), test.ShouldBeTrue)
	test.That(t, a.State(), test.ShouldEqual, EmergencyStopped)
	test.That(t, a.Reason(), test.ShouldEqual, "battery 5%")
	test.That(t, logs.FilterMessage("emergency stop").Len(), test.ShouldEqual, 1)
	for _, e := range allEvents {
		if e == Reset || e.Critical() {
			continue
		}
		test.That(t, a.Handle(e, "ignored"), test.ShouldBeFalse)
		test.That(t, a.PermitsMotion(SourceAutonomous), test.ShouldBeFalse)
		test.That(t, a.PermitsMotion(SourceManual), test.ShouldBeFalse)
	}
	test.That(t, a.Handle(Reset, "operator"), test.ShouldBeTrue)
	test.That(t, a.State(), test.ShouldEqual, Idle)
}

func TestArbiterManualAvoiding(t *testing.T) {
	a := NewArbiter(clock.NewMock(), logging.NewTestLogger(t))
	test.That(t, a.Handle(ManualInput, "forward"), test.ShouldBeTrue)
	test.That(t, a.Handle(ObstacleBlocked, "wall"), test.ShouldBeTrue)
	test.That(t, a.State(), test.ShouldEqual, Avoiding)
	test.That(t, a.ShouldPlan(), test.ShouldBeFalse)

	test.That(t, a.Handle(ReplanSucceeded, "path"), test.ShouldBeFalse)
	test.That(t, a.State(), test.ShouldEqual, Avoiding)

	test.That(t, a.Handle(ManualInput, "backward"), test.ShouldBeTrue)
	test.That(t, a.State(), test.ShouldEqual, Manual)
}
