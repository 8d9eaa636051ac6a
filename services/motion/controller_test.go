package motion

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/picarx-labs/rover/components/base/fake"
	"github.com/picarx-labs/rover/components/sensor/proximity"
	"github.com/picarx-labs/rover/kinematics"
	"github.com/picarx-labs/rover/logging"
	"github.com/picarx-labs/rover/motionplan"
	"github.com/picarx-labs/rover/services/safety"
	"github.com/picarx-labs/rover/spatialmath"
	"github.com/picarx-labs/rover/testutils/inject"
)

type gateFunc func(safety.Source) bool

func (f gateFunc) PermitsMotion(source safety.Source) bool { return f(source) }

func allowAll(safety.Source) bool { return true }

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func clearAhead() proximity.Reading {
	return proximity.Reading{LeftCM: 100, FrontCM: 100, RightCM: 100, Timestamp: now}
}

func newTestController(t *testing.T, model kinematics.Model, gate Gate) (*Controller, *fake.Base) {
	t.Helper()
	logger := logging.NewTestLogger(t)
	b := fake.NewBase(nil, logger)
	return NewController(DefaultConfig(), b, model, gate, logger), b
}

func pathTo(points ...r2.Vec) *motionplan.Path {
	return &motionplan.Path{Waypoints: points}
}

func TestStepIdle(t *testing.T) {
	c, b := newTestController(t, kinematics.Differential{}, gateFunc(allowAll))
	out := c.Step(context.Background(), spatialmath.NewZeroPose(), clearAhead(), now)
	test.That(t, out.Status, test.ShouldEqual, StatusIdle)
	test.That(t, out.Issued, test.ShouldBeFalse)
	test.That(t, b.Commands(), test.ShouldBeEmpty)
	test.That(t, b.Stops(), test.ShouldEqual, 0)
}

func TestStepObstacleBlocked(t *testing.T) {
	c, b := newTestController(t, kinematics.Differential{}, gateFunc(allowAll))
	c.SetPath(pathTo(r2.Vec{X: 100}))
	test.That(t, c.Active(), test.ShouldBeTrue)

	reading := clearAhead()
	reading.FrontCM = 5
	out := c.Step(context.Background(), spatialmath.NewZeroPose(), reading, now)
	test.That(t, out.Status, test.ShouldEqual, StatusObstacleBlocked)
	test.That(t, out.Beam, test.ShouldEqual, proximity.BeamFront)
	test.That(t, out.DistanceCM, test.ShouldEqual, 5)
	test.That(t, out.Command, test.ShouldResemble, kinematics.Stop)
	test.That(t, b.Commands(), test.ShouldBeEmpty)
	test.That(t, b.Stops(), test.ShouldEqual, 1)
	test.That(t, c.Path(), test.ShouldBeNil)
	test.That(t, c.Active(), test.ShouldBeFalse)
}

func TestStepInterlockStopsManual(t *testing.T) {
	c, b := newTestController(t, kinematics.Differential{}, gateFunc(allowAll))
	for _, kind := range []ManualKind{ManualForward, ManualBackward, ManualLeft} {
		c.SetManual(kind)
		reading := clearAhead()
		reading.RightCM = 12
		out := c.Step(context.Background(), spatialmath.NewZeroPose(), reading, now)
		test.That(t, out.Status, test.ShouldEqual, StatusObstacleBlocked)
		test.That(t, out.Beam, test.ShouldEqual, proximity.BeamRight)
		_, ok := c.Manual()
		test.That(t, ok, test.ShouldBeFalse)
	}
	test.That(t, b.Commands(), test.ShouldBeEmpty)
}

func TestStepIgnoresMalformedBeams(t *testing.T) {
	c, b := newTestController(t, kinematics.Differential{}, gateFunc(allowAll))
	c.SetManual(ManualForward)
	reading := proximity.Reading{LeftCM: math.NaN(), FrontCM: math.Inf(1), RightCM: -1, Timestamp: now}
	out := c.Step(context.Background(), spatialmath.NewZeroPose(), reading, now)
	test.That(t, out.Status, test.ShouldEqual, StatusManual)
	test.That(t, b.Commands(), test.ShouldHaveLength, 1)
}

func TestStepSensorStale(t *testing.T) {
	c, b := newTestController(t, kinematics.Differential{}, gateFunc(allowAll))
	c.SetPath(pathTo(r2.Vec{X: 100}))

	out := c.Step(context.Background(), spatialmath.NewZeroPose(), clearAhead(), now.Add(2*time.Second))
	test.That(t, out.Status, test.ShouldEqual, StatusSensorStale)
	test.That(t, c.Path(), test.ShouldNotBeNil)
	test.That(t, b.Stops(), test.ShouldEqual, 1)

	out = c.Step(context.Background(), spatialmath.NewZeroPose(), proximity.Reading{FrontCM: 100}, now)
	test.That(t, out.Status, test.ShouldEqual, StatusSensorStale)

	out = c.Step(context.Background(), spatialmath.NewZeroPose(), clearAhead(), now.Add(500*time.Millisecond))
	test.That(t, out.Status, test.ShouldEqual, StatusDriving)
	test.That(t, b.Commands(), test.ShouldHaveLength, 1)
}

func TestStepRejected(t *testing.T) {
	c, b := newTestController(t, kinematics.Differential{}, gateFunc(func(s safety.Source) bool {
		return s == safety.SourceManual
	}))
	c.SetPath(pathTo(r2.Vec{X: 100}))
	out := c.Step(context.Background(), spatialmath.NewZeroPose(), clearAhead(), now)
	test.That(t, out.Status, test.ShouldEqual, StatusRejected)
	test.That(t, errors.Is(out.Err, safety.ErrMotionRejected), test.ShouldBeTrue)
	test.That(t, b.Commands(), test.ShouldBeEmpty)

	c.SetManual(ManualForward)
	out = c.Step(context.Background(), spatialmath.NewZeroPose(), clearAhead(), now)
	test.That(t, out.Status, test.ShouldEqual, StatusManual)
}

func TestFollowPath(t *testing.T) {
	c, b := newTestController(t, kinematics.Differential{}, gateFunc(allowAll))
	cfg := c.Config()
	c.SetPath(pathTo(r2.Vec{X: 0, Y: 50}, r2.Vec{X: 2, Y: 51}))
	test.That(t, c.RemainingWaypoints(), test.ShouldHaveLength, 2)

	// target is a quarter turn to the left
	out := c.Step(context.Background(), spatialmath.NewZeroPose(), clearAhead(), now)
	test.That(t, out.Status, test.ShouldEqual, StatusDriving)
	test.That(t, out.Command.Linear, test.ShouldEqual, 0)
	test.That(t, out.Command.Angular, test.ShouldAlmostEqual, cfg.MaxAngularSpeedRadS*cfg.TurnSpeedPct/100)
	test.That(t, out.Command.Duration, test.ShouldEqual, cfg.Period)

	// facing it, drive
	facing := spatialmath.NewPose(0, 0, math.Pi/2)
	out = c.Step(context.Background(), facing, clearAhead(), now)
	test.That(t, out.Command.Angular, test.ShouldEqual, 0)
	test.That(t, out.Command.Linear, test.ShouldAlmostEqual, cfg.MaxLinearSpeedCMS*cfg.MaxSpeedPct/100)
	test.That(t, out.Command.Duration, test.ShouldBeLessThanOrEqualTo, cfg.Period)

	// within tolerance of both waypoints
	out = c.Step(context.Background(), spatialmath.NewPose(1, 49, math.Pi/2), clearAhead(), now)
	test.That(t, out.Status, test.ShouldEqual, StatusArrived)
	test.That(t, c.Path(), test.ShouldBeNil)
	test.That(t, b.Stops(), test.ShouldEqual, 1)
	test.That(t, b.Commands(), test.ShouldHaveLength, 2)

	out = c.Step(context.Background(), spatialmath.NewPose(1, 49, math.Pi/2), clearAhead(), now)
	test.That(t, out.Status, test.ShouldEqual, StatusIdle)
	test.That(t, out.Issued, test.ShouldBeFalse)
}

func TestFollowPathShortFinalCommand(t *testing.T) {
	logger := logging.NewTestLogger(t)
	cfg := DefaultConfig()
	cfg.Period = time.Second
	c := NewController(cfg, fake.NewBase(nil, logger), kinematics.Differential{}, gateFunc(allowAll), logger)
	c.SetSpeed(100, 100)
	c.SetPath(pathTo(r2.Vec{X: 6}))
	out := c.Step(context.Background(), spatialmath.NewZeroPose(), clearAhead(), now)
	// 6cm at 30cm/s
	test.That(t, out.Command.Duration.Seconds(), test.ShouldAlmostEqual, 0.2)

	c.SetPath(pathTo(r2.Vec{X: 60}))
	out = c.Step(context.Background(), spatialmath.NewZeroPose(), clearAhead(), now)
	test.That(t, out.Command.Duration, test.ShouldEqual, time.Second)
}

func TestAckermannTurnsOnArc(t *testing.T) {
	model := kinematics.Ackermann{WheelbaseCM: 14, MaxSteeringRad: 0.5}
	c, _ := newTestController(t, model, gateFunc(allowAll))
	c.SetPath(pathTo(r2.Vec{X: 0, Y: -80}))
	out := c.Step(context.Background(), spatialmath.NewZeroPose(), clearAhead(), now)
	test.That(t, out.Command.Linear, test.ShouldBeGreaterThan, 0)
	test.That(t, out.Command.Angular, test.ShouldAlmostEqual, -model.MaxAngular(out.Command.Linear))

	c.SetManual(ManualLeft)
	out = c.Step(context.Background(), spatialmath.NewZeroPose(), clearAhead(), now)
	test.That(t, out.Command.Linear, test.ShouldBeGreaterThan, 0)
	test.That(t, out.Command.Angular, test.ShouldAlmostEqual, model.MaxAngular(out.Command.Linear))
}

func TestManualPersists(t *testing.T) {
	c, b := newTestController(t, kinematics.Differential{}, gateFunc(allowAll))
	c.SetManual(ManualForward)
	for i := 0; i < 3; i++ {
		out := c.Step(context.Background(), spatialmath.NewZeroPose(), clearAhead(), now)
		test.That(t, out.Status, test.ShouldEqual, StatusManual)
		test.That(t, out.Command.Linear, test.ShouldBeGreaterThan, 0)
	}
	test.That(t, b.Commands(), test.ShouldHaveLength, 3)

	c.SetManual(ManualRight)
	out := c.Step(context.Background(), spatialmath.NewZeroPose(), clearAhead(), now)
	test.That(t, out.Command.Angular, test.ShouldBeLessThan, 0)
	test.That(t, out.Command.Linear, test.ShouldEqual, 0)

	c.SetManual(ManualStop)
	out = c.Step(context.Background(), spatialmath.NewZeroPose(), clearAhead(), now)
	test.That(t, out.Status, test.ShouldEqual, StatusIdle)
	test.That(t, out.Command, test.ShouldResemble, kinematics.Stop)
	test.That(t, b.Stops(), test.ShouldEqual, 1)
}

func TestSetSpeedClamps(t *testing.T) {
	c, _ := newTestController(t, kinematics.Differential{}, gateFunc(allowAll))
	c.SetSpeed(150, -20)
	test.That(t, c.Config().MaxSpeedPct, test.ShouldEqual, 100)
	test.That(t, c.Config().TurnSpeedPct, test.ShouldEqual, 0)

	c.SetManual(ManualLeft)
	out := c.Step(context.Background(), spatialmath.NewZeroPose(), clearAhead(), now)
	test.That(t, out.Command, test.ShouldResemble, kinematics.Stop)
}

func TestBaseFault(t *testing.T) {
	logger := logging.NewTestLogger(t)
	b := inject.NewBase(fake.NewBase(nil, logger))
	b.MoveFunc = func(ctx context.Context, cmd kinematics.Command) error {
		return errors.New("motor driver unplugged")
	}
	c := NewController(DefaultConfig(), b, kinematics.Differential{}, gateFunc(allowAll), logger)
	c.SetManual(ManualForward)
	out := c.Step(context.Background(), spatialmath.NewZeroPose(), clearAhead(), now)
	test.That(t, out.Status, test.ShouldEqual, StatusFault)
	test.That(t, out.Err.Error(), test.ShouldContainSubstring, "unplugged")
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	test.That(t, cfg.Validate("motion"), test.ShouldBeNil)

	cfg.MaxSpeedPct = 120
	test.That(t, cfg.Validate("motion"), test.ShouldNotBeNil)

	cfg = DefaultConfig()
	cfg.MinObstacleDistanceCM = 0
	err := cfg.Validate("motion")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "min_obstacle_distance_cm")
}
