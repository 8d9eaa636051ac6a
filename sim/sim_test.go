package sim

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/picarx-labs/rover/components/base/fake"
	"github.com/picarx-labs/rover/kinematics"
	"github.com/picarx-labs/rover/logging"
	"github.com/picarx-labs/rover/services/explore"
)

func quietOptions() Options {
	opts := DefaultOptions()
	opts.NoiseCM = 0
	opts.Slip = 0
	return opts
}

func TestCast(t *testing.T) {
	world := NewRoom(400, 400)
	test.That(t, world.Cast(r2.Vec{}, 0, 300), test.ShouldAlmostEqual, 200)
	test.That(t, world.Cast(r2.Vec{}, math.Pi/2, 300), test.ShouldAlmostEqual, 200)
	test.That(t, world.Cast(r2.Vec{X: 150}, math.Pi, 400), test.ShouldAlmostEqual, 350)
	test.That(t, math.IsInf(world.Cast(r2.Vec{}, 0, 100), 1), test.ShouldBeTrue)

	world.AddCircle(r2.Vec{X: 100}, 10)
	test.That(t, world.Cast(r2.Vec{}, 0, 300), test.ShouldAlmostEqual, 90)
	// a ray that passes the post
	test.That(t, world.Cast(r2.Vec{}, math.Pi/2, 300), test.ShouldAlmostEqual, 200)

	test.That(t, world.Cast(r2.Vec{}, math.Atan2(-100, 200), 300), test.ShouldAlmostEqual, math.Hypot(200, 100))
}

func TestCollides(t *testing.T) {
	world := DefaultWorld()
	test.That(t, world.Collides(r2.Vec{}, 8), test.ShouldBeFalse)
	test.That(t, world.Collides(r2.Vec{X: 195}, 8), test.ShouldBeTrue)
	test.That(t, world.Collides(r2.Vec{X: 55}, 8), test.ShouldBeTrue)
	test.That(t, world.Collides(r2.Vec{X: -80, Y: 75}, 8), test.ShouldBeTrue)
}

func TestRoverDrivesForDuration(t *testing.T) {
	clk := clock.NewMock()
	rover := NewRover(NewRoom(400, 400), kinematics.Differential{}, clk, quietOptions())
	rover.Drive(kinematics.Command{Linear: 10, Duration: time.Second})
	clk.Add(2 * time.Second)

	pose := rover.Pose()
	test.That(t, pose.X, test.ShouldAlmostEqual, 10)
	test.That(t, pose.Y, test.ShouldAlmostEqual, 0)

	reading, err := rover.Readings(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reading.FrontCM, test.ShouldAlmostEqual, 190)
	test.That(t, reading.Timestamp, test.ShouldEqual, clk.Now())
	// side beams at 30 degrees reach the far wall before the side walls
	test.That(t, reading.LeftCM, test.ShouldAlmostEqual, 190/math.Cos(math.Pi/6))
	test.That(t, reading.RightCM, test.ShouldAlmostEqual, 190/math.Cos(math.Pi/6))
}

func TestRoverStopsOnContact(t *testing.T) {
	clk := clock.NewMock()
	rover := NewRover(NewRoom(400, 400), kinematics.Differential{}, clk, quietOptions())
	rover.Drive(kinematics.Command{Linear: 100})
	clk.Add(5 * time.Second)

	pose := rover.Pose()
	test.That(t, pose.X, test.ShouldBeLessThan, 192.5)
	test.That(t, pose.X, test.ShouldBeGreaterThan, 180)
	test.That(t, rover.Collisions(), test.ShouldEqual, 1)

	// backing away is allowed
	rover.Drive(kinematics.Command{Linear: -10, Duration: time.Second})
	clk.Add(time.Second)
	test.That(t, rover.Pose().X, test.ShouldAlmostEqual, pose.X-10)
}

func TestSlipMakesDeadReckoningDrift(t *testing.T) {
	clk := clock.NewMock()
	opts := quietOptions()
	opts.Slip = 0.05
	rover := NewRover(NewRoom(400, 400), kinematics.Differential{}, clk, opts)
	est := kinematics.NewEstimator(kinematics.Differential{})

	cmd := kinematics.Command{Angular: 1, Duration: time.Second}
	rover.Drive(cmd)
	est.Apply(cmd, time.Second)
	clk.Add(time.Second)

	test.That(t, rover.Pose().Theta, test.ShouldAlmostEqual, 1.05)
	test.That(t, est.Pose().Theta, test.ShouldAlmostEqual, 1)
}

func TestSystemStatus(t *testing.T) {
	clk := clock.NewMock()
	opts := quietOptions()
	opts.DrainPctPerMin = 60
	opts.HeatingCPerMin = 2
	rover := NewRover(NewRoom(400, 400), kinematics.Differential{}, clk, opts)

	clk.Add(30 * time.Second)
	status, err := rover.SystemStatus(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status.BatteryPct, test.ShouldAlmostEqual, 100)
	test.That(t, status.TemperatureC, test.ShouldAlmostEqual, 41)

	rover.Drive(kinematics.Command{Angular: 0.1})
	clk.Add(30 * time.Second)
	status, err = rover.SystemStatus(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, status.BatteryPct, test.ShouldAlmostEqual, 70)

	rover.SetBattery(4)
	err = explore.CheckSafeToStart(context.Background(), rover, explore.Thresholds{BatteryCriticalPct: 10})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestExploreInSimulation(t *testing.T) {
	logger := logging.NewTestLogger(t)
	clk := clock.NewMock()
	world := DefaultWorld()
	rover := NewRover(world, kinematics.Differential{}, clk, DefaultOptions())
	b := fake.NewBase(rover, logger)

	cfg := explore.DefaultConfig()
	c, err := explore.NewController(explore.Deps{Base: b, Clock: clk}, cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, c.Close(context.Background()), test.ShouldBeNil)
	}()

	c.SubmitCommand(explore.Command{Kind: explore.CommandSetMode, Autonomous: true})
	var snap *explore.Snapshot
	for i := 0; i < 300; i++ {
		clk.Add(cfg.UpdateInterval)
		reading, err := rover.Readings(context.Background())
		test.That(t, err, test.ShouldBeNil)
		c.SubmitReading(reading)
		snap = c.Step(context.Background())
		test.That(t, snap.Motion, test.ShouldNotEqual, "fault")
	}
	test.That(t, snap.Cycle, test.ShouldEqual, 300)
	test.That(t, snap.ExploredFraction, test.ShouldBeGreaterThan, 0.01)
	test.That(t, b.Commands(), test.ShouldNotBeEmpty)
}
