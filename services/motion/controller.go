// Package motion turns planned paths and manual drive commands into timed base commands. Every
// command passes the proximity interlock first: no mode can drive toward an obstacle closer than
// the configured minimum.
package motion

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/picarx-labs/rover/components/base"
	"github.com/picarx-labs/rover/components/sensor/proximity"
	"github.com/picarx-labs/rover/kinematics"
	"github.com/picarx-labs/rover/logging"
	"github.com/picarx-labs/rover/motionplan"
	"github.com/picarx-labs/rover/services/safety"
	"github.com/picarx-labs/rover/spatialmath"
)

// ManualKind is a discrete drive command.
type ManualKind int

// Manual drive commands.
const (
	ManualStop ManualKind = iota
	ManualForward
	ManualBackward
	ManualLeft
	ManualRight
)

func (k ManualKind) String() string {
	switch k {
	case ManualStop:
		return "stop"
	case ManualForward:
		return "forward"
	case ManualBackward:
		return "backward"
	case ManualLeft:
		return "left"
	case ManualRight:
		return "right"
	}
	return fmt.Sprintf("manual(%d)", int(k))
}

// Status is the result of a control step.
type Status int

// Step statuses.
const (
	// StatusIdle means there was nothing to execute.
	StatusIdle Status = iota
	// StatusDriving means a path command was issued.
	StatusDriving
	// StatusManual means a manual command was issued.
	StatusManual
	// StatusArrived means the last waypoint was reached and the path released.
	StatusArrived
	// StatusObstacleBlocked means the interlock stopped the base and the path or manual command
	// was discarded.
	StatusObstacleBlocked
	// StatusSensorStale means the reading was too old to trust; the base was stopped and the path
	// kept.
	StatusSensorStale
	// StatusRejected means the safety arbiter did not permit the motion source.
	StatusRejected
	// StatusFault means the base returned an error.
	StatusFault
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusDriving:
		return "driving"
	case StatusManual:
		return "manual"
	case StatusArrived:
		return "arrived"
	case StatusObstacleBlocked:
		return "obstacle_blocked"
	case StatusSensorStale:
		return "sensor_stale"
	case StatusRejected:
		return "rejected"
	case StatusFault:
		return "fault"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Outcome describes what a step did.
type Outcome struct {
	Status Status
	// Command is what was sent to the base this step. Stops are recorded as kinematics.Stop.
	Command kinematics.Command
	// Issued is false when nothing was sent to the base.
	Issued bool
	// Beam and DistanceCM identify the reading that tripped the interlock.
	Beam       proximity.BeamID
	DistanceCM float64
	Err        error
}

// A Gate decides whether a motion source may move. *safety.Arbiter is the production gate.
type Gate interface {
	PermitsMotion(source safety.Source) bool
}

// Controller executes at most one command per Step. It is owned by the control loop and is not
// safe for concurrent use.
type Controller struct {
	cfg    Config
	base   base.Base
	model  kinematics.Model
	gate   Gate
	logger logging.Logger

	path     *motionplan.Path
	waypoint int
	manual   *ManualKind
	moving   bool

	blockedLog rate.Sometimes
	staleLog   rate.Sometimes
}

// NewController returns a controller driving b.
func NewController(cfg Config, b base.Base, model kinematics.Model, gate Gate, logger logging.Logger) *Controller {
	cfg.MaxSpeedPct = clampPct(cfg.MaxSpeedPct)
	cfg.TurnSpeedPct = clampPct(cfg.TurnSpeedPct)
	return &Controller{
		cfg:        cfg,
		base:       b,
		model:      model,
		gate:       gate,
		logger:     logger,
		blockedLog: rate.Sometimes{Interval: 2 * time.Second},
		staleLog:   rate.Sometimes{Interval: 2 * time.Second},
	}
}

// SetPath replaces any active path and manual command.
func (c *Controller) SetPath(path *motionplan.Path) {
	c.path = path
	c.waypoint = 0
	c.manual = nil
}

// Path returns the active path, or nil.
func (c *Controller) Path() *motionplan.Path {
	return c.path
}

// RemainingWaypoints returns the waypoints not yet reached.
func (c *Controller) RemainingWaypoints() [][2]float64 {
	if c.path == nil {
		return nil
	}
	return c.path.Points()[c.waypoint:]
}

// SetManual replaces any active path with a persistent manual command. ManualStop clears it.
func (c *Controller) SetManual(kind ManualKind) {
	c.path = nil
	c.waypoint = 0
	if kind == ManualStop {
		c.manual = nil
		return
	}
	c.manual = &kind
}

// Manual returns the active manual command.
func (c *Controller) Manual() (ManualKind, bool) {
	if c.manual == nil {
		return ManualStop, false
	}
	return *c.manual, true
}

// Abort discards the active path or manual command. The base is stopped on the next Step.
func (c *Controller) Abort() {
	c.path = nil
	c.waypoint = 0
	c.manual = nil
}

// Active reports whether there is a path or manual command to execute.
func (c *Controller) Active() bool {
	return c.path != nil || c.manual != nil
}

// SetSpeed sets the speed caps, each clamped to [0, 100] percent.
func (c *Controller) SetSpeed(maxSpeedPct, turnSpeedPct float64) {
	c.cfg.MaxSpeedPct = clampPct(maxSpeedPct)
	c.cfg.TurnSpeedPct = clampPct(turnSpeedPct)
}

// SetMinObstacleDistance changes the interlock threshold.
func (c *Controller) SetMinObstacleDistance(cm float64) {
	if cm > 0 {
		c.cfg.MinObstacleDistanceCM = cm
	}
}

// Config returns the current tuning.
func (c *Controller) Config() Config {
	return c.cfg
}

// Stop halts the base immediately.
func (c *Controller) Stop(ctx context.Context) error {
	c.moving = false
	return c.base.Stop(ctx)
}

// Step runs one control cycle at pose with the latest reading.
func (c *Controller) Step(ctx context.Context, pose spatialmath.Pose, reading proximity.Reading, now time.Time) Outcome {
	if !c.Active() {
		if c.moving {
			return c.stop(ctx, Outcome{Status: StatusIdle})
		}
		return Outcome{Status: StatusIdle}
	}

	source := safety.SourceAutonomous
	if c.manual != nil {
		source = safety.SourceManual
	}
	if !c.gate.PermitsMotion(source) {
		return c.stop(ctx, Outcome{Status: StatusRejected, Err: errors.Wrapf(safety.ErrMotionRejected, "%s motion", source)})
	}

	if dist, beam, ok := reading.Closest(); ok && dist < c.cfg.MinObstacleDistanceCM {
		c.blockedLog.Do(func() {
			c.logger.Warnw("obstacle too close, stopping", "beam", beam, "distance_cm", dist,
				"min_cm", c.cfg.MinObstacleDistanceCM)
		})
		c.Abort()
		return c.stop(ctx, Outcome{Status: StatusObstacleBlocked, Beam: beam, DistanceCM: dist})
	}
	if reading.Timestamp.IsZero() || now.Sub(reading.Timestamp) > c.cfg.SensorTimeout {
		c.staleLog.Do(func() {
			c.logger.Warnw("proximity reading is stale, holding", "taken", reading.Timestamp, "timeout", c.cfg.SensorTimeout)
		})
		return c.stop(ctx, Outcome{Status: StatusSensorStale})
	}

	if c.manual != nil {
		return c.move(ctx, StatusManual, c.manualCommand(*c.manual))
	}
	return c.followPath(ctx, pose)
}

func (c *Controller) linearSpeed() float64 {
	return c.cfg.MaxLinearSpeedCMS * c.cfg.MaxSpeedPct / 100
}

func (c *Controller) angularSpeed() float64 {
	return c.cfg.MaxAngularSpeedRadS * c.cfg.TurnSpeedPct / 100
}

func (c *Controller) manualCommand(kind ManualKind) kinematics.Command {
	cmd := kinematics.Command{Duration: c.cfg.Period}
	switch kind {
	case ManualForward:
		cmd.Linear = c.linearSpeed()
	case ManualBackward:
		cmd.Linear = -c.linearSpeed()
	case ManualLeft, ManualRight:
		cmd.Angular = c.angularSpeed()
		if !c.model.SpinsInPlace() {
			// steer at full lock while creeping forward
			cmd.Linear = c.linearSpeed()
			cmd.Angular = math.Inf(1)
		}
		if kind == ManualRight {
			cmd.Angular = -cmd.Angular
		}
	case ManualStop:
	}
	return c.model.Constrain(cmd)
}

func (c *Controller) followPath(ctx context.Context, pose spatialmath.Pose) Outcome {
	waypoints := c.path.Waypoints
	for c.waypoint < len(waypoints) && pose.DistanceTo(waypoints[c.waypoint]) <= c.cfg.WaypointToleranceCM {
		c.waypoint++
	}
	if c.waypoint >= len(waypoints) {
		c.logger.Debugw("path complete", "path", c.path.ID)
		c.path = nil
		c.waypoint = 0
		return c.stop(ctx, Outcome{Status: StatusArrived})
	}

	target := waypoints[c.waypoint]
	headingErr := pose.BearingTo(target)
	if math.Abs(headingErr) > c.cfg.HeadingToleranceRad {
		return c.move(ctx, StatusDriving, c.turnCommand(headingErr))
	}

	v := c.linearSpeed()
	if v <= 0 {
		return c.stop(ctx, Outcome{Status: StatusDriving})
	}
	return c.move(ctx, StatusDriving, kinematics.Command{
		Linear:   v,
		Duration: c.bounded(pose.DistanceTo(target) / v),
	})
}

func (c *Controller) turnCommand(headingErr float64) kinematics.Command {
	sign := 1.0
	if headingErr < 0 {
		sign = -1
	}
	if c.model.SpinsInPlace() {
		w := c.angularSpeed()
		if w <= 0 {
			return kinematics.Stop
		}
		return kinematics.Command{Angular: sign * w, Duration: c.bounded(math.Abs(headingErr) / w)}
	}

	// drive the tightest arc the steering allows
	cmd := c.model.Constrain(kinematics.Command{Linear: c.linearSpeed(), Angular: sign * math.Inf(1)})
	if cmd.Angular == 0 {
		return kinematics.Stop
	}
	cmd.Duration = c.bounded(math.Abs(headingErr / cmd.Angular))
	return cmd
}

// bounded converts seconds to a duration no longer than one period.
func (c *Controller) bounded(seconds float64) time.Duration {
	d := time.Duration(seconds * float64(time.Second))
	if c.cfg.Period > 0 && d > c.cfg.Period {
		return c.cfg.Period
	}
	return d
}

func (c *Controller) move(ctx context.Context, status Status, cmd kinematics.Command) Outcome {
	if cmd.IsStop() {
		return c.stop(ctx, Outcome{Status: status})
	}
	if err := c.base.Move(ctx, cmd); err != nil {
		c.logger.Errorw("base move failed", "error", err)
		return c.stop(ctx, Outcome{Status: StatusFault, Err: errors.Wrap(err, "move")})
	}
	c.moving = true
	return Outcome{Status: status, Command: cmd, Issued: true}
}

func (c *Controller) stop(ctx context.Context, out Outcome) Outcome {
	c.moving = false
	out.Command = kinematics.Stop
	out.Issued = true
	if err := c.base.Stop(ctx); err != nil {
		c.logger.Errorw("base stop failed", "error", err)
		if out.Err == nil {
			out.Status = StatusFault
			out.Err = errors.Wrap(err, "stop")
		}
	}
	return out
}
