// Package kinematics models how motion commands move the rover on the ground plane and keeps a
// dead-reckoned pose estimate.
package kinematics

import (
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/picarx-labs/rover/spatialmath"
)

// Command is a velocity held for a duration. Linear is in cm/s (positive is forward) and Angular
// in rad/s (positive is counter-clockwise). A zero Duration holds the velocity until the next
// command.
type Command struct {
	Linear   float64       `json:"linear_cm_s"`
	Angular  float64       `json:"angular_rad_s"`
	Duration time.Duration `json:"duration"`
}

// Stop is the zero command.
var Stop = Command{}

// IsStop reports whether the command holds the rover still.
func (c Command) IsStop() bool {
	return c.Linear == 0 && c.Angular == 0
}

func (c Command) String() string {
	return fmt.Sprintf("v=%.1fcm/s w=%.3frad/s for %v", c.Linear, c.Angular, c.Duration)
}

// Kind names a kinematic model in configuration.
type Kind string

// Supported kinds.
const (
	KindDifferential Kind = "differential"
	KindAckermann    Kind = "ackermann"
)

// A Model integrates commands into poses.
type Model interface {
	// Integrate returns the pose reached by holding cmd for dt starting at pose.
	Integrate(pose spatialmath.Pose, cmd Command, dt time.Duration) spatialmath.Pose
	// SpinsInPlace reports whether the rover can rotate without translating.
	SpinsInPlace() bool
	// Constrain returns the closest command the rover can physically execute.
	Constrain(cmd Command) Command
}

// NewModel builds the model named by kind. The Ackermann geometry is ignored for differential
// drive.
func NewModel(kind Kind, wheelbaseCM, maxSteeringRad float64) (Model, error) {
	switch kind {
	case KindDifferential, "":
		return Differential{}, nil
	case KindAckermann:
		if wheelbaseCM <= 0 {
			return nil, errors.Errorf("ackermann wheelbase must be positive, got %v", wheelbaseCM)
		}
		if maxSteeringRad <= 0 || maxSteeringRad >= math.Pi/2 {
			return nil, errors.Errorf("ackermann max steering must be in (0, π/2), got %v", maxSteeringRad)
		}
		return Ackermann{WheelbaseCM: wheelbaseCM, MaxSteeringRad: maxSteeringRad}, nil
	default:
		return nil, errors.Errorf("unknown kinematics %q", kind)
	}
}

// Differential is a skid or differential drive: any combination of linear and angular velocity
// is reachable, including spinning in place.
type Differential struct{}

// Integrate follows the exact circular arc of constant (v, w).
func (Differential) Integrate(pose spatialmath.Pose, cmd Command, dt time.Duration) spatialmath.Pose {
	return arc(pose, cmd.Linear, cmd.Angular, dt.Seconds())
}

// SpinsInPlace is always true.
func (Differential) SpinsInPlace() bool { return true }

// Constrain returns cmd unchanged.
func (Differential) Constrain(cmd Command) Command { return cmd }

// Ackermann is a car-like rover with steered front wheels. Its turn rate is bounded by its
// speed, so it cannot turn while stationary.
type Ackermann struct {
	WheelbaseCM    float64
	MaxSteeringRad float64
}

// Integrate constrains cmd and follows the resulting arc.
func (a Ackermann) Integrate(pose spatialmath.Pose, cmd Command, dt time.Duration) spatialmath.Pose {
	cmd = a.Constrain(cmd)
	return arc(pose, cmd.Linear, cmd.Angular, dt.Seconds())
}

// SpinsInPlace is always false.
func (Ackermann) SpinsInPlace() bool { return false }

// Constrain limits the angular rate to |v|·tan(δmax)/L.
func (a Ackermann) Constrain(cmd Command) Command {
	limit := a.MaxAngular(cmd.Linear)
	cmd.Angular = math.Max(-limit, math.Min(limit, cmd.Angular))
	return cmd
}

// MaxAngular is the fastest turn rate achievable at linear speed v.
func (a Ackermann) MaxAngular(v float64) float64 {
	return math.Abs(v) * math.Tan(a.MaxSteeringRad) / a.WheelbaseCM
}

// MinTurnRadiusCM is the radius of the tightest arc.
func (a Ackermann) MinTurnRadiusCM() float64 {
	return a.WheelbaseCM / math.Tan(a.MaxSteeringRad)
}

const straightEpsilon = 1e-9

func arc(pose spatialmath.Pose, v, w, dt float64) spatialmath.Pose {
	if dt <= 0 {
		return pose
	}
	theta := pose.Theta
	if math.Abs(w) < straightEpsilon {
		return spatialmath.NewPose(
			pose.X+v*dt*math.Cos(theta),
			pose.Y+v*dt*math.Sin(theta),
			theta,
		)
	}
	r := v / w
	next := theta + w*dt
	return spatialmath.NewPose(
		pose.X+r*(math.Sin(next)-math.Sin(theta)),
		pose.Y-r*(math.Cos(next)-math.Cos(theta)),
		next,
	)
}
