// Package spatialmath defines the planar pose of the rover and helpers for working with angles
// and world coordinates. All lengths are in centimeters and all angles in radians.
package spatialmath

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Pose is the rover's position on the ground plane and its heading. Theta is measured
// counter-clockwise from the +X axis and kept in (-π, π].
type Pose struct {
	X     float64 `json:"x_cm"`
	Y     float64 `json:"y_cm"`
	Theta float64 `json:"orientation_rad"`
}

// NewZeroPose returns a pose at the world origin facing +X.
func NewZeroPose() Pose {
	return Pose{}
}

// NewPose returns a pose with a normalized heading.
func NewPose(x, y, theta float64) Pose {
	return Pose{X: x, Y: y, Theta: NormalizeAngle(theta)}
}

// Point returns the position of the pose.
func (p Pose) Point() r2.Vec {
	return r2.Vec{X: p.X, Y: p.Y}
}

// DistanceTo returns the euclidean distance from the pose to pt.
func (p Pose) DistanceTo(pt r2.Vec) float64 {
	return r2.Norm(r2.Sub(pt, p.Point()))
}

// BearingTo returns the signed heading change needed to face pt, in (-π, π].
func (p Pose) BearingTo(pt r2.Vec) float64 {
	d := r2.Sub(pt, p.Point())
	return NormalizeAngle(math.Atan2(d.Y, d.X) - p.Theta)
}

// Along returns the point dist centimeters from the pose in the direction of its heading rotated
// by offset radians.
func (p Pose) Along(offset, dist float64) r2.Vec {
	heading := p.Theta + offset
	return r2.Vec{X: p.X + dist*math.Cos(heading), Y: p.Y + dist*math.Sin(heading)}
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.1fcm, %.1fcm, %.3frad)", p.X, p.Y, p.Theta)
}

// NormalizeAngle wraps an angle into (-π, π].
func NormalizeAngle(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return a
	}
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

// PoseAlmostEqual compares two poses within a position epsilon (cm) and angle epsilon (rad).
func PoseAlmostEqual(a, b Pose, posEps, angleEps float64) bool {
	return math.Abs(a.X-b.X) <= posEps &&
		math.Abs(a.Y-b.Y) <= posEps &&
		math.Abs(NormalizeAngle(a.Theta-b.Theta)) <= angleEps
}
