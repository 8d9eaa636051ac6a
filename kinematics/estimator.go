package kinematics

import (
	"time"

	"github.com/picarx-labs/rover/spatialmath"
)

// Estimator dead-reckons the rover pose from the commands it was sent. Nothing corrects the
// estimate, so error accumulates without bound as wheels slip or the base deviates from what was
// commanded.
type Estimator struct {
	model Model
	pose  spatialmath.Pose
}

// NewEstimator starts at the world origin.
func NewEstimator(model Model) *Estimator {
	return &Estimator{model: model, pose: spatialmath.NewZeroPose()}
}

// Apply integrates cmd for min(elapsed, cmd.Duration) and returns the new pose. Commands with no
// duration are integrated over the full elapsed time.
func (e *Estimator) Apply(cmd Command, elapsed time.Duration) spatialmath.Pose {
	dt := elapsed
	if cmd.Duration > 0 && cmd.Duration < dt {
		dt = cmd.Duration
	}
	if dt <= 0 || cmd.IsStop() {
		return e.pose
	}
	e.pose = e.model.Integrate(e.pose, cmd, dt)
	return e.pose
}

// Pose returns the current estimate.
func (e *Estimator) Pose() spatialmath.Pose {
	return e.pose
}

// Reset recentres the estimate at the origin, facing +X.
func (e *Estimator) Reset() {
	e.pose = spatialmath.NewZeroPose()
}

// Model returns the kinematic model in use.
func (e *Estimator) Model() Model {
	return e.model
}
