// Package base defines the rover's drive base: the actuator motion commands are sent to.
package base

import (
	"context"

	"github.com/picarx-labs/rover/kinematics"
)

// A Base is the wheeled platform of the rover.
type Base interface {
	// Move holds the commanded velocity for cmd.Duration, or until the next call when the
	// duration is zero. It returns once the command is accepted, not when it completes.
	Move(ctx context.Context, cmd kinematics.Command) error

	// Stop halts all motion.
	Stop(ctx context.Context) error

	// IsMoving reports whether the base is currently executing a non-zero command.
	IsMoving(ctx context.Context) (bool, error)
}
