// Package fake implements a fake base.
package fake

import (
	"context"
	"sync"

	"github.com/picarx-labs/rover/components/base"
	"github.com/picarx-labs/rover/kinematics"
	"github.com/picarx-labs/rover/logging"
)

// A Driver is moved by the fake base, usually a simulated world.
type Driver interface {
	Drive(cmd kinematics.Command)
}

var _ base.Base = (*Base)(nil)

// Base is a fake base that records every command it is given and forwards it to an optional
// Driver.
type Base struct {
	mu       sync.Mutex
	driver   Driver
	logger   logging.Logger
	commands []kinematics.Command
	current  kinematics.Command

	StopCount  int
	CloseCount int
}

// NewBase instantiates a new fake base. driver may be nil.
func NewBase(driver Driver, logger logging.Logger) *Base {
	return &Base{driver: driver, logger: logger}
}

// Move records cmd.
func (b *Base) Move(ctx context.Context, cmd kinematics.Command) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands = append(b.commands, cmd)
	b.current = cmd
	if b.driver != nil {
		b.driver.Drive(cmd)
	}
	b.logger.Debugw("move", "linear", cmd.Linear, "angular", cmd.Angular, "duration", cmd.Duration)
	return nil
}

// Stop records a stop.
func (b *Base) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.StopCount++
	b.current = kinematics.Stop
	if b.driver != nil {
		b.driver.Drive(kinematics.Stop)
	}
	return nil
}

// IsMoving reports whether the last command was not a stop.
func (b *Base) IsMoving(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.current.IsStop(), nil
}

// Commands returns every command moved so far, in order.
func (b *Base) Commands() []kinematics.Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]kinematics.Command, len(b.commands))
	copy(out, b.commands)
	return out
}

// Stops returns the number of Stop calls.
func (b *Base) Stops() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.StopCount
}

// Close halts the base.
func (b *Base) Close(ctx context.Context) error {
	b.mu.Lock()
	b.CloseCount++
	b.mu.Unlock()
	return b.Stop(ctx)
}
