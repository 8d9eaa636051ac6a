// Package inject provides test doubles whose behaviour is set per test through function fields.
package inject

import (
	"context"

	"github.com/picarx-labs/rover/components/base"
	"github.com/picarx-labs/rover/kinematics"
)

// Base is an injected base.
type Base struct {
	base.Base
	MoveFunc     func(ctx context.Context, cmd kinematics.Command) error
	StopFunc     func(ctx context.Context) error
	IsMovingFunc func(ctx context.Context) (bool, error)
}

// NewBase returns a new injected base wrapping an optional real base.
func NewBase(b base.Base) *Base {
	return &Base{Base: b}
}

// Move calls the injected Move or the real version.
func (b *Base) Move(ctx context.Context, cmd kinematics.Command) error {
	if b.MoveFunc == nil {
		return b.Base.Move(ctx, cmd)
	}
	return b.MoveFunc(ctx, cmd)
}

// Stop calls the injected Stop or the real version.
func (b *Base) Stop(ctx context.Context) error {
	if b.StopFunc == nil {
		return b.Base.Stop(ctx)
	}
	return b.StopFunc(ctx)
}

// IsMoving calls the injected IsMoving or the real version.
func (b *Base) IsMoving(ctx context.Context) (bool, error) {
	if b.IsMovingFunc == nil {
		return b.Base.IsMoving(ctx)
	}
	return b.IsMovingFunc(ctx)
}
