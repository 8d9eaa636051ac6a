// Package proximity defines the three-beam distance reading the rover navigates on and a poller
// that samples a proximity sensor at a fixed interval.
package proximity

import (
	"context"
	"fmt"
	"math"
	"time"
)

// BeamID identifies one of the three distance beams.
type BeamID int

// The beams, ordered left to right.
const (
	BeamLeft BeamID = iota
	BeamFront
	BeamRight
)

func (b BeamID) String() string {
	switch b {
	case BeamLeft:
		return "left"
	case BeamFront:
		return "front"
	case BeamRight:
		return "right"
	}
	return fmt.Sprintf("beam(%d)", int(b))
}

// Reading is a timestamped snapshot of the three distance beams in centimeters. A beam with no
// echo may be reported as +Inf; NaN, zero and negative values are malformed.
type Reading struct {
	LeftCM    float64   `json:"left_cm"`
	FrontCM   float64   `json:"front_cm"`
	RightCM   float64   `json:"right_cm"`
	Timestamp time.Time `json:"timestamp"`
}

// Beam is a single distance measurement and the direction it was taken in, relative to the
// rover's heading.
type Beam struct {
	ID         BeamID
	OffsetRad  float64
	DistanceCM float64
}

// Beams returns the three beams. The side beams point sideAngle radians to the left and right of
// the heading.
func (r Reading) Beams(sideAngle float64) [3]Beam {
	return [3]Beam{
		{ID: BeamLeft, OffsetRad: sideAngle, DistanceCM: r.LeftCM},
		{ID: BeamFront, OffsetRad: 0, DistanceCM: r.FrontCM},
		{ID: BeamRight, OffsetRad: -sideAngle, DistanceCM: r.RightCM},
	}
}

// Distance returns the distance measured by the given beam.
func (r Reading) Distance(id BeamID) float64 {
	switch id {
	case BeamLeft:
		return r.LeftCM
	case BeamFront:
		return r.FrontCM
	case BeamRight:
		return r.RightCM
	}
	return math.NaN()
}

// IsZero reports whether the reading was never set.
func (r Reading) IsZero() bool {
	return r.Timestamp.IsZero() && r.LeftCM == 0 && r.FrontCM == 0 && r.RightCM == 0
}

// Closest returns the smallest well-formed distance and its beam. ok is false when no beam holds
// a usable distance.
func (r Reading) Closest() (dist float64, id BeamID, ok bool) {
	dist = math.Inf(1)
	for _, b := range r.Beams(0) {
		if !Measured(b.DistanceCM) {
			continue
		}
		if !ok || b.DistanceCM < dist {
			dist, id, ok = b.DistanceCM, b.ID, true
		}
	}
	return dist, id, ok
}

// Measured reports whether d is a usable distance: positive and not NaN. +Inf ("no echo") counts
// as measured.
func Measured(d float64) bool {
	return !math.IsNaN(d) && d > 0
}

func (r Reading) String() string {
	return fmt.Sprintf("left=%.1fcm front=%.1fcm right=%.1fcm", r.LeftCM, r.FrontCM, r.RightCM)
}

// A Sensor produces proximity readings.
type Sensor interface {
	Readings(ctx context.Context) (Reading, error)
}
