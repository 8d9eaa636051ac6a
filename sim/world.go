// Package sim is a simulated rover in a flat world of walls and round obstacles. It drives the
// fake base and answers proximity readings so the control loop can run without hardware.
package sim

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Segment is a straight wall between A and B.
type Segment struct {
	A, B r2.Vec
}

// Circle is a round obstacle such as a table leg.
type Circle struct {
	Center   r2.Vec
	RadiusCM float64
}

// World is a set of obstacles in centimeters.
type World struct {
	Walls   []Segment
	Circles []Circle
}

// NewRoom returns an empty rectangular room centred on the origin.
func NewRoom(widthCM, heightCM float64) *World {
	w, h := widthCM/2, heightCM/2
	corners := []r2.Vec{{X: -w, Y: -h}, {X: w, Y: -h}, {X: w, Y: h}, {X: -w, Y: h}}
	world := &World{}
	for i, c := range corners {
		world.AddWall(c, corners[(i+1)%len(corners)])
	}
	return world
}

// DefaultWorld is a 4m x 4m room with a partition and two posts.
func DefaultWorld() *World {
	world := NewRoom(400, 400)
	world.AddWall(r2.Vec{X: 60, Y: -200}, r2.Vec{X: 60, Y: 40})
	world.AddCircle(r2.Vec{X: -80, Y: 90}, 12)
	world.AddCircle(r2.Vec{X: 130, Y: 120}, 20)
	return world
}

// AddWall adds a wall from a to b.
func (w *World) AddWall(a, b r2.Vec) {
	w.Walls = append(w.Walls, Segment{A: a, B: b})
}

// AddCircle adds a round obstacle.
func (w *World) AddCircle(center r2.Vec, radiusCM float64) {
	w.Circles = append(w.Circles, Circle{Center: center, RadiusCM: radiusCM})
}

// Cast returns the distance from origin along heading to the nearest obstacle, or +Inf when
// nothing lies within maxRange.
func (w *World) Cast(origin r2.Vec, heading, maxRange float64) float64 {
	dir := r2.Vec{X: math.Cos(heading), Y: math.Sin(heading)}
	best := math.Inf(1)
	for _, s := range w.Walls {
		if d, ok := raySegment(origin, dir, s); ok && d < best {
			best = d
		}
	}
	for _, c := range w.Circles {
		if d, ok := rayCircle(origin, dir, c); ok && d < best {
			best = d
		}
	}
	if best > maxRange {
		return math.Inf(1)
	}
	return best
}

// Collides reports whether a disc of the given radius at p overlaps any obstacle.
func (w *World) Collides(p r2.Vec, radiusCM float64) bool {
	for _, s := range w.Walls {
		if segmentDistance(p, s) < radiusCM {
			return true
		}
	}
	for _, c := range w.Circles {
		if r2.Norm(r2.Sub(p, c.Center)) < radiusCM+c.RadiusCM {
			return true
		}
	}
	return false
}

// raySegment intersects the ray origin + t*dir (t >= 0, dir a unit vector) with s.
func raySegment(origin, dir r2.Vec, s Segment) (float64, bool) {
	edge := r2.Sub(s.B, s.A)
	denom := r2.Cross(dir, edge)
	if math.Abs(denom) < 1e-12 {
		return 0, false
	}
	toA := r2.Sub(s.A, origin)
	t := r2.Cross(toA, edge) / denom
	u := r2.Cross(toA, dir) / denom
	if t < 0 || u < 0 || u > 1 {
		return 0, false
	}
	return t, true
}

// rayCircle returns the first non-negative intersection of the ray with c.
func rayCircle(origin, dir r2.Vec, c Circle) (float64, bool) {
	oc := r2.Sub(origin, c.Center)
	b := r2.Dot(oc, dir)
	disc := b*b - (r2.Dot(oc, oc) - c.RadiusCM*c.RadiusCM)
	if disc < 0 {
		return 0, false
	}
	sq := math.Sqrt(disc)
	for _, t := range [2]float64{-b - sq, -b + sq} {
		if t >= 0 {
			return t, true
		}
	}
	return 0, false
}

func segmentDistance(p r2.Vec, s Segment) float64 {
	edge := r2.Sub(s.B, s.A)
	lenSq := r2.Dot(edge, edge)
	if lenSq == 0 {
		return r2.Norm(r2.Sub(p, s.A))
	}
	t := math.Max(0, math.Min(1, r2.Dot(r2.Sub(p, s.A), edge)/lenSq))
	closest := r2.Add(s.A, r2.Scale(t, edge))
	return r2.Norm(r2.Sub(p, closest))
}
