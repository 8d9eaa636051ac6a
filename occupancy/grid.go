// Package occupancy implements a probabilistic 2D occupancy grid. Each cell stores the clamped
// log-odds that it is occupied; whether a cell is free, occupied or unknown is always derived
// from the stored value and the configured thresholds.
package occupancy

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/picarx-labs/rover/components/sensor/proximity"
	"github.com/picarx-labs/rover/spatialmath"
)

// ErrDimensionMismatch is returned when restoring values recorded for a differently sized grid.
var ErrDimensionMismatch = errors.New("grid dimensions do not match")

// Class is the classification of a cell.
type Class int

// Cell classes.
const (
	Unknown Class = iota
	Free
	Occupied
)

func (c Class) String() string {
	switch c {
	case Unknown:
		return "unknown"
	case Free:
		return "free"
	case Occupied:
		return "occupied"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// Cell addresses a grid cell by column (X) and row (Y).
type Cell struct {
	X, Y int
}

func (c Cell) String() string {
	return fmt.Sprintf("[%d,%d]", c.X, c.Y)
}

// Grid is a width x height array of log-odds. It is not safe for concurrent use; the control
// loop owns it and hands out Snapshots to everyone else.
type Grid struct {
	params Params
	width  int
	height int
	origin r2.Vec
	prior  float64
	cells  []float64

	version uint64
}

// New returns a grid with every cell at the unknown prior. World (0, 0) is the centre of the grid.
func New(params Params) (*Grid, error) {
	if err := params.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid occupancy grid parameters")
	}
	width := int(math.Ceil(params.WidthCM / params.ResolutionCM))
	height := int(math.Ceil(params.HeightCM / params.ResolutionCM))
	g := &Grid{
		params: params,
		width:  width,
		height: height,
		origin: r2.Vec{
			X: -float64(width) * params.ResolutionCM / 2,
			Y: -float64(height) * params.ResolutionCM / 2,
		},
		prior: logit(params.UnknownPrior),
		cells: make([]float64, width*height),
	}
	g.fill()
	return g, nil
}

// Params returns the parameters the grid was built with.
func (g *Grid) Params() Params { return g.params }

// Width is the number of columns.
func (g *Grid) Width() int { return g.width }

// Height is the number of rows.
func (g *Grid) Height() int { return g.height }

// Resolution is the cell edge length in centimeters.
func (g *Grid) Resolution() float64 { return g.params.ResolutionCM }

// Origin is the world coordinate of the corner of cell [0,0].
func (g *Grid) Origin() r2.Vec { return g.origin }

// Version increases on every mutation.
func (g *Grid) Version() uint64 { return g.version }

// InBounds reports whether c lies on the grid.
func (g *Grid) InBounds(c Cell) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < g.width && c.Y < g.height
}

// WorldToCell returns the cell containing the world point. The result may be out of bounds.
func (g *Grid) WorldToCell(p r2.Vec) Cell {
	return Cell{
		X: int(math.Floor((p.X - g.origin.X) / g.params.ResolutionCM)),
		Y: int(math.Floor((p.Y - g.origin.Y) / g.params.ResolutionCM)),
	}
}

// CellToWorld returns the world coordinate of the centre of c.
func (g *Grid) CellToWorld(c Cell) r2.Vec {
	return r2.Vec{
		X: g.origin.X + (float64(c.X)+0.5)*g.params.ResolutionCM,
		Y: g.origin.Y + (float64(c.Y)+0.5)*g.params.ResolutionCM,
	}
}

func (g *Grid) index(c Cell) int {
	return c.Y*g.width + c.X
}

// LogOdds returns the stored value of an in-bounds cell.
func (g *Grid) LogOdds(c Cell) float64 {
	return g.cells[g.index(c)]
}

// Probability returns the occupancy probability of an in-bounds cell.
func (g *Grid) Probability(c Cell) float64 {
	return sigmoid(g.cells[g.index(c)])
}

// Classify returns the class of an in-bounds cell.
func (g *Grid) Classify(c Cell) Class {
	return g.params.classify(g.cells[g.index(c)])
}

func (p Params) classify(logOdds float64) Class {
	prob := sigmoid(logOdds)
	switch {
	case prob < p.FreeThreshold:
		return Free
	case prob > p.OccupiedThreshold:
		return Occupied
	default:
		return Unknown
	}
}

// Clear resets every cell to the unknown prior.
func (g *Grid) Clear() {
	g.fill()
	g.version++
}

func (g *Grid) fill() {
	for i := range g.cells {
		g.cells[i] = g.prior
	}
}

// Restore replaces every cell with the given row-major log-odds, clamping each to the configured
// bounds. NaN values are restored as the prior.
func (g *Grid) Restore(width, height int, logOdds []float64) error {
	if width != g.width || height != g.height || len(logOdds) != len(g.cells) {
		return errors.Wrapf(ErrDimensionMismatch, "have %dx%d, got %dx%d (%d values)",
			g.width, g.height, width, height, len(logOdds))
	}
	for i, l := range logOdds {
		if math.IsNaN(l) {
			l = g.prior
		}
		g.cells[i] = g.clamp(l)
	}
	g.version++
	return nil
}

func (g *Grid) clamp(l float64) float64 {
	return math.Max(g.params.LogOddsMin, math.Min(g.params.LogOddsMax, l))
}

func (g *Grid) update(c Cell, delta float64) {
	i := g.index(c)
	g.cells[i] = g.clamp(g.cells[i] + delta)
}

// ExploredFraction is the share of cells that are no longer unknown.
func (g *Grid) ExploredFraction() float64 {
	known := 0
	for _, l := range g.cells {
		if g.params.classify(l) != Unknown {
			known++
		}
	}
	return float64(known) / float64(len(g.cells))
}

// IntegrationStats describe what a call to Integrate did.
type IntegrationStats struct {
	BeamsUsed    int
	BeamsSkipped int
	CellsFreed   int
	CellsHit     int
}

// Integrate ray-casts every beam of the reading from pose. Cells strictly before the measured
// distance move toward free and the cell at the distance moves toward occupied. Malformed beams
// (NaN, zero, negative) and beams beyond the maximum range, including +Inf, are skipped without
// touching any cell. Cells off the grid are ignored.
func (g *Grid) Integrate(pose spatialmath.Pose, reading proximity.Reading) IntegrationStats {
	var stats IntegrationStats
	for _, beam := range reading.Beams(g.params.BeamAngleRad) {
		if !proximity.Measured(beam.DistanceCM) || beam.DistanceCM > g.params.MaxRangeCM {
			stats.BeamsSkipped++
			continue
		}
		stats.BeamsUsed++

		freed, marked := g.castRay(pose.Point(), pose.Along(beam.OffsetRad, beam.DistanceCM))
		stats.CellsFreed += freed
		stats.CellsHit += marked
	}
	if stats.CellsFreed+stats.CellsHit > 0 {
		g.version++
	}
	return stats
}

// castRay frees the cells before to and marks the cell at to. A hit inside the robot's own cell
// is dropped.
func (g *Grid) castRay(from, to r2.Vec) (freed, marked int) {
	origin := g.WorldToCell(from)
	ray := bresenham(origin, g.WorldToCell(to))
	last := len(ray) - 1
	for i, c := range ray {
		if !g.InBounds(c) {
			continue
		}
		if i == last {
			if c != origin {
				g.update(c, g.params.LogOddsHit)
				marked++
			}
			continue
		}
		g.update(c, -g.params.LogOddsMiss)
		freed++
	}
	return freed, marked
}
