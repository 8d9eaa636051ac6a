package occupancy

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// A Map is a read-only view of occupancy classification. Grid and Snapshot implement it.
type Map interface {
	Width() int
	Height() int
	Resolution() float64
	InBounds(c Cell) bool
	Classify(c Cell) Class
	WorldToCell(p r2.Vec) Cell
	CellToWorld(c Cell) r2.Vec
}

var (
	_ Map = (*Grid)(nil)
	_ Map = (*Snapshot)(nil)
)

// Snapshot is an immutable copy of a grid at a given version.
type Snapshot struct {
	params  Params
	width   int
	height  int
	origin  r2.Vec
	logOdds []float64
	version uint64
}

// Snapshot copies the grid.
func (g *Grid) Snapshot() *Snapshot {
	cells := make([]float64, len(g.cells))
	copy(cells, g.cells)
	return &Snapshot{
		params:  g.params,
		width:   g.width,
		height:  g.height,
		origin:  g.origin,
		logOdds: cells,
		version: g.version,
	}
}

// Width is the number of columns.
func (s *Snapshot) Width() int { return s.width }

// Height is the number of rows.
func (s *Snapshot) Height() int { return s.height }

// Resolution is the cell edge length in centimeters.
func (s *Snapshot) Resolution() float64 { return s.params.ResolutionCM }

// Origin is the world coordinate of the corner of cell [0,0].
func (s *Snapshot) Origin() r2.Vec { return s.origin }

// Version is the grid version the snapshot was taken at.
func (s *Snapshot) Version() uint64 { return s.version }

// InBounds reports whether c lies on the grid.
func (s *Snapshot) InBounds(c Cell) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < s.width && c.Y < s.height
}

// Classify returns the class of an in-bounds cell.
func (s *Snapshot) Classify(c Cell) Class {
	return s.params.classify(s.logOdds[c.Y*s.width+c.X])
}

// WorldToCell returns the cell containing the world point.
func (s *Snapshot) WorldToCell(p r2.Vec) Cell {
	return Cell{
		X: int(math.Floor((p.X - s.origin.X) / s.params.ResolutionCM)),
		Y: int(math.Floor((p.Y - s.origin.Y) / s.params.ResolutionCM)),
	}
}

// CellToWorld returns the world coordinate of the centre of c.
func (s *Snapshot) CellToWorld(c Cell) r2.Vec {
	return r2.Vec{
		X: s.origin.X + (float64(c.X)+0.5)*s.params.ResolutionCM,
		Y: s.origin.Y + (float64(c.Y)+0.5)*s.params.ResolutionCM,
	}
}

// LogOdds returns a copy of the row-major log-odds.
func (s *Snapshot) LogOdds() []float64 {
	out := make([]float64, len(s.logOdds))
	copy(out, s.logOdds)
	return out
}

// Probabilities returns the row-major occupancy probabilities.
func (s *Snapshot) Probabilities() []float64 {
	out := make([]float64, len(s.logOdds))
	for i, l := range s.logOdds {
		out[i] = sigmoid(l)
	}
	return out
}

// ExploredFraction is the share of cells that are not unknown.
func (s *Snapshot) ExploredFraction() float64 {
	known := 0
	for _, l := range s.logOdds {
		if s.params.classify(l) != Unknown {
			known++
		}
	}
	return float64(known) / float64(len(s.logOdds))
}
