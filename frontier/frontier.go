// Package frontier finds the boundary between explored free space and unexplored space on an
// occupancy grid and picks the next place to explore.
package frontier

import (
	"sort"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/picarx-labs/rover/occupancy"
	"github.com/picarx-labs/rover/spatialmath"
)

// A Frontier is a 4-connected set of free cells that each border unknown space.
type Frontier struct {
	Cells    []occupancy.Cell
	Centroid r2.Vec
}

// Size is the number of member cells.
func (f Frontier) Size() int {
	return len(f.Cells)
}

var neighbors4 = [4]occupancy.Cell{{X: 1}, {X: -1}, {Y: 1}, {Y: -1}}

func step(c, d occupancy.Cell) occupancy.Cell {
	return occupancy.Cell{X: c.X + d.X, Y: c.Y + d.Y}
}

// IsFrontierCell reports whether c is free with at least one in-bounds unknown 4-neighbour.
func IsFrontierCell(m occupancy.Map, c occupancy.Cell) bool {
	if !m.InBounds(c) || m.Classify(c) != occupancy.Free {
		return false
	}
	for _, d := range neighbors4 {
		n := step(c, d)
		if m.InBounds(n) && m.Classify(n) == occupancy.Unknown {
			return true
		}
	}
	return false
}

// Detect returns every frontier of at least minSize cells. Frontiers are ordered by their first
// cell in row-major order and their cells in discovery order, so an unchanged map always yields
// the same result.
func Detect(m occupancy.Map, minSize int) []Frontier {
	width, height := m.Width(), m.Height()
	isFrontier := make([]bool, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			isFrontier[y*width+x] = IsFrontierCell(m, occupancy.Cell{X: x, Y: y})
		}
	}

	visited := make([]bool, width*height)
	var frontiers []Frontier
	for i, ok := range isFrontier {
		if !ok || visited[i] {
			continue
		}
		visited[i] = true
		queue := []occupancy.Cell{{X: i % width, Y: i / width}}
		var cells []occupancy.Cell
		for len(queue) > 0 {
			c := queue[0]
			queue = queue[1:]
			cells = append(cells, c)
			for _, d := range neighbors4 {
				n := step(c, d)
				if !m.InBounds(n) {
					continue
				}
				j := n.Y*width + n.X
				if isFrontier[j] && !visited[j] {
					visited[j] = true
					queue = append(queue, n)
				}
			}
		}
		if len(cells) < minSize {
			continue
		}
		frontiers = append(frontiers, Frontier{Cells: cells, Centroid: centroid(m, cells)})
	}
	return frontiers
}

func centroid(m occupancy.Map, cells []occupancy.Cell) r2.Vec {
	var sum r2.Vec
	for _, c := range cells {
		sum = r2.Add(sum, m.CellToWorld(c))
	}
	return r2.Scale(1/float64(len(cells)), sum)
}

// Rank orders frontiers by centroid distance from pose, nearest first, breaking ties in favour of
// larger frontiers. The input is not modified.
func Rank(frontiers []Frontier, pose spatialmath.Pose) []Frontier {
	ranked := make([]Frontier, len(frontiers))
	copy(ranked, frontiers)
	sort.SliceStable(ranked, func(i, j int) bool {
		di, dj := pose.DistanceTo(ranked[i].Centroid), pose.DistanceTo(ranked[j].Centroid)
		if di != dj {
			return di < dj
		}
		return ranked[i].Size() > ranked[j].Size()
	})
	return ranked
}

// GoalCell is the member cell nearest the frontier's centroid. The centroid itself may lie
// outside the frontier.
func GoalCell(m occupancy.Map, f Frontier) occupancy.Cell {
	return lo.MinBy(f.Cells, func(a, b occupancy.Cell) bool {
		return r2.Norm(r2.Sub(m.CellToWorld(a), f.Centroid)) < r2.Norm(r2.Sub(m.CellToWorld(b), f.Centroid))
	})
}

// GoalCandidates lists the member cells the robot could stop on, nearest the centroid first.
// blocked is a row-major mask over m, as built by the planner; masked cells are left out. A nil
// mask keeps every member.
func GoalCandidates(m occupancy.Map, f Frontier, blocked []bool) []occupancy.Cell {
	candidates := lo.Filter(f.Cells, func(c occupancy.Cell, _ int) bool {
		return blocked == nil || !blocked[c.Y*m.Width()+c.X]
	})
	dist := func(c occupancy.Cell) float64 {
		return r2.Norm(r2.Sub(m.CellToWorld(c), f.Centroid))
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return dist(candidates[i]) < dist(candidates[j])
	})
	return candidates
}

// SelectGoal returns the best-ranked frontier and its goal cell. ok is false when there are no
// frontiers, meaning exploration is complete.
func SelectGoal(m occupancy.Map, frontiers []Frontier, pose spatialmath.Pose) (Frontier, occupancy.Cell, bool) {
	if len(frontiers) == 0 {
		return Frontier{}, occupancy.Cell{}, false
	}
	best := Rank(frontiers, pose)[0]
	return best, GoalCell(m, best), true
}
