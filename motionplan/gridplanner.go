// Package motionplan plans collision-free routes across an occupancy grid.
package motionplan

import (
	"container/heap"
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/picarx-labs/rover/logging"
	"github.com/picarx-labs/rover/occupancy"
)

// ErrNoPath is returned when no collision-free route connects start and goal. It is recoverable:
// callers should pick a different goal rather than retry.
var ErrNoPath = errors.New("no collision-free path to goal")

// Path is a planned route.
type Path struct {
	ID    uuid.UUID
	Goal  occupancy.Cell
	Cells []occupancy.Cell
	// Waypoints are the world centres of the cells where the heading changes, followed by the goal.
	Waypoints []r2.Vec
	// Turns is the number of heading changes along the route.
	Turns  int
	CostCM float64
}

// Points returns the waypoints as [x, y] pairs.
func (p *Path) Points() [][2]float64 {
	if p == nil {
		return nil
	}
	out := make([][2]float64, 0, len(p.Waypoints))
	for _, w := range p.Waypoints {
		out = append(out, [2]float64{w.X, w.Y})
	}
	return out
}

// integer move costs, 10 per orthogonal step and 14 per diagonal step
const (
	costStraight = 10
	costDiagonal = 14
)

var directions = [8]occupancy.Cell{
	{X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}, {X: -1, Y: 1},
	{X: -1, Y: 0}, {X: -1, Y: -1}, {X: 0, Y: -1}, {X: 1, Y: -1},
}

// noHeading marks the start state, which has not moved yet.
const noHeading = len(directions)

// Planner runs A* over 8-connected cells, keeping the robot's footprint clear of occupied cells.
// Unknown cells are traversable.
type Planner struct {
	robotRadiusCM float64
	logger        logging.Logger
}

// NewPlanner returns a planner for a robot of the given radius.
func NewPlanner(robotRadiusCM float64, logger logging.Logger) *Planner {
	return &Planner{robotRadiusCM: robotRadiusCM, logger: logger}
}

// InflationCells is the number of cells occupied cells are grown by.
func (p *Planner) InflationCells(resolutionCM float64) int {
	if p.robotRadiusCM <= 0 {
		return 0
	}
	return int(math.Ceil(p.robotRadiusCM / resolutionCM))
}

// Blocked returns a row-major mask of cells the robot's centre may not enter: occupied cells and
// every cell within the inflation radius of one.
func (p *Planner) Blocked(m occupancy.Map) []bool {
	width, height := m.Width(), m.Height()
	r := p.InflationCells(m.Resolution())
	var disc []occupancy.Cell
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				disc = append(disc, occupancy.Cell{X: dx, Y: dy})
			}
		}
	}

	blocked := make([]bool, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if m.Classify(occupancy.Cell{X: x, Y: y}) != occupancy.Occupied {
				continue
			}
			for _, d := range disc {
				c := occupancy.Cell{X: x + d.X, Y: y + d.Y}
				if m.InBounds(c) {
					blocked[c.Y*width+c.X] = true
				}
			}
		}
	}
	return blocked
}

// Plan finds the cheapest route from start to goal. Among routes of equal cost the one with the
// fewest heading changes wins. Every cell of the path keeps the robot's radius of clearance from
// occupied cells, except that the start cell is exempt: a robot that has drifted close to an
// obstacle can still leave, so the first cells of such a path may lie within the radius of an
// occupied cell. A goal inside the clearance returns ErrNoPath.
func (p *Planner) Plan(ctx context.Context, m occupancy.Map, start, goal occupancy.Cell) (*Path, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !m.InBounds(start) {
		return nil, errors.Wrapf(ErrNoPath, "start %v is off the grid", start)
	}
	if !m.InBounds(goal) {
		return nil, errors.Wrapf(ErrNoPath, "goal %v is off the grid", goal)
	}

	width := m.Width()
	blocked := p.Blocked(m)
	index := func(c occupancy.Cell) int { return c.Y*width + c.X }
	if blocked[index(goal)] {
		return nil, errors.Wrapf(ErrNoPath, "goal %v is inside the robot's clearance", goal)
	}
	passable := func(c occupancy.Cell) bool {
		return m.InBounds(c) && (c == start || !blocked[index(c)])
	}

	const headings = noHeading + 1
	numStates := len(blocked) * headings
	stateOf := func(c occupancy.Cell, heading int) int { return index(c)*headings + heading }
	cellOf := func(s int) occupancy.Cell {
		i := s / headings
		return occupancy.Cell{X: i % width, Y: i / width}
	}

	gCost := make([]int, numStates)
	turns := make([]int, numStates)
	parent := make([]int, numStates)
	closed := make([]bool, numStates)
	for i := range gCost {
		gCost[i] = math.MaxInt
		parent[i] = -1
	}

	open := &openSet{}
	startState := stateOf(start, noHeading)
	gCost[startState] = 0
	heap.Push(open, &node{state: startState, f: octile(start, goal), h: octile(start, goal)})

	expanded := 0
	for open.Len() > 0 {
		cur := heap.Pop(open).(*node)
		if closed[cur.state] {
			continue
		}
		closed[cur.state] = true

		expanded++
		if expanded%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		c := cellOf(cur.state)
		if c == goal {
			path := p.reconstruct(m, parent, cur.state, cellOf, goal)
			path.Turns = turns[cur.state]
			path.CostCM = float64(gCost[cur.state]) / costStraight * m.Resolution()
			p.logger.Debugw("planned path", "start", start, "goal", goal,
				"cells", len(path.Cells), "turns", path.Turns, "expanded", expanded)
			return path, nil
		}

		heading := cur.state % headings
		for dir, d := range directions {
			next := occupancy.Cell{X: c.X + d.X, Y: c.Y + d.Y}
			if !passable(next) {
				continue
			}
			cost := costStraight
			if d.X != 0 && d.Y != 0 {
				// no squeezing between two blocked orthogonal neighbours
				if !passable(occupancy.Cell{X: c.X + d.X, Y: c.Y}) || !passable(occupancy.Cell{X: c.X, Y: c.Y + d.Y}) {
					continue
				}
				cost = costDiagonal
			}
			ns := stateOf(next, dir)
			if closed[ns] {
				continue
			}
			ng := gCost[cur.state] + cost
			nt := turns[cur.state]
			if heading != noHeading && heading != dir {
				nt++
			}
			if ng > gCost[ns] || (ng == gCost[ns] && nt >= turns[ns]) {
				continue
			}
			gCost[ns] = ng
			turns[ns] = nt
			parent[ns] = cur.state
			h := octile(next, goal)
			heap.Push(open, &node{state: ns, f: ng + h, turns: nt, h: h})
		}
	}
	return nil, errors.Wrapf(ErrNoPath, "from %v to %v after expanding %d states", start, goal, expanded)
}

func (p *Planner) reconstruct(
	m occupancy.Map,
	parent []int,
	end int,
	cellOf func(int) occupancy.Cell,
	goal occupancy.Cell,
) *Path {
	var cells []occupancy.Cell
	for s := end; s != -1; s = parent[s] {
		cells = append(cells, cellOf(s))
	}
	for i, j := 0, len(cells)-1; i < j; i, j = i+1, j-1 {
		cells[i], cells[j] = cells[j], cells[i]
	}

	var waypoints []r2.Vec
	for i := 1; i+1 < len(cells); i++ {
		in := occupancy.Cell{X: cells[i].X - cells[i-1].X, Y: cells[i].Y - cells[i-1].Y}
		out := occupancy.Cell{X: cells[i+1].X - cells[i].X, Y: cells[i+1].Y - cells[i].Y}
		if in != out {
			waypoints = append(waypoints, m.CellToWorld(cells[i]))
		}
	}
	waypoints = append(waypoints, m.CellToWorld(goal))

	return &Path{
		ID:        uuid.New(),
		Goal:      goal,
		Cells:     cells,
		Waypoints: waypoints,
	}
}

// octile is the exact cost of an unobstructed 8-connected move.
func octile(a, b occupancy.Cell) int {
	dx, dy := a.X-b.X, a.Y-b.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	lo, hi := min(dx, dy), max(dx, dy)
	return costStraight*hi + (costDiagonal-costStraight)*lo
}
