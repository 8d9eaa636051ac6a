package explore

import (
	"time"

	"github.com/picarx-labs/rover/components/sensor/proximity"
	"github.com/picarx-labs/rover/occupancy"
	"github.com/picarx-labs/rover/services/motion"
	"github.com/picarx-labs/rover/services/safety"
	"github.com/picarx-labs/rover/spatialmath"
	"github.com/picarx-labs/rover/utils"
)

// GridView is the occupancy grid as telemetry sees it: row-major occupancy probabilities. A view is
// shared by every snapshot published at the same grid version, so Probabilities is read-only.
type GridView struct {
	Width         int        `json:"width"`
	Height        int        `json:"height"`
	ResolutionCM  float64    `json:"resolution_cm"`
	Origin        [2]float64 `json:"origin"`
	Version       uint64     `json:"version"`
	Probabilities []float64  `json:"probabilities"`
}

// InputStats count submitted inputs and those overwritten before a cycle consumed them.
type InputStats struct {
	Readings utils.SlotStats `json:"readings"`
	Commands utils.SlotStats `json:"commands"`
	Safety   utils.SlotStats `json:"safety"`
}

// Snapshot is the state published at the end of a cycle. Snapshots are shared between readers and
// must not be modified.
type Snapshot struct {
	Cycle            uint64            `json:"cycle"`
	TakenAt          time.Time         `json:"taken_at"`
	Grid             *GridView         `json:"grid"`
	Pose             spatialmath.Pose  `json:"pose"`
	Path             [][2]float64      `json:"path,omitempty"`
	State            safety.State      `json:"state"`
	Reason           string            `json:"reason"`
	Reading          proximity.Reading `json:"reading"`
	Motion           string            `json:"motion"`
	ExploredFraction float64           `json:"explored_fraction"`
	SkippedBeams     uint64            `json:"skipped_beams"`
	Inputs           InputStats        `json:"inputs"`

	occ *occupancy.Snapshot
}

// Map returns the grid this snapshot was taken from.
func (s *Snapshot) Map() *occupancy.Snapshot {
	return s.occ
}

func (c *Controller) publish(now time.Time, out motion.Outcome) *Snapshot {
	if c.occ == nil || c.occ.Version() != c.grid.Version() {
		c.occ = c.grid.Snapshot()
		origin := c.occ.Origin()
		c.view = &GridView{
			Width:         c.occ.Width(),
			Height:        c.occ.Height(),
			ResolutionCM:  c.occ.Resolution(),
			Origin:        [2]float64{origin.X, origin.Y},
			Version:       c.occ.Version(),
			Probabilities: c.occ.Probabilities(),
		}
	}

	snap := &Snapshot{
		Cycle:            c.cycle,
		TakenAt:          now,
		Grid:             c.view,
		Pose:             c.estimator.Pose(),
		Path:             c.motion.RemainingWaypoints(),
		State:            c.arbiter.State(),
		Reason:           c.arbiter.Reason(),
		Reading:          c.reading,
		Motion:           out.Status.String(),
		ExploredFraction: c.occ.ExploredFraction(),
		SkippedBeams:     c.skipped,
		Inputs: InputStats{
			Readings: c.readings.Stats(),
			Commands: c.commands.Stats(),
			Safety:   c.safetyEvents.Stats(),
		},
		occ: c.occ,
	}
	c.latest.Store(snap)
	return snap
}
