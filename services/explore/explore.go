// Package explore runs the rover's control loop. Each cycle it advances dead reckoning, applies
// safety events and operator commands, folds the newest proximity sample into the occupancy grid,
// plans toward the nearest reachable frontier while autonomous, and issues at most one base
// command. Telemetry reads immutable snapshots published at the end of each cycle.
package explore

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/picarx-labs/rover/components/base"
	"github.com/picarx-labs/rover/components/sensor/proximity"
	"github.com/picarx-labs/rover/frontier"
	"github.com/picarx-labs/rover/kinematics"
	"github.com/picarx-labs/rover/logging"
	"github.com/picarx-labs/rover/motionplan"
	"github.com/picarx-labs/rover/occupancy"
	"github.com/picarx-labs/rover/services/motion"
	"github.com/picarx-labs/rover/services/safety"
	"github.com/picarx-labs/rover/spatialmath"
	"github.com/picarx-labs/rover/utils"
)

// Config holds the loop's tuning.
type Config struct {
	UpdateInterval    time.Duration
	MinFrontierSize   int
	MaxPlanAttempts   int
	MaxReplanAttempts int
	RobotRadiusCM     float64

	Grid   occupancy.Params
	Motion motion.Config
}

// DefaultConfig returns a 10Hz loop on the default grid.
func DefaultConfig() Config {
	return Config{
		UpdateInterval:    100 * time.Millisecond,
		MinFrontierSize:   3,
		MaxPlanAttempts:   5,
		MaxReplanAttempts: 3,
		RobotRadiusCM:     10,
		Grid:              occupancy.DefaultParams(),
		Motion:            motion.DefaultConfig(),
	}
}

// Tuning are the settings that may change while the loop runs.
type Tuning struct {
	MaxSpeedPct           float64
	TurnSpeedPct          float64
	MinObstacleDistanceCM float64
}

// A MapSaver persists grid snapshots. *mapstore.Store is the production saver.
type MapSaver interface {
	Save(ctx context.Context, snap *occupancy.Snapshot, pose spatialmath.Pose, reason string) (int64, error)
}

// Deps are the collaborators of a Controller. Store, Clock and Grid are optional.
type Deps struct {
	Base  base.Base
	Model kinematics.Model
	Store MapSaver
	Clock clock.Clock
	// Grid is used in place of a fresh grid, for example one restored from a saved map. Its
	// parameters take precedence over Config.Grid.
	Grid *occupancy.Grid
}

type saveRequest struct {
	snap   *occupancy.Snapshot
	pose   spatialmath.Pose
	reason string
}

// Controller owns the grid, the pose estimate and the safety arbiter. Inputs may be submitted
// from any goroutine; everything else is touched only by the goroutine running Step.
type Controller struct {
	cfg    Config
	clock  clock.Clock
	logger logging.Logger

	base      base.Base
	store     MapSaver
	grid      *occupancy.Grid
	estimator *kinematics.Estimator
	planner   *motionplan.Planner
	arbiter   *safety.Arbiter
	motion    *motion.Controller

	readings     *utils.Slot[proximity.Reading]
	commands     *utils.Slot[Command]
	safetyEvents *utils.Slot[SafetyEvent]
	tuning       *utils.Slot[Tuning]
	saves        *utils.Slot[saveRequest]

	reading   proximity.Reading
	lastCmd   kinematics.Command
	lastCmdAt time.Time
	goal      *occupancy.Cell
	excluded  map[occupancy.Cell]struct{}
	replans   int
	cycle     uint64
	skipped   uint64

	view    *GridView
	occ     *occupancy.Snapshot
	latest  atomic.Pointer[Snapshot]
	started atomic.Bool
	workers *utils.StoppableWorkers
}

// NewController builds the loop. Call Start to run it on a ticker, or Step to drive it by hand.
func NewController(deps Deps, cfg Config, logger logging.Logger) (*Controller, error) {
	if deps.Base == nil {
		return nil, errors.New("explore controller needs a base")
	}
	if deps.Model == nil {
		deps.Model = kinematics.Differential{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if cfg.UpdateInterval <= 0 {
		return nil, errors.Errorf("update interval must be positive, got %v", cfg.UpdateInterval)
	}
	if cfg.MinFrontierSize < 1 {
		cfg.MinFrontierSize = 1
	}
	if cfg.MaxPlanAttempts < 1 {
		cfg.MaxPlanAttempts = 1
	}
	if cfg.Motion.Period <= 0 {
		cfg.Motion.Period = cfg.UpdateInterval
	}

	grid := deps.Grid
	if grid == nil {
		var err error
		if grid, err = occupancy.New(cfg.Grid); err != nil {
			return nil, errors.Wrap(err, "creating occupancy grid")
		}
	}
	cfg.Grid = grid.Params()

	arbiter := safety.NewArbiter(deps.Clock, logger.Sublogger("safety"))
	c := &Controller{
		cfg:          cfg,
		clock:        deps.Clock,
		logger:       logger,
		base:         deps.Base,
		store:        deps.Store,
		grid:         grid,
		estimator:    kinematics.NewEstimator(deps.Model),
		planner:      motionplan.NewPlanner(cfg.RobotRadiusCM, logger.Sublogger("planner")),
		arbiter:      arbiter,
		motion:       motion.NewController(cfg.Motion, deps.Base, deps.Model, arbiter, logger.Sublogger("motion")),
		readings:     utils.NewSlot[proximity.Reading](),
		commands:     utils.NewSlot[Command](),
		safetyEvents: utils.NewSlot[SafetyEvent](),
		tuning:       utils.NewSlot[Tuning](),
		saves:        utils.NewSlot[saveRequest](),
		lastCmd:      kinematics.Stop,
		excluded:     map[occupancy.Cell]struct{}{},
	}
	c.publish(c.clock.Now(), motion.Outcome{Status: motion.StatusIdle})
	c.workers = utils.NewStoppableWorkers(c.saveLoop)
	return c, nil
}

// SubmitReading offers the newest proximity sample. An unconsumed older sample is dropped.
func (c *Controller) SubmitReading(r proximity.Reading) {
	c.readings.Put(r)
}

// SubmitCommand offers an operator command. emergency_stop is routed to the safety slot so that a
// later command cannot overwrite it.
func (c *Controller) SubmitCommand(cmd Command) {
	if cmd.Kind == CommandEmergencyStop {
		c.safetyEvents.Put(SafetyEvent{Kind: SafetyEmergencyStop})
		return
	}
	c.commands.Put(cmd)
}

// SubmitSafetyEvent offers a safety event. It is handled before any command in the next cycle.
func (c *Controller) SubmitSafetyEvent(ev SafetyEvent) {
	c.safetyEvents.Put(ev)
}

// ApplyTuning changes speed caps and the obstacle distance from the next cycle on.
func (c *Controller) ApplyTuning(t Tuning) {
	c.tuning.Put(t)
}

// Snapshot returns the last published snapshot. It is never nil and never mutated.
func (c *Controller) Snapshot() *Snapshot {
	return c.latest.Load()
}

// SafetyState returns the arbiter's current state.
func (c *Controller) SafetyState() safety.State {
	return c.arbiter.State()
}

// Start runs Step every UpdateInterval on the controller's clock until Close.
func (c *Controller) Start() {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	c.workers.Add(c.run)
}

func (c *Controller) run(ctx context.Context) {
	ticker := c.clock.Ticker(c.cfg.UpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		c.Step(ctx)
	}
}

// SaveMap persists the grid as of the last published snapshot. It may be called from any
// goroutine.
func (c *Controller) SaveMap(ctx context.Context, reason string) error {
	if c.store == nil {
		return errors.New("no map store configured")
	}
	snap := c.Snapshot()
	id, err := c.store.Save(ctx, snap.occ, snap.Pose, reason)
	if err != nil {
		return errors.Wrap(err, "saving map")
	}
	c.logger.Debugw("map saved", "id", id, "reason", reason, "version", snap.occ.Version())
	return nil
}

func (c *Controller) saveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.saves.Ready():
		}
		req, ok := c.saves.Take()
		if !ok {
			continue
		}
		id, err := c.store.Save(ctx, req.snap, req.pose, req.reason)
		if err != nil {
			c.logger.Errorw("saving map failed", "reason", req.reason, "error", err)
			continue
		}
		c.logger.Infow("map saved", "id", id, "reason", req.reason)
	}
}

// Close stops the loop, halts the base and saves the final map when a store is configured.
func (c *Controller) Close(ctx context.Context) error {
	c.workers.Stop()
	err := errors.Wrap(c.motion.Stop(ctx), "stopping base")
	if c.store != nil {
		if _, serr := c.store.Save(ctx, c.grid.Snapshot(), c.estimator.Pose(), "shutdown"); serr != nil {
			err = multierr.Combine(err, errors.Wrap(serr, "saving final map"))
		}
	}
	return err
}

// Step runs one control cycle and returns the snapshot it published. It must not be called while
// the controller is started.
func (c *Controller) Step(ctx context.Context) *Snapshot {
	now := c.clock.Now()
	c.cycle++

	c.advancePose(now)
	c.drainSafety(ctx)
	c.drainTuning()
	c.drainCommand(ctx)

	pose := c.estimator.Pose()
	c.integrateReading(now, pose)
	if c.arbiter.ShouldPlan() && c.motion.Path() == nil {
		c.explore(ctx, pose)
	}

	out := c.motion.Step(ctx, pose, c.reading, now)
	c.handleOutcome(ctx, out, now)
	return c.publish(now, out)
}

// advancePose integrates the command in flight since the last cycle.
func (c *Controller) advancePose(now time.Time) {
	if c.lastCmdAt.IsZero() || c.lastCmd.IsStop() {
		c.lastCmdAt = now
		return
	}
	elapsed := now.Sub(c.lastCmdAt)
	c.estimator.Apply(c.lastCmd, elapsed)
	if c.lastCmd.Duration > 0 {
		if remaining := c.lastCmd.Duration - elapsed; remaining > 0 {
			c.lastCmd.Duration = remaining
		} else {
			c.lastCmd = kinematics.Stop
		}
	}
	c.lastCmdAt = now
}

// transition forwards event to the arbiter. Any change of state discards the active path or
// manual command; an emergency stop also halts the base at once.
func (c *Controller) transition(ctx context.Context, event safety.Event, reason string) bool {
	if !c.arbiter.Handle(event, reason) {
		return false
	}
	c.motion.Abort()
	c.goal = nil
	switch c.arbiter.State() {
	case safety.EmergencyStopped:
		c.halt(ctx)
	case safety.Autonomous:
		if event == safety.Explore {
			c.excluded = map[occupancy.Cell]struct{}{}
			c.replans = 0
		}
	case safety.Idle, safety.Manual, safety.Avoiding:
	}
	return true
}

func (c *Controller) halt(ctx context.Context) {
	if err := c.motion.Stop(ctx); err != nil {
		c.logger.Errorw("stopping base failed", "error", err)
	}
	c.lastCmd = kinematics.Stop
}

func (c *Controller) drainSafety(ctx context.Context) {
	ev, ok := c.safetyEvents.Take()
	if !ok {
		return
	}
	event, err := ev.event()
	if err != nil {
		c.logger.Warnw("ignoring safety event", "error", err)
		return
	}
	c.transition(ctx, event, ev.reason())
}

func (c *Controller) drainTuning() {
	t, ok := c.tuning.Take()
	if !ok {
		return
	}
	c.motion.SetSpeed(t.MaxSpeedPct, t.TurnSpeedPct)
	c.motion.SetMinObstacleDistance(t.MinObstacleDistanceCM)
	cfg := c.motion.Config()
	c.logger.Infow("tuning applied", "max_speed_pct", cfg.MaxSpeedPct, "turn_speed_pct", cfg.TurnSpeedPct,
		"min_obstacle_distance_cm", cfg.MinObstacleDistanceCM)
}

func (c *Controller) drainCommand(ctx context.Context) {
	cmd, ok := c.commands.Take()
	if !ok {
		return
	}
	c.logger.Debugw("command", "command", cmd, "state", c.arbiter.State())

	switch cmd.Kind {
	case CommandForward, CommandBackward, CommandLeft, CommandRight:
		kind, _ := cmd.manualKind()
		if c.arbiter.State() != safety.Manual && !c.transition(ctx, safety.ManualInput, "manual "+kind.String()) {
			c.logger.Warnw("manual command rejected", "command", cmd, "state", c.arbiter.State())
			return
		}
		c.motion.SetManual(kind)
	case CommandStop:
		c.motion.Abort()
		c.halt(ctx)
		if state := c.arbiter.State(); state == safety.Autonomous || state == safety.Avoiding {
			c.transition(ctx, safety.Disengage, "stop command")
		}
	case CommandEmergencyStop:
		c.transition(ctx, safety.EmergencyStop, "emergency stop requested")
	case CommandSetSpeed:
		c.motion.SetSpeed(cmd.Value, c.motion.Config().TurnSpeedPct)
		c.logger.Infow("speed set", "max_speed_pct", c.motion.Config().MaxSpeedPct)
	case CommandSetMode:
		if cmd.Autonomous {
			if !c.transition(ctx, safety.Explore, "autonomous mode requested") {
				c.logger.Warnw("autonomous mode rejected", "state", c.arbiter.State())
			}
			return
		}
		if state := c.arbiter.State(); state == safety.Autonomous || state == safety.Avoiding {
			c.transition(ctx, safety.Disengage, "manual mode requested")
		}
	case CommandReset:
		if !c.transition(ctx, safety.Reset, "operator reset") {
			c.logger.Debugw("reset ignored", "state", c.arbiter.State())
		}
	case CommandCenter:
		c.estimator.Reset()
		c.motion.Abort()
		c.goal = nil
		c.excluded = map[occupancy.Cell]struct{}{}
		c.logger.Infow("pose reset to origin")
	case CommandClearMap:
		c.grid.Clear()
		c.motion.Abort()
		c.goal = nil
		c.excluded = map[occupancy.Cell]struct{}{}
		c.logger.Infow("map cleared")
	case CommandSaveMap:
		if c.store == nil {
			c.logger.Warnw("cannot save map, no store configured")
			return
		}
		c.saves.Put(saveRequest{snap: c.grid.Snapshot(), pose: c.estimator.Pose(), reason: "save_map"})
	default:
		c.logger.Warnw("unknown command", "kind", cmd.Kind)
	}
}

func (c *Controller) integrateReading(now time.Time, pose spatialmath.Pose) {
	r, ok := c.readings.Take()
	if !ok {
		return
	}
	c.reading = r
	if r.Timestamp.IsZero() || now.Sub(r.Timestamp) > c.cfg.Motion.SensorTimeout {
		c.logger.Debugw("not mapping stale reading", "reading", r, "taken", r.Timestamp)
		return
	}
	stats := c.grid.Integrate(pose, r)
	if stats.BeamsSkipped > 0 {
		c.skipped += uint64(stats.BeamsSkipped)
		c.logger.Debugw("skipped malformed beams", "reading", r, "skipped", stats.BeamsSkipped)
	}
}

// explore plans toward the best reachable frontier. Each frontier offers its member cells outside
// the robot's clearance, nearest the centroid first. Goals that failed to plan, or that were
// already reached, are excluded until exploration restarts or the map or pose is reset.
func (c *Controller) explore(ctx context.Context, pose spatialmath.Pose) {
	start := c.grid.WorldToCell(pose.Point())
	if !c.grid.InBounds(start) {
		c.transition(ctx, safety.ExplorationStalled, fmt.Sprintf("rover at %v is outside the map", pose))
		return
	}
	frontiers := frontier.Detect(c.grid, c.cfg.MinFrontierSize)
	if len(frontiers) == 0 {
		c.transition(ctx, safety.ExplorationComplete,
			fmt.Sprintf("no frontiers remain, %.0f%% explored", 100*c.grid.ExploredFraction()))
		return
	}

	// the planner rejects goals inside the clearance
	blocked := c.planner.Blocked(c.grid)
	attempts := 0
search:
	for _, f := range frontier.Rank(frontiers, pose) {
		for _, goal := range frontier.GoalCandidates(c.grid, f, blocked) {
			if _, ok := c.excluded[goal]; ok {
				continue
			}
			if attempts == c.cfg.MaxPlanAttempts {
				break search
			}
			attempts++

			path, err := c.planner.Plan(ctx, c.grid, start, goal)
			if errors.Is(err, motionplan.ErrNoPath) {
				c.excluded[goal] = struct{}{}
				c.logger.Debugw("frontier goal unreachable", "goal", goal, "error", err)
				continue
			}
			if err != nil {
				c.logger.Warnw("planning aborted", "error", err)
				return
			}

			if c.arbiter.State() == safety.Avoiding {
				c.transition(ctx, safety.ReplanSucceeded, fmt.Sprintf("replanned to %v", goal))
			}
			c.motion.SetPath(path)
			c.goal = &goal
			c.logger.Infow("exploring frontier", "goal", goal, "frontier_size", f.Size(),
				"waypoints", len(path.Waypoints), "cost_cm", path.CostCM, "path", path.ID)
			return
		}
	}
	c.transition(ctx, safety.ExplorationStalled,
		fmt.Sprintf("no reachable frontier among %d after %d planning attempts", len(frontiers), attempts))
}

func (c *Controller) handleOutcome(ctx context.Context, out motion.Outcome, now time.Time) {
	if out.Issued {
		c.lastCmd = out.Command
		c.lastCmdAt = now
	}

	switch out.Status {
	case motion.StatusObstacleBlocked:
		goal := c.goal
		if state := c.arbiter.State(); state == safety.Autonomous || state == safety.Manual {
			c.transition(ctx, safety.ObstacleBlocked,
				fmt.Sprintf("obstacle %.0fcm away on %s beam", out.DistanceCM, out.Beam))
		}
		if !c.arbiter.ShouldPlan() {
			return
		}
		if goal != nil {
			c.excluded[*goal] = struct{}{}
		}
		c.replans++
		if c.replans > c.cfg.MaxReplanAttempts {
			c.transition(ctx, safety.ExplorationStalled,
				fmt.Sprintf("blocked by obstacles %d times in a row", c.replans))
		}
	case motion.StatusArrived:
		if c.goal != nil {
			c.excluded[*c.goal] = struct{}{}
			c.goal = nil
		}
		c.replans = 0
	case motion.StatusFault:
		c.logger.Errorw("motion fault", "error", out.Err)
	case motion.StatusIdle, motion.StatusDriving, motion.StatusManual, motion.StatusSensorStale, motion.StatusRejected:
	}
}
