package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	"github.com/picarx-labs/rover/components/base/fake"
	"github.com/picarx-labs/rover/components/sensor/proximity"
	"github.com/picarx-labs/rover/components/sensor/system"
	"github.com/picarx-labs/rover/config"
	"github.com/picarx-labs/rover/logging"
	"github.com/picarx-labs/rover/mapstore"
	"github.com/picarx-labs/rover/occupancy"
	"github.com/picarx-labs/rover/services/explore"
	"github.com/picarx-labs/rover/sim"
)

const defaultStatusInterval = 2 * time.Second

func runAction(c *cli.Context) (err error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, logCloser, err := logging.NewLoggerFromOptions("rover", cfg.Log.LoggingOptions())
	if err != nil {
		return err
	}
	logging.ReplaceGlobal(logger)
	defer func() {
		err = multierr.Combine(err, logger.Sync(), logCloser.Close())
	}()

	return runRover(c.Context, cfg, c.App.Reader, c.App.Writer, runOptions{
		explore:        c.Bool(exploreFlag),
		hostSensors:    c.Bool(hostFlag),
		statusInterval: c.Duration(statusFlag),
	}, logger)
}

type runOptions struct {
	explore        bool
	hostSensors    bool
	statusInterval time.Duration
}

// runRover drives the simulated rover until ctx is done or the command stream asks to quit.
func runRover(
	ctx context.Context,
	cfg *config.Config,
	in io.Reader,
	out io.Writer,
	opts runOptions,
	logger logging.Logger,
) (err error) {
	model, err := cfg.Navigation.Model()
	if err != nil {
		return err
	}

	simOpts := sim.DefaultOptions()
	simOpts.RadiusCM = math.Max(1, cfg.Navigation.RobotRadiusCM*0.8)
	simOpts.MaxRangeCM = cfg.Mapping.MaxSensorRangeCM
	simOpts.BeamAngleRad = cfg.Mapping.BeamAngleRad
	rover := sim.NewRover(sim.DefaultWorld(), model, nil, simOpts)

	var health explore.SystemSensor = rover
	if opts.hostSensors {
		health = system.NewSensor(func(ctx context.Context) (float64, error) {
			status, err := rover.SystemStatus(ctx)
			return status.BatteryPct, err
		}, logger.Sublogger("system"))
	}
	thresholds := explore.Thresholds{
		BatteryCriticalPct:   cfg.Safety.BatteryCriticalPct,
		TemperatureCriticalC: cfg.Safety.TemperatureCriticalC,
	}
	if err := explore.CheckSafeToStart(ctx, health, thresholds); err != nil {
		return err
	}

	deps := explore.Deps{
		Base:  fake.NewBase(rover, logger.Sublogger("base")),
		Model: model,
	}

	var store *mapstore.Store
	if cfg.Storage.Path != "" {
		store, err = mapstore.Open(cfg.Storage.Path, nil, logger.Sublogger("mapstore"))
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Combine(err, store.Close())
		}()
		deps.Store = store

		if cfg.Storage.LoadOnStart {
			grid, err := restoreLatest(ctx, store, cfg.Mapping.GridParams(), logger)
			if err != nil {
				return err
			}
			deps.Grid = grid
		}
	}

	ctrl, err := explore.NewController(deps, cfg.ExploreConfig(), logger.Sublogger("explore"))
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = multierr.Combine(err, ctrl.Close(closeCtx))
	}()

	if store != nil && cfg.Storage.SaveInterval > 0 {
		keep := cfg.Storage.KeepSnapshots
		autosaver, saveErr := mapstore.NewAutosaver(cfg.Storage.SaveInterval, func(ctx context.Context) error {
			if err := ctrl.SaveMap(ctx, "autosave"); err != nil {
				return err
			}
			if keep == 0 {
				return nil
			}
			_, err := store.Prune(ctx, keep)
			return err
		}, logger.Sublogger("autosave"))
		if saveErr != nil {
			return saveErr
		}
		autosaver.Start()
		defer func() {
			err = multierr.Combine(err, autosaver.Shutdown())
		}()
	}

	if cfg.ConfigFilePath != "" {
		watcher, watchErr := config.NewWatcher(cfg, func(next *config.Config) {
			ctrl.ApplyTuning(next.Tuning())
		}, logger.Sublogger("config"))
		if watchErr != nil {
			return watchErr
		}
		defer func() {
			err = multierr.Combine(err, watcher.Close())
		}()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	poller := proximity.NewPoller(rover, cfg.Sensor.Interval, nil, ctrl.SubmitReading, logger.Sublogger("proximity"))
	monitor := explore.NewMonitor(health, thresholds, cfg.Safety.MonitorInterval, nil, ctrl.SubmitSafetyEvent,
		logger.Sublogger("monitor"))

	ctrl.Start()
	if opts.explore {
		ctrl.SubmitCommand(explore.Command{Kind: explore.CommandSetMode, Autonomous: true})
	}
	logger.Infow("rover running", "kinematics", cfg.Navigation.Kinematics, "update_interval", cfg.UpdateInterval,
		"storage", cfg.Storage.Path)

	// stdin cannot be interrupted, so the reader is not part of the group
	utils.PanicCapturingGo(func() {
		readCommands(in, out, ctrl, cancel, logger)
	})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		poller.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		monitor.Run(groupCtx)
		return nil
	})
	if opts.statusInterval > 0 {
		group.Go(func() error {
			reportStatus(groupCtx, ctrl, opts.statusInterval, logger)
			return nil
		})
	}
	return group.Wait()
}

// restoreLatest returns a grid holding the newest stored map, or nil when there is none.
func restoreLatest(
	ctx context.Context,
	store *mapstore.Store,
	params occupancy.Params,
	logger logging.Logger,
) (*occupancy.Grid, error) {
	rec, err := store.Latest(ctx)
	if errors.Is(err, mapstore.ErrNotFound) {
		logger.Info("no stored map, starting empty")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	grid, err := occupancy.New(params)
	if err != nil {
		return nil, err
	}
	if err := rec.Restore(grid); err != nil {
		return nil, errors.Wrapf(err, "restoring map snapshot %d", rec.ID)
	}
	logger.Infow("restored map", "id", rec.ID, "taken_at", rec.TakenAt, "explored", rec.ExploredFraction)
	return grid, nil
}

// readCommands submits one command per input line until EOF. "quit" cancels the run.
func readCommands(in io.Reader, out io.Writer, ctrl *explore.Controller, quit func(), logger logging.Logger) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "quit", "exit":
			quit()
			return
		case "status":
			printStatus(out, ctrl.Snapshot())
			continue
		}
		cmd, err := explore.ParseCommand(line)
		if err != nil {
			fmt.Fprintf(out, "%v\n", err)
			continue
		}
		ctrl.SubmitCommand(cmd)
	}
	if err := scanner.Err(); err != nil {
		logger.Warnw("reading commands", "error", err)
	}
}

func reportStatus(ctx context.Context, ctrl *explore.Controller, interval time.Duration, logger logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		snap := ctrl.Snapshot()
		logger.Infow("status",
			"cycle", snap.Cycle,
			"state", snap.State,
			"motion", snap.Motion,
			"pose", snap.Pose,
			"explored", fmt.Sprintf("%.1f%%", snap.ExploredFraction*100),
			"reason", snap.Reason)
	}
}

func printStatus(out io.Writer, snap *explore.Snapshot) {
	fmt.Fprintf(out, "cycle %d state %s (%s) motion %s pose (%.1f, %.1f, %.2f) explored %.1f%% waypoints %d\n",
		snap.Cycle, snap.State, snap.Reason, snap.Motion, snap.Pose.X, snap.Pose.Y, snap.Pose.Theta,
		snap.ExploredFraction*100, len(snap.Path))
}
