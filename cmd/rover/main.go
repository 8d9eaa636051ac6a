// Package main is the rover command line: it runs the exploration loop against the simulated rover
// and inspects stored maps.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/picarx-labs/rover/config"
	"github.com/picarx-labs/rover/logging"
)

const (
	configFlag  = "config"
	debugFlag   = "debug"
	exploreFlag = "explore"
	hostFlag    = "host-sensors"
	statusFlag  = "status-interval"
	limitFlag   = "limit"
	scaleFlag   = "scale"
	dbFlag      = "db"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		logging.Global().Error(err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "rover",
		Usage: "autonomous exploration for a small indoor rover",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    configFlag,
				Aliases: []string{"c"},
				Usage:   "path to a JSON configuration file; defaults are used when unset",
			},
			&cli.BoolFlag{
				Name:  debugFlag,
				Usage: "log at debug level regardless of the configured level",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the exploration loop in the simulator, reading commands from stdin",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  exploreFlag,
						Usage: "start exploring immediately instead of waiting for set_mode autonomous",
					},
					&cli.BoolFlag{
						Name:  hostFlag,
						Usage: "monitor this computer's CPU temperature instead of the simulated one",
					},
					&cli.DurationFlag{
						Name:  statusFlag,
						Usage: "how often to log the rover's status; zero disables it",
						Value: defaultStatusInterval,
					},
				},
				Action: runAction,
			},
			{
				Name:  "map",
				Usage: "inspect stored map snapshots",
				Subcommands: []*cli.Command{
					{
						Name:  "list",
						Usage: "list stored snapshots, newest first",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: dbFlag, Usage: "map database; overrides storage.path"},
							&cli.IntFlag{Name: limitFlag, Usage: "maximum snapshots to list", Value: 20},
						},
						Action: mapListAction,
					},
					{
						Name:      "show",
						Usage:     "draw a stored snapshot as text",
						ArgsUsage: "[id]",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: dbFlag, Usage: "map database; overrides storage.path"},
							&cli.IntFlag{Name: scaleFlag, Usage: "grid cells per character", Value: 4},
						},
						Action: mapShowAction,
					},
				},
			},
			{
				Name:   "check",
				Usage:  "validate the configuration and summarize it",
				Action: checkAction,
			},
		},
	}
}

// loadConfig reads the file named by --config, or returns the defaults.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	if path := c.String(configFlag); path != "" {
		read, err := config.Read(path)
		if err != nil {
			return nil, err
		}
		cfg = read
	} else {
		def := config.Default()
		cfg = &def
	}
	if c.Bool(debugFlag) {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}
