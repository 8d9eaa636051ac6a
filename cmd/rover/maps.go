package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/picarx-labs/rover/logging"
	"github.com/picarx-labs/rover/mapstore"
	"github.com/picarx-labs/rover/occupancy"
)

func openStore(c *cli.Context) (*mapstore.Store, error) {
	path := c.String(dbFlag)
	if path == "" {
		cfg, err := loadConfig(c)
		if err != nil {
			return nil, err
		}
		path = cfg.Storage.Path
	}
	if path == "" {
		return nil, errors.New("no map database: pass --db or set storage.path")
	}
	return mapstore.Open(path, nil, logging.NewBlankLogger("mapstore"))
}

func mapListAction(c *cli.Context) (err error) {
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, store.Close())
	}()

	summaries, err := store.List(c.Context, c.Int(limitFlag))
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Fprintln(c.App.Writer, "no stored maps")
		return nil
	}
	lines := lo.Map(summaries, func(s mapstore.Summary, _ int) string {
		return formatSummary(s)
	})
	fmt.Fprintln(c.App.Writer, strings.Join(lines, "\n"))
	return nil
}

func mapShowAction(c *cli.Context) (err error) {
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, store.Close())
	}()

	var rec *mapstore.Record
	if arg := c.Args().First(); arg != "" {
		id, parseErr := strconv.ParseInt(arg, 10, 64)
		if parseErr != nil {
			return errors.Wrapf(parseErr, "invalid snapshot id %q", arg)
		}
		rec, err = store.Get(c.Context, id)
	} else {
		rec, err = store.Latest(c.Context)
	}
	if err != nil {
		return err
	}

	grid, err := recordGrid(rec)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, formatSummary(rec.Summary))
	return renderGrid(c.App.Writer, grid, rec.Pose.Point(), c.Int(scaleFlag))
}

func checkAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	source := cfg.ConfigFilePath
	if source == "" {
		source = "defaults"
	}
	params := cfg.Mapping.GridParams()
	fmt.Fprintf(c.App.Writer, "configuration ok (%s)\n", source)
	fmt.Fprintf(c.App.Writer, "  grid %vx%vcm at %vcm, sensor range %vcm\n",
		params.WidthCM, params.HeightCM, params.ResolutionCM, params.MaxRangeCM)
	fmt.Fprintf(c.App.Writer, "  %s drive, radius %vcm, cycle %v\n",
		cfg.Navigation.Kinematics, cfg.Navigation.RobotRadiusCM, cfg.UpdateInterval)
	if cfg.Storage.Path != "" {
		fmt.Fprintf(c.App.Writer, "  maps stored in %s every %v\n", cfg.Storage.Path, cfg.Storage.SaveInterval)
	}
	return nil
}

func formatSummary(s mapstore.Summary) string {
	return fmt.Sprintf("%4d  %s  %3dx%-3d @%vcm  explored %5.1f%%  pose (%.0f, %.0f)  %s",
		s.ID, s.TakenAt.Format("2006-01-02 15:04:05"), s.Width, s.Height, s.ResolutionCM,
		s.ExploredFraction*100, s.Pose.X, s.Pose.Y, s.Reason)
}

// recordGrid rebuilds a grid sized to the stored record.
func recordGrid(rec *mapstore.Record) (*occupancy.Grid, error) {
	params := occupancy.DefaultParams()
	params.ResolutionCM = rec.ResolutionCM
	params.WidthCM = float64(rec.Width) * rec.ResolutionCM
	params.HeightCM = float64(rec.Height) * rec.ResolutionCM
	grid, err := occupancy.New(params)
	if err != nil {
		return nil, err
	}
	if err := rec.Restore(grid); err != nil {
		return nil, err
	}
	return grid, nil
}

// renderGrid draws the grid with +Y up, one character per scale x scale block of cells: '#' when
// any cell in the block is occupied, '.' when any is free, blank otherwise. The rover is 'R'.
func renderGrid(w io.Writer, grid *occupancy.Grid, rover r2.Vec, scale int) error {
	if scale < 1 {
		scale = 1
	}
	at := grid.WorldToCell(rover)
	cols := (grid.Width() + scale - 1) / scale
	rows := (grid.Height() + scale - 1) / scale

	var sb strings.Builder
	for row := rows - 1; row >= 0; row-- {
		for col := 0; col < cols; col++ {
			sb.WriteByte(blockGlyph(grid, col*scale, row*scale, scale, at))
		}
		sb.WriteByte('\n')
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func blockGlyph(grid *occupancy.Grid, x0, y0, scale int, rover occupancy.Cell) byte {
	glyph := byte(' ')
	for y := y0; y < y0+scale && y < grid.Height(); y++ {
		for x := x0; x < x0+scale && x < grid.Width(); x++ {
			cell := occupancy.Cell{X: x, Y: y}
			if cell == rover {
				return 'R'
			}
			switch grid.Classify(cell) {
			case occupancy.Occupied:
				glyph = '#'
			case occupancy.Free:
				if glyph == ' ' {
					glyph = '.'
				}
			case occupancy.Unknown:
			}
		}
	}
	return glyph
}
