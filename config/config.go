// Package config defines the rover's configuration file and how it is read, validated and watched.
package config

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/picarx-labs/rover/kinematics"
	"github.com/picarx-labs/rover/logging"
	"github.com/picarx-labs/rover/occupancy"
	"github.com/picarx-labs/rover/services/explore"
	"github.com/picarx-labs/rover/services/motion"
)

// Config is the whole configuration file.
type Config struct {
	ConfigFilePath string `json:"-"`

	UpdateInterval time.Duration `json:"update_interval"`

	Mapping    Mapping    `json:"mapping"`
	Navigation Navigation `json:"navigation"`
	Motion     Motion     `json:"motion"`
	Safety     Safety     `json:"safety"`
	Sensor     Sensor     `json:"sensor"`
	Storage    Storage    `json:"storage"`
	Log        Log        `json:"log"`
}

// Mapping configures the occupancy grid and frontier detection.
type Mapping struct {
	GridResolutionCM  float64 `json:"grid_resolution_cm"`
	GridWidthCM       float64 `json:"max_grid_width_cm"`
	GridHeightCM      float64 `json:"max_grid_height_cm"`
	UnknownPrior      float64 `json:"unknown_prior"`
	FreeThreshold     float64 `json:"free_threshold"`
	OccupiedThreshold float64 `json:"occupied_threshold"`
	LogOddsHit        float64 `json:"log_odds_hit"`
	LogOddsMiss       float64 `json:"log_odds_miss"`
	LogOddsMin        float64 `json:"log_odds_min"`
	LogOddsMax        float64 `json:"log_odds_max"`
	MaxSensorRangeCM  float64 `json:"max_sensor_range_cm"`
	BeamAngleRad      float64 `json:"beam_angle_rad"`
	MinFrontierSize   int     `json:"min_frontier_size"`
}

// Navigation configures the planner and the drive geometry.
type Navigation struct {
	RobotRadiusCM     float64         `json:"robot_radius_cm"`
	Kinematics        kinematics.Kind `json:"kinematics"`
	WheelbaseCM       float64         `json:"wheelbase_cm"`
	MaxSteeringRad    float64         `json:"max_steering_rad"`
	MaxPlanAttempts   int             `json:"max_plan_attempts"`
	MaxReplanAttempts int             `json:"max_replan_attempts"`
}

// Motion configures speeds and the obstacle interlock. These may be changed while running.
type Motion struct {
	MinObstacleDistanceCM float64 `json:"min_obstacle_distance_cm"`
	MaxSpeedPct           float64 `json:"max_speed_pct"`
	TurnSpeedPct          float64 `json:"turn_speed_pct"`
	MaxLinearSpeedCMS     float64 `json:"max_linear_speed_cm_s"`
	MaxAngularSpeedRadS   float64 `json:"max_angular_speed_rad_s"`
	HeadingToleranceRad   float64 `json:"heading_tolerance_rad"`
	WaypointToleranceCM   float64 `json:"waypoint_tolerance_cm"`
}

// Safety configures the system monitor thresholds.
type Safety struct {
	BatteryCriticalPct   float64       `json:"battery_critical_pct"`
	TemperatureCriticalC float64       `json:"temperature_critical_c"`
	MonitorInterval      time.Duration `json:"monitor_interval"`
}

// Sensor configures proximity polling.
type Sensor struct {
	Interval time.Duration `json:"interval"`
	Timeout  time.Duration `json:"timeout"`
}

// Storage configures map persistence. An empty path disables it.
type Storage struct {
	Path          string        `json:"path"`
	SaveInterval  time.Duration `json:"save_interval"`
	LoadOnStart   bool          `json:"load_on_start"`
	KeepSnapshots int           `json:"keep_snapshots"`
}

// Log configures the process logger.
type Log struct {
	Level      string `json:"level"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// Default returns the configuration used for any key the file leaves out.
func Default() Config {
	grid := occupancy.DefaultParams()
	mot := motion.DefaultConfig()
	loop := explore.DefaultConfig()
	return Config{
		UpdateInterval: loop.UpdateInterval,
		Mapping: Mapping{
			GridResolutionCM:  grid.ResolutionCM,
			GridWidthCM:       grid.WidthCM,
			GridHeightCM:      grid.HeightCM,
			UnknownPrior:      grid.UnknownPrior,
			FreeThreshold:     grid.FreeThreshold,
			OccupiedThreshold: grid.OccupiedThreshold,
			LogOddsHit:        grid.LogOddsHit,
			LogOddsMiss:       grid.LogOddsMiss,
			LogOddsMin:        grid.LogOddsMin,
			LogOddsMax:        grid.LogOddsMax,
			MaxSensorRangeCM:  grid.MaxRangeCM,
			BeamAngleRad:      grid.BeamAngleRad,
			MinFrontierSize:   loop.MinFrontierSize,
		},
		Navigation: Navigation{
			RobotRadiusCM:     loop.RobotRadiusCM,
			Kinematics:        kinematics.KindDifferential,
			WheelbaseCM:       14,
			MaxSteeringRad:    math.Pi / 6,
			MaxPlanAttempts:   loop.MaxPlanAttempts,
			MaxReplanAttempts: loop.MaxReplanAttempts,
		},
		Motion: Motion{
			MinObstacleDistanceCM: mot.MinObstacleDistanceCM,
			MaxSpeedPct:           mot.MaxSpeedPct,
			TurnSpeedPct:          mot.TurnSpeedPct,
			MaxLinearSpeedCMS:     mot.MaxLinearSpeedCMS,
			MaxAngularSpeedRadS:   mot.MaxAngularSpeedRadS,
			HeadingToleranceRad:   mot.HeadingToleranceRad,
			WaypointToleranceCM:   mot.WaypointToleranceCM,
		},
		Safety: Safety{
			BatteryCriticalPct:   10,
			TemperatureCriticalC: 80,
			MonitorInterval:      time.Second,
		},
		Sensor: Sensor{
			Interval: 50 * time.Millisecond,
			Timeout:  mot.SensorTimeout,
		},
		Storage: Storage{
			SaveInterval:  30 * time.Second,
			KeepSnapshots: 20,
		},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  1,
			MaxBackups: 5,
		},
	}
}

// Ensure validates the whole configuration.
func (c *Config) Ensure() error {
	if c.UpdateInterval <= 0 {
		return utils.NewConfigValidationError("update_interval",
			errors.Errorf("must be positive, got %v", c.UpdateInterval))
	}
	if err := c.Mapping.Validate("mapping"); err != nil {
		return err
	}
	if err := c.Navigation.Validate("navigation"); err != nil {
		return err
	}
	mot := c.motionConfig()
	if err := mot.Validate("motion"); err != nil {
		return err
	}
	if err := c.Safety.Validate("safety"); err != nil {
		return err
	}
	if err := c.Sensor.Validate("sensor"); err != nil {
		return err
	}
	if err := c.Storage.Validate("storage"); err != nil {
		return err
	}
	return c.Log.Validate("log")
}

// GridParams returns the occupancy grid parameters.
func (m Mapping) GridParams() occupancy.Params {
	return occupancy.Params{
		ResolutionCM:      m.GridResolutionCM,
		WidthCM:           m.GridWidthCM,
		HeightCM:          m.GridHeightCM,
		UnknownPrior:      m.UnknownPrior,
		FreeThreshold:     m.FreeThreshold,
		OccupiedThreshold: m.OccupiedThreshold,
		LogOddsHit:        m.LogOddsHit,
		LogOddsMiss:       m.LogOddsMiss,
		LogOddsMin:        m.LogOddsMin,
		LogOddsMax:        m.LogOddsMax,
		MaxRangeCM:        m.MaxSensorRangeCM,
		BeamAngleRad:      m.BeamAngleRad,
	}
}

// Validate checks the grid parameters.
func (m *Mapping) Validate(path string) error {
	if err := m.GridParams().Validate(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if m.MinFrontierSize < 1 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("min_frontier_size must be at least 1, got %d", m.MinFrontierSize))
	}
	return nil
}

// Model builds the configured kinematic model.
func (n Navigation) Model() (kinematics.Model, error) {
	return kinematics.NewModel(n.Kinematics, n.WheelbaseCM, n.MaxSteeringRad)
}

// Validate checks the navigation settings.
func (n *Navigation) Validate(path string) error {
	if n.RobotRadiusCM < 0 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("robot_radius_cm cannot be negative, got %v", n.RobotRadiusCM))
	}
	if _, err := n.Model(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if n.MaxPlanAttempts < 1 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("max_plan_attempts must be at least 1, got %d", n.MaxPlanAttempts))
	}
	if n.MaxReplanAttempts < 0 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("max_replan_attempts cannot be negative, got %d", n.MaxReplanAttempts))
	}
	return nil
}

// Validate checks the monitor thresholds.
func (s *Safety) Validate(path string) error {
	if s.BatteryCriticalPct < 0 || s.BatteryCriticalPct > 100 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("battery_critical_pct must be in [0, 100], got %v", s.BatteryCriticalPct))
	}
	if s.MonitorInterval <= 0 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("monitor_interval must be positive, got %v", s.MonitorInterval))
	}
	return nil
}

// Validate checks the polling settings.
func (s *Sensor) Validate(path string) error {
	if s.Interval <= 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("interval must be positive, got %v", s.Interval))
	}
	if s.Timeout < s.Interval {
		return utils.NewConfigValidationError(path,
			errors.Errorf("timeout (%v) must be at least the polling interval (%v)", s.Timeout, s.Interval))
	}
	return nil
}

// Validate checks the persistence settings.
func (s *Storage) Validate(path string) error {
	if s.Path == "" {
		if s.LoadOnStart {
			return utils.NewConfigValidationFieldRequiredError(path, "path")
		}
		return nil
	}
	if s.SaveInterval < 0 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("save_interval cannot be negative, got %v", s.SaveInterval))
	}
	if s.KeepSnapshots < 0 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("keep_snapshots cannot be negative, got %d", s.KeepSnapshots))
	}
	return nil
}

// Validate checks the logger settings.
func (l *Log) Validate(path string) error {
	if _, err := logging.LevelFromString(l.Level); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if l.File != "" && (l.MaxSizeMB <= 0 || l.MaxBackups < 0) {
		return utils.NewConfigValidationError(path,
			errors.Errorf("rotation needs max_size_mb > 0 and max_backups >= 0, got %d and %d", l.MaxSizeMB, l.MaxBackups))
	}
	return nil
}

// LoggingOptions returns the process logger options.
func (l Log) LoggingOptions() logging.Options {
	opts := logging.Options{Level: l.Level}
	if l.File != "" {
		opts.File = logging.FileAppenderConfig{Path: l.File, MaxSizeMB: l.MaxSizeMB, MaxBackups: l.MaxBackups}
	}
	return opts
}

func (c *Config) motionConfig() motion.Config {
	return motion.Config{
		MinObstacleDistanceCM: c.Motion.MinObstacleDistanceCM,
		MaxSpeedPct:           c.Motion.MaxSpeedPct,
		TurnSpeedPct:          c.Motion.TurnSpeedPct,
		MaxLinearSpeedCMS:     c.Motion.MaxLinearSpeedCMS,
		MaxAngularSpeedRadS:   c.Motion.MaxAngularSpeedRadS,
		HeadingToleranceRad:   c.Motion.HeadingToleranceRad,
		WaypointToleranceCM:   c.Motion.WaypointToleranceCM,
		Period:                c.UpdateInterval,
		SensorTimeout:         c.Sensor.Timeout,
	}
}

// ExploreConfig returns the control loop configuration.
func (c *Config) ExploreConfig() explore.Config {
	return explore.Config{
		UpdateInterval:    c.UpdateInterval,
		MinFrontierSize:   c.Mapping.MinFrontierSize,
		MaxPlanAttempts:   c.Navigation.MaxPlanAttempts,
		MaxReplanAttempts: c.Navigation.MaxReplanAttempts,
		RobotRadiusCM:     c.Navigation.RobotRadiusCM,
		Grid:              c.Mapping.GridParams(),
		Motion:            c.motionConfig(),
	}
}

// Tuning returns the settings that can be applied without a restart.
func (c *Config) Tuning() explore.Tuning {
	return explore.Tuning{
		MaxSpeedPct:           c.Motion.MaxSpeedPct,
		TurnSpeedPct:          c.Motion.TurnSpeedPct,
		MinObstacleDistanceCM: c.Motion.MinObstacleDistanceCM,
	}
}
