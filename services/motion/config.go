package motion

import (
	"math"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

// Config tunes the motion controller.
type Config struct {
	MinObstacleDistanceCM float64 `json:"min_obstacle_distance_cm"`
	MaxSpeedPct           float64 `json:"max_speed_pct"`
	TurnSpeedPct          float64 `json:"turn_speed_pct"`
	MaxLinearSpeedCMS     float64 `json:"max_linear_speed_cm_s"`
	MaxAngularSpeedRadS   float64 `json:"max_angular_speed_rad_s"`
	HeadingToleranceRad   float64 `json:"heading_tolerance_rad"`
	WaypointToleranceCM   float64 `json:"waypoint_tolerance_cm"`

	// Period bounds the duration of every issued command. It is normally the control loop
	// interval.
	Period time.Duration `json:"-"`
	// SensorTimeout is how old a reading may be before the controller refuses to move.
	SensorTimeout time.Duration `json:"-"`
}

// DefaultConfig returns the defaults used when a field is not configured.
func DefaultConfig() Config {
	return Config{
		MinObstacleDistanceCM: 20,
		MaxSpeedPct:           50,
		TurnSpeedPct:          30,
		MaxLinearSpeedCMS:     30,
		MaxAngularSpeedRadS:   math.Pi / 2,
		HeadingToleranceRad:   0.15,
		WaypointToleranceCM:   5,
		Period:                100 * time.Millisecond,
		SensorTimeout:         time.Second,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.MinObstacleDistanceCM <= 0 {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("min_obstacle_distance_cm must be positive, got %v", cfg.MinObstacleDistanceCM))
	}
	if cfg.MaxSpeedPct < 0 || cfg.MaxSpeedPct > 100 {
		return goutils.NewConfigValidationError(path, errors.Errorf("max_speed_pct must be within [0, 100], got %v", cfg.MaxSpeedPct))
	}
	if cfg.TurnSpeedPct < 0 || cfg.TurnSpeedPct > 100 {
		return goutils.NewConfigValidationError(path, errors.Errorf("turn_speed_pct must be within [0, 100], got %v", cfg.TurnSpeedPct))
	}
	if cfg.MaxLinearSpeedCMS <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "max_linear_speed_cm_s")
	}
	if cfg.MaxAngularSpeedRadS <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "max_angular_speed_rad_s")
	}
	if cfg.HeadingToleranceRad <= 0 || cfg.HeadingToleranceRad >= math.Pi {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("heading_tolerance_rad must be within (0, π), got %v", cfg.HeadingToleranceRad))
	}
	if cfg.WaypointToleranceCM <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "waypoint_tolerance_cm")
	}
	return nil
}

func clampPct(pct float64) float64 {
	return math.Max(0, math.Min(100, pct))
}
