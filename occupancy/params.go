package occupancy

import (
	"math"

	"github.com/pkg/errors"
)

// Params configure a grid. Probabilities are in [0, 1]; log-odds bounds and increments are in
// natural-log odds.
type Params struct {
	ResolutionCM float64
	WidthCM      float64
	HeightCM     float64

	UnknownPrior      float64
	FreeThreshold     float64
	OccupiedThreshold float64

	LogOddsHit  float64
	LogOddsMiss float64
	LogOddsMin  float64
	LogOddsMax  float64

	MaxRangeCM float64
	// BeamAngleRad is the angle between the front beam and each side beam.
	BeamAngleRad float64
}

// DefaultParams returns a 5m x 5m grid at 5cm resolution.
func DefaultParams() Params {
	return Params{
		ResolutionCM:      5,
		WidthCM:           500,
		HeightCM:          500,
		UnknownPrior:      0.5,
		FreeThreshold:     0.3,
		OccupiedThreshold: 0.7,
		LogOddsHit:        1.2,
		LogOddsMiss:       1.0,
		LogOddsMin:        -4,
		LogOddsMax:        4,
		MaxRangeCM:        300,
		BeamAngleRad:      math.Pi / 6,
	}
}

// Validate reports the first inconsistent parameter.
func (p Params) Validate() error {
	switch {
	case p.ResolutionCM <= 0:
		return errors.Errorf("resolution must be positive, got %v", p.ResolutionCM)
	case p.WidthCM < p.ResolutionCM || p.HeightCM < p.ResolutionCM:
		return errors.Errorf("grid must be at least one cell, got %vx%vcm", p.WidthCM, p.HeightCM)
	case p.UnknownPrior <= 0 || p.UnknownPrior >= 1:
		return errors.Errorf("unknown prior must be in (0, 1), got %v", p.UnknownPrior)
	case p.FreeThreshold <= 0 || p.OccupiedThreshold >= 1 || p.FreeThreshold >= p.OccupiedThreshold:
		return errors.Errorf("thresholds must satisfy 0 < free (%v) < occupied (%v) < 1",
			p.FreeThreshold, p.OccupiedThreshold)
	case p.LogOddsHit <= 0 || p.LogOddsMiss <= 0:
		return errors.New("log-odds hit and miss increments must be positive")
	case p.LogOddsMin >= p.LogOddsMax:
		return errors.Errorf("log-odds bounds are inverted: [%v, %v]", p.LogOddsMin, p.LogOddsMax)
	case logit(p.UnknownPrior) < p.LogOddsMin || logit(p.UnknownPrior) > p.LogOddsMax:
		return errors.New("unknown prior lies outside the log-odds bounds")
	case p.MaxRangeCM <= 0:
		return errors.Errorf("max sensor range must be positive, got %v", p.MaxRangeCM)
	}
	return nil
}

func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

func sigmoid(l float64) float64 {
	return 1 / (1 + math.Exp(-l))
}
