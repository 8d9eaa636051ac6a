package sim

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/picarx-labs/rover/components/base/fake"
	"github.com/picarx-labs/rover/components/sensor/proximity"
	"github.com/picarx-labs/rover/kinematics"
	"github.com/picarx-labs/rover/services/explore"
	"github.com/picarx-labs/rover/spatialmath"
)

// substep bounds how far the rover moves between collision checks.
const substep = 10 * time.Millisecond

// Options configure a simulated rover.
type Options struct {
	RadiusCM     float64
	MaxRangeCM   float64
	BeamAngleRad float64
	// NoiseCM is the standard deviation of the gaussian noise added to every beam.
	NoiseCM float64
	// Slip scales the commanded turn rate, so dead reckoning drifts from the true pose.
	Slip float64
	Seed int64

	BatteryPct     float64
	DrainPctPerMin float64
	TemperatureC   float64
	HeatingCPerMin float64
}

// DefaultOptions match the default grid's sensor geometry.
func DefaultOptions() Options {
	return Options{
		RadiusCM:       8,
		MaxRangeCM:     300,
		BeamAngleRad:   math.Pi / 6,
		NoiseCM:        0.5,
		Slip:           0.02,
		Seed:           1,
		BatteryPct:     100,
		DrainPctPerMin: 0.5,
		TemperatureC:   40,
	}
}

var (
	_ fake.Driver          = (*Rover)(nil)
	_ proximity.Sensor     = (*Rover)(nil)
	_ explore.SystemSensor = (*Rover)(nil)
)

// Rover is the simulated vehicle. It executes base commands against its true pose, which the
// control loop never sees, and measures distances from that pose.
type Rover struct {
	mu    sync.Mutex
	world *World
	model kinematics.Model
	clock clock.Clock
	opts  Options
	rng   *rand.Rand

	pose       spatialmath.Pose
	cmd        kinematics.Command
	since      time.Time
	battery    float64
	temp       float64
	collisions int
}

// NewRover places a rover at the origin facing +X. A nil clock uses the wall clock.
func NewRover(world *World, model kinematics.Model, clk clock.Clock, opts Options) *Rover {
	if clk == nil {
		clk = clock.New()
	}
	return &Rover{
		world: world,
		model: model,
		clock: clk,
		opts:  opts,
		//nolint:gosec
		rng:     rand.New(rand.NewSource(opts.Seed)),
		since:   clk.Now(),
		battery: opts.BatteryPct,
		temp:    opts.TemperatureC,
	}
}

// Drive starts executing cmd, ending the previous command.
func (r *Rover) Drive(cmd kinematics.Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advance()
	r.cmd = cmd
}

// Readings measures the three beams from the true pose.
func (r *Rover) Readings(ctx context.Context) (proximity.Reading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advance()

	reading := proximity.Reading{Timestamp: r.clock.Now()}
	for _, beam := range (proximity.Reading{}).Beams(r.opts.BeamAngleRad) {
		d := r.world.Cast(r.pose.Point(), r.pose.Theta+beam.OffsetRad, r.opts.MaxRangeCM)
		if !math.IsInf(d, 1) && r.opts.NoiseCM > 0 {
			d = math.Max(0.1, d+r.rng.NormFloat64()*r.opts.NoiseCM)
		}
		switch beam.ID {
		case proximity.BeamLeft:
			reading.LeftCM = d
		case proximity.BeamFront:
			reading.FrontCM = d
		case proximity.BeamRight:
			reading.RightCM = d
		}
	}
	return reading, nil
}

// SystemStatus reports the simulated battery and temperature.
func (r *Rover) SystemStatus(ctx context.Context) (explore.SystemStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advance()
	return explore.SystemStatus{BatteryPct: r.battery, TemperatureC: r.temp}, nil
}

// SetBattery overrides the battery level.
func (r *Rover) SetBattery(pct float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.battery = pct
}

// SetTemperature overrides the temperature.
func (r *Rover) SetTemperature(c float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.temp = c
}

// Pose returns the true pose.
func (r *Rover) Pose() spatialmath.Pose {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advance()
	return r.pose
}

// Collisions counts the times the rover was stopped by touching an obstacle.
func (r *Rover) Collisions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collisions
}

// advance moves the rover to the current time. The command stops early on expiry or on contact.
func (r *Rover) advance() {
	now := r.clock.Now()
	elapsed := now.Sub(r.since)
	r.since = now
	if elapsed <= 0 {
		return
	}
	minutes := elapsed.Minutes()
	r.temp += r.opts.HeatingCPerMin * minutes
	if r.cmd.IsStop() {
		return
	}
	r.battery = math.Max(0, r.battery-r.opts.DrainPctPerMin*minutes)

	active := elapsed
	if r.cmd.Duration > 0 && r.cmd.Duration < active {
		active = r.cmd.Duration
	}
	actual := r.cmd
	actual.Angular *= 1 + r.opts.Slip
	for done := time.Duration(0); done < active; done += substep {
		dt := substep
		if active-done < dt {
			dt = active - done
		}
		next := r.model.Integrate(r.pose, actual, dt)
		if r.world.Collides(next.Point(), r.opts.RadiusCM) {
			r.collisions++
			r.cmd = kinematics.Stop
			return
		}
		r.pose = next
	}

	if r.cmd.Duration > 0 {
		if remaining := r.cmd.Duration - elapsed; remaining > 0 {
			r.cmd.Duration = remaining
		} else {
			r.cmd = kinematics.Stop
		}
	}
}
