// Package safety arbitrates which source, if any, may move the rover. It is a finite state
// machine over explicit events; every motion command is checked against its current state.
package safety

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/picarx-labs/rover/logging"
)

// ErrMotionRejected is returned when the current state does not allow a motion source to move.
var ErrMotionRejected = errors.New("motion rejected by safety arbiter")

// State is the arbiter's mode.
type State int

// The arbiter states.
const (
	Idle State = iota
	Autonomous
	Manual
	Avoiding
	EmergencyStopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Autonomous:
		return "autonomous"
	case Manual:
		return "manual"
	case Avoiding:
		return "avoiding"
	case EmergencyStopped:
		return "emergency_stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event drives a transition.
type Event int

// The arbiter events.
const (
	Explore Event = iota
	Disengage
	ManualInput
	ObstacleBlocked
	ReplanSucceeded
	ExplorationComplete
	ExplorationStalled
	EmergencyStop
	BatteryCritical
	TemperatureCritical
	Reset
)

func (e Event) String() string {
	switch e {
	case Explore:
		return "explore"
	case Disengage:
		return "disengage"
	case ManualInput:
		return "manual_input"
	case ObstacleBlocked:
		return "obstacle_blocked"
	case ReplanSucceeded:
		return "replan_succeeded"
	case ExplorationComplete:
		return "exploration_complete"
	case ExplorationStalled:
		return "exploration_stalled"
	case EmergencyStop:
		return "emergency_stop"
	case BatteryCritical:
		return "battery_critical"
	case TemperatureCritical:
		return "temperature_critical"
	case Reset:
		return "reset"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// Critical reports whether the event forces an emergency stop.
func (e Event) Critical() bool {
	return e == EmergencyStop || e == BatteryCritical || e == TemperatureCritical
}

// Next is the transition function. It is defined for every state and event; ok is false when
// the event does not apply in state, in which case the state is returned unchanged.
func Next(state State, event Event) (next State, ok bool) {
	if event.Critical() {
		return EmergencyStopped, true
	}
	switch state {
	case Idle:
		switch event {
		case Explore:
			return Autonomous, true
		case ManualInput:
			return Manual, true
		}
	case Autonomous:
		switch event {
		case ManualInput:
			return Manual, true
		case ObstacleBlocked:
			return Avoiding, true
		case ExplorationComplete, ExplorationStalled, Disengage:
			return Idle, true
		}
	case Manual:
		switch event {
		case Explore:
			return Autonomous, true
		case ObstacleBlocked:
			return Avoiding, true
		}
	case Avoiding:
		switch event {
		case ManualInput:
			return Manual, true
		case ReplanSucceeded:
			return Autonomous, true
		case ExplorationComplete, ExplorationStalled, Disengage:
			return Idle, true
		}
	case EmergencyStopped:
		if event == Reset {
			return Idle, true
		}
	}
	return state, false
}

// Source is who is asking to move.
type Source int

// Motion sources.
const (
	SourceAutonomous Source = iota
	SourceManual
)

func (s Source) String() string {
	if s == SourceManual {
		return "manual"
	}
	return "autonomous"
}

// Transition records a state change.
type Transition struct {
	From   State
	To     State
	Event  Event
	Reason string
	At     time.Time
}

// Arbiter holds the current state. It is safe for concurrent use, though only the control loop
// is expected to call Handle.
type Arbiter struct {
	mu           sync.RWMutex
	state        State
	avoidingFrom State
	last         Transition
	clock        clock.Clock
	logger       logging.Logger
}

// NewArbiter starts Idle. A nil clock uses the wall clock.
func NewArbiter(clk clock.Clock, logger logging.Logger) *Arbiter {
	if clk == nil {
		clk = clock.New()
	}
	return &Arbiter{
		state:  Idle,
		clock:  clk,
		logger: logger,
		last:   Transition{From: Idle, To: Idle, Reason: "startup", At: clk.Now()},
	}
}

// Handle applies event and reports whether the state changed. Avoiding only returns to
// Autonomous on ReplanSucceeded when it was entered from Autonomous.
func (a *Arbiter) Handle(event Event, reason string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if event == ReplanSucceeded && a.state == Avoiding && a.avoidingFrom != Autonomous {
		a.logger.Debugw("ignoring replan while avoiding under manual control", "reason", reason)
		return false
	}
	next, ok := Next(a.state, event)
	if !ok {
		a.logger.Debugw("event does not apply", "state", a.state, "event", event, "reason", reason)
		return false
	}
	if next == Avoiding {
		a.avoidingFrom = a.state
	}
	a.last = Transition{From: a.state, To: next, Event: event, Reason: reason, At: a.clock.Now()}
	a.state = next

	if next == EmergencyStopped {
		a.logger.Warnw("emergency stop", "from", a.last.From, "event", event, "reason", reason)
	} else {
		a.logger.Infow("safety state changed", "from", a.last.From, "to", next, "event", event, "reason", reason)
	}
	return true
}

// State returns the current state.
func (a *Arbiter) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Reason returns the reason given for the last transition.
func (a *Arbiter) Reason() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last.Reason
}

// LastTransition returns the last state change.
func (a *Arbiter) LastTransition() Transition {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}

// ShouldPlan reports whether the exploration planner should be producing paths: while
// Autonomous, or while Avoiding an obstacle hit during autonomous driving.
func (a *Arbiter) ShouldPlan() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state == Autonomous || (a.state == Avoiding && a.avoidingFrom == Autonomous)
}

// PermitsMotion reports whether source may issue a non-stop command. Stopping is always
// permitted and is never checked.
func (a *Arbiter) PermitsMotion(source Source) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return permits(a.state, source)
}

// CheckMotion is PermitsMotion as an error.
func (a *Arbiter) CheckMotion(source Source) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if permits(a.state, source) {
		return nil
	}
	return errors.Wrapf(ErrMotionRejected, "%s motion while %s", source, a.state)
}

func permits(state State, source Source) bool {
	switch state {
	case Autonomous:
		return source == SourceAutonomous
	case Manual:
		return source == SourceManual
	default:
		return false
	}
}
