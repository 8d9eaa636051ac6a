package explore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/picarx-labs/rover/services/motion"
	"github.com/picarx-labs/rover/services/safety"
)

// CommandKind names a control command.
type CommandKind string

// Control commands.
const (
	CommandForward       CommandKind = "forward"
	CommandBackward      CommandKind = "backward"
	CommandLeft          CommandKind = "left"
	CommandRight         CommandKind = "right"
	CommandStop          CommandKind = "stop"
	CommandEmergencyStop CommandKind = "emergency_stop"
	CommandSetSpeed      CommandKind = "set_speed"
	CommandSetMode       CommandKind = "set_mode"
	CommandReset         CommandKind = "reset"
	CommandCenter        CommandKind = "center"
	CommandClearMap      CommandKind = "clear_map"
	CommandSaveMap       CommandKind = "save_map"
)

// Command is a discrete control input from a manual or voice collaborator.
type Command struct {
	Kind CommandKind `json:"kind"`
	// Value is the speed percentage for set_speed.
	Value float64 `json:"value,omitempty"`
	// Autonomous selects the mode for set_mode.
	Autonomous bool `json:"autonomous,omitempty"`
}

func (c Command) String() string {
	switch c.Kind {
	case CommandSetSpeed:
		return fmt.Sprintf("%s(%g)", c.Kind, c.Value)
	case CommandSetMode:
		return fmt.Sprintf("%s(autonomous=%t)", c.Kind, c.Autonomous)
	default:
		return string(c.Kind)
	}
}

func (c Command) manualKind() (motion.ManualKind, bool) {
	switch c.Kind {
	case CommandForward:
		return motion.ManualForward, true
	case CommandBackward:
		return motion.ManualBackward, true
	case CommandLeft:
		return motion.ManualLeft, true
	case CommandRight:
		return motion.ManualRight, true
	default:
		return motion.ManualStop, false
	}
}

// ParseCommand reads a command in the form "<kind> [argument]", for example "set_speed 40" or
// "set_mode autonomous".
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return Command{}, errors.New("empty command")
	}
	cmd := Command{Kind: CommandKind(fields[0])}
	switch cmd.Kind {
	case CommandForward, CommandBackward, CommandLeft, CommandRight, CommandStop, CommandEmergencyStop,
		CommandReset, CommandCenter, CommandClearMap, CommandSaveMap:
		if len(fields) > 1 {
			return Command{}, errors.Errorf("%s takes no argument", cmd.Kind)
		}
	case CommandSetSpeed:
		if len(fields) != 2 {
			return Command{}, errors.New("set_speed needs a percentage")
		}
		pct, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return Command{}, errors.Wrap(err, "set_speed percentage")
		}
		cmd.Value = pct
	case CommandSetMode:
		if len(fields) != 2 {
			return Command{}, errors.New("set_mode needs autonomous or manual")
		}
		switch fields[1] {
		case "autonomous", "auto", "true", "on":
			cmd.Autonomous = true
		case "manual", "false", "off":
		default:
			return Command{}, errors.Errorf("unknown mode %q", fields[1])
		}
	default:
		return Command{}, errors.Errorf("unknown command %q", fields[0])
	}
	return cmd, nil
}

// SafetyKind names a safety event.
type SafetyKind string

// Safety events.
const (
	SafetyBatteryCritical     SafetyKind = "battery_critical"
	SafetyTemperatureCritical SafetyKind = "temperature_critical"
	SafetyEmergencyStop       SafetyKind = "emergency_stop"
)

// SafetyEvent is raised by the system monitor or by an emergency stop command. Value is the
// reading that triggered it, when there is one.
type SafetyEvent struct {
	Kind  SafetyKind `json:"kind"`
	Value float64    `json:"value,omitempty"`
}

func (e SafetyEvent) event() (safety.Event, error) {
	switch e.Kind {
	case SafetyBatteryCritical:
		return safety.BatteryCritical, nil
	case SafetyTemperatureCritical:
		return safety.TemperatureCritical, nil
	case SafetyEmergencyStop:
		return safety.EmergencyStop, nil
	default:
		return 0, errors.Errorf("unknown safety event %q", e.Kind)
	}
}

func (e SafetyEvent) reason() string {
	switch e.Kind {
	case SafetyBatteryCritical:
		return fmt.Sprintf("battery critical (%g%%)", e.Value)
	case SafetyTemperatureCritical:
		return fmt.Sprintf("temperature critical (%g°C)", e.Value)
	default:
		return "emergency stop requested"
	}
}
