package explore

import (
	"testing"

	"go.viam.com/test"

	"github.com/picarx-labs/rover/services/motion"
	"github.com/picarx-labs/rover/services/safety"
)

func TestParseCommand(t *testing.T) {
	for _, tc := range []struct {
		line string
		want Command
	}{
		{"forward", Command{Kind: CommandForward}},
		{"  STOP ", Command{Kind: CommandStop}},
		{"emergency_stop", Command{Kind: CommandEmergencyStop}},
		{"set_speed 40", Command{Kind: CommandSetSpeed, Value: 40}},
		{"set_mode autonomous", Command{Kind: CommandSetMode, Autonomous: true}},
		{"set_mode manual", Command{Kind: CommandSetMode}},
		{"save_map", Command{Kind: CommandSaveMap}},
	} {
		t.Run(tc.line, func(t *testing.T) {
			cmd, err := ParseCommand(tc.line)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, cmd, test.ShouldResemble, tc.want)
		})
	}

	for _, line := range []string{"", "fly", "forward 3", "set_speed", "set_speed fast", "set_mode sideways"} {
		_, err := ParseCommand(line)
		test.That(t, err, test.ShouldNotBeNil)
	}
}

func TestCommandMapping(t *testing.T) {
	kind, ok := Command{Kind: CommandRight}.manualKind()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, kind, test.ShouldEqual, motion.ManualRight)
	_, ok = Command{Kind: CommandReset}.manualKind()
	test.That(t, ok, test.ShouldBeFalse)

	test.That(t, Command{Kind: CommandSetSpeed, Value: 25}.String(), test.ShouldEqual, "set_speed(25)")

	event, err := SafetyEvent{Kind: SafetyTemperatureCritical, Value: 82}.event()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, event, test.ShouldEqual, safety.TemperatureCritical)
	_, err = SafetyEvent{Kind: "meteor"}.event()
	test.That(t, err, test.ShouldNotBeNil)
}
