package config

import (
	"math"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/picarx-labs/rover/kinematics"
)

func TestFromReaderValidate(t *testing.T) {
	_, err := FromReader("somepath", strings.NewReader(""))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "EOF")

	_, err = FromReader("somepath", strings.NewReader(`{"mapping": 1}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "mapping")

	_, err = FromReader("somepath", strings.NewReader(`{"mapping": {"grid_resolution": 2}}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "grid_resolution")

	_, err = FromReader("somepath", strings.NewReader(`{"mapping": {"grid_resolution_cm": 0}}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "mapping")
	test.That(t, err.Error(), test.ShouldContainSubstring, "resolution must be positive")

	_, err = FromReader("somepath", strings.NewReader(`{"navigation": {"kinematics": "tank"}}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `unknown kinematics "tank"`)

	_, err = FromReader("somepath", strings.NewReader(`{"storage": {"load_on_start": true}}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"path" is required`)

	_, err = FromReader("somepath", strings.NewReader(`{"motion": {"max_speed_pct": 120}}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "max_speed_pct")

	_, err = FromReader("somepath", strings.NewReader(`{"sensor": {"interval": "2s", "timeout": "1s"}}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "sensor")

	_, err = FromReader("somepath", strings.NewReader(`{"log": {"level": "chatty"}}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "log")

	conf, err := FromReader("somepath", strings.NewReader(`{}`))
	test.That(t, err, test.ShouldBeNil)
	expected := Default()
	expected.ConfigFilePath = "somepath"
	test.That(t, conf, test.ShouldResemble, &expected)
}

func TestFromReaderOverlaysDefaults(t *testing.T) {
	conf, err := FromReader("somepath", strings.NewReader(`{
		"update_interval": "50ms",
		"mapping": {"grid_resolution_cm": 10, "min_frontier_size": 4},
		"navigation": {"kinematics": "ackermann", "wheelbase_cm": 12},
		"motion": {"max_speed_pct": 80},
		"sensor": {"interval": "20ms", "timeout": "500ms"},
		"storage": {"path": "/tmp/rover.db", "load_on_start": true},
		"log": {"level": "debug", "file": "robot.log"}
	}`))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, conf.UpdateInterval, test.ShouldEqual, 50*time.Millisecond)
	test.That(t, conf.Mapping.GridResolutionCM, test.ShouldEqual, 10)
	test.That(t, conf.Mapping.GridWidthCM, test.ShouldEqual, Default().Mapping.GridWidthCM)
	test.That(t, conf.Mapping.MinFrontierSize, test.ShouldEqual, 4)
	test.That(t, conf.Navigation.Kinematics, test.ShouldEqual, kinematics.KindAckermann)
	test.That(t, conf.Navigation.WheelbaseCM, test.ShouldEqual, 12)
	test.That(t, conf.Navigation.MaxSteeringRad, test.ShouldAlmostEqual, math.Pi/6)
	test.That(t, conf.Motion.MaxSpeedPct, test.ShouldEqual, 80)
	test.That(t, conf.Motion.TurnSpeedPct, test.ShouldEqual, Default().Motion.TurnSpeedPct)
	test.That(t, conf.Sensor.Interval, test.ShouldEqual, 20*time.Millisecond)
	test.That(t, conf.Sensor.Timeout, test.ShouldEqual, 500*time.Millisecond)
	test.That(t, conf.Storage.Path, test.ShouldEqual, "/tmp/rover.db")
	test.That(t, conf.Storage.LoadOnStart, test.ShouldBeTrue)
	test.That(t, conf.Storage.SaveInterval, test.ShouldEqual, 30*time.Second)

	model, err := conf.Navigation.Model()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model.SpinsInPlace(), test.ShouldBeFalse)

	opts := conf.Log.LoggingOptions()
	test.That(t, opts.Level, test.ShouldEqual, "debug")
	test.That(t, opts.File.Path, test.ShouldEqual, "robot.log")
	test.That(t, opts.File.MaxSizeMB, test.ShouldEqual, 1)
	test.That(t, opts.File.MaxBackups, test.ShouldEqual, 5)
}

func TestExploreConfig(t *testing.T) {
	conf := Default()
	conf.UpdateInterval = 200 * time.Millisecond
	conf.Sensor.Timeout = 3 * time.Second
	test.That(t, conf.Ensure(), test.ShouldBeNil)

	cfg := conf.ExploreConfig()
	test.That(t, cfg.UpdateInterval, test.ShouldEqual, 200*time.Millisecond)
	test.That(t, cfg.Motion.Period, test.ShouldEqual, 200*time.Millisecond)
	test.That(t, cfg.Motion.SensorTimeout, test.ShouldEqual, 3*time.Second)
	test.That(t, cfg.Grid.ResolutionCM, test.ShouldEqual, conf.Mapping.GridResolutionCM)
	test.That(t, cfg.Grid.MaxRangeCM, test.ShouldEqual, conf.Mapping.MaxSensorRangeCM)
	test.That(t, cfg.MaxPlanAttempts, test.ShouldEqual, conf.Navigation.MaxPlanAttempts)
	test.That(t, cfg.Grid.Validate(), test.ShouldBeNil)

	tuning := conf.Tuning()
	test.That(t, tuning.MaxSpeedPct, test.ShouldEqual, conf.Motion.MaxSpeedPct)
	test.That(t, tuning.MinObstacleDistanceCM, test.ShouldEqual, conf.Motion.MinObstacleDistanceCM)
}

func TestReadSampleConfig(t *testing.T) {
	conf, err := Read("../etc/rover.json")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.ConfigFilePath, test.ShouldEqual, "../etc/rover.json")
	test.That(t, conf.Navigation.Kinematics, test.ShouldEqual, kinematics.KindAckermann)
	test.That(t, conf.Storage.LoadOnStart, test.ShouldBeTrue)
	test.That(t, conf.Log.File, test.ShouldEqual, "robot.log")
	test.That(t, conf.Sensor.Interval, test.ShouldEqual, 50*time.Millisecond)

	model, err := conf.Navigation.Model()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model.SpinsInPlace(), test.ShouldBeFalse)
}
