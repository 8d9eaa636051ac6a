package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"
)

func TestConsoleFormatting(t *testing.T) {
	var buf bytes.Buffer
	logger := NewBlankLogger("rover")
	logger.AddAppender(NewWriterAppender(&buf))

	logger.Infof("cycle %d", 3)
	parts := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\t")
	test.That(t, parts, test.ShouldHaveLength, 5)
	test.That(t, parts[1], test.ShouldEqual, "INFO")
	test.That(t, parts[2], test.ShouldEqual, "rover")
	test.That(t, parts[3], test.ShouldStartWith, "logging/impl_test.go:")
	test.That(t, parts[4], test.ShouldEqual, "cycle 3")

	buf.Reset()
	logger.Warnw("blocked", "front_cm", 5.5)
	parts = strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\t")
	test.That(t, parts, test.ShouldHaveLength, 6)
	test.That(t, parts[5], test.ShouldEqual, `{"front_cm":5.5}`)
}

func TestLevels(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.SetLevel(WARN)

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("kept")
	logger.Error("kept")
	test.That(t, logs.Len(), test.ShouldEqual, 2)

	sub := logger.Sublogger("motion")
	test.That(t, sub.GetLevel(), test.ShouldEqual, WARN)
	sub.Errorf("stop %s", "now")
	test.That(t, logs.FilterMessage("stop now").Len(), test.ShouldEqual, 1)
	test.That(t, logs.FilterLoggerName("motion").Len(), test.ShouldEqual, 1)
}

func TestLevelFromString(t *testing.T) {
	for input, expected := range map[string]Level{"debug": DEBUG, "INFO": INFO, "warn": WARN, "Error": ERROR, "": INFO} {
		level, err := LevelFromString(input)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, expected)
	}
	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestAsZapSharesAppenders(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.AsZap().Infow("from zap", "k", 1)
	test.That(t, logs.FilterMessage("from zap").Len(), test.ShouldEqual, 1)
}

func TestFileAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "robot.log")
	logger, closer, err := NewLoggerFromOptions("rover", Options{
		Level: "debug",
		File:  FileAppenderConfig{Path: path, MaxSizeMB: 1, MaxBackups: 5},
	})
	test.That(t, err, test.ShouldBeNil)
	logger.Debug("written to file")
	test.That(t, closer.Close(), test.ShouldBeNil)

	contents, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(contents), test.ShouldContainSubstring, "written to file")

	_, _, err = NewLoggerFromOptions("rover", Options{Level: "shout"})
	test.That(t, err, test.ShouldNotBeNil)
}
