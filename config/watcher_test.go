package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"github.com/picarx-labs/rover/logging"
)

func TestWatcher(t *testing.T) {
	logger := logging.NewTestLogger(t)
	path := filepath.Join(t.TempDir(), "rover.json")
	test.That(t, os.WriteFile(path, []byte(`{"motion": {"max_speed_pct": 40}}`), 0o600), test.ShouldBeNil)

	initial, err := Read(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, initial.Motion.MaxSpeedPct, test.ShouldEqual, 40)

	var mu sync.Mutex
	var seen []*Config
	w, err := NewWatcher(initial, func(c *Config) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, c)
	}, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, w.Close(), test.ShouldBeNil)
	}()

	// an invalid edit is ignored
	test.That(t, os.WriteFile(path, []byte(`{"motion": {"max_speed_pct": 400}}`), 0o600), test.ShouldBeNil)
	test.That(t, os.WriteFile(path, []byte(`{"motion": {"max_speed_pct": 70}}`), 0o600), test.ShouldBeNil)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		mu.Lock()
		defer mu.Unlock()
		test.That(tb, seen, test.ShouldNotBeEmpty)
		if len(seen) == 0 {
			return
		}
		last := seen[len(seen)-1]
		test.That(tb, last.Motion.MaxSpeedPct, test.ShouldEqual, 70)
		test.That(tb, last.ConfigFilePath, test.ShouldEqual, path)
	})

	mu.Lock()
	for _, c := range seen {
		test.That(t, c.Motion.MaxSpeedPct, test.ShouldNotEqual, 400)
	}
	mu.Unlock()
}

func TestWatcherNeedsFile(t *testing.T) {
	conf := Default()
	_, err := NewWatcher(&conf, func(*Config) {}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}
