package config

import (
	"context"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/picarx-labs/rover/logging"
	"github.com/picarx-labs/rover/utils"
)

// reloadDelay coalesces the burst of events a single save produces.
const reloadDelay = 100 * time.Millisecond

// A Watcher rereads a config file whenever it changes on disk and hands every new valid config
// to a callback. Invalid edits are logged and ignored.
type Watcher struct {
	fsw       *fsnotify.Watcher
	path      string
	onChange  func(*Config)
	logger    logging.Logger
	workers   *utils.StoppableWorkers
	debounced func(func())

	mu      sync.Mutex
	current *Config
	closed  bool
}

// NewWatcher watches the file that current was read from. The directory is watched rather than
// the file so that editors which replace the file are seen too.
func NewWatcher(current *Config, onChange func(*Config), logger logging.Logger) (*Watcher, error) {
	if current.ConfigFilePath == "" {
		return nil, errors.New("config was not read from a file")
	}
	path, err := filepath.Abs(current.ConfigFilePath)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating file watcher")
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		return nil, closeOnError(fsw, errors.Wrapf(err, "watching %s", path))
	}

	w := &Watcher{
		fsw:       fsw,
		path:      path,
		current:   current,
		onChange:  onChange,
		logger:    logger,
		debounced: debounce.New(reloadDelay),
	}
	w.workers = utils.NewStoppableWorkers(w.run)
	return w, nil
}

func closeOnError(fsw *fsnotify.Watcher, err error) error {
	//nolint:errcheck
	fsw.Close()
	return err
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("config watcher error", "error", err)
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			w.debounced(w.reload)
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	next, err := Read(w.path)
	if err != nil {
		w.logger.Warnw("ignoring invalid config change", "path", w.path, "error", err)
		return
	}
	next.ConfigFilePath = w.current.ConfigFilePath
	if reflect.DeepEqual(next, w.current) {
		return
	}
	w.logger.Infow("config changed", "path", w.path)
	w.current = next
	w.onChange(next)
}

// Close stops watching. A reload already waiting out its delay is dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	err := w.fsw.Close()
	w.workers.Stop()
	return err
}
