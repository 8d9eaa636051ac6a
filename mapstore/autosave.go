package mapstore

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"

	"github.com/picarx-labs/rover/logging"
)

// Autosaver runs a save function on a fixed interval until shut down. Runs never overlap; a run
// that is still in progress when the next is due causes that one to be skipped.
type Autosaver struct {
	scheduler gocron.Scheduler
	cancel    context.CancelFunc
	logger    logging.Logger
}

// NewAutosaver schedules save every interval. The first run happens one interval after Start.
func NewAutosaver(interval time.Duration, save func(ctx context.Context) error, logger logging.Logger) (*Autosaver, error) {
	if interval <= 0 {
		return nil, errors.Errorf("autosave interval must be positive, got %v", interval)
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Autosaver{scheduler: scheduler, cancel: cancel, logger: logger}
	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if err := save(ctx); err != nil && ctx.Err() == nil {
				logger.Warnw("autosave failed", "error", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("map-autosave"),
	)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "scheduling autosave")
	}
	return a, nil
}

// Start begins running the job.
func (a *Autosaver) Start() {
	a.scheduler.Start()
}

// Shutdown stops the job, cancelling a save in progress, and waits for it to return.
func (a *Autosaver) Shutdown() error {
	a.cancel()
	return a.scheduler.Shutdown()
}
