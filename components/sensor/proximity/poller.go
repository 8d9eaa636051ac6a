package proximity

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/picarx-labs/rover/logging"
)

// Poller samples a Sensor on a fixed interval and hands every successful reading to a sink. The
// sink must not block; the control loop's input slot is the intended sink.
type Poller struct {
	sensor   Sensor
	interval time.Duration
	clock    clock.Clock
	sink     func(Reading)
	logger   logging.Logger
	errLog   rate.Sometimes
}

// NewPoller returns a poller. A nil clock uses the wall clock.
func NewPoller(sensor Sensor, interval time.Duration, clk clock.Clock, sink func(Reading), logger logging.Logger) *Poller {
	if clk == nil {
		clk = clock.New()
	}
	return &Poller{
		sensor:   sensor,
		interval: interval,
		clock:    clk,
		sink:     sink,
		logger:   logger,
		errLog:   rate.Sometimes{Interval: 5 * time.Second},
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := p.clock.Ticker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll takes a single reading and forwards it. Readings without a timestamp are stamped with the
// poller's clock.
func (p *Poller) Poll(ctx context.Context) {
	reading, err := p.sensor.Readings(ctx)
	if err != nil {
		p.errLog.Do(func() {
			p.logger.Warnw("proximity sensor read failed", "error", err)
		})
		return
	}
	if reading.Timestamp.IsZero() {
		reading.Timestamp = p.clock.Now()
	}
	p.sink(reading)
}
