package actuator

import (
	"context"
	"log/slog"
	"time"

	"github.com/verte-zerg/recite/internal/engagement"
	"github.com/verte-zerg/recite/internal/observe"
)

// DefaultTimeout bounds a single actuation command.
const DefaultTimeout = 2 * time.Second

// Driver forwards engagement level changes to a Channel. Failures are logged
// and counted, never returned.
type Driver struct {
	ch      Channel
	logger  *slog.Logger
	metrics *observe.Metrics
	timeout time.Duration
	updates <-chan float64
	cancel  func()
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) DriverOption {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics counts failures on met.
func WithMetrics(met *observe.Metrics) DriverOption {
	return func(d *Driver) {
		d.metrics = met
	}
}

// WithTimeout bounds each command.
func WithTimeout(t time.Duration) DriverOption {
	return func(d *Driver) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// NewDriver returns a Driver for level and ch. Level changes are observed
// from this call on and delivered once Run starts.
func NewDriver(level *engagement.Level, ch Channel, opts ...DriverOption) *Driver {
	d := &Driver{
		ch:      ch,
		logger:  slog.New(slog.DiscardHandler),
		timeout: DefaultTimeout,
	}
	for _, o := range opts {
		o(d)
	}
	d.updates, d.cancel = level.Subscribe()
	return d
}

// Run forwards level changes until ctx is done, then stops the devices.
func (d *Driver) Run(ctx context.Context) error {
	defer d.cancel()
	defer d.stop(context.WithoutCancel(ctx))

	for {
		select {
		case <-ctx.Done():
			return nil
		case v, ok := <-d.updates:
			if !ok {
				return nil
			}
			d.Apply(ctx, v)
		}
	}
}

// Apply sends one level to the channel: level/Max, or Stop at 0.
func (d *Driver) Apply(ctx context.Context, level float64) {
	if level <= 0 {
		d.stop(ctx)
		return
	}
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.ch.Activate(cctx, engagement.Clamp(level)/engagement.Max, 0); err != nil {
		d.logger.Warn("actuator activate failed", "level", level, "err", err)
		d.metrics.RecordActuatorError(ctx, "activate")
	}
}

func (d *Driver) stop(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.ch.Stop(cctx); err != nil {
		d.logger.Warn("actuator stop failed", "err", err)
		d.metrics.RecordActuatorError(ctx, "stop")
	}
}
