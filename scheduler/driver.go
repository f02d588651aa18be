package scheduler

import (
	"context"

	"github.com/Gthulhu/scx_netland/engine"
	"github.com/Gthulhu/scx_netland/logger"
	"github.com/pkg/errors"
)

// Driver runs sessions back to back for as long as the kernel asks for a restart.
type Driver struct {
	open     Opener
	cfg      engine.Config
	opts     []Option
	sessions int
}

func NewDriver(open Opener, cfg engine.Config, opts ...Option) *Driver {
	return &Driver{open: open, cfg: cfg, opts: opts}
}

// Sessions is the number of sessions started so far.
func (d *Driver) Sessions() int {
	return d.sessions
}

// Run returns nil when the scheduler exits without a restart request or ctx is cancelled.
// A failure to open or shut down a session is returned as is.
func (d *Driver) Run(ctx context.Context) error {
	for {
		ch, err := d.open(ctx)
		if err != nil {
			return errors.Wrap(err, "load scheduler")
		}
		d.sessions++
		report, err := NewSession(ch, d.cfg, d.opts...).Run(ctx)
		if err != nil {
			return errors.Wrap(err, "shutdown scheduler")
		}
		if ctx.Err() != nil {
			return nil
		}
		if !report.ShouldRestart() {
			return nil
		}
		logger.Logger(ctx).Info().Str("exit", report.String()).Msg("kernel requested restart")
	}
}
