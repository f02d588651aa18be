package core

import (
	"context"

	"github.com/Gthulhu/scx_netland/scheduler"
)

var _ scheduler.Channel = (*Sched)(nil)

// Opener loads a fresh BPF scheduler for every session the driver starts.
func Opener(opts Options) scheduler.Opener {
	return func(ctx context.Context) (scheduler.Channel, error) {
		s, err := LoadSched(ctx, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
