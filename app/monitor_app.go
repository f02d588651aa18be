package app

import (
	"context"

	"github.com/Gthulhu/scx_netland/config"
	"github.com/Gthulhu/scx_netland/stats"
	"go.uber.org/fx"
)

// NewMonitorApp wires monitor-only mode: it polls a running scheduler's stats endpoint
// and never loads the scheduler itself.
func NewMonitorApp(cfg config.Config, extra ...fx.Option) *fx.App {
	opts := []fx.Option{
		ConfigModule(cfg),
		fx.Provide(func(c config.Config) stats.Requester {
			return stats.NewClient(c.Stats.Addr)
		}),
		fx.Invoke(StartRemoteMonitor),
	}
	if !cfg.Logging.Verbose {
		opts = append(opts, fx.NopLogger)
	}
	return fx.New(append(opts, extra...)...)
}

func StartRemoteMonitor(lc fx.Lifecycle, cfg config.Config, src stats.Requester) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				stats.RunMonitor(ctx, src, cfg.MonitorInterval())
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
