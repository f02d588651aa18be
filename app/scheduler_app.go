package app

import (
	"context"
	"time"

	"github.com/Gthulhu/scx_netland/config"
	"github.com/Gthulhu/scx_netland/congestion"
	"github.com/Gthulhu/scx_netland/logger"
	"github.com/Gthulhu/scx_netland/scheduler"
	"github.com/Gthulhu/scx_netland/stats"
	"go.uber.org/fx"
)

const statsTimeout = time.Second

// NewSchedulerApp wires a scheduler process. The app shuts itself down when the driver
// returns, with a non-zero exit code if it failed.
func NewSchedulerApp(cfg config.Config, open scheduler.Opener, extra ...fx.Option) *fx.App {
	opts := []fx.Option{
		SchedulerModule(cfg),
		fx.Provide(func() scheduler.Opener {
			return open
		}),
		fx.Invoke(
			StartCongestionMonitor,
			StartStatsServer,
			StartStatsMonitor,
			StartDriver,
		),
	}
	if !cfg.Logging.Verbose {
		opts = append(opts, fx.NopLogger)
	}
	return fx.New(append(opts, extra...)...)
}

func StartCongestionMonitor(lc fx.Lifecycle, mon *congestion.Monitor) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			mon.Start(logger.WithComponent(context.Background(), "congestion"))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			mon.Stop()
			return nil
		},
	})
}

func StartStatsServer(lc fx.Lifecycle, cfg config.Config, src stats.Requester) error {
	if cfg.Stats.Addr == "" {
		return nil
	}
	engine, err := stats.NewHTTPServer(src, statsTimeout)
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				bgCtx := logger.WithComponent(context.Background(), "stats")
				logger.Logger(bgCtx).Info().Msgf("starting stats server on %s", cfg.Stats.Addr)
				if err := engine.Start(cfg.Stats.Addr); err != nil {
					logger.Logger(bgCtx).Debug().Err(err).Msg("stats server stopped")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Logger(ctx).Info().Msg("shutting down stats server")
			return engine.Shutdown(ctx)
		},
	})
	return nil
}

// StartStatsMonitor logs a snapshot every --stats seconds next to the scheduler.
func StartStatsMonitor(lc fx.Lifecycle, cfg config.Config, src stats.Requester) {
	interval := cfg.StatsInterval()
	if interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				stats.RunMonitor(ctx, src, interval)
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

func StartDriver(lc fx.Lifecycle, shutdowner fx.Shutdowner, driver *scheduler.Driver) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				code := 0
				if err := driver.Run(ctx); err != nil {
					logger.Logger(ctx).Error().Err(err).Msg("scheduler failed")
					code = 1
				}
				if err := shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
					logger.Logger(ctx).Debug().Err(err).Msg("shutdown")
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
			return nil
		},
	})
}
