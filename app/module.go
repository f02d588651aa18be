package app

import (
	"context"

	"github.com/Gthulhu/scx_netland/config"
	"github.com/Gthulhu/scx_netland/congestion"
	"github.com/Gthulhu/scx_netland/engine"
	"github.com/Gthulhu/scx_netland/logger"
	"github.com/Gthulhu/scx_netland/predictor"
	"github.com/Gthulhu/scx_netland/scheduler"
	"github.com/Gthulhu/scx_netland/stats"
	"go.uber.org/fx"
)

const procMount = "/proc"

func ConfigModule(cfg config.Config) fx.Option {
	return fx.Options(
		fx.Provide(func() config.Config {
			return cfg
		}),
		fx.Provide(func(c config.Config) engine.Config {
			return c.EngineConfig()
		}),
		fx.Provide(func(c config.Config) predictor.Config {
			return c.Predictor
		}),
	)
}

func NewCongestionMonitor(cfg config.Config) *congestion.Monitor {
	src := congestion.NewProcNetDevSource(cfg.Congestion.Interface)
	return congestion.NewMonitor(src, &congestion.Cell{}, cfg.CongestionInterval())
}

// NewPageFaultTracker returns nil when procfs cannot be opened; page faults then read as 0.
func NewPageFaultTracker() *stats.PageFaultTracker {
	pf, err := stats.NewPageFaultTracker(procMount, 0)
	if err != nil {
		logger.Logger(context.Background()).Warn().Err(err).Msg("page fault accounting disabled")
		return nil
	}
	return pf
}

// NewAdvisor builds the placement advisor, or nil when no predictor is configured.
func NewAdvisor(cfg predictor.Config) (engine.PlacementAdvisor, error) {
	if cfg.Mode == "" {
		return nil, nil
	}
	ctx := context.Background()
	p, err := predictor.NewPredictor(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	logger.Logger(ctx).Info().Str("mode", cfg.Mode).Str("weights", cfg.WeightsPath).Msg("placement predictor loaded")
	return predictor.NewAdvisor(ctx, p, cfg.Threshold), nil
}

type DriverParams struct {
	fx.In
	Open       scheduler.Opener
	Config     engine.Config
	Monitor    *congestion.Monitor
	Stats      *stats.Server
	PageFaults *stats.PageFaultTracker
	Advisor    engine.PlacementAdvisor
}

func NewDriver(p DriverParams) *scheduler.Driver {
	opts := []scheduler.Option{
		scheduler.WithCongestion(p.Monitor.Cell()),
		scheduler.WithStats(p.Stats),
		scheduler.WithPageFaults(p.PageFaults),
	}
	if p.Advisor != nil {
		opts = append(opts, scheduler.WithAdvisor(p.Advisor))
	}
	return scheduler.NewDriver(p.Open, p.Config, opts...)
}

// SchedulerModule provides everything a scheduler process needs except the Opener,
// which the caller supplies.
func SchedulerModule(cfg config.Config) fx.Option {
	return fx.Options(
		ConfigModule(cfg),
		fx.Provide(
			NewCongestionMonitor,
			stats.NewServer,
			NewPageFaultTracker,
			NewAdvisor,
			NewDriver,
		),
		fx.Provide(func(srv *stats.Server) stats.Requester {
			return srv
		}),
	)
}
