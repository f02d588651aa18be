package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Gthulhu/scx_netland/app"
	"github.com/Gthulhu/scx_netland/config"
	core "github.com/Gthulhu/scx_netland/goland_core"
	"github.com/Gthulhu/scx_netland/logger"
)

const Version = "0.1.0"

func newRootCmd() *cobra.Command {
	var configName, configDir, envFile string

	cmd := &cobra.Command{
		Use:           "scx_netland",
		Short:         "User-space sched_ext deadline scheduler with network congestion feedback",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil {
					return errors.Wrapf(err, "load env file %s", envFile)
				}
			}
			cfg, err := config.Load(configName, configDir, cmd.Flags())
			if err != nil {
				return err
			}
			logger.InitLogger(cfg.LogLevel())
			ctx := context.Background()

			if cfg.MonitorInterval() > 0 {
				logger.Logger(ctx).Info().Str("addr", cfg.Stats.Addr).Msg("monitor mode")
				app.NewMonitorApp(cfg).Run()
				return nil
			}

			if err := core.Mlockall(); err != nil {
				logger.Logger(ctx).Warn().Err(err).Msg("mlockall failed")
			}
			open := core.Opener(core.Options{
				ObjPath:     cfg.Scheduler.BPFObject,
				Partial:     cfg.Scheduler.Partial,
				ExitDumpLen: cfg.Scheduler.ExitDumpLen,
				Debug:       cfg.Logging.Verbose,
			})
			app.NewSchedulerApp(cfg, open).Run()
			return nil
		},
	}

	config.RegisterFlags(cmd.Flags())
	cmd.Flags().StringVar(&configName, "config-name", "", "Name of the TOML config file, without extension")
	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory searched for the config file")
	cmd.Flags().StringVar(&envFile, "env-file", "", "Load SCX_ environment variables from this file")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.InitLogger("error")
		logger.Logger(context.Background()).Error().Err(err).Msg("scx_netland")
		os.Exit(1)
	}
}
