package main

import (
	"fmt"
	"os"

	"signal_bot/internal/modules/botstate"
	"signal_bot/internal/modules/conditions"
	"signal_bot/internal/modules/config"
	"signal_bot/internal/modules/health"
	"signal_bot/internal/modules/market_data"
	telegram "signal_bot/internal/modules/telegram_bot"
	"signal_bot/internal/modules/threecommas"
	"signal_bot/internal/runner"
	"signal_bot/pkg/logger"
	"signal_bot/pkg/tracing"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const serviceName = "signal_bot"

var paths config.Paths

var rootCmd = &cobra.Command{
	Use:          "signal_bot",
	Short:        "3CQS signals to 3Commas DCA bots",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// до чтения конфига пишем только в консоль
		logger.Init(logger.Config{})
		logger.SetServiceName(serviceName)
		tracing.SetServiceName(serviceName)
		defer logger.Sync()

		app := fx.New(
			fx.WithLogger(func() fxevent.Logger {
				return &fxevent.ZapLogger{Logger: logger.InfoLogger.WithOptions(zap.IncreaseLevel(zap.WarnLevel))}
			}),
			fx.Supply(paths),
			config.Module(),
			fx.Invoke(initLogging, initTracing),
			threecommas.Module(),
			market_data.Module(),
			conditions.Module(),
			botstate.Module(),
			telegram.Module(),
			health.Module(),
			runner.Module(),
		)
		if err := app.Err(); err != nil {
			return err
		}
		app.Run()
		return nil
	},
}

func initLogging(cfg *config.Config) {
	file := ""
	if cfg.General.LogDir != "" {
		file = serviceName + ".log"
	}
	logger.Init(logger.Config{
		Dir:       cfg.General.LogDir,
		File:      file,
		RotateDay: cfg.General.LogRotate,
		Debug:     cfg.General.Debug,
	})
	logger.Info("[MAIN] config loaded from %s", cfg.Source)
}

func initTracing(lc fx.Lifecycle, cfg *config.Config) error {
	if !cfg.Tracing.Enabled {
		return nil
	}
	_, closer, err := tracing.InitTracer(tracing.Config{Host: cfg.Tracing.Host, Port: cfg.Tracing.Port})
	if err != nil {
		return err
	}
	lc.Append(fx.StopHook(closer))
	return nil
}

func main() {
	rootCmd.Flags().StringVar(&paths.DataDir, "datadir", "", "directory with config, .env and logs (default: working directory)")
	rootCmd.Flags().StringVar(&paths.File, "config", "", "config file (default: <datadir>/signal_bot.yaml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
