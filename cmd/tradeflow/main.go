// cmd/tradeflow/main.go
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/YaganovValera/tradeflow/common/logger"
	"github.com/YaganovValera/tradeflow/internal/app"
	"github.com/YaganovValera/tradeflow/internal/config"
)

type options struct {
	configPath  string
	logLevel    string
	printConfig bool
	background  bool
}

func (o *options) bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "config/config.yaml", "path to config file (empty: ENV and defaults only)")
	fs.StringVar(&o.logLevel, "log-level", "", "override logging.level")
	fs.BoolVar(&o.printConfig, "print-config", false, "print effective config and exit")
	fs.BoolVar(&o.background, "background", false, "start in background mode (slower reconnects)")
}

func main() {
	opts := &options{}

	root := &cobra.Command{
		Use:           "tradeflow",
		Short:         "Hyperliquid trade stream aggregator",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
	}
	opts.bind(root.Flags())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tradeflow: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, opts *options) error {
	// 1) Конфиг
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if cmd.Flags().Changed("background") {
		cfg.Hyperliquid.Background = opts.background
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if opts.printConfig {
		return cfg.Print(cmd.OutOrStdout())
	}

	// 2) Логгер
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	if cfg.Logging.DevMode {
		_ = cfg.Print(cmd.ErrOrStderr())
	}

	log.Info("starting tradeflow",
		zap.String("service.name", cfg.ServiceName),
		zap.String("service.version", cfg.ServiceVersion),
		zap.String("config.path", opts.configPath),
		zap.Strings("coins", cfg.Hyperliquid.Coins),
	)

	// 3) Контекст с отменой по SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 4) Запуск
	if err := app.Run(ctx, cfg, log); err != nil {
		log.Error("application exited with error", zap.Error(err))
		return err
	}
	log.Info("shutdown complete")
	return nil
}
