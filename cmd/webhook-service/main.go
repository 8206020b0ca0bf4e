package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"poshook/internal/config"
	"poshook/internal/constants"
	"poshook/internal/logger"
	"poshook/pkg/logging"
)

var (
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "webhook-service",
		Short: "Forwards POS order and delivery changes to a webhook endpoint",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (optional, env overrides apply)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(validateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveConfigFile() string {
	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}
	return configFile
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook service",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog()

			cfg, err := config.Load(resolveConfigFile())
			if err != nil {
				earlyLog.Error("Failed to load config: %v", err)
				return err
			}

			log, err := logger.New(logger.Options{
				Level:       cfg.Logging.Level,
				Format:      cfg.Logging.Format,
				ServiceName: constants.ServiceName,
			})
			if err != nil {
				earlyLog.Error("Failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			ctx = logging.WithServiceName(ctx, constants.ServiceName)
			log.InfowCtx(ctx, "Starting webhook service",
				"webhook_url", cfg.Webhook.URL,
				"journal_backend", cfg.Journal.Backend,
				"broker", cfg.Broker.Type,
			)

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				app.Shutdown(context.Background())
				return err
			}

			if err := app.Run(ctx); err != nil {
				log.ErrorwCtx(ctx, "Application error", "error", err)
				return err
			}
			return nil
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog()

			cfg, err := config.Load(resolveConfigFile())
			if err != nil {
				earlyLog.Error("Invalid config: %v", err)
				return err
			}

			if cfg.Webhook.Filter != "" {
				if _, err := compileFilter(cfg.Webhook.Filter); err != nil {
					earlyLog.Error("Invalid filter expression: %v", err)
					return err
				}
			}

			earlyLog.Info("Config OK: webhook %s, journal %s", cfg.Webhook.URL, cfg.Journal.Backend)
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}
