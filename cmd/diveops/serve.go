package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"diveops/internal/app"
	"diveops/internal/config"
	"diveops/internal/infrastructure"
)

type serveOptions struct {
	configFile string
	port       int
	store      string
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		Long: `Run the console server until SIGINT or SIGTERM.

Configuration comes from DIVEOPS_* environment variables over an optional
YAML file (config.yaml, configs/config.yaml or --config).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.configFile, "config", "c", "", "YAML config file")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "listen port (overrides config)")
	cmd.Flags().StringVar(&opts.store, "store", "", "record store driver: memory or mysql (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	if opts.configFile != "" {
		if err := os.Setenv(config.ConfigFileEnv, opts.configFile); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}
	if opts.store != "" {
		cfg.Store.Driver = opts.store
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() { _ = infrastructure.CloseLogFile() }()

	application, err := app.NewApplication(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s listening on :%d (store: %s)\n",
		boldStyle.Render("diveops"), cfg.Server.Port, cfg.Store.Driver)
	return application.Run(cmd.Context())
}
