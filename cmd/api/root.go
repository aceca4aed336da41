package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/commerce-router/internal/config"
	"github.com/zhouzirui/commerce-router/internal/logging"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:           "commerce-router",
		Short:         "Routes commerce messages to pizza, restaurant and ride services",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envErr := godotenv.Load()

			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if err := logging.Init(loaded.Log.Level, loaded.Log.Format, loaded.Log.Environment); err != nil {
				return err
			}
			if envErr != nil {
				logging.For("main").WithError(envErr).Debug("no .env file loaded, using system environment only")
			}
			cfg = loaded
			return nil
		},
	}

	current := func() *config.Config { return cfg }

	serve := newServeCmd(current)
	rootCmd.RunE = serve.RunE
	rootCmd.AddCommand(
		serve,
		newRouteCmd(current),
		newServicesCmd(current),
	)
	return rootCmd
}
