// Package cmd defines and implements the CLI commands for the discovery executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/insight-discovery/internal/bulk"
	"github.com/JakeFAU/insight-discovery/internal/config"
	"github.com/JakeFAU/insight-discovery/internal/server"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the slice of the composition root the commands use.
// Tests inject a fake through newApp.
type App interface {
	Run(ctx context.Context) error
	Migrate(ctx context.Context) error
	Sweep(ctx context.Context) (int64, error)
	Export(ctx context.Context, req bulk.ExportRequest) (bulk.ExportResult, error)
	Prefetch(ctx context.Context, req bulk.PrefetchRequest) (bulk.Stats, error)
	Logger() *zap.Logger
	Close()
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgFile string) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	app, err := server.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return app, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "discovery",
		Short: "Finds, filters and exports articles relevant to a research prompt.",
		Long: `discovery searches upstream accounts for articles matching a research prompt,
keeps the ones that pass the embedding and reasoning gates, and exports them
as Markdown or PDF with their images localized.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env DISCOVERY_* and .env are always read)")

	cmd.AddCommand(
		newServeCmd(),
		newExportCmd(),
		newPrefetchCmd(),
		newMigrateCmd(),
		newSweepCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
