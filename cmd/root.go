// Package cmd defines and implements the CLI commands for the scrapewatch executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/scrapewatch/internal/app"
	"github.com/JakeFAU/scrapewatch/internal/config"
	"github.com/JakeFAU/scrapewatch/internal/scraper"
)

// configKeyType is the key for storing the loaded Config in the context.
type configKeyType struct{}

// Service is the part of *app.App the commands use. Tests swap in a fake.
type Service interface {
	RunOnce(ctx context.Context) (scraper.Report, error)
	Watch(ctx context.Context) error
	Close(ctx context.Context)
}

// newService is the application factory, replaceable in tests.
var newService = func(ctx context.Context, cfg config.Config) (Service, error) {
	return app.Build(ctx, cfg)
}

// openCache opens the configured cache for the cache subcommands, replaceable in tests.
var openCache = func(ctx context.Context, cfg config.CacheConfig) (app.Store, error) {
	return app.OpenCache(ctx, cfg, nil)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "scrapewatch",
		Short: "Watches web pages for new text fragments and sends notifications.",
		Long: `scrapewatch fetches a list of target pages, extracts the text fragments that
contain each target's search text, and notifies about fragments that were not
present on the previous run. Last-seen fragments are kept in a durable cache.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKeyType{}, cfg))
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars use the SCRAPER_ prefix")

	cmd.AddCommand(newRunCmd(), newWatchCmd(), newCacheCmd())
	return cmd
}

func configFrom(ctx context.Context) (config.Config, error) {
	cfg, ok := ctx.Value(configKeyType{}).(config.Config)
	if !ok {
		return config.Config{}, errors.New("configuration not loaded")
	}
	return cfg, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "scrapewatch: %v\n", err)
		stop()
		os.Exit(1)
	}
}
