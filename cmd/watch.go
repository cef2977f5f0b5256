package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var (
		interval time.Duration
		addr     string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Runs a scan every interval until interrupted",
		Long: `Scans immediately and then every scraper.interval, reloading the target list
each time. Scans never overlap. When server.addr is set an HTTP surface exposes
health, metrics and run triggers.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			if interval > 0 {
				cfg.Scraper.Interval = interval
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			svc, err := newService(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			defer svc.Close(context.WithoutCancel(cmd.Context()))

			if err := svc.Watch(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("watch: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "time between scans (overrides scraper.interval)")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides server.addr)")
	return cmd
}
