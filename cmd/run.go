package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var targetsFile string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs one scan over the target list",
		Long: `Fetches every target concurrently, notifies about fragments not seen on the
previous run and updates the cache. Per-target failures are reported but do not
fail the command; an empty or unreadable target list does.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			if targetsFile != "" {
				cfg.Scraper.TargetsFile = targetsFile
			}
			svc, err := newService(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			defer svc.Close(context.WithoutCancel(cmd.Context()))

			report, err := svc.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d targets, %d notifications, %d failures\n",
				report.RunID, len(report.Targets), report.Notifications, report.Failures)
			return err
		},
	}
	cmd.Flags().StringVar(&targetsFile, "targets", "", "target list file (overrides scraper.targets_file)")
	return cmd
}
