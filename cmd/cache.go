package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/scrapewatch/internal/target"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspects or clears the last-seen fragments of a target",
	}
	cmd.AddCommand(newCacheGetCmd(), newCacheClearCmd())
	return cmd
}

func targetFlags(cmd *cobra.Command, t *target.Target) {
	cmd.Flags().StringVar(&t.URI, "uri", "", "target URI")
	cmd.Flags().StringVar(&t.Text, "text", "", "target search text")
	_ = cmd.MarkFlagRequired("uri")
	_ = cmd.MarkFlagRequired("text")
}

func newCacheGetCmd() *cobra.Command {
	var t target.Target
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Prints the fragments tracked for a target, one per line",
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			store, err := openCache(cmd.Context(), cfg.Cache)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, store.Close()) }()

			value, ok, err := store.Get(cmd.Context(), t.CacheKey())
			if err != nil {
				return fmt.Errorf("read cache: %w", err)
			}
			if !ok {
				_, err = fmt.Fprintf(cmd.ErrOrStderr(), "no entry for %s\n", t.CacheKey())
				return err
			}
			if value == "" {
				return nil
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), value)
			return err
		},
	}
	targetFlags(cmd, &t)
	return cmd
}

func newCacheClearCmd() *cobra.Command {
	var t target.Target
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Forgets the fragments tracked for a target so the next run notifies again",
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			store, err := openCache(cmd.Context(), cfg.Cache)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, store.Close()) }()

			if err := store.Put(cmd.Context(), t.CacheKey(), ""); err != nil {
				return fmt.Errorf("clear cache entry: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", t.CacheKey())
			return err
		},
	}
	targetFlags(cmd, &t)
	return cmd
}
