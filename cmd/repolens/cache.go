package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/julianshen/repolens/internal/cache"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response cache",
	}

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove expired cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cmd.ErrOrStderr(), verbose)
			c, closeCache := openCache(cfg, logger)
			defer closeCache()

			n := c.Purge()
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired entries.\n", n)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cache entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Cache.Path == "" || cfg.Cache.Path == memoryCachePath {
				fmt.Fprintln(cmd.OutOrStdout(), "The in-memory cache has nothing to clear.")
				return nil
			}
			s, err := openStore(cfg)
			if err != nil {
				return fmt.Errorf("opening cache: %w", err)
			}
			defer s.Close()

			n, err := s.Clear(cache.KeyPrefix)
			if err != nil {
				return fmt.Errorf("clearing cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries.\n", n)
			return nil
		},
	}

	cmd.AddCommand(purgeCmd, clearCmd)
	return cmd
}
