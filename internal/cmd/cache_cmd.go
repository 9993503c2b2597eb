package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/upcall/upcall-cli/internal/etagcache"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cache",
		Aliases: []string{"ch"},
		Short:   "Manage the conditional-GET cache",
		Long: `Manage the Redis-backed response cache. GET responses carrying an ETag are
stored and revalidated with If-None-Match on later calls; a 304 answer is
served from the cache. The cache is active only when UPCALL_REDIS_ADDR is
set.`,
	}

	cmd.AddCommand(newCacheClearCmd())
	cmd.AddCommand(newCacheStatusCmd())
	return cmd
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached responses",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cache := etagcache.FromEnv()
			if cache == nil {
				return fmt.Errorf("cache not configured; set UPCALL_REDIS_ADDR")
			}
			defer func() { _ = cache.Close() }()

			if err := cache.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
			return nil
		},
	}
}

func newCacheStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cache configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr := os.Getenv("UPCALL_REDIS_ADDR")
			if addr == "" {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Cache disabled (UPCALL_REDIS_ADDR not set).")
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Cache enabled: redis at %s, TTL %s\n", addr, etagcache.DefaultTTL)
			return nil
		},
	}
}
