package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/prerender/pkg/cache"
	"github.com/matzehuels/prerender/pkg/config"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the render result cache",
		Long: `Manage the render result cache.

Only the file backend is managed here. Redis entries expire through their TTL.`,
	}

	cmd.AddCommand(c.cacheSweepCommand("clear", "Remove all cached renders", (*cache.FileCache).Clear))
	cmd.AddCommand(c.cacheSweepCommand("prune", "Remove expired cached renders", (*cache.FileCache).Prune))
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

type sweepFunc func(*cache.FileCache, context.Context) (int, error)

// cacheSweepCommand creates a subcommand that removes file cache entries
// selected by sweep.
func (c *CLI) cacheSweepCommand(use, short string, sweep sweepFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := c.openFileCache()
			if err != nil {
				return err
			}
			count, err := sweep(fc, cmd.Context())
			if err != nil {
				return err
			}
			if count == 0 {
				printInfo("Nothing to remove")
				return nil
			}
			printSuccess("Removed %d cached renders", count)
			printDetail("Directory: %s", fc.Dir())
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			dir, err := renderCacheDir(cfg)
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	}
}

func (c *CLI) openFileCache() (*cache.FileCache, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Cache.Backend != config.CacheFile {
		return nil, fmt.Errorf("only the file cache backend can be managed (configured: %s)", cfg.Cache.Backend)
	}
	dir, err := renderCacheDir(cfg)
	if err != nil {
		return nil, fmt.Errorf("get cache dir: %w", err)
	}
	return cache.NewFileCache(dir)
}
