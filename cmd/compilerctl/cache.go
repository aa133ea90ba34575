package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/adblock-compiler/internal/workflow"
)

func cacheCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the compiled-result and source caches",
	}

	cmd.AddCommand(cacheWarmCommand(configPath))

	return cmd
}

func cacheWarmCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warm <job-file>",
		Short: "Warm the source cache",
		Long:  "Pre-fetch every source named in a YAML job file through the caching downloader, so a subsequent compile finds a warm cache instead of paying the origin round trip inline.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newCLI(*configPath)
			if err != nil {
				return err
			}

			jobCfg, err := loadConfiguration(args[0])
			if err != nil {
				return err
			}

			ctx := context.Background()
			if err := cli.coordinator.WarmCache(ctx, workflow.NewInstanceID(), workflow.CacheWarmingParams{
				Sources: jobCfg.Sources,
			}); err != nil {
				return fmt.Errorf("cache warm failed: %w", err)
			}

			fmt.Printf("warmed cache for %d source(s)\n", len(jobCfg.Sources))
			return nil
		},
	}
	return cmd
}
