package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vitaliisemenov/adblock-compiler/internal/model"
	"github.com/vitaliisemenov/adblock-compiler/internal/workflow"
)

func loadConfiguration(path string) (*model.Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}
	var cfg model.Configuration
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func compileCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <job-file>",
		Short: "Compile a filter list job",
		Long:  "Run a single compilation job described by a YAML job file and print the resulting rule count and diagnostics summary.",
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
			result, err := cli.coordinator.Compile(ctx, workflow.NewInstanceID(), workflow.CompilationParams{
				Configuration: jobCfg,
			})
			if err != nil {
				return fmt.Errorf("compile failed: %w", err)
			}

			fmt.Printf("compiled %q: %d rules, %d source errors, from_cache=%v\n",
				jobCfg.Name, result.RuleCount, len(result.SourceErrors), result.FromCache)
			return nil
		},
	}
	return cmd
}
