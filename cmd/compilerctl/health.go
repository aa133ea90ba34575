package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/adblock-compiler/internal/model"
)

func healthCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health [source-id]",
		Short: "Inspect source health records",
		Long:  "Show the rolling health record for one source, or every recorded source if none is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newCLI(*configPath)
			if err != nil {
				return err
			}

			ctx := context.Background()

			if len(args) == 1 {
				rec, err := cli.tracker.HealthRecord(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to read health record: %w", err)
				}
				printHealthRecord(*rec)
				return nil
			}

			records, err := cli.tracker.AllHealthRecords(ctx)
			if err != nil {
				return fmt.Errorf("failed to list health records: %w", err)
			}
			if len(records) == 0 {
				fmt.Println("no source health records recorded yet")
				return nil
			}
			for _, rec := range records {
				printHealthRecord(rec)
			}
			return nil
		},
	}
	return cmd
}

func printHealthRecord(rec model.HealthRecord) {
	fmt.Printf("%-30s %-10s consecutive_failures=%-3d success_rate=%.2f last_updated=%s\n",
		rec.SourceID, rec.Classification, rec.ConsecutiveFailures, rec.SuccessRate(), rec.LastUpdated.Format("2006-01-02T15:04:05Z07:00"))
}
