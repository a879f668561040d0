package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"platen/internal/config"
	"platen/internal/queue"
)

func newBatchesCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "batches",
		Short: "Show recent batch summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				records, err := store.ListBatches(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No batches recorded")
					return nil
				}

				rows := make([][]string, 0, len(records))
				for _, record := range records {
					rows = append(rows, []string{
						shortID(record.ID),
						formatTimestamp(record.Started),
						fmt.Sprintf("%d", record.Total),
						fmt.Sprintf("%d", record.Completed),
						fmt.Sprintf("%d", record.ManualReview),
						fmt.Sprintf("%d", record.Errored),
						formatDuration(record.P50Duration),
						formatDuration(record.P90Duration),
						formatDuration(record.P99Duration),
					})
				}
				table := renderTable(out,
					[]string{"ID", "Started", "Total", "Done", "Review", "Error", "P50", "P90", "P99"},
					rows,
					[]columnAlignment{
						alignLeft, alignLeft,
						alignRight, alignRight, alignRight, alignRight,
						alignRight, alignRight, alignRight,
					},
				)
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of batches to show")
	return cmd
}
