package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"platen/internal/config"
	"platen/internal/pipeline"
	"platen/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the sheet queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStages []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued sheets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				stages := make([]pipeline.Stage, 0, len(listStages))
				for _, value := range listStages {
					stages = append(stages, pipeline.Stage(value))
				}

				sheets, err := store.List(cmd.Context(), stages...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(sheets) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(sheets))
				for _, sheet := range sheets {
					rows = append(rows, []string{
						shortID(sheet.ID),
						baseName(sheet.SourcePath),
						sheet.Stage.Label(),
						formatConfidence(sheet.OverallConfidence()),
						formatTimestamp(sheet.UpdatedAt),
					})
				}
				table := renderTable(out,
					[]string{"ID", "File", "Stage", "Confidence", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStages, "stage", "s", nil, "Filter by lifecycle stage (repeatable)")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished sheets from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()
				var removed int64
				var err error
				if clearAll {
					removed, err = store.Clear(cmd.Context())
				} else {
					removed, err = store.ClearTerminal(cmd.Context())
				}
				if err != nil {
					return err
				}
				if clearAll {
					fmt.Fprintf(out, "Cleared %d sheets\n", removed)
				} else {
					fmt.Fprintf(out, "Cleared %d finished sheets\n", removed)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearAll, "all", false, "Remove every sheet, including unprocessed ones")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [sheetID...]",
		Short: "Requeue errored and review sheets",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				updated, err := store.RetrySheets(cmd.Context(), args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d sheets\n", updated)
				return nil
			})
		},
	}
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	var detailed bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show queue health summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()
				health, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Total: %d\nUploaded: %d\nProcessing: %d\nCompleted: %d\nReview: %d\nErrored: %d\n",
					health.Total,
					health.Uploaded,
					health.Processing,
					health.Completed,
					health.Review,
					health.Errored,
				)
				if !detailed {
					return nil
				}

				db, err := store.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\nDatabase: %s\n", db.DBPath)
				fmt.Fprintf(out, "Exists: %s\nReadable: %s\nSchema present: %s\nIntegrity: %s\n",
					yesNo(db.DatabaseExists),
					yesNo(db.DatabaseReadable),
					yesNo(db.TableExists),
					yesNo(db.IntegrityCheck),
				)
				if db.Error != "" {
					fmt.Fprintf(out, "Error: %s\n", db.Error)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&detailed, "detailed", false, "Include database diagnostics")
	return cmd
}
