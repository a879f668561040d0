package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"platen/internal/config"
	"platen/internal/daemon"
	"platen/internal/pipeline"
	"platen/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()

				running, err := daemon.LockHeld(cfg)
				if err != nil {
					return fmt.Errorf("check daemon lock: %w", err)
				}
				if running {
					fmt.Fprintln(out, "Daemon: running")
				} else {
					fmt.Fprintln(out, "Daemon: stopped")
				}
				fmt.Fprintf(out, "Inbox: %s\n", cfg.Paths.InboxDir)

				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if len(stats) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(stats))
				for _, stage := range pipeline.AllStages() {
					count, ok := stats[stage]
					if !ok || count == 0 {
						continue
					}
					rows = append(rows, []string{stage.Label(), fmt.Sprintf("%d", count)})
				}
				table := renderTable(out,
					[]string{"Stage", "Count"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				)
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}
}
