package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"platen/internal/config"
	"platen/internal/daemon"
	"platen/internal/queue"
	"platen/internal/tasks"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var priority string

	cmd := &cobra.Command{
		Use:   "add <file>...",
		Short: "Queue scanned answer sheets for processing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := tasks.ParsePriority(priority); !ok {
				return fmt.Errorf("invalid priority %q (expected low, normal, high, or urgent)", priority)
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()
				notifier, _, err := ctx.notifier()
				if err != nil {
					return err
				}
				for _, arg := range args {
					absPath, err := daemon.ValidateScanFile(arg)
					if err != nil {
						return err
					}
					existing, err := store.FindBySourcePath(cmd.Context(), absPath)
					if err != nil {
						return err
					}
					if existing != nil {
						fmt.Fprintf(out, "Skipped %s (already queued as %s)\n", absPath, shortID(existing.ID))
						continue
					}
					sheet, err := store.NewSheet(cmd.Context(), absPath, priority)
					if err != nil {
						return err
					}
					if err := notifier.NotifySheetQueued(cmd.Context(), absPath); err != nil {
						fmt.Fprintf(out, "Warning: queue notification failed: %v\n", err)
					}
					fmt.Fprintf(out, "Queued %s as sheet %s\n", absPath, shortID(sheet.ID))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&priority, "priority", "p", "", "Scheduling priority (low, normal, high, urgent)")
	return cmd
}
