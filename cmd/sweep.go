package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// Один проход напоминаний и завершения, для cron или догона после простоя.
func newSweepCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Send due reminders and complete finished bookings once, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, log, false)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.scheduler.SweepOnce(ctx)
			if err != nil {
				return fmt.Errorf("reminder sweep: %w", err)
			}
			done, err := a.booking.CompleteDue(ctx)
			if err != nil {
				return fmt.Errorf("completion sweep: %w", err)
			}

			log.Info("sweep finished",
				slog.Int("due", res.Due),
				slog.Int("fired", res.Fired),
				slog.Int("failed", res.Failed),
				slog.Int("completed", done.Completed),
				slog.Int("released", done.Released),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "reminders: %d fired, %d failed; bookings completed: %d\n",
				res.Fired, res.Failed, done.Completed)
			return nil
		},
	}
}
