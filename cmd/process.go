package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process unread mailbox messages into the ledger",
	Long:  "Performs one run: lists unseen messages in the configured folder, extracts and validates line items, appends them to the ledger, and emails the summary.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Coordinator.Execute(ctx)
		if summary != nil {
			counts := summary.Counts()
			zap.L().Info("process finished",
				zap.String("runID", summary.RunID),
				zap.Int("committed", counts.Committed),
				zap.Int("skipped", counts.Skipped),
				zap.Int("failed", counts.Failed),
				zap.Int("rowsWritten", counts.RowsWritten))
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
}
