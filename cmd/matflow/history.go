package main

import (
	"log/slog"

	"github.com/Veraticus/matflow/internal/cli"
	"github.com/Veraticus/matflow/internal/common"
	"github.com/Veraticus/matflow/internal/model"
	"github.com/Veraticus/matflow/internal/storage"
	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	var (
		batchID string
		status  string
		limit   int
		batches bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the local upload journal",
		Long: `Show the local upload journal.

With --batches, list upload runs instead of individual file outcomes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch status {
			case "", model.JournalUploaded, model.JournalReplaced, model.JournalSkipped, model.JournalFailed:
			default:
				return common.NewUserError("unknown status "+status, nil)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := initStorage(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					slog.Warn("Failed to close database", "error", err)
				}
			}()

			if batches {
				list, err := store.ListBatches(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return cli.WriteBatches(cmd.OutOrStdout(), list)
			}

			entries, err := store.ListJournal(cmd.Context(), storage.JournalFilter{
				BatchID: batchID,
				Status:  status,
				Limit:   limit,
			})
			if err != nil {
				return err
			}
			return cli.WriteJournal(cmd.OutOrStdout(), entries)
		},
	}

	cmd.Flags().StringVar(&batchID, "batch", "", "only show entries from this batch")
	cmd.Flags().StringVar(&status, "status", "", "only show entries with this status (uploaded, replaced, skipped, failed)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to show")
	cmd.Flags().BoolVar(&batches, "batches", false, "list upload runs instead of files")
	cmd.MarkFlagsMutuallyExclusive("batches", "batch")

	return cmd
}
