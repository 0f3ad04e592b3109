package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amandocs/internal/output"
)

func newQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show the upload queue",
		Long: `Show queued, running and finished uploads.
Completed and failed items are kept for a while after processing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := connect()
			if err != nil {
				return err
			}
			items, err := client.Items(cmd.Context())
			if err != nil {
				return err
			}
			return newWriter(cmd).Result(items, func(t *output.Table) {
				t.Header("ID", "STATUS", "COLLECTION", "FILE", "ADDED", "ERROR")
				t.Empty("Queue is empty.")
				for _, it := range items {
					t.Row(shortID(it.ID), it.Status, it.Collection, it.FileName,
						it.AddedAt.Local().Format(time.TimeOnly), it.Error)
				}
			})
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
