package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amandocs/internal/output"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, collection, queue and monitor status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := connect()
			if err != nil {
				return err
			}
			st, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := newWriter(cmd)
			if out.JSONMode() {
				return out.JSON(st)
			}

			out.Successf("amandocs %s running (pid %d, up %s)", st.Version, st.PID, st.Uptime)
			out.Statusf("", "Data:     %s", st.DataDir)
			out.Statusf("", "Embedder: %s (%d dims)", st.Embedder, st.Dimensions)
			out.Statusf("", "Queue:    %d/%d used, %d pending, %d completed, %d failed",
				st.Queue.Size, st.Queue.Capacity, st.Queue.Pending, st.Queue.Completed, st.Queue.Failed)
			if st.Queue.Current != nil {
				out.Statusf("", "          processing %s", st.Queue.Current.FileName)
			}
			monitor := string(st.Monitor.State)
			if st.Monitor.Paused {
				monitor += " (paused)"
			}
			if st.Monitor.Holds > 0 {
				monitor += " (held)"
			}
			out.Statusf("", "Monitor:  %s", monitor)
			out.Statusf("", "Searches: %d total, %d empty", st.Searches.Total, st.Searches.Empty)
			out.Newline()

			return out.Result(st.Collections, func(t *output.Table) {
				t.Header("COLLECTION", "DOCUMENTS", "CHUNKS", "SIZE", "DIRTY", "ERROR")
				t.Empty("No collections opened yet.")
				for _, c := range st.Collections {
					t.Row(c.Name, c.Documents, c.Chunks, humanBytes(c.EstimatedBytes), c.Dirty, c.Error)
				}
			})
		},
	}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
