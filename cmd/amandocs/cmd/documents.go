package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amandocs/internal/output"
	"github.com/Aman-CERP/amandocs/internal/service"
)

func newUploadCmd() *cobra.Command {
	var (
		collection string
		syncIngest bool
		name       string
	)

	cmd := &cobra.Command{
		Use:   "upload <path>...",
		Short: "Queue files for indexing",
		Long: `Queue one or more files for indexing by the daemon.

Use "-" as the path to read content from stdin; --name sets the stored file name.
With --sync the files are ingested immediately and per-file results are reported.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := newWriter(cmd)

			if syncIngest {
				paths, err := absPaths(args)
				if err != nil {
					return err
				}
				res, err := client.IngestPaths(ctx, collection, paths)
				if err != nil {
					return err
				}
				if out.JSONMode() {
					return out.JSON(res)
				}
				out.Successf("Inserted %d of %d files (%d failed)", res.Inserted, res.Total, res.Failed)
				if len(res.Errors) == 0 {
					return nil
				}
				failed := make([]string, 0, len(res.Errors))
				for p := range res.Errors {
					failed = append(failed, p)
				}
				sort.Strings(failed)
				return out.Result(res, func(t *output.Table) {
					t.Header("FAILED", "ERROR")
					for _, p := range failed {
						t.Row(p, res.Errors[p])
					}
				})
			}

			var responses []*service.UploadResponse
			for _, arg := range args {
				req := service.UploadRequest{Collection: collection, FileName: name}
				if arg == "-" {
					if name == "" {
						return fmt.Errorf("--name is required when reading from stdin")
					}
					content, err := readAll(cmd.InOrStdin())
					if err != nil {
						return err
					}
					req.Content = content
				} else {
					abs, err := filepath.Abs(arg)
					if err != nil {
						return err
					}
					req.FilePath = abs
				}
				resp, err := client.UploadFile(ctx, req)
				if err != nil {
					return fmt.Errorf("%s: %w", arg, err)
				}
				responses = append(responses, resp)
				out.Success(resp.Message)
			}
			if out.JSONMode() {
				return out.JSON(responses)
			}
			if n := len(responses); n > 0 {
				out.Statusf("", "Remaining queue capacity: %d", responses[n-1].RemainingCapacity)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Target collection (default from config)")
	cmd.Flags().BoolVar(&syncIngest, "sync", false, "Ingest synchronously instead of queueing")
	cmd.Flags().StringVar(&name, "name", "", "Stored file name for stdin content")
	return cmd
}

func newDocumentsCmd() *cobra.Command {
	var collection string

	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs", "ls"},
		Short:   "List indexed documents",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := connect()
			if err != nil {
				return err
			}
			docs, err := client.Documents(cmd.Context(), collection)
			if err != nil {
				return err
			}
			return newWriter(cmd).Result(docs, func(t *output.Table) {
				t.Header("PATH", "TYPE", "CHUNKS", "UPDATED")
				t.Empty("No documents indexed.")
				for _, d := range docs {
					t.Row(d.FilePath, d.FileType, d.ChunkCount, time.Unix(d.LastUpdated, 0).Format(time.DateTime))
				}
			})
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection to list (default from config)")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var (
		collection string
		all        bool
	)

	cmd := &cobra.Command{
		Use:   "delete [path]...",
		Short: "Remove documents from a collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return fmt.Errorf("pass either paths or --all")
			}
			client, err := connect()
			if err != nil {
				return err
			}
			out := newWriter(cmd)
			ctx := cmd.Context()

			if all {
				if err := client.DeleteAll(ctx, collection); err != nil {
					return err
				}
				out.Success("Collection emptied")
				if out.JSONMode() {
					return out.JSON(map[string]bool{"ok": true})
				}
				return nil
			}

			paths, err := absPaths(args)
			if err != nil {
				return err
			}
			removed, err := client.DeleteDocuments(ctx, collection, paths)
			if err != nil {
				return err
			}
			out.Successf("Removed %d chunks", removed)
			if out.JSONMode() {
				return out.JSON(map[string]int{"removed": removed})
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection to delete from (default from config)")
	cmd.Flags().BoolVar(&all, "all", false, "Remove every document in the collection")
	return cmd
}

func absPaths(args []string) ([]string, error) {
	paths := make([]string, len(args))
	for i, a := range args {
		abs, err := filepath.Abs(a)
		if err != nil {
			return nil, err
		}
		paths[i] = abs
	}
	return paths, nil
}

func readAll(r io.Reader) ([]byte, error) {
	if f, ok := r.(*os.File); ok {
		if info, err := f.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
			return nil, fmt.Errorf("no content on stdin")
		}
	}
	return io.ReadAll(r)
}
