package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amandocs/internal/service"
)

func newSearchCmd() *cobra.Command {
	var (
		collection string
		limit      int
		scopes     []string
		sheet      string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed documents",
		Long: `Run a semantic search against a collection.

Examples:
  amandocs search "quarterly revenue"
  amandocs search -k 10 --scope /home/me/contracts "termination clause"
  amandocs search --sheet Q3 "travel expenses"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect()
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			hits, err := client.Search(cmd.Context(), service.SearchRequest{
				Collection:   collection,
				Query:        query,
				K:            limit,
				PathPrefixes: scopes,
				Sheet:        sheet,
			})
			if err != nil {
				return err
			}

			out := newWriter(cmd)
			if out.JSONMode() {
				return out.JSON(hits)
			}
			w := cmd.OutOrStdout()
			if len(hits) == 0 {
				_, err := fmt.Fprintf(w, "No results for %q\n", query)
				return err
			}
			for i, h := range hits {
				_, _ = fmt.Fprintf(w, "%d. %s  (score %.3f)\n", i+1, h.Path, h.Score)
				if h.Sheet != "" {
					_, _ = fmt.Fprintf(w, "   sheet: %s\n", h.Sheet)
				}
				_, _ = fmt.Fprintf(w, "   %s\n\n", snippet(h.Text, 240))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection to search (default from config)")
	cmd.Flags().IntVarP(&limit, "limit", "k", service.DefaultSearchLimit, "Maximum number of results")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "Only match documents under these path prefixes")
	cmd.Flags().StringVar(&sheet, "sheet", "", "Only match chunks from this spreadsheet sheet")
	return cmd
}

// snippet collapses whitespace and truncates to n runes.
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "…"
}
