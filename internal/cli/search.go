package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	aghpb "github.com/JohnPlummer/jp-go-aghpb"
)

func newSearchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search for books by name",
		Long: `Search the API for books whose names match the query.

Search results carry no image; use "aghpb book ID" to download one.

Examples:
  aghpb search "frieren"
  aghpb search -n 5 "holding"
  aghpb search -c Rust "ferris"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			category, _ := cmd.Flags().GetString("category")
			limit, _ := cmd.Flags().GetInt("limit")

			a.logger.Debug("searching", "query", query, "category", category, "limit", limit)

			action := a.client.Search(query, aghpb.WithCategory(category), aghpb.WithLimit(limit))
			books, err := fetch(a, cmd, "Searching", action)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			if a.jsonOutput {
				return printJSON(cmd, books)
			}
			if len(books) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No books found for %q\n", query)
				return nil
			}
			for i := range books {
				printBook(cmd, &books[i])
			}
			return nil
		},
	}
	cmd.Flags().StringP("category", "c", "", "only search this category")
	cmd.Flags().IntP("limit", "n", 0, "maximum number of results (0 = server default)")
	return cmd
}
