package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	aghpb "github.com/JohnPlummer/jp-go-aghpb"
)

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printBook(cmd *cobra.Command, book *aghpb.Book) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "[%d] %s\n", book.SearchID, book.Name)
	fmt.Fprintf(out, "    Category: %s\n", book.Category)
	if book.DateAdded != "" {
		fmt.Fprintf(out, "    Added:    %s\n", book.DateAdded)
	}
	fmt.Fprintf(out, "    Commit:   %s by %s\n", shortHash(book.CommitHash), book.CommitAuthor)
	if book.CommitURL != "" {
		fmt.Fprintf(out, "              %s\n", book.CommitURL)
	}
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}
