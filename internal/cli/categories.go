package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	aghpb "github.com/JohnPlummer/jp-go-aghpb"
)

func newCategoriesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"cats"},
		Short:   "List all book categories",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, _ := cmd.Flags().GetBool("cache")

			categories, err := fetch(a, cmd, "Fetching categories", a.client.Categories(aghpb.WithCache(cache)))
			if err != nil {
				return fmt.Errorf("categories failed: %w", err)
			}
			if cache {
				// Served from the cache populated above.
				if categories, err = a.client.CachedCategories(cmd.Context()); err != nil {
					return err
				}
			}

			if a.jsonOutput {
				return printJSON(cmd, categories)
			}
			for _, category := range categories {
				fmt.Fprintln(cmd.OutOrStdout(), category)
			}
			return nil
		},
	}
	cmd.Flags().Bool("cache", false, "store the fetched categories in the client cache")
	return cmd
}
