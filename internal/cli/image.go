package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	aghpb "github.com/JohnPlummer/jp-go-aghpb"
)

func newRandomCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "random",
		Short: "Get a random book",
		Long: `Get a random book, optionally from one category, and save its image.

Examples:
  aghpb random
  aghpb random -c Go -o go.png
  aghpb random --type jpeg -o books/random.jpeg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			imageType, err := imageTypeFlag(cmd)
			if err != nil {
				return err
			}
			category, _ := cmd.Flags().GetString("category")

			action := a.client.RandomBook(aghpb.WithCategory(category), aghpb.WithImageType(imageType))
			book, err := fetch(a, cmd, "Fetching random book", action)
			if err != nil {
				return fmt.Errorf("random book failed: %w", err)
			}
			return a.showBook(cmd, book)
		},
	}
	cmd.Flags().StringP("category", "c", "", "pick from this category")
	addImageFlags(cmd)
	return cmd
}

func newBookCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book ID",
		Short: "Get a book by its search id",
		Example: `  aghpb book 368
  aghpb book 368 --type jpeg -o 368.jpeg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			searchID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid search id %q: %w", args[0], err)
			}
			imageType, err := imageTypeFlag(cmd)
			if err != nil {
				return err
			}

			book, err := fetch(a, cmd, "Fetching book", a.client.Book(searchID, aghpb.WithImageType(imageType)))
			if err != nil {
				return fmt.Errorf("book %d failed: %w", searchID, err)
			}
			return a.showBook(cmd, book)
		},
	}
	addImageFlags(cmd)
	return cmd
}

func addImageFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("type", "t", string(aghpb.ImageTypePNG), "image type (png or jpeg)")
	cmd.Flags().StringP("out", "o", "", "save the image to this file")
}

func imageTypeFlag(cmd *cobra.Command) (aghpb.ImageType, error) {
	value, _ := cmd.Flags().GetString("type")
	return aghpb.ParseImageType(value)
}

func (a *app) showBook(cmd *cobra.Command, book *aghpb.Book) error {
	out, _ := cmd.Flags().GetString("out")
	if out != "" {
		if err := book.SaveImage(out); err != nil {
			return err
		}
		a.logger.Debug("image saved", "path", out, "bytes", len(book.Image))
	}

	if a.jsonOutput {
		return printJSON(cmd, book)
	}
	printBook(cmd, book)
	if out != "" {
		Successf(cmd, "Saved %d bytes to %s", len(book.Image), out)
	}
	return nil
}
