package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the API status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := fetch(a, cmd, "Checking API", a.client.Status())
			if err != nil {
				return fmt.Errorf("status failed: %w", err)
			}
			if a.jsonOutput {
				return printJSON(cmd, status)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API version: %s\n", status.Version)
			return nil
		},
	}
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the number of books and the API version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := fetch(a, cmd, "Fetching info", a.client.Info())
			if err != nil {
				return fmt.Errorf("info failed: %w", err)
			}
			if a.jsonOutput {
				return printJSON(cmd, info)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "API version: %s\n", info.APIVersion)
			fmt.Fprintf(out, "Books:       %d\n", info.BookCount)
			return nil
		},
	}
}
