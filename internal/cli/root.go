// Package cli implements the aghpb command line tool.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	aghpb "github.com/JohnPlummer/jp-go-aghpb"
	"github.com/JohnPlummer/jp-go-aghpb/internal/config"
)

// app holds the state shared by all commands of one invocation.
type app struct {
	client *aghpb.Client
	logger *slog.Logger

	cfgFile    string
	verbose    bool
	jsonOutput bool
	noProgress bool
}

// NewRootCommand builds the aghpb command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "aghpb",
		Short: "Browse anime girls holding programming books",
		Long: `aghpb is a command line client for the AGHPB API.

Examples:
  aghpb status                            Show the API version
  aghpb categories                        List all categories
  aghpb search "frieren" -n 3             Search for books
  aghpb random -c Go -o go.png            Save a random Go book
  aghpb book 368 --type jpeg -o 368.jpeg  Save a book by search id`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default "+config.GetConfigPath()+")")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	flags.BoolVar(&a.jsonOutput, "json", false, "print results as JSON")
	flags.BoolVar(&a.noProgress, "no-progress", false, "hide the progress spinner")
	config.RegisterFlags(flags)

	rootCmd.AddCommand(
		newStatusCmd(a),
		newInfoCmd(a),
		newCategoriesCmd(a),
		newSearchCmd(a),
		newRandomCmd(a),
		newBookCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		Errorf(rootCmd, "%v", err)
		return err
	}
	return nil
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	}))

	opts := append(cfg.ClientOptions(), aghpb.WithLogger(a.logger))
	a.client = aghpb.New(opts...)

	a.logger.Debug("client configured",
		"base_url", cfg.BaseURL,
		"max_retries", cfg.MaxRetries,
		"timeout", cfg.Timeout,
		"circuit_breaker", cfg.CircuitBreaker)
	return nil
}

// Errorf prints an error message to the command's error output.
func Errorf(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: "+format+"\n", args...)
}

// Successf prints a success message.
func Successf(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), "✓ "+format+"\n", args...)
}
