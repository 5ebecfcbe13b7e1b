package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sha1n/relic-search/internal/app"
	"github.com/sha1n/relic-search/internal/config"
)

var (
	// Version is injected at build time
	Version = "dev"
	// Build is injected at build time
	Build = "unknown"
	// ProgramName is injected at build time
	ProgramName = "relic-search"
)

func main() {
	runMain(os.Args, os.Exit)
}

func runMain(args []string, exit func(int)) {
	if err := Execute(Version, Build, ProgramName, args[1:]); err != nil {
		exit(1)
	}
}

// Execute is the entry point for the CLI, extracted for testing
func Execute(version, build, programName string, args []string) error {
	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "Code search index and MCP server",
		Long:         "Indexes source repositories for keyword, semantic and hybrid search and serves the index over MCP",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			verbose, _ := cmd.Flags().GetBool("verbose")
			app.SetupLogging(os.Stderr, verbose)
		},
	}

	rootCmd.SetVersionTemplate(`{{.Version}} (` + build + `)
`)
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newServeCommand(version),
		newIndexCommand(),
		newSearchCommand(),
		newStatusCommand(),
		newDeleteCommand(),
		newRecreateCommand(),
	)
	rootCmd.SetArgs(args)

	return rootCmd.Execute()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newServeCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [dir...]",
		Short: "Serve the search tools over MCP, indexing the given directories in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return app.RunWithDeps(ctx, app.DefaultRunParams(), cmd.Flags(), version, args)
		},
	}
	app.RegisterCommonFlags(cmd.Flags())
	app.RegisterIndexFlags(cmd.Flags())
	app.RegisterSearchFlags(cmd.Flags())
	app.RegisterServeFlags(cmd.Flags())
	return cmd
}

func newIndexCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <dir>...",
		Short: "Index local repositories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSettings(cmd.Flags(), func(ctx context.Context, settings *config.Settings) error {
				return app.RunIndex(ctx, settings, args, cmd.OutOrStdout())
			})
		},
	}
	app.RegisterCommonFlags(cmd.Flags())
	app.RegisterIndexFlags(cmd.Flags())
	return cmd
}

func newSearchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := queryOptions(cmd.Flags(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return withSettings(cmd.Flags(), func(ctx context.Context, settings *config.Settings) error {
				return app.RunSearch(ctx, settings, opts, cmd.OutOrStdout())
			})
		},
	}
	app.RegisterCommonFlags(cmd.Flags())
	app.RegisterSearchFlags(cmd.Flags())
	app.RegisterQueryFlags(cmd.Flags())
	return cmd
}

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [repository...]",
		Short: "Show the index status of repositories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSettings(cmd.Flags(), func(ctx context.Context, settings *config.Settings) error {
				return app.RunStatus(ctx, settings, args, cmd.OutOrStdout())
			})
		},
	}
	app.RegisterCommonFlags(cmd.Flags())
	return cmd
}

func newDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <repository>",
		Short: "Remove a repository from the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSettings(cmd.Flags(), func(ctx context.Context, settings *config.Settings) error {
				return app.RunDelete(ctx, settings, args[0], cmd.OutOrStdout())
			})
		},
	}
	app.RegisterCommonFlags(cmd.Flags())
	return cmd
}

func newRecreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recreate",
		Short: "Drop the index and create an empty one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSettings(cmd.Flags(), func(ctx context.Context, settings *config.Settings) error {
				return app.RunRecreate(ctx, settings, cmd.OutOrStdout())
			})
		},
	}
	app.RegisterCommonFlags(cmd.Flags())
	return cmd
}

func withSettings(flags *pflag.FlagSet, run func(context.Context, *config.Settings) error) error {
	settings, err := app.LoadSettings(flags)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	return run(ctx, settings)
}

func queryOptions(flags *pflag.FlagSet, text string) (app.QueryOptions, error) {
	opts := app.QueryOptions{Text: text}
	var err error
	if opts.Type, err = flags.GetString("type"); err != nil {
		return opts, err
	}
	if opts.Repository, err = flags.GetString("repository"); err != nil {
		return opts, err
	}
	if opts.Filters, err = flags.GetStringArray("filter"); err != nil {
		return opts, err
	}
	if opts.Top, err = flags.GetInt("top"); err != nil {
		return opts, err
	}
	if opts.Skip, err = flags.GetInt("skip"); err != nil {
		return opts, err
	}
	opts.JSON, err = flags.GetBool("json")
	return opts, err
}
