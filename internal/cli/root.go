// Package cli is the ingredientctl command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/PatrickalKhouri/ingredient-manager/config"
	"github.com/PatrickalKhouri/ingredient-manager/internal/app"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/logging"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	EnvFile string
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ingredientctl",
		Short: "Resolve product ingredient labels against the ingredient catalog",
		Long: `ingredientctl resolves the ingredient labels of cosmetic products against the
canonical ingredient catalog, curates aliases and match records, scores products
and runs the bulk rematch.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before the environment")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewRematchCommand(opts))
	cmd.AddCommand(NewResolveCommand(opts))
	cmd.AddCommand(NewMatchCommand(opts))
	cmd.AddCommand(NewAliasCommand(opts))
	cmd.AddCommand(NewScoreCommand(opts))
	cmd.AddCommand(NewCatalogCommand(opts))
	cmd.AddCommand(NewProductCommand(opts))

	return cmd
}

// Execute runs the command tree and returns the process exit status.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	format, _ := cmd.PersistentFlags().GetString("format")
	if !slices.Contains(ValidFormats, format) {
		format = "text"
	}
	(&Printer{Format: format, Writer: stderr}).PrintError(err)
	return GetExitCode(err)
}

func (o *RootOptions) printer(cmd *cobra.Command) *Printer {
	return &Printer{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// newApp loads configuration and builds the logger and the unconnected app. The returned func
// closes whatever the command opened and flushes the logger.
func (o *RootOptions) newApp(ctx context.Context) (*app.App, func(), error) {
	cfg, err := config.Load(o.EnvFile)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	level := cfg.LogLevel
	if o.Verbose {
		level = "debug"
	}
	logger, sync, err := logging.New(logging.Config{Level: level, Pretty: cfg.PrettyLogs, AppName: cfg.AppName})
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to build logger", err)
	}

	a := app.New(cfg, logger)
	if err := a.SetupTracing(ctx); err != nil {
		sync()
		return nil, nil, WrapExitError(ExitCommandError, "failed to set up tracing", err)
	}
	cleanup := func() {
		if err := a.Close(context.WithoutCancel(ctx)); err != nil {
			logger.WithError(err).Warn("Failed to close connections")
		}
		sync()
	}
	return a, cleanup, nil
}

// run opens the stores, runs fn and prints its result.
func (o *RootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, s *app.Services) (any, error)) error {
	ctx := cmd.Context()
	a, cleanup, err := o.newApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	services, err := a.Open(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect", err)
	}
	result, err := fn(ctx, services)
	if err != nil {
		return err
	}
	return o.printer(cmd).Print(result)
}
