package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/PatrickalKhouri/ingredient-manager/pkg/rematch"
	"github.com/spf13/cobra"
)

// RematchOptions holds flags for the rematch command. Unset flags keep the configured defaults.
type RematchOptions struct {
	*RootOptions
	Concurrency int
	Limit       int
	Retries     int
	TimeoutMs   int
	DryRun      bool
	NoDrop      bool
}

func NewRematchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RematchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rematch",
		Short: "Drop every match record and re-resolve all products",
		Long: `Re-resolve every product with a fixed pool of workers. Progress is written to
stdout as one JSON object per line; the final result follows.

Exit status is 0 when every product resolved, 1 when some failed and 2 when
the run could not start.

Example:
  ingredientctl rematch --concurrency 16 --retries 3
  ingredientctl rematch --limit 100 --no-drop`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRematch(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", rematch.DefaultConcurrency, "number of workers")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "resolve at most this many products (0 = all)")
	cmd.Flags().IntVar(&opts.Retries, "retries", rematch.DefaultRetries, "retries per product for retryable failures")
	cmd.Flags().IntVar(&opts.TimeoutMs, "timeout-ms", int(rematch.DefaultTimeout/time.Millisecond), "per-product timeout in milliseconds")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "count products without dropping or resolving")
	cmd.Flags().BoolVar(&opts.NoDrop, "no-drop", false, "keep existing match records")

	return cmd
}

// apply overlays the flags the user set on the configured defaults.
func (o *RematchOptions) apply(cmd *cobra.Command, base rematch.Options) rematch.Options {
	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		base.Concurrency = o.Concurrency
	}
	if flags.Changed("retries") {
		base.Retries = o.Retries
	}
	if flags.Changed("timeout-ms") {
		base.Timeout = time.Duration(o.TimeoutMs) * time.Millisecond
	}
	base.Limit = o.Limit
	base.DryRun = o.DryRun
	base.NoDrop = o.NoDrop
	return base
}

func (o *RematchOptions) validate() error {
	if o.Concurrency < 1 {
		return NewExitError(ExitCommandError, "--concurrency must be at least 1")
	}
	if o.Limit < 0 || o.Retries < 0 || o.TimeoutMs < 0 {
		return NewExitError(ExitCommandError, "--limit, --retries and --timeout-ms must not be negative")
	}
	return nil
}

func runRematch(cmd *cobra.Command, opts *RematchOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	a, cleanup, err := opts.newApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	services, err := a.Open(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect", err)
	}

	runOpts := opts.apply(cmd, a.RematchOptions())
	runOpts.OnProgress = newProgressWriter(cmd.OutOrStdout()).write

	result, err := services.Rematch.Run(ctx, runOpts)
	if err != nil {
		return WrapExitError(ExitCommandError, "rematch did not run", err)
	}
	if err := opts.printer(cmd).Print(result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d products failed", result.Failed, result.Processed))
	}
	return nil
}

// progressWriter emits one JSON line per progress report.
type progressWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newProgressWriter(w io.Writer) *progressWriter {
	return &progressWriter{enc: json.NewEncoder(w)}
}

func (p *progressWriter) write(progress rematch.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.enc.Encode(progress)
}
