package cli

import (
	"context"
	"fmt"

	"github.com/PatrickalKhouri/ingredient-manager/internal/app"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/matching"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/models"
	"github.com/spf13/cobra"
)

func NewResolveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <product-id>",
		Short: "Resolve every ingredient label of one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *app.Services) (any, error) {
				return s.Matching.ResolveProduct(ctx, args[0])
			})
		},
	}
}

func NewMatchCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Curate match records",
	}
	cmd.AddCommand(newMatchClearCommand(opts))
	cmd.AddCommand(newMatchManualCommand(opts))
	cmd.AddCommand(newMatchClassifyCommand(opts))
	cmd.AddCommand(newMatchUnmatchedCommand(opts))
	return cmd
}

func newMatchClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <product-id> <label>",
		Short: "Drop a label's record and resolve it again",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *app.Services) (any, error) {
				return s.Matching.Clear(ctx, args[0], args[1])
			})
		},
	}
}

func newMatchManualCommand(opts *RootOptions) *cobra.Command {
	var score float64

	cmd := &cobra.Command{
		Use:   "manual <product-id> <label> <catalog-id>",
		Short: "Pin a label to a catalog entry",
		Long: `Pin a label to a catalog entry. Manual records are never overwritten by
automatic resolution or alias application.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := matching.ManualMatchInput{ProductID: args[0], Label: args[1], CatalogID: args[2]}
			if cmd.Flags().Changed("score") {
				in.Score = &score
			}
			return opts.run(cmd, func(ctx context.Context, s *app.Services) (any, error) {
				return s.Matching.SetManual(ctx, in)
			})
		},
	}
	cmd.Flags().Float64Var(&score, "score", 1, "match score between 0 and 1")
	return cmd
}

func newMatchClassifyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <match-id> <ingredient|non_ingredient>",
		Short: "Classify a label for every product that carries it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			classification := models.LabelClassification(args[1])
			if !classification.Valid() {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid classification %q: must be %s or %s",
					args[1], models.LabelIngredient, models.LabelNonIngredient))
			}
			return opts.run(cmd, func(ctx context.Context, s *app.Services) (any, error) {
				return s.Curation.SetClassification(ctx, args[0], classification)
			})
		},
	}
}

func newMatchUnmatchedCommand(opts *RootOptions) *cobra.Command {
	var filter models.UnmatchedFilter

	cmd := &cobra.Command{
		Use:   "unmatched",
		Short: "List the review queue of unresolved ingredient labels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *app.Services) (any, error) {
				return s.Curation.Unmatched(ctx, filter)
			})
		},
	}
	cmd.Flags().StringVar(&filter.Brand, "brand", "", "exact brand")
	cmd.Flags().StringVar(&filter.Ingredient, "ingredient", "", "label substring")
	cmd.Flags().StringVar(&filter.ProductName, "product-name", "", "product name substring")
	cmd.Flags().IntVar(&filter.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&filter.Limit, "limit", models.DefaultPageSize, "page size")
	return cmd
}
