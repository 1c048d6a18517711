package cli

import (
	"context"

	"github.com/PatrickalKhouri/ingredient-manager/internal/app"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/products"
	"github.com/spf13/cobra"
)

func NewProductCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Inspect and edit product ingredient lists",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "detail <product-id>",
		Short: "Show a product's matched, unmatched and non-ingredient labels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *app.Services) (any, error) {
				return s.Products.Detail(ctx, args[0])
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "summary",
		Short: "Count the products whose every ingredient is matched",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *app.Services) (any, error) {
				return s.Products.Summary(ctx)
			})
		},
	})
	cmd.AddCommand(newProductSetIngredientsCommand(opts))
	cmd.AddCommand(newProductResplitCommand(opts))
	return cmd
}

func newProductSetIngredientsCommand(opts *RootOptions) *cobra.Command {
	var text string

	cmd := &cobra.Command{
		Use:   "set-ingredients <product-id> [label...]",
		Short: "Replace a product's ingredient list and re-resolve it",
		Long: `Replace a product's ingredient list, given as arguments or as free text with
--text. Labels are whitespace-normalized and deduplicated case-insensitively.
Match records of labels no longer listed are removed and the product is
resolved again.

Example:
  ingredientctl product set-ingredients 7f9c... Aqua Glycerin "Sodium Hyaluronate"
  ingredientctl product set-ingredients 7f9c... --text "Aqua, Glycerin (and) Parfum"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := products.UpdateIngredientsInput{ProductID: args[0], Ingredients: args[1:], Text: text}
			if len(in.Ingredients) == 0 && text == "" {
				return NewExitError(ExitCommandError, "give the labels as arguments or with --text")
			}
			return opts.run(cmd, func(ctx context.Context, s *app.Services) (any, error) {
				return s.Products.UpdateIngredients(ctx, in)
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "ingredient declaration to split")
	return cmd
}

func newProductResplitCommand(opts *RootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "resplit",
		Short: "Split every stored list again and save the lists that change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *app.Services) (any, error) {
				return s.Products.Resplit(ctx, dryRun)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without writing")
	return cmd
}
