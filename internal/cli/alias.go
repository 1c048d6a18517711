package cli

import (
	"context"

	"github.com/PatrickalKhouri/ingredient-manager/internal/app"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/curation"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/models"
	"github.com/spf13/cobra"
)

func NewAliasCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alias",
		Short: "Manage label aliases",
	}
	cmd.AddCommand(newAliasCreateCommand(opts))
	cmd.AddCommand(newAliasListCommand(opts))
	cmd.AddCommand(newAliasRemoveCommand(opts))
	return cmd
}

func newAliasCreateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create <alias> <catalog-id>",
		Short: "Map a label spelling onto a catalog entry",
		Long: `Map a label spelling onto a catalog entry. An alias with the same normalized
text is overwritten, and every automatic match record carrying that text is
pointed at the catalog entry.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *app.Services) (any, error) {
				return s.Curation.CreateAlias(ctx, curation.CreateAliasInput{Alias: args[0], CatalogID: args[1]})
			})
		},
	}
}

func newAliasListCommand(opts *RootOptions) *cobra.Command {
	var (
		search string
		page   int
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List aliases with their catalog names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *app.Services) (any, error) {
				return s.Curation.ListAliases(ctx, search, page, limit)
			})
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "alias substring")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", models.DefaultPageSize, "page size")
	return cmd
}

func newAliasRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <alias-id>",
		Short: "Delete an alias; records it already resolved keep their match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *app.Services) (any, error) {
				return s.Curation.RemoveAlias(ctx, args[0])
			})
		},
	}
}
