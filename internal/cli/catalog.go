package cli

import (
	"context"

	"github.com/PatrickalKhouri/ingredient-manager/internal/app"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/catalog"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/models"
	"github.com/spf13/cobra"
)

func NewCatalogCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Classify and search the ingredient catalog",
	}
	cmd.AddCommand(newCatalogClassifyCommand(opts))
	cmd.AddCommand(newCatalogSearchCommand(opts))
	cmd.AddCommand(newCatalogListCommand(opts))
	return cmd
}

func newCatalogClassifyCommand(opts *RootOptions) *cobra.Command {
	var classify catalog.ClassifyOptions

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify catalog entries as active or excipient from their functions",
		Long: `Match every entry's functions against the ACTIVE and EXCIPIENT keyword lists.
An entry hitting both lists is active; an entry hitting neither is unknown and
loses its previous classification.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *app.Services) (any, error) {
				return s.Catalog.Classify(ctx, classify)
			})
		},
	}
	cmd.Flags().BoolVar(&classify.DryRun, "dry-run", false, "report without writing")
	cmd.Flags().IntVar(&classify.Limit, "limit", 0, "stop after this many entries (0 = all)")
	return cmd
}

func newCatalogSearchCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search entries by name, CAS, EC or function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *app.Services) (any, error) {
				return s.Catalog.Search(ctx, args[0])
			})
		},
	}
}

func newCatalogListCommand(opts *RootOptions) *cobra.Command {
	var (
		query string
		page  int
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Page through catalog entries by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *app.Services) (any, error) {
				return s.Catalog.List(ctx, query, page, limit)
			})
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "name substring")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", models.DefaultPageSize, "page size")
	return cmd
}
