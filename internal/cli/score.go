package cli

import (
	"context"

	"github.com/PatrickalKhouri/ingredient-manager/internal/app"
	"github.com/spf13/cobra"
)

func NewScoreCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Evaluate and inspect product scores",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "r01 <product-id>",
		Short: "Evaluate rule R01 (actives position) and store the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *app.Services) (any, error) {
				return s.Scoring.EvaluateR01(ctx, args[0])
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <product-id>",
		Short: "Show the stored rule results and total score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, s *app.Services) (any, error) {
				return s.Scoring.GetScores(ctx, args[0])
			})
		},
	})
	return cmd
}
