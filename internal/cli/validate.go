package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cadenzalabs/ensemble/internal/config"
)

func newValidateCommand(_ *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <piece.yaml>",
		Short: "Load and normalize a piece definition without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewPieceLoader()
			cfg, _, err := loader.Load(args[0])
			if err != nil {
				return fmt.Errorf("invalid piece: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s (%d movements, initial=%s, max=%d)\n",
				cfg.Name, len(cfg.Movements), cfg.InitialMovement, cfg.MaxMovements)
			return nil
		},
	}
}
