package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cadenzalabs/ensemble/internal/config"
	"github.com/cadenzalabs/ensemble/internal/history"
)

func newHistoryCommand(opts *config.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past piece runs",
	}
	cmd.AddCommand(newHistoryListCommand(opts), newHistoryShowCommand(opts))
	return cmd
}

func newHistoryListCommand(opts *config.Options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.OpenBoltStore(opts.History.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, r := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", r.RunID, r.PieceName, r.Status, r.TerminalReason)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list.")
	return cmd
}

func newHistoryShowCommand(opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run's terminal record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.OpenBoltStore(opts.History.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "runId: %s\npiece: %s\ntask: %s\nstatus: %s\nreason: %s\niteration: %d\n",
				rec.RunID, rec.PieceName, rec.Task, rec.Status, rec.TerminalReason, rec.Iteration)
			return nil
		},
	}
}
