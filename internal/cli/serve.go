package cli

import (
	"net/http"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cadenzalabs/ensemble/internal/config"
	"github.com/cadenzalabs/ensemble/internal/history"
	"github.com/cadenzalabs/ensemble/internal/server"
	"github.com/cadenzalabs/ensemble/pkg/logger"
)

func newServeCommand(opts *config.Options) *cobra.Command {
	var runDir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the inspection HTTP surface (healthz, run lookup, NDJSON log streaming)",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.OpenBoltStore(opts.History.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			router := server.NewRouter(store, filepath.Join(runDir, "logs"))
			logger.Info("serve: listening on %s", opts.Server.Addr)
			return http.ListenAndServe(opts.Server.Addr, router.Handler())
		},
	}
	cmd.Flags().StringVar(&runDir, "run-dir", ".", "Directory containing logs/ written by past runs.")
	return cmd
}
