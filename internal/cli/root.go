// Package cli assembles the ensemble command tree: run, validate,
// history, and serve, wired to viper/pflag option loading the way the
// provider stack's own CLIs do.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cadenzalabs/ensemble/internal/config"
	"github.com/cadenzalabs/ensemble/pkg/logger"
)

// NewRootCommand builds the `ensemble` root command with every
// subcommand attached.
func NewRootCommand() *cobra.Command {
	opts := config.NewOptions()
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "ensemble",
		Short: "ensemble drives YAML-defined piece state machines through LLM agents",
		Long: `ensemble loads a piece definition (a YAML finite-state machine) and
drives it movement by movement through one or more LLM agent providers,
evaluating rule-based transitions until the piece completes or aborts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.BindEnv(v, cmd.Root().PersistentFlags()); err != nil {
				return err
			}
			if err := config.Load(v, opts); err != nil {
				return fmt.Errorf("cli: loading options: %w", err)
			}
			logger.SetLevel(opts.Log.Level)
			return nil
		},
	}

	opts.AddFlags(cmd.PersistentFlags())

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newValidateCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))
	cmd.AddCommand(newServeCommand(opts))

	return cmd
}

// Execute runs the root command and maps a returned error to a
// nonzero process exit, the same convention echoctl's main.go uses.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
