// Package cli implements the fieldsync command line: the serve command that
// runs the API and the queue workers, schema migrations and operator commands.
package cli

import (
	"fmt"
	"log/slog"
	"net"
	"slices"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/fieldsync/internal/config"
	"github.com/dmitrymomot/fieldsync/pkg/logger"
	"github.com/dmitrymomot/fieldsync/pkg/requestid"
)

// RootOptions holds the global flags and the state every subcommand shares.
type RootOptions struct {
	EnvFiles []string
	Format   string

	// Backend opens the queue storage. Tests replace it with an in-memory one.
	Backend BackendFunc

	cfg config.App
	log *slog.Logger

	// onListen is called with the bound address of the serve command.
	onListen func(net.Addr)
}

// NewRootCommand creates the fieldsync command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{Backend: OpenBackend})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fieldsync",
		Short: "Offline-first operation sync queue",
		Long: `fieldsync accepts operations recorded offline by field devices, deduplicates
them by idempotency key and executes them in per-actor order with retries.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env-file", nil, "dotenv files to load (default .env when present)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", FormatText, "output format (text|json)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newOpsCommand(opts))

	return cmd
}

func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.EnvFiles...)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	o.cfg = cfg

	logOpts := append(cfg.LoggerOptions(),
		logger.WithOutput(cmd.ErrOrStderr()),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	o.log = logger.New(logOpts...)
	logger.SetAsDefault(o.log)
	return nil
}

func (o *RootOptions) printer(cmd *cobra.Command) printer {
	return printer{format: o.Format, w: cmd.OutOrStdout()}
}
