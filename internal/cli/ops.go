package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/fieldsync/pkg/syncqueue"
)

// OpsOptions holds the flags of the listing subcommands.
type OpsOptions struct {
	*RootOptions
	ActorID string
	Type    string
	Since   time.Duration
	Limit   int
}

func newOpsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OpsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ops",
		Short: "Inspect and repair queued operations",
		Long: `Inspect and repair queued operations.

Example:
  fieldsync ops status 01920c4e-8f7a-7cc1-9a4b-3a2d5e6f7a8b
  fieldsync ops failed --actor merchant-42 --since 24h
  fieldsync ops requeue 01920c4e-8f7a-7cc1-9a4b-3a2d5e6f7a8b`,
	}

	cmd.AddCommand(opts.idCommand("status", "Show the status of an operation", (*syncqueue.Service).GetStatus))
	cmd.AddCommand(opts.idCommand("cancel", "Cancel a pending operation", (*syncqueue.Service).Cancel))
	cmd.AddCommand(opts.idCommand("requeue", "Return a failed or cancelled operation to pending", (*syncqueue.Service).Requeue))

	failed := &cobra.Command{
		Use:   "failed",
		Short: "List failed operations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd.Context(), func(ctx context.Context, svc *syncqueue.Service) error {
				filter := syncqueue.FailedFilter{
					ActorID: opts.ActorID,
					Type:    syncqueue.OperationType(opts.Type),
					Limit:   opts.Limit,
				}
				if opts.Since > 0 {
					filter.Since = time.Now().Add(-opts.Since)
				}
				ops, err := svc.ListFailed(ctx, filter)
				if err != nil {
					return queueExit("list failed operations", err)
				}
				return opts.printOperations(cmd, ops)
			})
		},
	}
	failed.Flags().StringVar(&opts.ActorID, "actor", "", "only operations of this actor")
	failed.Flags().StringVar(&opts.Type, "type", "", "only operations of this type")
	failed.Flags().DurationVar(&opts.Since, "since", 0, "only operations updated within this window")
	failed.Flags().IntVar(&opts.Limit, "limit", syncqueue.DefaultListLimit, "maximum number of operations")
	cmd.AddCommand(failed)

	backlog := &cobra.Command{
		Use:   "backlog",
		Short: "List pending operations that workers may pick up now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd.Context(), func(ctx context.Context, svc *syncqueue.Service) error {
				ops, err := svc.ListEligible(ctx, opts.Limit)
				if err != nil {
					return queueExit("list backlog", err)
				}
				return opts.printOperations(cmd, ops)
			})
		},
	}
	backlog.Flags().IntVar(&opts.Limit, "limit", syncqueue.DefaultListLimit, "maximum number of operations")
	cmd.AddCommand(backlog)

	return cmd
}

// idCommand builds a subcommand that applies action to the operation named
// by its only argument and prints the resulting status.
func (o *OpsOptions) idCommand(name, short string, action func(*syncqueue.Service, context.Context, uuid.UUID) (syncqueue.StatusInfo, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <operation-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, fmt.Sprintf("invalid operation id %q", args[0]), err)
			}
			return o.withService(cmd.Context(), func(ctx context.Context, svc *syncqueue.Service) error {
				info, err := action(svc, ctx, id)
				if err != nil {
					return queueExit(name, err)
				}
				return o.printStatus(cmd, info)
			})
		},
	}
}

func (o *OpsOptions) withService(ctx context.Context, fn func(context.Context, *syncqueue.Service) error) error {
	registry, err := newRegistry(o.cfg, o.log)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid forwarding configuration", err)
	}
	backend, err := o.Backend(ctx, o.cfg, o.log)
	if err != nil {
		return WrapExitError(ExitCommandError, "open storage", err)
	}
	defer backend.Close()

	svc, err := syncqueue.NewService(backend.Store, registry, syncqueue.WithServiceLogger(o.log))
	if err != nil {
		return WrapExitError(ExitCommandError, "create queue service", err)
	}
	return fn(ctx, svc)
}

func (o *OpsOptions) printStatus(cmd *cobra.Command, info syncqueue.StatusInfo) error {
	return o.printer(cmd).print(info, func(w io.Writer) {
		row(w, "operation_id", info.OperationID)
		row(w, "actor_id", info.ActorID)
		row(w, "operation_type", info.OperationType)
		row(w, "status", info.Status)
		row(w, "retries", fmt.Sprintf("%d/%d", info.RetryCount, info.MaxRetries))
		row(w, "last_error", info.LastError)
		row(w, "next_attempt_at", info.NextAttemptAt)
		row(w, "created_at", info.CreatedAt)
		row(w, "updated_at", info.UpdatedAt)
	})
}

func (o *OpsOptions) printOperations(cmd *cobra.Command, ops []*syncqueue.Operation) error {
	infos := make([]syncqueue.StatusInfo, 0, len(ops))
	for _, op := range ops {
		infos = append(infos, op.Info())
	}
	return o.printer(cmd).print(infos, func(w io.Writer) {
		row(w, "OPERATION_ID", "ACTOR", "TYPE", "STATUS", "RETRIES", "LAST_ERROR", "UPDATED_AT")
		for _, info := range infos {
			row(w, info.OperationID, info.ActorID, info.OperationType, info.Status,
				info.RetryCount, info.LastError, info.UpdatedAt)
		}
	})
}
