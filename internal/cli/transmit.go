package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/fieldsync/internal/transmission"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
)

func newTransmitCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "transmit",
		Short: "Send every pending order to the central service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repID, err := rt.repID()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			buckets, err := rt.app.transmit.LoadOrders(ctx, repID)
			if err != nil {
				return err
			}
			report, err := rt.app.transmit.TransmitAll(ctx, buckets.Pending, transmission.Session{
				Credential: rt.opts.token,
				Online:     rt.online(ctx),
			})
			if len(report.Results) > 0 {
				printReport(cmd.OutOrStdout(), report)
			}
			return err
		},
	}
}

func printReport(w io.Writer, r transmission.TransmitReport) {
	fmt.Fprintf(w, "%d transmitted, %d failed\n", r.SuccessCount, r.ErrorCount)
	for _, res := range r.Results {
		if res.Message == "" {
			fmt.Fprintf(w, "  %s  %s\n", res.OrderID, res.SyncStatus)
			continue
		}
		fmt.Fprintf(w, "  %s  %s  %s\n", res.OrderID, res.SyncStatus, res.Message)
	}
}

func newRetryCommand(rt *runtime) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "retry [order-id...]",
		Short: "Move failed orders back to pending so the next transmit resends them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if all {
				repID, err := rt.repID()
				if err != nil {
					return err
				}
				moved, err := rt.app.transmit.RetryAllErrors(ctx, repID)
				fmt.Fprintf(cmd.OutOrStdout(), "requeued %d orders\n", moved)
				return err
			}
			if len(args) == 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "pass order ids or --all")
			}
			for _, id := range args {
				if err := rt.app.transmit.RetryOne(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "requeued %s\n", id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "requeue every failed order of the rep")
	return cmd
}

func newDeleteCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <order-id>",
		Short: "Remove an order the server already holds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.app.transmit.DeleteTransmitted(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newReconcileCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <order-id>...",
		Short: "Mark transmitted orders the server acknowledged as synced",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := rt.app.transmit.Reconcile(cmd.Context(), args)
			fmt.Fprintf(cmd.OutOrStdout(), "marked %d orders synced\n", n)
			return err
		},
	}
}
