package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/fieldsync/internal/syncer"
)

func newInitCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Open the local store and bring its schema up to date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			version, err := rt.app.store.SchemaVersion(ctx)
			if err != nil {
				return err
			}
			counts, err := rt.app.store.CountReferenceData(ctx)
			if err != nil {
				return err
			}
			last, err := rt.app.store.LastSyncAt(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "store:          %s\n", rt.app.cfg.Store.Driver)
			fmt.Fprintf(out, "schema version: %d\n", version)
			fmt.Fprintf(out, "reference rows: %d clients, %d products, %d payment tables\n", counts.Clients, counts.Products, counts.PaymentTables)
			if last == nil {
				fmt.Fprintln(out, "last sync:      never")
			} else {
				fmt.Fprintf(out, "last sync:      %s\n", last.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newLoginCommand(rt *runtime) *cobra.Command {
	var repCode, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in against the central service and print the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(envPassword)
			}
			session, err := rt.app.remote.Login(cmd.Context(), repCode, password)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "signed in as %s (%s), session valid until %s\n", session.Name, session.RepID, session.ExpiresAt.Format(time.RFC3339))
			fmt.Fprintf(out, "export %s=%s\n", envToken, session.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&repCode, "rep-code", "", "rep code")
	cmd.Flags().StringVar(&password, "password", "", "password (env "+envPassword+")")
	_ = cmd.MarkFlagRequired("rep-code")
	return cmd
}

func newSyncCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Download reference data and replace the local working set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rt, rt.app.syncer.Bootstrap)
		},
	}
}

func newResyncCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "resync",
		Short: "Clear reference data and download it again; orders are kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rt, rt.app.syncer.ForceResync)
		},
	}
}

type syncFunc func(ctx context.Context, req syncer.Request) (syncer.Result, error)

func runSync(cmd *cobra.Command, rt *runtime, run syncFunc) error {
	repID, err := rt.repID()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	res, err := run(ctx, syncer.Request{
		RepID:      repID,
		Credential: rt.opts.token,
		Online:     rt.online(ctx),
	})
	if err != nil {
		return err
	}
	printCounts(cmd.OutOrStdout(), res.Counts)
	return nil
}

func printCounts(w io.Writer, c syncer.Counts) {
	fmt.Fprintf(w, "synced %d clients, %d products, %d payment tables\n", c.Clients, c.Products, c.PaymentTables)
	if c.DuplicatesRemoved > 0 {
		fmt.Fprintf(w, "discarded %d duplicate rows\n", c.DuplicatesRemoved)
	}
	if c.ExcludedClients > 0 {
		fmt.Fprintf(w, "skipped %d clients assigned to other reps\n", c.ExcludedClients)
	}
}
