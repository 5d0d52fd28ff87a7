// Package cli is the fieldsync command line host. It wires config, logging,
// the local store and the remote client into the device-side services.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/fieldsync/internal/transmission"
	"github.com/angelmondragon/fieldsync/pkg/auth"
	"github.com/angelmondragon/fieldsync/pkg/config"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
	"github.com/angelmondragon/fieldsync/pkg/logger"
)

const (
	envToken    = "FIELDSYNC_TOKEN"
	envRepID    = "FIELDSYNC_REP_ID"
	envPassword = "FIELDSYNC_PASSWORD"
)

type rootOptions struct {
	envFile     string
	token       string
	repID       string
	offline     bool
	showMetrics bool
}

// runtime is shared by every subcommand of one invocation.
type runtime struct {
	opts       rootOptions
	factory    appFactory
	loadConfig func() (*config.Config, error)
	logOutput  io.Writer

	app *app
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	root, rt := newRootCommand(newApp, config.Load)
	err := root.ExecuteContext(context.Background())
	if closeErr := rt.close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		printError(root.ErrOrStderr(), err)
		return 1
	}
	return 0
}

func newRootCommand(factory appFactory, loadConfig func() (*config.Config, error)) (*cobra.Command, *runtime) {
	rt := &runtime{factory: factory, loadConfig: loadConfig, logOutput: os.Stderr}

	root := &cobra.Command{
		Use:   "fieldsync",
		Short: "Offline-first field sales device core",
		Long: `fieldsync keeps a rep's clients, products and payment tables on the device,
records orders while offline and transmits them to the central service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rt.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if rt.opts.showMetrics && rt.app != nil {
				return writeMetrics(cmd.ErrOrStderr(), rt.app)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&rt.opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.StringVar(&rt.opts.token, "token", os.Getenv(envToken), "session token (env "+envToken+")")
	flags.StringVar(&rt.opts.repID, "rep", os.Getenv(envRepID), "rep id; defaults to the rep in the session token (env "+envRepID+")")
	flags.BoolVar(&rt.opts.offline, "offline", false, "treat the device as offline without probing the server")
	flags.BoolVar(&rt.opts.showMetrics, "metrics", false, "print collected metrics to stderr after the command")

	root.AddCommand(
		newInitCommand(rt),
		newLoginCommand(rt),
		newSyncCommand(rt),
		newResyncCommand(rt),
		newOrdersCommand(rt),
		newTransmitCommand(rt),
		newRetryCommand(rt),
		newDeleteCommand(rt),
		newReconcileCommand(rt),
		newPriceCommand(rt),
	)
	return root, rt
}

// setup loads config, builds the app and initialises the local store.
func (rt *runtime) setup(ctx context.Context) error {
	if rt.opts.envFile != "" {
		if err := godotenv.Load(rt.opts.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", rt.opts.envFile, err)
		}
	}
	if rt.opts.token == "" {
		rt.opts.token = os.Getenv(envToken)
	}
	if rt.opts.repID == "" {
		rt.opts.repID = os.Getenv(envRepID)
	}
	cfg, err := rt.loadConfig()
	if err != nil {
		return err
	}
	logg := logger.New(logger.Options{
		ServiceName: "fieldsync",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Output:      rt.logOutput,
	})
	if cfg.App.DeviceID != "" {
		ctx = logg.WithField(ctx, "device_id", cfg.App.DeviceID)
	}

	a, err := rt.factory(ctx, cfg, logg)
	if err != nil {
		return err
	}
	rt.app = a
	return a.store.Init(ctx)
}

func (rt *runtime) close() error {
	if rt.app == nil {
		return nil
	}
	return rt.app.Close(context.Background())
}

// repID resolves the acting rep from the flag or the session token.
func (rt *runtime) repID() (string, error) {
	if rt.opts.repID != "" {
		return rt.opts.repID, nil
	}
	if rt.opts.token != "" {
		if claims, err := auth.PeekClaims(rt.opts.token); err == nil && claims.RepID != "" {
			return claims.RepID, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodePreconditionFailed, "rep id is required; pass --rep or sign in").
		WithDetails(map[string]any{"precondition": "rep_id"})
}

// online honours --offline and otherwise checks the server once.
func (rt *runtime) online(ctx context.Context) bool {
	if rt.opts.offline || rt.app.health == nil {
		return false
	}
	return rt.app.health.Online(ctx)
}

func writeMetrics(w io.Writer, a *app) error {
	families, err := a.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func printError(w io.Writer, err error) {
	reason := transmission.ClassifyError(err)
	fmt.Fprintf(w, "error [%s]: %s\n", pkgerrors.CodeOf(err), reason.Message)
	if typed := pkgerrors.As(err); typed != nil && typed.Details() != nil {
		fmt.Fprintf(w, "details: %v\n", typed.Details())
	}
}
