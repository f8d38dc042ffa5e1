package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	session "github.com/goliatone/go-session"
	"github.com/spf13/cobra"
)

type app struct {
	cfg    cliConfig
	logger zeroLogger
}

func BuildRootCmd() *cobra.Command {
	a := &app{}
	cfg, cfgErr := loadConfig()
	a.cfg = cfg

	cmd := &cobra.Command{
		Use:          "session-cli",
		Short:        "Sign up, sign in and keep an identity session alive",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgErr != nil {
				return cfgErr
			}
			if err := a.cfg.validate(); err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), a.cfg.LogLevel)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
	}

	a.cfg.bindFlags(cmd)

	cmd.AddCommand(
		a.signUpCmd(),
		a.confirmCmd(),
		a.resendCmd(),
		a.signInCmd(),
		a.whoAmICmd(),
		a.refreshCmd(),
		a.signOutCmd(),
		a.watchCmd(),
		a.demoCmd(),
	)
	return cmd
}

// withSession opens the configured provider and store, starts a machine and
// waits for it to settle on the stored session before calling fn.
func (a *app) withSession(cmd *cobra.Command, fn func(ctx context.Context, r *runner, snap session.Snapshot) error, opts ...session.Option) error {
	ctx := cmd.Context()

	client, err := openProvider(ctx, a.cfg)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			a.logger.Warn("close token store: %v", err)
		}
	}()

	return a.drive(ctx, cmd, client, store, fn, opts...)
}

func (a *app) drive(ctx context.Context, cmd *cobra.Command, client session.IdentityClient, store session.TokenStore, fn func(ctx context.Context, r *runner, snap session.Snapshot) error, opts ...session.Option) error {
	opts = append([]session.Option{
		session.WithLogger(a.logger),
		session.WithActivitySink(a.logger.activity()),
	}, opts...)

	r, err := startRunner(ctx, client, store, cmd.OutOrStdout(), opts...)
	if err != nil {
		return err
	}

	snap, err := r.settle(ctx)
	if err == nil {
		err = fn(ctx, r, snap)
	}

	if stopErr := r.stop(); err == nil {
		err = stopErr
	}
	return err
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	rootCmd := BuildRootCmd()
	go func() {
		sig := <-c
		switch sig {
		case syscall.SIGINT:
			rootCmd.PrintErrln("\nShutting down... (press Ctrl+C again to force)")
		default:
			rootCmd.PrintErrf("Received %s, shutting down...\n", sig.String())
		}
		cancel()
		<-c
		os.Exit(1)
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}
