package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	session "github.com/goliatone/go-session"
	"github.com/goliatone/go-session/provider/memory"
	"github.com/goliatone/go-session/tokenstore"
	"github.com/spf13/cobra"
)

type credentials struct {
	email    string
	password string
}

func (c *credentials) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.email, "email", "", "account email")
	cmd.Flags().StringVar(&c.password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
}

var errNoSession = goerrors.New("not signed in", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode("SESSION_NOT_SIGNED_IN")

func requireForm(snap session.Snapshot) error {
	if snap.State == session.StateAuthenticated {
		return goerrors.New("already signed in, run signout first", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict)
	}
	return nil
}

func requireSession(snap session.Snapshot) error {
	if !snap.Authenticated() {
		return errNoSession
	}
	return nil
}

func (a *app) signUpCmd() *cobra.Command {
	var creds credentials
	var attrs []string

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			attributes, err := parseAttributes(attrs)
			if err != nil {
				return err
			}
			return a.withSession(cmd, func(ctx context.Context, r *runner, snap session.Snapshot) error {
				if err := requireForm(snap); err != nil {
					return err
				}
				if _, err := r.send(ctx, session.NavigateToSignUp{}); err != nil {
					return err
				}
				snap, err := r.send(ctx, session.SignUpSubmitted{Email: creds.email, Password: creds.password, Attributes: attributes})
				if err != nil {
					return err
				}
				r.printSnapshot(snap)
				if snap.State == session.StateNeedsConfirmation {
					fmt.Fprintln(r.out, "a confirmation code was sent, run: session-cli confirm --email <email> --password <password> --code <code>")
				}
				return nil
			})
		},
	}
	creds.bind(cmd)
	cmd.Flags().StringArrayVar(&attrs, "attr", nil, "extra user attribute as name=value (repeatable)")
	return cmd
}

// reachConfirmation signs in with creds and expects the provider to report
// an unconfirmed account.
func reachConfirmation(ctx context.Context, r *runner, creds credentials) error {
	snap, err := r.send(ctx, session.SignInSubmitted{Email: creds.email, Password: creds.password})
	if err != nil {
		return err
	}
	if snap.State != session.StateNeedsConfirmation {
		r.printSnapshot(snap)
		return goerrors.New("account does not need confirmation", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict)
	}
	return nil
}

func (a *app) confirmCmd() *cobra.Command {
	var creds credentials
	var code string

	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Confirm a new account with the emailed code and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, r *runner, snap session.Snapshot) error {
				if err := requireForm(snap); err != nil {
					return err
				}
				if err := reachConfirmation(ctx, r, creds); err != nil {
					return err
				}
				snap, err := r.send(ctx, session.ConfirmationSubmitted{Code: code})
				if err != nil {
					return err
				}
				r.printSnapshot(snap)
				return nil
			})
		},
	}
	creds.bind(cmd)
	cmd.Flags().StringVar(&code, "code", "", "confirmation code")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func (a *app) resendCmd() *cobra.Command {
	var creds credentials

	cmd := &cobra.Command{
		Use:   "resend",
		Short: "Send a new confirmation code",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, r *runner, snap session.Snapshot) error {
				if err := requireForm(snap); err != nil {
					return err
				}
				if err := reachConfirmation(ctx, r, creds); err != nil {
					return err
				}
				snap, err := r.send(ctx, session.ResendRequested{})
				if err != nil {
					return err
				}
				r.printSnapshot(snap)
				return nil
			})
		},
	}
	creds.bind(cmd)
	return cmd
}

func (a *app) signInCmd() *cobra.Command {
	var creds credentials

	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in and store the session tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, r *runner, snap session.Snapshot) error {
				if err := requireForm(snap); err != nil {
					return err
				}
				snap, err := r.send(ctx, session.SignInSubmitted{Email: creds.email, Password: creds.password})
				if err != nil {
					return err
				}
				r.printSnapshot(snap)
				if snap.State == session.StateNeedsConfirmation {
					fmt.Fprintln(r.out, "the account is not confirmed, run: session-cli confirm")
				}
				return nil
			})
		},
	}
	creds.bind(cmd)
	return cmd
}

func (a *app) whoAmICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Validate the stored session and print the user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, r *runner, snap session.Snapshot) error {
				r.printSnapshot(snap)
				if !snap.Authenticated() {
					return errNoSession
				}
				for _, k := range sortedKeys(snap.Context.CurrentUser.Attributes) {
					fmt.Fprintf(r.out, "  %s = %s\n", k, snap.Context.CurrentUser.Attributes[k])
				}
				return nil
			})
		},
	}
}

func (a *app) refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the stored session tokens now",
		RunE: func(cmd *cobra.Command, args []string) error {
			failures := make(chan error, 1)
			onError := session.WithRefreshErrorHandler(func(_ context.Context, err error) {
				select {
				case failures <- err:
				default:
				}
			})
			return a.withSession(cmd, func(ctx context.Context, r *runner, snap session.Snapshot) error {
				if err := requireSession(snap); err != nil {
					return err
				}
				snap, err := r.send(ctx, session.RefreshRequested{})
				if err != nil {
					return err
				}
				r.printSnapshot(snap)
				if !snap.Authenticated() {
					return errNoSession
				}
				if snap.Context.LastErrorKind == "" {
					return nil
				}

				// a failed refresh that keeps the session always reaches the handler
				select {
				case err := <-failures:
					return err
				case <-ctx.Done():
					return ctx.Err()
				}
			}, onError)
		},
	}
}

func (a *app) signOutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign out and clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, r *runner, snap session.Snapshot) error {
				if err := requireSession(snap); err != nil {
					return err
				}
				snap, err := r.send(ctx, session.SignOutRequested{})
				if err != nil {
					return err
				}
				r.printSnapshot(snap)
				return nil
			})
		},
	}
}

func (a *app) watchCmd() *cobra.Command {
	var interval, buffer time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the stored session alive until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []session.Option{
				session.WithRefreshErrorHandler(func(_ context.Context, err error) {
					a.logger.Warn("background refresh failed: %v", err)
				}),
			}
			if interval > 0 {
				opts = append(opts, session.WithRefreshInterval(interval))
			}
			if buffer > 0 {
				opts = append(opts, session.WithRefreshBuffer(buffer))
			}

			return a.withSession(cmd, func(ctx context.Context, r *runner, snap session.Snapshot) error {
				if err := requireSession(snap); err != nil {
					return err
				}
				r.printSnapshot(snap)
				fmt.Fprintln(r.out, "watching session, press Ctrl+C to stop")

				final, err := r.machine.Wait(ctx, func(s session.Snapshot) bool {
					return s.State != session.StateAuthenticated
				})
				if ctx.Err() != nil {
					return nil
				}
				if err != nil {
					return err
				}
				r.printSnapshot(final)
				return errNoSession
			}, opts...)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "expiry check interval (default from SESSION_REFRESH_INTERVAL)")
	cmd.Flags().DurationVar(&buffer, "buffer", 0, "refresh this long before expiry (default from SESSION_REFRESH_BUFFER)")
	return cmd
}

func (a *app) demoCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run sign-up, confirmation, refresh and sign-out against an in-memory provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := memory.New(memory.DefaultConfig())
			if err != nil {
				return err
			}
			store := tokenstore.NewMemory(tokenstore.WithLogger(a.logger))

			return a.drive(cmd.Context(), cmd, provider, store, func(ctx context.Context, r *runner, snap session.Snapshot) error {
				steps := []struct {
					title string
					event func() session.Event
				}{
					{"open sign-up form", func() session.Event { return session.NavigateToSignUp{} }},
					{"sign up", func() session.Event { return session.SignUpSubmitted{Email: email, Password: password} }},
					{"confirm", func() session.Event {
						code, _ := provider.PendingCode(email)
						return session.ConfirmationSubmitted{Code: code}
					}},
					{"refresh", func() session.Event { return session.RefreshRequested{} }},
					{"sign out", func() session.Event { return session.SignOutRequested{} }},
				}

				r.printSnapshot(snap)
				for _, step := range steps {
					fmt.Fprintf(r.out, "\n== %s\n", step.title)
					snap, err := r.send(ctx, step.event())
					if err != nil {
						return err
					}
					r.printSnapshot(snap)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "demo@example.com", "demo account email")
	cmd.Flags().StringVar(&password, "password", "demo-password", "demo account password")
	return cmd
}

func parseAttributes(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, goerrors.New("attribute must be name=value: "+pair, goerrors.CategoryBadInput).
				WithCode(goerrors.CodeBadRequest)
		}
		out[name] = value
	}
	return out, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
