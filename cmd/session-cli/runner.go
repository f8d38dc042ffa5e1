package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	session "github.com/goliatone/go-session"
)

const settleTimeout = 30 * time.Second

// runner owns one machine for the lifetime of a command.
type runner struct {
	machine *session.Machine
	out     io.Writer
	cancel  context.CancelFunc
	done    chan error
}

func startRunner(ctx context.Context, client session.IdentityClient, store session.TokenStore, out io.Writer, opts ...session.Option) (*runner, error) {
	m, err := session.NewMachine(client, store, opts...)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &runner{machine: m, out: out, cancel: cancel, done: make(chan error, 1)}
	go func() { r.done <- m.Run(runCtx) }()
	return r, nil
}

func (r *runner) stop() error {
	r.cancel()
	return <-r.done
}

// settle waits until the machine is no longer waiting on a remote operation.
func (r *runner) settle(ctx context.Context) (session.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()
	return r.machine.Wait(ctx, func(s session.Snapshot) bool {
		return s.Settled() && !s.Context.IsRefreshing
	})
}

// send delivers ev and waits for the machine to settle. A rejected event is
// reported as an error carrying the field messages.
func (r *runner) send(ctx context.Context, ev session.Event) (session.Snapshot, error) {
	res, err := r.machine.Send(ctx, ev)
	if err != nil {
		return session.Snapshot{}, err
	}
	if !res.Accepted {
		if len(res.Errors) > 0 {
			return session.Snapshot{}, goerrors.New(formatErrors(res.Errors), goerrors.CategoryValidation)
		}
		return session.Snapshot{}, goerrors.New(
			fmt.Sprintf("%s is not allowed while %s", session.EventName(ev), res.State),
			goerrors.CategoryConflict,
		)
	}
	return r.settle(ctx)
}

func (r *runner) printSnapshot(snap session.Snapshot) {
	fmt.Fprintf(r.out, "state: %s\n", snap.State)
	if snap.Context.CurrentUser != nil {
		fmt.Fprintf(r.out, "user:  %s <%s>\n", snap.Context.CurrentUser.ID, snap.Context.CurrentUser.Email)
	}
	if snap.Context.Tokens != nil && !snap.Context.Tokens.ExpiresAt.IsZero() {
		fmt.Fprintf(r.out, "token expires: %s\n", snap.Context.Tokens.ExpiresAt.Format(time.RFC3339))
	}
	if len(snap.Context.ValidationErrors) > 0 {
		fmt.Fprintf(r.out, "errors: %s\n", formatErrors(snap.Context.ValidationErrors))
	}
}

func formatErrors(errs session.FieldErrors) string {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+errs[k])
	}
	return strings.Join(parts, "; ")
}
