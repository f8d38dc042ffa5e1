package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
)

// Result reports how the machine handled an event sent through Send.
type Result struct {
	Accepted bool
	State    State
	Errors   FieldErrors
}

// Snapshot is a copy of the machine state at one instant.
type Snapshot struct {
	State   State
	Context Context
}

// Authenticated reports whether the snapshot holds a session.
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated && s.Context.CurrentUser != nil
}

// Settled reports whether the machine is waiting on user input rather than
// on a remote operation.
func (s Snapshot) Settled() bool {
	return s.State != "" && !s.State.Transitional()
}

// Option customizes machine construction.
type Option func(*Machine)

// WithLogger overrides the logger.
func WithLogger(logger Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(m *Machine) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithConfig replaces the timing configuration.
func WithConfig(cfg Config) Option {
	return func(m *Machine) {
		m.cfg = cfg
	}
}

// WithRefreshInterval sets how often the scheduler checks token expiry.
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Machine) {
		m.cfg.RefreshInterval = d
	}
}

// WithRefreshBuffer sets how long before expiry a refresh starts.
func WithRefreshBuffer(d time.Duration) Option {
	return func(m *Machine) {
		m.cfg.RefreshBuffer = d
	}
}

// WithRefreshErrorHandler registers a callback for refresh failures that
// leave the session in place.
func WithRefreshErrorHandler(handler RefreshErrorHandler) Option {
	return func(m *Machine) {
		m.onRefreshError = handler
	}
}

// WithActivitySink sets the ActivitySink used to publish session events.
func WithActivitySink(sink ActivitySink) Option {
	return func(m *Machine) {
		m.activity = normalizeActivitySink(sink)
	}
}

// WithMeterProvider records machine metrics on the given provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(m *Machine) {
		m.meterProvider = mp
	}
}

// WithSessionID sets the identifier attached to activity events.
func WithSessionID(id string) Option {
	return func(m *Machine) {
		if id != "" {
			m.sessionID = id
		}
	}
}

type envelope struct {
	event Event
	reply chan Result
}

// Machine drives the session state machine. It owns the Context, runs the
// effects produced by Transition and feeds operation results back as events.
// All state changes happen on the goroutine executing Run.
type Machine struct {
	client         IdentityClient
	store          TokenStore
	cfg            Config
	logger         Logger
	now            func() time.Time
	onRefreshError RefreshErrorHandler
	activity       ActivitySink
	meterProvider  metric.MeterProvider
	metrics        *machineMetrics
	sessionID      string
	scheduler      *refreshScheduler

	events  chan envelope
	running atomic.Bool
	done    chan struct{}
	ops     sync.WaitGroup

	mu      sync.RWMutex
	state   State
	ctx     Context
	changed chan struct{}
}

// NewMachine builds a machine around the given provider client and token store.
func NewMachine(client IdentityClient, store TokenStore, opts ...Option) (*Machine, error) {
	if client == nil {
		return nil, goerrors.New("identity client is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}
	if store == nil {
		return nil, goerrors.New("token store is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	m := &Machine{
		client:    client,
		store:     store,
		cfg:       DefaultConfig(),
		logger:    defLogger{},
		now:       time.Now,
		activity:  noopActivitySink{},
		sessionID: uuid.NewString(),
		events:    make(chan envelope, 16),
		done:      make(chan struct{}),
		changed:   make(chan struct{}),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	m.cfg = m.cfg.normalize()

	metrics, err := newMachineMetrics(m.meterProvider)
	if err != nil {
		return nil, err
	}
	m.metrics = metrics

	m.scheduler = newRefreshScheduler(m.cfg, m.now, m.logger)
	m.scheduler.expiry = m.store.ExpiresAt
	m.scheduler.refreshing = m.refreshing
	m.scheduler.request = func(ctx context.Context) {
		m.post(ctx, RefreshRequested{})
	}

	return m, nil
}

// SessionID identifies this machine instance in activity events.
func (m *Machine) SessionID() string {
	return m.sessionID
}

// Run reads the token store once, then processes events until ctx is done.
// A machine runs once; later calls return ErrMachineRunning.
func (m *Machine) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrMachineRunning
	}
	defer close(m.done)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stored, err := m.store.Get(runCtx)
	if err != nil {
		m.logger.Error("read stored tokens: %v", err)
		stored = nil
	}
	if stored != nil {
		t := withExpiry(*stored, m.now(), m.cfg.TokenTTLFallback)
		stored = &t
	}

	m.apply(runCtx, nil, Initial(stored))

	for {
		select {
		case <-runCtx.Done():
			m.scheduler.disarm()
			cancel()
			m.ops.Wait()
			return nil
		case env := <-m.events:
			res := m.handle(runCtx, env.event)
			if env.reply != nil {
				env.reply <- res
			}
		}
	}
}

// Send delivers an event and waits until the machine processed it.
func (m *Machine) Send(ctx context.Context, ev Event) (Result, error) {
	if ev == nil {
		return Result{}, goerrors.New("event is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	reply := make(chan Result, 1)
	select {
	case m.events <- envelope{event: ev, reply: reply}:
	case <-m.done:
		return Result{}, ErrMachineStopped
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case res := <-reply:
		return res, nil
	case <-m.done:
		return Result{}, ErrMachineStopped
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (m *Machine) refreshing() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ctx.IsRefreshing
}

// Snapshot returns a copy of the current state and context.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{State: m.state, Context: m.ctx.Clone()}
}

// Wait blocks until pred holds for a snapshot, ctx ends or the machine stops.
func (m *Machine) Wait(ctx context.Context, pred func(Snapshot) bool) (Snapshot, error) {
	for {
		m.mu.RLock()
		snap := Snapshot{State: m.state, Context: m.ctx.Clone()}
		changed := m.changed
		m.mu.RUnlock()

		if pred(snap) {
			return snap, nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-m.done:
			final := m.Snapshot()
			if pred(final) {
				return final, nil
			}
			return final, ErrMachineStopped
		}
	}
}

func (m *Machine) post(ctx context.Context, ev Event) {
	select {
	case m.events <- envelope{event: ev}:
	case <-ctx.Done():
	}
}

func (m *Machine) handle(ctx context.Context, ev Event) Result {
	from := m.state
	out := Transition(from, m.ctx, ev)

	if !out.Accepted {
		name := EventName(ev)
		m.metrics.reject(ctx, from, name)
		if len(out.Verdict.Errors) > 0 {
			m.commit(out.State, out.Context)
			m.recordActivity(ctx, ActivityEvent{
				EventType: ActivityEventRejected,
				Event:     name,
				FromState: from,
				ToState:   from,
				Metadata:  map[string]any{"errors": out.Verdict.Errors.clone()},
			})
		}
		m.logger.Debug("event %s ignored in state %s", name, from)
		return Result{State: from, Errors: out.Context.ValidationErrors.clone()}
	}

	m.apply(ctx, ev, out)
	return Result{Accepted: true, State: out.State, Errors: out.Context.ValidationErrors.clone()}
}

func (m *Machine) apply(ctx context.Context, ev Event, out Outcome) {
	from := m.state
	m.commit(out.State, out.Context)

	if from != out.State {
		m.logger.Debug("session %s -> %s (%s)", from, out.State, EventName(ev))
		if from != "" {
			m.metrics.transition(ctx, from, out.State)
		}
		m.recordTransition(ctx, ev, from, out)
	}

	if rs, ok := ev.(RefreshSettled); ok {
		m.recordRefresh(ctx, rs, out)
	}

	for _, effect := range out.Effects {
		m.run(ctx, effect)
	}
}

func (m *Machine) commit(state State, ctx Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.ctx = ctx
	close(m.changed)
	m.changed = make(chan struct{})
}

func (m *Machine) run(ctx context.Context, effect Effect) {
	switch e := effect.(type) {
	case InvokeSignIn:
		m.launch(ctx, OpSignIn, func(opCtx context.Context) (Event, error) {
			user, tokens, err := m.client.SignIn(opCtx, e.Email, e.Password)
			if err == nil {
				tokens = withExpiry(tokens, m.now(), m.cfg.TokenTTLFallback)
			}
			return SignInSettled{Op: e.Op, User: user, Tokens: tokens, Err: err}, err
		})
	case InvokeSignUp:
		m.launch(ctx, OpSignUp, func(opCtx context.Context) (Event, error) {
			res, err := m.client.SignUp(opCtx, SignUpRequest{
				Identifier: e.Email,
				Password:   e.Password,
				Email:      e.Email,
				Attributes: e.Attributes,
			})
			return SignUpSettled{Op: e.Op, Confirmed: res.Confirmed, Err: err}, err
		})
	case InvokeConfirm:
		m.launch(ctx, OpConfirm, func(opCtx context.Context) (Event, error) {
			res, err := m.client.ConfirmSignUp(opCtx, e.Email, e.Code)
			if err == nil && !res.Confirmed {
				err = NewError(KindInvalidConfirmationCode, "", nil)
			}
			return ConfirmSettled{Op: e.Op, Err: err}, err
		})
	case InvokeResend:
		m.launch(ctx, OpResend, func(opCtx context.Context) (Event, error) {
			err := m.client.ResendConfirmationCode(opCtx, e.Email)
			return ResendSettled{Op: e.Op, Err: err}, err
		})
	case InvokeSignOut:
		m.launch(ctx, OpSignOut, func(opCtx context.Context) (Event, error) {
			var err error
			if e.AccessToken != "" {
				err = m.client.SignOut(opCtx, e.AccessToken)
			}
			if err != nil {
				m.logger.Warn("remote sign out failed, clearing local session anyway: %v", err)
			}
			return SignOutSettled{Op: e.Op, Err: err}, err
		})
	case InvokeRefresh:
		m.launch(ctx, OpRefresh, func(opCtx context.Context) (Event, error) {
			fresh, err := m.client.RefreshSession(opCtx, e.RefreshToken)
			switch {
			case err != nil:
			case fresh == nil:
				err = NewError(KindUnknown, msgNoNewTokens, nil)
			default:
				t := withExpiry(*fresh, m.now(), m.cfg.TokenTTLFallback)
				fresh = &t
			}
			return RefreshSettled{Op: e.Op, Tokens: fresh, Err: err}, err
		})
	case InvokeRestore:
		m.launch(ctx, OpRestore, func(opCtx context.Context) (Event, error) {
			user, tokens, err := m.restore(opCtx, e.Tokens)
			return RestoreSettled{Op: e.Op, User: user, Tokens: tokens, Err: err}, err
		})
	case PersistTokens:
		if err := m.store.Set(ctx, e.Tokens); err != nil {
			m.logger.Error("persist session tokens: %v", err)
		}
	case ClearTokens:
		if err := m.store.Clear(ctx); err != nil {
			m.logger.Error("clear session tokens: %v", err)
		}
	case ArmRefresh:
		m.scheduler.arm(ctx)
	case DisarmRefresh:
		m.scheduler.disarm()
	case ReportRefreshError:
		m.scheduler.failed()
		if m.onRefreshError != nil {
			handler, err := m.onRefreshError, e.Err
			m.ops.Add(1)
			go func() {
				defer m.ops.Done()
				handler(ctx, err)
			}()
		}
	}
}

// launch runs call outside the machine loop and posts its settlement back.
func (m *Machine) launch(ctx context.Context, op string, call func(context.Context) (Event, error)) {
	m.ops.Add(1)
	go func() {
		defer m.ops.Done()
		start := m.now()
		ev, err := call(ctx)
		m.metrics.operation(ctx, op, err, m.now().Sub(start))
		if err != nil {
			m.logger.Debug("%s failed: %v", op, err)
		}
		m.post(ctx, ev)
	}()
}

// restore validates stored tokens by fetching the user. A rejected access
// token gets one refresh attempt before the stored session is given up.
func (m *Machine) restore(ctx context.Context, tokens Tokens) (AuthUser, Tokens, error) {
	user, err := m.client.GetCurrentUser(ctx, tokens.AccessToken)
	if err == nil {
		return user, tokens, nil
	}
	if tokens.RefreshToken == "" {
		return AuthUser{}, Tokens{}, err
	}

	m.logger.Debug("stored access token rejected, trying refresh: %v", err)
	fresh, rerr := m.client.RefreshSession(ctx, tokens.RefreshToken)
	if rerr != nil {
		return AuthUser{}, Tokens{}, rerr
	}
	if fresh == nil {
		return AuthUser{}, Tokens{}, err
	}

	next := mergeTokens(tokens, *fresh)
	next.ExpiresAt = fresh.ExpiresAt
	next = withExpiry(next, m.now(), m.cfg.TokenTTLFallback)

	user, err = m.client.GetCurrentUser(ctx, next.AccessToken)
	if err != nil {
		return AuthUser{}, Tokens{}, err
	}
	return user, next, nil
}

func (m *Machine) recordTransition(ctx context.Context, ev Event, from State, out Outcome) {
	event := ActivityEvent{
		EventType: ActivityEventTransition,
		Event:     EventName(ev),
		FromState: from,
		ToState:   out.State,
	}
	if out.Context.CurrentUser != nil {
		event.UserID = out.Context.CurrentUser.ID
	}
	m.recordActivity(ctx, event)

	switch {
	case out.State == StateAuthenticated && from != StateAuthenticated:
		event.EventType = ActivityEventSignedIn
		m.recordActivity(ctx, event)
	case from == StateSigningOut && out.State == StateUnauthenticated:
		event.EventType = ActivityEventSignedOut
		m.recordActivity(ctx, event)
	}
}

func (m *Machine) recordRefresh(ctx context.Context, rs RefreshSettled, out Outcome) {
	err := refreshFailure(rs)
	if err == nil {
		m.scheduler.succeeded()
	}

	event := ActivityEvent{
		EventType: ActivityEventRefreshSucceeded,
		Event:     EventName(rs),
		FromState: StateAuthenticated,
		ToState:   out.State,
	}
	if err != nil {
		event.EventType = ActivityEventRefreshFailed
		event.Metadata = map[string]any{
			"kind":  string(KindOf(err)),
			"error": err.Error(),
		}
	}
	m.recordActivity(ctx, event)
}

func (m *Machine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.SessionID == "" {
		event.SessionID = m.sessionID
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.now()
	}

	sink := normalizeActivitySink(m.activity)
	if err := sink.Record(ctx, event); err != nil {
		m.logger.Warn("session activity sink error: %v", err)
	}
}
