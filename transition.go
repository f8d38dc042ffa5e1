package session

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	msgSignInFailed       = "Sign in failed, please try again."
	msgSignUpFailed       = "Could not create the account, please try again."
	msgConfirmFailed      = "The confirmation code was not accepted."
	msgResendFailed       = "An error occurred while sending the confirmation code."
	msgServiceUnavailable = "The identity service is unavailable, please try again later."
	msgConfirmedSignIn    = "Account confirmed, sign in to continue."
	msgNoNewTokens        = "provider issued no new tokens"
)

// Outcome is the result of feeding one event to Transition.
type Outcome struct {
	State    State
	Context  Context
	Effects  []Effect
	Accepted bool
	// Verdict is set when a guard rejected the event.
	Verdict Verdict
}

// Initial builds the starting outcome. Stored tokens move the machine into
// StateCheckingStoredSession so they can be validated first.
func Initial(stored *Tokens) Outcome {
	ctx := Context{}
	if stored == nil || stored.Empty() {
		return Outcome{State: StateUnauthenticated, Context: ctx, Accepted: true}
	}

	op := ctx.nextOp()
	ctx.pending = op
	return Outcome{
		State:    StateCheckingStoredSession,
		Context:  ctx,
		Effects:  []Effect{InvokeRestore{Op: op, Tokens: *stored}},
		Accepted: true,
	}
}

// Transition computes the next state for ev. It does not perform I/O; the
// returned effects describe the work to do. Events the current state does not
// handle, and settlements for operations the machine stopped waiting on, come
// back with Accepted set to false and everything else unchanged.
func Transition(state State, ctx Context, ev Event) Outcome {
	s := &step{from: state, to: state, ctx: ctx.Clone()}

	switch state {
	case StateUnauthenticated, StateSignUpForm:
		s.onForm(ev)
	case StateAuthenticating:
		s.onAuthenticating(ev)
	case StateCreatingAccount:
		s.onCreatingAccount(ev)
	case StateNeedsConfirmation:
		s.onNeedsConfirmation(ev)
	case StateVerifyingConfirmation:
		s.onVerifyingConfirmation(ev)
	case StateConfirmationExpired:
		s.onConfirmationExpired(ev)
	case StateSendingConfirmation:
		s.onSendingConfirmation(ev)
	case StateAuthenticated:
		s.onAuthenticated(ev)
	case StateSigningOut:
		s.onSigningOut(ev)
	case StateCheckingStoredSession:
		s.onCheckingStoredSession(ev)
	}

	if !s.accepted {
		out := Outcome{State: state, Context: ctx.Clone(), Verdict: s.verdict}
		if len(s.verdict.Errors) > 0 {
			out.Context.ValidationErrors = s.verdict.Errors.clone()
		}
		return out
	}

	s.finish()
	return Outcome{
		State:    s.to,
		Context:  s.ctx,
		Effects:  s.effects,
		Accepted: true,
	}
}

type step struct {
	from     State
	to       State
	ctx      Context
	effects  []Effect
	accepted bool
	verdict  Verdict
}

func (s *step) goTo(target State) {
	s.to = target
	s.accepted = true
}

func (s *step) stay() {
	s.accepted = true
}

func (s *step) emit(effects ...Effect) {
	s.effects = append(s.effects, effects...)
}

func (s *step) reject(v Verdict) {
	s.accepted = false
	s.verdict = v
}

// launch records a new pending operation for the target state.
func (s *step) launch() uint64 {
	s.ctx.clearError()
	op := s.ctx.nextOp()
	s.ctx.pending = op
	return op
}

// fail records the classification of a settled failure.
func (s *step) fail(err error) {
	s.ctx.LastErrorKind = KindOf(err)
	s.ctx.LastErrorCode = ErrorCode(err)
}

// settles reports whether op is the settlement the state is waiting on.
func (s *step) settles(op uint64) bool {
	return op != 0 && op == s.ctx.pending
}

func (s *step) finish() {
	if s.from == StateAuthenticated && s.to != StateAuthenticated {
		s.effects = append([]Effect{DisarmRefresh{}}, s.effects...)
	}
	if s.to != StateAuthenticated {
		s.ctx.clearSession()
	}
	if s.to == StateAuthenticated || s.to == StateUnauthenticated {
		s.ctx.Password = ""
		s.ctx.ConfirmationCode = ""
	}
	if s.to == StateAuthenticated {
		s.ctx.Email = ""
		s.ctx.ValidationErrors = nil
		if s.from != StateAuthenticated {
			s.emit(ArmRefresh{})
		}
	}
	if !s.to.Transitional() {
		s.ctx.pending = 0
	}
}

func (s *step) submitCredentials(email, password string) bool {
	v := ValidateCredentials(email, password)
	if !v.Accepted {
		s.reject(v)
		return false
	}
	s.ctx.Email = strings.TrimSpace(email)
	s.ctx.Password = password
	s.ctx.ValidationErrors = nil
	return true
}

func (s *step) onForm(ev Event) {
	switch e := ev.(type) {
	case SignInSubmitted:
		if !s.submitCredentials(e.Email, e.Password) {
			return
		}
		s.signIn()
	case SignUpSubmitted:
		if !s.submitCredentials(e.Email, e.Password) {
			return
		}
		op := s.launch()
		s.goTo(StateCreatingAccount)
		s.emit(InvokeSignUp{
			Op:         op,
			Email:      s.ctx.Email,
			Password:   s.ctx.Password,
			Attributes: cloneAttributes(e.Attributes),
		})
	case NavigateToSignUp:
		if s.from != StateUnauthenticated {
			return
		}
		s.ctx.clearForm()
		s.goTo(StateSignUpForm)
	case NavigateToSignIn:
		if s.from != StateSignUpForm {
			return
		}
		s.ctx.clearForm()
		s.goTo(StateUnauthenticated)
	}
}

func (s *step) signIn() {
	op := s.launch()
	s.goTo(StateAuthenticating)
	s.emit(InvokeSignIn{Op: op, Email: s.ctx.Email, Password: s.ctx.Password})
}

func (s *step) onAuthenticating(ev Event) {
	e, ok := ev.(SignInSettled)
	if !ok || !s.settles(e.Op) {
		return
	}

	switch {
	case e.Err == nil:
		s.authenticate(e.User, e.Tokens)
	case KindOf(e.Err) == KindAccountNotConfirmed:
		s.ctx.ValidationErrors = nil
		s.fail(e.Err)
		s.goTo(StateNeedsConfirmation)
	default:
		s.ctx.ValidationErrors = FieldErrors{FieldForm: failureMessage(e.Err, msgSignInFailed)}
		s.fail(e.Err)
		s.goTo(StateUnauthenticated)
	}
}

func (s *step) authenticate(user AuthUser, tokens Tokens) {
	u := user.Clone()
	t := tokens
	s.ctx.CurrentUser = &u
	s.ctx.Tokens = &t
	s.goTo(StateAuthenticated)
	s.emit(PersistTokens{Tokens: t})
}

func (s *step) onCreatingAccount(ev Event) {
	e, ok := ev.(SignUpSettled)
	if !ok || !s.settles(e.Op) {
		return
	}

	switch {
	case e.Err != nil:
		s.ctx.ValidationErrors = FieldErrors{FieldForm: failureMessage(e.Err, msgSignUpFailed)}
		s.fail(e.Err)
		s.goTo(StateUnauthenticated)
	case e.Confirmed:
		s.signIn()
	default:
		s.goTo(StateNeedsConfirmation)
	}
}

func (s *step) onNeedsConfirmation(ev Event) {
	switch e := ev.(type) {
	case ConfirmationSubmitted:
		v := ValidateConfirmationCode(e.Code)
		if !v.Accepted {
			s.reject(v)
			return
		}
		s.ctx.ConfirmationCode = strings.TrimSpace(e.Code)
		s.ctx.ValidationErrors = nil
		op := s.launch()
		s.goTo(StateVerifyingConfirmation)
		s.emit(InvokeConfirm{Op: op, Email: s.ctx.Email, Code: s.ctx.ConfirmationCode})
	case ResendRequested:
		s.resend()
	case CodeExpired:
		s.goTo(StateConfirmationExpired)
	case NavigateToSignIn:
		s.ctx.clearForm()
		s.goTo(StateUnauthenticated)
	}
}

func (s *step) resend() {
	op := s.launch()
	s.goTo(StateSendingConfirmation)
	s.emit(InvokeResend{Op: op, Email: s.ctx.Email})
}

func (s *step) onVerifyingConfirmation(ev Event) {
	e, ok := ev.(ConfirmSettled)
	if !ok || !s.settles(e.Op) {
		return
	}

	s.ctx.ConfirmationCode = ""
	if e.Err != nil {
		s.ctx.ValidationErrors = FieldErrors{FieldConfirmationCode: failureMessage(e.Err, msgConfirmFailed)}
		s.fail(e.Err)
		s.goTo(StateNeedsConfirmation)
		return
	}

	if s.ctx.Password == "" {
		s.ctx.ValidationErrors = FieldErrors{FieldForm: msgConfirmedSignIn}
		s.goTo(StateUnauthenticated)
		return
	}
	s.signIn()
}

func (s *step) onConfirmationExpired(ev Event) {
	switch ev.(type) {
	case ResendRequested:
		s.resend()
	case NavigateToSignIn:
		s.ctx.clearForm()
		s.goTo(StateUnauthenticated)
	}
}

func (s *step) onSendingConfirmation(ev Event) {
	e, ok := ev.(ResendSettled)
	if !ok || !s.settles(e.Op) {
		return
	}

	if e.Err != nil {
		s.ctx.ValidationErrors = FieldErrors{FieldConfirmationCode: failureMessage(e.Err, msgResendFailed)}
		s.fail(e.Err)
		s.goTo(StateConfirmationExpired)
		return
	}
	s.ctx.ValidationErrors = nil
	s.goTo(StateNeedsConfirmation)
}

func (s *step) onAuthenticated(ev Event) {
	switch e := ev.(type) {
	case SignOutRequested:
		s.signOut()
	case RefreshRequested:
		if s.ctx.IsRefreshing || s.ctx.Tokens == nil || s.ctx.Tokens.RefreshToken == "" {
			return
		}
		s.ctx.IsRefreshing = true
		s.ctx.clearError()
		s.ctx.refreshOp = s.ctx.nextOp()
		s.stay()
		s.emit(InvokeRefresh{Op: s.ctx.refreshOp, RefreshToken: s.ctx.Tokens.RefreshToken})
	case RefreshSettled:
		if !s.ctx.IsRefreshing || e.Op == 0 || e.Op != s.ctx.refreshOp {
			return
		}
		s.ctx.IsRefreshing = false
		s.ctx.refreshOp = 0

		err := refreshFailure(e)
		switch {
		case err == nil:
			s.stay()
			merged := mergeTokens(*s.ctx.Tokens, *e.Tokens)
			s.ctx.Tokens = &merged
			s.emit(PersistTokens{Tokens: merged})
		case KindOf(err) == KindSessionInvalid:
			s.signOut()
			s.fail(err)
		default:
			s.stay()
			s.fail(err)
			s.emit(ReportRefreshError{Err: err})
		}
	}
}

// refreshFailure returns the error a refresh settled with. A provider that
// answers without error but issues no tokens has failed the refresh.
func refreshFailure(e RefreshSettled) error {
	if e.Err != nil {
		return e.Err
	}
	if e.Tokens == nil {
		return NewError(KindUnknown, msgNoNewTokens, nil)
	}
	return nil
}

func (s *step) signOut() {
	var access string
	if s.ctx.Tokens != nil {
		access = s.ctx.Tokens.AccessToken
	}
	op := s.launch()
	s.goTo(StateSigningOut)
	s.emit(InvokeSignOut{Op: op, AccessToken: access})
}

func (s *step) onSigningOut(ev Event) {
	e, ok := ev.(SignOutSettled)
	if !ok || !s.settles(e.Op) {
		return
	}
	s.ctx.clearForm()
	if e.Err != nil {
		s.fail(e.Err)
	}
	s.goTo(StateUnauthenticated)
	s.emit(ClearTokens{})
}

func (s *step) onCheckingStoredSession(ev Event) {
	e, ok := ev.(RestoreSettled)
	if !ok || !s.settles(e.Op) {
		return
	}

	if e.Err != nil {
		s.fail(e.Err)
		s.goTo(StateUnauthenticated)
		s.emit(ClearTokens{})
		return
	}
	s.authenticate(e.User, e.Tokens)
}

// mergeTokens applies a refresh result; providers may omit the refresh and id
// tokens, in which case the previous values stay.
func mergeTokens(current, next Tokens) Tokens {
	out := next
	if out.RefreshToken == "" {
		out.RefreshToken = current.RefreshToken
	}
	if out.IDToken == "" {
		out.IDToken = current.IDToken
	}
	if out.AccessToken == "" {
		out.AccessToken = current.AccessToken
	}
	return out
}

// failureMessage picks the message stored in validationErrors. Provider
// adapters own the wording of classified errors; anything else gets fallback.
func failureMessage(err error, fallback string) string {
	if KindOf(err) == KindServiceUnavailable {
		return msgServiceUnavailable
	}

	var gerr *goerrors.Error
	if !goerrors.As(err, &gerr) || gerr.Message == "" {
		return fallback
	}
	if gerr.TextCode == TextCodeUnknown && gerr.Message == ErrUnknown.Message {
		return fallback
	}
	return gerr.Message
}

func cloneAttributes(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
