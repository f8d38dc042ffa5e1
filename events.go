package session

// Event is anything the machine consumes: user intents and operation
// settlements. The set is closed.
type Event interface {
	eventName() string
}

// EventName returns a stable name for logs and activity records.
func EventName(ev Event) string {
	if ev == nil {
		return ""
	}
	return ev.eventName()
}

// SignInSubmitted carries the sign-in form.
type SignInSubmitted struct {
	Email    string
	Password string
}

// SignUpSubmitted carries the registration form. Attributes are passed to
// the provider as-is.
type SignUpSubmitted struct {
	Email      string
	Password   string
	Attributes map[string]string
}

// NavigateToSignUp switches the form to registration.
type NavigateToSignUp struct{}

// NavigateToSignIn returns to the sign-in form and clears form errors.
type NavigateToSignIn struct{}

// ConfirmationSubmitted carries the code sent to the pending email.
type ConfirmationSubmitted struct {
	Code string
}

// ResendRequested asks the provider to send a new confirmation code.
type ResendRequested struct{}

// CodeExpired is raised by the caller when it knows the pending code lapsed.
type CodeExpired struct{}

// SignOutRequested ends the session. Local tokens are cleared even when the
// provider call fails.
type SignOutRequested struct{}

// RefreshRequested asks for a background token refresh. It is a no-op while
// another refresh is in flight.
type RefreshRequested struct{}

// Settlements. Op is the sequence number handed out with the Invoke effect;
// a settlement whose Op is not the pending one is ignored.

// SignInSettled reports the result of InvokeSignIn.
type SignInSettled struct {
	Op     uint64
	User   AuthUser
	Tokens Tokens
	Err    error
}

// SignUpSettled reports the result of InvokeSignUp. Confirmed is true when
// the provider needs no confirmation step.
type SignUpSettled struct {
	Op        uint64
	Confirmed bool
	Err       error
}

// ConfirmSettled reports the result of InvokeConfirm.
type ConfirmSettled struct {
	Op  uint64
	Err error
}

// ResendSettled reports the result of InvokeResend.
type ResendSettled struct {
	Op  uint64
	Err error
}

// SignOutSettled reports the result of InvokeSignOut.
type SignOutSettled struct {
	Op  uint64
	Err error
}

// RefreshSettled reports the result of InvokeRefresh. A nil Tokens with no
// Err is treated as a failure.
type RefreshSettled struct {
	Op     uint64
	Tokens *Tokens
	Err    error
}

// RestoreSettled reports the result of InvokeRestore.
type RestoreSettled struct {
	Op     uint64
	User   AuthUser
	Tokens Tokens
	Err    error
}

func (SignInSubmitted) eventName() string       { return "sign_in_submitted" }
func (SignUpSubmitted) eventName() string       { return "sign_up_submitted" }
func (NavigateToSignUp) eventName() string      { return "navigate_to_sign_up" }
func (NavigateToSignIn) eventName() string      { return "navigate_to_sign_in" }
func (ConfirmationSubmitted) eventName() string { return "confirmation_submitted" }
func (ResendRequested) eventName() string       { return "resend_requested" }
func (CodeExpired) eventName() string           { return "code_expired" }
func (SignOutRequested) eventName() string      { return "sign_out_requested" }
func (RefreshRequested) eventName() string      { return "refresh_requested" }
func (SignInSettled) eventName() string         { return "sign_in_settled" }
func (SignUpSettled) eventName() string         { return "sign_up_settled" }
func (ConfirmSettled) eventName() string        { return "confirm_settled" }
func (ResendSettled) eventName() string         { return "resend_settled" }
func (SignOutSettled) eventName() string        { return "sign_out_settled" }
func (RefreshSettled) eventName() string        { return "refresh_settled" }
func (RestoreSettled) eventName() string        { return "restore_settled" }
