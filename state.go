package session

// State identifies the active node of the session machine.
type State string

const (
	StateCheckingStoredSession State = "checking_stored_session"
	StateUnauthenticated       State = "unauthenticated"
	StateSignUpForm            State = "sign_up_form"
	StateAuthenticating        State = "authenticating"
	StateCreatingAccount       State = "creating_account"
	StateNeedsConfirmation     State = "needs_confirmation"
	StateVerifyingConfirmation State = "verifying_confirmation"
	StateConfirmationExpired   State = "confirmation_expired"
	StateSendingConfirmation   State = "sending_confirmation"
	StateAuthenticated         State = "authenticated"
	StateSigningOut            State = "signing_out"
)

// States lists every state in declaration order.
func States() []State {
	return []State{
		StateCheckingStoredSession,
		StateUnauthenticated,
		StateSignUpForm,
		StateAuthenticating,
		StateCreatingAccount,
		StateNeedsConfirmation,
		StateVerifyingConfirmation,
		StateConfirmationExpired,
		StateSendingConfirmation,
		StateAuthenticated,
		StateSigningOut,
	}
}

func (s State) String() string {
	return string(s)
}

// Transitional reports whether the state waits on a remote operation.
func (s State) Transitional() bool {
	switch s {
	case StateCheckingStoredSession,
		StateAuthenticating,
		StateCreatingAccount,
		StateVerifyingConfirmation,
		StateSendingConfirmation,
		StateSigningOut:
		return true
	}
	return false
}

// Form reports whether the state collects credentials from the user.
func (s State) Form() bool {
	return s == StateUnauthenticated || s == StateSignUpForm
}
