package session

// Effect is work requested by a transition and carried out by the Machine.
type Effect interface {
	effectName() string
}

// Operation names used for Invoke effects, metrics and activity metadata.
const (
	OpSignIn  = "sign_in"
	OpSignUp  = "sign_up"
	OpConfirm = "confirm_sign_up"
	OpResend  = "resend_confirmation_code"
	OpSignOut = "sign_out"
	OpRefresh = "refresh_session"
	OpRestore = "restore_session"
)

// InvokeSignIn calls IdentityClient.SignIn.
type InvokeSignIn struct {
	Op       uint64
	Email    string
	Password string
}

// InvokeSignUp calls IdentityClient.SignUp.
type InvokeSignUp struct {
	Op         uint64
	Email      string
	Password   string
	Attributes map[string]string
}

// InvokeConfirm submits a confirmation code for Email.
type InvokeConfirm struct {
	Op    uint64
	Email string
	Code  string
}

// InvokeResend requests a fresh confirmation code.
type InvokeResend struct {
	Op    uint64
	Email string
}

// InvokeSignOut revokes the session at the provider.
type InvokeSignOut struct {
	Op          uint64
	AccessToken string
}

// InvokeRefresh exchanges RefreshToken for new tokens.
type InvokeRefresh struct {
	Op           uint64
	RefreshToken string
}

// InvokeRestore validates previously persisted tokens.
type InvokeRestore struct {
	Op     uint64
	Tokens Tokens
}

// PersistTokens writes Tokens to the token store.
type PersistTokens struct {
	Tokens Tokens
}

// ClearTokens removes stored tokens.
type ClearTokens struct{}

// ArmRefresh starts the refresh scheduler.
type ArmRefresh struct{}

// DisarmRefresh stops the refresh scheduler.
type DisarmRefresh struct{}

// ReportRefreshError hands a kept-session refresh failure to the
// configured RefreshErrorHandler.
type ReportRefreshError struct {
	Err error
}

func (InvokeSignIn) effectName() string       { return OpSignIn }
func (InvokeSignUp) effectName() string       { return OpSignUp }
func (InvokeConfirm) effectName() string      { return OpConfirm }
func (InvokeResend) effectName() string       { return OpResend }
func (InvokeSignOut) effectName() string      { return OpSignOut }
func (InvokeRefresh) effectName() string      { return OpRefresh }
func (InvokeRestore) effectName() string      { return OpRestore }
func (PersistTokens) effectName() string      { return "persist_tokens" }
func (ClearTokens) effectName() string        { return "clear_tokens" }
func (ArmRefresh) effectName() string         { return "arm_refresh" }
func (DisarmRefresh) effectName() string      { return "disarm_refresh" }
func (ReportRefreshError) effectName() string { return "report_refresh_error" }

// EffectName returns the effect's stable name.
func EffectName(e Effect) string {
	if e == nil {
		return ""
	}
	return e.effectName()
}
