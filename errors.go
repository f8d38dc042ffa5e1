package session

import (
	"context"
	"errors"
	"net"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// ErrorKind is the classification the machine routes failures on.
type ErrorKind string

const (
	KindValidation              ErrorKind = "validation"
	KindAccountNotConfirmed     ErrorKind = "account_not_confirmed"
	KindInvalidConfirmationCode ErrorKind = "invalid_confirmation_code"
	KindInvalidCredentials      ErrorKind = "invalid_credentials"
	KindServiceUnavailable      ErrorKind = "service_unavailable"
	KindSessionInvalid          ErrorKind = "session_invalid"
	KindUnknown                 ErrorKind = "unknown"
)

const (
	TextCodeValidation              = "SESSION_VALIDATION_FAILED"
	TextCodeAccountNotConfirmed     = "ACCOUNT_NOT_CONFIRMED"
	TextCodeInvalidConfirmationCode = "INVALID_CONFIRMATION_CODE"
	TextCodeInvalidCredentials      = "INVALID_CREDENTIALS"
	TextCodeServiceUnavailable      = "SERVICE_UNAVAILABLE"
	TextCodeSessionInvalid          = "SESSION_INVALID"
	TextCodeUnknown                 = "SESSION_UNKNOWN_ERROR"
	TextCodeNoTokens                = "SESSION_NO_TOKENS"
	TextCodeMachineRunning          = "SESSION_MACHINE_RUNNING"
	TextCodeMachineStopped          = "SESSION_MACHINE_STOPPED"
)

// ErrValidation is the base error for rejected form input.
var ErrValidation = goerrors.New("invalid input", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrAccountNotConfirmed is returned when the account exists but was never confirmed.
var ErrAccountNotConfirmed = goerrors.New("account not confirmed", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountNotConfirmed).
	WithCode(goerrors.CodeForbidden)

// ErrInvalidConfirmationCode is returned for wrong or expired confirmation codes.
var ErrInvalidConfirmationCode = goerrors.New("invalid confirmation code", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidConfirmationCode).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidCredentials is returned when the identifier/password pair is rejected.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrServiceUnavailable marks transient provider failures.
var ErrServiceUnavailable = goerrors.New("identity service unavailable", goerrors.CategoryOperation).
	WithTextCode(TextCodeServiceUnavailable).
	WithCode(http.StatusServiceUnavailable)

// ErrSessionInvalid is returned when the refresh token itself was rejected.
var ErrSessionInvalid = goerrors.New("session is no longer valid", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnknown wraps failures the provider could not classify.
var ErrUnknown = goerrors.New("identity operation failed", goerrors.CategoryOperation).
	WithTextCode(TextCodeUnknown).
	WithCode(goerrors.CodeInternal)

// ErrNoTokens is returned by stores asked for an expiry when nothing is stored.
var ErrNoTokens = goerrors.New("no session tokens stored", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNoTokens).
	WithCode(goerrors.CodeNotFound)

// ErrMachineRunning is returned when Run is called on a running machine.
var ErrMachineRunning = goerrors.New("session machine already running", goerrors.CategoryConflict).
	WithTextCode(TextCodeMachineRunning).
	WithCode(goerrors.CodeConflict)

// ErrMachineStopped is returned by Send once the machine loop has exited.
var ErrMachineStopped = goerrors.New("session machine stopped", goerrors.CategoryOperation).
	WithTextCode(TextCodeMachineStopped).
	WithCode(goerrors.CodeInternal)

var kindSentinels = map[ErrorKind]*goerrors.Error{
	KindValidation:              ErrValidation,
	KindAccountNotConfirmed:     ErrAccountNotConfirmed,
	KindInvalidConfirmationCode: ErrInvalidConfirmationCode,
	KindInvalidCredentials:      ErrInvalidCredentials,
	KindServiceUnavailable:      ErrServiceUnavailable,
	KindSessionInvalid:          ErrSessionInvalid,
	KindUnknown:                 ErrUnknown,
}

var textCodeKinds = map[string]ErrorKind{
	TextCodeValidation:              KindValidation,
	TextCodeAccountNotConfirmed:     KindAccountNotConfirmed,
	TextCodeInvalidConfirmationCode: KindInvalidConfirmationCode,
	TextCodeInvalidCredentials:      KindInvalidCredentials,
	TextCodeServiceUnavailable:      KindServiceUnavailable,
	TextCodeSessionInvalid:          KindSessionInvalid,
	TextCodeUnknown:                 KindUnknown,
}

// NewError builds a classified error of the given kind. An empty message keeps
// the kind's default message.
func NewError(kind ErrorKind, message string, source error) *goerrors.Error {
	base, ok := kindSentinels[kind]
	if !ok {
		base = ErrUnknown
	}

	clone := base.Clone()
	if message != "" {
		clone.Message = message
	}
	if source != nil {
		clone.Source = source
	}
	return clone
}

// KindOf classifies err. Errors that do not carry a known TextCode are treated
// as transient when they come from the network or a context deadline, and as
// unknown otherwise.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var gerr *goerrors.Error
	if goerrors.As(err, &gerr) {
		if kind, ok := textCodeKinds[gerr.TextCode]; ok {
			return kind
		}
		if gerr.Category == goerrors.CategoryValidation {
			return KindValidation
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindServiceUnavailable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindServiceUnavailable
	}

	return KindUnknown
}

// IsKind reports whether err classifies as kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// ErrorMessage returns the human readable message of a classified error.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var gerr *goerrors.Error
	if goerrors.As(err, &gerr) && gerr.Message != "" {
		return gerr.Message
	}
	return err.Error()
}

// IsNoTokens reports whether err means the store holds no session.
func IsNoTokens(err error) bool {
	var gerr *goerrors.Error
	return goerrors.As(err, &gerr) && gerr.TextCode == TextCodeNoTokens
}

// ErrorCode returns the provider code attached to err as "code" metadata,
// falling back to the error's text code.
func ErrorCode(err error) string {
	var gerr *goerrors.Error
	if !goerrors.As(err, &gerr) {
		return ""
	}
	if code, ok := gerr.Metadata["code"].(string); ok && code != "" {
		return code
	}
	return gerr.TextCode
}
