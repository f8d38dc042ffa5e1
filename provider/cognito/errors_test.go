package cognito

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	goerrors "github.com/goliatone/go-errors"
	session "github.com/goliatone/go-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apiError(code, message string) error {
	return &smithy.GenericAPIError{Code: code, Message: message}
}

func TestClassifyErrorByCode(t *testing.T) {
	tests := []struct {
		name string
		op   string
		err  error
		want session.ErrorKind
	}{
		{"wrong password", session.OpSignIn, apiError("NotAuthorizedException", "Incorrect username or password."), session.KindInvalidCredentials},
		{"revoked refresh token", session.OpRefresh, apiError("NotAuthorizedException", "Refresh Token has been revoked"), session.KindSessionInvalid},
		{"expired access token", session.OpRestore, apiError("NotAuthorizedException", "Access Token has expired"), session.KindSessionInvalid},
		{"unknown user", session.OpSignIn, apiError("UserNotFoundException", "User does not exist."), session.KindInvalidCredentials},
		{"unconfirmed", session.OpSignIn, apiError("UserNotConfirmedException", "User is not confirmed."), session.KindAccountNotConfirmed},
		{"code mismatch", session.OpConfirm, apiError("CodeMismatchException", "Invalid verification code provided"), session.KindInvalidConfirmationCode},
		{"expired code", session.OpConfirm, apiError("ExpiredCodeException", "Invalid code provided, please request a code again."), session.KindInvalidConfirmationCode},
		{"throttled", session.OpResend, apiError("TooManyRequestsException", "Rate exceeded"), session.KindServiceUnavailable},
		{"limit exceeded", session.OpResend, apiError("LimitExceededException", "Attempt limit exceeded"), session.KindServiceUnavailable},
		{"weak password", session.OpSignUp, apiError("InvalidPasswordException", "Password did not conform with policy"), session.KindValidation},
		{"duplicate", session.OpSignUp, apiError("UsernameExistsException", "An account with the given email already exists."), session.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyError(tt.op, tt.err)
			require.Error(t, err)
			assert.Equal(t, tt.want, session.KindOf(err))
		})
	}
}

func TestClassifyErrorKeepsServiceMessage(t *testing.T) {
	err := classifyError(session.OpSignUp, apiError("UsernameExistsException", "An account with the given email already exists."))
	assert.Equal(t, "An account with the given email already exists.", session.ErrorMessage(err))

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "UsernameExistsException", perr.Code)
	assert.Equal(t, session.OpSignUp, perr.Operation)

	var gerr *goerrors.Error
	require.True(t, goerrors.As(err, &gerr))
	assert.Equal(t, "UsernameExistsException", gerr.Metadata["code"])
}

func TestClassifyTransportErrors(t *testing.T) {
	sendErr := &smithyhttp.RequestSendError{Err: errors.New("dial tcp: connection refused")}
	assert.Equal(t, session.KindServiceUnavailable, session.KindOf(classifyError(session.OpSignIn, sendErr)))

	respErr := &smithyhttp.ResponseError{
		Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusBadGateway}},
		Err:      errors.New("bad gateway"),
	}
	assert.Equal(t, session.KindServiceUnavailable, session.KindOf(classifyError(session.OpRefresh, respErr)))

	assert.Equal(t, session.KindServiceUnavailable, session.KindOf(classifyError(session.OpSignIn, context.DeadlineExceeded)))
}

func TestClassifyFallsBackToMessage(t *testing.T) {
	assert.Equal(t, session.KindAccountNotConfirmed,
		session.KindOf(classifyError(session.OpSignIn, errors.New("User is not confirmed."))))
	assert.Equal(t, session.KindSessionInvalid,
		session.KindOf(classifyError(session.OpRefresh, errors.New("Invalid Refresh Token"))))
	assert.Equal(t, session.KindUnknown,
		session.KindOf(classifyError(session.OpSignIn, errors.New("something odd"))))
	assert.NoError(t, classifyError(session.OpSignIn, nil))
}

func TestProviderErrorMessage(t *testing.T) {
	perr := &ProviderError{Operation: session.OpSignIn, Code: "NotAuthorizedException"}
	assert.Equal(t, "cognito sign_in failed: NotAuthorizedException", perr.Error())

	perr.Description = "Incorrect username or password."
	assert.Equal(t, "cognito sign_in failed: Incorrect username or password.", perr.Error())
}
