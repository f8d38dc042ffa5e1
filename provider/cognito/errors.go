package cognito

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	session "github.com/goliatone/go-session"
)

const providerName = "cognito"

// ProviderError captures the service error returned for one operation.
type ProviderError struct {
	Operation   string
	Status      int
	Code        string
	Description string
	Err         error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "cognito error"
	}

	scope := providerName
	if e.Operation != "" {
		scope = fmt.Sprintf("%s %s", providerName, e.Operation)
	}

	switch {
	case e.Description != "":
		return fmt.Sprintf("%s failed: %s", scope, e.Description)
	case e.Code != "":
		return fmt.Sprintf("%s failed: %s", scope, e.Code)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", scope, e.Err)
	}
	return fmt.Sprintf("%s failed", scope)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Metadata returns the error details as a flat map.
func (e *ProviderError) Metadata() map[string]any {
	if e == nil {
		return nil
	}

	meta := map[string]any{"provider": providerName}
	if e.Operation != "" {
		meta["operation"] = e.Operation
	}
	if e.Status != 0 {
		meta["status"] = e.Status
	}
	if e.Code != "" {
		meta["code"] = e.Code
	}
	if e.Description != "" {
		meta["description"] = e.Description
	}
	return meta
}

// classifyError turns an SDK error into a classified session error. The
// service error code decides; the message text is only consulted when no
// code is available.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	perr := &ProviderError{Operation: op, Err: err}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		perr.Code = apiErr.ErrorCode()
		perr.Description = apiErr.ErrorMessage()
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		perr.Status = respErr.HTTPStatusCode()
	}

	kind := kindForCode(op, perr.Code)
	if kind == "" {
		kind = kindForTransport(err, perr.Status)
	}
	if kind == "" {
		kind = kindForMessage(op, err.Error())
	}

	classified := session.NewError(kind, perr.Description, perr)
	classified.WithMetadata(perr.Metadata())
	return classified
}

func kindForCode(op, code string) session.ErrorKind {
	switch code {
	case "NotAuthorizedException":
		if op == session.OpRefresh || op == session.OpRestore || op == session.OpSignOut {
			return session.KindSessionInvalid
		}
		return session.KindInvalidCredentials
	case "UserNotFoundException":
		return session.KindInvalidCredentials
	case "UserNotConfirmedException":
		return session.KindAccountNotConfirmed
	case "CodeMismatchException", "ExpiredCodeException":
		return session.KindInvalidConfirmationCode
	case "TooManyRequestsException",
		"LimitExceededException",
		"InternalErrorException",
		"ServiceUnavailable",
		"ThrottlingException",
		"RequestTimeout":
		return session.KindServiceUnavailable
	case "InvalidParameterException", "InvalidPasswordException":
		return session.KindValidation
	}
	return ""
}

func kindForTransport(err error, status int) session.ErrorKind {
	if status >= 500 {
		return session.KindServiceUnavailable
	}

	var sendErr *smithyhttp.RequestSendError
	if errors.As(err, &sendErr) {
		return session.KindServiceUnavailable
	}

	if session.KindOf(err) == session.KindServiceUnavailable {
		return session.KindServiceUnavailable
	}
	return ""
}

func kindForMessage(op, message string) session.ErrorKind {
	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "not confirmed"):
		return session.KindAccountNotConfirmed
	case strings.Contains(msg, "invalid verification code"), strings.Contains(msg, "code mismatch"):
		return session.KindInvalidConfirmationCode
	case strings.Contains(msg, "refresh token") && op == session.OpRefresh:
		return session.KindSessionInvalid
	case strings.Contains(msg, "incorrect username or password"):
		return session.KindInvalidCredentials
	}
	return session.KindUnknown
}
