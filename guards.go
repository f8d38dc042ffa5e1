package session

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MinPasswordLength is the shortest password accepted by the sign-in and
// sign-up guards.
const MinPasswordLength = 8

// Verdict is the result of a guard. Guards never touch the machine context;
// the transition applies Errors when Accepted is false.
type Verdict struct {
	Accepted bool
	Errors   FieldErrors
}

// Err converts a rejected verdict into a validation error.
func (v Verdict) Err() error {
	if v.Accepted {
		return nil
	}
	fields := make(map[string]any, len(v.Errors))
	for k, msg := range v.Errors {
		fields[k] = msg
	}
	return NewError(KindValidation, "", nil).WithMetadata(fields)
}

type credentialsInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type confirmationInput struct {
	Code string `json:"confirmationCode"`
}

var errEmailFormat = validation.NewError("validation_email_format", "email must contain @")

func containsAt(value any) error {
	s, _ := value.(string)
	if !strings.Contains(s, "@") {
		return errEmailFormat
	}
	return nil
}

// ValidateCredentials guards sign-in and sign-up submissions.
func ValidateCredentials(email, password string) Verdict {
	in := credentialsInput{
		Email:    strings.TrimSpace(email),
		Password: password,
	}

	err := validation.ValidateStruct(&in,
		validation.Field(&in.Email,
			validation.Required.Error("email is required"),
			validation.By(containsAt),
		),
		validation.Field(&in.Password,
			validation.Required.Error("password is required"),
			validation.RuneLength(MinPasswordLength, 0).Error("password must be at least 8 characters"),
		),
	)
	return verdictFrom(err)
}

// ValidateConfirmationCode guards confirmation code submissions.
func ValidateConfirmationCode(code string) Verdict {
	in := confirmationInput{Code: strings.TrimSpace(code)}

	err := validation.ValidateStruct(&in,
		validation.Field(&in.Code, validation.Required.Error("confirmation code is required")),
	)
	return verdictFrom(err)
}

func verdictFrom(err error) Verdict {
	if err == nil {
		return Verdict{Accepted: true}
	}

	errs := FieldErrors{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			errs[field] = ferr.Error()
		}
	}
	if len(errs) == 0 {
		errs[FieldForm] = err.Error()
	}
	return Verdict{Errors: errs}
}
